package store

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// messageCipher performs authenticated encryption of message content at
// rest. The key is derived once, at store construction, from the
// system-provided messageEncryptionKey secret via HKDF-SHA256 — the
// secret itself is never used directly as an AEAD key. Net-new relative
// to the teacher (which stores conversation content as plain TEXT);
// grounded in the pack's attested choice of golang.org/x/crypto for this
// exact concern (see SPEC_FULL.md §10.2).
type messageCipher struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

func newMessageCipher(secret []byte) (*messageCipher, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("messageEncryptionKey must not be empty")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, secret, nil, []byte("maslow-sub003/message-content"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive message key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	return &messageCipher{aead: aead}, nil
}

// encrypt returns ciphertext and the nonce used to produce it. A fresh
// random nonce is generated per call so the ciphertext "carries its
// nonce" as the contract requires, rather than deriving it from content.
func (c *messageCipher) encrypt(plaintext []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext = c.aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

func (c *messageCipher) decrypt(ciphertext, nonce []byte) ([]byte, error) {
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt message: %w", err)
	}
	return plaintext, nil
}
