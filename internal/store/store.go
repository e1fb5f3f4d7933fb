package store

import (
	"github.com/rs/zerolog"
)

// Store is the persistence store (spec component A): a single embedded
// SQLite database with write-ahead logging, foreign-key enforcement, and
// authenticated encryption for message content. Grounded on the teacher's
// internal/db/store.go CRUD style (prepared queries, manual scan,
// sql.NullString handling), generalized onto the card/project/document/
// decision/message/audit/token-usage model of SPEC_FULL.md §3.
type Store struct {
	db     *DB
	cipher *messageCipher
	logger zerolog.Logger
}

// New wraps an opened DB with a message cipher derived from secret.
func New(db *DB, secret []byte, logger zerolog.Logger) (*Store, error) {
	cipher, err := newMessageCipher(secret)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, cipher: cipher, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// GetConfigValue retrieves a config value by key (teacher's own
// key/value config table pattern, internal/db/sqlite.go migration 3).
func (s *Store) GetConfigValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return "", nil
		}
		return "", wrapStorage("get config", err)
	}
	return value, nil
}

// SetConfigValue upserts a config value by key.
func (s *Store) SetConfigValue(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)`, key, value)
	return wrapStorage("set config", err)
}
