// Package collab declares the external-collaborator interfaces named
// in the expanded spec's Non-goals: Telegram notification, SoulLoader
// context injection, and voice STT/TTS. None of these are part of the
// core contract; the orchestrator and chat surfaces depend on the
// interfaces only, and a no-op default keeps the module runnable
// without any of them configured. Grounded on the teacher's
// background.go notification hooks (performPMCheckins' best-effort
// Telegram send, never awaited by the caller).
package collab

import (
	"context"
	"errors"
)

// Telegram sends a best-effort notification. The orchestrator never
// awaits or retries a failed send; a terminal agent failure or a chat
// reply is the only traffic routed through it.
type Telegram interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// NoopTelegram discards every message. Used when no telegramUserId is
// configured.
type NoopTelegram struct{}

func (NoopTelegram) SendMessage(context.Context, string, string) error { return nil }

// SoulLoader supplies a persona/context text block consumed by the chat
// service, never by the core orchestrator pipeline.
type SoulLoader interface {
	Load(ctx context.Context) (string, error)
}

// NoopSoulLoader returns an empty context block.
type NoopSoulLoader struct{}

func (NoopSoulLoader) Load(context.Context) (string, error) { return "", nil }

// Voice covers speech-to-text and text-to-speech, named here only to
// satisfy the spec's "interfaces only" Non-goal — no core component
// calls it.
type Voice interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// NoopVoice rejects every call; wire a real implementation only if a
// front-end requires it.
type NoopVoice struct{}

func (NoopVoice) Transcribe(context.Context, []byte) (string, error) { return "", errVoiceUnconfigured }
func (NoopVoice) Synthesize(context.Context, string) ([]byte, error) { return nil, errVoiceUnconfigured }

var errVoiceUnconfigured = errors.New("voice: no implementation configured")
