package collab

import (
	"context"
	"testing"
)

func TestNoopTelegramDiscards(t *testing.T) {
	var tg Telegram = NoopTelegram{}
	if err := tg.SendMessage(context.Background(), "123", "hello"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestNoopSoulLoaderReturnsEmpty(t *testing.T) {
	var sl SoulLoader = NoopSoulLoader{}
	text, err := sl.Load(context.Background())
	if err != nil || text != "" {
		t.Fatalf("expected empty text and nil error, got %q %v", text, err)
	}
}

func TestNoopVoiceRejects(t *testing.T) {
	var v Voice = NoopVoice{}
	if _, err := v.Transcribe(context.Background(), nil); err == nil {
		t.Fatal("expected error from unconfigured voice transcription")
	}
	if _, err := v.Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("expected error from unconfigured voice synthesis")
	}
}
