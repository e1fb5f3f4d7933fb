package config

import "testing"

type fakeStore map[string]string

func (f fakeStore) GetConfigValue(key string) (string, error) {
	return f[key], nil
}

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := ParseFlags(nil)
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if cfg.MaxConcurrentAgents != DefaultMaxConcurrentAgents {
		t.Errorf("expected default max concurrent agents, got %d", cfg.MaxConcurrentAgents)
	}
	if cfg.AgentTimeoutMinutes != DefaultAgentTimeoutMinutes {
		t.Errorf("expected default agent timeout, got %d", cfg.AgentTimeoutMinutes)
	}
	if cfg.AgentTimeout().Minutes() != DefaultAgentTimeoutMinutes {
		t.Errorf("expected AgentTimeout to reflect minutes field")
	}
}

func TestApplyStoreDefaultsOverridesUnsetFlags(t *testing.T) {
	cfg, err := ParseFlags(nil)
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	store := fakeStore{
		"max_concurrent_agents": "7",
		"telegram_user_id":      "12345",
	}
	cfg.ApplyStoreDefaults(store)
	if cfg.MaxConcurrentAgents != 7 {
		t.Errorf("expected db override to 7, got %d", cfg.MaxConcurrentAgents)
	}
	if cfg.TelegramUserID != "12345" {
		t.Errorf("expected telegram user id from store, got %q", cfg.TelegramUserID)
	}
}

func TestApplyStoreDefaultsLeavesExplicitFlagsAlone(t *testing.T) {
	cfg, err := ParseFlags([]string{"-max-concurrent-agents=9"})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	store := fakeStore{"max_concurrent_agents": "2"}
	cfg.ApplyStoreDefaults(store)
	if cfg.MaxConcurrentAgents != 9 {
		t.Errorf("expected explicit flag to win, got %d", cfg.MaxConcurrentAgents)
	}
}
