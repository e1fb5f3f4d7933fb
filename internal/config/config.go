// Package config resolves the operator configuration surface (spec §6):
// flags first, with any flag left at its default overridden by a
// persisted value from the config key/value table. Grounded on the
// teacher's cmd/factory/main.go flag-then-db-fallback pattern (the
// "*maxAgents == 3" style check for "was this flag left at default").
package config

import (
	"encoding/base64"
	"flag"
	"fmt"
	"time"
)

const (
	DefaultMaxConcurrentAgents = 3
	DefaultAgentTimeoutMinutes = 30
	DefaultBlockedRetryMinutes = 30
)

// Config is the full operator-facing configuration surface.
type Config struct {
	WorkspacePath          string
	DBPath                 string
	ListenAddr             string
	TelegramUserID         string
	MaxConcurrentAgents    int
	AgentTimeoutMinutes    int
	BlockedRetryMinutes    int
	MessageEncryptionKey   []byte
	OllamaModel            string
	HeartbeatChecklistPath string
	AuthToken              string
}

// AgentTimeout is AgentTimeoutMinutes as a time.Duration.
func (c Config) AgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutMinutes) * time.Minute
}

// configStore is the subset of internal/store.Store this package needs,
// declared locally to avoid an import cycle (store already depends on
// nothing in config, but keeping the dependency one-directional and
// interface-narrow matches the rest of the module's wiring style).
type configStore interface {
	GetConfigValue(key string) (string, error)
}

// ParseFlags builds a Config from the command line, then fills in any
// value left at its zero/default from the config key/value table once
// the store is available. Call order mirrors the teacher's main.go:
// flags parse before the database opens, so the fallback pass happens
// as a second step via ApplyStoreDefaults.
func ParseFlags(args []string) (Config, error) {
	fs := flag.NewFlagSet("orchestratord", flag.ContinueOnError)

	workspacePath := fs.String("workspace", ".", "repository workspace root")
	dbPath := fs.String("db", "orchestrator.db", "SQLite database path")
	listenAddr := fs.String("listen", ":8080", "HTTP/WebSocket listen address")
	telegramUserID := fs.String("telegram-user-id", "", "Telegram user id for best-effort notifications")
	maxConcurrentAgents := fs.Int("max-concurrent-agents", DefaultMaxConcurrentAgents, "maximum agents running at once")
	agentTimeoutMinutes := fs.Int("agent-timeout-minutes", DefaultAgentTimeoutMinutes, "per-agent timeout in minutes")
	blockedRetryMinutes := fs.Int("blocked-retry-minutes", DefaultBlockedRetryMinutes, "minutes before a blocked card is retried")
	encryptionKeyB64 := fs.String("message-encryption-key", "", "base64-encoded message encryption key (a fixed insecure development key is used if empty)")
	ollamaModel := fs.String("ollama-model", "", "optional local model name for ollama-backed steering summaries")
	heartbeatPath := fs.String("heartbeat-checklist", "HEARTBEAT.md", "path to the heartbeat checklist file")
	authToken := fs.String("auth-token", "", "shared bearer token for the API surface (empty disables auth)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	var key []byte
	if *encryptionKeyB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(*encryptionKeyB64)
		if err != nil {
			return Config{}, fmt.Errorf("decode message-encryption-key: %w", err)
		}
		key = decoded
	}

	return Config{
		WorkspacePath:          *workspacePath,
		DBPath:                 *dbPath,
		ListenAddr:             *listenAddr,
		TelegramUserID:         *telegramUserID,
		MaxConcurrentAgents:    *maxConcurrentAgents,
		AgentTimeoutMinutes:    *agentTimeoutMinutes,
		BlockedRetryMinutes:    *blockedRetryMinutes,
		MessageEncryptionKey:   key,
		OllamaModel:            *ollamaModel,
		HeartbeatChecklistPath: *heartbeatPath,
		AuthToken:              *authToken,
	}, nil
}

// ApplyStoreDefaults overrides any flag left at its zero-value default
// with a persisted override from the config table, mirroring the
// teacher's "only trust the db value if the flag wasn't explicitly set"
// fallback for bare_repo / max_parallel_agents.
func (c *Config) ApplyStoreDefaults(st configStore) {
	if c.MaxConcurrentAgents == DefaultMaxConcurrentAgents {
		if v, err := st.GetConfigValue("max_concurrent_agents"); err == nil && v != "" {
			fmt.Sscanf(v, "%d", &c.MaxConcurrentAgents)
		}
	}
	if c.AgentTimeoutMinutes == DefaultAgentTimeoutMinutes {
		if v, err := st.GetConfigValue("agent_timeout_minutes"); err == nil && v != "" {
			fmt.Sscanf(v, "%d", &c.AgentTimeoutMinutes)
		}
	}
	if c.BlockedRetryMinutes == DefaultBlockedRetryMinutes {
		if v, err := st.GetConfigValue("blocked_retry_minutes"); err == nil && v != "" {
			fmt.Sscanf(v, "%d", &c.BlockedRetryMinutes)
		}
	}
	if c.TelegramUserID == "" {
		if v, err := st.GetConfigValue("telegram_user_id"); err == nil {
			c.TelegramUserID = v
		}
	}
	if c.OllamaModel == "" {
		if v, err := st.GetConfigValue("ollama_model"); err == nil {
			c.OllamaModel = v
		}
	}
}
