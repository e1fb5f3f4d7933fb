package orchestrator

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/twlines/maslow-sub003/internal/kanban"
)

// sigtermGrace is how long a spawned agent gets to exit cleanly after
// SIGTERM before the orchestrator escalates to SIGKILL.
const sigtermGrace = 5 * time.Second

// shutdownGrace is a 30 s grace period. Nothing reads it: ShutdownAll
// cancels agents with the same sigtermGrace as any other cancellation.
const shutdownGrace = 30 * time.Second

// apiKeyEnvVars are stripped from the spawned agent's environment so it
// is forced through its own CLI-native OAuth rather than inheriting a
// provider key meant for this process.
var apiKeyEnvVars = []string{
	"ANTHROPIC_API_KEY",
	"OPENAI_API_KEY",
	"GEMINI_API_KEY",
	"GOOGLE_API_KEY",
}

// buildCommand constructs the argv for the given agent kind. Grounded
// on the teacher's runClaude (agents/spawner.go), generalized from a
// single Claude-only invocation to the three CLI agents named in
// §4.E's command-construction table.
func buildCommand(ctx context.Context, agent kanban.AgentKind, prompt, workDir string) (*exec.Cmd, error) {
	var name string
	var args []string

	switch agent {
	case kanban.AgentClaude:
		name = "claude"
		args = []string{
			"-p", "--verbose",
			"--output-format", "stream-json",
			"--permission-mode", "bypassPermissions",
			"--max-turns", "50",
			prompt,
		}
	case kanban.AgentCodex:
		name = "codex"
		args = []string{"--approval-mode", "full-auto", "-q", prompt}
	case kanban.AgentGemini:
		name = "gemini"
		args = []string{"-y", prompt}
	default:
		name = "claude"
		args = []string{"-p", "--verbose", "--output-format", "stream-json", prompt}
	}

	resolved := name
	if path, err := exec.LookPath(name); err == nil {
		resolved = path
	}

	cmd := exec.CommandContext(ctx, resolved, args...) // #nosec G204 -- argv is built from a fixed per-kind template, not user input
	cmd.Dir = workDir
	cmd.Env = sanitizedEnv()

	// Go 1.20+ graceful-cancel support: Cancel fires on ctx.Done with
	// SIGTERM; if the process hasn't exited after WaitDelay, the
	// runtime escalates to Kill. This implements the SIGTERM -> 5s ->
	// SIGKILL contract without a manual timer goroutine.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscallSIGTERM)
	}
	cmd.WaitDelay = sigtermGrace

	return cmd, nil
}

func sanitizedEnv() []string {
	base := currentEnv()
	out := make([]string, 0, len(base))
	for _, kv := range base {
		stripped := false
		for _, key := range apiKeyEnvVars {
			if strings.HasPrefix(kv, key+"=") {
				stripped = true
				break
			}
		}
		if !stripped {
			out = append(out, kv)
		}
	}
	return out
}
