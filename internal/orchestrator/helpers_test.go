package orchestrator

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/twlines/maslow-sub003/internal/kanban"
	"github.com/twlines/maslow-sub003/internal/store"
)

func TestBuildCommandPerAgentKind(t *testing.T) {
	cases := []struct {
		agent    kanban.AgentKind
		wantName string
		wantArg  string
	}{
		{kanban.AgentClaude, "claude", "--permission-mode"},
		{kanban.AgentCodex, "codex", "--approval-mode"},
		{kanban.AgentGemini, "gemini", "-y"},
		{kanban.AgentKind("unknown"), "claude", "--output-format"},
	}
	for _, tc := range cases {
		cmd, err := buildCommand(context.Background(), tc.agent, "do the thing", t.TempDir())
		if err != nil {
			t.Fatalf("buildCommand(%q): %v", tc.agent, err)
		}
		if !strings.Contains(cmd.Path, tc.wantName) && !strings.HasSuffix(cmd.Args[0], tc.wantName) {
			t.Errorf("agent %q: expected binary name %q, got path=%q args[0]=%q", tc.agent, tc.wantName, cmd.Path, cmd.Args[0])
		}
		found := false
		for _, a := range cmd.Args {
			if a == tc.wantArg {
				found = true
			}
		}
		if !found {
			t.Errorf("agent %q: expected arg %q in %v", tc.agent, tc.wantArg, cmd.Args)
		}
		if cmd.Args[len(cmd.Args)-1] != "do the thing" {
			t.Errorf("agent %q: expected prompt as final arg, got %v", tc.agent, cmd.Args)
		}
	}
}

func TestBuildCommandStripsAPIKeysFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-should-not-leak")
	t.Setenv("OPENAI_API_KEY", "sk-openai-should-not-leak")
	t.Setenv("SOME_OTHER_VAR", "keep-me")

	cmd, err := buildCommand(context.Background(), kanban.AgentClaude, "p", t.TempDir())
	if err != nil {
		t.Fatalf("buildCommand: %v", err)
	}
	for _, kv := range cmd.Env {
		if strings.HasPrefix(kv, "ANTHROPIC_API_KEY=") || strings.HasPrefix(kv, "OPENAI_API_KEY=") {
			t.Fatalf("expected API key env vars stripped, found %q", kv)
		}
	}
	keptOther := false
	for _, kv := range cmd.Env {
		if strings.HasPrefix(kv, "SOME_OTHER_VAR=") {
			keptOther = true
		}
	}
	if !keptOther {
		t.Fatal("expected non-API-key env vars to survive sanitization")
	}
}

func TestSanitizedEnvStripsAllFourKeys(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "a")
	t.Setenv("OPENAI_API_KEY", "b")
	t.Setenv("GEMINI_API_KEY", "c")
	t.Setenv("GOOGLE_API_KEY", "d")

	env := sanitizedEnv()
	for _, key := range apiKeyEnvVars {
		for _, kv := range env {
			if strings.HasPrefix(kv, key+"=") {
				t.Fatalf("expected %s stripped from sanitized env", key)
			}
		}
	}
}

func TestGenerateBranchNameDerivesSlugFromTitle(t *testing.T) {
	got := GenerateBranchName("agent/", "card-123", "Fix the Flaky Test!")
	if !strings.HasPrefix(got, "agent/fix-the-flaky-test-") {
		t.Fatalf("expected prefix+slug(title) preserved, got %q", got)
	}
	if !strings.HasSuffix(got, "-card-123") {
		t.Fatalf("expected cardID as suffix, got %q", got)
	}
	if strings.Contains(got, "!") || strings.Contains(got, " ") {
		t.Fatalf("expected unsafe characters stripped, got %q", got)
	}
	if got != strings.ToLower(got) {
		t.Fatalf("expected lowercased branch name, got %q", got)
	}
}

func TestGenerateBranchNameTruncatesLongTitles(t *testing.T) {
	longTitle := strings.Repeat("word ", 30)
	got := GenerateBranchName("", "c1", longTitle)
	if !strings.HasSuffix(got, "-c1") {
		t.Fatalf("expected cardID preserved as suffix, got %q", got)
	}
	if len(got) > 40+len("-c1") {
		t.Fatalf("expected title slug truncated to 40 chars, got %q (len %d)", got, len(got))
	}
	if strings.HasSuffix(strings.TrimSuffix(got, "-c1"), "-") {
		t.Fatalf("expected trailing dash trimmed after truncation, got %q", got)
	}
}

func TestSanitizeBranchNameStripsConventionalPrefixesAndUnsafeChars(t *testing.T) {
	cases := map[string]string{
		"feat/add widget":  "add-widget",
		"fix/null pointer": "null-pointer",
		"chore/bump deps":  "bump-deps",
		"weird@branch#1":   "weird-branch-1",
	}
	for in, want := range cases {
		got := sanitizeBranchName(in)
		if got != want {
			t.Errorf("sanitizeBranchName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLogRingTailAndEviction(t *testing.T) {
	ring := NewLogRing()
	for i := 0; i < logRingCapacity+10; i++ {
		ring.Append("line " + strconv.Itoa(i))
	}
	lines := ring.Lines()
	if len(lines) != logRingCapacity {
		t.Fatalf("expected ring capped at %d lines, got %d", logRingCapacity, len(lines))
	}

	tail := ring.Tail(3)
	if len(tail) != 3 {
		t.Fatalf("expected 3 tail lines, got %d", len(tail))
	}
	if tail[2] != lines[len(lines)-1] {
		t.Fatalf("expected tail to match the most recent lines, got %v vs last=%q", tail, lines[len(lines)-1])
	}
}

func TestLogRingTailClampsToAvailableLines(t *testing.T) {
	ring := NewLogRing()
	ring.Append("only one line")
	tail := ring.Tail(50)
	if len(tail) != 1 {
		t.Fatalf("expected tail clamped to 1 available line, got %d", len(tail))
	}
}

func TestAgentProcessSnapshotStripsCancel(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	proc := &AgentProcess{CardID: "c1", cancel: cancel}
	snap := proc.Snapshot()
	if snap.CardID != "c1" {
		t.Fatalf("expected snapshot to preserve fields, got %+v", snap)
	}
	if snap.cancel != nil {
		t.Fatal("expected snapshot to have its cancel func stripped")
	}
	cancel()
}

func TestParseResultFrameExtractsUsageAndCost(t *testing.T) {
	proc := &AgentProcess{CardID: "c1", ProjectID: "p1", Agent: kanban.AgentClaude}
	usage := &store.TokenUsage{}
	line := `{"type":"result","total_cost_usd":0.42,"modelUsage":{"claude-3":{"input_tokens":100,"output_tokens":50,"cache_read_input_tokens":10,"cache_creation_input_tokens":5}}}`

	parseResultFrame(line, proc, usage)

	if usage.CardID != "c1" || usage.ProjectID != "p1" || usage.Agent != "claude" {
		t.Fatalf("expected usage identifiers populated from proc, got %+v", usage)
	}
	if usage.CostUSD != 0.42 {
		t.Fatalf("expected cost 0.42, got %v", usage.CostUSD)
	}
	if usage.InputTokens != 100 || usage.OutputTokens != 50 || usage.CacheReadTokens != 10 || usage.CacheWriteTokens != 5 {
		t.Fatalf("expected token counts copied from frame, got %+v", usage)
	}
}

func TestParseResultFrameIgnoresNonResultLines(t *testing.T) {
	proc := &AgentProcess{CardID: "c1"}
	usage := &store.TokenUsage{}

	parseResultFrame("not json at all", proc, usage)
	parseResultFrame(`{"type":"assistant","text":"thinking..."}`, proc, usage)

	if usage.CostUSD != 0 || usage.InputTokens != 0 {
		t.Fatalf("expected non-result lines to leave usage untouched, got %+v", usage)
	}
}

func TestErrorTypesFormatMessages(t *testing.T) {
	errs := []error{
		&ConcurrencyLimitReached{Limit: 3},
		&ProjectBusy{ProjectID: "p1"},
		&CardBusy{CardID: "c1"},
		&NotFound{Kind: "card", ID: "c1"},
		&WorktreeFailed{CardID: "c1", Err: context.DeadlineExceeded},
	}
	for _, err := range errs {
		if err.Error() == "" {
			t.Errorf("expected non-empty message for %T", err)
		}
	}

	wf := &WorktreeFailed{CardID: "c1", Err: context.DeadlineExceeded}
	if wf.Unwrap() != context.DeadlineExceeded {
		t.Error("expected WorktreeFailed to unwrap to its underlying error")
	}
}
