package steering

import (
	"errors"
	"strings"
	"testing"
)

type fakeCorrectionSource struct {
	corrections []Correction
	err         error
}

func (f *fakeCorrectionSource) ActiveCorrections(projectID string) ([]Correction, error) {
	return f.corrections, f.err
}

func TestBuildPromptBlockEmptyWhenNoCorrections(t *testing.T) {
	engine, err := NewEngine(&fakeCorrectionSource{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	block, err := engine.BuildPromptBlock("p1")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if block != "" {
		t.Fatalf("expected empty block with no corrections, got %q", block)
	}
}

func TestBuildPromptBlockGroupsByDomainAlphabetically(t *testing.T) {
	source := &fakeCorrectionSource{corrections: []Correction{
		{Domain: "testing", Text: "always use table-driven tests"},
		{Domain: "api design", Text: "never break backwards compatibility"},
		{Domain: "testing", Text: "avoid sleep-based waits"},
	}}
	engine, err := NewEngine(source)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	block, err := engine.BuildPromptBlock("p1")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	apiIdx := strings.Index(block, "Api Design")
	testingIdx := strings.Index(block, "Testing")
	if apiIdx == -1 || testingIdx == -1 {
		t.Fatalf("expected both domain headings rendered, got:\n%s", block)
	}
	if apiIdx > testingIdx {
		t.Fatalf("expected domains sorted alphabetically (api design before testing), got:\n%s", block)
	}
	if !strings.Contains(block, "always use table-driven tests") || !strings.Contains(block, "avoid sleep-based waits") {
		t.Fatalf("expected both testing-domain corrections rendered, got:\n%s", block)
	}
}

func TestBuildPromptBlockDefaultsUnlabeledDomainToGeneral(t *testing.T) {
	source := &fakeCorrectionSource{corrections: []Correction{{Domain: "", Text: "keep commit messages terse"}}}
	engine, err := NewEngine(source)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	block, err := engine.BuildPromptBlock("p1")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(block, "General") {
		t.Fatalf("expected unlabeled correction grouped under General, got:\n%s", block)
	}
}

func TestBuildPromptBlockPropagatesSourceError(t *testing.T) {
	wantErr := errors.New("store unavailable")
	engine, err := NewEngine(&fakeCorrectionSource{err: wantErr})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_, err = engine.BuildPromptBlock("p1")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected source error to propagate, got %v", err)
	}
}
