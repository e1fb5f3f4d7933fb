package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/twlines/maslow-sub003/internal/kanban"
)

const maxDerivedTitleLen = 60

// TaskBrief is the intake payload for submitTaskBrief: a free-form
// brief dropped onto a project's backlog, optionally triggering an
// immediate tick instead of waiting for the next 10-minute firing.
type TaskBrief struct {
	ProjectID string
	Text      string
	Immediate bool
}

// SubmitTaskBrief creates a backlog card from a free-form brief,
// deriving its title from the first line (or first 60 characters), and
// optionally triggers an immediate tick so the new card can be picked
// up without waiting for the next scheduled firing.
func (s *Scheduler) SubmitTaskBrief(ctx context.Context, brief TaskBrief) (*kanban.Card, error) {
	projectID := brief.ProjectID
	if projectID == "" {
		active, err := s.firstActiveProject()
		if err != nil {
			return nil, err
		}
		projectID = active
	}
	card := &kanban.Card{
		ProjectID:   projectID,
		Title:       deriveTitle(brief.Text),
		Description: brief.Text,
	}
	if err := s.queue.CreateCard(card); err != nil {
		return nil, err
	}
	if brief.Immediate {
		go s.tick(ctx)
	}
	return card, nil
}

func (s *Scheduler) firstActiveProject() (string, error) {
	projects, err := s.store.ListProjects()
	if err != nil {
		return "", err
	}
	for _, p := range projects {
		if p.Status == kanban.ProjectActive {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("submitTaskBrief: no projectId given and no active project exists")
}

func deriveTitle(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len(text) > maxDerivedTitleLen {
		text = text[:maxDerivedTitleLen]
	}
	return strings.TrimSpace(text)
}
