package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/twlines/maslow-sub003/internal/kanban"
)

// runDailyDigest summarizes each active project's board state and
// publishes it over the hub for any subscribed chat/notification
// surface to relay.
func (s *Scheduler) runDailyDigest() {
	s.runChecklistJob("heartbeat.daily_digest", func(p kanban.Project) (string, error) {
		backlog, inProgress, done, err := s.columnCounts(p.ID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s: %d backlog, %d in progress, %d done", p.Name, backlog, inProgress, done), nil
	})
}

// runMorningBriefing reports what's queued to run today: the next
// eligible backlog card per active project.
func (s *Scheduler) runMorningBriefing() {
	s.runChecklistJob("heartbeat.morning_briefing", func(p kanban.Project) (string, error) {
		next, err := s.queue.GetNextCard(p.ID)
		if err != nil {
			return "", err
		}
		if next == nil {
			return fmt.Sprintf("%s: backlog empty", p.Name), nil
		}
		return fmt.Sprintf("%s: next up %q", p.Name, next.Title), nil
	})
}

// runEveningReflection reports cards completed today per project.
func (s *Scheduler) runEveningReflection() {
	s.runChecklistJob("heartbeat.evening_reflection", func(p kanban.Project) (string, error) {
		done, err := s.store.ListCardsByColumn(p.ID, kanban.ColumnDone, 1000, 0)
		if err != nil {
			return "", err
		}
		today := 0
		now := time.Now()
		for _, c := range done {
			if c.CompletedAt != nil && sameDay(*c.CompletedAt, now) {
				today++
			}
		}
		return fmt.Sprintf("%s: %d cards completed today", p.Name, today), nil
	})
}

// runDeadlineScan flags blocked cards that have been sitting
// unresolved for multiple retry windows, a signal that the blocked
// reason needs human attention rather than another skipToBack.
func (s *Scheduler) runDeadlineScan() {
	blocked, err := s.store.ListCardsByAgentStatus(kanban.AgentStatusBlocked)
	if err != nil {
		s.logger.Error().Err(err).Msg("deadline scan: list blocked cards")
		return
	}
	stale := time.Duration(s.cfg.BlockedRetryMinutes) * time.Minute * 3
	var flagged []string
	for _, c := range blocked {
		if time.Since(c.UpdatedAt) >= stale {
			flagged = append(flagged, c.ID)
		}
	}
	if len(flagged) > 0 {
		s.hub.Publish("heartbeat.deadline_scan", map[string]any{"staleCardIds": flagged})
	}
}

// runChecklistJob iterates active projects, computing a one-line
// report per project and publishing the joined digest over the hub.
func (s *Scheduler) runChecklistJob(topic string, report func(kanban.Project) (string, error)) {
	projects, err := s.store.ListProjects()
	if err != nil {
		s.logger.Error().Err(err).Str("job", topic).Msg("checklist job: list projects")
		return
	}
	var lines []string
	for _, p := range projects {
		if p.Status != kanban.ProjectActive {
			continue
		}
		line, err := report(p)
		if err != nil {
			s.logger.Warn().Err(err).Str("projectId", p.ID).Str("job", topic).Msg("checklist job: project report failed")
			continue
		}
		lines = append(lines, line)
	}
	s.hub.Publish(topic, strings.Join(lines, "\n"))
}

func (s *Scheduler) columnCounts(projectID string) (backlog, inProgress, done int, err error) {
	b, err := s.store.ListCardsByColumn(projectID, kanban.ColumnBacklog, 10000, 0)
	if err != nil {
		return 0, 0, 0, err
	}
	ip, err := s.store.ListCardsByColumn(projectID, kanban.ColumnInProgress, 10000, 0)
	if err != nil {
		return 0, 0, 0, err
	}
	d, err := s.store.ListCardsByColumn(projectID, kanban.ColumnDone, 10000, 0)
	if err != nil {
		return 0, 0, 0, err
	}
	return len(b), len(ip), len(d), nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
