package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/twlines/maslow-sub003/internal/kanban"
	"github.com/twlines/maslow-sub003/internal/orchestrator"
	"github.com/twlines/maslow-sub003/internal/store"
)

// synthesize merges every branch_passed card into the integration
// branch. The merge protocol itself is policy-pluggable (see
// orchestrator.MergeStrategy); this job's contract is only that it
// never runs concurrent with itself and never operates on the same
// card twice within one run.
func (s *Scheduler) synthesize(ctx context.Context) {
	if !s.synthInProgress.CompareAndSwap(false, true) {
		s.logger.Debug().Msg("heartbeat.skipped: synthesize already in progress")
		s.hub.Publish("heartbeat.skipped", map[string]string{"job": "synthesize"})
		return
	}
	defer s.synthInProgress.Store(false)

	candidates, err := s.store.ListCardsByVerificationStatus(kanban.VerificationBranchPassed)
	if err != nil {
		s.logger.Error().Err(err).Msg("synthesize: list branch_passed cards")
		return
	}

	operated := make(map[string]bool, len(candidates))
	for _, card := range candidates {
		if operated[card.ID] {
			continue
		}
		operated[card.ID] = true
		s.synthesizeCard(ctx, card)
	}
}

func (s *Scheduler) synthesizeCard(ctx context.Context, card kanban.Card) {
	branch := orchestrator.GenerateBranchName("agent/"+string(card.AssignedAgent)+"/", shortID(card.ID), card.Title)
	commitMessage := fmt.Sprintf("merge: %s", card.Title)

	mergeErr := s.orch.Merge().Merge(ctx, branch, commitMessage)

	report := &store.ProjectDocument{
		ProjectID: card.ProjectID,
		Type:      "merge_report",
		Title:     "Merge report: " + card.Title,
		Content:   mergeReportBody(card, branch, mergeErr),
	}
	if err := s.store.CreateDocument(report); err != nil {
		s.logger.Error().Err(err).Msg("synthesize: write merge report")
	}

	if mergeErr != nil {
		card.VerificationStatus = kanban.VerificationMergeFailed
		s.hub.Publish("synth.merge_failed", map[string]string{"cardId": card.ID, "branch": branch, "error": mergeErr.Error()})
		s.auditSynth(card.ID, "synth.merge_failed", map[string]any{"branch": branch, "error": mergeErr.Error()})
	} else {
		card.VerificationStatus = kanban.VerificationMergePassed
		s.hub.Publish("synth.merge_passed", map[string]string{"cardId": card.ID, "branch": branch})
		s.auditSynth(card.ID, "synth.merge_passed", map[string]any{"branch": branch})
	}

	if err := s.store.UpdateCard(&card); err != nil {
		s.logger.Error().Err(err).Str("cardId", card.ID).Msg("synthesize: update card verification status")
	}
}

func (s *Scheduler) auditSynth(cardID, action string, metadata map[string]any) {
	if err := s.store.InsertAudit(&store.AuditEntry{
		EntityType: "card",
		EntityID:   cardID,
		Action:     action,
		Metadata:   metadata,
	}); err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("synthesize: audit write failed")
	}
}

func mergeReportBody(card kanban.Card, branch string, mergeErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Merge report: %s\n\n", card.Title)
	fmt.Fprintf(&b, "- card: %s\n", card.ID)
	fmt.Fprintf(&b, "- branch: %s\n", branch)
	if mergeErr != nil {
		fmt.Fprintf(&b, "- status: failed\n- error: %s\n", mergeErr.Error())
	} else {
		b.WriteString("- status: passed\n")
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
