package store

import (
	"time"

	"github.com/google/uuid"
)

// TokenUsage is one append-only record of token consumption for an agent
// run, grounded on the teacher's token/cost tracking in internal/db/store.go.
type TokenUsage struct {
	ID               string
	CardID           string
	ProjectID        string
	Agent            string
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
	CostUSD          float64
	CreatedAt        time.Time
}

// InsertTokenUsage appends a token usage record.
func (s *Store) InsertTokenUsage(u *TokenUsage) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO token_usage (
			id, card_id, project_id, agent, input_tokens, output_tokens,
			cache_read_tokens, cache_write_tokens, cost_usd, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, nullableString(u.CardID), u.ProjectID, u.Agent, u.InputTokens, u.OutputTokens,
		u.CacheReadTokens, u.CacheWriteTokens, u.CostUSD, u.CreatedAt)
	return wrapStorage("insert token usage", err)
}

// TotalCostForProject sums cost across every token usage record for a
// project, used by the stats surface in §6.
func (s *Store) TotalCostForProject(projectID string) (float64, error) {
	var total float64
	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(cost_usd), 0) FROM token_usage WHERE project_id = ?
	`, projectID).Scan(&total)
	return total, wrapStorage("total cost for project", err)
}
