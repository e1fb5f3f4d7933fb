package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Decision is a recorded architectural or product decision with its
// reasoning, alternatives considered, and tradeoffs — grounded on the
// teacher's PM decision logging (background.go performPMCheckins).
type Decision struct {
	ID           string
	ProjectID    string
	Title        string
	Reasoning    string
	Alternatives string
	Tradeoffs    string
	CreatedAt    time.Time
	RevisedAt    *time.Time
}

// CreateDecision inserts a new decision record.
func (s *Store) CreateDecision(d *Decision) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO decisions (id, project_id, title, reasoning, alternatives, tradeoffs, created_at, revised_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.ProjectID, d.Title, d.Reasoning, d.Alternatives, d.Tradeoffs, d.CreatedAt, d.RevisedAt)
	return wrapStorage("create decision", err)
}

// ListDecisions returns a project's decisions, newest first.
func (s *Store) ListDecisions(projectID string) ([]Decision, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, title, reasoning, alternatives, tradeoffs, created_at, revised_at
		FROM decisions WHERE project_id = ? ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, wrapStorage("list decisions", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		var reasoning, alternatives, tradeoffs sql.NullString
		var revisedAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.Title, &reasoning, &alternatives, &tradeoffs, &d.CreatedAt, &revisedAt); err != nil {
			return nil, wrapStorage("scan decision", err)
		}
		d.Reasoning, d.Alternatives, d.Tradeoffs = reasoning.String, alternatives.String, tradeoffs.String
		if revisedAt.Valid {
			t := revisedAt.Time
			d.RevisedAt = &t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ReviseDecision records a revision timestamp on an existing decision,
// used when a later decision supersedes an earlier one's reasoning.
func (s *Store) ReviseDecision(id string, reasoning string) error {
	now := time.Now()
	_, err := s.db.Exec(`UPDATE decisions SET reasoning = ?, revised_at = ? WHERE id = ?`, reasoning, now, id)
	return wrapStorage("revise decision", err)
}
