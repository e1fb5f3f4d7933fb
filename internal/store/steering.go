package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/twlines/maslow-sub003/internal/steering"
)

// SteeringCorrection is an operator-authored standing instruction fed
// into buildPromptBlock (spec §4.D) — scoped to a project, or global
// when projectId is empty, and filed under a domain label such as
// "style" or "testing".
type SteeringCorrection struct {
	ID        string
	ProjectID string
	Domain    string
	Text      string
	Active    bool
	CreatedAt time.Time
}

// CreateSteeringCorrection inserts a new correction, active by default.
func (s *Store) CreateSteeringCorrection(c *SteeringCorrection) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO steering_corrections (id, project_id, domain, text, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, nullableString(c.ProjectID), c.Domain, c.Text, c.Active, c.CreatedAt)
	return wrapStorage("create steering correction", err)
}

// ActiveSteeringCorrections returns every active correction that applies
// to a project: global corrections (projectId IS NULL) plus
// project-scoped ones, ordered oldest first so later corrections read
// as refinements of earlier ones.
func (s *Store) ActiveSteeringCorrections(projectID string) ([]SteeringCorrection, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, domain, text, active, created_at
		FROM steering_corrections
		WHERE active = 1 AND (project_id IS NULL OR project_id = ?)
		ORDER BY created_at ASC
	`, projectID)
	if err != nil {
		return nil, wrapStorage("active steering corrections", err)
	}
	defer rows.Close()

	var out []SteeringCorrection
	for rows.Next() {
		var c SteeringCorrection
		var projID, domain, text *string
		if err := rows.Scan(&c.ID, &projID, &domain, &text, &c.Active, &c.CreatedAt); err != nil {
			return nil, wrapStorage("scan steering correction", err)
		}
		if projID != nil {
			c.ProjectID = *projID
		}
		if domain != nil {
			c.Domain = *domain
		}
		if text != nil {
			c.Text = *text
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeactivateSteeringCorrection retires a correction without deleting
// its audit trail.
func (s *Store) DeactivateSteeringCorrection(id string) error {
	_, err := s.db.Exec(`UPDATE steering_corrections SET active = 0 WHERE id = ?`, id)
	return wrapStorage("deactivate steering correction", err)
}

// ActiveCorrections implements internal/steering.CorrectionSource.
func (s *Store) ActiveCorrections(projectID string) ([]steering.Correction, error) {
	rows, err := s.ActiveSteeringCorrections(projectID)
	if err != nil {
		return nil, err
	}
	out := make([]steering.Correction, 0, len(rows))
	for _, r := range rows {
		out = append(out, steering.Correction{Domain: r.Domain, Text: r.Text})
	}
	return out, nil
}
