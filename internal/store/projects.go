package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/twlines/maslow-sub003/internal/kanban"
)

// CreateProject inserts a new project in the active state.
func (s *Store) CreateProject(p *kanban.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Status == "" {
		p.Status = kanban.ProjectActive
	}
	if p.AgentTimeoutMinutes == 0 {
		p.AgentTimeoutMinutes = 30
	}

	_, err := s.db.Exec(`
		INSERT INTO projects (id, name, description, status, color, agent_timeout_minutes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Description, p.Status, p.Color, p.AgentTimeoutMinutes, p.CreatedAt, p.UpdatedAt)
	return wrapStorage("create project", err)
}

// GetProject retrieves a project by id.
func (s *Store) GetProject(id string) (*kanban.Project, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, status, color, agent_timeout_minutes, created_at, updated_at
		FROM projects WHERE id = ?
	`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "project", ID: id}
	}
	if err != nil {
		return nil, wrapStorage("get project", err)
	}
	return p, nil
}

// ListProjects returns all projects ordered by updatedAt descending
// (soft ordering, per the data model).
func (s *Store) ListProjects() ([]kanban.Project, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, status, color, agent_timeout_minutes, created_at, updated_at
		FROM projects ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, wrapStorage("list projects", err)
	}
	defer rows.Close()

	var out []kanban.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, wrapStorage("scan project", err)
		}
		out = append(out, *p)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(r rowScanner) (*kanban.Project, error) {
	var p kanban.Project
	var description, color sql.NullString
	if err := r.Scan(&p.ID, &p.Name, &description, &p.Status, &color, &p.AgentTimeoutMinutes, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Description = description.String
	p.Color = color.String
	return &p, nil
}
