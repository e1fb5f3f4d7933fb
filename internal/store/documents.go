package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// ProjectDocument is a versioned artifact attached to a project (PRD,
// architecture note, runbook) — grounded on the teacher's document
// handling in internal/web/wizard.go, generalized to a plain CRUD table.
type ProjectDocument struct {
	ID        string
	ProjectID string
	Type      string
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateDocument inserts a new project document.
func (s *Store) CreateDocument(d *ProjectDocument) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	_, err := s.db.Exec(`
		INSERT INTO project_documents (id, project_id, type, title, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.ProjectID, d.Type, d.Title, d.Content, d.CreatedAt, d.UpdatedAt)
	return wrapStorage("create document", err)
}

// GetDocument retrieves a project document by id.
func (s *Store) GetDocument(id string) (*ProjectDocument, error) {
	row := s.db.QueryRow(`
		SELECT id, project_id, type, title, content, created_at, updated_at
		FROM project_documents WHERE id = ?
	`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "document", ID: id}
	}
	if err != nil {
		return nil, wrapStorage("get document", err)
	}
	return d, nil
}

// ListDocumentsByType lists a project's documents of a given type, most
// recently updated first.
func (s *Store) ListDocumentsByType(projectID, docType string) ([]ProjectDocument, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, type, title, content, created_at, updated_at
		FROM project_documents WHERE project_id = ? AND type = ? ORDER BY updated_at DESC
	`, projectID, docType)
	if err != nil {
		return nil, wrapStorage("list documents by type", err)
	}
	defer rows.Close()

	var out []ProjectDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, wrapStorage("scan document", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// UpdateDocument overwrites a document's title and content.
func (s *Store) UpdateDocument(d *ProjectDocument) error {
	d.UpdatedAt = time.Now()
	_, err := s.db.Exec(`
		UPDATE project_documents SET title = ?, content = ?, updated_at = ? WHERE id = ?
	`, d.Title, d.Content, d.UpdatedAt, d.ID)
	return wrapStorage("update document", err)
}

func scanDocument(r rowScanner) (*ProjectDocument, error) {
	var d ProjectDocument
	var title, content sql.NullString
	if err := r.Scan(&d.ID, &d.ProjectID, &d.Type, &title, &content, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Title = title.String
	d.Content = content.String
	return &d, nil
}
