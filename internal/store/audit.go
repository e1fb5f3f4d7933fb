package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is an append-only record of a state change, grounded on the
// teacher's audit trail (agents/audit.go, internal/db/store.go audit CRUD).
type AuditEntry struct {
	ID         string
	EntityType string
	EntityID   string
	Action     string
	Metadata   map[string]any
	Actor      string
	CreatedAt  time.Time
}

// InsertAudit appends an audit entry. Audit rows are never updated or
// deleted by application code.
func (s *Store) InsertAudit(e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	var metadata []byte
	if e.Metadata != nil {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return wrapStorage("marshal audit metadata", err)
		}
	}
	_, err := s.db.Exec(`
		INSERT INTO audit_entries (id, entity_type, entity_id, action, metadata, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.EntityType, e.EntityID, e.Action, metadata, e.Actor, e.CreatedAt)
	return wrapStorage("insert audit", err)
}

// ListAuditForEntity returns every audit entry for an entity, oldest first.
func (s *Store) ListAuditForEntity(entityType, entityID string) ([]AuditEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, entity_type, entity_id, action, metadata, actor, created_at
		FROM audit_entries WHERE entity_type = ? AND entity_id = ? ORDER BY created_at ASC
	`, entityType, entityID)
	if err != nil {
		return nil, wrapStorage("list audit for entity", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var metadata []byte
		var actor string
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &metadata, &actor, &e.CreatedAt); err != nil {
			return nil, wrapStorage("scan audit", err)
		}
		e.Actor = actor
		if len(metadata) > 0 {
			json.Unmarshal(metadata, &e.Metadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
