package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Conversation groups messages exchanged with a project's collaborators.
// At most one conversation per project may be active at a time.
type Conversation struct {
	ID             string
	ProjectID      string
	Status         string
	Summary        string
	SessionID      string
	MessageCount   int
	FirstMessageAt *time.Time
	LastMessageAt  *time.Time
}

// Message is one turn of a conversation. Content is stored encrypted;
// callers always deal with plaintext, never with the ciphertext column.
type Message struct {
	ID             string
	ProjectID      string
	ConversationID string
	Role           string
	Content        string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// OpenConversation starts a new active conversation for a project,
// failing with a ConflictError if one is already active — the "at most
// one active conversation per projectId" invariant.
func (s *Store) OpenConversation(projectID string) (*Conversation, error) {
	var existing string
	err := s.db.QueryRow(`
		SELECT id FROM conversations WHERE project_id = ? AND status = 'active' LIMIT 1
	`, projectID).Scan(&existing)
	if err == nil {
		return nil, &ConflictError{Entity: "conversation", Reason: "a conversation is already active for this project"}
	}
	if err != sql.ErrNoRows {
		return nil, wrapStorage("check active conversation", err)
	}

	c := &Conversation{ID: uuid.NewString(), ProjectID: projectID, Status: "active"}
	_, insErr := s.db.Exec(`
		INSERT INTO conversations (id, project_id, status, message_count) VALUES (?, ?, 'active', 0)
	`, c.ID, c.ProjectID)
	if insErr != nil {
		return nil, wrapStorage("open conversation", insErr)
	}
	return c, nil
}

// CloseConversation marks a conversation closed.
func (s *Store) CloseConversation(id string) error {
	_, err := s.db.Exec(`UPDATE conversations SET status = 'closed' WHERE id = ?`, id)
	return wrapStorage("close conversation", err)
}

// AppendMessage encrypts and stores a message, bumping the parent
// conversation's counters.
func (s *Store) AppendMessage(m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	ciphertext, nonce, err := s.cipher.encrypt([]byte(m.Content))
	if err != nil {
		return wrapStorage("encrypt message", err)
	}
	var metadata []byte
	if m.Metadata != nil {
		metadata, err = json.Marshal(m.Metadata)
		if err != nil {
			return wrapStorage("marshal message metadata", err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return wrapStorage("append message begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO messages (id, project_id, conversation_id, role, content_ciphertext, nonce, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, nullableString(m.ProjectID), m.ConversationID, m.Role, ciphertext, nonce, metadata, m.CreatedAt); err != nil {
		return wrapStorage("insert message", err)
	}
	if _, err := tx.Exec(`
		UPDATE conversations SET
			message_count = message_count + 1,
			first_message_at = COALESCE(first_message_at, ?),
			last_message_at = ?
		WHERE id = ?
	`, m.CreatedAt, m.CreatedAt, m.ConversationID); err != nil {
		return wrapStorage("bump conversation counters", err)
	}
	return tx.Commit()
}

// ListMessages returns a conversation's messages, oldest first, with
// content decrypted.
func (s *Store) ListMessages(conversationID string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, conversation_id, role, content_ciphertext, nonce, metadata, created_at
		FROM messages WHERE conversation_id = ? ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, wrapStorage("list messages", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var projectID sql.NullString
		var ciphertext, nonce, metadata []byte
		if err := rows.Scan(&m.ID, &projectID, &m.ConversationID, &m.Role, &ciphertext, &nonce, &metadata, &m.CreatedAt); err != nil {
			return nil, wrapStorage("scan message", err)
		}
		m.ProjectID = projectID.String
		plaintext, err := s.cipher.decrypt(ciphertext, nonce)
		if err != nil {
			return nil, wrapStorage("decrypt message", err)
		}
		m.Content = string(plaintext)
		if len(metadata) > 0 {
			json.Unmarshal(metadata, &m.Metadata)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
