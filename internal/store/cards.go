package store

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/twlines/maslow-sub003/internal/kanban"
)

const interactiveOnlyLabel = "interactive-only"

// CreateCard appends a card to the end of its column (default backlog)
// within its project, assigning the next compact position.
func (s *Store) CreateCard(c *kanban.Card) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Column == "" {
		c.Column = kanban.ColumnBacklog
	}
	if c.AgentStatus == "" {
		c.AgentStatus = kanban.AgentStatusIdle
	}
	if c.VerificationStatus == "" {
		c.VerificationStatus = kanban.VerificationUnverified
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now

	var maxPos sql.NullInt64
	if err := s.db.QueryRow(`
		SELECT MAX(position) FROM kanban_cards WHERE project_id = ? AND column = ?
	`, c.ProjectID, c.Column).Scan(&maxPos); err != nil {
		return wrapStorage("next position", err)
	}
	c.Position = int(maxPos.Int64)
	if maxPos.Valid {
		c.Position++
	}

	labels, _ := json.Marshal(c.Labels)
	files, _ := json.Marshal(c.Files)

	_, err := s.db.Exec(`
		INSERT INTO kanban_cards (
			id, project_id, title, description, column, position, labels, priority, files,
			context_snapshot, last_session_id, assigned_agent, agent_status, blocked_reason,
			verification_status, started_at, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.ProjectID, c.Title, c.Description, c.Column, c.Position, labels, c.Priority, files,
		c.ContextSnapshot, c.LastSessionID, nullableString(string(c.AssignedAgent)), c.AgentStatus, c.BlockedReason,
		c.VerificationStatus, c.StartedAt, c.CompletedAt, c.CreatedAt, c.UpdatedAt,
	)
	return wrapStorage("create card", err)
}

// GetCard retrieves a card by id.
func (s *Store) GetCard(id string) (*kanban.Card, error) {
	row := s.db.QueryRow(cardSelect+" WHERE id = ?", id)
	c, err := scanCard(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "card", ID: id}
	}
	if err != nil {
		return nil, wrapStorage("get card", err)
	}
	return c, nil
}

// ListCardsByColumn returns cards in a column ordered by position, paged.
func (s *Store) ListCardsByColumn(projectID string, column kanban.Column, limit, offset int) ([]kanban.Card, error) {
	rows, err := s.db.Query(cardSelect+`
		WHERE project_id = ? AND column = ? ORDER BY position ASC LIMIT ? OFFSET ?
	`, projectID, column, limit, offset)
	if err != nil {
		return nil, wrapStorage("list cards by column", err)
	}
	defer rows.Close()
	return scanCards(rows)
}

// GetNextEligibleCard returns the lowest-priority backlog card not
// labeled interactive-only, or nil if the backlog is empty of eligible
// cards. Ties are broken by createdAt ascending.
func (s *Store) GetNextEligibleCard(projectID string) (*kanban.Card, error) {
	rows, err := s.db.Query(cardSelect+`
		WHERE project_id = ? AND column = ? ORDER BY priority ASC, created_at ASC
	`, projectID, kanban.ColumnBacklog)
	if err != nil {
		return nil, wrapStorage("get next eligible card", err)
	}
	defer rows.Close()

	cards, err := scanCards(rows)
	if err != nil {
		return nil, err
	}
	for i := range cards {
		if !hasLabel(cards[i].Labels, interactiveOnlyLabel) {
			return &cards[i], nil
		}
	}
	return nil, nil
}

// RunningCardForProject returns the card currently agentStatus=running
// for a project, if any — used by spawn gating to enforce "at most one
// running card per project".
func (s *Store) RunningCardForProject(projectID string) (*kanban.Card, error) {
	row := s.db.QueryRow(cardSelect+`
		WHERE project_id = ? AND agent_status = ? LIMIT 1
	`, projectID, kanban.AgentStatusRunning)
	c, err := scanCard(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorage("running card for project", err)
	}
	return c, nil
}

// CountRunning returns the number of cards with agentStatus=running
// across all projects, used to enforce the global concurrency cap.
func (s *Store) CountRunning() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM kanban_cards WHERE agent_status = ?`, kanban.AgentStatusRunning).Scan(&n)
	return n, wrapStorage("count running", err)
}

// ListCardsByAgentStatus returns every card with the given agentStatus,
// used by scheduler reconciliation (running) and the blocked-retry
// sweep (blocked).
func (s *Store) ListCardsByAgentStatus(status kanban.AgentStatus) ([]kanban.Card, error) {
	rows, err := s.db.Query(cardSelect+` WHERE agent_status = ?`, status)
	if err != nil {
		return nil, wrapStorage("list by agent status", err)
	}
	defer rows.Close()
	return scanCards(rows)
}

// ListCardsByVerificationStatus returns every card at a given
// verification status across all projects, used by the synthesize job
// to pick branch_passed cards ready for merge.
func (s *Store) ListCardsByVerificationStatus(status kanban.VerificationStatus) ([]kanban.Card, error) {
	rows, err := s.db.Query(cardSelect+` WHERE verification_status = ?`, status)
	if err != nil {
		return nil, wrapStorage("list by verification status", err)
	}
	defer rows.Close()
	return scanCards(rows)
}

// UpdateCard persists the full card row (used after state-machine
// transitions computed by internal/kanban.Queue).
func (s *Store) UpdateCard(c *kanban.Card) error {
	c.UpdatedAt = time.Now()
	labels, _ := json.Marshal(c.Labels)
	files, _ := json.Marshal(c.Files)

	_, err := s.db.Exec(`
		UPDATE kanban_cards SET
			title = ?, description = ?, column = ?, position = ?, labels = ?, priority = ?, files = ?,
			context_snapshot = ?, last_session_id = ?, assigned_agent = ?, agent_status = ?, blocked_reason = ?,
			verification_status = ?, started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`,
		c.Title, c.Description, c.Column, c.Position, labels, c.Priority, files,
		c.ContextSnapshot, c.LastSessionID, nullableString(string(c.AssignedAgent)), c.AgentStatus, c.BlockedReason,
		c.VerificationStatus, c.StartedAt, c.CompletedAt, c.UpdatedAt, c.ID,
	)
	return wrapStorage("update card", err)
}

// MoveCard relocates a card to a new column/position, shifting siblings
// so that positions within each affected column stay a compact 0..n-1
// sequence. Ties among cards bumped out of their slot are broken by
// updatedAt ascending, matching the contract in §4.A.
func (s *Store) MoveCard(cardID string, column kanban.Column, position int) error {
	c, err := s.GetCard(cardID)
	if err != nil {
		return err
	}
	oldColumn, oldPosition := c.Column, c.Position

	tx, err := s.db.Begin()
	if err != nil {
		return wrapStorage("move card begin", err)
	}
	defer tx.Rollback()

	if oldColumn == column {
		if position < oldPosition {
			if _, err := tx.Exec(`
				UPDATE kanban_cards SET position = position + 1, updated_at = ?
				WHERE project_id = ? AND column = ? AND position >= ? AND position < ? AND id != ?
			`, time.Now(), c.ProjectID, column, position, oldPosition, cardID); err != nil {
				return wrapStorage("shift up", err)
			}
		} else if position > oldPosition {
			if _, err := tx.Exec(`
				UPDATE kanban_cards SET position = position - 1, updated_at = ?
				WHERE project_id = ? AND column = ? AND position <= ? AND position > ? AND id != ?
			`, time.Now(), c.ProjectID, column, position, oldPosition, cardID); err != nil {
				return wrapStorage("shift down", err)
			}
		}
	} else {
		// Close the gap left behind in the old column.
		if _, err := tx.Exec(`
			UPDATE kanban_cards SET position = position - 1, updated_at = ?
			WHERE project_id = ? AND column = ? AND position > ? AND id != ?
		`, time.Now(), c.ProjectID, oldColumn, oldPosition, cardID); err != nil {
			return wrapStorage("close gap", err)
		}
		// Open a slot in the new column.
		if _, err := tx.Exec(`
			UPDATE kanban_cards SET position = position + 1, updated_at = ?
			WHERE project_id = ? AND column = ? AND position >= ? AND id != ?
		`, time.Now(), c.ProjectID, column, position, cardID); err != nil {
			return wrapStorage("open slot", err)
		}
	}

	if _, err := tx.Exec(`
		UPDATE kanban_cards SET column = ?, position = ?, updated_at = ? WHERE id = ?
	`, column, position, time.Now(), cardID); err != nil {
		return wrapStorage("relocate card", err)
	}

	return tx.Commit()
}

const cardSelect = `
	SELECT id, project_id, title, description, column, position, labels, priority, files,
		context_snapshot, last_session_id, assigned_agent, agent_status, blocked_reason,
		verification_status, started_at, completed_at, created_at, updated_at
	FROM kanban_cards
`

func scanCard(r rowScanner) (*kanban.Card, error) {
	var c kanban.Card
	var labels, files sql.NullString
	var description, snapshot, sessionID, assignedAgent, blockedReason sql.NullString
	var startedAt, completedAt sql.NullTime

	err := r.Scan(
		&c.ID, &c.ProjectID, &c.Title, &description, &c.Column, &c.Position, &labels, &c.Priority, &files,
		&snapshot, &sessionID, &assignedAgent, &c.AgentStatus, &blockedReason,
		&c.VerificationStatus, &startedAt, &completedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Description = description.String
	c.ContextSnapshot = snapshot.String
	c.LastSessionID = sessionID.String
	c.AssignedAgent = kanban.AgentKind(assignedAgent.String)
	c.BlockedReason = blockedReason.String
	if labels.Valid {
		json.Unmarshal([]byte(labels.String), &c.Labels)
	}
	if files.Valid {
		json.Unmarshal([]byte(files.String), &c.Files)
	}
	if startedAt.Valid {
		t := startedAt.Time
		c.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	return &c, nil
}

func scanCards(rows *sql.Rows) ([]kanban.Card, error) {
	var out []kanban.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func hasLabel(labels []string, target string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, target) {
			return true
		}
	}
	return false
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
