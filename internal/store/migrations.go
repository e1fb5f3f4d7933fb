package store

// migration is one additive, idempotent schema step. Grounded on the
// teacher's internal/db/sqlite.go: a plain ordered slice of raw SQL,
// each one recorded in schema_migrations once applied. No destructive
// migrations; new columns are added to existing tables, not retrofitted
// in place.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
			CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT,
				status TEXT NOT NULL DEFAULT 'active',
				color TEXT,
				agent_timeout_minutes INTEGER NOT NULL DEFAULT 30,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			CREATE TABLE IF NOT EXISTS kanban_cards (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				description TEXT,
				column TEXT NOT NULL DEFAULT 'backlog',
				position INTEGER NOT NULL DEFAULT 0,
				labels TEXT,
				priority INTEGER NOT NULL DEFAULT 100,
				files TEXT,
				context_snapshot TEXT,
				last_session_id TEXT,
				assigned_agent TEXT,
				agent_status TEXT NOT NULL DEFAULT 'idle',
				blocked_reason TEXT,
				verification_status TEXT NOT NULL DEFAULT 'unverified',
				started_at DATETIME,
				completed_at DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_cards_project_column ON kanban_cards(project_id, column, position);
			CREATE INDEX IF NOT EXISTS idx_cards_project_status ON kanban_cards(project_id, agent_status);
		`,
	},
	{
		version: 2,
		sql: `
			CREATE TABLE IF NOT EXISTS audit_entries (
				id TEXT PRIMARY KEY,
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				action TEXT NOT NULL,
				metadata TEXT,
				actor TEXT,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_entries(entity_type, entity_id);

			CREATE TABLE IF NOT EXISTS token_usage (
				id TEXT PRIMARY KEY,
				card_id TEXT,
				project_id TEXT NOT NULL,
				agent TEXT NOT NULL,
				input_tokens INTEGER NOT NULL DEFAULT 0,
				output_tokens INTEGER NOT NULL DEFAULT 0,
				cache_read_tokens INTEGER NOT NULL DEFAULT 0,
				cache_write_tokens INTEGER NOT NULL DEFAULT 0,
				cost_usd REAL NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_token_usage_project ON token_usage(project_id);
		`,
	},
	{
		version: 3,
		sql: `
			CREATE TABLE IF NOT EXISTS project_documents (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				type TEXT NOT NULL,
				title TEXT,
				content TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_documents_project_type ON project_documents(project_id, type);

			CREATE TABLE IF NOT EXISTS decisions (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				reasoning TEXT,
				alternatives TEXT,
				tradeoffs TEXT,
				created_at DATETIME NOT NULL,
				revised_at DATETIME
			);
			CREATE INDEX IF NOT EXISTS idx_decisions_project ON decisions(project_id);
		`,
	},
	{
		version: 4,
		sql: `
			CREATE TABLE IF NOT EXISTS conversations (
				id TEXT PRIMARY KEY,
				project_id TEXT REFERENCES projects(id) ON DELETE CASCADE,
				status TEXT NOT NULL DEFAULT 'active',
				summary TEXT,
				session_id TEXT,
				message_count INTEGER NOT NULL DEFAULT 0,
				first_message_at DATETIME,
				last_message_at DATETIME
			);
			CREATE INDEX IF NOT EXISTS idx_conversations_project_status ON conversations(project_id, status);

			CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				project_id TEXT,
				conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				role TEXT NOT NULL,
				content_ciphertext BLOB NOT NULL,
				nonce BLOB NOT NULL,
				metadata TEXT,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);

			CREATE TABLE IF NOT EXISTS message_attachments (
				id TEXT PRIMARY KEY,
				message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
				filename TEXT NOT NULL,
				content_type TEXT,
				size INTEGER NOT NULL DEFAULT 0,
				path TEXT NOT NULL,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_attachments_message ON message_attachments(message_id);
		`,
	},
	{
		version: 5,
		sql: `
			CREATE TABLE IF NOT EXISTS steering_corrections (
				id TEXT PRIMARY KEY,
				project_id TEXT,
				domain TEXT NOT NULL,
				text TEXT NOT NULL,
				active INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_steering_project ON steering_corrections(project_id, active);

			CREATE TABLE IF NOT EXISTS agent_provider_config (
				agent_type TEXT PRIMARY KEY,
				provider TEXT NOT NULL DEFAULT 'anthropic',
				model TEXT NOT NULL DEFAULT 'claude-sonnet-4-20250514',
				system_prompt TEXT,
				updated_at DATETIME
			);

			CREATE TABLE IF NOT EXISTS config (
				key TEXT PRIMARY KEY,
				value TEXT
			);
			INSERT OR IGNORE INTO config (key, value) VALUES
				('max_concurrent_agents', '3'),
				('agent_timeout_minutes', '30'),
				('blocked_retry_minutes', '30');
		`,
	},
	{
		// FTS5 virtual table unifying cards, documents, and decisions for
		// searchFullText. The teacher never built this; modernc.org/sqlite
		// (the teacher's own driver) supports FTS5 natively.
		version: 6,
		sql: `
			CREATE VIRTUAL TABLE IF NOT EXISTS search_index USING fts5(
				entity_type UNINDEXED,
				entity_id UNINDEXED,
				project_id UNINDEXED,
				title,
				body
			);

			CREATE TRIGGER IF NOT EXISTS search_cards_ai AFTER INSERT ON kanban_cards BEGIN
				INSERT INTO search_index(entity_type, entity_id, project_id, title, body)
				VALUES ('card', new.id, new.project_id, new.title, new.description);
			END;
			CREATE TRIGGER IF NOT EXISTS search_cards_au AFTER UPDATE ON kanban_cards BEGIN
				DELETE FROM search_index WHERE entity_type = 'card' AND entity_id = old.id;
				INSERT INTO search_index(entity_type, entity_id, project_id, title, body)
				VALUES ('card', new.id, new.project_id, new.title, new.description);
			END;
			CREATE TRIGGER IF NOT EXISTS search_cards_ad AFTER DELETE ON kanban_cards BEGIN
				DELETE FROM search_index WHERE entity_type = 'card' AND entity_id = old.id;
			END;

			CREATE TRIGGER IF NOT EXISTS search_documents_ai AFTER INSERT ON project_documents BEGIN
				INSERT INTO search_index(entity_type, entity_id, project_id, title, body)
				VALUES ('document', new.id, new.project_id, new.title, new.content);
			END;
			CREATE TRIGGER IF NOT EXISTS search_documents_au AFTER UPDATE ON project_documents BEGIN
				DELETE FROM search_index WHERE entity_type = 'document' AND entity_id = old.id;
				INSERT INTO search_index(entity_type, entity_id, project_id, title, body)
				VALUES ('document', new.id, new.project_id, new.title, new.content);
			END;
			CREATE TRIGGER IF NOT EXISTS search_documents_ad AFTER DELETE ON project_documents BEGIN
				DELETE FROM search_index WHERE entity_type = 'document' AND entity_id = old.id;
			END;

			CREATE TRIGGER IF NOT EXISTS search_decisions_ai AFTER INSERT ON decisions BEGIN
				INSERT INTO search_index(entity_type, entity_id, project_id, title, body)
				VALUES ('decision', new.id, new.project_id, new.title, new.reasoning);
			END;
			CREATE TRIGGER IF NOT EXISTS search_decisions_au AFTER UPDATE ON decisions BEGIN
				DELETE FROM search_index WHERE entity_type = 'decision' AND entity_id = old.id;
				INSERT INTO search_index(entity_type, entity_id, project_id, title, body)
				VALUES ('decision', new.id, new.project_id, new.title, new.reasoning);
			END;
			CREATE TRIGGER IF NOT EXISTS search_decisions_ad AFTER DELETE ON decisions BEGIN
				DELETE FROM search_index WHERE entity_type = 'decision' AND entity_id = old.id;
			END;
		`,
	},
}
