package migrate

// Base schema, applied atomically as version 1. Cascading deletes are
// enforced here: removing a paper removes its sessions, and removing a
// session removes its messages, flags and insights.
var baseSchema = []string{
	`CREATE TABLE IF NOT EXISTS papers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pdf_hash TEXT NOT NULL UNIQUE,
		pdf_path TEXT,
		title TEXT,
		authors TEXT,
		doi TEXT,
		arxiv_id TEXT,
		zotero_key TEXT UNIQUE,
		metadata TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		paper_id INTEGER NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
		model_used TEXT,
		status TEXT NOT NULL DEFAULT 'active'
			CHECK (status IN ('active', 'completed', 'interrupted')),
		total_exchanges INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		ended_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
		content TEXT NOT NULL,
		tokens_used INTEGER,
		is_summary BOOLEAN NOT NULL DEFAULT 0,
		is_flagged BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS flags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		user_message_id INTEGER NOT NULL REFERENCES messages(id),
		assistant_message_id INTEGER NOT NULL REFERENCES messages(id),
		note TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (session_id, user_message_id, assistant_message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS insights (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		category TEXT NOT NULL,
		content TEXT NOT NULL,
		from_flag BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS cache (
		cache_key TEXT PRIMARY KEY,
		cache_type TEXT NOT NULL,
		data BLOB NOT NULL,
		metadata TEXT,
		expires_at DATETIME,
		hit_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_accessed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_paper ON sessions(paper_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_flagged ON messages(is_flagged)`,
	`CREATE INDEX IF NOT EXISTS idx_flags_session ON flags(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_insights_session ON insights(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_insights_category ON insights(category)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_type ON cache(cache_type)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache(expires_at)`,
}
