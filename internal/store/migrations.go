package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Assets table - caches classifier files fetched from a remote resolver
		`CREATE TABLE IF NOT EXISTS assets (
			uri TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			size INTEGER NOT NULL,
			fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Attempts table - one row per capture attempt
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			captures INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Captures table - frames frozen by auto or manual capture
		`CREATE TABLE IF NOT EXISTS captures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			attempt_id TEXT NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
			mode TEXT NOT NULL CHECK(mode IN ('auto', 'manual')),
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			captured_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_captures_attempt_id ON captures(attempt_id)`,
		`CREATE INDEX IF NOT EXISTS idx_captures_captured_at ON captures(captured_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
