package database

import (
	"database/sql"
	"fmt"
)

// Migration is one versioned schema step. Migrations are embedded in the
// binary so a deployment never depends on a migrations directory being
// shipped next to it.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations are applied in slice order; versions must be unique and sorted.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "directory_and_sessions",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				full_name TEXT NOT NULL,
				role TEXT NOT NULL CHECK (role IN ('TEACHER','STUDENT','ADMIN','PARENT')),
				class_id TEXT,
				is_active INTEGER NOT NULL DEFAULT 1
			);

			CREATE TABLE IF NOT EXISTS classes (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS subjects (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS schedules (
				id TEXT PRIMARY KEY,
				teacher_id TEXT NOT NULL REFERENCES users(id),
				class_id TEXT NOT NULL REFERENCES classes(id),
				subject_id TEXT NOT NULL REFERENCES subjects(id)
			);

			CREATE TABLE IF NOT EXISTS daily_attendance (
				id TEXT PRIMARY KEY,
				student_id TEXT NOT NULL REFERENCES users(id),
				day TEXT NOT NULL,
				status TEXT NOT NULL CHECK (status IN ('PRESENT','ABSENT','LATE','EXCUSED')),
				UNIQUE (student_id, day)
			);

			CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				schedule_id TEXT NOT NULL REFERENCES schedules(id),
				teacher_id TEXT NOT NULL REFERENCES users(id),
				class_id TEXT NOT NULL,
				subject_id TEXT NOT NULL,
				status TEXT NOT NULL CHECK (status IN ('PENDING','ACTIVE','ENDED','CANCELLED')),
				started_at DATETIME NOT NULL,
				ended_at DATETIME,
				topic TEXT
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_open_schedule
				ON sessions(schedule_id) WHERE status IN ('PENDING','ACTIVE');
			CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
			CREATE INDEX IF NOT EXISTS idx_sessions_class ON sessions(class_id, status);
			CREATE INDEX IF NOT EXISTS idx_sessions_teacher ON sessions(teacher_id, status);
		`,
	},
	{
		Version:     "002",
		Description: "whiteboard_attendance_notes",
		SQL: `
			CREATE TABLE IF NOT EXISTS whiteboard_events (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES sessions(id),
				created_by TEXT NOT NULL,
				event_type TEXT NOT NULL CHECK (event_type IN ('DRAW','ERASE','CLEAR')),
				payload TEXT NOT NULL,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_whiteboard_session_time
				ON whiteboard_events(session_id, created_at);

			CREATE TABLE IF NOT EXISTS session_attendance (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES sessions(id),
				student_id TEXT NOT NULL,
				joined_at DATETIME NOT NULL,
				left_at DATETIME,
				UNIQUE (session_id, student_id)
			);
			CREATE INDEX IF NOT EXISTS idx_attendance_session
				ON session_attendance(session_id, joined_at);

			CREATE TABLE IF NOT EXISTS student_notes (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES sessions(id),
				student_id TEXT NOT NULL,
				content TEXT NOT NULL,
				attachment_url TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE (session_id, student_id)
			);
			CREATE INDEX IF NOT EXISTS idx_notes_student
				ON student_notes(student_id, updated_at);
		`,
	},
}

// MigrationManager applies pending migrations against an open database.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a migration manager.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies every migration not yet recorded in
// schema_migrations. Each step runs in its own transaction.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.apply(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s (%s): %w",
				migration.Version, migration.Description, err)
		}
	}

	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) apply(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version) VALUES (?)", migration.Version,
	); err != nil {
		return err
	}
	return tx.Commit()
}
