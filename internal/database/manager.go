package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	dbconfig "liveclass/pkg/database"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Manager implements the SessionStore, WhiteboardStore, AttendanceStore,
// NoteStore, and Directory interfaces on a single sqlite database.
// All writes go through one goroutine; reads run concurrently on the pool.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas and migrations, and starts
// the single-writer loop.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply sqlite pragmas: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	m := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

// writeLoop serializes all writes. sqlite allows only one writer; funneling
// writes through one goroutine avoids lock contention entirely.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil && isTransient(err) {
				log.Printf("Database write failed, retrying: %v", err)
				time.Sleep(100 * time.Millisecond)
				err = op.operation(m.db)
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

// isTransient reports whether an error is lock contention worth one retry.
// Domain errors (duplicates, constraint violations) are returned as-is.
func isTransient(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database is busy")
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// ---- SessionStore ----

// CreateSession inserts a session, enforcing the single-open-session
// invariant per schedule both by pre-check and by partial unique index.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}
	return m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var existing string
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM sessions WHERE schedule_id = ? AND status IN ('PENDING','ACTIVE')`,
			session.ScheduleID,
		).Scan(&existing)
		if err == nil {
			return interfaces.ErrDuplicateSession
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check open sessions: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO sessions (id, schedule_id, teacher_id, class_id, subject_id, status, started_at, ended_at, topic)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID,
			session.ScheduleID,
			session.TeacherID,
			session.ClassID,
			session.SubjectID,
			session.Status,
			session.StartedAt,
			session.EndedAt,
			nullableString(session.Topic),
		)
		if err != nil {
			if strings.Contains(err.Error(), "idx_sessions_open_schedule") {
				return interfaces.ErrDuplicateSession
			}
			return fmt.Errorf("failed to insert session: %w", err)
		}

		return tx.Commit()
	})
}

const sessionColumns = `id, schedule_id, teacher_id, class_id, subject_id, status, started_at, ended_at, topic`

// GetSession retrieves a session by ID.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	return scanSession(row)
}

// FindOpenSession returns the PENDING or ACTIVE session for a schedule.
func (m *Manager) FindOpenSession(ctx context.Context, scheduleID string) (*types.Session, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE schedule_id = ? AND status IN ('PENDING','ACTIVE')`,
		scheduleID)
	return scanSession(row)
}

// UpdateSessionStatus persists a lifecycle transition. The status guard in
// the WHERE clause makes the transition atomic: once a row is terminal no
// further update matches, so racing End and Cancel cannot both commit.
func (m *Manager) UpdateSessionStatus(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx,
			`UPDATE sessions SET status = ?, ended_at = ?
			 WHERE id = ? AND status IN ('PENDING', 'ACTIVE')`,
			session.Status, session.EndedAt, session.ID)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrSessionClosed
		}
		return nil
	})
}

// ListActiveSessions returns all ACTIVE sessions, most recent first.
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	return m.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status = 'ACTIVE' ORDER BY started_at DESC`)
}

// ListActiveSessionsByClass scopes the active list to one class.
func (m *Manager) ListActiveSessionsByClass(ctx context.Context, classID string) ([]*types.Session, error) {
	return m.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status = 'ACTIVE' AND class_id = ? ORDER BY started_at DESC`,
		classID)
}

// ListActiveSessionsByTeacher scopes the active list to one teacher.
func (m *Manager) ListActiveSessionsByTeacher(ctx context.Context, teacherID string) ([]*types.Session, error) {
	return m.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status = 'ACTIVE' AND teacher_id = ? ORDER BY started_at DESC`,
		teacherID)
}

func (m *Manager) querySessions(ctx context.Context, query string, args ...any) ([]*types.Session, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var session types.Session
	var endedAt sql.NullTime
	var topic sql.NullString

	err := row.Scan(
		&session.ID,
		&session.ScheduleID,
		&session.TeacherID,
		&session.ClassID,
		&session.SubjectID,
		&session.Status,
		&session.StartedAt,
		&endedAt,
		&topic,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	if topic.Valid {
		session.Topic = topic.String
	}
	return &session, nil
}

// ---- WhiteboardStore ----

// AppendWhiteboardEvent persists one log row. Rows are immutable; there is
// no update or delete path.
func (m *Manager) AppendWhiteboardEvent(ctx context.Context, event *types.WhiteboardEvent) error {
	if !types.IsValidWhiteboardType(event.Type) {
		return types.ErrInvalidEventType
	}
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO whiteboard_events (id, session_id, created_by, event_type, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			event.ID,
			event.SessionID,
			event.CreatedBy,
			event.Type,
			string(event.Payload),
			event.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert whiteboard event: %w", err)
		}
		return nil
	})
}

// ListWhiteboardEvents returns the full history in append order. rowid breaks
// ties between events sharing a created_at timestamp.
func (m *Manager) ListWhiteboardEvents(ctx context.Context, sessionID string) ([]*types.WhiteboardEvent, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, session_id, created_by, event_type, payload, created_at
		FROM whiteboard_events
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query whiteboard events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.WhiteboardEvent
	for rows.Next() {
		var event types.WhiteboardEvent
		var payload string
		err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.CreatedBy,
			&event.Type,
			&payload,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan whiteboard event: %w", err)
		}
		event.Payload = []byte(payload)
		events = append(events, &event)
	}
	return events, rows.Err()
}

// ---- AttendanceStore ----

// UpsertJoin creates the presence record on first join. Repeat joins return
// the existing row untouched.
func (m *Manager) UpsertJoin(ctx context.Context, sessionID, studentID string) (*types.AttendanceRecord, bool, error) {
	var created bool
	err := m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT INTO session_attendance (id, session_id, student_id, joined_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (session_id, student_id) DO NOTHING`,
			uuid.New().String(), sessionID, studentID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to upsert attendance: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n > 0
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	record, err := m.getAttendance(ctx, sessionID, studentID)
	if err != nil {
		return nil, false, err
	}
	return record, created, nil
}

// MarkLeft sets left_at on the open presence record. Best-effort: a missing
// record or an already-set left_at is not an error.
func (m *Manager) MarkLeft(ctx context.Context, sessionID, studentID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			UPDATE session_attendance SET left_at = ?
			WHERE session_id = ? AND student_id = ? AND left_at IS NULL`,
			time.Now().UTC(), sessionID, studentID)
		if err != nil {
			return fmt.Errorf("failed to mark attendance left: %w", err)
		}
		return nil
	})
}

// ListSessionAttendance returns presence records in join order.
func (m *Manager) ListSessionAttendance(ctx context.Context, sessionID string) ([]*types.AttendanceRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, session_id, student_id, joined_at, left_at
		FROM session_attendance
		WHERE session_id = ?
		ORDER BY joined_at ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*types.AttendanceRecord
	for rows.Next() {
		record, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (m *Manager) getAttendance(ctx context.Context, sessionID, studentID string) (*types.AttendanceRecord, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, session_id, student_id, joined_at, left_at
		FROM session_attendance
		WHERE session_id = ? AND student_id = ?`,
		sessionID, studentID)
	return scanAttendance(row)
}

func scanAttendance(row rowScanner) (*types.AttendanceRecord, error) {
	var record types.AttendanceRecord
	var leftAt sql.NullTime
	err := row.Scan(&record.ID, &record.SessionID, &record.StudentID, &record.JoinedAt, &leftAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan attendance record: %w", err)
	}
	if leftAt.Valid {
		record.LeftAt = &leftAt.Time
	}
	return &record, nil
}

// ---- NoteStore ----

// UpsertNote creates or replaces the (session, student) note.
func (m *Manager) UpsertNote(ctx context.Context, note *types.StudentNote) (*types.StudentNote, error) {
	now := time.Now().UTC()
	err := m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO student_notes (id, session_id, student_id, content, attachment_url, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (session_id, student_id) DO UPDATE SET
				content = excluded.content,
				attachment_url = excluded.attachment_url,
				updated_at = excluded.updated_at`,
			uuid.New().String(), note.SessionID, note.StudentID,
			note.Content, nullableString(note.AttachmentURL), now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert note: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	row := m.db.QueryRowContext(ctx, `
		SELECT id, session_id, student_id, content, attachment_url, created_at, updated_at
		FROM student_notes WHERE session_id = ? AND student_id = ?`,
		note.SessionID, note.StudentID)
	return scanNote(row)
}

// ListSessionNotes returns all notes for a session in creation order.
func (m *Manager) ListSessionNotes(ctx context.Context, sessionID string) ([]*types.StudentNote, error) {
	return m.queryNotes(ctx, `
		SELECT id, session_id, student_id, content, attachment_url, created_at, updated_at
		FROM student_notes WHERE session_id = ? ORDER BY created_at ASC`,
		sessionID)
}

// ListStudentNotes returns one student's notes, optionally filtered by the
// subject of the owning session.
func (m *Manager) ListStudentNotes(ctx context.Context, studentID, subjectID string) ([]*types.StudentNote, error) {
	if subjectID == "" {
		return m.queryNotes(ctx, `
			SELECT id, session_id, student_id, content, attachment_url, created_at, updated_at
			FROM student_notes WHERE student_id = ? ORDER BY updated_at DESC`,
			studentID)
	}
	return m.queryNotes(ctx, `
		SELECT n.id, n.session_id, n.student_id, n.content, n.attachment_url, n.created_at, n.updated_at
		FROM student_notes n
		JOIN sessions s ON s.id = n.session_id
		WHERE n.student_id = ? AND s.subject_id = ?
		ORDER BY n.updated_at DESC`,
		studentID, subjectID)
}

func (m *Manager) queryNotes(ctx context.Context, query string, args ...any) ([]*types.StudentNote, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notes []*types.StudentNote
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

func scanNote(row rowScanner) (*types.StudentNote, error) {
	var note types.StudentNote
	var attachment sql.NullString
	err := row.Scan(
		&note.ID,
		&note.SessionID,
		&note.StudentID,
		&note.Content,
		&attachment,
		&note.CreatedAt,
		&note.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrNoteNotFound
		}
		return nil, fmt.Errorf("failed to scan note: %w", err)
	}
	if attachment.Valid {
		note.AttachmentURL = attachment.String
	}
	return &note, nil
}

// ---- Directory ----

// GetUser resolves a user by ID.
func (m *Manager) GetUser(ctx context.Context, userID string) (*types.User, error) {
	var user types.User
	var classID sql.NullString
	err := m.db.QueryRowContext(ctx,
		`SELECT id, full_name, role, class_id, is_active FROM users WHERE id = ?`,
		userID,
	).Scan(&user.ID, &user.FullName, &user.Role, &classID, &user.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if classID.Valid {
		user.ClassID = classID.String
	}
	return &user, nil
}

// GetSchedule resolves a timetable slot by ID.
func (m *Manager) GetSchedule(ctx context.Context, scheduleID string) (*types.Schedule, error) {
	var schedule types.Schedule
	err := m.db.QueryRowContext(ctx,
		`SELECT id, teacher_id, class_id, subject_id FROM schedules WHERE id = ?`,
		scheduleID,
	).Scan(&schedule.ID, &schedule.TeacherID, &schedule.ClassID, &schedule.SubjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	return &schedule, nil
}

// GetDailyAttendance returns the physical attendance record for one day.
func (m *Manager) GetDailyAttendance(ctx context.Context, studentID, day string) (*types.DailyAttendance, error) {
	var record types.DailyAttendance
	err := m.db.QueryRowContext(ctx,
		`SELECT id, student_id, day, status FROM daily_attendance WHERE student_id = ? AND day = ?`,
		studentID, day,
	).Scan(&record.ID, &record.StudentID, &record.Day, &record.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrNoAttendance
		}
		return nil, fmt.Errorf("failed to query daily attendance: %w", err)
	}
	return &record, nil
}

// GetClassName returns a class display name, or "" when unknown.
func (m *Manager) GetClassName(ctx context.Context, classID string) (string, error) {
	return m.lookupName(ctx, `SELECT name FROM classes WHERE id = ?`, classID)
}

// GetSubjectName returns a subject display name, or "" when unknown.
func (m *Manager) GetSubjectName(ctx context.Context, subjectID string) (string, error) {
	return m.lookupName(ctx, `SELECT name FROM subjects WHERE id = ?`, subjectID)
}

func (m *Manager) lookupName(ctx context.Context, query, id string) (string, error) {
	var name string
	err := m.db.QueryRowContext(ctx, query, id).Scan(&name)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to query name: %w", err)
	}
	return name, nil
}

// ---- Provisioning ----
// Directory rows are owned by external subsystems; these inserts exist for
// seeding and tests, mirroring how that data would arrive out of band.

// InsertUser adds a directory user.
func (m *Manager) InsertUser(ctx context.Context, user *types.User) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO users (id, full_name, role, class_id, is_active) VALUES (?, ?, ?, ?, ?)`,
			user.ID, user.FullName, user.Role, nullableString(user.ClassID), user.IsActive)
		return err
	})
}

// InsertClass adds a class display row.
func (m *Manager) InsertClass(ctx context.Context, id, name string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `INSERT INTO classes (id, name) VALUES (?, ?)`, id, name)
		return err
	})
}

// InsertSubject adds a subject display row.
func (m *Manager) InsertSubject(ctx context.Context, id, name string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `INSERT INTO subjects (id, name) VALUES (?, ?)`, id, name)
		return err
	})
}

// InsertSchedule adds a timetable slot.
func (m *Manager) InsertSchedule(ctx context.Context, schedule *types.Schedule) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO schedules (id, teacher_id, class_id, subject_id) VALUES (?, ?, ?, ?)`,
			schedule.ID, schedule.TeacherID, schedule.ClassID, schedule.SubjectID)
		return err
	})
}

// InsertDailyAttendance adds a physical attendance record.
func (m *Manager) InsertDailyAttendance(ctx context.Context, record *types.DailyAttendance) error {
	if !types.IsValidAttendanceStatus(record.Status) {
		return types.ErrInvalidStatus
	}
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO daily_attendance (id, student_id, day, status) VALUES (?, ?, ?, ?)
			 ON CONFLICT (student_id, day) DO UPDATE SET status = excluded.status`,
			record.ID, record.StudentID, record.Day, record.Status)
		return err
	})
}

// ---- Lifecycle ----

// HealthCheck validates connectivity and basic read access.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close drains the write loop and closes the pool. Safe to call twice.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
