package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"github.com/go-sql-driver/mysql"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS candidates (
		id         VARCHAR(64) PRIMARY KEY,
		name       VARCHAR(255) NOT NULL,
		email      VARCHAR(255) NOT NULL,
		position   VARCHAR(255) NOT NULL,
		created_at DATETIME(6) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id               VARCHAR(64) PRIMARY KEY,
		candidate_id     VARCHAR(64) NOT NULL,
		start_time       DATETIME(6) NULL,
		end_time         DATETIME(6) NULL,
		status           VARCHAR(16) NOT NULL,
		duration_seconds INT NOT NULL DEFAULT 0,
		integrity_score  INT NOT NULL DEFAULT 100,
		created_at       DATETIME(6) NOT NULL,
		INDEX idx_sessions_candidate (candidate_id),
		FOREIGN KEY (candidate_id) REFERENCES candidates(id)
	)`,
	`CREATE TABLE IF NOT EXISTS violations (
		seq          BIGINT AUTO_INCREMENT PRIMARY KEY,
		id           VARCHAR(64) NOT NULL,
		session_id   VARCHAR(64) NOT NULL,
		ts           DATETIME(6) NOT NULL,
		session_time INT NOT NULL,
		type         VARCHAR(32) NOT NULL,
		severity     VARCHAR(16) NOT NULL,
		description  TEXT NOT NULL,
		confidence   DOUBLE NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	)`,
	`CREATE TABLE IF NOT EXISTS detection_logs (
		seq          BIGINT AUTO_INCREMENT PRIMARY KEY,
		id           VARCHAR(64) NOT NULL,
		session_id   VARCHAR(64) NOT NULL,
		ts           DATETIME(6) NOT NULL,
		session_time INT NOT NULL,
		message      TEXT NOT NULL,
		level        VARCHAR(16) NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	)`,
}

const (
	mysqlDuplicateEntry  = 1062
	mysqlNoReferencedRow = 1452
)

// MySQLStore persists through database/sql with the go-sql-driver. Times are
// stored in UTC.
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, unavailable("connect to mysql", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable("ping mysql", err)
	}

	for _, stmt := range mysqlSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, unavailable("migrate mysql", err)
		}
	}

	return &MySQLStore{db: db}, nil
}

func (m *MySQLStore) CreateCandidate(ctx context.Context, candidate *models.Candidate) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO candidates (id, name, email, position, created_at) VALUES (?, ?, ?, ?, ?)`,
		candidate.ID, candidate.Name, candidate.Email, candidate.Position, candidate.CreatedAt.UTC(),
	)
	return m.writeErr("create candidate", err)
}

func (m *MySQLStore) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	var c models.Candidate
	err := m.db.QueryRowContext(ctx,
		`SELECT id, name, email, position, created_at FROM candidates WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Position, &c.CreatedAt)
	if err != nil {
		return nil, m.readErr("get candidate", err)
	}
	return &c, nil
}

func (m *MySQLStore) ListCandidates(ctx context.Context) ([]*models.Candidate, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, name, email, position, created_at FROM candidates ORDER BY created_at, id`)
	if err != nil {
		return nil, unavailable("list candidates", err)
	}
	defer rows.Close()

	candidates := make([]*models.Candidate, 0)
	for rows.Next() {
		var c models.Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Position, &c.CreatedAt); err != nil {
			return nil, unavailable("scan candidate", err)
		}
		candidates = append(candidates, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list candidates", err)
	}
	return candidates, nil
}

func (m *MySQLStore) CreateSession(ctx context.Context, session *models.Session) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, candidate_id, start_time, end_time, status, duration_seconds, integrity_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.CandidateID, utcPtr(session.StartTime), utcPtr(session.EndTime), string(session.Status),
		session.DurationSeconds, session.IntegrityScore, session.CreatedAt.UTC(),
	)
	if err != nil {
		return m.writeErr("create session", err)
	}

	for _, v := range session.Violations {
		if err := mysqlInsertViolation(ctx, tx, session.ID, v); err != nil {
			return unavailable("create session", err)
		}
	}
	for _, e := range session.DetectionLogs {
		if err := mysqlInsertDetectionLog(ctx, tx, session.ID, e); err != nil {
			return unavailable("create session", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func mysqlScanSession(row rowScanner) (*models.Session, error) {
	var (
		s          models.Session
		status     string
		start, end sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.CandidateID, &start, &end, &status,
		&s.DurationSeconds, &s.IntegrityScore, &s.CreatedAt); err != nil {
		return nil, err
	}
	if start.Valid {
		s.StartTime = &start.Time
	}
	if end.Valid {
		s.EndTime = &end.Time
	}
	s.Status = models.SessionStatus(status)
	return &s, nil
}

func (m *MySQLStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := mysqlScanSession(m.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		return nil, m.readErr("get session", err)
	}

	if err := m.loadTimelines(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (m *MySQLStore) ListSessions(ctx context.Context, candidateID string) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	args := []any{}
	if candidateID != "" {
		query += ` WHERE candidate_id = ?`
		args = append(args, candidateID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list sessions", err)
	}

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		session, err := mysqlScanSession(rows)
		if err != nil {
			rows.Close()
			return nil, unavailable("scan session", err)
		}
		sessions = append(sessions, session)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, unavailable("list sessions", err)
	}

	for _, session := range sessions {
		if err := m.loadTimelines(ctx, session); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (m *MySQLStore) loadTimelines(ctx context.Context, session *models.Session) error {
	vrows, err := m.db.QueryContext(ctx,
		`SELECT id, session_id, ts, session_time, type, severity, description, confidence
		 FROM violations WHERE session_id = ? ORDER BY seq`, session.ID)
	if err != nil {
		return unavailable("load violations", err)
	}
	defer vrows.Close()

	session.Violations = make([]models.Violation, 0)
	for vrows.Next() {
		var (
			v                models.Violation
			vtype, vseverity string
		)
		if err := vrows.Scan(&v.ID, &v.SessionID, &v.Timestamp, &v.SessionTime, &vtype, &vseverity, &v.Description, &v.Confidence); err != nil {
			return unavailable("scan violation", err)
		}
		v.Type = models.ViolationType(vtype)
		v.Severity = models.Severity(vseverity)
		session.Violations = append(session.Violations, v)
	}
	if err := vrows.Err(); err != nil {
		return unavailable("load violations", err)
	}

	lrows, err := m.db.QueryContext(ctx,
		`SELECT id, session_id, ts, session_time, message, level
		 FROM detection_logs WHERE session_id = ? ORDER BY seq`, session.ID)
	if err != nil {
		return unavailable("load detection logs", err)
	}
	defer lrows.Close()

	session.DetectionLogs = make([]models.DetectionLogEntry, 0)
	for lrows.Next() {
		var (
			e     models.DetectionLogEntry
			level string
		)
		if err := lrows.Scan(&e.ID, &e.SessionID, &e.Timestamp, &e.SessionTime, &e.Message, &level); err != nil {
			return unavailable("scan detection log", err)
		}
		e.Level = models.LogLevel(level)
		session.DetectionLogs = append(session.DetectionLogs, e)
	}
	if err := lrows.Err(); err != nil {
		return unavailable("load detection logs", err)
	}

	return nil
}

func (m *MySQLStore) UpdateSession(ctx context.Context, session *models.Session) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer tx.Rollback()

	// RowsAffected is zero for an unchanged row in MySQL, so check existence explicitly.
	var id string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM sessions WHERE id = ? FOR UPDATE`, session.ID).Scan(&id); err != nil {
		return m.readErr("update session", err)
	}

	if err := mysqlUpdateSession(ctx, tx, session); err != nil {
		return unavailable("update session", err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func (m *MySQLStore) AddViolation(ctx context.Context, sessionID string, violation models.Violation) error {
	return m.appendTo(ctx, sessionID, "add violation", func(tx *sql.Tx) error {
		return mysqlInsertViolation(ctx, tx, sessionID, violation)
	})
}

func (m *MySQLStore) AddDetectionLog(ctx context.Context, sessionID string, entry models.DetectionLogEntry) error {
	return m.appendTo(ctx, sessionID, "add detection log", func(tx *sql.Tx) error {
		return mysqlInsertDetectionLog(ctx, tx, sessionID, entry)
	})
}

func (m *MySQLStore) Commit(ctx context.Context, session *models.Session, violations []models.Violation, entries []models.DetectionLogEntry) error {
	return m.appendTo(ctx, session.ID, "commit session", func(tx *sql.Tx) error {
		for _, v := range violations {
			if err := mysqlInsertViolation(ctx, tx, session.ID, v); err != nil {
				return err
			}
		}
		for _, e := range entries {
			if err := mysqlInsertDetectionLog(ctx, tx, session.ID, e); err != nil {
				return err
			}
		}
		return mysqlUpdateSession(ctx, tx, session)
	})
}

func (m *MySQLStore) appendTo(ctx context.Context, sessionID string, op string, insert func(*sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer tx.Rollback()

	var id string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM sessions WHERE id = ? FOR UPDATE`, sessionID).Scan(&id); err != nil {
		return m.readErr(op, err)
	}

	if err := insert(tx); err != nil {
		return unavailable(op, err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func mysqlUpdateSession(ctx context.Context, tx *sql.Tx, session *models.Session) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE sessions SET start_time = ?, end_time = ?, status = ?, duration_seconds = ?, integrity_score = ?
		 WHERE id = ?`,
		utcPtr(session.StartTime), utcPtr(session.EndTime), string(session.Status),
		session.DurationSeconds, session.IntegrityScore, session.ID,
	)
	return err
}

func mysqlInsertViolation(ctx context.Context, tx *sql.Tx, sessionID string, v models.Violation) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO violations (id, session_id, ts, session_time, type, severity, description, confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, sessionID, v.Timestamp.UTC(), v.SessionTime, string(v.Type), string(v.Severity), v.Description, v.Confidence,
	)
	return err
}

func mysqlInsertDetectionLog(ctx context.Context, tx *sql.Tx, sessionID string, e models.DetectionLogEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO detection_logs (id, session_id, ts, session_time, message, level)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, sessionID, e.Timestamp.UTC(), e.SessionTime, e.Message, string(e.Level),
	)
	return err
}

func (m *MySQLStore) Clear(ctx context.Context) error {
	// Children first; TRUNCATE is refused on tables referenced by foreign keys.
	for _, table := range []string{"detection_logs", "violations", "sessions", "candidates"} {
		if _, err := m.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return unavailable("clear", err)
		}
	}
	return nil
}

func (m *MySQLStore) Ping(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (m *MySQLStore) Close() error {
	return m.db.Close()
}

func (m *MySQLStore) readErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return unavailable(op, err)
}

func (m *MySQLStore) writeErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return ErrAlreadyExists
		case mysqlNoReferencedRow:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
	}
	return unavailable(op, err)
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
