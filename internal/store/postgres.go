package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS candidates (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL,
	position   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	candidate_id     TEXT NOT NULL REFERENCES candidates(id),
	start_time       TIMESTAMPTZ,
	end_time         TIMESTAMPTZ,
	status           TEXT NOT NULL,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	integrity_score  INTEGER NOT NULL DEFAULT 100,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS violations (
	seq          BIGSERIAL PRIMARY KEY,
	id           TEXT NOT NULL,
	session_id   TEXT NOT NULL REFERENCES sessions(id),
	ts           TIMESTAMPTZ NOT NULL,
	session_time INTEGER NOT NULL,
	type         TEXT NOT NULL,
	severity     TEXT NOT NULL,
	description  TEXT NOT NULL,
	confidence   DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS detection_logs (
	seq          BIGSERIAL PRIMARY KEY,
	id           TEXT NOT NULL,
	session_id   TEXT NOT NULL REFERENCES sessions(id),
	ts           TIMESTAMPTZ NOT NULL,
	session_time INTEGER NOT NULL,
	message      TEXT NOT NULL,
	level        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_candidate ON sessions(candidate_id);
`

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// PostgresStore persists to PostgreSQL through a pgx pool. Appends lock the
// parent session row so they serialise with UpdateSession.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connectionString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, unavailable("connect to postgres", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("ping postgres", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, unavailable("migrate postgres", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) CreateCandidate(ctx context.Context, candidate *models.Candidate) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO candidates (id, name, email, position, created_at) VALUES ($1, $2, $3, $4, $5)`,
		candidate.ID, candidate.Name, candidate.Email, candidate.Position, candidate.CreatedAt,
	)
	return p.writeErr("create candidate", err)
}

func (p *PostgresStore) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	var c models.Candidate
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, email, position, created_at FROM candidates WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Position, &c.CreatedAt)
	if err != nil {
		return nil, p.readErr("get candidate", err)
	}
	return &c, nil
}

func (p *PostgresStore) ListCandidates(ctx context.Context) ([]*models.Candidate, error) {
	rows, err := p.pool.Query(ctx,
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

func (p *PostgresStore) CreateSession(ctx context.Context, session *models.Session) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return unavailable("begin", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO sessions (id, candidate_id, start_time, end_time, status, duration_seconds, integrity_score, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID, session.CandidateID, session.StartTime, session.EndTime, string(session.Status),
		session.DurationSeconds, session.IntegrityScore, session.CreatedAt,
	)
	if err != nil {
		return p.writeErr("create session", err)
	}

	for _, v := range session.Violations {
		if err := insertViolation(ctx, tx, session.ID, v); err != nil {
			return unavailable("create session", err)
		}
	}
	for _, e := range session.DetectionLogs {
		if err := insertDetectionLog(ctx, tx, session.ID, e); err != nil {
			return unavailable("create session", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

const sessionColumns = `id, candidate_id, start_time, end_time, status, duration_seconds, integrity_score, created_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		s      models.Session
		status string
	)
	if err := row.Scan(&s.ID, &s.CandidateID, &s.StartTime, &s.EndTime, &status,
		&s.DurationSeconds, &s.IntegrityScore, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	return &s, nil
}

func (p *PostgresStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := scanSession(p.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		return nil, p.readErr("get session", err)
	}

	if err := p.loadTimelines(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (p *PostgresStore) ListSessions(ctx context.Context, candidateID string) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	args := []any{}
	if candidateID != "" {
		query += ` WHERE candidate_id = $1`
		args = append(args, candidateID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list sessions", err)
	}

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
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
		if err := p.loadTimelines(ctx, session); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (p *PostgresStore) loadTimelines(ctx context.Context, session *models.Session) error {
	vrows, err := p.pool.Query(ctx,
		`SELECT id, session_id, ts, session_time, type, severity, description, confidence
		 FROM violations WHERE session_id = $1 ORDER BY seq`, session.ID)
	if err != nil {
		return unavailable("load violations", err)
	}
	session.Violations, err = pgx.CollectRows(vrows, func(row pgx.CollectableRow) (models.Violation, error) {
		var (
			v                models.Violation
			vtype, vseverity string
		)
		err := row.Scan(&v.ID, &v.SessionID, &v.Timestamp, &v.SessionTime, &vtype, &vseverity, &v.Description, &v.Confidence)
		v.Type = models.ViolationType(vtype)
		v.Severity = models.Severity(vseverity)
		return v, err
	})
	if err != nil {
		return unavailable("load violations", err)
	}

	lrows, err := p.pool.Query(ctx,
		`SELECT id, session_id, ts, session_time, message, level
		 FROM detection_logs WHERE session_id = $1 ORDER BY seq`, session.ID)
	if err != nil {
		return unavailable("load detection logs", err)
	}
	session.DetectionLogs, err = pgx.CollectRows(lrows, func(row pgx.CollectableRow) (models.DetectionLogEntry, error) {
		var (
			e     models.DetectionLogEntry
			level string
		)
		err := row.Scan(&e.ID, &e.SessionID, &e.Timestamp, &e.SessionTime, &e.Message, &level)
		e.Level = models.LogLevel(level)
		return e, err
	})
	if err != nil {
		return unavailable("load detection logs", err)
	}

	ensureTimelines(session)
	return nil
}

const updateSessionQuery = `UPDATE sessions SET start_time = $2, end_time = $3, status = $4, duration_seconds = $5, integrity_score = $6
	 WHERE id = $1`

func updateSessionArgs(session *models.Session) []any {
	return []any{
		session.ID, session.StartTime, session.EndTime, string(session.Status),
		session.DurationSeconds, session.IntegrityScore,
	}
}

func (p *PostgresStore) UpdateSession(ctx context.Context, session *models.Session) error {
	tag, err := p.pool.Exec(ctx, updateSessionQuery, updateSessionArgs(session)...)
	if err != nil {
		return unavailable("update session", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) AddViolation(ctx context.Context, sessionID string, violation models.Violation) error {
	return p.appendTo(ctx, sessionID, "add violation", func(tx pgx.Tx) error {
		return insertViolation(ctx, tx, sessionID, violation)
	})
}

func (p *PostgresStore) AddDetectionLog(ctx context.Context, sessionID string, entry models.DetectionLogEntry) error {
	return p.appendTo(ctx, sessionID, "add detection log", func(tx pgx.Tx) error {
		return insertDetectionLog(ctx, tx, sessionID, entry)
	})
}

func (p *PostgresStore) Commit(ctx context.Context, session *models.Session, violations []models.Violation, entries []models.DetectionLogEntry) error {
	return p.appendTo(ctx, session.ID, "commit session", func(tx pgx.Tx) error {
		for _, v := range violations {
			if err := insertViolation(ctx, tx, session.ID, v); err != nil {
				return err
			}
		}
		for _, e := range entries {
			if err := insertDetectionLog(ctx, tx, session.ID, e); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, updateSessionQuery, updateSessionArgs(session)...)
		return err
	})
}

func (p *PostgresStore) appendTo(ctx context.Context, sessionID string, op string, insert func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return unavailable("begin", err)
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&id)
	if err != nil {
		return p.readErr(op, err)
	}

	if err := insert(tx); err != nil {
		return unavailable(op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func insertViolation(ctx context.Context, tx pgx.Tx, sessionID string, v models.Violation) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO violations (id, session_id, ts, session_time, type, severity, description, confidence)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, sessionID, v.Timestamp, v.SessionTime, string(v.Type), string(v.Severity), v.Description, v.Confidence,
	)
	return err
}

func insertDetectionLog(ctx context.Context, tx pgx.Tx, sessionID string, e models.DetectionLogEntry) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO detection_logs (id, session_id, ts, session_time, message, level)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, sessionID, e.Timestamp, e.SessionTime, e.Message, string(e.Level),
	)
	return err
}

func (p *PostgresStore) Clear(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `TRUNCATE detection_logs, violations, sessions, candidates`); err != nil {
		return unavailable("clear", err)
	}
	return nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresStore) readErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return unavailable(op, err)
}

// writeErr maps duplicate keys to ErrAlreadyExists and a missing parent
// candidate to ErrNotFound.
func (p *PostgresStore) writeErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return ErrAlreadyExists
		case foreignKeyViolation:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
	}
	return unavailable(op, err)
}
