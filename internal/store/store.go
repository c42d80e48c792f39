// Package store persists candidates and sessions behind a single interface
// with interchangeable backends.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
)

// Store is the durable record of candidates and sessions. Reads always return
// copies the caller may mutate freely. Violations and detection logs are
// append-only; UpdateSession only touches top-level session fields.
type Store interface {
	CreateCandidate(ctx context.Context, candidate *models.Candidate) error
	GetCandidate(ctx context.Context, id string) (*models.Candidate, error)
	ListCandidates(ctx context.Context) ([]*models.Candidate, error)

	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	// ListSessions returns every session, or only the candidate's when candidateID is set.
	ListSessions(ctx context.Context, candidateID string) ([]*models.Session, error)
	UpdateSession(ctx context.Context, session *models.Session) error

	AddViolation(ctx context.Context, sessionID string, violation models.Violation) error
	AddDetectionLog(ctx context.Context, sessionID string, entry models.DetectionLogEntry) error

	// Commit appends violations and entries and rewrites the session head as
	// one atomic step: a reader sees all of it or none of it.
	Commit(ctx context.Context, session *models.Session, violations []models.Violation, entries []models.DetectionLogEntry) error

	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	// NotFound - unknown candidate or session id
	ErrNotFound = errors.New("store: not found")

	// AlreadyExists - create called twice with the same id
	ErrAlreadyExists = errors.New("store: already exists")

	// Unavailable - backend unreachable or failed mid-operation
	ErrUnavailable = errors.New("store: backend unavailable")

	// UnsupportedBackend - STORE_BACKEND names something we do not ship
	ErrUnsupportedBackend = errors.New("store: unsupported backend")
)

// unavailable tags a backend failure so callers can tell it apart from NotFound.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// topLevel strips the append-only timelines so backends that store them
// separately do not write them twice.
func topLevel(session *models.Session) *models.Session {
	c := session.Clone()
	c.Violations = nil
	c.DetectionLogs = nil
	return c
}

func ensureTimelines(session *models.Session) {
	if session.Violations == nil {
		session.Violations = make([]models.Violation, 0)
	}
	if session.DetectionLogs == nil {
		session.DetectionLogs = make([]models.DetectionLogEntry, 0)
	}
}
