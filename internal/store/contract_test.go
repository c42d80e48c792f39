package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)

func newCandidate(name string, offset time.Duration) *models.Candidate {
	return &models.Candidate{
		ID:        models.NewID(),
		Name:      name,
		Email:     "candidate@example.com",
		Position:  "Backend Engineer",
		CreatedAt: base.Add(offset),
	}
}

func newSession(candidateID string, offset time.Duration) *models.Session {
	return &models.Session{
		ID:             models.NewID(),
		CandidateID:    candidateID,
		Status:         models.StatusPending,
		IntegrityScore: 100,
		CreatedAt:      base.Add(offset),
	}
}

// runContract exercises the behaviour every backend must share.
func runContract(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Clear(ctx))

	t.Run("candidate round trip", func(t *testing.T) {
		c := newCandidate("Ada Lovelace", 0)
		require.NoError(t, s.CreateCandidate(ctx, c))

		got, err := s.GetCandidate(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.Name, got.Name)
		assert.Equal(t, c.Email, got.Email)
		assert.Equal(t, c.Position, got.Position)
		assert.True(t, c.CreatedAt.Equal(got.CreatedAt))

		assert.ErrorIs(t, s.CreateCandidate(ctx, c), store.ErrAlreadyExists)
	})

	t.Run("unknown ids are not found", func(t *testing.T) {
		_, err := s.GetCandidate(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.GetSession(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)

		assert.ErrorIs(t, s.AddViolation(ctx, "missing", models.Violation{ID: "v"}), store.ErrNotFound)
		assert.ErrorIs(t, s.AddDetectionLog(ctx, "missing", models.DetectionLogEntry{ID: "l"}), store.ErrNotFound)
		assert.ErrorIs(t, s.UpdateSession(ctx, &models.Session{ID: "missing"}), store.ErrNotFound)
	})

	t.Run("appends keep arrival order", func(t *testing.T) {
		c := newCandidate("Grace Hopper", time.Second)
		require.NoError(t, s.CreateCandidate(ctx, c))
		sess := newSession(c.ID, time.Second)
		require.NoError(t, s.CreateSession(ctx, sess))

		for i, desc := range []string{"first", "second", "third"} {
			require.NoError(t, s.AddViolation(ctx, sess.ID, models.Violation{
				ID:          models.NewID(),
				SessionID:   sess.ID,
				Timestamp:   base.Add(time.Duration(i) * time.Second),
				SessionTime: 5,
				Type:        models.ViolationLookingAway,
				Severity:    models.SeverityMedium,
				Description: desc,
				Confidence:  0.5,
			}))
		}
		require.NoError(t, s.AddDetectionLog(ctx, sess.ID, models.DetectionLogEntry{
			ID:        models.NewID(),
			SessionID: sess.ID,
			Timestamp: base,
			Message:   "Session started",
			Level:     models.LevelInfo,
		}))

		got, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, got.Violations, 3)
		assert.Equal(t, "first", got.Violations[0].Description)
		assert.Equal(t, "second", got.Violations[1].Description)
		assert.Equal(t, "third", got.Violations[2].Description)
		assert.Equal(t, models.SeverityMedium, got.Violations[0].Severity)
		require.Len(t, got.DetectionLogs, 1)
		assert.Equal(t, models.LevelInfo, got.DetectionLogs[0].Level)
	})

	t.Run("update touches top level fields only", func(t *testing.T) {
		c := newCandidate("Alan Turing", 2*time.Second)
		require.NoError(t, s.CreateCandidate(ctx, c))
		sess := newSession(c.ID, 2*time.Second)
		require.NoError(t, s.CreateSession(ctx, sess))
		require.NoError(t, s.AddViolation(ctx, sess.ID, models.Violation{
			ID: models.NewID(), SessionID: sess.ID, Timestamp: base,
			Type: models.ViolationFaceNotDetected, Severity: models.SeverityHigh,
		}))

		start := base.Add(time.Minute)
		end := start.Add(10 * time.Second)
		update := sess.Clone()
		update.StartTime = &start
		update.EndTime = &end
		update.Status = models.StatusCompleted
		update.DurationSeconds = 10
		update.IntegrityScore = 90
		update.Violations = nil
		require.NoError(t, s.UpdateSession(ctx, update))

		got, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, got.Status)
		assert.Equal(t, 10, got.DurationSeconds)
		assert.Equal(t, 90, got.IntegrityScore)
		require.NotNil(t, got.StartTime)
		require.NotNil(t, got.EndTime)
		assert.True(t, end.Equal(*got.EndTime))
		assert.Len(t, got.Violations, 1, "update must not drop appended violations")
	})

	t.Run("create keeps initial timelines", func(t *testing.T) {
		c := newCandidate("Barbara Liskov", 5*time.Second)
		require.NoError(t, s.CreateCandidate(ctx, c))
		sess := newSession(c.ID, 5*time.Second)
		sess.Violations = []models.Violation{{
			ID: models.NewID(), SessionID: sess.ID, Timestamp: base,
			Type: models.ViolationMultipleFaces, Severity: models.SeverityHigh, Description: "seeded",
		}}
		sess.DetectionLogs = []models.DetectionLogEntry{{
			ID: models.NewID(), SessionID: sess.ID, Timestamp: base, Message: "seeded", Level: models.LevelError,
		}}
		require.NoError(t, s.CreateSession(ctx, sess))

		got, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, got.Violations, 1)
		assert.Equal(t, "seeded", got.Violations[0].Description)
		require.Len(t, got.DetectionLogs, 1)
		assert.Equal(t, models.LevelError, got.DetectionLogs[0].Level)
	})

	t.Run("commit appends and updates together", func(t *testing.T) {
		c := newCandidate("Edsger Dijkstra", 3*time.Second)
		require.NoError(t, s.CreateCandidate(ctx, c))
		sess := newSession(c.ID, 3*time.Second)
		require.NoError(t, s.CreateSession(ctx, sess))

		start := base.Add(time.Minute)
		head := sess.Clone()
		head.StartTime = &start
		head.Status = models.StatusActive
		head.IntegrityScore = 85

		violations := []models.Violation{
			{ID: models.NewID(), SessionID: sess.ID, Timestamp: start, SessionTime: 4,
				Type: models.ViolationLookingAway, Severity: models.SeverityMedium, Description: "looking away"},
		}
		entries := []models.DetectionLogEntry{
			{ID: models.NewID(), SessionID: sess.ID, Timestamp: start, SessionTime: 4,
				Message: "looking away", Level: models.LevelWarning},
		}
		require.NoError(t, s.Commit(ctx, head, violations, entries))
		require.NoError(t, s.Commit(ctx, head, nil, nil))

		got, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, got.Status)
		assert.Equal(t, 85, got.IntegrityScore)
		require.Len(t, got.Violations, 1)
		assert.Equal(t, "looking away", got.Violations[0].Description)
		require.Len(t, got.DetectionLogs, 1)
		assert.Equal(t, models.LevelWarning, got.DetectionLogs[0].Level)

		missing := newSession(c.ID, 4*time.Second)
		assert.ErrorIs(t, s.Commit(ctx, missing, violations, entries), store.ErrNotFound)
		_, err = s.GetSession(ctx, missing.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("list filters by candidate", func(t *testing.T) {
		require.NoError(t, s.Clear(ctx))

		a := newCandidate("A", 0)
		b := newCandidate("B", time.Second)
		require.NoError(t, s.CreateCandidate(ctx, a))
		require.NoError(t, s.CreateCandidate(ctx, b))

		s1 := newSession(a.ID, 0)
		s2 := newSession(b.ID, time.Second)
		s3 := newSession(a.ID, 2*time.Second)
		for _, sess := range []*models.Session{s1, s2, s3} {
			require.NoError(t, s.CreateSession(ctx, sess))
		}

		all, err := s.ListSessions(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		ofA, err := s.ListSessions(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, ofA, 2)
		assert.Equal(t, s1.ID, ofA[0].ID)
		assert.Equal(t, s3.ID, ofA[1].ID)

		candidates, err := s.ListCandidates(ctx)
		require.NoError(t, err)
		require.Len(t, candidates, 2)
		assert.Equal(t, "A", candidates[0].Name)
	})

	t.Run("clear empties everything", func(t *testing.T) {
		require.NoError(t, s.Clear(ctx))

		sessions, err := s.ListSessions(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, sessions)

		candidates, err := s.ListCandidates(ctx)
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})

	assert.NoError(t, s.Ping(ctx))
}
