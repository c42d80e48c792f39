package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/clock"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/engine"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/scoring"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/session"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	manager   *session.Manager
	store     store.Store
	clock     *clock.Manual
	candidate *models.Candidate
	notifier  *recordingNotifier
}

func newFixture(t *testing.T, opts ...func(*session.ManagerConfig)) *fixture {
	t.Helper()

	clk := clock.NewManual(t0)
	st := store.NewMemoryStore()
	notifier := &recordingNotifier{}

	cfg := session.ManagerConfig{
		Store:        st,
		Classifier:   engine.NewDefaultEngine(clk, nil),
		Policy:       scoring.NewSeverityPolicy(),
		Clock:        clk,
		Notifier:     notifier,
		IngestBudget: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	manager, err := session.NewManager(cfg)
	require.NoError(t, err)

	candidate := &models.Candidate{
		ID:        models.NewID(),
		Name:      "Jane Doe",
		Email:     "jane@example.com",
		Position:  "SRE",
		CreatedAt: t0,
	}
	require.NoError(t, cfg.Store.CreateCandidate(context.Background(), candidate))

	return &fixture{
		manager:   manager,
		store:     cfg.Store,
		clock:     clk,
		candidate: candidate,
		notifier:  notifier,
	}
}

func (f *fixture) started(t *testing.T) *models.Session {
	t.Helper()
	ctx := context.Background()

	s, err := f.manager.Create(ctx, f.candidate.ID)
	require.NoError(t, err)
	s, err = f.manager.Start(ctx, s.ID)
	require.NoError(t, err)
	return s
}

func clearFrame() models.DetectionResult {
	return models.DetectionResult{FaceDetected: true, EyeGaze: models.GazeFocused, Confidence: 0.95}
}

func noFace() models.DetectionResult {
	return models.DetectionResult{FaceDetected: false, EyeGaze: models.GazeUnknown, Confidence: 0.9}
}

func lookingAway() models.DetectionResult {
	return models.DetectionResult{FaceDetected: true, EyeGaze: models.GazeLookingAway, Confidence: 0.8}
}

type recordingNotifier struct {
	mu         sync.Mutex
	violations []models.Violation
	lifecycle  []models.SessionStatus
}

func (r *recordingNotifier) PublishViolations(_ context.Context, _ *models.Session, violations []models.Violation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations = append(r.violations, violations...)
	return nil
}

func (r *recordingNotifier) PublishLifecycle(_ context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lifecycle = append(r.lifecycle, s.Status)
	return nil
}

func TestManager_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s1, err := f.manager.Create(ctx, f.candidate.ID)
	require.NoError(t, err)
	s2, err := f.manager.Create(ctx, f.candidate.ID)
	require.NoError(t, err)

	assert.NotEqual(t, s1.ID, s2.ID, "each create yields a distinct session")
	assert.Equal(t, models.StatusPending, s1.Status)
	assert.Equal(t, 100, s1.IntegrityScore)
	assert.Nil(t, s1.StartTime)
	assert.Empty(t, s1.Violations)
	assert.Empty(t, s1.DetectionLogs)

	stored, err := f.store.GetSession(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestManager_Create_UnknownCandidate(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Create(context.Background(), "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManager_Start(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.started(t)

	assert.Equal(t, models.StatusActive, s.Status)
	require.NotNil(t, s.StartTime)
	assert.Equal(t, t0, *s.StartTime)
	require.Len(t, s.DetectionLogs, 1)
	assert.Equal(t, "Session started", s.DetectionLogs[0].Message)
	assert.Equal(t, models.LevelInfo, s.DetectionLogs[0].Level)
	assert.Equal(t, 0, s.DetectionLogs[0].SessionTime)

	_, err := f.manager.Start(ctx, s.ID)
	assert.ErrorIs(t, err, session.ErrInvalidTransition, "start on active session")

	_, err = f.manager.Start(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// Scenario A: no violations.
func TestManager_ScenarioA_CleanSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t)

	for i := 0; i < 5; i++ {
		f.clock.Advance(time.Second)
		outcome, err := f.manager.Ingest(ctx, s.ID, clearFrame())
		require.NoError(t, err)
		assert.True(t, outcome.Accepted)
		assert.Equal(t, session.LiveGood, outcome.Status)
	}

	final, err := f.manager.Stop(ctx, s.ID, models.StatusCompleted)
	require.NoError(t, err)

	assert.Equal(t, 100, final.IntegrityScore)
	assert.Empty(t, final.Violations)
	assert.Equal(t, 5, final.DurationSeconds)
	require.Len(t, final.DetectionLogs, 2)
	assert.Equal(t, "Session completed", final.DetectionLogs[1].Message)
}

// Scenario B: one missing face at t=3, stop at t=10.
func TestManager_ScenarioB_SingleHighViolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t)

	f.clock.Advance(3 * time.Second)
	outcome, err := f.manager.Ingest(ctx, s.ID, noFace())
	require.NoError(t, err)
	assert.True(t, outcome.Accepted)
	assert.Equal(t, 3, outcome.SessionTime)
	assert.Equal(t, 90, outcome.IntegrityScore)
	assert.Equal(t, session.LiveViolation, outcome.Status)

	f.clock.Advance(7 * time.Second)
	final, err := f.manager.Stop(ctx, s.ID, models.StatusCompleted)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, 90, final.IntegrityScore)
	assert.Equal(t, 10, final.DurationSeconds)
	require.NotNil(t, final.EndTime)
	assert.Equal(t, t0.Add(10*time.Second), *final.EndTime)

	require.Len(t, final.Violations, 1)
	v := final.Violations[0]
	assert.Equal(t, models.ViolationFaceNotDetected, v.Type)
	assert.Equal(t, 3, v.SessionTime)
	assert.Equal(t, s.ID, v.SessionID)

	// started, mirrored violation, completed
	require.Len(t, final.DetectionLogs, 3)
	assert.Equal(t, "No face detected in frame", final.DetectionLogs[1].Message)
	assert.Equal(t, models.LevelError, final.DetectionLogs[1].Level)

	stored, err := f.store.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, final.IntegrityScore, stored.IntegrityScore)
	assert.Len(t, stored.Violations, 1)
	assert.Len(t, stored.DetectionLogs, 3)
}

// Scenario C: three high and one medium.
func TestManager_ScenarioC_Mixed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t)

	frames := []models.DetectionResult{noFace(), noFace(), lookingAway(), noFace()}
	for _, frame := range frames {
		f.clock.Advance(2 * time.Second)
		_, err := f.manager.Ingest(ctx, s.ID, frame)
		require.NoError(t, err)
	}

	final, err := f.manager.Stop(ctx, s.ID, models.StatusCompleted)
	require.NoError(t, err)

	assert.Equal(t, 65, final.IntegrityScore)
	assert.Len(t, final.Violations, 4)
	assert.Equal(t, models.LevelWarning, final.DetectionLogs[3].Level, "medium mirrors as warning")
}

// Scenario D: eleven high violations never go negative.
func TestManager_ScenarioD_ClampsAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t)

	for i := 0; i < 11; i++ {
		f.clock.Advance(time.Second)
		outcome, err := f.manager.Ingest(ctx, s.ID, noFace())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, outcome.IntegrityScore, 0)
	}

	final, err := f.manager.Stop(ctx, s.ID, models.StatusTerminated)
	require.NoError(t, err)

	assert.Equal(t, 0, final.IntegrityScore)
	assert.Len(t, final.Violations, 11)
	assert.Equal(t, models.StatusTerminated, final.Status)
	last := final.DetectionLogs[len(final.DetectionLogs)-1]
	assert.Equal(t, "Session terminated", last.Message)
	assert.Equal(t, models.LevelWarning, last.Level)
}

func TestManager_SameSecondKeepsArrivalOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t)

	f.clock.Advance(4*time.Second + 200*time.Millisecond)
	_, err := f.manager.Ingest(ctx, s.ID, lookingAway())
	require.NoError(t, err)

	f.clock.Advance(500 * time.Millisecond)
	_, err = f.manager.Ingest(ctx, s.ID, noFace())
	require.NoError(t, err)

	snapshot, err := f.manager.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, snapshot.Violations, 2)
	assert.Equal(t, 4, snapshot.Violations[0].SessionTime)
	assert.Equal(t, 4, snapshot.Violations[1].SessionTime)
	assert.Equal(t, models.ViolationLookingAway, snapshot.Violations[0].Type)
	assert.Equal(t, models.ViolationFaceNotDetected, snapshot.Violations[1].Type)
}

func TestManager_ClearFrameAdvancesTimeAxis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t)

	f.clock.Advance(8 * time.Second)
	outcome, err := f.manager.Ingest(ctx, s.ID, clearFrame())
	require.NoError(t, err)
	assert.True(t, outcome.Accepted)
	assert.Equal(t, 8, outcome.SessionTime)
	assert.Empty(t, outcome.Violations)

	// A clock step backwards must not move a later violation before t=8.
	f.clock.Set(t0.Add(5 * time.Second))
	outcome, err = f.manager.Ingest(ctx, s.ID, noFace())
	require.NoError(t, err)
	assert.Equal(t, 8, outcome.SessionTime)
}

func TestManager_IngestDroppedWhenPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.manager.Create(ctx, f.candidate.ID)
	require.NoError(t, err)

	outcome, err := f.manager.Ingest(ctx, s.ID, noFace())
	require.NoError(t, err, "drops are silent")
	assert.False(t, outcome.Accepted)
	assert.Equal(t, session.DropReasonNotStarted, outcome.DropReason)

	snapshot, err := f.manager.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Violations)
	assert.Equal(t, 100, snapshot.IntegrityScore)
}

func TestManager_IngestDroppedAfterStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t)

	f.clock.Advance(3 * time.Second)
	_, err := f.manager.Ingest(ctx, s.ID, noFace())
	require.NoError(t, err)

	final, err := f.manager.Stop(ctx, s.ID, models.StatusCompleted)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	outcome, err := f.manager.Ingest(ctx, s.ID, noFace())
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, session.DropReasonFinished, outcome.DropReason)

	after, err := f.manager.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, final, after, "late detections must not mutate a finished session")
}

func TestManager_IngestUnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Ingest(context.Background(), "missing", noFace())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManager_StopTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t)

	f.clock.Advance(5 * time.Second)
	first, err := f.manager.Stop(ctx, s.ID, models.StatusCompleted)
	require.NoError(t, err)

	f.clock.Advance(5 * time.Second)
	_, err = f.manager.Stop(ctx, s.ID, models.StatusTerminated)
	assert.ErrorIs(t, err, session.ErrInvalidTransition)

	after, err := f.manager.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, first, after)
}

func TestManager_StopRequiresActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.manager.Create(ctx, f.candidate.ID)
	require.NoError(t, err)

	_, err = f.manager.Stop(ctx, s.ID, models.StatusCompleted)
	assert.ErrorIs(t, err, session.ErrInvalidTransition)

	_, err = f.manager.Stop(ctx, s.ID, models.StatusActive)
	assert.ErrorIs(t, err, session.ErrInvalidReason)
}

func TestManager_BusySessionDropsPastBudget(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)

	f := newFixture(t, func(cfg *session.ManagerConfig) {
		cfg.Classifier = &blockingClassifier{inner: cfg.Classifier, entered: entered, gate: gate}
		cfg.IngestBudget = 20 * time.Millisecond
	})
	ctx := context.Background()
	s := f.started(t)

	done := make(chan session.IngestOutcome, 1)
	go func() {
		outcome, _ := f.manager.Ingest(ctx, s.ID, noFace())
		done <- outcome
	}()
	<-entered

	outcome, err := f.manager.Ingest(ctx, s.ID, noFace())
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, session.DropReasonBusy, outcome.DropReason)

	close(gate)
	first := <-done
	assert.True(t, first.Accepted)

	snapshot, err := f.manager.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, snapshot.Violations, 1)
}

func TestManager_StopWaitsForInFlightIngest(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)

	f := newFixture(t, func(cfg *session.ManagerConfig) {
		cfg.Classifier = &blockingClassifier{inner: cfg.Classifier, entered: entered, gate: gate}
	})
	ctx := context.Background()
	s := f.started(t)
	f.clock.Advance(2 * time.Second)

	go func() {
		_, _ = f.manager.Ingest(ctx, s.ID, noFace())
	}()
	<-entered

	stopped := make(chan *models.Session, 1)
	go func() {
		final, err := f.manager.Stop(ctx, s.ID, models.StatusCompleted)
		assert.NoError(t, err)
		stopped <- final
	}()

	select {
	case <-stopped:
		t.Fatal("stop must wait for the in-flight ingest")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	final := <-stopped
	require.Len(t, final.Violations, 1)
	assert.Equal(t, 90, final.IntegrityScore)
	for _, v := range final.Violations {
		assert.LessOrEqual(t, v.SessionTime, final.DurationSeconds)
	}
}

func TestManager_ConcurrentIngestSameSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t)
	f.clock.Advance(time.Second)

	const workers = 12
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := f.manager.Ingest(ctx, s.ID, lookingAway())
			assert.NoError(t, err)
			assert.True(t, outcome.Accepted)
		}()
	}
	wg.Wait()

	snapshot, err := f.manager.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, snapshot.Violations, workers)
	assert.Equal(t, scoring.NewSeverityPolicy().Score(snapshot.Violations), snapshot.IntegrityScore)
	assert.Equal(t, 40, snapshot.IntegrityScore)
}

func TestManager_IndependentSessionsInParallel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sessions := make([]*models.Session, 4)
	for i := range sessions {
		sessions[i] = f.started(t)
	}
	f.clock.Advance(time.Second)

	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func(n int, id string) {
			defer wg.Done()
			for j := 0; j <= n; j++ {
				_, err := f.manager.Ingest(ctx, id, noFace())
				assert.NoError(t, err)
			}
		}(i, s.ID)
	}
	wg.Wait()

	for i, s := range sessions {
		snapshot, err := f.manager.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Len(t, snapshot.Violations, i+1, fmt.Sprintf("session %d", i))
		assert.Equal(t, 100-10*(i+1), snapshot.IntegrityScore)
	}
	assert.Equal(t, 4, f.manager.ActiveSessions())
}

func TestManager_NotifiesBus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t)

	f.clock.Advance(time.Second)
	_, err := f.manager.Ingest(ctx, s.ID, models.DetectionResult{
		FaceDetected:    true,
		ObjectsDetected: []string{"phone", "notes"},
	})
	require.NoError(t, err)
	_, err = f.manager.Stop(ctx, s.ID, models.StatusCompleted)
	require.NoError(t, err)

	assert.Len(t, f.notifier.violations, 2)
	assert.Equal(t, []models.SessionStatus{models.StatusActive, models.StatusCompleted}, f.notifier.lifecycle)
}

func TestManager_RehydratesFromStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t)

	f.clock.Advance(2 * time.Second)
	_, err := f.manager.Ingest(ctx, s.ID, noFace())
	require.NoError(t, err)

	// A second manager over the same store picks the session up mid-flight.
	other, err := session.NewManager(session.ManagerConfig{
		Store:      f.store,
		Classifier: engine.NewDefaultEngine(f.clock, nil),
		Clock:      f.clock,
	})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Second)
	outcome, err := other.Ingest(ctx, s.ID, lookingAway())
	require.NoError(t, err)
	assert.True(t, outcome.Accepted)
	assert.Equal(t, 4, outcome.SessionTime)
	assert.Equal(t, 85, outcome.IntegrityScore)
}

func TestManager_StoreFailureIsUnavailable(t *testing.T) {
	failing := &flakyStore{Store: store.NewMemoryStore()}
	f := newFixture(t, func(cfg *session.ManagerConfig) {
		cfg.Store = failing
	})
	ctx := context.Background()
	s := f.started(t)

	failing.fail = true
	f.clock.Advance(time.Second)
	_, err := f.manager.Ingest(ctx, s.ID, noFace())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.NotErrorIs(t, err, store.ErrNotFound)

	// Nothing of the failed commit reached the store.
	stored, err := failing.Store.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Violations)
	assert.Len(t, stored.DetectionLogs, 1)
	assert.Equal(t, scoring.MaxScore, stored.IntegrityScore)

	// Once the backend recovers the session reloads from durable state.
	failing.fail = false
	snapshot, err := f.manager.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Violations)
	assert.Equal(t, models.StatusActive, snapshot.Status)

	outcome, err := f.manager.Ingest(ctx, s.ID, noFace())
	require.NoError(t, err)
	assert.Equal(t, 90, outcome.IntegrityScore)
}

func TestManager_WaiterAfterFailedCommitReloadsSession(t *testing.T) {
	stalling := &stallingStore{
		Store:   store.NewMemoryStore(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	f := newFixture(t, func(cfg *session.ManagerConfig) {
		cfg.Store = stalling
		cfg.IngestBudget = 5 * time.Second
	})
	ctx := context.Background()
	s := f.started(t)
	f.clock.Advance(time.Second)

	stalling.armed.Store(true)
	failed := make(chan error, 1)
	go func() {
		_, err := f.manager.Ingest(ctx, s.ID, noFace())
		failed <- err
	}()
	<-stalling.entered

	queued := make(chan session.IngestOutcome, 1)
	go func() {
		outcome, err := f.manager.Ingest(ctx, s.ID, lookingAway())
		assert.NoError(t, err)
		queued <- outcome
	}()
	// Give the second ingest time to queue behind the stalled commit.
	time.Sleep(50 * time.Millisecond)

	close(stalling.release)
	assert.ErrorIs(t, <-failed, store.ErrUnavailable)

	outcome := <-queued
	assert.True(t, outcome.Accepted)
	assert.Equal(t, 95, outcome.IntegrityScore)

	snapshot, err := f.manager.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, snapshot.Violations, 1)
	assert.Equal(t, models.ViolationLookingAway, snapshot.Violations[0].Type)
	assert.Equal(t, 95, snapshot.IntegrityScore)

	stored, err := stalling.Store.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, stored.Violations, 1)
	assert.Equal(t, 95, stored.IntegrityScore)
}

func TestManager_GetDerivesScoreFromStoredViolations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t)

	// An append that landed without its head update.
	require.NoError(t, f.store.AddViolation(ctx, s.ID, models.Violation{
		ID:        models.NewID(),
		SessionID: s.ID,
		Timestamp: t0,
		Type:      models.ViolationFaceNotDetected,
		Severity:  models.SeverityHigh,
	}))

	other, err := session.NewManager(session.ManagerConfig{
		Store:      f.store,
		Classifier: engine.NewDefaultEngine(f.clock, nil),
		Clock:      f.clock,
	})
	require.NoError(t, err)

	snapshot, err := other.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, snapshot.Violations, 1)
	assert.Equal(t, 90, snapshot.IntegrityScore)
}

func TestManager_Clear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t)

	require.NoError(t, f.manager.Clear(ctx))

	_, err := f.manager.Get(ctx, s.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, f.manager.ActiveSessions())
}

func TestNewManager_RequiresStoreAndClassifier(t *testing.T) {
	_, err := session.NewManager(session.ManagerConfig{})
	assert.Error(t, err)

	_, err = session.NewManager(session.ManagerConfig{Store: store.NewMemoryStore()})
	assert.Error(t, err)
}

type blockingClassifier struct {
	inner   session.Classifier
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

// Classify blocks the first call only, until gate is closed.
func (b *blockingClassifier) Classify(result models.DetectionResult, sessionTime int) []models.Violation {
	first := false
	b.once.Do(func() { first = true })
	if first {
		b.entered <- struct{}{}
		<-b.gate
	}
	return b.inner.Classify(result, sessionTime)
}

type flakyStore struct {
	store.Store
	fail bool
}

var errBackendDown = errors.New("connection refused")

func (f *flakyStore) Commit(ctx context.Context, s *models.Session, violations []models.Violation, entries []models.DetectionLogEntry) error {
	if f.fail {
		return fmt.Errorf("%w: commit session: %w", store.ErrUnavailable, errBackendDown)
	}
	return f.Store.Commit(ctx, s, violations, entries)
}

func (f *flakyStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if f.fail {
		return nil, fmt.Errorf("%w: get session: %w", store.ErrUnavailable, errBackendDown)
	}
	return f.Store.GetSession(ctx, id)
}

// stallingStore holds the first Commit after armed is set until release is
// closed, then fails it.
type stallingStore struct {
	store.Store
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (s *stallingStore) Commit(ctx context.Context, session *models.Session, violations []models.Violation, entries []models.DetectionLogEntry) error {
	if s.armed.CompareAndSwap(true, false) {
		s.entered <- struct{}{}
		<-s.release
		return fmt.Errorf("%w: commit session: %w", store.ErrUnavailable, errBackendDown)
	}
	return s.Store.Commit(ctx, session, violations, entries)
}
