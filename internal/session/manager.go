package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/clock"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/scoring"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/store"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultIngestBudget      = 500 * time.Millisecond
	DefaultFinishedCacheSize = 1024
)

// DropReason explains why a detection was not applied.
type DropReason string

const (
	DropReasonNone       DropReason = ""
	DropReasonNotStarted DropReason = "not_started"
	DropReasonFinished   DropReason = "finished"
	DropReasonBusy       DropReason = "busy"
)

// LiveStatus mirrors the candidate-facing indicator for the latest frame.
type LiveStatus string

const (
	LiveGood      LiveStatus = "good"
	LiveWarning   LiveStatus = "warning"
	LiveViolation LiveStatus = "violation"
)

// Classifier turns one frame into stamped violations. engine.Engine implements it.
type Classifier interface {
	Classify(result models.DetectionResult, sessionTime int) []models.Violation
}

// IngestOutcome reports what a single detection did to its session.
type IngestOutcome struct {
	Accepted       bool               `json:"accepted"`
	DropReason     DropReason         `json:"dropReason,omitempty"`
	SessionTime    int                `json:"sessionTime"`
	Violations     []models.Violation `json:"violations"`
	IntegrityScore int                `json:"integrityScore"`
	Status         LiveStatus         `json:"status"`
}

type ManagerConfig struct {
	Store      store.Store
	Classifier Classifier
	Policy     scoring.Policy
	Clock      clock.Clock
	Notifier   Notifier
	Recorder   Recorder
	Logger     *slog.Logger

	// IngestBudget is how long Ingest waits for a busy session before dropping.
	IngestBudget      time.Duration
	FinishedCacheSize int
}

// Manager is the single writer of session state. Every session gets its own
// Machine; different sessions never contend.
type Manager struct {
	store      store.Store
	classifier Classifier
	policy     scoring.Policy
	clock      clock.Clock
	notifier   Notifier
	recorder   Recorder
	logger     *slog.Logger
	budget     time.Duration

	mu       sync.RWMutex
	machines map[string]*Machine

	// finished remembers terminal sessions so late detections are dropped
	// without a store round trip.
	finished *lru.Cache[string, models.SessionStatus]
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("session: classifier is required")
	}
	if cfg.Policy == nil {
		cfg.Policy = scoring.NewSeverityPolicy()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IngestBudget <= 0 {
		cfg.IngestBudget = DefaultIngestBudget
	}
	if cfg.FinishedCacheSize <= 0 {
		cfg.FinishedCacheSize = DefaultFinishedCacheSize
	}

	finished, err := lru.New[string, models.SessionStatus](cfg.FinishedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create finished-session cache: %w", err)
	}

	return &Manager{
		store:      cfg.Store,
		classifier: cfg.Classifier,
		policy:     cfg.Policy,
		clock:      cfg.Clock,
		notifier:   cfg.Notifier,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger,
		budget:     cfg.IngestBudget,
		machines:   make(map[string]*Machine),
		finished:   finished,
	}, nil
}

// Create registers a new pending session for an existing candidate.
func (m *Manager) Create(ctx context.Context, candidateID string) (*models.Session, error) {
	if _, err := m.store.GetCandidate(ctx, candidateID); err != nil {
		return nil, fmt.Errorf("candidate %s: %w", candidateID, err)
	}

	session := &models.Session{
		ID:             models.NewID(),
		CandidateID:    candidateID,
		Status:         models.StatusPending,
		IntegrityScore: scoring.MaxScore,
		Violations:     make([]models.Violation, 0),
		DetectionLogs:  make([]models.DetectionLogEntry, 0),
		CreatedAt:      m.clock.Now(),
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.logger.Info("session created", "session_id", session.ID, "candidate_id", candidateID)
	return session.Clone(), nil
}

// Get returns a snapshot. Live sessions are served from memory, everything
// else from the store.
func (m *Manager) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	machine, ok := m.machines[id]
	m.mu.RUnlock()

	if ok {
		return machine.Snapshot(), nil
	}

	session, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	session.IntegrityScore = m.policy.Score(session.Violations)
	return session, nil
}

func (m *Manager) Start(ctx context.Context, id string) (*models.Session, error) {
	machine, err := m.lock(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	defer machine.release()

	current := machine.status()
	if current != models.StatusPending {
		return nil, fmt.Errorf("%w: cannot start %s session", ErrInvalidTransition, current)
	}

	now := m.clock.Now()
	entry := models.DetectionLogEntry{
		ID:          models.NewID(),
		SessionID:   id,
		Timestamp:   now,
		SessionTime: 0,
		Message:     "Session started",
		Level:       models.LevelInfo,
	}

	machine.commit(func(s *models.Session) {
		start := now
		s.StartTime = &start
		s.Status = models.StatusActive
		s.DetectionLogs = append(s.DetectionLogs, entry)
	})
	snapshot := machine.Snapshot()

	if err := m.persist(ctx, machine, snapshot, nil, []models.DetectionLogEntry{entry}); err != nil {
		return nil, err
	}

	m.recorder.SessionStarted()
	m.notifyLifecycle(ctx, snapshot)
	m.logger.Info("session started", "session_id", id)

	return snapshot, nil
}

// Ingest applies one detection. Detections for sessions that are not active,
// or that arrive while the session is busy past the ingest budget, are
// dropped: Accepted is false and the error is nil.
func (m *Manager) Ingest(ctx context.Context, id string, result models.DetectionResult) (IngestOutcome, error) {
	began := time.Now()

	if status, ok := m.finished.Get(id); ok {
		return m.drop(id, DropReasonFinished, status), nil
	}

	machine, err := m.lock(ctx, id, m.budget)
	if err != nil {
		if machine == nil {
			return IngestOutcome{}, err
		}
		if ctx.Err() != nil {
			return IngestOutcome{}, ctx.Err()
		}
		return m.drop(id, DropReasonBusy, machine.status()), nil
	}
	defer machine.release()

	switch status := machine.status(); status {
	case models.StatusActive:
	case models.StatusPending:
		return m.drop(id, DropReasonNotStarted, status), nil
	default:
		return m.drop(id, DropReasonFinished, status), nil
	}

	// Holding the lock slot makes this goroutine the only writer, so the
	// session can be read without mu until the result is committed.
	now := m.clock.Now()
	sessionTime := machine.sessionTime(now)

	violations := m.classifier.Classify(result, sessionTime)
	entries := make([]models.DetectionLogEntry, 0, len(violations))
	for i := range violations {
		violations[i].SessionID = id
		entries = append(entries, mirrorEntry(violations[i]))
	}

	machine.commit(func(s *models.Session) {
		machine.lastSessionTime = sessionTime
		if len(violations) == 0 {
			return
		}
		s.Violations = append(s.Violations, violations...)
		s.DetectionLogs = append(s.DetectionLogs, entries...)
		s.IntegrityScore = m.policy.Score(s.Violations)
	})
	snapshot := machine.Snapshot()

	outcome := IngestOutcome{
		Accepted:       true,
		SessionTime:    sessionTime,
		Violations:     violations,
		IntegrityScore: snapshot.IntegrityScore,
		Status:         liveStatus(violations),
	}

	if len(violations) > 0 {
		if err := m.persist(ctx, machine, snapshot, violations, entries); err != nil {
			return IngestOutcome{}, err
		}

		for _, v := range violations {
			m.recorder.ViolationRecorded(v)
			m.logger.Info("violation recorded",
				"session_id", id,
				"type", v.Type,
				"severity", v.Severity,
				"session_time", v.SessionTime,
				"score", snapshot.IntegrityScore,
			)
		}
		m.notifyViolations(ctx, snapshot, violations)
	}

	m.recorder.DetectionIngested(time.Since(began))
	return outcome, nil
}

// Stop ends an active session. It waits for any in-flight ingest, so nothing
// is appended after EndTime.
func (m *Manager) Stop(ctx context.Context, id string, reason models.SessionStatus) (*models.Session, error) {
	if !reason.IsFinal() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}

	machine, err := m.lock(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	defer machine.release()

	current := machine.status()
	if current != models.StatusActive {
		return nil, fmt.Errorf("%w: cannot stop %s session", ErrInvalidTransition, current)
	}

	now := m.clock.Now()
	var entry models.DetectionLogEntry

	machine.commit(func(s *models.Session) {
		sessionTime := machine.sessionTime(now)
		machine.lastSessionTime = sessionTime

		end := now
		s.EndTime = &end
		s.DurationSeconds = sessionTime
		s.Status = reason

		entry = models.DetectionLogEntry{
			ID:          models.NewID(),
			SessionID:   id,
			Timestamp:   now,
			SessionTime: sessionTime,
			Message:     "Session completed",
			Level:       models.LevelInfo,
		}
		if reason == models.StatusTerminated {
			entry.Message = "Session terminated"
			entry.Level = models.LevelWarning
		}
		s.DetectionLogs = append(s.DetectionLogs, entry)
	})
	snapshot := machine.Snapshot()

	if err := m.persist(ctx, machine, snapshot, nil, []models.DetectionLogEntry{entry}); err != nil {
		return nil, err
	}

	m.retire(id, reason)
	m.recorder.SessionFinished(reason, snapshot.IntegrityScore)
	m.notifyLifecycle(ctx, snapshot)
	m.logger.Info("session stopped",
		"session_id", id,
		"status", reason,
		"duration_seconds", snapshot.DurationSeconds,
		"integrity_score", snapshot.IntegrityScore,
		"violations", len(snapshot.Violations),
	)

	return snapshot, nil
}

// Clear wipes the store and every in-memory machine with it.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	for _, machine := range m.machines {
		machine.evict()
	}
	m.machines = make(map[string]*Machine)
	m.mu.Unlock()
	m.finished.Purge()

	m.logger.Warn("all session data cleared")
	return nil
}

// ActiveSessions is the number of sessions this process is driving.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, machine := range m.machines {
		if machine.status() == models.StatusActive {
			count++
		}
	}
	return count
}

// lock resolves the machine for id and takes its slot, waiting at most budget
// when budget is positive. A machine evicted while the caller waited is let go
// and the session resolved again. When the slot cannot be taken the machine
// is returned alongside the error.
func (m *Manager) lock(ctx context.Context, id string, budget time.Duration) (*Machine, error) {
	waitCtx := ctx
	if budget > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	for {
		machine, err := m.machine(ctx, id)
		if err != nil {
			return nil, err
		}

		if err := machine.acquire(waitCtx); err != nil {
			return machine, err
		}
		if !machine.isEvicted() {
			return machine, nil
		}
		machine.release()
	}
}

// machine returns the live machine for id, loading it from the store if
// this process has not seen the session yet.
func (m *Manager) machine(ctx context.Context, id string) (*Machine, error) {
	m.mu.RLock()
	machine, ok := m.machines[id]
	m.mu.RUnlock()
	if ok {
		return machine, nil
	}

	session, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}

	// The score is derived; rebuild it in case an earlier write was cut short.
	session.IntegrityScore = m.policy.Score(session.Violations)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.machines[id]; ok {
		return existing, nil
	}

	machine = newMachine(session)
	if session.Status.IsFinal() {
		m.finished.Add(id, session.Status)
		return machine, nil
	}

	m.machines[id] = machine
	return machine, nil
}

func (m *Manager) retire(id string, status models.SessionStatus) {
	m.mu.Lock()
	delete(m.machines, id)
	m.mu.Unlock()
	m.finished.Add(id, status)
}

// persist hands the appends and the new head to the store as one atomic
// commit. On failure the machine is evicted, since its state is now ahead of
// the store, and the session reloads from durable state on next use.
func (m *Manager) persist(ctx context.Context, machine *Machine, snapshot *models.Session, violations []models.Violation, entries []models.DetectionLogEntry) error {
	id := snapshot.ID

	err := m.store.Commit(ctx, snapshot, violations, entries)
	if err == nil {
		return nil
	}

	machine.evict()
	m.mu.Lock()
	if m.machines[id] == machine {
		delete(m.machines, id)
	}
	m.mu.Unlock()

	m.logger.Error("failed to persist session", "session_id", id, "error", err)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("session %s: %w", id, err)
	}
	if !errors.Is(err, store.ErrUnavailable) {
		err = fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return fmt.Errorf("persist session %s: %w", id, err)
}

func (m *Manager) drop(id string, reason DropReason, status models.SessionStatus) IngestOutcome {
	m.recorder.DetectionDropped(string(reason))
	m.logger.Debug("detection dropped", "session_id", id, "reason", reason, "status", status)
	return IngestOutcome{
		Accepted:   false,
		DropReason: reason,
		Violations: make([]models.Violation, 0),
	}
}

func (m *Manager) notifyViolations(ctx context.Context, snapshot *models.Session, violations []models.Violation) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.PublishViolations(ctx, snapshot, violations); err != nil {
		m.logger.Warn("failed to publish violations", "session_id", snapshot.ID, "error", err)
	}
}

func (m *Manager) notifyLifecycle(ctx context.Context, snapshot *models.Session) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.PublishLifecycle(ctx, snapshot); err != nil {
		m.logger.Warn("failed to publish lifecycle event", "session_id", snapshot.ID, "error", err)
	}
}

// mirrorEntry copies a violation into the detection log. High severity logs
// as error, everything else as warning.
func mirrorEntry(v models.Violation) models.DetectionLogEntry {
	level := models.LevelWarning
	if v.Severity == models.SeverityHigh {
		level = models.LevelError
	}

	return models.DetectionLogEntry{
		ID:          models.NewID(),
		SessionID:   v.SessionID,
		Timestamp:   v.Timestamp,
		SessionTime: v.SessionTime,
		Message:     v.Description,
		Level:       level,
	}
}

func liveStatus(violations []models.Violation) LiveStatus {
	status := LiveGood
	for _, v := range violations {
		if v.Severity == models.SeverityHigh {
			return LiveViolation
		}
		status = LiveWarning
	}
	return status
}
