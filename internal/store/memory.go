package store

import (
	"context"
	"sync"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
)

// MemoryStore keeps everything in process. Used for replays, tests and
// single-node deployments that do not need durability.
type MemoryStore struct {
	mu sync.RWMutex

	candidates     map[string]*models.Candidate
	candidateOrder []string

	sessions     map[string]*models.Session
	sessionOrder []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		candidates: make(map[string]*models.Candidate),
		sessions:   make(map[string]*models.Session),
	}
}

func (m *MemoryStore) CreateCandidate(_ context.Context, candidate *models.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.candidates[candidate.ID]; ok {
		return ErrAlreadyExists
	}

	c := *candidate
	m.candidates[c.ID] = &c
	m.candidateOrder = append(m.candidateOrder, c.ID)
	return nil
}

func (m *MemoryStore) GetCandidate(_ context.Context, id string) (*models.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidate, ok := m.candidates[id]
	if !ok {
		return nil, ErrNotFound
	}

	c := *candidate
	return &c, nil
}

func (m *MemoryStore) ListCandidates(_ context.Context) ([]*models.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Candidate, 0, len(m.candidateOrder))
	for _, id := range m.candidateOrder {
		c := *m.candidates[id]
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.ID]; ok {
		return ErrAlreadyExists
	}

	s := session.Clone()
	ensureTimelines(s)
	m.sessions[s.ID] = s
	m.sessionOrder = append(m.sessionOrder, s.ID)
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return session.Clone(), nil
}

func (m *MemoryStore) ListSessions(_ context.Context, candidateID string) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Session, 0)
	for _, id := range m.sessionOrder {
		session := m.sessions[id]
		if candidateID != "" && session.CandidateID != candidateID {
			continue
		}
		out = append(out, session.Clone())
	}
	return out, nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sessions[session.ID]
	if !ok {
		return ErrNotFound
	}

	updated := topLevel(session)
	updated.Violations = existing.Violations
	updated.DetectionLogs = existing.DetectionLogs
	m.sessions[session.ID] = updated
	return nil
}

func (m *MemoryStore) AddViolation(_ context.Context, sessionID string, violation models.Violation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}

	session.Violations = append(session.Violations, violation)
	return nil
}

func (m *MemoryStore) AddDetectionLog(_ context.Context, sessionID string, entry models.DetectionLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}

	session.DetectionLogs = append(session.DetectionLogs, entry)
	return nil
}

func (m *MemoryStore) Commit(_ context.Context, session *models.Session, violations []models.Violation, entries []models.DetectionLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sessions[session.ID]
	if !ok {
		return ErrNotFound
	}

	updated := topLevel(session)
	updated.Violations = append(existing.Violations, violations...)
	updated.DetectionLogs = append(existing.DetectionLogs, entries...)
	m.sessions[session.ID] = updated
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.candidates = make(map[string]*models.Candidate)
	m.candidateOrder = nil
	m.sessions = make(map[string]*models.Session)
	m.sessionOrder = nil
	return nil
}

func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
