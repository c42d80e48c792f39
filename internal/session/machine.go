package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
)

var (
	// InvalidTransition - operation not allowed in the session's current state
	ErrInvalidTransition = errors.New("session: invalid state transition")

	// InvalidReason - stop called with something other than completed or terminated
	ErrInvalidReason = errors.New("session: stop reason must be completed or terminated")
)

// Machine owns one session. The one-slot lock channel serialises Start,
// Ingest and Stop; unlike a mutex it lets Ingest give up after its budget.
// mu only guards the snapshot so readers never wait on an in-flight ingest.
type Machine struct {
	lock chan struct{}

	mu              sync.RWMutex
	session         *models.Session
	lastSessionTime int
	evicted         bool
}

func newMachine(session *models.Session) *Machine {
	m := &Machine{
		lock:    make(chan struct{}, 1),
		session: session.Clone(),
	}
	for _, v := range session.Violations {
		if v.SessionTime > m.lastSessionTime {
			m.lastSessionTime = v.SessionTime
		}
	}
	return m
}

func (m *Machine) acquire(ctx context.Context) error {
	select {
	case m.lock <- struct{}{}:
		return nil
	default:
	}

	select {
	case m.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) release() {
	<-m.lock
}

// evict marks the machine as no longer owning its session. Its state may be
// ahead of the store, so anyone holding it must resolve the session again.
func (m *Machine) evict() {
	m.mu.Lock()
	m.evicted = true
	m.mu.Unlock()
}

func (m *Machine) isEvicted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.evicted
}

// Snapshot returns a deep copy of the current session state.
func (m *Machine) Snapshot() *models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Clone()
}

func (m *Machine) status() models.SessionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Status
}

// LastSessionTime is the latest point on the session's time axis, advanced by
// every accepted frame including clear ones.
func (m *Machine) LastSessionTime() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSessionTime
}

// sessionTime is whole seconds since start, never behind an earlier event.
// Caller holds the lock.
func (m *Machine) sessionTime(now time.Time) int {
	elapsed := 0
	if m.session.StartTime != nil {
		elapsed = int(now.Sub(*m.session.StartTime) / time.Second)
	}
	if elapsed < m.lastSessionTime {
		elapsed = m.lastSessionTime
	}
	return elapsed
}

func (m *Machine) commit(apply func(s *models.Session)) {
	m.mu.Lock()
	apply(m.session)
	m.mu.Unlock()
}
