package session

import (
	"context"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
)

// Recorder receives engine counters. metrics.Metrics implements it.
type Recorder interface {
	DetectionIngested(d time.Duration)
	DetectionDropped(reason string)
	ViolationRecorded(v models.Violation)
	SessionStarted()
	SessionFinished(status models.SessionStatus, score int)
}

// Notifier fans session events out to the event bus. Failures are logged,
// never returned to the caller of the state machine.
type Notifier interface {
	PublishViolations(ctx context.Context, session *models.Session, violations []models.Violation) error
	PublishLifecycle(ctx context.Context, session *models.Session) error
}

type noopRecorder struct{}

func (noopRecorder) DetectionIngested(time.Duration) {}
func (noopRecorder) DetectionDropped(string) {}
func (noopRecorder) ViolationRecorded(models.Violation) {}
func (noopRecorder) SessionStarted() {}
func (noopRecorder) SessionFinished(models.SessionStatus, int) {}
