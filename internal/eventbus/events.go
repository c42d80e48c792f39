package eventbus

import (
	"strings"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
)

const (
	// SubjectDetections is the inbound wildcard; the last token is the session id.
	SubjectDetections = "proctor.detections.*"

	SubjectViolations      = "proctor.violations"
	subjectDetectionPrefix = "proctor.detections."
	subjectSessionPrefix   = "proctor.sessions."

	// QueueGroup spreads inbound detections across engine replicas.
	QueueGroup = "proctor-engine"
)

// DetectionSubject is where a detector publishes frames for one session.
func DetectionSubject(sessionID string) string {
	return subjectDetectionPrefix + sessionID
}

// SessionSubject carries lifecycle changes, e.g. proctor.sessions.completed.
func SessionSubject(status models.SessionStatus) string {
	return subjectSessionPrefix + string(status)
}

func sessionIDFromSubject(subject string) string {
	if !strings.HasPrefix(subject, subjectDetectionPrefix) {
		return ""
	}
	return strings.TrimPrefix(subject, subjectDetectionPrefix)
}

// ViolationEvent is published once per recorded violation.
type ViolationEvent struct {
	SessionID      string           `json:"sessionId"`
	CandidateID    string           `json:"candidateId"`
	Violation      models.Violation `json:"violation"`
	IntegrityScore int              `json:"integrityScore"`
}

// LifecycleEvent is published on start and stop. Summary is set once the
// session is final.
type LifecycleEvent struct {
	SessionID      string                 `json:"sessionId"`
	CandidateID    string                 `json:"candidateId"`
	Status         models.SessionStatus   `json:"status"`
	IntegrityScore int                    `json:"integrityScore"`
	Timestamp      time.Time              `json:"timestamp"`
	Summary        *models.SessionSummary `json:"summary,omitempty"`
}
