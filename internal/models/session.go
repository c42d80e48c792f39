package models

import (
	"time"

	"github.com/google/uuid"
)

// ViolationType groups violations by the rule that raised them
type ViolationType string

const (
	ViolationFaceNotDetected    ViolationType = "face_not_detected"
	ViolationLookingAway        ViolationType = "looking_away"
	ViolationMultipleFaces      ViolationType = "multiple_faces"
	ViolationUnauthorizedObject ViolationType = "unauthorized_object"
)

// Severity indicates how much a violation costs the candidate
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// LogLevel of a detection log entry
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// SessionStatus is the lifecycle state of a proctoring session.
type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusActive     SessionStatus = "active"
	StatusCompleted  SessionStatus = "completed"
	StatusTerminated SessionStatus = "terminated"
)

// IsFinal reports whether no further transitions or appends are allowed.
func (s SessionStatus) IsFinal() bool {
	return s == StatusCompleted || s == StatusTerminated
}

// Violation is one classified integrity breach. Immutable once created.
type Violation struct {
	ID          string        `json:"id" bson:"id"`
	SessionID   string        `json:"sessionId" bson:"session_id"`
	Timestamp   time.Time     `json:"timestamp" bson:"timestamp"`
	SessionTime int           `json:"sessionTime" bson:"session_time"`
	Type        ViolationType `json:"type" bson:"type"`
	Severity    Severity      `json:"severity" bson:"severity"`
	Description string        `json:"description" bson:"description"`
	Confidence  float64       `json:"confidence" bson:"confidence"`
}

// DetectionLogEntry records lifecycle events and mirrored violations.
type DetectionLogEntry struct {
	ID          string    `json:"id" bson:"id"`
	SessionID   string    `json:"sessionId" bson:"session_id"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
	SessionTime int       `json:"sessionTime" bson:"session_time"`
	Message     string    `json:"message" bson:"message"`
	Level       LogLevel  `json:"level" bson:"level"`
}

// Session is the full record of one proctored assessment.
//
// IntegrityScore is derived: it always equals the scoring policy replayed
// over Violations. Only the session state machine writes it.
type Session struct {
	ID              string              `json:"id" bson:"_id"`
	CandidateID     string              `json:"candidateId" bson:"candidate_id"`
	StartTime       *time.Time          `json:"startTime,omitempty" bson:"start_time,omitempty"`
	EndTime         *time.Time          `json:"endTime,omitempty" bson:"end_time,omitempty"`
	Status          SessionStatus       `json:"status" bson:"status"`
	DurationSeconds int                 `json:"durationSeconds" bson:"duration_seconds"`
	IntegrityScore  int                 `json:"integrityScore" bson:"integrity_score"`
	Violations      []Violation         `json:"violations" bson:"violations"`
	DetectionLogs   []DetectionLogEntry `json:"detectionLogs" bson:"detection_logs"`
	CreatedAt       time.Time           `json:"createdAt" bson:"created_at"`
}

// Clone returns a deep copy safe to hand to callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	c := *s
	if s.StartTime != nil {
		t := *s.StartTime
		c.StartTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	c.Violations = append(make([]Violation, 0, len(s.Violations)), s.Violations...)
	c.DetectionLogs = append(make([]DetectionLogEntry, 0, len(s.DetectionLogs)), s.DetectionLogs...)
	return &c
}

// Candidate is the person being assessed. Immutable after creation.
type Candidate struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name" validate:"required"`
	Email     string    `json:"email" bson:"email" validate:"required,email"`
	Position  string    `json:"position" bson:"position" validate:"required"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// SessionSummary is the shape handed to downstream report consumers.
type SessionSummary struct {
	SessionID       string              `json:"sessionId"`
	Status          SessionStatus       `json:"status"`
	DurationSeconds int                 `json:"durationSeconds"`
	Violations      []Violation         `json:"violations"`
	DetectionLogs   []DetectionLogEntry `json:"detectionLogs"`
	IntegrityScore  int                 `json:"integrityScore"`
	Timestamp       time.Time           `json:"timestamp"`
	Verdict         string              `json:"verdict,omitempty"`
	Recommendations []string            `json:"recommendations,omitempty"`
}

// DataExport is a full dump of the store.
type DataExport struct {
	Sessions   []*Session   `json:"sessions"`
	Candidates []*Candidate `json:"candidates"`
	ExportedAt time.Time    `json:"exportedAt"`
}

// NewID returns a random 128-bit identifier.
func NewID() string {
	return uuid.NewString()
}
