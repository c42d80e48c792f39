package models

// NewViolation builds an unstamped violation. The engine fills in the id,
// timestamp and session time; the session manager fills in the session id.
func NewViolation(violationType ViolationType, severity Severity, description string, confidence float64) Violation {
	return Violation{
		Type:        violationType,
		Severity:    severity,
		Description: description,
		Confidence:  confidence,
	}
}
