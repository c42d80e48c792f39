package detector

import "github.com/EricMurray-e-m-dev/SecureProctor/internal/models"

// Detector is a single classification rule. Rules are evaluated independently
// so one frame can raise several violations.
type Detector interface {
	Name() string
	Type() models.ViolationType
	Detect(result *models.DetectionResult) []models.Violation
}
