package detector

import (
	"fmt"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
)

type UnauthorizedObjectDetector struct{}

func NewUnauthorizedObjectDetector() *UnauthorizedObjectDetector {
	return &UnauthorizedObjectDetector{}
}

func (d *UnauthorizedObjectDetector) Name() string {
	return "unauthorized_object"
}

func (d *UnauthorizedObjectDetector) Type() models.ViolationType {
	return models.ViolationUnauthorizedObject
}

// Detect raises one violation per object, in the order the detector listed them.
// Duplicates are kept: two phones are two violations.
func (d *UnauthorizedObjectDetector) Detect(result *models.DetectionResult) []models.Violation {
	if len(result.ObjectsDetected) == 0 {
		return nil
	}

	violations := make([]models.Violation, 0, len(result.ObjectsDetected))
	for _, object := range result.ObjectsDetected {
		violations = append(violations, models.NewViolation(
			d.Type(),
			models.SeverityHigh,
			fmt.Sprintf("Unauthorized object detected: %s", object),
			result.Confidence,
		))
	}

	return violations
}
