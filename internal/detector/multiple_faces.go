package detector

import "github.com/EricMurray-e-m-dev/SecureProctor/internal/models"

type MultipleFacesDetector struct{}

func NewMultipleFacesDetector() *MultipleFacesDetector {
	return &MultipleFacesDetector{}
}

func (d *MultipleFacesDetector) Name() string {
	return "multiple_faces"
}

func (d *MultipleFacesDetector) Type() models.ViolationType {
	return models.ViolationMultipleFaces
}

func (d *MultipleFacesDetector) Detect(result *models.DetectionResult) []models.Violation {
	if !result.MultipleFaces {
		return nil
	}

	return []models.Violation{
		models.NewViolation(d.Type(), models.SeverityHigh, "Multiple faces detected", result.Confidence),
	}
}
