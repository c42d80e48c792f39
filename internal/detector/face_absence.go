package detector

import "github.com/EricMurray-e-m-dev/SecureProctor/internal/models"

type FaceAbsenceDetector struct{}

func NewFaceAbsenceDetector() *FaceAbsenceDetector {
	return &FaceAbsenceDetector{}
}

func (d *FaceAbsenceDetector) Name() string {
	return "face_absence"
}

func (d *FaceAbsenceDetector) Type() models.ViolationType {
	return models.ViolationFaceNotDetected
}

func (d *FaceAbsenceDetector) Detect(result *models.DetectionResult) []models.Violation {
	if result.FaceDetected {
		return nil
	}

	return []models.Violation{
		models.NewViolation(d.Type(), models.SeverityHigh, "No face detected in frame", result.Confidence),
	}
}
