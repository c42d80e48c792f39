package detector

import "github.com/EricMurray-e-m-dev/SecureProctor/internal/models"

type GazeAwayDetector struct{}

func NewGazeAwayDetector() *GazeAwayDetector {
	return &GazeAwayDetector{}
}

func (d *GazeAwayDetector) Name() string {
	return "gaze_away"
}

func (d *GazeAwayDetector) Type() models.ViolationType {
	return models.ViolationLookingAway
}

// Detect only fires on an explicit looking_away; unknown gaze is not evidence.
func (d *GazeAwayDetector) Detect(result *models.DetectionResult) []models.Violation {
	if result.EyeGaze != models.GazeLookingAway {
		return nil
	}

	return []models.Violation{
		models.NewViolation(d.Type(), models.SeverityMedium, "Candidate looking away from screen", result.Confidence),
	}
}
