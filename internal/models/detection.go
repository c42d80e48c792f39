package models

// GazeDirection is the eye-gaze classification reported by the detector.
type GazeDirection string

const (
	GazeFocused     GazeDirection = "focused"
	GazeLookingAway GazeDirection = "looking_away"
	GazeUnknown     GazeDirection = "unknown"
)

// DetectionResult is a single sampled frame from the external detector.
// It is transient and never persisted.
type DetectionResult struct {
	FaceDetected    bool          `json:"faceDetected"`
	EyeGaze         GazeDirection `json:"eyeGaze"`
	ObjectsDetected []string      `json:"objectsDetected"`
	MultipleFaces   bool          `json:"multipleFaces"`
	Confidence      float64       `json:"confidence"`
}

// DetectionPayload is the wire form of a DetectionResult. Fields a detector
// leaves out are read as the neutral value, so a sparse frame never produces
// a violation by accident.
type DetectionPayload struct {
	FaceDetected    *bool    `json:"faceDetected,omitempty" yaml:"faceDetected"`
	EyeGaze         string   `json:"eyeGaze,omitempty" yaml:"eyeGaze" validate:"omitempty,oneof=focused looking_away unknown"`
	ObjectsDetected []string `json:"objectsDetected,omitempty" yaml:"objectsDetected" validate:"dive,required"`
	MultipleFaces   *bool    `json:"multipleFaces,omitempty" yaml:"multipleFaces"`
	Confidence      *float64 `json:"confidence,omitempty" yaml:"confidence" validate:"omitempty,gte=0,lte=1"`
}

// ToResult resolves defaults: face present, gaze unknown, single face,
// confidence 1.
func (p DetectionPayload) ToResult() DetectionResult {
	result := DetectionResult{
		FaceDetected:  true,
		EyeGaze:       GazeUnknown,
		MultipleFaces: false,
		Confidence:    1,
	}

	if p.FaceDetected != nil {
		result.FaceDetected = *p.FaceDetected
	}
	if p.EyeGaze != "" {
		result.EyeGaze = GazeDirection(p.EyeGaze)
	}
	if p.MultipleFaces != nil {
		result.MultipleFaces = *p.MultipleFaces
	}
	if p.Confidence != nil {
		result.Confidence = *p.Confidence
	}
	if len(p.ObjectsDetected) > 0 {
		result.ObjectsDetected = append([]string(nil), p.ObjectsDetected...)
	}

	return result
}
