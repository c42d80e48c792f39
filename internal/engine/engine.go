package engine

import (
	"log/slog"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/clock"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/detector"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
)

// Engine populated of classification rules
type Engine struct {
	detectors []detector.Detector
	clock     clock.Clock
	logger    *slog.Logger
}

// Create a new classification engine with no rules registered
func NewEngine(clk clock.Clock, logger *slog.Logger) *Engine {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		detectors: make([]detector.Detector, 0),
		clock:     clk,
		logger:    logger,
	}
}

// NewDefaultEngine registers the standard rules in evaluation order.
func NewDefaultEngine(clk clock.Clock, logger *slog.Logger) *Engine {
	e := NewEngine(clk, logger)
	e.RegisterDetector(detector.NewFaceAbsenceDetector())
	e.RegisterDetector(detector.NewGazeAwayDetector())
	e.RegisterDetector(detector.NewMultipleFacesDetector())
	e.RegisterDetector(detector.NewUnauthorizedObjectDetector())
	return e
}

// Add new rule to the engine
func (e *Engine) RegisterDetector(d detector.Detector) {
	e.detectors = append(e.detectors, d)
	e.logger.Debug("registered detector", "name", d.Name(), "type", d.Type())
}

// Classify runs every rule over one frame and stamps the resulting violations.
// A clear frame yields an empty slice. Classify never fails: malformed input
// only ever produces fewer violations.
func (e *Engine) Classify(result models.DetectionResult, sessionTime int) []models.Violation {
	now := e.clock.Now()
	violations := make([]models.Violation, 0)

	for _, det := range e.detectors {
		for _, v := range det.Detect(&result) {
			v.ID = models.NewID()
			v.Timestamp = now
			v.SessionTime = sessionTime
			violations = append(violations, v)
		}
	}

	return violations
}

// Returns list of registered detectors
func (e *Engine) GetRegisteredDetectors() []string {
	names := make([]string, len(e.detectors))
	for i, det := range e.detectors {
		names[i] = det.Name()
	}
	return names
}
