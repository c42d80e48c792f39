package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/clock"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"gopkg.in/yaml.v3"
)

var (
	// InvalidFixture - fixture is unreadable or its frames are out of order
	ErrInvalidFixture = errors.New("source: invalid fixture")
)

// Frame is one fixture entry. At is the session second the frame arrives on.
type Frame struct {
	models.DetectionPayload `yaml:",inline"`

	At int `yaml:"at"`
}

// Fixture is a recorded session: who sat it, what the detector saw and how
// it ended.
type Fixture struct {
	Candidate  FixtureCandidate     `yaml:"candidate"`
	Frames     []Frame              `yaml:"frames"`
	StopAt     int                  `yaml:"stopAt"`
	StopReason models.SessionStatus `yaml:"stopReason"`
}

type FixtureCandidate struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Position string `yaml:"position"`
}

// PayloadValidator checks a fixture frame the way bus payloads are checked.
// validate.Validator implements it.
type PayloadValidator interface {
	Detection(payload models.DetectionPayload) (models.DetectionResult, error)
}

func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes YAML and applies defaults: the stop second is never
// before the last frame and the reason defaults to completed.
func ParseFixture(data []byte) (*Fixture, error) {
	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}

	last := 0
	for i, frame := range fixture.Frames {
		if frame.At < last {
			return nil, fmt.Errorf("%w: frame %d at %ds is before frame %d at %ds", ErrInvalidFixture, i, frame.At, i-1, last)
		}
		last = frame.At
	}

	if fixture.StopAt < last {
		fixture.StopAt = last
	}
	if fixture.StopReason == "" {
		fixture.StopReason = models.StatusCompleted
	}
	if !fixture.StopReason.IsFinal() {
		return nil, fmt.Errorf("%w: stop reason %q", ErrInvalidFixture, fixture.StopReason)
	}

	return &fixture, nil
}

// ReplaySource replays fixture frames. With a *clock.Manual it moves the
// clock to start+At before each frame, so replays are deterministic. With any
// other clock it paces frames at interval.
type ReplaySource struct {
	frames    []Frame
	clock     clock.Clock
	interval  time.Duration
	validator PayloadValidator
}

func NewReplaySource(fixture *Fixture, clk clock.Clock, interval time.Duration, validator PayloadValidator) *ReplaySource {
	if clk == nil {
		clk = clock.Real{}
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ReplaySource{
		frames:    fixture.Frames,
		clock:     clk,
		interval:  interval,
		validator: validator,
	}
}

func (r *ReplaySource) Run(ctx context.Context, emit func(models.DetectionResult) error) error {
	if manual, ok := r.clock.(*clock.Manual); ok {
		return r.runManual(ctx, manual, emit)
	}
	return r.runPaced(ctx, emit)
}

func (r *ReplaySource) runManual(ctx context.Context, manual *clock.Manual, emit func(models.DetectionResult) error) error {
	start := manual.Now()

	for i, frame := range r.frames {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := r.resolve(i, frame)
		if err != nil {
			return err
		}

		manual.Set(start.Add(time.Duration(frame.At) * time.Second))
		if err := emit(result); err != nil {
			return err
		}
	}
	return nil
}

func (r *ReplaySource) runPaced(ctx context.Context, emit func(models.DetectionResult) error) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for i, frame := range r.frames {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		result, err := r.resolve(i, frame)
		if err != nil {
			return err
		}
		if err := emit(result); err != nil {
			return err
		}
	}
	return nil
}

func (r *ReplaySource) resolve(i int, frame Frame) (models.DetectionResult, error) {
	if r.validator == nil {
		return frame.ToResult(), nil
	}

	result, err := r.validator.Detection(frame.DetectionPayload)
	if err != nil {
		return models.DetectionResult{}, fmt.Errorf("frame %d: %w", i, err)
	}
	return result, nil
}
