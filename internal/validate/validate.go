// Package validate checks inbound payloads before they reach the engine.
package validate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/detection.json
var detectionSchema []byte

var (
	// InvalidPayload - detection payload failed schema or field validation
	ErrInvalidPayload = errors.New("validate: invalid detection payload")

	// InvalidCandidate - candidate is missing a required field or has a bad email
	ErrInvalidCandidate = errors.New("validate: invalid candidate")
)

// Validator holds the compiled detection schema and a struct validator.
// Both are safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
	fields *validator.Validate
	logger *slog.Logger
}

func New(logger *slog.Logger) (*Validator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("detection.json", bytes.NewReader(detectionSchema)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("detection.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{
		schema: schema,
		fields: validator.New(validator.WithRequiredStructEnabled()),
		logger: logger,
	}, nil
}

// DecodeDetection validates raw JSON against the detection schema and
// resolves absent fields to their neutral values.
func (v *Validator) DecodeDetection(data []byte) (models.DetectionResult, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.DetectionResult{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := v.schema.Validate(doc); err != nil {
		v.logger.Debug("detection payload rejected", "error", err.Error())
		return models.DetectionResult{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var payload models.DetectionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return models.DetectionResult{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	return v.Detection(payload)
}

// Detection checks an already decoded payload, e.g. one read from a fixture.
func (v *Validator) Detection(payload models.DetectionPayload) (models.DetectionResult, error) {
	if err := v.fields.Struct(payload); err != nil {
		return models.DetectionResult{}, fmt.Errorf("%w: %s", ErrInvalidPayload, describe(err))
	}
	return payload.ToResult(), nil
}

// Candidate requires name, email and position and a well-formed email.
func (v *Validator) Candidate(candidate *models.Candidate) error {
	candidate.Name = strings.TrimSpace(candidate.Name)
	candidate.Email = strings.TrimSpace(candidate.Email)
	candidate.Position = strings.TrimSpace(candidate.Position)

	if err := v.fields.Struct(candidate); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidCandidate, describe(err))
	}
	return nil
}

// describe flattens validator errors into "field: rule" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "email":
			parts = append(parts, field+" must be a valid email address")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, ", ")
}
