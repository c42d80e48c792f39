package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type Renderer interface {
	Render(w io.Writer, candidate *models.Candidate, session *models.Session) error
}

// NewRenderer falls back to text for unknown formats.
func (g *Generator) NewRenderer(f Format) Renderer {
	switch f {
	case FormatJSON:
		return &jsonRenderer{g: g}
	default:
		return &textRenderer{g: g}
	}
}

type jsonRenderer struct {
	g *Generator
}

type jsonReport struct {
	Candidate *models.Candidate      `json:"candidate"`
	Summary   *models.SessionSummary `json:"summary"`
}

func (r *jsonRenderer) Render(w io.Writer, candidate *models.Candidate, session *models.Session) error {
	summary, err := r.g.Summary(session)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{Candidate: candidate, Summary: summary})
}

type textRenderer struct {
	g *Generator
}

func (r *textRenderer) Render(w io.Writer, candidate *models.Candidate, session *models.Session) error {
	text, err := r.g.Generate(candidate, session)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, text)
	return err
}
