// Package report turns a finished session into the text report and JSON
// summary handed to reviewers.
package report

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/clock"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
)

// SessionNotFinal - report requested for a pending or active session
var ErrSessionNotFinal = errors.New("report: session is not finished")

const (
	DefaultSystemName = "SecureProctor v1.0"

	// Score thresholds, inclusive lower bounds.
	HighIntegrityThreshold     = 80
	ModerateIntegrityThreshold = 60

	dateLayout = "2006-01-02 15:04:05 MST"
)

type Generator struct {
	clock      clock.Clock
	systemName string
}

func NewGenerator(clk clock.Clock, systemName string) *Generator {
	if clk == nil {
		clk = clock.Real{}
	}
	if systemName == "" {
		systemName = DefaultSystemName
	}
	return &Generator{clock: clk, systemName: systemName}
}

// Generate renders the plain-text report. Only the "Report generated on"
// line depends on the clock.
func (g *Generator) Generate(candidate *models.Candidate, session *models.Session) (string, error) {
	if !session.Status.IsFinal() {
		return "", fmt.Errorf("%w: status %s", ErrSessionNotFinal, session.Status)
	}

	var b strings.Builder

	b.WriteString("PROCTORING ASSESSMENT REPORT\n")
	b.WriteString("============================\n\n")

	b.WriteString("CANDIDATE INFORMATION\n")
	b.WriteString("--------------------\n")
	fmt.Fprintf(&b, "Name: %s\n", candidate.Name)
	fmt.Fprintf(&b, "Position: %s\n", candidate.Position)
	fmt.Fprintf(&b, "Email: %s\n", candidate.Email)
	fmt.Fprintf(&b, "Assessment Date: %s\n\n", assessmentDate(session))

	b.WriteString("SESSION SUMMARY\n")
	b.WriteString("--------------\n")
	fmt.Fprintf(&b, "Duration: %s\n", FormatElapsed(session.DurationSeconds))
	fmt.Fprintf(&b, "Integrity Score: %d%%\n", session.IntegrityScore)
	fmt.Fprintf(&b, "Total Violations: %d\n\n", len(session.Violations))

	b.WriteString("VIOLATION DETAILS\n")
	b.WriteString("----------------\n")
	if len(session.Violations) == 0 {
		b.WriteString("No violations detected during the assessment.\n")
	}
	for i, v := range session.Violations {
		fmt.Fprintf(&b, "%d. [%s] %s (%s)\n",
			i+1, FormatElapsed(v.SessionTime), v.Description, strings.ToUpper(string(v.Severity)))
	}
	b.WriteString("\n")

	b.WriteString("DETECTION LOG\n")
	b.WriteString("------------\n")
	for i, entry := range session.DetectionLogs {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, FormatElapsed(entry.SessionTime), entry.Message)
	}
	b.WriteString("\n")

	b.WriteString("ASSESSMENT CONCLUSION\n")
	b.WriteString("-------------------\n")
	b.WriteString(Conclusion(session.IntegrityScore))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Report generated on: %s\n", g.clock.Now().UTC().Format(dateLayout))
	fmt.Fprintf(&b, "System: %s", g.systemName)

	return b.String(), nil
}

// Summary is the structured form of the same assessment.
func (g *Generator) Summary(session *models.Session) (*models.SessionSummary, error) {
	if !session.Status.IsFinal() {
		return nil, fmt.Errorf("%w: status %s", ErrSessionNotFinal, session.Status)
	}

	timestamp := g.clock.Now()
	if session.EndTime != nil {
		timestamp = *session.EndTime
	}

	s := session.Clone()
	return &models.SessionSummary{
		SessionID:       s.ID,
		Status:          s.Status,
		DurationSeconds: s.DurationSeconds,
		Violations:      s.Violations,
		DetectionLogs:   s.DetectionLogs,
		IntegrityScore:  s.IntegrityScore,
		Timestamp:       timestamp,
		Verdict:         Verdict(s.IntegrityScore),
		Recommendations: Recommendations(s.IntegrityScore),
	}, nil
}

// FileName is the download name for a report, e.g.
// proctoring-report-Jane-Doe-1767225600000.txt
func (g *Generator) FileName(candidate *models.Candidate) string {
	name := whitespace.ReplaceAllString(candidate.Name, "-")
	return fmt.Sprintf("proctoring-report-%s-%d.txt", name, g.clock.Now().UnixMilli())
}

var whitespace = regexp.MustCompile(`\s+`)

// FormatElapsed renders seconds as zero-padded MM:SS. Minutes are not
// wrapped into hours.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func Conclusion(score int) string {
	switch {
	case score >= HighIntegrityThreshold:
		return "The candidate demonstrated high integrity throughout the assessment."
	case score >= ModerateIntegrityThreshold:
		return "The candidate showed moderate integrity with some concerns noted."
	default:
		return "The candidate's assessment raised significant integrity concerns."
	}
}

func Verdict(score int) string {
	switch {
	case score >= HighIntegrityThreshold:
		return "PASSED"
	case score >= ModerateIntegrityThreshold:
		return "REVIEW"
	default:
		return "FAILED"
	}
}

func Recommendations(score int) []string {
	switch {
	case score >= HighIntegrityThreshold:
		return []string{"Candidate demonstrated high integrity", "Suitable for next interview round"}
	case score >= ModerateIntegrityThreshold:
		return []string{"Review violations before proceeding", "Consider additional assessment"}
	default:
		return []string{"Multiple integrity violations detected", "Recommend rejection or re-assessment"}
	}
}

func assessmentDate(session *models.Session) string {
	if session.EndTime == nil {
		return "unknown"
	}
	return session.EndTime.UTC().Format(dateLayout)
}

