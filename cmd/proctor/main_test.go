package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/clock"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/report"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/source"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 8, 3, 15, 0, 0, 0, time.UTC)

func TestRunReplay(t *testing.T) {
	fixture, err := source.LoadFixture("testdata/mixed_terminated.yaml")
	require.NoError(t, err)

	clk := clock.NewManual(t0)
	result, err := runReplay(context.Background(), fixture, clk, nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusTerminated, result.session.Status)
	assert.Equal(t, 75, result.session.DurationSeconds)
	assert.Equal(t, 65, result.session.IntegrityScore)
	assert.Equal(t, 5, result.stats.Frames)
	assert.Equal(t, 4, result.stats.Violations)
	assert.Equal(t, t0.Add(75*time.Second), clk.Now())

	text, err := report.NewGenerator(clk, "").Generate(result.candidate, result.session)
	require.NoError(t, err)

	assert.Contains(t, text, "Name: Sam  Lee")
	assert.Contains(t, text, "Duration: 01:15")
	assert.Contains(t, text, "1. [00:02] No face detected in frame (HIGH)")
	assert.Contains(t, text, "3. [00:07] Candidate looking away from screen (MEDIUM)")
	assert.Contains(t, text, "4. [00:09] Unauthorized object detected: phone (HIGH)")
	assert.Contains(t, text, "[01:15] Session terminated")
	assert.Contains(t, text, "The candidate showed moderate integrity with some concerns noted.")
	assert.Contains(t, text, "Report generated on: 2026-08-03 15:01:15 UTC")
}

func TestRunReplay_DefaultsCandidate(t *testing.T) {
	fixture, err := source.ParseFixture([]byte("frames:\n  - at: 1\n"))
	require.NoError(t, err)

	result, err := runReplay(context.Background(), fixture, clock.NewManual(t0), nil)
	require.NoError(t, err)

	assert.Equal(t, "Replay Candidate", result.candidate.Name)
	assert.Equal(t, 100, result.session.IntegrityScore)
	assert.Equal(t, models.StatusCompleted, result.session.Status)
}

func TestReplayCmd_JSON(t *testing.T) {
	var out bytes.Buffer
	cmd := newReplayCmd()
	cmd.SetArgs([]string{"testdata/mixed_terminated.yaml", "--format", "json"})
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())

	var body struct {
		Candidate models.Candidate      `json:"candidate"`
		Summary   models.SessionSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Equal(t, "Sam  Lee", body.Candidate.Name)
	assert.Equal(t, "REVIEW", body.Summary.Verdict)
	assert.Equal(t, 65, body.Summary.IntegrityScore)
	assert.Len(t, body.Summary.Violations, 4)
}

func TestReplayCmd_Text(t *testing.T) {
	var out bytes.Buffer
	cmd := newReplayCmd()
	cmd.SetArgs([]string{"testdata/mixed_terminated.yaml", "--system-name", "Proctor CI"})
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "PROCTORING ASSESSMENT REPORT\n"))
	assert.True(t, strings.HasSuffix(out.String(), "System: Proctor CI\n"))
}

func TestReplayCmd_RejectsUnknownFormat(t *testing.T) {
	cmd := newReplayCmd()
	cmd.SetArgs([]string{"testdata/mixed_terminated.yaml", "--format", "pdf"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --format")
}

func TestWriteExport(t *testing.T) {
	export := &models.DataExport{
		Candidates: []*models.Candidate{{ID: "c-1", Name: "Ada", Email: "ada@example.com", Position: "SRE", CreatedAt: t0}},
		Sessions:   []*models.Session{{ID: "s-1", CandidateID: "c-1", Status: models.StatusCompleted, IntegrityScore: 80}},
		ExportedAt: t0,
	}

	var buf bytes.Buffer
	require.NoError(t, writeExport(&buf, export))

	dec, err := zstd.NewReader(&buf)
	require.NoError(t, err)
	defer dec.Close()

	var got models.DataExport
	require.NoError(t, json.NewDecoder(dec).Decode(&got))
	require.Len(t, got.Sessions, 1)
	assert.Equal(t, 80, got.Sessions[0].IntegrityScore)
	assert.Equal(t, "Ada", got.Candidates[0].Name)
}
