// Package source connects detection producers to sessions.
package source

import (
	"context"
	"fmt"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/session"
)

// Source produces detection frames in order until it is exhausted or ctx is
// done. Returning an error from emit stops the source.
type Source interface {
	Run(ctx context.Context, emit func(models.DetectionResult) error) error
}

// Ingester applies one detection to a session. session.Manager implements it.
type Ingester interface {
	Ingest(ctx context.Context, sessionID string, result models.DetectionResult) (session.IngestOutcome, error)
}

// Stats counts what a Feed did.
type Stats struct {
	Frames     int
	Accepted   int
	Dropped    int
	Violations int
	LastScore  int
}

// Feed drives every frame of src into one session. Drops are counted, not
// treated as errors; ingest failures stop the feed.
func Feed(ctx context.Context, src Source, ingester Ingester, sessionID string) (Stats, error) {
	stats := Stats{LastScore: -1}

	err := src.Run(ctx, func(result models.DetectionResult) error {
		stats.Frames++

		outcome, err := ingester.Ingest(ctx, sessionID, result)
		if err != nil {
			return fmt.Errorf("frame %d: %w", stats.Frames, err)
		}

		if !outcome.Accepted {
			stats.Dropped++
			return nil
		}
		stats.Accepted++
		stats.Violations += len(outcome.Violations)
		stats.LastScore = outcome.IntegrityScore
		return nil
	})

	return stats, err
}
