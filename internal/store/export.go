package store

import (
	"context"
	"fmt"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
)

// Export dumps every candidate and session. Sessions carry their full
// timelines.
func Export(ctx context.Context, s Store, now time.Time) (*models.DataExport, error) {
	candidates, err := s.ListCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}

	sessions, err := s.ListSessions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return &models.DataExport{
		Sessions:   sessions,
		Candidates: candidates,
		ExportedAt: now.UTC(),
	}, nil
}
