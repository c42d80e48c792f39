package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/clock"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/engine"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/session"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/source"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/store"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/validate"
)

type replayResult struct {
	candidate *models.Candidate
	session   *models.Session
	stats     source.Stats
}

// runReplay plays a fixture through a throwaway in-memory engine. The clock
// ends at the stop second, so a report rendered with it is reproducible.
func runReplay(ctx context.Context, fixture *source.Fixture, clk *clock.Manual, logger *slog.Logger) (*replayResult, error) {
	st := store.NewMemoryStore()

	manager, err := session.NewManager(session.ManagerConfig{
		Store:      st,
		Classifier: engine.NewDefaultEngine(clk, logger),
		Clock:      clk,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	v, err := validate.New(logger)
	if err != nil {
		return nil, err
	}

	candidate := &models.Candidate{
		ID:        models.NewID(),
		Name:      orDefault(fixture.Candidate.Name, "Replay Candidate"),
		Email:     orDefault(fixture.Candidate.Email, "replay@example.com"),
		Position:  orDefault(fixture.Candidate.Position, "Unspecified"),
		CreatedAt: clk.Now(),
	}
	if err := v.Candidate(candidate); err != nil {
		return nil, err
	}
	if err := st.CreateCandidate(ctx, candidate); err != nil {
		return nil, err
	}

	s, err := manager.Create(ctx, candidate.ID)
	if err != nil {
		return nil, err
	}
	if _, err := manager.Start(ctx, s.ID); err != nil {
		return nil, err
	}
	start := clk.Now()

	stats, err := source.Feed(ctx, source.NewReplaySource(fixture, clk, time.Second, v), manager, s.ID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	clk.Set(start.Add(time.Duration(fixture.StopAt) * time.Second))
	final, err := manager.Stop(ctx, s.ID, fixture.StopReason)
	if err != nil {
		return nil, err
	}

	return &replayResult{candidate: candidate, session: final, stats: stats}, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
