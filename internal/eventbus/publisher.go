package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
)

// Summarizer builds the final summary attached to stop events.
type Summarizer interface {
	Summary(session *models.Session) (*models.SessionSummary, error)
}

// ErrorCounter is told about failed publishes.
type ErrorCounter interface {
	IncrementPublishErrors()
}

// Publisher encodes session events and hands them to a Sink. It implements
// session.Notifier.
type Publisher struct {
	sink       Sink
	summarizer Summarizer
	errors     ErrorCounter
	logger     *slog.Logger
}

func NewPublisher(sink Sink, summarizer Summarizer, counter ErrorCounter, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		sink:       sink,
		summarizer: summarizer,
		errors:     counter,
		logger:     logger,
	}
}

// PublishViolations sends one message per violation, in order.
func (p *Publisher) PublishViolations(ctx context.Context, session *models.Session, violations []models.Violation) error {
	for _, v := range violations {
		event := ViolationEvent{
			SessionID:      session.ID,
			CandidateID:    session.CandidateID,
			Violation:      v,
			IntegrityScore: session.IntegrityScore,
		}
		if err := p.publish(ctx, SubjectViolations, session.ID, event); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) PublishLifecycle(ctx context.Context, session *models.Session) error {
	event := LifecycleEvent{
		SessionID:      session.ID,
		CandidateID:    session.CandidateID,
		Status:         session.Status,
		IntegrityScore: session.IntegrityScore,
		Timestamp:      time.Now().UTC(),
	}
	if session.EndTime != nil {
		event.Timestamp = *session.EndTime
	}

	if session.Status.IsFinal() && p.summarizer != nil {
		summary, err := p.summarizer.Summary(session)
		if err != nil {
			p.logger.Warn("failed to build session summary", "session_id", session.ID, "error", err)
		} else {
			event.Summary = summary
		}
	}

	return p.publish(ctx, SessionSubject(session.Status), session.ID, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}

	if err := p.sink.Publish(ctx, subject, key, data); err != nil {
		if p.errors != nil {
			p.errors.IncrementPublishErrors()
		}
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.logger.Debug("published event", "subject", subject, "session_id", key)
	return nil
}

func (p *Publisher) Close() error {
	return p.sink.Close()
}
