package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/session"
	"github.com/cespare/xxhash/v2"
	"github.com/nats-io/nats.go"
)

// Ingester applies one detection to a session. session.Manager implements it.
type Ingester interface {
	Ingest(ctx context.Context, sessionID string, result models.DetectionResult) (session.IngestOutcome, error)
}

// Decoder validates a raw payload. validate.Validator implements it.
type Decoder interface {
	DecodeDetection(data []byte) (models.DetectionResult, error)
}

// InvalidCounter is told about rejected payloads.
type InvalidCounter interface {
	IncrementInvalidPayloads()
}

const (
	// DefaultWorkers is how many sessions are ingested in parallel.
	DefaultWorkers = 8

	workerQueueSize = 64
)

// Subscriber feeds detections published on proctor.detections.<session>
// into the engine. Messages are sharded by session id over a fixed set of
// workers: frames of one session stay in order, and a session stuck on its
// ingest budget only holds up the sessions that share its worker.
type Subscriber struct {
	conn         *nats.Conn
	subscription *nats.Subscription
	ingester     Ingester
	decoder      Decoder
	invalid      InvalidCounter
	logger       *slog.Logger
	timeout      time.Duration

	mu     sync.RWMutex
	closed bool
	queues []chan *nats.Msg
	wg     sync.WaitGroup
}

// NewSubscriber starts the ingest workers. Close stops them.
func NewSubscriber(conn *nats.Conn, ingester Ingester, decoder Decoder, invalid InvalidCounter, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Subscriber{
		conn:     conn,
		ingester: ingester,
		decoder:  decoder,
		invalid:  invalid,
		logger:   logger,
		timeout:  5 * time.Second,
		queues:   make([]chan *nats.Msg, DefaultWorkers),
	}

	for i := range s.queues {
		queue := make(chan *nats.Msg, workerQueueSize)
		s.queues[i] = queue

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for msg := range queue {
				s.HandleMessage(msg)
			}
		}()
	}

	return s
}

// Start begins listening for detections
func (s *Subscriber) Start() error {
	var err error

	s.subscription, err = s.conn.QueueSubscribe(SubjectDetections, QueueGroup, s.Dispatch)
	if err != nil {
		return err
	}

	s.logger.Info("subscribed to detections", "subject", SubjectDetections, "queue", QueueGroup)
	return nil
}

// Dispatch hands a message to the worker owning its session. When that
// worker is backed up the frame is dropped as busy, the same as an ingest
// that outlives its budget.
func (s *Subscriber) Dispatch(msg *nats.Msg) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}

	sessionID := sessionIDFromSubject(msg.Subject)
	queue := s.queues[xxhash.Sum64String(sessionID)%uint64(len(s.queues))]

	select {
	case queue <- msg:
	default:
		s.logger.Warn("detection queue full, dropping frame", "session_id", sessionID)
		s.reply(msg, session.IngestOutcome{
			Accepted:   false,
			DropReason: session.DropReasonBusy,
			Violations: make([]models.Violation, 0),
		})
	}
}

// HandleMessage ingests one detection. Requests with a reply subject get the
// ingest outcome back.
func (s *Subscriber) HandleMessage(msg *nats.Msg) {
	sessionID := sessionIDFromSubject(msg.Subject)
	if sessionID == "" {
		s.reject(msg, "missing session id")
		return
	}

	result, err := s.decoder.DecodeDetection(msg.Data)
	if err != nil {
		s.reject(msg, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	outcome, err := s.ingester.Ingest(ctx, sessionID, result)
	if err != nil {
		s.logger.Warn("failed to ingest detection", "session_id", sessionID, "error", err)
		s.reply(msg, map[string]string{"error": err.Error()})
		return
	}

	s.reply(msg, outcome)
}

func (s *Subscriber) reject(msg *nats.Msg, reason string) {
	if s.invalid != nil {
		s.invalid.IncrementInvalidPayloads()
	}
	s.logger.Warn("discarded detection payload", "subject", msg.Subject, "reason", reason, "bytes", len(msg.Data))
	s.reply(msg, map[string]string{"error": reason})
}

func (s *Subscriber) reply(msg *nats.Msg, body any) {
	if msg.Reply == "" || s.conn == nil {
		return
	}

	data, err := json.Marshal(body)
	if err != nil {
		return
	}
	if err := s.conn.Publish(msg.Reply, data); err != nil {
		s.logger.Warn("failed to reply", "subject", msg.Reply, "error", err)
	}
}

// Close unsubscribes and waits for queued detections to finish.
func (s *Subscriber) Close() {
	if s.subscription != nil {
		_ = s.subscription.Unsubscribe()
	}

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for _, queue := range s.queues {
			close(queue)
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Subscriber) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}
