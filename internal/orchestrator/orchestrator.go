package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/clock"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/config"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/engine"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/eventbus"
	proctorgrpc "github.com/EricMurray-e-m-dev/SecureProctor/internal/grpc"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/httpapi"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/metrics"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/report"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/scoring"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/session"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/store"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/validate"
	"github.com/nats-io/nats.go"
)

// Orchestrator manages the engine lifecycle and wires the session store,
// classifier, event bus and servers together.
//
// Lifecycle:
//  1. Start() - Opens the store, builds the engine and initialises servers
//  2. Run() - Starts all servers and blocks until context is cancelled
//  3. Stop() - Gracefully closes all connections and resources
//
// The store is required. The event bus is optional: without it detections
// still arrive over HTTP and nothing is published.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	clock  clock.Clock

	// Core components
	store     store.Store
	manager   *session.Manager
	metrics   *metrics.Metrics
	validator *validate.Validator
	reports   *report.Generator

	// Event bus
	natsConn   *nats.Conn
	publisher  *eventbus.Publisher
	subscriber *eventbus.Subscriber

	// Servers
	httpServer   *httpapi.Server
	grpcServer   *proctorgrpc.HealthServer
	grpcListener net.Listener
}

// NewOrchestrator creates a new Orchestrator instance with the provided configuration.
// The orchestrator is not started until Start() is called.
func NewOrchestrator(cfg *config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		config: cfg,
		logger: logger,
		clock:  clock.Real{},
	}
}

// Start initializes all service connections and prepares the orchestrator for operation.
// This method must be called before Run().
//
// Returns an error if any required component fails to initialize.
func (o *Orchestrator) Start() error {
	o.logger.Info("starting SecureProctor orchestrator")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Session store (required)
	st, err := store.New(ctx, o.config.StoreOptions(), o.logger)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", o.config.StoreBackend, err)
	}
	o.store = st

	o.validator, err = validate.New(o.logger)
	if err != nil {
		return fmt.Errorf("failed to build validator: %w", err)
	}
	o.metrics = metrics.NewMetrics()
	o.reports = report.NewGenerator(o.clock, o.config.SystemName)

	// Event bus (optional)
	o.connectEventBus()

	if err := o.initializeManager(); err != nil {
		return fmt.Errorf("failed to initialize session manager: %w", err)
	}

	if o.natsConn != nil {
		o.subscriber = eventbus.NewSubscriber(o.natsConn, o.manager, o.validator, o.metrics, o.logger)
		if err := o.subscriber.Start(); err != nil {
			o.logger.Warn("failed to subscribe to detections, bus ingest disabled", "error", err)
			o.subscriber = nil
		}
	}

	o.httpServer = httpapi.NewServer(httpapi.Config{
		Sessions:  o.manager,
		Store:     o.store,
		Validator: o.validator,
		Reports:   o.reports,
		Clock:     o.clock,
		Logger:    o.logger,
		Invalid:   o.metrics,
		Metrics:   o.metrics.Handler(),
	})

	if err := o.initializeGRPCServer(); err != nil {
		return fmt.Errorf("failed to initialize gRPC server: %w", err)
	}

	o.logger.Info("orchestrator started",
		"store", o.config.StoreBackend,
		"event_sink", o.config.EventSink,
		"bus_ingest", o.subscriber != nil,
	)
	return nil
}

// connectEventBus wires the inbound NATS subscriber and the outbound sink.
// Failures only degrade the service.
func (o *Orchestrator) connectEventBus() {
	if o.config.NatsURL != "" {
		conn, err := eventbus.Connect(o.config.NatsURL, "secureproctor", o.logger)
		if err != nil {
			o.logger.Warn("failed to connect to NATS, continuing without bus", "error", err)
		} else {
			o.natsConn = conn
		}
	}

	var sink eventbus.Sink
	switch o.config.EventSink {
	case "nats":
		if o.natsConn == nil {
			o.logger.Warn("EVENT_SINK=nats but NATS is unavailable, events will not be published")
			return
		}
		sink = eventbus.NewNATSSink(o.natsConn)
	case "kafka":
		sink = eventbus.NewKafkaSink(o.config.KafkaBrokers, o.config.KafkaTopic)
		o.logger.Info("publishing events to Kafka", "brokers", o.config.KafkaBrokers, "topic", o.config.KafkaTopic)
	default:
		return
	}

	o.publisher = eventbus.NewPublisher(sink, o.reports, o.metrics, o.logger)
}

func (o *Orchestrator) initializeManager() error {
	cfg := session.ManagerConfig{
		Store:             o.store,
		Classifier:        engine.NewDefaultEngine(o.clock, o.logger),
		Policy:            scoring.NewSeverityPolicy(),
		Clock:             o.clock,
		Recorder:          o.metrics,
		Logger:            o.logger,
		IngestBudget:      o.config.IngestBudget,
		FinishedCacheSize: o.config.FinishedCacheSize,
	}
	// Leave Notifier as a nil interface when nothing publishes.
	if o.publisher != nil {
		cfg.Notifier = o.publisher
	}

	manager, err := session.NewManager(cfg)
	if err != nil {
		return err
	}
	o.manager = manager
	return nil
}

func (o *Orchestrator) initializeGRPCServer() error {
	listener, err := net.Listen("tcp", ":"+o.config.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", o.config.GRPCPort, err)
	}
	o.grpcListener = listener
	o.grpcServer = proctorgrpc.NewHealthServer(o.store, o.config.HealthProbeInterval, o.logger)

	o.logger.Info("gRPC health server initialized", "port", o.config.GRPCPort)
	return nil
}

// Run starts all servers and blocks until the context is cancelled or an error occurs.
func (o *Orchestrator) Run(ctx context.Context) error {
	httpErrChan := make(chan error, 1)
	go func() {
		if err := o.httpServer.Start(":" + o.config.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	grpcErrChan := make(chan error, 1)
	go func() {
		o.logger.Info("gRPC server listening", "port", o.config.GRPCPort)
		if err := o.grpcServer.Serve(o.grpcListener); err != nil {
			grpcErrChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	probeCtx, cancelProbe := context.WithCancel(ctx)
	defer cancelProbe()
	go o.grpcServer.Watch(probeCtx)

	o.logger.Info("SecureProctor ready", "http_port", o.config.HTTPPort, "grpc_port", o.config.GRPCPort)

	select {
	case <-ctx.Done():
		o.logger.Info("shutdown signal received")
		return ctx.Err()
	case err := <-httpErrChan:
		return err
	case err := <-grpcErrChan:
		return err
	}
}

// Stop gracefully closes all connections and releases resources.
func (o *Orchestrator) Stop() error {
	o.logger.Info("stopping orchestrator")

	if o.grpcServer != nil {
		o.grpcServer.Stop()
	}
	if o.grpcListener != nil {
		// Already closed if Serve ran
		_ = o.grpcListener.Close()
	}

	if o.httpServer != nil {
		if err := o.httpServer.Stop(); err != nil {
			o.logger.Error("error stopping HTTP server", "error", err)
		}
	}

	if o.subscriber != nil {
		o.subscriber.Close()
	}

	if o.publisher != nil {
		if err := o.publisher.Close(); err != nil {
			o.logger.Error("error closing event publisher", "error", err)
		}
	}

	if o.natsConn != nil {
		o.natsConn.Close()
	}

	if o.store != nil {
		if err := o.store.Close(); err != nil {
			o.logger.Error("error closing store", "error", err)
		}
	}

	o.logger.Info("orchestrator stopped")
	return nil
}

// Manager exposes the session manager, mainly for tests and the CLI.
func (o *Orchestrator) Manager() *session.Manager {
	return o.manager
}

func (o *Orchestrator) Handler() http.Handler {
	return o.httpServer.Handler()
}
