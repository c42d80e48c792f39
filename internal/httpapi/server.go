// Package httpapi is the REST surface of the engine: candidate and session
// management, detection ingest, reports, export, health and metrics.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/clock"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/report"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/session"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/store"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/validate"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
)

// maxDetectionBytes bounds a single detection payload.
const maxDetectionBytes = 64 << 10

// Sessions is the session lifecycle. session.Manager implements it.
type Sessions interface {
	Create(ctx context.Context, candidateID string) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Start(ctx context.Context, id string) (*models.Session, error)
	Ingest(ctx context.Context, id string, result models.DetectionResult) (session.IngestOutcome, error)
	Stop(ctx context.Context, id string, reason models.SessionStatus) (*models.Session, error)
	Clear(ctx context.Context) error
	ActiveSessions() int
}

// InvalidCounter is told about rejected detection payloads.
type InvalidCounter interface {
	IncrementInvalidPayloads()
}

type Config struct {
	Sessions  Sessions
	Store     store.Store
	Validator *validate.Validator
	Reports   *report.Generator
	Clock     clock.Clock
	Logger    *slog.Logger

	// Optional
	Invalid InvalidCounter
	Metrics http.Handler
}

type Server struct {
	router     *chi.Mux
	sessions   Sessions
	store      store.Store
	validator  *validate.Validator
	reports    *report.Generator
	clock      clock.Clock
	logger     *slog.Logger
	invalid    InvalidCounter

	mu         sync.Mutex
	httpServer *http.Server
}

func NewServer(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		router:    chi.NewRouter(),
		sessions:  cfg.Sessions,
		store:     cfg.Store,
		validator: cfg.Validator,
		reports:   cfg.Reports,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		invalid:   cfg.Invalid,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(s.logRequests)
	s.router.Use(middleware.Recoverer)
	s.router.Use(enableCORS)

	s.routes(cfg.Metrics)
	return s
}

func (s *Server) routes(metrics http.Handler) {
	s.router.Get("/health", s.health)
	if metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		// Candidates
		r.Post("/candidates", s.createCandidate)
		r.Get("/candidates", s.listCandidates)
		r.Get("/candidates/{id}", s.getCandidate)

		// Sessions
		r.Post("/sessions", s.createSession)
		r.Get("/sessions", s.listSessions)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Post("/start", s.startSession)
			r.Post("/detections", s.ingestDetection)
			r.Post("/stop", s.stopSession)
			r.Get("/report", s.getReport)
			r.Get("/summary", s.getSummary)
		})

		// Data
		r.Method(http.MethodGet, "/export", compressed(http.HandlerFunc(s.exportData)))
		r.Delete("/data", s.clearData)
	})
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = server
	s.mu.Unlock()

	s.logger.Info("HTTP server listening", "addr", addr)
	return server.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server with a timeout.
func (s *Server) Stop() error {
	s.mu.Lock()
	server := s.httpServer
	s.mu.Unlock()

	if server == nil {
		return nil
	}

	s.logger.Info("stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return server.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		began := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(began),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// compressed gzips every response the client accepts gzip for. gzhttp skips
// bodies under 1KB by default, which covers most small exports.
func compressed(h http.Handler) http.Handler {
	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(0))
	if err != nil {
		return gzhttp.GzipHandler(h)
	}
	return wrap(h)
}
