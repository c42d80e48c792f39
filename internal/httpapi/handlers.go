package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/store"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/system"
	"github.com/go-chi/chi/v5"
)

type candidateRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Position string `json:"position"`
}

type sessionRequest struct {
	CandidateID string `json:"candidateId"`
}

type stopRequest struct {
	Reason models.SessionStatus `json:"reason"`
}

func (s *Server) createCandidate(w http.ResponseWriter, r *http.Request) {
	var req candidateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	candidate := &models.Candidate{
		ID:        models.NewID(),
		Name:      req.Name,
		Email:     req.Email,
		Position:  req.Position,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.validator.Candidate(candidate); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.store.CreateCandidate(r.Context(), candidate); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("candidate registered", "candidate_id", candidate.ID)
	writeJSON(w, http.StatusCreated, candidate)
}

func (s *Server) listCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.store.ListCandidates(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

func (s *Server) getCandidate(w http.ResponseWriter, r *http.Request) {
	candidate, err := s.store.GetCandidate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, candidate)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.CandidateID == "" {
		s.writeError(w, r, fmt.Errorf("%w: candidateId is required", ErrBadRequest))
		return
	}

	created, err := s.sessions.Create(r.Context(), req.CandidateID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context(), r.URL.Query().Get("candidate_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	started, err := s.sessions.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, started)
}

// ingestDetection answers 200 for dropped detections too; the outcome says
// whether the frame was applied.
func (s *Server) ingestDetection(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDetectionBytes))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}

	result, err := s.validator.DecodeDetection(data)
	if err != nil {
		if s.invalid != nil {
			s.invalid.IncrementInvalidPayloads()
		}
		s.writeError(w, r, err)
		return
	}

	outcome, err := s.sessions.Ingest(r.Context(), chi.URLParam(r, "id"), result)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// stopSession ends the session as completed unless the body asks for
// terminated.
func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	req := stopRequest{Reason: models.StatusCompleted}
	if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, err)
		return
	}
	if req.Reason == "" {
		req.Reason = models.StatusCompleted
	}

	stopped, err := s.sessions.Stop(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stopped)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	candidate, err := s.store.GetCandidate(r.Context(), snapshot.CandidateID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	text, err := s.reports.Generate(candidate, snapshot)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.reports.FileName(candidate)))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	summary, err := s.reports.Summary(snapshot)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) exportData(w http.ResponseWriter, r *http.Request) {
	export, err := store.Export(r.Context(), s.store, s.clock.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (s *Server) clearData(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Clear(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "healthy",
		"store":          "connected",
		"activeSessions": s.sessions.ActiveSessions(),
		"system":         system.Collect(r.Context()),
	}

	if err := s.store.Ping(r.Context()); err != nil {
		body["status"] = "unhealthy"
		body["store"] = "disconnected"
		body["error"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}

	writeJSON(w, http.StatusOK, body)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body: %w", ErrBadRequest, err)
		}
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}
