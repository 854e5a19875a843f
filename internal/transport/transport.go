// Package transport exposes the ghost-replay engine over JSON/HTTP
// using chi for routing. It is the only layer in this repository that
// knows about net/http: every apperr.Kind is mapped to a status code
// here, at the edge, and nowhere else.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ghostreplay/engine/internal/apperr"
	"github.com/ghostreplay/engine/internal/blunder"
	"github.com/ghostreplay/engine/internal/controller"
	"github.com/ghostreplay/engine/internal/model"
	"github.com/ghostreplay/engine/internal/review"
	"github.com/ghostreplay/engine/internal/session"
)

// BlunderLister is the narrow surface handleListBlunders needs;
// *store.Store satisfies it.
type BlunderLister interface {
	ListBlunders(ctx context.Context, userID string, dueOnly bool, now time.Time) ([]model.Blunder, error)
}

// Server wires the domain services into chi handlers.
type Server struct {
	store      BlunderLister
	sessions   *session.Service
	controller *controller.Controller
	blunders   *blunder.Recorder
	reviewer   *review.Reviewer
	logger     *zap.Logger
}

// NewServer builds a Server.
func NewServer(st BlunderLister, sessions *session.Service, ctrl *controller.Controller, recorder *blunder.Recorder, reviewer *review.Reviewer, logger *zap.Logger) *Server {
	return &Server{store: st, sessions: sessions, controller: ctrl, blunders: recorder, reviewer: reviewer, logger: logger}
}

// Router builds the chi mux for the full request surface of spec §6.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.With(userIDFromHeader).Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleStartSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Post("/end", s.handleEndSession)
			r.Post("/next-move", s.handleNextMove)
			r.Post("/blunders/auto", s.handleRecordAutoBlunder)
			r.Post("/blunders/manual", s.handleRecordManualBlunder)
		})
	})

	r.With(userIDFromHeader).Route("/api/blunders", func(r chi.Router) {
		r.Get("/", s.handleListBlunders)
		r.Post("/{blunderID}/review", s.handleReviewBlunder)
	})

	r.Get("/healthz", s.handleHealth)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type ctxKey string

const userIDCtxKey ctxKey = "user_id"

// userIDFromHeader is a stubbed auth extractor: a real deployment would
// verify a bearer token here. It lifts the caller's user id out of the
// X-User-Id header, per SPEC_FULL.md §1.
func userIDFromHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		if userID == "" {
			writeError(w, apperr.Auth("missing X-User-Id header"))
			return
		}
		ctx := r.Context()
		ctx = withUserID(ctx, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps apperr.Kind to an HTTP status code and writes a JSON
// error body. This is the one place in the repository that performs
// that mapping.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindAuth:
		status = http.StatusUnauthorized
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindInvalidArg:
		status = http.StatusBadRequest
	case apperr.KindPreconditionFailed:
		status = http.StatusPreconditionFailed
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindIntegrity:
		status = http.StatusUnprocessableEntity
	case apperr.KindServiceUnavailable:
		status = http.StatusServiceUnavailable
	case apperr.KindInternal:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": kind.String()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.InvalidArg("malformed request body: " + err.Error())
	}
	return nil
}
