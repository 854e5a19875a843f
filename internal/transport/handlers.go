package transport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ghostreplay/engine/internal/apperr"
	"github.com/ghostreplay/engine/internal/blunder"
	"github.com/ghostreplay/engine/internal/model"
	"github.com/ghostreplay/engine/internal/review"
	"github.com/ghostreplay/engine/internal/session"
)

// --- sessions --------------------------------------------------------

type startSessionRequest struct {
	EngineElo   int    `json:"engine_elo"`
	PlayerColor string `json:"player_color"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	gs, err := s.sessions.Start(r.Context(), session.StartInput{
		UserID:      userIDFromContext(r.Context()),
		EngineElo:   req.EngineElo,
		PlayerColor: model.Color(req.PlayerColor),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, gs)
}

type endSessionRequest struct {
	Result string `json:"result"`
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.sessions.End(r.Context(), session.EndInput{
		SessionID: chi.URLParam(r, "sessionID"),
		UserID:    userIDFromContext(r.Context()),
		Result:    model.GameResult(req.Result),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- opponent move -----------------------------------------------------

type nextMoveRequest struct {
	FEN         string `json:"fen"`
	PlayerColor string `json:"player_color"`
	EngineElo   int    `json:"engine_elo"`
}

func (s *Server) handleNextMove(w http.ResponseWriter, r *http.Request) {
	var req nextMoveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	dec, err := s.controller.Next(r.Context(), userIDFromContext(r.Context()), req.FEN, model.Color(req.PlayerColor), req.EngineElo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

// --- blunder recording ---------------------------------------------------

type recordBlunderRequest struct {
	PGN          string `json:"pgn"`
	PreMoveFEN   string `json:"pre_move_fen"`
	UserMoveSAN  string `json:"user_move_san"`
	BestMoveSAN  string `json:"best_move_san"`
	EvalBeforeCP int    `json:"eval_before_cp"`
	EvalAfterCP  int    `json:"eval_after_cp"`
}

func (req recordBlunderRequest) toInput(sessionID, userID string) blunder.Input {
	return blunder.Input{
		SessionID:    sessionID,
		UserID:       userID,
		PGN:          req.PGN,
		PreMoveFEN:   req.PreMoveFEN,
		UserMoveSAN:  req.UserMoveSAN,
		BestMoveSAN:  req.BestMoveSAN,
		EvalBeforeCP: req.EvalBeforeCP,
		EvalAfterCP:  req.EvalAfterCP,
	}
}

func (s *Server) handleRecordAutoBlunder(w http.ResponseWriter, r *http.Request) {
	var req recordBlunderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.blunders.RecordAuto(r.Context(), req.toInput(chi.URLParam(r, "sessionID"), userIDFromContext(r.Context())))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecordManualBlunder(w http.ResponseWriter, r *http.Request) {
	var req recordBlunderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	// Manual recording defaults per spec §4.I: an unspecified best move
	// defaults to the user's own move, and missing evals default to 0.
	if req.BestMoveSAN == "" {
		req.BestMoveSAN = req.UserMoveSAN
	}

	res, err := s.blunders.RecordManual(r.Context(), req.toInput(chi.URLParam(r, "sessionID"), userIDFromContext(r.Context())))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- blunder review / listing --------------------------------------------

type reviewBlunderRequest struct {
	SessionID     string `json:"session_id"`
	Passed        bool   `json:"passed"`
	MovePlayedSAN string `json:"move_played_san"`
	EvalDeltaCP   int    `json:"eval_delta_cp"`
}

func (s *Server) handleReviewBlunder(w http.ResponseWriter, r *http.Request) {
	blunderID, err := strconv.ParseInt(chi.URLParam(r, "blunderID"), 10, 64)
	if err != nil {
		writeError(w, apperr.InvalidArg("blunderID must be numeric"))
		return
	}

	var req reviewBlunderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.reviewer.RecordReview(r.Context(), review.Input{
		BlunderID:     blunderID,
		SessionID:     req.SessionID,
		UserID:        userIDFromContext(r.Context()),
		Passed:        req.Passed,
		MovePlayedSAN: req.MovePlayedSAN,
		EvalDeltaCP:   req.EvalDeltaCP,
		Now:           time.Now().UTC(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListBlunders(w http.ResponseWriter, r *http.Request) {
	dueOnly := r.URL.Query().Get("due") == "true"

	blunders, err := s.store.ListBlunders(r.Context(), userIDFromContext(r.Context()), dueOnly, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blunders)
}
