// Package blunder implements the blunder recorder (spec §4.I): replay a
// played game, splice every reached position and move into the user's
// graph, and attach a blunder annotation at the position where the
// mistake happened. An auxiliary manual-recorder input covers
// user-chosen moves outside the automatic first-blunder flow.
package blunder

import (
	"context"

	"github.com/ghostreplay/engine/internal/apperr"
	"github.com/ghostreplay/engine/internal/board"
	"github.com/ghostreplay/engine/internal/fenkey"
	"github.com/ghostreplay/engine/internal/model"
	"github.com/ghostreplay/engine/internal/review"
)

// AutoMaxFullMoves bounds the automatic recorder to the opening window
// where blunders are worth steering toward; PGNs past this are
// rejected.
const AutoMaxFullMoves = 10

// RecordParams is what the recorder asks the graph store to persist
// atomically: every reached position/edge from a replay, plus the
// blunder annotation at its pre-move position.
type RecordParams struct {
	UserID                   string
	SessionID                string
	Steps                    []board.Step
	BadMoveSAN               string
	BestMoveSAN              string
	EvalLossCP               int
	MarkFirstBlunderRecorded bool
}

// RecordResult is the outcome of persisting a RecordParams.
type RecordResult struct {
	BlunderID        int64
	PositionID       int64
	PositionsCreated int
	IsNew            bool
}

// GraphStore is the narrow persistence surface the recorder needs.
type GraphStore interface {
	FindPositionByFEN(ctx context.Context, userID, fen string) (int64, bool, error)
	FindBlunder(ctx context.Context, userID string, positionID int64) (*model.Blunder, bool, error)
	RecordBlunder(ctx context.Context, p RecordParams) (RecordResult, error)
}

// SessionStore is the narrow session surface the recorder needs.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*model.GameSession, error)
}

// Recorder implements both the automatic and manual blunder-recording
// flows described in spec §4.I.
type Recorder struct {
	sessions SessionStore
	graph    GraphStore
}

// NewRecorder builds a Recorder over the given session and graph
// stores.
func NewRecorder(sessions SessionStore, graph GraphStore) *Recorder {
	return &Recorder{sessions: sessions, graph: graph}
}

// Input is the shared payload for both recording flows. For the manual
// flow, BestMoveSAN/EvalBeforeCP/EvalAfterCP may be zero-valued; callers
// apply spec §4.I's defaulting (best = user move, evals default to 0)
// before calling RecordManual.
type Input struct {
	SessionID    string
	UserID       string
	PGN          string
	PreMoveFEN   string
	UserMoveSAN  string
	BestMoveSAN  string
	EvalBeforeCP int
	EvalAfterCP  int
}

// Result is the response shape of spec §6's record-blunder contracts.
// Classification is the SPEC_FULL.md move-log enrichment: a
// human-readable label for the recorded move, derived from the evals
// the caller supplied. It does not change the contract §4.I defines.
type Result struct {
	BlunderID        *int64
	PositionID       int64
	PositionsCreated int
	IsNew            bool
	Classification   review.MoveClassification
}

// RecordAuto is the automatic recorder: bounded to the first
// AutoMaxFullMoves full moves, sets the session's sticky
// first_blunder_recorded flag, and no-ops if that flag is already set.
func (r *Recorder) RecordAuto(ctx context.Context, in Input) (*Result, error) {
	session, err := r.authorize(ctx, in.SessionID, in.UserID)
	if err != nil {
		return nil, err
	}

	if session.FirstBlunderRecorded {
		return r.alreadyRecordedNoOp(ctx, in.UserID, in.PreMoveFEN)
	}

	return r.record(ctx, session, in, true, AutoMaxFullMoves)
}

// RecordManual is the auxiliary recorder for user-chosen moves: it
// never touches first_blunder_recorded and works on ended sessions too.
func (r *Recorder) RecordManual(ctx context.Context, in Input) (*Result, error) {
	session, err := r.authorize(ctx, in.SessionID, in.UserID)
	if err != nil {
		return nil, err
	}
	return r.record(ctx, session, in, false, 0)
}

func (r *Recorder) authorize(ctx context.Context, sessionID, userID string) (*model.GameSession, error) {
	session, err := r.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, apperr.Auth("session not owned by caller")
	}
	return session, nil
}

// alreadyRecordedNoOp looks up the real existing blunder/position ids
// for the already-recorded no-op path, rather than returning zero
// values -- see DESIGN.md's Open Question decision.
func (r *Recorder) alreadyRecordedNoOp(ctx context.Context, userID, preMoveFEN string) (*Result, error) {
	positionID, found, err := r.graph.FindPositionByFEN(ctx, userID, preMoveFEN)
	if err != nil {
		return nil, err
	}
	if !found {
		return &Result{IsNew: false}, nil
	}
	blunder, found, err := r.graph.FindBlunder(ctx, userID, positionID)
	if err != nil {
		return nil, err
	}
	if !found {
		return &Result{PositionID: positionID, IsNew: false}, nil
	}
	id := blunder.ID
	return &Result{BlunderID: &id, PositionID: positionID, IsNew: false}, nil
}

// record performs the shared replay-validate-persist sequence for both
// recording flows.
func (r *Recorder) record(ctx context.Context, session *model.GameSession, in Input, markFirst bool, maxFullMoves int) (*Result, error) {
	steps, err := board.ReplayPGN(in.PGN)
	if err != nil {
		return nil, apperr.InvalidArg("invalid pgn: " + err.Error())
	}
	if len(steps) == 0 {
		return nil, apperr.InvalidArg("pgn must contain at least one move")
	}

	if maxFullMoves > 0 {
		fullMoves := fullMovesPlayed(len(steps))
		if fullMoves > maxFullMoves {
			return nil, apperr.PreconditionFailed("automatic blunder recording is limited to the first few full moves")
		}
	}

	preMoveStep := steps[len(steps)-1]
	replayedPreMoveFEN := preMoveStep.FromFEN

	claimedNorm, err := fenkey.Normalize(in.PreMoveFEN)
	if err != nil {
		return nil, err
	}
	replayedNorm, err := fenkey.Normalize(replayedPreMoveFEN)
	if err != nil {
		return nil, err
	}
	if claimedNorm != replayedNorm {
		return nil, apperr.Integrity("pre-move fen mismatch: position does not match pgn")
	}

	preMoveColor, err := fenkey.ActiveColor(in.PreMoveFEN)
	if err != nil {
		return nil, err
	}
	if preMoveColor != string(session.PlayerColor) {
		return nil, apperr.PreconditionFailed(
			"cannot record blunder: position is " + preMoveColor + " to move but player is " + string(session.PlayerColor))
	}

	result, err := r.graph.RecordBlunder(ctx, RecordParams{
		UserID:                   in.UserID,
		SessionID:                in.SessionID,
		Steps:                    steps,
		BadMoveSAN:               in.UserMoveSAN,
		BestMoveSAN:              in.BestMoveSAN,
		EvalLossCP:               in.EvalBeforeCP - in.EvalAfterCP,
		MarkFirstBlunderRecorded: markFirst,
	})
	if err != nil {
		return nil, err
	}

	out := &Result{
		PositionID:       result.PositionID,
		PositionsCreated: result.PositionsCreated,
		IsNew:            result.IsNew,
		Classification: review.ClassifyMove(review.MoveContext{
			EvalLossCP:    in.EvalBeforeCP - in.EvalAfterCP,
			EvalAvailable: true,
		}),
	}
	id := result.BlunderID
	out.BlunderID = &id
	return out, nil
}

// fullMovesPlayed converts a ply count to a full-move count (1.e4 is
// full move 1).
func fullMovesPlayed(halfMoves int) int {
	return (halfMoves + 1) / 2
}
