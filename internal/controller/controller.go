// Package controller implements the opponent-move controller (spec
// §4.H): the unified decision pipeline that picks the bot's next move,
// preferring a ghost-steered move toward the user's blunder library and
// otherwise falling back to a calibrated human-likeness model.
package controller

import (
	"context"
	"math"

	"github.com/ghostreplay/engine/internal/apperr"
	"github.com/ghostreplay/engine/internal/board"
	"github.com/ghostreplay/engine/internal/evaluator"
	"github.com/ghostreplay/engine/internal/fenkey"
	"github.com/ghostreplay/engine/internal/human"
	"github.com/ghostreplay/engine/internal/lossdist"
	"github.com/ghostreplay/engine/internal/model"
)

// Mode describes which branch of the decision tree produced the move.
type Mode string

const (
	ModeGhost  Mode = "ghost"
	ModeEngine Mode = "engine"
)

// DecisionSource is the external-facing label for Mode, per the
// request contract in spec §6.
type DecisionSource string

const (
	SourceGhostPath     DecisionSource = "ghost_path"
	SourceBackendEngine DecisionSource = "backend_engine"
)

// Move is a chosen move in both notations.
type Move struct {
	UCI string
	SAN string
}

// Decision is the controller's response.
type Decision struct {
	Mode            Mode
	Move            Move
	TargetBlunderID *int64
	DecisionSource  DecisionSource
}

// GhostSearcher is the narrow surface the controller needs from the
// graph store's ghost traversal.
type GhostSearcher interface {
	GhostSearch(ctx context.Context, userID, fen, playerColor string) (*model.Candidate, error)
}

// RNG is the randomness source for weighted sampling and
// target-centipawn-loss draws. *math/rand.Rand satisfies it.
type RNG interface {
	lossdist.Sampler
	Float64() float64
}

// Config holds the controller's tunables.
type Config struct {
	CalibrationEnabled bool
	HumanPenaltyWeight float64 // default 15.0, per spec §4.H
}

// Controller wires the ghost engine, human-move provider, and tactical
// evaluator into the decision pipeline of spec §4.H.
type Controller struct {
	ghost GhostSearcher
	human human.Provider
	eval  evaluator.Evaluator
	cfg   Config
	rng   RNG
}

// New builds a Controller. eval may be nil; the calibrated branch falls
// back to weighted sampling when it is nil or unavailable.
func New(ghost GhostSearcher, humanProvider human.Provider, eval evaluator.Evaluator, cfg Config, rng RNG) *Controller {
	if cfg.HumanPenaltyWeight == 0 {
		cfg.HumanPenaltyWeight = 15.0
	}
	return &Controller{ghost: ghost, human: humanProvider, eval: eval, cfg: cfg, rng: rng}
}

// Next picks the bot's next move for userID at fen, where playerColor
// is the human player's assigned color in the session and engineElo is
// the session's configured bot strength.
func (c *Controller) Next(ctx context.Context, userID, fen string, playerColor model.Color, engineElo int) (*Decision, error) {
	active, err := fenkey.ActiveColor(fen)
	if err != nil {
		return nil, err
	}
	if active == string(playerColor) {
		return nil, apperr.PreconditionFailed("it is the player's turn")
	}

	if dec := c.tryGhost(ctx, userID, fen, string(playerColor)); dec != nil {
		return dec, nil
	}

	return c.engineBranch(ctx, fen, engineElo)
}

// tryGhost calls the ghost engine and returns a Decision only if it
// yields a move that still parses legally against fen. Any failure
// (search error, stale/illegal move) is swallowed here: the ghost
// branch never surfaces its own errors to the client, per spec §7.
func (c *Controller) tryGhost(ctx context.Context, userID, fen, playerColor string) *Decision {
	cand, err := c.ghost.GhostSearch(ctx, userID, fen, playerColor)
	if err != nil || cand == nil {
		return nil
	}

	b, err := board.FromFEN(fen)
	if err != nil {
		return nil
	}
	uci, err := b.ParseSAN(cand.FirstMoveSAN)
	if err != nil {
		return nil
	}

	blunderID := cand.BlunderID
	return &Decision{
		Mode:            ModeGhost,
		Move:            Move{UCI: uci, SAN: cand.FirstMoveSAN},
		TargetBlunderID: &blunderID,
		DecisionSource:  SourceGhostPath,
	}
}

func (c *Controller) engineBranch(ctx context.Context, fen string, engineElo int) (*Decision, error) {
	if !c.cfg.CalibrationEnabled {
		cands, err := c.human.Candidates(ctx, fen, engineElo)
		if err != nil {
			return nil, err
		}
		return c.decisionFromCandidate(fen, cands[0])
	}

	if engineElo >= human.EloFloor {
		cands, err := c.human.Candidates(ctx, fen, engineElo)
		if err != nil {
			return nil, err
		}
		return c.decisionFromCandidate(fen, weightedSample(cands, c.rng))
	}

	return c.calibratedBranch(ctx, fen, engineElo)
}

func (c *Controller) calibratedBranch(ctx context.Context, fen string, engineElo int) (*Decision, error) {
	cands, err := c.human.Candidates(ctx, fen, human.EloFloor)
	if err != nil {
		return nil, err
	}

	if c.eval == nil || !c.eval.Available() {
		return c.decisionFromCandidate(fen, weightedSample(cands, c.rng))
	}

	ucis := make([]string, len(cands))
	for i, cand := range cands {
		ucis[i] = cand.UCI
	}
	evals, err := c.eval.EvaluateMoves(ctx, fen, ucis)
	if err != nil {
		// Tactical evaluator unavailable: never fail the request for
		// this reason alone, fall back to weighted sampling.
		return c.decisionFromCandidate(fen, weightedSample(cands, c.rng))
	}

	lossByUCI := make(map[string]int, len(evals))
	for _, e := range evals {
		lossByUCI[e.UCI] = e.CPLossVsBest
	}

	target := lossdist.SampleTargetLoss(float64(engineElo), c.rng)

	best := cands[0]
	bestScore := math.Inf(1)
	for _, cand := range cands {
		loss, ok := lossByUCI[cand.UCI]
		if !ok {
			continue
		}
		p := cand.P
		if p < 0.001 {
			p = 0.001
		}
		score := math.Abs(float64(loss)-target) + c.cfg.HumanPenaltyWeight*(-math.Log(p))
		if score < bestScore {
			bestScore = score
			best = cand
		}
	}

	return c.decisionFromCandidate(fen, best)
}

// decisionFromCandidate validates a human-model candidate's UCI against
// the current position and builds the engine-branch Decision. An
// illegal UCI from the human model is a non-retryable internal error.
func (c *Controller) decisionFromCandidate(fen string, cand human.Candidate) (*Decision, error) {
	b, err := board.FromFEN(fen)
	if err != nil {
		return nil, err
	}
	san, err := b.ParseUCI(cand.UCI)
	if err != nil {
		return nil, apperr.Internal("human-move provider returned illegal uci for position", err)
	}
	return &Decision{
		Mode:           ModeEngine,
		Move:           Move{UCI: cand.UCI, SAN: san},
		DecisionSource: SourceBackendEngine,
	}, nil
}

func weightedSample(cands []human.Candidate, rng RNG) human.Candidate {
	total := 0.0
	for _, c := range cands {
		total += c.P
	}
	if total <= 0 {
		return cands[0]
	}

	r := rng.Float64() * total
	cum := 0.0
	for _, c := range cands {
		cum += c.P
		if r <= cum {
			return c
		}
	}
	return cands[len(cands)-1]
}
