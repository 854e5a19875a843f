// Package evaluator is the tactical evaluator capability (spec §4.G):
// given a position and a set of candidate UCI moves, score each one in
// centipawns from the pre-move mover's perspective. The production
// implementation drives a single UCI engine subprocess, adapted from
// the teacher's engine-pool package but narrowed to the one serialized
// worker spec §5 mandates (all access through one mutex; a failed
// evaluation resets and re-initializes the worker on the next call).
package evaluator

import "context"

// CandidateEval is one move's evaluation result.
type CandidateEval struct {
	UCI           string
	CPScore       int // from the side-to-move's perspective in the pre-move position
	CPLossVsBest  int // max(cpScore) - this.cpScore, >= 0
}

// Evaluator is the narrow capability interface the controller depends
// on. Tests use an in-memory double; production uses *SerialEvaluator.
type Evaluator interface {
	EvaluateMoves(ctx context.Context, fen string, ucis []string) ([]CandidateEval, error)
	Available() bool
}

// MateCPBase is the centipawn magnitude assigned to a forced mate,
// reduced by the distance to mate. Grounded on the original
// stockfish_service.py's _mate_to_cp formula.
const MateCPBase = 10000

// MateToCP converts a "mate in N" evaluation (positive N = the side to
// move delivers mate, negative N = the side to move is mated) into the
// signed centipawn scale used throughout this package.
func MateToCP(mateIn int) int {
	if mateIn > 0 {
		return MateCPBase - mateIn
	}
	if mateIn < 0 {
		return -(MateCPBase - (-mateIn))
	}
	return 0
}

// deriveLosses fills in CPLossVsBest for a slice of evaluations already
// populated with CPScore, relative to the best (maximum) score among
// them.
func deriveLosses(evals []CandidateEval) {
	if len(evals) == 0 {
		return
	}
	best := evals[0].CPScore
	for _, e := range evals[1:] {
		if e.CPScore > best {
			best = e.CPScore
		}
	}
	for i := range evals {
		evals[i].CPLossVsBest = best - evals[i].CPScore
	}
}
