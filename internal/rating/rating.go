// Package rating implements the player's Elo rating update (SPEC_FULL.md
// §4 expansion): a standard Elo adjustment computed from a session's
// result against the bot's engine_elo, with a provisional (higher-K)
// period for new players.
package rating

import (
	"math"

	"github.com/ghostreplay/engine/internal/apperr"
	"github.com/ghostreplay/engine/internal/model"
)

const (
	DefaultRating       = 1200
	ProvisionalThreshold = 20
	KProvisional        = 40.0
	KStable             = 20.0
)

// resultScores maps a rated game outcome to its Elo score. abandon is
// deliberately absent: it is not a rated outcome.
var resultScores = map[model.GameResult]float64{
	model.ResultCheckmateWin:  1.0,
	model.ResultCheckmateLoss: 0.0,
	model.ResultResign:        0.0,
	model.ResultDraw:          0.5,
}

// ExpectedScore is the probability the player wins, given both ratings.
func ExpectedScore(playerRating, opponentRating int) float64 {
	return 1.0 / (1.0 + math.Pow(10.0, float64(opponentRating-playerRating)/400.0))
}

// ComputeNewRating applies a single rated result to currentRating and
// reports whether the player is still in their provisional period
// (gamesPlayed counts games before this one).
func ComputeNewRating(currentRating, opponentRating int, result model.GameResult, gamesPlayed int) (newRating int, isProvisional bool, err error) {
	score, ok := resultScores[result]
	if !ok {
		return 0, false, apperr.InvalidArgf("unrated result: %q", result)
	}

	isProvisional = gamesPlayed < ProvisionalThreshold
	k := KStable
	if isProvisional {
		k = KProvisional
	}

	e := ExpectedScore(currentRating, opponentRating)
	newRating = int(math.Round(float64(currentRating) + k*(score-e)))
	return newRating, isProvisional, nil
}
