// Package lossdist samples a target centipawn-loss value for a given
// playing strength, used by the opponent-move controller's calibrated
// selection branch (spec §4.H). The distribution is lognormal, with its
// parameters linearly interpolated between three calibration points
// derived from human game databases.
package lossdist

import "math"

type calPoint struct {
	elo   float64
	mu    float64
	sigma float64
}

var calibration = []calPoint{
	{elo: 600, mu: 4.174, sigma: 1.31},
	{elo: 800, mu: 3.807, sigma: 1.34},
	{elo: 1000, mu: 3.401, sigma: 1.40},
}

const (
	minElo = 600.0
	maxElo = 1000.0
)

// Params returns the interpolated (mu, sigma) for the given target Elo,
// clamped to [600, 1000] before interpolation.
func Params(targetElo float64) (mu, sigma float64) {
	elo := targetElo
	if elo < minElo {
		elo = minElo
	}
	if elo > maxElo {
		elo = maxElo
	}

	if elo <= calibration[0].elo {
		return calibration[0].mu, calibration[0].sigma
	}
	last := calibration[len(calibration)-1]
	if elo >= last.elo {
		return last.mu, last.sigma
	}

	for i := 0; i < len(calibration)-1; i++ {
		lo, hi := calibration[i], calibration[i+1]
		if elo >= lo.elo && elo <= hi.elo {
			t := (elo - lo.elo) / (hi.elo - lo.elo)
			return lerp(lo.mu, hi.mu, t), lerp(lo.sigma, hi.sigma, t)
		}
	}
	// Unreachable given the clamp above.
	return last.mu, last.sigma
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Sampler draws reproducible normal deviates. *math/rand.Rand satisfies
// this; tests supply a seeded instance for determinism.
type Sampler interface {
	NormFloat64() float64
}

// SampleTargetLoss draws a single target centipawn-loss value for the
// given Elo, via exp(N(mu, sigma)).
func SampleTargetLoss(targetElo float64, rng Sampler) float64 {
	mu, sigma := Params(targetElo)
	z := rng.NormFloat64()
	return math.Exp(mu + sigma*z)
}
