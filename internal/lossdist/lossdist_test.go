package lossdist_test

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ghostreplay/engine/internal/lossdist"
)

func TestParams_ExactCalibrationPoints(t *testing.T) {
	mu, sigma := lossdist.Params(600)
	assert.InDelta(t, 4.174, mu, 1e-9)
	assert.InDelta(t, 1.31, sigma, 1e-9)

	mu, sigma = lossdist.Params(800)
	assert.InDelta(t, 3.807, mu, 1e-9)
	assert.InDelta(t, 1.34, sigma, 1e-9)

	mu, sigma = lossdist.Params(1000)
	assert.InDelta(t, 3.401, mu, 1e-9)
	assert.InDelta(t, 1.40, sigma, 1e-9)
}

func TestParams_Interpolates(t *testing.T) {
	mu, _ := lossdist.Params(700)
	assert.InDelta(t, (4.174+3.807)/2, mu, 1e-9)
}

func TestParams_ClampsOutOfRange(t *testing.T) {
	lowMu, lowSigma := lossdist.Params(100)
	exactMu, exactSigma := lossdist.Params(600)
	assert.Equal(t, exactMu, lowMu)
	assert.Equal(t, exactSigma, lowSigma)

	highMu, highSigma := lossdist.Params(5000)
	exactMu2, exactSigma2 := lossdist.Params(1000)
	assert.Equal(t, exactMu2, highMu)
	assert.Equal(t, exactSigma2, highSigma)
}

func TestSampleTargetLoss_Reproducible(t *testing.T) {
	r1 := rand.New(rand.NewSource(42))
	r2 := rand.New(rand.NewSource(42))

	a := lossdist.SampleTargetLoss(800, r1)
	b := lossdist.SampleTargetLoss(800, r2)
	assert.Equal(t, a, b)
}

func TestSampleTargetLoss_NonNegative(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		v := lossdist.SampleTargetLoss(750, r)
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func median(samples []float64) float64 {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

func TestSampleTargetLoss_MedianDecreasingInElo(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	const n = 10000

	sample := func(elo float64) float64 {
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = lossdist.SampleTargetLoss(elo, r)
		}
		return median(vals)
	}

	m600 := sample(600)
	m800 := sample(800)
	m1000 := sample(1000)

	assert.Greater(t, m600, m800)
	assert.Greater(t, m800, m1000)

	// Median of a lognormal is exp(mu); sanity check the 800 bucket is
	// in the right ballpark.
	assert.InDelta(t, math.Exp(3.807), m800, math.Exp(3.807)*0.3)
}
