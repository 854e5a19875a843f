package human

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampElo(t *testing.T) {
	assert.Equal(t, EloFloor, clampElo(900))
	assert.Equal(t, 1500, clampElo(1500))
	assert.Equal(t, EloFloor, clampElo(EloFloor))
}

func TestFilterTopK_LimitsCount(t *testing.T) {
	cands := make([]Candidate, 0, 10)
	for i := 0; i < 10; i++ {
		cands = append(cands, Candidate{UCI: "m", P: 0.5})
	}
	out := filterTopK(cands, 8, 0.01)
	assert.Len(t, out, 8)
}

func TestFilterTopK_DropsBelowThreshold(t *testing.T) {
	cands := []Candidate{
		{UCI: "a", P: 0.5},
		{UCI: "b", P: 0.3},
		{UCI: "c", P: 0.005}, // below threshold
	}
	out := filterTopK(cands, 8, 0.01)
	assert.Len(t, out, 2)
}

func TestFilterTopK_AlwaysNonEmpty(t *testing.T) {
	cands := []Candidate{{UCI: "only", P: 0.001}}
	out := filterTopK(cands, 8, 0.01)
	assert.Len(t, out, 1)
	assert.Equal(t, "only", out[0].UCI)
}
