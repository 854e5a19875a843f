package ghost_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostreplay/engine/internal/ghost"
	"github.com/ghostreplay/engine/internal/model"
)

// fakeGraph is an in-memory GraphReader used to test the traversal
// logic in isolation from any real store.
type fakeGraph struct {
	positionsByFEN map[string]int64
	activeColor    map[int64]string
	edges          map[int64][]ghost.Edge
	blunders       map[int64]*model.Blunder // keyed by positionID
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		positionsByFEN: map[string]int64{},
		activeColor:    map[int64]string{},
		edges:          map[int64][]ghost.Edge{},
		blunders:       map[int64]*model.Blunder{},
	}
}

func (f *fakeGraph) pos(id int64, fen, color string) {
	f.positionsByFEN[fen] = id
	f.activeColor[id] = color
}

func (f *fakeGraph) edge(from int64, san string, to int64) {
	f.edges[from] = append(f.edges[from], ghost.Edge{MoveSAN: san, ToPositionID: to})
}

func (f *fakeGraph) blunder(positionID int64, b *model.Blunder) {
	f.blunders[positionID] = b
}

func (f *fakeGraph) FindPositionByFEN(_ context.Context, _ string, fen string) (int64, bool, error) {
	id, ok := f.positionsByFEN[fen]
	return id, ok, nil
}

func (f *fakeGraph) OutgoingEdges(_ context.Context, positionID int64) ([]ghost.Edge, error) {
	return f.edges[positionID], nil
}

func (f *fakeGraph) PositionActiveColor(_ context.Context, positionID int64) (string, error) {
	return f.activeColor[positionID], nil
}

func (f *fakeGraph) BlunderAt(_ context.Context, _ string, positionID int64) (*model.Blunder, bool, error) {
	b, ok := f.blunders[positionID]
	return b, ok, nil
}

func TestSearch_NoStartPosition(t *testing.T) {
	g := newFakeGraph()
	e := ghost.NewEngine(g)
	cand, err := e.Search(context.Background(), "u1", "missing-fen", "white")
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestSearch_ColorScoping(t *testing.T) {
	// Blunder exists one ply away but on a position where it is white's
	// turn, while the player is black -- must not be returned.
	g := newFakeGraph()
	g.pos(1, "start", "black")
	g.pos(2, "next", "white")
	g.edge(1, "e5", 2)
	g.blunder(2, &model.Blunder{ID: 9, PassStreak: 0, EvalLossCP: 100, CreatedAt: time.Now().Add(-10 * time.Hour)})

	e := ghost.NewEngine(g)
	cand, err := e.Search(context.Background(), "u1", "start", "black")
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestSearch_FindsDirectBlunder(t *testing.T) {
	g := newFakeGraph()
	g.pos(1, "start", "black")
	g.pos(2, "next", "white")
	g.edge(1, "e5", 2)
	g.blunder(2, &model.Blunder{ID: 9, PassStreak: 0, EvalLossCP: 100, CreatedAt: time.Now().Add(-10 * time.Hour)})

	e := ghost.NewEngine(g)
	cand, err := e.Search(context.Background(), "u1", "start", "white")
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "e5", cand.FirstMoveSAN)
	assert.Equal(t, int64(9), cand.BlunderID)
	assert.Equal(t, 1, cand.Depth)
}

func TestSearch_CycleSafety(t *testing.T) {
	// A -> B -> C -> A (cycle), and B -> D where D has a matching blunder.
	g := newFakeGraph()
	g.pos(1, "A", "black")
	g.pos(2, "B", "white")
	g.pos(3, "C", "black")
	g.pos(4, "D", "white")
	g.edge(1, "m1", 2)
	g.edge(2, "m2", 3)
	g.edge(3, "m3", 1) // cycle back to A
	g.edge(2, "m4", 4)
	g.blunder(4, &model.Blunder{ID: 42, PassStreak: 0, EvalLossCP: 200, CreatedAt: time.Now().Add(-20 * time.Hour)})

	e := ghost.NewEngine(g)
	cand, err := e.Search(context.Background(), "u1", "A", "white")
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "m1", cand.FirstMoveSAN) // first move taken from the start
	assert.Equal(t, int64(42), cand.BlunderID)
}

func TestSearch_DepthBoundary(t *testing.T) {
	g := newFakeGraph()
	// chain of length MaxDepth: 0 -> 1 -> 2 -> 3 -> 4 -> 5
	colors := []string{"black", "white", "black", "white", "black", "white"}
	for i := int64(0); i <= 5; i++ {
		g.pos(i, string(rune('a'+i)), colors[i])
	}
	for i := int64(0); i < 5; i++ {
		g.edge(i, "m", i+1)
	}
	g.blunder(5, &model.Blunder{ID: 1, PassStreak: 0, EvalLossCP: 50, CreatedAt: time.Now().Add(-5 * time.Hour)})

	e := ghost.NewEngine(g)
	cand, err := e.Search(context.Background(), "u1", "a", "white")
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, 5, cand.Depth)
}

func TestSearch_BeyondDepthBoundaryNotFound(t *testing.T) {
	g := newFakeGraph()
	colors := []string{"black", "white", "black", "white", "black", "white", "black"}
	for i := int64(0); i <= 6; i++ {
		g.pos(i, string(rune('a'+i)), colors[i])
	}
	for i := int64(0); i < 6; i++ {
		g.edge(i, "m", i+1)
	}
	g.blunder(6, &model.Blunder{ID: 1, PassStreak: 0, EvalLossCP: 50, CreatedAt: time.Now().Add(-5 * time.Hour)})

	e := ghost.NewEngine(g)
	cand, err := e.Search(context.Background(), "u1", "a", "black")
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestSearch_TieBreakDeterministic(t *testing.T) {
	// Two candidates with identical priority*severity*distance scores;
	// the one with the lower blunder_id must win once depth and
	// eval_loss_cp are also tied.
	g := newFakeGraph()
	g.pos(1, "start", "black")
	g.pos(2, "n1", "white")
	g.pos(3, "n2", "white")
	g.edge(1, "a4", 2)
	g.edge(1, "b4", 3)

	createdAt := time.Now().Add(-10 * time.Hour)
	g.blunder(2, &model.Blunder{ID: 5, PassStreak: 0, EvalLossCP: 100, CreatedAt: createdAt})
	g.blunder(3, &model.Blunder{ID: 3, PassStreak: 0, EvalLossCP: 100, CreatedAt: createdAt})

	e := ghost.NewEngine(g)
	cand, err := e.Search(context.Background(), "u1", "start", "white")
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, int64(3), cand.BlunderID)
	assert.Equal(t, "b4", cand.FirstMoveSAN)
}
