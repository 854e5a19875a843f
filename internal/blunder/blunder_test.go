package blunder_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostreplay/engine/internal/apperr"
	"github.com/ghostreplay/engine/internal/blunder"
	"github.com/ghostreplay/engine/internal/board"
	"github.com/ghostreplay/engine/internal/model"
	"github.com/ghostreplay/engine/internal/review"
)

const (
	startFEN    = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	afterE4FEN  = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	afterE4E5   = "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2"
	samplePGN   = "1. e4 e5"
	sampleSteps = 2
)

type fakeSessions struct {
	session *model.GameSession
	err     error
}

func (f fakeSessions) GetSession(_ context.Context, _ string) (*model.GameSession, error) {
	return f.session, f.err
}

type fakeGraph struct {
	positionByFEN map[string]int64
	blunderByPos  map[int64]model.Blunder
	recordErr     error
	recorded      *blunder.RecordParams
	nextBlunderID int64
}

func (f *fakeGraph) FindPositionByFEN(_ context.Context, _, fen string) (int64, bool, error) {
	id, ok := f.positionByFEN[fen]
	return id, ok, nil
}

func (f *fakeGraph) FindBlunder(_ context.Context, _ string, positionID int64) (*model.Blunder, bool, error) {
	b, ok := f.blunderByPos[positionID]
	if !ok {
		return nil, false, nil
	}
	return &b, true, nil
}

func (f *fakeGraph) RecordBlunder(_ context.Context, p blunder.RecordParams) (blunder.RecordResult, error) {
	if f.recordErr != nil {
		return blunder.RecordResult{}, f.recordErr
	}
	f.recorded = &p
	id := f.nextBlunderID
	if id == 0 {
		id = 42
	}
	return blunder.RecordResult{BlunderID: id, PositionID: 1, PositionsCreated: sampleSteps + 1, IsNew: true}, nil
}

func activeSession(id, userID string) *model.GameSession {
	return &model.GameSession{
		ID:          id,
		UserID:      userID,
		PlayerColor: model.Black,
		Status:      model.SessionActive,
		StartedAt:   time.Now(),
	}
}

func TestRecordAuto_HappyPath(t *testing.T) {
	sessions := fakeSessions{session: activeSession("s1", "u1")}
	graph := &fakeGraph{}
	r := blunder.NewRecorder(sessions, graph)

	res, err := r.RecordAuto(context.Background(), blunder.Input{
		SessionID:    "s1",
		UserID:       "u1",
		PGN:          samplePGN,
		PreMoveFEN:   afterE4FEN,
		UserMoveSAN:  "e5",
		BestMoveSAN:  "c5",
		EvalBeforeCP: 20,
		EvalAfterCP:  -180,
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotNil(t, res.BlunderID)
	assert.Equal(t, int64(42), *res.BlunderID)
	require.NotNil(t, graph.recorded)
	assert.Equal(t, 200, graph.recorded.EvalLossCP)
	assert.True(t, graph.recorded.MarkFirstBlunderRecorded)
	assert.Equal(t, review.ClassMistake, res.Classification)
}

func TestRecordAuto_RejectsOtherUsersSession(t *testing.T) {
	sessions := fakeSessions{session: activeSession("s1", "someone-else")}
	graph := &fakeGraph{}
	r := blunder.NewRecorder(sessions, graph)

	_, err := r.RecordAuto(context.Background(), blunder.Input{
		SessionID:  "s1",
		UserID:     "u1",
		PGN:        samplePGN,
		PreMoveFEN: afterE4FEN,
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuth))
}

func TestRecordAuto_AlreadyRecordedReturnsRealIDs(t *testing.T) {
	session := activeSession("s1", "u1")
	session.FirstBlunderRecorded = true
	graph := &fakeGraph{
		positionByFEN: map[string]int64{afterE4FEN: 9},
		blunderByPos:  map[int64]model.Blunder{9: {ID: 77, PositionID: 9}},
	}
	r := blunder.NewRecorder(fakeSessions{session: session}, graph)

	res, err := r.RecordAuto(context.Background(), blunder.Input{
		SessionID:  "s1",
		UserID:     "u1",
		PGN:        samplePGN,
		PreMoveFEN: afterE4FEN,
	})
	require.NoError(t, err)
	require.NotNil(t, res.BlunderID)
	assert.Equal(t, int64(77), *res.BlunderID)
	assert.Equal(t, int64(9), res.PositionID)
	assert.False(t, res.IsNew)
	assert.Nil(t, graph.recorded)
}

func TestRecordAuto_FenMismatchRejected(t *testing.T) {
	sessions := fakeSessions{session: activeSession("s1", "u1")}
	graph := &fakeGraph{}
	r := blunder.NewRecorder(sessions, graph)

	_, err := r.RecordAuto(context.Background(), blunder.Input{
		SessionID:  "s1",
		UserID:     "u1",
		PGN:        samplePGN,
		PreMoveFEN: startFEN, // doesn't match the replayed pre-move position
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindIntegrity))
}

func TestRecordAuto_WrongSideToMoveRejected(t *testing.T) {
	session := activeSession("s1", "u1")
	session.PlayerColor = model.White // pre-move position is black-to-move
	sessions := fakeSessions{session: session}
	graph := &fakeGraph{}
	r := blunder.NewRecorder(sessions, graph)

	_, err := r.RecordAuto(context.Background(), blunder.Input{
		SessionID:  "s1",
		UserID:     "u1",
		PGN:        samplePGN,
		PreMoveFEN: afterE4FEN,
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindPreconditionFailed))
}

func TestRecordAuto_ExceedsMaxFullMoves(t *testing.T) {
	sessions := fakeSessions{session: activeSession("s1", "u1")}
	graph := &fakeGraph{}
	r := blunder.NewRecorder(sessions, graph)

	longPGN := "1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 4. Ba4 Nf6 5. O-O Be7 6. Re1 b5 7. Bb3 d6 8. c3 O-O 9. h3 Nb8 10. d4 Nbd7 11. Nbd2 Bb7 12. Bc2 Re8"
	_, err := r.RecordAuto(context.Background(), blunder.Input{
		SessionID:  "s1",
		UserID:     "u1",
		PGN:        longPGN,
		PreMoveFEN: afterE4FEN,
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindPreconditionFailed))
}

func TestRecordManual_WorksOnEndedSession(t *testing.T) {
	session := activeSession("s1", "u1")
	session.Status = model.SessionEnded
	sessions := fakeSessions{session: session}
	graph := &fakeGraph{}
	r := blunder.NewRecorder(sessions, graph)

	res, err := r.RecordManual(context.Background(), blunder.Input{
		SessionID:   "s1",
		UserID:      "u1",
		PGN:         samplePGN,
		PreMoveFEN:  afterE4FEN,
		UserMoveSAN: "e5",
		BestMoveSAN: "e5", // manual defaulting: best = user move when unknown
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, graph.recorded.MarkFirstBlunderRecorded)
	assert.Equal(t, 0, graph.recorded.EvalLossCP) // defaults to 0 per spec
}

func TestReplaySanity(t *testing.T) {
	// Confirms the fixture PGN/FEN pair used above actually replays the
	// way the tests assume, independent of the recorder.
	steps, err := board.ReplayPGN(samplePGN)
	require.NoError(t, err)
	require.Len(t, steps, sampleSteps)
	assert.Equal(t, startFEN, steps[0].FromFEN)
}
