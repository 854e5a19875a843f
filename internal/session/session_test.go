package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostreplay/engine/internal/apperr"
	"github.com/ghostreplay/engine/internal/model"
	"github.com/ghostreplay/engine/internal/session"
)

type fakeStore struct {
	created        *model.GameSession
	get            *model.GameSession
	ended          bool
	endedResult    model.GameResult
	rating         int
	gamesPlayed    int
	historyInserted bool
}

func (f *fakeStore) CreateSession(_ context.Context, gs model.GameSession) error {
	f.created = &gs
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, sessionID string) (*model.GameSession, error) {
	if f.get == nil || f.get.ID != sessionID {
		return nil, apperr.NotFound("not found")
	}
	cp := *f.get
	return &cp, nil
}

func (f *fakeStore) EndSession(_ context.Context, _ string, result model.GameResult, _ time.Time) error {
	f.ended = true
	f.endedResult = result
	return nil
}

func (f *fakeStore) LatestRatingState(_ context.Context, _ string) (int, int, error) {
	return f.rating, f.gamesPlayed, nil
}

func (f *fakeStore) InsertRatingHistory(_ context.Context, _, _ string, _ int, _ bool, _ int, _ time.Time) error {
	f.historyInserted = true
	return nil
}

func fixedClock(t time.Time) session.Clock {
	return func() time.Time { return t }
}

func TestStart_CreatesActiveSession(t *testing.T) {
	store := &fakeStore{}
	svc := session.NewService(store, fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	gs, err := svc.Start(context.Background(), session.StartInput{
		UserID:      "u1",
		EngineElo:   1200,
		PlayerColor: model.White,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, gs.Status)
	assert.NotEmpty(t, gs.ID)
	require.NotNil(t, store.created)
}

func TestStart_RejectsOutOfRangeElo(t *testing.T) {
	svc := session.NewService(&fakeStore{}, nil)
	_, err := svc.Start(context.Background(), session.StartInput{
		UserID: "u1", EngineElo: 100, PlayerColor: model.White,
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidArg))
}

func TestEnd_UpdatesRatingOnWin(t *testing.T) {
	store := &fakeStore{
		get:    &model.GameSession{ID: "s1", UserID: "u1", EngineElo: 1200, Status: model.SessionActive},
		rating: 1200, gamesPlayed: 25,
	}
	svc := session.NewService(store, fixedClock(time.Now()))

	res, err := svc.End(context.Background(), session.EndInput{
		SessionID: "s1", UserID: "u1", Result: model.ResultCheckmateWin,
	})
	require.NoError(t, err)
	assert.True(t, res.RatingUpdated)
	assert.Greater(t, res.NewRating, 1200)
	assert.True(t, store.historyInserted)
	assert.True(t, store.ended)
}

func TestEnd_AbandonSkipsRating(t *testing.T) {
	store := &fakeStore{
		get: &model.GameSession{ID: "s1", UserID: "u1", EngineElo: 1200, Status: model.SessionActive},
	}
	svc := session.NewService(store, nil)

	res, err := svc.End(context.Background(), session.EndInput{
		SessionID: "s1", UserID: "u1", Result: model.ResultAbandon,
	})
	require.NoError(t, err)
	assert.False(t, res.RatingUpdated)
	assert.False(t, store.historyInserted)
}

func TestEnd_RejectsAlreadyEnded(t *testing.T) {
	store := &fakeStore{
		get: &model.GameSession{ID: "s1", UserID: "u1", Status: model.SessionEnded},
	}
	svc := session.NewService(store, nil)

	_, err := svc.End(context.Background(), session.EndInput{
		SessionID: "s1", UserID: "u1", Result: model.ResultDraw,
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindPreconditionFailed))
}

func TestEnd_RejectsOtherUsersSession(t *testing.T) {
	store := &fakeStore{
		get: &model.GameSession{ID: "s1", UserID: "someone-else", Status: model.SessionActive},
	}
	svc := session.NewService(store, nil)

	_, err := svc.End(context.Background(), session.EndInput{
		SessionID: "s1", UserID: "u1", Result: model.ResultDraw,
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuth))
}
