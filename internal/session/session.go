// Package session orchestrates a game session's lifecycle: starting a
// new session against the bot, and ending one with a
// result, which in turn triggers the player's Elo rating update
// (SPEC_FULL.md's rating expansion).
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ghostreplay/engine/internal/apperr"
	"github.com/ghostreplay/engine/internal/model"
	"github.com/ghostreplay/engine/internal/rating"
)

// MinEngineElo and MaxEngineElo bound the bot strength a session may be
// configured with.
const (
	MinEngineElo = 600
	MaxEngineElo = 2600
)

// Store is the persistence surface the session service needs.
type Store interface {
	CreateSession(ctx context.Context, gs model.GameSession) error
	GetSession(ctx context.Context, sessionID string) (*model.GameSession, error)
	EndSession(ctx context.Context, sessionID string, result model.GameResult, endedAt time.Time) error
	LatestRatingState(ctx context.Context, userID string) (currentRating, gamesPlayed int, err error)
	InsertRatingHistory(ctx context.Context, userID, sessionID string, newRating int, isProvisional bool, gamesPlayed int, recordedAt time.Time) error
}

// Clock lets tests control "now".
type Clock func() time.Time

// Service implements session start/end.
type Service struct {
	store Store
	clock Clock
}

// NewService builds a Service. A nil clock defaults to time.Now().UTC().
func NewService(store Store, clock Clock) *Service {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{store: store, clock: clock}
}

// StartInput is the request payload for Start.
type StartInput struct {
	UserID      string
	EngineElo   int
	PlayerColor model.Color
}

// Start creates a new active session.
func (s *Service) Start(ctx context.Context, in StartInput) (*model.GameSession, error) {
	if !in.PlayerColor.Valid() {
		return nil, apperr.InvalidArg("player_color must be white or black")
	}
	if in.EngineElo < MinEngineElo || in.EngineElo > MaxEngineElo {
		return nil, apperr.InvalidArgf("engine_elo must be between %d and %d", MinEngineElo, MaxEngineElo)
	}

	gs := model.GameSession{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		EngineElo:   in.EngineElo,
		PlayerColor: in.PlayerColor,
		Status:      model.SessionActive,
		StartedAt:   s.clock(),
	}
	if err := s.store.CreateSession(ctx, gs); err != nil {
		return nil, err
	}
	return &gs, nil
}

// EndInput is the request payload for End.
type EndInput struct {
	SessionID string
	UserID    string
	Result    model.GameResult
}

// EndResult reports the session's final state and, when the result was
// rated, the player's updated rating.
type EndResult struct {
	Session       *model.GameSession
	RatingUpdated bool
	NewRating     int
	IsProvisional bool
}

// End marks a session ended with the given result and, for rated
// results, updates the player's Elo rating.
func (s *Service) End(ctx context.Context, in EndInput) (*EndResult, error) {
	if !in.Result.Valid() {
		return nil, apperr.InvalidArgf("unrecognized game result: %q", in.Result)
	}

	gs, err := s.store.GetSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if gs.UserID != in.UserID {
		return nil, apperr.Auth("session not owned by caller")
	}
	if gs.Status == model.SessionEnded {
		return nil, apperr.PreconditionFailed("session already ended")
	}

	now := s.clock()
	if err := s.store.EndSession(ctx, in.SessionID, in.Result, now); err != nil {
		return nil, err
	}
	gs.Status = model.SessionEnded
	gs.Result = &in.Result
	gs.EndedAt = &now

	out := &EndResult{Session: gs}

	if in.Result == model.ResultAbandon {
		return out, nil
	}

	currentRating, gamesPlayed, err := s.store.LatestRatingState(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	newRating, isProvisional, err := rating.ComputeNewRating(currentRating, gs.EngineElo, in.Result, gamesPlayed)
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertRatingHistory(ctx, in.UserID, in.SessionID, newRating, isProvisional, gamesPlayed, now); err != nil {
		return nil, err
	}

	out.RatingUpdated = true
	out.NewRating = newRating
	out.IsProvisional = isProvisional
	return out, nil
}
