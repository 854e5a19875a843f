// Package review implements the SRS review recorder (spec §4.J): the
// pass/fail verdict on a blunder drill updates its spaced-repetition
// streak, appends an immutable review row, and schedules the next
// expected review. It also carries the move-classification labels
// (brilliant through blunder) used to enrich a session's move log.
package review

import (
	"context"
	"time"

	"github.com/ghostreplay/engine/internal/apperr"
	"github.com/ghostreplay/engine/internal/model"
	"github.com/ghostreplay/engine/internal/srs"
)

// Store is the narrow persistence surface the reviewer needs.
type Store interface {
	FindBlunderByID(ctx context.Context, blunderID int64) (*model.Blunder, bool, error)
	GetSession(ctx context.Context, sessionID string) (*model.GameSession, error)
	RecordReview(ctx context.Context, p RecordParams) (model.BlunderReview, error)
}

// RecordParams is what the reviewer asks the store to persist
// atomically: the review row plus the blunder's updated streak.
type RecordParams struct {
	BlunderID     int64
	SessionID     string
	ReviewedAt    time.Time
	Passed        bool
	MovePlayedSAN string
	EvalDeltaCP   int
	NewPassStreak int
}

// Input is the request payload for RecordReview.
type Input struct {
	BlunderID     int64
	SessionID     string
	UserID        string
	Passed        bool
	MovePlayedSAN string
	EvalDeltaCP   int
	Now           time.Time
}

// Result is the response shape of spec §6's review contract.
type Result struct {
	Review               model.BlunderReview
	NewPassStreak        int
	NextExpectedReviewAt time.Time
}

// Reviewer implements the SRS review recorder.
type Reviewer struct {
	store Store
}

// NewReviewer builds a Reviewer over the given store.
func NewReviewer(store Store) *Reviewer {
	return &Reviewer{store: store}
}

// RecordReview authorizes the caller against the blunder's owner,
// computes the new pass streak, and persists the review atomically.
func (r *Reviewer) RecordReview(ctx context.Context, in Input) (*Result, error) {
	b, found, err := r.store.FindBlunderByID(ctx, in.BlunderID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.NotFound("blunder not found")
	}
	if b.UserID != in.UserID {
		return nil, apperr.Auth("blunder not owned by caller")
	}

	session, err := r.store.GetSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != in.UserID {
		return nil, apperr.Auth("session not owned by caller")
	}

	newStreak := 0
	if in.Passed {
		newStreak = b.PassStreak + 1
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	review, err := r.store.RecordReview(ctx, RecordParams{
		BlunderID:     in.BlunderID,
		SessionID:     in.SessionID,
		ReviewedAt:    now,
		Passed:        in.Passed,
		MovePlayedSAN: in.MovePlayedSAN,
		EvalDeltaCP:   in.EvalDeltaCP,
		NewPassStreak: newStreak,
	})
	if err != nil {
		return nil, err
	}

	nextHours := srs.ExpectedIntervalHours(newStreak)
	return &Result{
		Review:               review,
		NewPassStreak:        newStreak,
		NextExpectedReviewAt: now.Add(time.Duration(nextHours * float64(time.Hour))),
	}, nil
}
