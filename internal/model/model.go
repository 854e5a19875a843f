// Package model holds the entities shared across the ghost-replay
// components: positions, move edges, blunders, game sessions, and
// reviews. These are plain structs with no persistence or transport
// awareness.
package model

import "time"

// Color is a side to move or a player's assigned color.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Valid() bool { return c == White || c == Black }

// Opposite returns the other color.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// SessionStatus is the one-way active->ended lifecycle of a GameSession.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// GameResult is the outcome recorded when a session ends.
type GameResult string

const (
	ResultCheckmateWin  GameResult = "checkmate_win"
	ResultCheckmateLoss GameResult = "checkmate_loss"
	ResultResign        GameResult = "resign"
	ResultDraw          GameResult = "draw"
	ResultAbandon       GameResult = "abandon"
)

func (r GameResult) Valid() bool {
	switch r {
	case ResultCheckmateWin, ResultCheckmateLoss, ResultResign, ResultDraw, ResultAbandon:
		return true
	default:
		return false
	}
}

// Position is a single reached board state, scoped to one user.
type Position struct {
	ID           int64
	UserID       string
	FenHash      string
	FenRaw       string
	ActiveColor  Color
	CreatedAt    time.Time
}

// MoveEdge connects two positions via the SAN move played between them.
// (FromPositionID, MoveSAN) is the natural key; exactly one ToPositionID
// exists for it.
type MoveEdge struct {
	FromPositionID int64
	MoveSAN        string
	ToPositionID   int64
}

// Blunder is a per-user, per-position mistake annotation carrying a
// spaced-repetition schedule.
type Blunder struct {
	ID             int64
	UserID         string
	PositionID     int64
	BadMoveSAN     string
	BestMoveSAN    string
	EvalLossCP     int
	PassStreak     int
	LastReviewedAt *time.Time
	CreatedAt      time.Time
}

// GameSession is one played game between a user and the bot.
type GameSession struct {
	ID                  string // UUID
	UserID              string
	EngineElo           int
	PlayerColor         Color
	Status              SessionStatus
	Result              *GameResult
	StartedAt           time.Time
	EndedAt             *time.Time
	PGN                 string
	FirstBlunderRecorded bool
}

// BlunderReview is one immutable SRS review event.
type BlunderReview struct {
	ID            int64
	BlunderID     int64
	SessionID     string
	ReviewedAt    time.Time
	Passed        bool
	MovePlayedSAN string
	EvalDeltaCP   int
}

// Candidate is a scored ghost-steering result: the first move to take
// from the current position, along with the blunder it is steering
// toward and the data needed to reproduce its score.
type Candidate struct {
	FirstMoveSAN   string
	BlunderID      int64
	Depth          int
	EvalLossCP     int
	PassStreak     int
	LastReviewedAt *time.Time
	CreatedAt      time.Time
}
