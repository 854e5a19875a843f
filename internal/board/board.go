// Package board is the one place in this repository that imports
// corentings/chess/v2 directly. Every other package talks to chess
// positions through this narrow interface (legal moves, SAN/UCI
// conversion, push, FEN) so the rest of the codebase is insulated from
// the underlying library's exact API surface.
package board

import (
	"fmt"
	"strings"

	"github.com/corentings/chess/v2"
)

// Board wraps a chess.Game positioned at a single board state.
type Board struct {
	game *chess.Game
}

// FromFEN builds a Board from a FEN string.
func FromFEN(fen string) (*Board, error) {
	fenOpt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("invalid fen: %w", err)
	}
	g := chess.NewGame(fenOpt)
	return &Board{game: g}, nil
}

// FromPGN builds a Board sequence by replaying a PGN game from the
// starting position. It returns the Board positioned after the final
// move; callers that need every intermediate position should use
// ReplayPGN instead.
func FromPGN(pgn string) (*Board, error) {
	pgnOpt, err := chess.PGN(strings.NewReader(pgn))
	if err != nil {
		return nil, fmt.Errorf("invalid pgn: %w", err)
	}
	g := chess.NewGame(pgnOpt)
	return &Board{game: g}, nil
}

// Step is one ply of a replayed game: the position before the move, the
// SAN of the move played, and the position after.
type Step struct {
	FromFEN string
	SAN     string
	ToFEN   string
}

// ReplayPGN replays a PGN from the initial position and returns every
// ply as a Step, in order. It is the grounding for the blunder
// recorder's position/edge splice (see internal/blunder).
func ReplayPGN(pgn string) ([]Step, error) {
	pgnOpt, err := chess.PGN(strings.NewReader(pgn))
	if err != nil {
		return nil, fmt.Errorf("invalid pgn: %w", err)
	}
	g := chess.NewGame(pgnOpt)

	positions := g.Positions()
	moves := g.Moves()
	if len(positions) < 2 || len(moves) == 0 {
		return nil, fmt.Errorf("pgn must contain at least one move")
	}

	steps := make([]Step, 0, len(moves))
	for i, mv := range moves {
		from := positions[i].String()
		to := positions[i+1].String()
		san := chess.AlgebraicNotation{}.Encode(positions[i], mv)
		steps = append(steps, Step{FromFEN: from, SAN: san, ToFEN: to})
	}
	return steps, nil
}

// FEN returns the board's current position as a FEN string.
func (b *Board) FEN() string {
	return b.game.Position().String()
}

// ActiveColor returns "white" or "black" for the side to move.
func (b *Board) ActiveColor() string {
	if b.game.Position().Turn() == chess.White {
		return "white"
	}
	return "black"
}

// LegalMoves returns the SAN of every legal move in the current
// position.
func (b *Board) LegalMoves() []string {
	pos := b.game.Position()
	moves := pos.ValidMoves()
	sans := make([]string, 0, len(moves))
	for _, mv := range moves {
		sans = append(sans, chess.AlgebraicNotation{}.Encode(pos, mv))
	}
	return sans
}

// ParseSAN parses a SAN move string in the current position and returns
// its UCI form, without mutating the board.
func (b *Board) ParseSAN(san string) (uci string, err error) {
	pos := b.game.Position()
	for _, mv := range pos.ValidMoves() {
		if chess.AlgebraicNotation{}.Encode(pos, mv) == san {
			return chess.UCINotation{}.Encode(pos, mv), nil
		}
	}
	return "", fmt.Errorf("illegal or unknown SAN move %q", san)
}

// ParseUCI parses a UCI move string in the current position and returns
// its SAN form, without mutating the board.
func (b *Board) ParseUCI(uci string) (san string, err error) {
	pos := b.game.Position()
	for _, mv := range pos.ValidMoves() {
		if chess.UCINotation{}.Encode(pos, mv) == uci {
			return chess.AlgebraicNotation{}.Encode(pos, mv), nil
		}
	}
	return "", fmt.Errorf("illegal or unknown UCI move %q", uci)
}

// Push applies the SAN move to the board, mutating it in place.
func (b *Board) Push(san string) error {
	return b.game.PushNotationMove(san, chess.AlgebraicNotation{}, nil)
}

// Outcome reports whether the current position is terminal, and if so
// whether it is checkmate (as opposed to stalemate or a drawn-by-rule
// outcome such as insufficient material).
func (b *Board) Outcome() (isOver, isCheckmate bool) {
	outcome := b.game.Outcome()
	if outcome == chess.NoOutcome {
		return false, false
	}
	return true, b.game.Method() == chess.Checkmate
}

// HasLegalEnPassant reports whether the side to move has a legal
// en-passant capture available in the current position. Used by
// internal/fenkey to decide whether to retain the EP square.
func (b *Board) HasLegalEnPassant() bool {
	pos := b.game.Position()
	ep := pos.EnPassantSquare()
	if ep == chess.NoSquare {
		return false
	}
	for _, mv := range pos.ValidMoves() {
		if mv.HasTag(chess.EnPassant) {
			return true
		}
	}
	return false
}
