// Package fenkey computes the canonical identity of a chess position:
// a four-field normalized FEN and its SHA-256 hash. Two FENs that
// differ only in move counters, or in a spurious en-passant square that
// is not actually capturable, normalize to the same value.
package fenkey

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/ghostreplay/engine/internal/apperr"
	"github.com/ghostreplay/engine/internal/board"
)

// Normalize returns the four-field canonical form of fen: piece
// placement, active color, castling rights, and en-passant square
// (forced to "-" unless an en-passant capture is actually legal).
func Normalize(fen string) (string, error) {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return "", apperr.InvalidArgf("malformed fen %q: fewer than 4 fields", fen)
	}

	placement, active, castling := fields[0], fields[1], fields[2]
	if active != "w" && active != "b" {
		return "", apperr.InvalidArgf("malformed fen %q: bad active color", fen)
	}

	ep := "-"
	if hasLegalEnPassant(fen) {
		ep = fields[3]
	}

	return strings.Join([]string{placement, active, castling, ep}, " "), nil
}

func hasLegalEnPassant(fen string) bool {
	b, err := board.FromFEN(fen)
	if err != nil {
		return false
	}
	return b.HasLegalEnPassant()
}

// Hash returns the SHA-256 hex digest of the normalized FEN.
func Hash(fen string) (string, error) {
	norm, err := Normalize(fen)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:]), nil
}

// ActiveColor extracts the side-to-move field from fen as "white" or
// "black".
func ActiveColor(fen string) (string, error) {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return "", apperr.InvalidArgf("malformed fen %q: fewer than 2 fields", fen)
	}
	switch fields[1] {
	case "w":
		return "white", nil
	case "b":
		return "black", nil
	default:
		return "", apperr.InvalidArgf("malformed fen %q: bad active color", fen)
	}
}
