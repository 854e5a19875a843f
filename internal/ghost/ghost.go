// Package ghost implements the bounded graph traversal that steers the
// opponent's move toward a position where the current user has
// previously blundered. It depends only on the narrow GraphReader
// capability interface, never on a concrete store, so it can be
// unit-tested against an in-memory fake.
package ghost

import (
	"context"
	"sort"
	"time"

	"github.com/ghostreplay/engine/internal/model"
	"github.com/ghostreplay/engine/internal/srs"
)

// MaxDepth bounds the traversal to at most this many plies from the
// starting position. The legacy 15-ply variant referenced in some
// source revisions is deprecated and intentionally not reproduced here.
const MaxDepth = 5

// Edge is one outgoing move from a position.
type Edge struct {
	MoveSAN      string
	ToPositionID int64
}

// GraphReader is the read surface the ghost engine needs from the
// position graph. A concrete store (internal/store) implements this by
// delegating to SQL; tests implement it in-memory.
type GraphReader interface {
	FindPositionByFEN(ctx context.Context, userID, fen string) (positionID int64, found bool, err error)
	OutgoingEdges(ctx context.Context, positionID int64) ([]Edge, error)
	PositionActiveColor(ctx context.Context, positionID int64) (string, error)
	BlunderAt(ctx context.Context, userID string, positionID int64) (*model.Blunder, bool, error)
}

// Engine runs the bounded, cycle-avoiding traversal described in
// spec §4.E.
type Engine struct {
	reader GraphReader
	now    func() time.Time
}

// NewEngine builds an Engine over the given GraphReader.
func NewEngine(reader GraphReader) *Engine {
	return &Engine{reader: reader, now: time.Now}
}

type scored struct {
	cand  model.Candidate
	score float64
}

// Search returns the best ghost-steering candidate reachable from the
// position named by fen, or nil if none exists within MaxDepth plies.
func (e *Engine) Search(ctx context.Context, userID, fen, playerColor string) (*model.Candidate, error) {
	start, found, err := e.reader.FindPositionByFEN(ctx, userID, fen)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var candidates []scored
	visited := map[int64]bool{start: true}

	type frame struct {
		positionID int64
		depth      int
		firstMove  string
	}

	queue := []frame{{positionID: start, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= MaxDepth {
			continue
		}

		edges, err := e.reader.OutgoingEdges(ctx, cur.positionID)
		if err != nil {
			return nil, err
		}

		for _, edge := range edges {
			if visited[edge.ToPositionID] {
				continue
			}

			firstMove := cur.firstMove
			if cur.depth == 0 {
				firstMove = edge.MoveSAN
			}
			depth := cur.depth + 1

			visited[edge.ToPositionID] = true

			activeColor, err := e.reader.PositionActiveColor(ctx, edge.ToPositionID)
			if err != nil {
				return nil, err
			}

			if activeColor == playerColor {
				blunder, has, err := e.reader.BlunderAt(ctx, userID, edge.ToPositionID)
				if err != nil {
					return nil, err
				}
				if has {
					priority := srs.Priority(blunder.PassStreak, blunder.LastReviewedAt, &blunder.CreatedAt, e.now())
					severity := 0.0
					if blunder.EvalLossCP > 0 {
						severity = float64(blunder.EvalLossCP) / 50.0
					}
					distance := 1.0 / (1.0 + 0.1*float64(depth))
					score := priority * severity * distance

					candidates = append(candidates, scored{
						cand: model.Candidate{
							FirstMoveSAN:   firstMove,
							BlunderID:      blunder.ID,
							Depth:          depth,
							EvalLossCP:     blunder.EvalLossCP,
							PassStreak:     blunder.PassStreak,
							LastReviewedAt: blunder.LastReviewedAt,
							CreatedAt:      blunder.CreatedAt,
						},
						score: score,
					})
				}
			}

			queue = append(queue, frame{positionID: edge.ToPositionID, depth: depth, firstMove: firstMove})
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.cand.Depth != b.cand.Depth {
			return a.cand.Depth < b.cand.Depth
		}
		if a.cand.EvalLossCP != b.cand.EvalLossCP {
			return a.cand.EvalLossCP > b.cand.EvalLossCP
		}
		if a.cand.BlunderID != b.cand.BlunderID {
			return a.cand.BlunderID < b.cand.BlunderID
		}
		return a.cand.FirstMoveSAN < b.cand.FirstMoveSAN
	})

	best := candidates[0].cand
	return &best, nil
}
