// Package store is the Postgres-backed implementation of the position
// graph and blunder library (spec §4.D). It uses pgx for connection
// pooling and squirrel for building the queries. Lookups by FEN or by
// (user, position) are scoped by user_id per the ownership invariant in
// spec §3; queries keyed by a row id (edges, active color, a blunder by
// id, sessions) carry no user_id filter.
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ghostreplay/engine/internal/apperr"
	"github.com/ghostreplay/engine/internal/blunder"
	"github.com/ghostreplay/engine/internal/fenkey"
	"github.com/ghostreplay/engine/internal/ghost"
	"github.com/ghostreplay/engine/internal/model"
	"github.com/ghostreplay/engine/internal/rating"
	"github.com/ghostreplay/engine/internal/review"
	"github.com/ghostreplay/engine/internal/srs"
)

// Store is the graph/blunder persistence layer.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	sb     sq.StatementBuilderType
	ghost  *ghost.Engine
}

// New builds a Store over an already-connected pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	s := &Store{
		pool:   pool,
		logger: logger,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
	s.ghost = ghost.NewEngine(s)
	return s
}

// Connect opens a pgx pool against dsn.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, dsn)
}

// BeginTx starts a request-scoped transaction. RecordBlunder and
// RecordReview wrap their writes in one of these so a failure rolls back
// all partial work. CreateSession, EndSession and InsertRatingHistory
// write through the pool without a transaction, so ending a session and
// recording its rating are two separate commits.
func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

// UpsertPosition inserts a position if one does not already exist for
// (userID, fen_hash), returning its id either way.
func (s *Store) UpsertPosition(ctx context.Context, tx pgx.Tx, userID, fenRaw string) (int64, bool, error) {
	hash, err := fenkey.Hash(fenRaw)
	if err != nil {
		return 0, false, err
	}
	color, err := fenkey.ActiveColor(fenRaw)
	if err != nil {
		return 0, false, err
	}

	var id int64
	selQ, selArgs, err := s.sb.Select("id").From("positions").
		Where(sq.Eq{"user_id": userID, "fen_hash": hash}).ToSql()
	if err != nil {
		return 0, false, apperr.Internal("build select position query", err)
	}
	err = tx.QueryRow(ctx, selQ, selArgs...).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, apperr.Internal("query existing position", err)
	}

	insQ, insArgs, err := s.sb.Insert("positions").
		Columns("user_id", "fen_hash", "fen_raw", "active_color").
		Values(userID, hash, fenRaw, color).
		Suffix("RETURNING id").ToSql()
	if err != nil {
		return 0, false, apperr.Internal("build insert position query", err)
	}
	if err := tx.QueryRow(ctx, insQ, insArgs...).Scan(&id); err != nil {
		return 0, false, apperr.Internal("insert position", err)
	}
	return id, true, nil
}

// UpsertEdge inserts (fromID, moveSAN) -> toID if it does not already
// exist. Idempotent on conflict per spec §5.
func (s *Store) UpsertEdge(ctx context.Context, tx pgx.Tx, fromID int64, moveSAN string, toID int64) error {
	q, args, err := s.sb.Insert("move_edges").
		Columns("from_position_id", "move_san", "to_position_id").
		Values(fromID, moveSAN, toID).
		Suffix("ON CONFLICT (from_position_id, move_san) DO NOTHING").ToSql()
	if err != nil {
		return apperr.Internal("build insert edge query", err)
	}
	if _, err := tx.Exec(ctx, q, args...); err != nil {
		return apperr.Internal("insert edge", err)
	}
	return nil
}

// FindPositionByFEN implements ghost.GraphReader and is also used
// directly by the recorder.
func (s *Store) FindPositionByFEN(ctx context.Context, userID, fen string) (int64, bool, error) {
	hash, err := fenkey.Hash(fen)
	if err != nil {
		return 0, false, err
	}
	q, args, err := s.sb.Select("id").From("positions").
		Where(sq.Eq{"user_id": userID, "fen_hash": hash}).ToSql()
	if err != nil {
		return 0, false, apperr.Internal("build find position query", err)
	}
	var id int64
	err = s.pool.QueryRow(ctx, q, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperr.Internal("query position", err)
	}
	return id, true, nil
}

// OutgoingEdges implements ghost.GraphReader.
func (s *Store) OutgoingEdges(ctx context.Context, positionID int64) ([]ghost.Edge, error) {
	q, args, err := s.sb.Select("move_san", "to_position_id").From("move_edges").
		Where(sq.Eq{"from_position_id": positionID}).ToSql()
	if err != nil {
		return nil, apperr.Internal("build outgoing edges query", err)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Internal("query outgoing edges", err)
	}
	defer rows.Close()

	var edges []ghost.Edge
	for rows.Next() {
		var e ghost.Edge
		if err := rows.Scan(&e.MoveSAN, &e.ToPositionID); err != nil {
			return nil, apperr.Internal("scan edge", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// PositionActiveColor implements ghost.GraphReader.
func (s *Store) PositionActiveColor(ctx context.Context, positionID int64) (string, error) {
	q, args, err := s.sb.Select("active_color").From("positions").
		Where(sq.Eq{"id": positionID}).ToSql()
	if err != nil {
		return "", apperr.Internal("build active color query", err)
	}
	var color string
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&color); err != nil {
		return "", apperr.Internal("query active color", err)
	}
	return color, nil
}

// BlunderAt implements ghost.GraphReader and is also exposed as
// FindBlunder for the recorder.
func (s *Store) BlunderAt(ctx context.Context, userID string, positionID int64) (*model.Blunder, bool, error) {
	return s.findBlunder(ctx, s.pool, userID, positionID)
}

// FindBlunder looks up the blunder for (userID, positionID), if any.
func (s *Store) FindBlunder(ctx context.Context, userID string, positionID int64) (*model.Blunder, bool, error) {
	return s.findBlunder(ctx, s.pool, userID, positionID)
}

func (s *Store) findBlunder(ctx context.Context, q querierRow, userID string, positionID int64) (*model.Blunder, bool, error) {
	query, args, err := s.sb.Select(
		"id", "user_id", "position_id", "bad_move_san", "best_move_san",
		"eval_loss_cp", "pass_streak", "last_reviewed_at", "created_at",
	).From("blunders").Where(sq.Eq{"user_id": userID, "position_id": positionID}).ToSql()
	if err != nil {
		return nil, false, apperr.Internal("build find blunder query", err)
	}

	var b model.Blunder
	err = q.QueryRow(ctx, query, args...).Scan(
		&b.ID, &b.UserID, &b.PositionID, &b.BadMoveSAN, &b.BestMoveSAN,
		&b.EvalLossCP, &b.PassStreak, &b.LastReviewedAt, &b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Internal("query blunder", err)
	}
	return &b, true, nil
}

// FindBlunderByID looks up a blunder by its own id, regardless of
// position, for the reviewer's authorization check.
func (s *Store) FindBlunderByID(ctx context.Context, blunderID int64) (*model.Blunder, bool, error) {
	q, args, err := s.sb.Select(
		"id", "user_id", "position_id", "bad_move_san", "best_move_san",
		"eval_loss_cp", "pass_streak", "last_reviewed_at", "created_at",
	).From("blunders").Where(sq.Eq{"id": blunderID}).ToSql()
	if err != nil {
		return nil, false, apperr.Internal("build find blunder by id query", err)
	}

	var b model.Blunder
	err = s.pool.QueryRow(ctx, q, args...).Scan(
		&b.ID, &b.UserID, &b.PositionID, &b.BadMoveSAN, &b.BestMoveSAN,
		&b.EvalLossCP, &b.PassStreak, &b.LastReviewedAt, &b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Internal("query blunder by id", err)
	}
	return &b, true, nil
}

// RecordReview persists one SRS review atomically: it updates the
// blunder's pass_streak/last_reviewed_at and appends the immutable
// review row in the same transaction. Implements review.Store.
func (s *Store) RecordReview(ctx context.Context, p review.RecordParams) (model.BlunderReview, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return model.BlunderReview{}, apperr.Internal("begin review transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := s.UpdateBlunderReview(ctx, tx, p.BlunderID, p.NewPassStreak, p.ReviewedAt); err != nil {
		return model.BlunderReview{}, err
	}

	row := model.BlunderReview{
		BlunderID:     p.BlunderID,
		SessionID:     p.SessionID,
		ReviewedAt:    p.ReviewedAt,
		Passed:        p.Passed,
		MovePlayedSAN: p.MovePlayedSAN,
		EvalDeltaCP:   p.EvalDeltaCP,
	}
	id, err := s.InsertBlunderReview(ctx, tx, row)
	if err != nil {
		return model.BlunderReview{}, err
	}
	row.ID = id

	if err := tx.Commit(ctx); err != nil {
		return model.BlunderReview{}, apperr.Internal("commit review transaction", err)
	}
	return row, nil
}

// querierRow is the subset of querier needed for a single-row lookup;
// satisfied by both *pgxpool.Pool and pgx.Tx.
type querierRow interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UpsertBlunder inserts a blunder for (userID, positionID) if one does
// not already exist. An existing blunder's annotations are never
// overwritten; the existing row is returned with isNew=false.
func (s *Store) UpsertBlunder(ctx context.Context, tx pgx.Tx, userID string, positionID int64, badMoveSAN, bestMoveSAN string, evalLossCP int) (int64, bool, error) {
	existing, found, err := s.findBlunder(ctx, tx, userID, positionID)
	if err != nil {
		return 0, false, err
	}
	if found {
		return existing.ID, false, nil
	}

	q, args, err := s.sb.Insert("blunders").
		Columns("user_id", "position_id", "bad_move_san", "best_move_san", "eval_loss_cp").
		Values(userID, positionID, badMoveSAN, bestMoveSAN, evalLossCP).
		Suffix("RETURNING id").ToSql()
	if err != nil {
		return 0, false, apperr.Internal("build insert blunder query", err)
	}
	var id int64
	if err := tx.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		return 0, false, apperr.Internal("insert blunder", err)
	}
	return id, true, nil
}

// UpdateBlunderReview mutates a blunder's pass_streak and
// last_reviewed_at in place, per spec §4.J.
func (s *Store) UpdateBlunderReview(ctx context.Context, tx pgx.Tx, blunderID int64, newStreak int, reviewedAt time.Time) error {
	q, args, err := s.sb.Update("blunders").
		Set("pass_streak", newStreak).
		Set("last_reviewed_at", reviewedAt).
		Where(sq.Eq{"id": blunderID}).ToSql()
	if err != nil {
		return apperr.Internal("build update blunder query", err)
	}
	if _, err := tx.Exec(ctx, q, args...); err != nil {
		return apperr.Internal("update blunder", err)
	}
	return nil
}

// InsertBlunderReview appends an immutable review row.
func (s *Store) InsertBlunderReview(ctx context.Context, tx pgx.Tx, r model.BlunderReview) (int64, error) {
	q, args, err := s.sb.Insert("blunder_reviews").
		Columns("blunder_id", "session_id", "reviewed_at", "passed", "move_played_san", "eval_delta_cp").
		Values(r.BlunderID, r.SessionID, r.ReviewedAt, r.Passed, r.MovePlayedSAN, r.EvalDeltaCP).
		Suffix("RETURNING id").ToSql()
	if err != nil {
		return 0, apperr.Internal("build insert review query", err)
	}
	var id int64
	if err := tx.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		return 0, apperr.Internal("insert review", err)
	}
	return id, nil
}

// GetSession loads a game session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*model.GameSession, error) {
	q, args, err := s.sb.Select(
		"id", "user_id", "engine_elo", "player_color", "status", "result",
		"started_at", "ended_at", "pgn", "first_blunder_recorded",
	).From("game_sessions").Where(sq.Eq{"id": sessionID}).ToSql()
	if err != nil {
		return nil, apperr.Internal("build get session query", err)
	}

	var gs model.GameSession
	var pgn *string
	err = s.pool.QueryRow(ctx, q, args...).Scan(
		&gs.ID, &gs.UserID, &gs.EngineElo, &gs.PlayerColor, &gs.Status, &gs.Result,
		&gs.StartedAt, &gs.EndedAt, &pgn, &gs.FirstBlunderRecorded,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("game session not found")
	}
	if err != nil {
		return nil, apperr.Internal("query session", err)
	}
	if pgn != nil {
		gs.PGN = *pgn
	}
	return &gs, nil
}

// CreateSession inserts a new active session.
func (s *Store) CreateSession(ctx context.Context, gs model.GameSession) error {
	q, args, err := s.sb.Insert("game_sessions").
		Columns("id", "user_id", "engine_elo", "player_color", "status", "started_at", "first_blunder_recorded").
		Values(gs.ID, gs.UserID, gs.EngineElo, gs.PlayerColor, gs.Status, gs.StartedAt, gs.FirstBlunderRecorded).
		ToSql()
	if err != nil {
		return apperr.Internal("build create session query", err)
	}
	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		return apperr.Internal("insert session", err)
	}
	return nil
}

// EndSession marks a session ended with the given result.
func (s *Store) EndSession(ctx context.Context, sessionID string, result model.GameResult, endedAt time.Time) error {
	q, args, err := s.sb.Update("game_sessions").
		Set("status", model.SessionEnded).
		Set("result", result).
		Set("ended_at", endedAt).
		Where(sq.Eq{"id": sessionID}).ToSql()
	if err != nil {
		return apperr.Internal("build end session query", err)
	}
	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		return apperr.Internal("end session", err)
	}
	return nil
}

// MarkFirstBlunderRecorded flips the session's sticky flag inside tx.
func (s *Store) MarkFirstBlunderRecorded(ctx context.Context, tx pgx.Tx, sessionID string) error {
	q, args, err := s.sb.Update("game_sessions").
		Set("first_blunder_recorded", true).
		Where(sq.Eq{"id": sessionID}).ToSql()
	if err != nil {
		return apperr.Internal("build mark first blunder query", err)
	}
	if _, err := tx.Exec(ctx, q, args...); err != nil {
		return apperr.Internal("mark first blunder recorded", err)
	}
	return nil
}

// GhostSearch delegates to the in-process ghost traversal engine,
// satisfying spec §4.D's ghostSearch operation while keeping the
// traversal itself independently testable (see internal/ghost).
func (s *Store) GhostSearch(ctx context.Context, userID, fen, playerColor string) (*model.Candidate, error) {
	return s.ghost.Search(ctx, userID, fen, playerColor)
}

// RecordBlunder persists an entire PGN replay and its blunder annotation
// atomically: every position and edge the replay visits is upserted,
// then the blunder is upserted at the pre-move position (the position
// before the final step), and the session's sticky flag is flipped if
// requested. Implements blunder.GraphStore.
func (s *Store) RecordBlunder(ctx context.Context, p blunder.RecordParams) (blunder.RecordResult, error) {
	if len(p.Steps) == 0 {
		return blunder.RecordResult{}, apperr.InvalidArg("no steps to record")
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return blunder.RecordResult{}, apperr.Internal("begin blunder recording transaction", err)
	}
	defer tx.Rollback(ctx)

	positionsCreated := 0
	curID, created, err := s.UpsertPosition(ctx, tx, p.UserID, p.Steps[0].FromFEN)
	if err != nil {
		return blunder.RecordResult{}, err
	}
	if created {
		positionsCreated++
	}

	var preMoveID int64
	for _, step := range p.Steps {
		preMoveID = curID
		nextID, created, err := s.UpsertPosition(ctx, tx, p.UserID, step.ToFEN)
		if err != nil {
			return blunder.RecordResult{}, err
		}
		if created {
			positionsCreated++
		}
		if err := s.UpsertEdge(ctx, tx, curID, step.SAN, nextID); err != nil {
			return blunder.RecordResult{}, err
		}
		curID = nextID
	}

	blunderID, isNew, err := s.UpsertBlunder(ctx, tx, p.UserID, preMoveID, p.BadMoveSAN, p.BestMoveSAN, p.EvalLossCP)
	if err != nil {
		return blunder.RecordResult{}, err
	}

	if p.MarkFirstBlunderRecorded {
		if err := s.MarkFirstBlunderRecorded(ctx, tx, p.SessionID); err != nil {
			return blunder.RecordResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return blunder.RecordResult{}, apperr.Internal("commit blunder recording transaction", err)
	}

	return blunder.RecordResult{
		BlunderID:        blunderID,
		PositionID:       preMoveID,
		PositionsCreated: positionsCreated,
		IsNew:            isNew,
	}, nil
}

// LatestRatingState returns userID's current rating and the number of
// rated games played so far, defaulting a never-rated user to
// rating.DefaultRating with zero games played.
func (s *Store) LatestRatingState(ctx context.Context, userID string) (currentRating, gamesPlayed int, err error) {
	q, args, err := s.sb.Select("rating", "games_played").From("rating_history").
		Where(sq.Eq{"user_id": userID}).OrderBy("recorded_at DESC").Limit(1).ToSql()
	if err != nil {
		return 0, 0, apperr.Internal("build latest rating query", err)
	}

	var r, g int
	err = s.pool.QueryRow(ctx, q, args...).Scan(&r, &g)
	if errors.Is(err, pgx.ErrNoRows) {
		return rating.DefaultRating, 0, nil
	}
	if err != nil {
		return 0, 0, apperr.Internal("query latest rating", err)
	}
	return r, g + 1, nil
}

// InsertRatingHistory appends a rating snapshot after a rated game ends.
func (s *Store) InsertRatingHistory(ctx context.Context, userID, sessionID string, newRating int, isProvisional bool, gamesPlayed int, recordedAt time.Time) error {
	q, args, err := s.sb.Insert("rating_history").
		Columns("user_id", "game_session_id", "rating", "is_provisional", "games_played", "recorded_at").
		Values(userID, sessionID, newRating, isProvisional, gamesPlayed, recordedAt).ToSql()
	if err != nil {
		return apperr.Internal("build insert rating history query", err)
	}
	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		return apperr.Internal("insert rating history", err)
	}
	return nil
}

// ListBlunders returns every blunder for userID, optionally filtered to
// only those currently due, sorted by descending priority.
func (s *Store) ListBlunders(ctx context.Context, userID string, dueOnly bool, now time.Time) ([]model.Blunder, error) {
	q, args, err := s.sb.Select(
		"id", "user_id", "position_id", "bad_move_san", "best_move_san",
		"eval_loss_cp", "pass_streak", "last_reviewed_at", "created_at",
	).From("blunders").Where(sq.Eq{"user_id": userID}).ToSql()
	if err != nil {
		return nil, apperr.Internal("build list blunders query", err)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Internal("query blunders", err)
	}
	defer rows.Close()

	var out []model.Blunder
	for rows.Next() {
		var b model.Blunder
		if err := rows.Scan(
			&b.ID, &b.UserID, &b.PositionID, &b.BadMoveSAN, &b.BestMoveSAN,
			&b.EvalLossCP, &b.PassStreak, &b.LastReviewedAt, &b.CreatedAt,
		); err != nil {
			return nil, apperr.Internal("scan blunder", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("iterate blunders", err)
	}

	type scored struct {
		b        model.Blunder
		priority float64
	}
	scoredList := make([]scored, 0, len(out))
	for _, b := range out {
		p := srs.Priority(b.PassStreak, b.LastReviewedAt, &b.CreatedAt, now)
		if dueOnly && !srs.IsDue(p) {
			continue
		}
		scoredList = append(scoredList, scored{b: b, priority: p})
	}
	sort.Slice(scoredList, func(i, j int) bool {
		return scoredList[i].priority > scoredList[j].priority
	})

	result := make([]model.Blunder, len(scoredList))
	for i, s := range scoredList {
		result[i] = s.b
	}
	return result, nil
}
