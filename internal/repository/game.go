package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chesswatch/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type GameRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewGameRepository(db *sql.DB, logger zerolog.Logger) *GameRepository {
	return &GameRepository{db: db, logger: logger}
}

// Exists is the dedup point lookup on the UNIQUE(platform, external_id)
// index, checked before every persistence attempt.
func (r *GameRepository) Exists(ctx context.Context, platform domain.Platform, externalID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM games WHERE platform = ? AND external_id = ?`,
		platform, externalID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SaveScored writes one imported game as a single unit: player upsert, game
// insert and score insert share a transaction, so a failed score insert can
// never leave a game row behind without its score. A unique-constraint hit
// on (platform, external_id) is reported as ErrDuplicateGame; concurrent
// imports of the same range rely on that constraint rather than on the
// earlier Exists check.
func (r *GameRepository) SaveScored(ctx context.Context, player *domain.Player, game *domain.Game, score *domain.Score) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO players (hash, username, platform, elo, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			elo = excluded.elo,
			updated_at = excluded.updated_at`,
		player.Hash, player.Username, player.Platform, player.Elo, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert player %s: %w", player.Hash, err)
	}

	gameID := game.ID
	if gameID == "" {
		gameID, err = gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate game id: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO games (id, player_hash, platform, external_id, played_at, result, pgn, time_control, opening, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform, external_id) DO NOTHING`,
		gameID, game.PlayerHash, game.Platform, game.ExternalID, game.PlayedAt,
		game.Result, game.PGN, game.TimeControl, nullable(game.Opening), now)
	if err != nil {
		return fmt.Errorf("failed to insert game %s: %w", game.ExternalID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrDuplicateGame
	}

	scoreID := score.ID
	if scoreID == "" {
		scoreID, err = gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate score id: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scores (id, game_id, engine_match_pct, delta_cp, run_perfect_count, ml_prob, suspicion_level, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		scoreID, gameID, score.EngineMatchPct, score.DeltaCP,
		score.RunPerfectCount, score.MLProb, score.SuspicionLevel, now)
	if err != nil {
		return fmt.Errorf("failed to insert score for game %s: %w", game.ExternalID, err)
	}

	return tx.Commit()
}

// GameWithScore backs the read surface consumed by dashboards.
type GameWithScore struct {
	Game  domain.Game
	Score domain.Score
}

func (r *GameRepository) ListByPlayer(ctx context.Context, playerHash string, limit int) ([]GameWithScore, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT g.id, g.player_hash, g.platform, g.external_id, g.played_at, g.result,
		       g.pgn, g.time_control, COALESCE(g.opening, ''), g.created_at,
		       s.id, s.engine_match_pct, s.delta_cp, s.run_perfect_count, s.ml_prob, s.suspicion_level, s.created_at
		FROM games g
		JOIN scores s ON s.game_id = g.id
		WHERE g.player_hash = ?
		ORDER BY g.played_at DESC
		LIMIT ?`, playerHash, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []GameWithScore
	for rows.Next() {
		var gw GameWithScore
		if err := rows.Scan(
			&gw.Game.ID, &gw.Game.PlayerHash, &gw.Game.Platform, &gw.Game.ExternalID,
			&gw.Game.PlayedAt, &gw.Game.Result, &gw.Game.PGN, &gw.Game.TimeControl,
			&gw.Game.Opening, &gw.Game.CreatedAt,
			&gw.Score.ID, &gw.Score.EngineMatchPct, &gw.Score.DeltaCP,
			&gw.Score.RunPerfectCount, &gw.Score.MLProb, &gw.Score.SuspicionLevel,
			&gw.Score.CreatedAt,
		); err != nil {
			return nil, err
		}
		gw.Score.GameID = gw.Game.ID
		results = append(results, gw)
	}
	return results, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
