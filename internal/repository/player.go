package repository

import (
	"context"
	"database/sql"
	"time"

	"chesswatch/internal/domain"

	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerRepository(db *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{db: db, logger: logger}
}

func (r *PlayerRepository) Get(ctx context.Context, hash string) (*domain.Player, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT hash, username, platform, elo, created_at, updated_at
		FROM players WHERE hash = ?`, hash)

	var p domain.Player
	if err := row.Scan(&p.Hash, &p.Username, &p.Platform, &p.Elo, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert creates the player on first import and refreshes elo afterwards.
// The created_at of an existing row is never touched.
func (r *PlayerRepository) Upsert(ctx context.Context, p *domain.Player) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO players (hash, username, platform, elo, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			elo = excluded.elo,
			updated_at = excluded.updated_at`,
		p.Hash, p.Username, p.Platform, p.Elo, now, now)
	return err
}
