package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chesswatch/internal/domain"

	"github.com/rs/zerolog"
)

// CursorRepository stores the resumable per-(platform, username) sync
// position. last_timestamp never decreases for a key: a stale Advance is a
// no-op, enforced in the UPDATE arm of the upsert.
type CursorRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewCursorRepository(db *sql.DB, logger zerolog.Logger) *CursorRepository {
	return &CursorRepository{db: db, logger: logger}
}

// Get returns nil when no cursor exists, which callers treat as a
// first/full import bounded only by their limit.
func (r *CursorRepository) Get(ctx context.Context, platform domain.Platform, username string) (*domain.SyncCursor, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT platform, username, last_timestamp, last_external_id, total_imported, updated_at
		FROM sync_cursors WHERE platform = ? AND username = ?`,
		platform, username)

	var c domain.SyncCursor
	err := row.Scan(&c.Platform, &c.Username, &c.LastTimestamp, &c.LastExternalID, &c.TotalImported, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Ensure creates the cursor row on the first import attempt, even one that
// imports nothing, without disturbing an existing position.
func (r *CursorRepository) Ensure(ctx context.Context, platform domain.Platform, username string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (platform, username, last_timestamp, last_external_id, total_imported, updated_at)
		VALUES (?, ?, ?, '', 0, ?)
		ON CONFLICT(platform, username) DO NOTHING`,
		platform, username, time.Unix(0, 0).UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to ensure cursor: %w", err)
	}
	return nil
}

// Advance moves the cursor forward and adds n to the imported total. An
// update carrying a timestamp older than the stored one changes nothing.
func (r *CursorRepository) Advance(ctx context.Context, platform domain.Platform, username string, ts time.Time, externalID string, n int) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (platform, username, last_timestamp, last_external_id, total_imported, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform, username) DO UPDATE SET
			last_timestamp = excluded.last_timestamp,
			last_external_id = excluded.last_external_id,
			total_imported = sync_cursors.total_imported + excluded.total_imported,
			updated_at = excluded.updated_at
		WHERE excluded.last_timestamp >= sync_cursors.last_timestamp`,
		platform, username, ts.UTC(), externalID, n, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		r.logger.Debug().
			Str("platform", string(platform)).
			Str("username", username).
			Time("timestamp", ts).
			Msg("stale cursor advance ignored")
	}
	return nil
}
