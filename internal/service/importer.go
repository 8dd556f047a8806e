package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chesswatch/internal/adapter"
	"chesswatch/internal/constants"
	"chesswatch/internal/domain"
	"chesswatch/internal/repository"
	"chesswatch/internal/scorer"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Fetcher is the slice of the adapter contract the importer needs; tests
// substitute stubs for it.
type Fetcher interface {
	Platform() domain.Platform
	Fetch(ctx context.Context, username string, since *time.Time, limit int) ([]domain.ProcessedGame, []string, error)
}

// Report is the structured outcome of one import run. Every recovered
// partial failure appears in Errors; nothing fails silently.
type Report struct {
	Platform     domain.Platform `json:"platform"`
	Username     string          `json:"username"`
	Imported     int             `json:"imported"`
	TotalFetched int             `json:"total_fetched"`
	Errors       []string        `json:"errors"`
}

type Target struct {
	Platform domain.Platform `json:"platform"`
	Username string          `json:"username"`
	Limit    int             `json:"limit"`
}

// Importer drives one or many (platform, username) imports end to end:
// cursor load, rate-limited fetch, dedup, scoring, transactional persistence
// and cursor advance.
type Importer struct {
	fetchers map[domain.Platform]Fetcher
	strategy scorer.Strategy
	games    *repository.GameRepository
	cursors  *repository.CursorRepository
	logger   zerolog.Logger

	// delay between batch targets, co-operating with the per-platform
	// rate limiters
	interTargetDelay time.Duration
}

func NewImporter(
	chessCom *adapter.ChessCom,
	lichess *adapter.Lichess,
	strategy scorer.Strategy,
	games *repository.GameRepository,
	cursors *repository.CursorRepository,
	logger zerolog.Logger,
) *Importer {
	return newImporter([]Fetcher{chessCom, lichess}, strategy, games, cursors, logger)
}

func newImporter(fetchers []Fetcher, strategy scorer.Strategy, games *repository.GameRepository, cursors *repository.CursorRepository, logger zerolog.Logger) *Importer {
	byPlatform := make(map[domain.Platform]Fetcher, len(fetchers))
	for _, f := range fetchers {
		byPlatform[f.Platform()] = f
	}
	return &Importer{
		fetchers:         byPlatform,
		strategy:         strategy,
		games:            games,
		cursors:          cursors,
		logger:           logger,
		interTargetDelay: constants.InterTargetDelay,
	}
}

func validate(platform domain.Platform, username string, limit int) error {
	if !platform.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidPlatform, platform)
	}
	if username == "" {
		return domain.ErrEmptyUsername
	}
	if limit < constants.MinImportLimit || limit > constants.MaxImportLimit {
		return fmt.Errorf("%w: got %d", domain.ErrInvalidLimit, limit)
	}
	return nil
}

// ImportOne imports up to limit games for one target. Validation failures
// and total fetch failures are returned as errors before or instead of a
// useful report; per-game failures are recorded in Report.Errors and never
// abort the remaining games.
func (i *Importer) ImportOne(ctx context.Context, platform domain.Platform, username string, limit int) (Report, error) {
	report := Report{Platform: platform, Username: username, Errors: []string{}}

	if err := validate(platform, username, limit); err != nil {
		return report, err
	}
	fetcher, ok := i.fetchers[platform]
	if !ok {
		return report, fmt.Errorf("%w: %q", domain.ErrInvalidPlatform, platform)
	}

	// The cursor row exists from the first attempt onward, even when the
	// attempt imports nothing.
	if err := i.cursors.Ensure(ctx, platform, username); err != nil {
		return report, err
	}

	var since *time.Time
	cursor, err := i.cursors.Get(ctx, platform, username)
	if err != nil {
		return report, fmt.Errorf("failed to load cursor: %w", err)
	}
	if cursor != nil && cursor.LastTimestamp.After(time.Unix(0, 0)) {
		ts := cursor.LastTimestamp
		since = &ts
	}

	i.logger.Info().
		Str("platform", string(platform)).
		Str("username", username).
		Int("limit", limit).
		Bool("resuming", since != nil).
		Msg("starting import")

	games, recovered, err := fetcher.Fetch(ctx, username, since, limit)
	if err != nil {
		return report, fmt.Errorf("fetch failed: %w", err)
	}
	report.TotalFetched = len(games)
	report.Errors = append(report.Errors, recovered...)

	var latestTS time.Time
	var latestID string

	for _, g := range games {
		exists, err := i.games.Exists(ctx, g.Platform, g.ExternalID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("dedup check %s: %v", g.ExternalID, err))
			continue
		}
		if exists {
			i.logger.Debug().Str("external_id", g.ExternalID).Msg("skipping already imported game")
			continue
		}

		score := i.strategy.Score(g)

		player := &domain.Player{
			Hash:     g.PlayerHash,
			Username: g.Username,
			Platform: g.Platform,
			Elo:      g.PlayerElo,
		}
		game := &domain.Game{
			PlayerHash:  g.PlayerHash,
			Platform:    g.Platform,
			ExternalID:  g.ExternalID,
			PlayedAt:    g.PlayedAt,
			Result:      g.Result,
			PGN:         g.PGN,
			TimeControl: g.TimeControl,
			Opening:     g.Opening,
		}

		if err := i.games.SaveScored(ctx, player, game, &score); err != nil {
			if errors.Is(err, domain.ErrDuplicateGame) {
				// Lost a race with a concurrent import; the unique
				// constraint is the safety mechanism here.
				i.logger.Debug().Str("external_id", g.ExternalID).Msg("duplicate insert ignored")
				continue
			}
			report.Errors = append(report.Errors, fmt.Sprintf("persist %s: %v", g.ExternalID, err))
			continue
		}

		report.Imported++
		if g.PlayedAt.After(latestTS) {
			latestTS = g.PlayedAt
			latestID = g.ExternalID
		}
	}

	if report.Imported > 0 {
		if err := i.cursors.Advance(ctx, platform, username, latestTS, latestID, report.Imported); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("advance cursor: %v", err))
		}
	}

	i.logger.Info().
		Str("platform", string(platform)).
		Str("username", username).
		Int("imported", report.Imported).
		Int("fetched", report.TotalFetched).
		Int("errors", len(report.Errors)).
		Msg("import finished")

	return report, nil
}

// ImportBatch runs targets sequentially with an inter-target delay. One
// target's failure is recorded on its report entry and never stops the rest.
func (i *Importer) ImportBatch(ctx context.Context, targets []Target) []Report {
	reports := make([]Report, 0, len(targets))
	for idx, t := range targets {
		report, err := i.ImportOne(ctx, t.Platform, t.Username, t.Limit)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
		reports = append(reports, report)

		if idx < len(targets)-1 {
			select {
			case <-ctx.Done():
				return reports
			case <-time.After(i.interTargetDelay):
			}
		}
	}
	return reports
}

// ImportBatchConcurrent is the opt-in worker-pool variant. The per-platform
// rate limiters still serialize outbound requests, but target completion
// order and cursor-advance timing differ from the sequential default.
func (i *Importer) ImportBatchConcurrent(ctx context.Context, targets []Target, workers int) []Report {
	if workers < 1 {
		workers = 1
	}
	reports := make([]Report, len(targets))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for idx, t := range targets {
		g.Go(func() error {
			report, err := i.ImportOne(gCtx, t.Platform, t.Username, t.Limit)
			if err != nil {
				report.Errors = append(report.Errors, err.Error())
			}
			reports[idx] = report
			return nil
		})
	}
	_ = g.Wait()

	return reports
}
