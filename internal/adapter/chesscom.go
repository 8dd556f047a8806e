package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chesswatch/internal/api"
	"chesswatch/internal/domain"

	"github.com/corentings/chess/v2"
	"github.com/rs/zerolog"
)

// ChessCom walks the monthly archive listing newest page first, stopping once
// limit is reached or a record is not newer than the sync cursor. A failed
// archive page is skipped and recorded; it never aborts the run.
type ChessCom struct {
	client *api.ChessComClient
	logger zerolog.Logger
}

func NewChessCom(client *api.ChessComClient, logger zerolog.Logger) *ChessCom {
	return &ChessCom{client: client, logger: logger}
}

func (a *ChessCom) Platform() domain.Platform {
	return domain.PlatformChessCom
}

func (a *ChessCom) Fetch(ctx context.Context, username string, since *time.Time, limit int) ([]domain.ProcessedGame, []string, error) {
	archives, err := a.client.GetArchives(ctx, username)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch archive index: %w", err)
	}

	var games []domain.ProcessedGame
	var recovered []string

	// The index lists months oldest first; walk it backwards.
	for i := len(archives.Archives) - 1; i >= 0 && len(games) < limit; i-- {
		archiveURL := archives.Archives[i]

		page, err := a.client.GetArchiveGames(ctx, archiveURL)
		if err != nil {
			a.logger.Warn().Err(err).Str("archive", archiveURL).Msg("skipping archive page")
			recovered = append(recovered, fmt.Sprintf("fetch %s: %v", archiveURL, err))
			continue
		}

		// Records within a page are chronological, oldest first.
		reachedCursor := false
		for j := len(page.Games) - 1; j >= 0 && len(games) < limit; j-- {
			g, err := a.normalize(page.Games[j], username)
			if err != nil {
				recovered = append(recovered, fmt.Sprintf("parse record in %s: %v", archiveURL, err))
				continue
			}
			if since != nil && !g.PlayedAt.After(*since) {
				reachedCursor = true
				break
			}
			games = append(games, *g)
		}
		if reachedCursor {
			break
		}
	}

	return games, recovered, nil
}

func (a *ChessCom) normalize(raw json.RawMessage, username string) (*domain.ProcessedGame, error) {
	var rec api.ArchiveGame
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	if rec.PGN == "" {
		return nil, fmt.Errorf("record has no pgn")
	}
	if _, err := chess.PGN(strings.NewReader(rec.PGN)); err != nil {
		return nil, fmt.Errorf("invalid pgn: %w", err)
	}

	externalID := rec.UUID
	if externalID == "" {
		parts := strings.Split(strings.TrimRight(rec.URL, "/"), "/")
		externalID = parts[len(parts)-1]
	}
	if externalID == "" {
		return nil, fmt.Errorf("record has no id")
	}

	var me, opponent api.ArchiveSide
	switch {
	case strings.EqualFold(rec.White.Username, username):
		me, opponent = rec.White, rec.Black
	case strings.EqualFold(rec.Black.Username, username):
		me, opponent = rec.Black, rec.White
	default:
		return nil, fmt.Errorf("player %s not found in record", username)
	}

	return &domain.ProcessedGame{
		PlayerHash:  domain.PlayerHash(domain.PlatformChessCom, username),
		Username:    username,
		Platform:    domain.PlatformChessCom,
		ExternalID:  externalID,
		PlayedAt:    time.Unix(rec.EndTime, 0).UTC(),
		Result:      classifyResult(me.Result),
		PGN:         rec.PGN,
		TimeControl: normalizeChessComClock(rec.TimeControl, rec.TimeClass),
		Opening:     extractOpening(rec.PGN),
		PlayerElo:   me.Rating,
		OpponentElo: opponent.Rating,
	}, nil
}

var drawResults = map[string]struct{}{
	"agreed":             {},
	"repetition":         {},
	"stalemate":          {},
	"insufficient":       {},
	"50move":             {},
	"timevsinsufficient": {},
}

func classifyResult(sideResult string) domain.Result {
	if sideResult == "win" {
		return domain.ResultWin
	}
	if _, ok := drawResults[sideResult]; ok {
		return domain.ResultDraw
	}
	return domain.ResultLoss
}

// normalizeChessComClock maps Chess.com time controls to the canonical
// short form. Live controls come as "600" or "600+5"; daily games use a
// "1/86400" move quota and map to a named bucket instead.
func normalizeChessComClock(tc, timeClass string) string {
	if strings.Contains(tc, "/") || timeClass == "daily" {
		return "daily"
	}
	if strings.Contains(tc, "+") {
		return tc
	}
	var base int
	if _, err := fmt.Sscanf(tc, "%d", &base); err != nil {
		return tc
	}
	return normalizeClock(base, 0)
}

// extractOpening pulls the opening name from PGN headers. Chess.com games
// carry an ECOUrl tag ("...openings/Sicilian-Defense-Open") rather than a
// plain Opening tag, so fall back to its last path segment.
func extractOpening(pgn string) string {
	if name := pgnTag(pgn, "Opening"); name != "" {
		return name
	}
	ecoURL := pgnTag(pgn, "ECOUrl")
	if ecoURL == "" {
		return ""
	}
	parts := strings.Split(strings.TrimRight(ecoURL, "/"), "/")
	return strings.ReplaceAll(parts[len(parts)-1], "-", " ")
}
