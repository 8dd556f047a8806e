package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chesswatch/internal/api"
	"chesswatch/internal/domain"

	"github.com/rs/zerolog"
)

// Lichess issues a single export request; the server filters by `since` and
// caps at `max`, returning one game per ND-JSON line. Each line is parsed
// independently so one malformed line cannot abort the batch.
type Lichess struct {
	client *api.LichessClient
	logger zerolog.Logger
}

func NewLichess(client *api.LichessClient, logger zerolog.Logger) *Lichess {
	return &Lichess{client: client, logger: logger}
}

func (a *Lichess) Platform() domain.Platform {
	return domain.PlatformLichess
}

func (a *Lichess) Fetch(ctx context.Context, username string, since *time.Time, limit int) ([]domain.ProcessedGame, []string, error) {
	lines, err := a.client.ExportGames(ctx, username, since, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to export games: %w", err)
	}

	var games []domain.ProcessedGame
	var recovered []string

	for i, line := range lines {
		if len(games) >= limit {
			break
		}
		g, err := a.normalize(line, username)
		if err != nil {
			recovered = append(recovered, fmt.Sprintf("parse line %d: %v", i, err))
			continue
		}
		// The server already filters by since, but an inclusive boundary
		// match would re-import the cursor game.
		if since != nil && !g.PlayedAt.After(*since) {
			continue
		}
		games = append(games, *g)
	}

	return games, recovered, nil
}

func (a *Lichess) normalize(line []byte, username string) (*domain.ProcessedGame, error) {
	var rec api.LichessGame
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, err
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("record has no id")
	}

	var me, opponent api.LichessSide
	var color string
	switch {
	case strings.EqualFold(rec.Players.White.User.Name, username):
		me, opponent, color = rec.Players.White, rec.Players.Black, "white"
	case strings.EqualFold(rec.Players.Black.User.Name, username):
		me, opponent, color = rec.Players.Black, rec.Players.White, "black"
	default:
		return nil, fmt.Errorf("player %s not found in record", username)
	}

	var result domain.Result
	switch rec.Winner {
	case color:
		result = domain.ResultWin
	case "":
		result = domain.ResultDraw
	default:
		result = domain.ResultLoss
	}

	pgn := rec.PGN
	if pgn == "" {
		pgn = buildPGN(&rec, result, color)
	}

	return &domain.ProcessedGame{
		PlayerHash:  domain.PlayerHash(domain.PlatformLichess, username),
		Username:    username,
		Platform:    domain.PlatformLichess,
		ExternalID:  rec.ID,
		PlayedAt:    time.UnixMilli(rec.CreatedAt).UTC(),
		Result:      result,
		PGN:         pgn,
		TimeControl: normalizeLichessClock(&rec),
		Opening:     rec.Opening.Name,
		PlayerElo:   me.Rating,
		OpponentElo: opponent.Rating,
	}, nil
}

// normalizeLichessClock maps Lichess clocks to the canonical short form.
// Correspondence and unlimited games have no real-time clock and map to
// named buckets.
func normalizeLichessClock(rec *api.LichessGame) string {
	if rec.Clock.Initial > 0 {
		return normalizeClock(rec.Clock.Initial, rec.Clock.Increment)
	}
	if rec.Speed == "correspondence" {
		return "correspondence"
	}
	return "unlimited"
}

// buildPGN reconstructs a minimal PGN when the export omitted one.
func buildPGN(rec *api.LichessGame, result domain.Result, color string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[Site \"https://lichess.org/%s\"]\n", rec.ID))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", rec.Players.White.User.Name))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", rec.Players.Black.User.Name))
	if rec.Opening.Name != "" {
		b.WriteString(fmt.Sprintf("[Opening \"%s\"]\n", rec.Opening.Name))
	}

	token := "1/2-1/2"
	switch {
	case result == domain.ResultWin && color == "white", result == domain.ResultLoss && color == "black":
		token = "1-0"
	case result == domain.ResultWin && color == "black", result == domain.ResultLoss && color == "white":
		token = "0-1"
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", token))

	if rec.Moves != "" {
		b.WriteString(rec.Moves)
		b.WriteString(" ")
	}
	b.WriteString(token)
	b.WriteString("\n")
	return b.String()
}
