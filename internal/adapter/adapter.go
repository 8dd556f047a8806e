// Package adapter fetches raw platform records and normalizes them into
// ProcessedGame values ready for scoring and persistence.
package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chesswatch/internal/domain"
)

// Adapter is one platform's fetch-and-normalize implementation. Fetch
// returns up to limit games, most recent first, bounded below by since when
// non-nil. The string slice carries messages for failures that were
// recovered locally (a skipped page, a malformed record); the error return
// is reserved for total failure where nothing could be fetched. Each call
// re-walks from the top; a fetch is not restartable mid-stream.
type Adapter interface {
	Platform() domain.Platform
	Fetch(ctx context.Context, username string, since *time.Time, limit int) ([]domain.ProcessedGame, []string, error)
}

// normalizeClock renders base seconds + increment in the canonical
// "600+5" form shared by both adapters.
func normalizeClock(baseSec, incSec int) string {
	return fmt.Sprintf("%d+%d", baseSec, incSec)
}

// pgnTag scans PGN header tags for a key. Chess.com embeds opening
// metadata only in headers, so a full movetext parse is not needed here.
func pgnTag(pgn, key string) string {
	prefix := "[" + key + " \""
	for _, line := range strings.Split(pgn, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		rest := line[len(prefix):]
		if end := strings.Index(rest, "\""); end >= 0 {
			return rest[:end]
		}
	}
	return ""
}
