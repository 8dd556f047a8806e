package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"chesswatch/internal/database"
	"chesswatch/internal/domain"
	"chesswatch/internal/repository"

	"github.com/rs/zerolog"
)

// stubFetcher replays a canned batch on every call, optionally with
// recovered per-record errors or a total failure.
type stubFetcher struct {
	platform  domain.Platform
	games     []domain.ProcessedGame
	recovered []string
	err       error
	calls     int
}

func (s *stubFetcher) Platform() domain.Platform { return s.platform }

func (s *stubFetcher) Fetch(ctx context.Context, username string, since *time.Time, limit int) ([]domain.ProcessedGame, []string, error) {
	s.calls++
	if s.err != nil {
		return nil, nil, s.err
	}
	out := s.games
	if len(out) > limit {
		out = out[:limit]
	}
	return out, s.recovered, nil
}

// fixedScorer removes randomness from pipeline tests.
type fixedScorer struct{}

func (fixedScorer) Score(domain.ProcessedGame) domain.Score {
	return domain.Score{
		EngineMatchPct:  91.0,
		DeltaCP:         14.0,
		RunPerfectCount: 5,
		MLProb:          0.4,
		SuspicionLevel:  40,
	}
}

func stubGames(platform domain.Platform, username string, n int, base time.Time) []domain.ProcessedGame {
	games := make([]domain.ProcessedGame, n)
	for i := 0; i < n; i++ {
		// most recent first
		games[i] = domain.ProcessedGame{
			PlayerHash:  domain.PlayerHash(platform, username),
			Username:    username,
			Platform:    platform,
			ExternalID:  fmt.Sprintf("game-%d", n-i),
			PlayedAt:    base.Add(-time.Duration(i) * time.Hour),
			Result:      domain.ResultWin,
			PGN:         "1. e4 1-0",
			TimeControl: "600+0",
			PlayerElo:   2700,
		}
	}
	return games
}

func newTestImporter(t *testing.T, fetchers ...Fetcher) (*Importer, *sql.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	games := repository.NewGameRepository(db, zerolog.Nop())
	cursors := repository.NewCursorRepository(db, zerolog.Nop())
	imp := newImporter(fetchers, fixedScorer{}, games, cursors, zerolog.Nop())
	imp.interTargetDelay = time.Millisecond
	return imp, db
}

func TestImportOneFullRun(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	stub := &stubFetcher{
		platform: domain.PlatformChessCom,
		games:    stubGames(domain.PlatformChessCom, "hikaru", 20, base),
	}
	imp, _ := newTestImporter(t, stub)

	report, err := imp.ImportOne(context.Background(), domain.PlatformChessCom, "hikaru", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Imported != 20 || report.TotalFetched != 20 {
		t.Fatalf("expected 20/20, got %d/%d", report.Imported, report.TotalFetched)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", report.Errors)
	}
}

func TestImportOneSecondRunIsFullyDeduped(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	stub := &stubFetcher{
		platform: domain.PlatformChessCom,
		games:    stubGames(domain.PlatformChessCom, "hikaru", 20, base),
	}
	imp, _ := newTestImporter(t, stub)
	ctx := context.Background()

	first, err := imp.ImportOne(ctx, domain.PlatformChessCom, "hikaru", 20)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Imported != 20 {
		t.Fatalf("first run imported %d", first.Imported)
	}

	second, err := imp.ImportOne(ctx, domain.PlatformChessCom, "hikaru", 20)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Imported != 0 {
		t.Fatalf("expected full dedup on second run, imported %d", second.Imported)
	}
	if second.TotalFetched != 20 {
		t.Fatalf("expected total_fetched 20 on second run, got %d", second.TotalFetched)
	}
	if len(second.Errors) != 0 {
		t.Fatalf("dedup skips are not errors, got %v", second.Errors)
	}
}

func TestImportOneRecordsRecoveredErrorsAndAdvancesCursor(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	stub := &stubFetcher{
		platform:  domain.PlatformLichess,
		games:     stubGames(domain.PlatformLichess, "someone", 5, base),
		recovered: []string{"parse line 3: unexpected end of JSON input"},
	}
	imp, db := newTestImporter(t, stub)

	report, err := imp.ImportOne(context.Background(), domain.PlatformLichess, "someone", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Imported != 5 {
		t.Fatalf("expected 5 imported, got %d", report.Imported)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("expected exactly 1 recorded error, got %v", report.Errors)
	}

	cursors := repository.NewCursorRepository(db, zerolog.Nop())
	c, err := cursors.Get(context.Background(), domain.PlatformLichess, "someone")
	if err != nil || c == nil {
		t.Fatalf("expected cursor, got %v / %v", c, err)
	}
	if !c.LastTimestamp.Equal(base) {
		t.Fatalf("cursor should sit at the latest valid game, got %v", c.LastTimestamp)
	}
	if c.TotalImported != 5 {
		t.Fatalf("expected total 5, got %d", c.TotalImported)
	}
}

func TestImportOneValidation(t *testing.T) {
	stub := &stubFetcher{platform: domain.PlatformChessCom}
	imp, _ := newTestImporter(t, stub)
	ctx := context.Background()

	if _, err := imp.ImportOne(ctx, "icq_chess", "hikaru", 10); !errors.Is(err, domain.ErrInvalidPlatform) {
		t.Fatalf("expected ErrInvalidPlatform, got %v", err)
	}
	if _, err := imp.ImportOne(ctx, domain.PlatformChessCom, "", 10); !errors.Is(err, domain.ErrEmptyUsername) {
		t.Fatalf("expected ErrEmptyUsername, got %v", err)
	}
	if _, err := imp.ImportOne(ctx, domain.PlatformChessCom, "hikaru", 0); !errors.Is(err, domain.ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit for 0, got %v", err)
	}
	if _, err := imp.ImportOne(ctx, domain.PlatformChessCom, "hikaru", 101); !errors.Is(err, domain.ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit for 101, got %v", err)
	}
	if stub.calls != 0 {
		t.Fatalf("validation failures must abort before any fetch, saw %d calls", stub.calls)
	}
}

func TestImportOneCreatesCursorOnFailedAttempt(t *testing.T) {
	stub := &stubFetcher{
		platform: domain.PlatformChessCom,
		err:      errors.New("connection refused"),
	}
	imp, db := newTestImporter(t, stub)

	if _, err := imp.ImportOne(context.Background(), domain.PlatformChessCom, "hikaru", 10); err == nil {
		t.Fatalf("expected total fetch failure to surface")
	}

	cursors := repository.NewCursorRepository(db, zerolog.Nop())
	c, err := cursors.Get(context.Background(), domain.PlatformChessCom, "hikaru")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if c == nil {
		t.Fatalf("cursor row must exist after the first attempt, even a failed one")
	}
	if c.TotalImported != 0 {
		t.Fatalf("nothing was imported, got total %d", c.TotalImported)
	}
}

func TestImportOneStablePlayerRowAcrossRuns(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	stub := &stubFetcher{
		platform: domain.PlatformChessCom,
		games:    stubGames(domain.PlatformChessCom, "Hikaru", 3, base),
	}
	imp, db := newTestImporter(t, stub)
	ctx := context.Background()

	if _, err := imp.ImportOne(ctx, domain.PlatformChessCom, "Hikaru", 10); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// newer games on the second run so something is actually written
	stub.games = stubGames(domain.PlatformChessCom, "Hikaru", 3, base.Add(48*time.Hour))
	for i := range stub.games {
		stub.games[i].ExternalID = "newer-" + stub.games[i].ExternalID
		stub.games[i].PlayerElo = 2750
	}
	if _, err := imp.ImportOne(ctx, domain.PlatformChessCom, "Hikaru", 10); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM players").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single player row across runs, got %d", count)
	}

	var elo int
	if err := db.QueryRow("SELECT elo FROM players").Scan(&elo); err != nil {
		t.Fatalf("elo query failed: %v", err)
	}
	if elo != 2750 {
		t.Fatalf("expected refreshed elo 2750, got %d", elo)
	}
}

func TestImportBatchContinuesPastFailingTarget(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	good := &stubFetcher{
		platform: domain.PlatformChessCom,
		games:    stubGames(domain.PlatformChessCom, "alpha", 3, base),
	}
	broken := &stubFetcher{
		platform: domain.PlatformLichess,
		err:      errors.New("upstream down"),
	}
	imp, _ := newTestImporter(t, good, broken)

	targets := []Target{
		{Platform: domain.PlatformChessCom, Username: "alpha", Limit: 10},
		{Platform: domain.PlatformLichess, Username: "beta", Limit: 10},
		{Platform: domain.PlatformChessCom, Username: "alpha", Limit: 10},
	}

	reports := imp.ImportBatch(context.Background(), targets)
	if len(reports) != 3 {
		t.Fatalf("expected 3 report entries, got %d", len(reports))
	}
	if reports[0].Imported != 3 {
		t.Fatalf("target 1 should import 3, got %d", reports[0].Imported)
	}
	if reports[1].Imported != 0 || len(reports[1].Errors) == 0 {
		t.Fatalf("target 2 should fail with a recorded error, got %+v", reports[1])
	}
	// target 3 repeats target 1 and must still have been processed
	if reports[2].TotalFetched != 3 || reports[2].Imported != 0 {
		t.Fatalf("target 3 should be fetched and fully deduped, got %+v", reports[2])
	}
}

func TestImportBatchConcurrentReturnsAllReports(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	stub := &stubFetcher{
		platform: domain.PlatformChessCom,
		games:    stubGames(domain.PlatformChessCom, "alpha", 2, base),
	}
	imp, _ := newTestImporter(t, stub)

	targets := []Target{
		{Platform: domain.PlatformChessCom, Username: "alpha", Limit: 10},
		{Platform: domain.PlatformChessCom, Username: "alpha", Limit: 10},
		{Platform: "nonsense", Username: "x", Limit: 10},
	}

	reports := imp.ImportBatchConcurrent(context.Background(), targets, 2)
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}
	if len(reports[2].Errors) == 0 {
		t.Fatalf("invalid target must carry its error, got %+v", reports[2])
	}
	total := reports[0].Imported + reports[1].Imported
	if total != 2 {
		t.Fatalf("the two racing targets should import each game exactly once, got %d", total)
	}
}
