package constants

import "time"

const (
	// Chess.com's public API documents roughly one request per second
	// for serial clients; 1.1s keeps us under it with margin.
	ChessComRequestInterval = 1100 * time.Millisecond

	// Lichess tolerates a much higher request rate. Its documented
	// per-minute data-volume ceiling is intentionally not enforced here.
	LichessRequestInterval = 100 * time.Millisecond

	InterTargetDelay = 2 * time.Second
)

const (
	ExternalAPITimeout = 15 * time.Second
	DatabaseTimeout    = 5 * time.Second
	ImportTimeout      = 5 * time.Minute
)

const (
	FetchRetryAttempts = 3
	FetchRetryBackoff  = 500 * time.Millisecond
)

const (
	MinImportLimit = 1
	MaxImportLimit = 100
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	JobQueueSize = 64
	JobWorkers   = 2
)
