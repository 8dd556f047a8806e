package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

type Platform string

const (
	PlatformChessCom Platform = "chess_com"
	PlatformLichess  Platform = "lichess"
)

func (p Platform) Valid() bool {
	return p == PlatformChessCom || p == PlatformLichess
}

type Result string

const (
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
	ResultDraw Result = "draw"
)

// PlayerHash is the stable identity for a (platform, username) pair.
// Usernames are case-insensitive on both platforms.
func PlayerHash(platform Platform, username string) string {
	key := strings.ToLower(string(platform)) + "_" + strings.ToLower(username)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

type Player struct {
	Hash      string
	Username  string
	Platform  Platform
	Elo       int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Game struct {
	ID          string // nanoid
	PlayerHash  string
	Platform    Platform
	ExternalID  string
	PlayedAt    time.Time
	Result      Result
	PGN         string
	TimeControl string
	Opening     string // empty when the platform reported none
	CreatedAt   time.Time
}

type Score struct {
	ID              string // nanoid
	GameID          string
	EngineMatchPct  float64
	DeltaCP         float64
	RunPerfectCount int
	MLProb          float64 // [0,1]
	SuspicionLevel  int     // [0,100]
	CreatedAt       time.Time
}

// ProcessedGame is the platform-agnostic record an adapter emits,
// ready for scoring and persistence.
type ProcessedGame struct {
	PlayerHash  string
	Username    string
	Platform    Platform
	ExternalID  string
	PlayedAt    time.Time
	Result      Result
	PGN         string
	TimeControl string
	Opening     string
	PlayerElo   int
	OpponentElo int
}

type SyncCursor struct {
	Platform       Platform
	Username       string
	LastTimestamp  time.Time
	LastExternalID string
	TotalImported  int
	UpdatedAt      time.Time
}
