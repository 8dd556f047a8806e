// Package scorer produces suspicion scores for imported games.
package scorer

import (
	"math/rand"
	"sync"
	"time"

	"chesswatch/internal/domain"
)

// Strategy is the pluggable scoring step. The default heuristic below is a
// stand-in for real engine analysis: callers can swap in a deterministic
// stub for tests or an engine-backed implementation later without touching
// the import pipeline.
type Strategy interface {
	Score(game domain.ProcessedGame) domain.Score
}

// Heuristic estimates computer-assistance likelihood from rating and a
// simulated accuracy figure. It is explicitly not engine analysis.
type Heuristic struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewHeuristic builds the default production scorer.
func NewHeuristic() *Heuristic {
	return NewHeuristicWithSource(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewHeuristicWithSource accepts a seeded source for reproducible output.
func NewHeuristicWithSource(rng *rand.Rand) *Heuristic {
	return &Heuristic{rng: rng}
}

func (h *Heuristic) Score(game domain.ProcessedGame) domain.Score {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Base accuracy scaled by an Elo-derived factor: stronger players
	// legitimately match engine lines more often.
	eloFactor := float64(game.PlayerElo) / 3000.0
	if eloFactor > 1 {
		eloFactor = 1
	}
	matchPct := (62 + h.rng.Float64()*36) * (0.7 + 0.3*eloFactor)
	if matchPct > 100 {
		matchPct = 100
	}

	suspicion := 0
	if matchPct > 90 {
		suspicion += 25
	}
	if matchPct > 95 {
		suspicion += 25
	}
	if game.PlayerElo >= 2500 && matchPct >= 92 {
		suspicion += 20
	}
	suspicion += h.rng.Intn(15)
	suspicion = clamp(suspicion, 0, 100)

	deltaCP := 8 + h.rng.Float64()*45*(1.1-eloFactor)
	runPerfect := h.rng.Intn(12)
	if matchPct > 93 {
		runPerfect += 6
	}

	return domain.Score{
		EngineMatchPct:  matchPct,
		DeltaCP:         deltaCP,
		RunPerfectCount: runPerfect,
		MLProb:          float64(suspicion) / 100.0,
		SuspicionLevel:  suspicion,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
