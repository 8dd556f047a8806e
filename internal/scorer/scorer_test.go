package scorer

import (
	"math/rand"
	"testing"

	"chesswatch/internal/domain"
)

func testGame(elo int) domain.ProcessedGame {
	return domain.ProcessedGame{
		Platform:   domain.PlatformChessCom,
		Username:   "hikaru",
		ExternalID: "g1",
		PlayerElo:  elo,
	}
}

func TestSuspicionLevelStaysInRange(t *testing.T) {
	h := NewHeuristicWithSource(rand.New(rand.NewSource(7)))

	for i := 0; i < 500; i++ {
		for _, elo := range []int{400, 1500, 2500, 3200} {
			s := h.Score(testGame(elo))
			if s.SuspicionLevel < 0 || s.SuspicionLevel > 100 {
				t.Fatalf("suspicion level out of range: %d (elo %d)", s.SuspicionLevel, elo)
			}
			if s.MLProb < 0 || s.MLProb > 1 {
				t.Fatalf("ml prob out of range: %f", s.MLProb)
			}
			if s.EngineMatchPct < 0 || s.EngineMatchPct > 100 {
				t.Fatalf("engine match pct out of range: %f", s.EngineMatchPct)
			}
		}
	}
}

func TestSeededSourceIsDeterministic(t *testing.T) {
	a := NewHeuristicWithSource(rand.New(rand.NewSource(42)))
	b := NewHeuristicWithSource(rand.New(rand.NewSource(42)))

	for i := 0; i < 50; i++ {
		sa := a.Score(testGame(2000))
		sb := b.Score(testGame(2000))
		if sa != sb {
			t.Fatalf("same seed produced different scores at step %d: %+v vs %+v", i, sa, sb)
		}
	}
}

func TestHighAccuracyRaisesSuspicion(t *testing.T) {
	h := NewHeuristicWithSource(rand.New(rand.NewSource(3)))

	var maxPct float64
	maxSuspicion := 0
	for i := 0; i < 500; i++ {
		s := h.Score(testGame(3200))
		if s.EngineMatchPct > maxPct {
			maxPct = s.EngineMatchPct
		}
		if s.SuspicionLevel > maxSuspicion {
			maxSuspicion = s.SuspicionLevel
		}
	}
	if maxPct <= 95 {
		t.Fatalf("expected a strong player to reach match pct above 95, got max %f", maxPct)
	}
	// 95+ accuracy at high elo stacks all three bonuses on top of the noise.
	if maxSuspicion < 70 {
		t.Fatalf("expected suspicion bonuses to fire for a strong player, got max %d", maxSuspicion)
	}
}

func TestLowEloStaysBelowBonusThresholds(t *testing.T) {
	h := NewHeuristicWithSource(rand.New(rand.NewSource(3)))

	for i := 0; i < 500; i++ {
		s := h.Score(testGame(600))
		if s.EngineMatchPct > 90 {
			t.Fatalf("weak player should not reach match pct %f", s.EngineMatchPct)
		}
		if s.SuspicionLevel > 14 {
			t.Fatalf("weak player should only carry noise suspicion, got %d", s.SuspicionLevel)
		}
	}
}

func TestHighEloRaisesMatchPct(t *testing.T) {
	low := NewHeuristicWithSource(rand.New(rand.NewSource(1)))
	high := NewHeuristicWithSource(rand.New(rand.NewSource(1)))

	var lowSum, highSum float64
	for i := 0; i < 200; i++ {
		lowSum += low.Score(testGame(600)).EngineMatchPct
		highSum += high.Score(testGame(2900)).EngineMatchPct
	}
	if highSum <= lowSum {
		t.Fatalf("expected higher elo to average a higher match pct: %f vs %f", highSum/200, lowSum/200)
	}
}
