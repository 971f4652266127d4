package allocation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

func proposal(stake float64, duration int) domain.TradeProposal {
	return domain.TradeProposal{
		Instrument:      "R_50",
		Direction:       domain.DirectionCall,
		Stake:           decimal.NewFromFloat(stake),
		DurationSeconds: duration,
	}
}

func TestNormalize_UnderBudgetUnchanged(t *testing.T) {
	a := New(decimal.Zero)
	proposals := []domain.TradeProposal{proposal(30, 60), proposal(40, 120)}
	budget := decimal.NewFromInt(100)

	got, err := a.Normalize(proposals, budget)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("Expected 2 proposals, got %d", len(got))
	}
	for i, p := range got {
		if !p.Stake.Equal(proposals[i].Stake) {
			t.Errorf("Stake %d changed: got %s, want %s", i, p.Stake, proposals[i].Stake)
		}
	}
}

func TestNormalize_RejectsInvalidProposals(t *testing.T) {
	a := New(decimal.Zero)
	proposals := []domain.TradeProposal{
		proposal(10, 60),
		proposal(-5, 60),  // non-positive stake
		proposal(10, 0),   // non-positive duration
		proposal(10, -30), // negative duration
		{Instrument: "R_50", Direction: "SIDEWAYS", Stake: decimal.NewFromInt(10), DurationSeconds: 60},
	}

	got, err := a.Normalize(proposals, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 accepted proposal, got %d", len(got))
	}
	if !got[0].Stake.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Accepted stake changed: got %s", got[0].Stake)
	}
}

func TestNormalize_ScalesDownProportionally(t *testing.T) {
	// Scenario from the dashboard: budget=100, two proposals of 60 each.
	a := New(decimal.Zero)
	proposals := []domain.TradeProposal{proposal(60, 60), proposal(60, 60)}
	budget := decimal.NewFromInt(100)

	got, err := a.Normalize(proposals, budget)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 proposals, got %d", len(got))
	}

	want := decimal.NewFromInt(50)
	total := decimal.Zero
	for i, p := range got {
		if !p.Stake.Equal(want) {
			t.Errorf("Stake %d: got %s, want %s", i, p.Stake, want)
		}
		total = total.Add(p.Stake)
	}
	if total.GreaterThan(budget) {
		t.Errorf("Total %s exceeds budget %s", total, budget)
	}
}

func TestNormalize_RoundingKeepsSumUnderBudget(t *testing.T) {
	a := New(decimal.Zero)
	// Awkward ratios that produce repeating decimals when scaled.
	proposals := []domain.TradeProposal{proposal(33.33, 60), proposal(33.33, 60), proposal(33.35, 60)}
	budget := decimal.NewFromInt(70)

	got, err := a.Normalize(proposals, budget)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	total := decimal.Zero
	for _, p := range got {
		total = total.Add(p.Stake)
		// Every stake is on the granularity grid.
		if !p.Stake.Mod(DefaultGranularity).IsZero() {
			t.Errorf("Stake %s not on 0.01 grid", p.Stake)
		}
	}
	if total.GreaterThan(budget) {
		t.Errorf("Total %s exceeds budget %s after rounding", total, budget)
	}
}

func TestNormalize_TinyOriginalStakeDropped(t *testing.T) {
	a := New(decimal.Zero)
	proposals := []domain.TradeProposal{proposal(0.005, 60), proposal(100, 60)}
	budget := decimal.NewFromInt(50)

	got, err := a.Normalize(proposals, budget)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	// The sub-granularity proposal scales to zero and is dropped.
	if len(got) != 1 {
		t.Fatalf("Expected 1 proposal, got %d", len(got))
	}
	if got[0].Stake.GreaterThan(budget) {
		t.Errorf("Stake %s exceeds budget", got[0].Stake)
	}
}

func TestNormalize_ClampedStakeCanExceedBudget(t *testing.T) {
	// Many small-but-valid stakes each clamp up to granularity; the clamped
	// total can overflow a tiny budget, which must surface as an error.
	a := New(decimal.Zero)
	var proposals []domain.TradeProposal
	for i := 0; i < 5; i++ {
		proposals = append(proposals, proposal(10, 60))
	}
	budget := decimal.NewFromFloat(0.03)

	_, err := a.Normalize(proposals, budget)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("Expected ErrBudgetExceeded, got %v", err)
	}

	var allocErr *AllocationError
	if !errors.As(err, &allocErr) {
		t.Fatalf("Expected *AllocationError, got %T", err)
	}
	if !allocErr.Shortfall.IsPositive() {
		t.Errorf("Expected positive shortfall, got %s", allocErr.Shortfall)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	a := New(decimal.Zero)
	proposals := []domain.TradeProposal{proposal(17.77, 45), proposal(41.03, 90), proposal(8.2, 30)}
	budget := decimal.NewFromInt(25)

	first, err := a.Normalize(proposals, budget)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := a.Normalize(proposals, budget)
		if err != nil {
			t.Fatalf("Normalize failed on run %d: %v", i, err)
		}
		if len(again) != len(first) {
			t.Fatalf("Run %d: length %d, want %d", i, len(again), len(first))
		}
		for j := range again {
			if !again[j].Stake.Equal(first[j].Stake) {
				t.Errorf("Run %d stake %d: got %s, want %s", i, j, again[j].Stake, first[j].Stake)
			}
		}
	}
}

func TestNormalize_InputNotMutated(t *testing.T) {
	a := New(decimal.Zero)
	proposals := []domain.TradeProposal{proposal(60, 60), proposal(60, 60)}
	orig := proposals[0].Stake

	if _, err := a.Normalize(proposals, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if !proposals[0].Stake.Equal(orig) {
		t.Errorf("Input proposal mutated: got %s, want %s", proposals[0].Stake, orig)
	}
}
