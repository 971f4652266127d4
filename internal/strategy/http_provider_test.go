package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

func testRequest() Request {
	return Request{
		TotalStake:  decimal.NewFromInt(100),
		Instruments: []string{"R_50", "frxEURUSD"},
		RiskMode:    domain.RiskBalanced,
		RecentTicks: map[string][]domain.PriceTick{
			"R_50": {{Epoch: 1700000000, Price: 100.2}},
		},
	}
}

func TestHTTPProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.RiskMode != "balanced" {
			t.Errorf("expected risk_mode balanced, got %s", req.RiskMode)
		}
		if req.TotalStake != "100" {
			t.Errorf("expected total_stake 100, got %s", req.TotalStake)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"trades_to_execute": [
				{"instrument": "R_50", "direction": "CALL", "stake": 40, "duration_seconds": 60, "rationale": "momentum"},
				{"instrument": "frxEURUSD", "direction": "PUT", "stake": 30, "duration_seconds": 120, "rationale": "reversion"}
			],
			"overall_reasoning": "mixed regime"
		}`))
	}))
	defer server.Close()

	p := NewHTTPProvider(server.URL)
	result, err := p.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(result.Proposals) != 2 {
		t.Fatalf("Expected 2 proposals, got %d", len(result.Proposals))
	}
	if result.Reasoning != "mixed regime" {
		t.Errorf("Reasoning: got %q", result.Reasoning)
	}
	first := result.Proposals[0]
	if first.Direction != domain.DirectionCall || !first.Stake.Equal(decimal.NewFromInt(40)) {
		t.Errorf("First proposal mismatch: %+v", first)
	}
}

func TestHTTPProvider_RepairsModelJSON(t *testing.T) {
	// Trailing comma and a markdown fence, as LLMs like to produce.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("```json\n" + `{
			"trades_to_execute": [
				{"instrument": "R_50", "direction": "CALL", "stake": 10, "duration_seconds": 60,},
			],
			"overall_reasoning": "single signal",
		}` + "\n```"))
	}))
	defer server.Close()

	p := NewHTTPProvider(server.URL)
	result, err := p.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate failed on repairable JSON: %v", err)
	}
	if len(result.Proposals) != 1 {
		t.Fatalf("Expected 1 proposal, got %d", len(result.Proposals))
	}
}

func TestHTTPProvider_DropsMalformedProposals(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"trades_to_execute": [
				{"instrument": "R_50", "direction": "CALL", "stake": 10, "duration_seconds": 60},
				{"instrument": "R_50", "direction": "SIDEWAYS", "stake": 10, "duration_seconds": 60},
				{"instrument": "R_50", "direction": "PUT", "stake": -3, "duration_seconds": 60},
				{"instrument": "NOT_LISTED", "direction": "PUT", "stake": 5, "duration_seconds": 60}
			],
			"overall_reasoning": "noisy output"
		}`))
	}))
	defer server.Close()

	p := NewHTTPProvider(server.URL)
	result, err := p.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(result.Proposals) != 1 {
		t.Errorf("Expected only the valid proposal to survive, got %d", len(result.Proposals))
	}
}

func TestHTTPProvider_EmptyTradeListIsValid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"trades_to_execute": [], "overall_reasoning": "no edge right now"}`))
	}))
	defer server.Close()

	p := NewHTTPProvider(server.URL)
	result, err := p.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(result.Proposals) != 0 {
		t.Errorf("Expected no proposals, got %d", len(result.Proposals))
	}
	if result.Reasoning == "" {
		t.Error("Expected reasoning to survive an empty trade list")
	}
}

func TestHTTPProvider_ServerErrorWrapsGeneration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewHTTPProvider(server.URL)
	_, err := p.Generate(context.Background(), testRequest())
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("Expected ErrGeneration, got %v", err)
	}
}
