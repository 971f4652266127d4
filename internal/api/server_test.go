package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
	"tradesim/internal/monitor"
	"tradesim/internal/observability"
	"tradesim/internal/pricing"
	"tradesim/internal/session"
	"tradesim/internal/storage/memory"
	"tradesim/internal/strategy"
)

func newTestServer(t *testing.T, script map[string][]float64, result *strategy.Result) *httptest.Server {
	t.Helper()

	controller := session.NewController(session.Options{
		Provider:   &strategy.StubProvider{Result: result},
		Prices:     pricing.NewScriptedSource(script),
		Balances:   memory.NewBalanceStore(map[domain.AccountMode]decimal.Decimal{domain.AccountDemo: decimal.NewFromInt(1000)}),
		Statistics: memory.NewStatisticsStore(),
		TradeLog:   memory.NewTradeLogStore(),
		Monitor: monitor.Config{
			TickInterval: 5 * time.Millisecond,
			Draw:         func() float64 { return 0.1 },
		},
	})

	server := httptest.NewServer(NewServer(controller, nil, nil).Router())
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeSnapshot(t *testing.T, resp *http.Response) session.Snapshot {
	t.Helper()
	defer resp.Body.Close()
	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, nil, &strategy.Result{})

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status: got %d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	controller := session.NewController(session.Options{
		Provider:   &strategy.StubProvider{Result: &strategy.Result{}},
		Prices:     pricing.NewScriptedSource(nil),
		Balances:   memory.NewBalanceStore(map[domain.AccountMode]decimal.Decimal{domain.AccountDemo: decimal.NewFromInt(1000)}),
		Statistics: memory.NewStatisticsStore(),
		TradeLog:   memory.NewTradeLogStore(),
	})
	metrics := observability.NewMetrics("tradesim_api_test")

	server := httptest.NewServer(NewServer(controller, metrics, nil).Router())
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status: got %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "tradesim_api_test_session_started_total") {
		t.Error("Expected session counter in scrape output")
	}
}

func TestInstruments(t *testing.T) {
	server := newTestServer(t, nil, &strategy.Result{})

	resp, err := http.Get(server.URL + "/instruments")
	if err != nil {
		t.Fatalf("GET /instruments: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Instruments []domain.Instrument `json:"instruments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Instruments) == 0 {
		t.Fatal("Expected a non-empty instrument catalog")
	}
}

func TestStartSession_Lifecycle(t *testing.T) {
	server := newTestServer(t, map[string][]float64{"R_50": {100}}, &strategy.Result{
		Proposals: []domain.TradeProposal{{
			Instrument:      "R_50",
			Direction:       domain.DirectionCall,
			Stake:           decimal.NewFromInt(10),
			DurationSeconds: 3600,
		}},
		Reasoning: "steady volatility",
	})

	resp := postJSON(t, server.URL+"/sessions", map[string]interface{}{
		"budget":      "100",
		"risk_mode":   "balanced",
		"instruments": []string{"R_50"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Status: got %d, want 201", resp.StatusCode)
	}
	snap := decodeSnapshot(t, resp)
	if snap.SessionID == "" {
		t.Fatal("Missing session_id")
	}
	if len(snap.Trades) != 1 || snap.Trades[0].Status != domain.StatusActive {
		t.Fatalf("Trades: %+v", snap.Trades)
	}

	getResp, err := http.Get(server.URL + "/sessions/" + snap.SessionID)
	if err != nil {
		t.Fatalf("GET session: %v", err)
	}
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("GET status: got %d, want 200", getResp.StatusCode)
	}
	_ = decodeSnapshot(t, getResp)

	stopResp := postJSON(t, server.URL+"/sessions/"+snap.SessionID+"/stop", map[string]interface{}{})
	if stopResp.StatusCode != http.StatusOK {
		t.Fatalf("Stop status: got %d, want 200", stopResp.StatusCode)
	}
	stopped := decodeSnapshot(t, stopResp)
	if stopped.Trades[0].Status != domain.StatusLostDuration {
		t.Errorf("Stopped trade status: %s", stopped.Trades[0].Status)
	}
}

func TestStartSession_BadRequests(t *testing.T) {
	server := newTestServer(t, nil, &strategy.Result{})

	resp := postJSON(t, server.URL+"/sessions", map[string]interface{}{"budget": "abc"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Malformed budget: got %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, server.URL+"/sessions", map[string]interface{}{"budget": "-1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Negative budget: got %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, server.URL+"/sessions", map[string]interface{}{"budget": "100", "risk_mode": "yolo"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Unknown risk mode: got %d, want 400", resp.StatusCode)
	}
}

func TestSessionNotFound(t *testing.T) {
	server := newTestServer(t, nil, &strategy.Result{})

	resp, err := http.Get(server.URL + "/sessions/does-not-exist")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET unknown: got %d, want 404", resp.StatusCode)
	}

	resp = postJSON(t, server.URL+"/sessions/does-not-exist/stop", map[string]interface{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Stop unknown: got %d, want 404", resp.StatusCode)
	}
}

func TestSessionEvents_SSE(t *testing.T) {
	// Entry 100, stop 95, drop to 94: one finalization then completion.
	server := newTestServer(t, map[string][]float64{"R_50": {100, 100, 100, 100, 94}}, &strategy.Result{
		Proposals: []domain.TradeProposal{{
			Instrument:      "R_50",
			Direction:       domain.DirectionCall,
			Stake:           decimal.NewFromInt(10),
			DurationSeconds: 3600,
		}},
	})

	resp := postJSON(t, server.URL+"/sessions", map[string]interface{}{
		"budget":      "100",
		"instruments": []string{"R_50"},
	})
	snap := decodeSnapshot(t, resp)

	streamResp, err := http.Get(server.URL + "/sessions/" + snap.SessionID + "/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer streamResp.Body.Close()
	if ct := streamResp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type: %s", ct)
	}

	var sawFinalized, sawComplete bool
	scanner := bufio.NewScanner(streamResp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			switch strings.TrimPrefix(line, "event: ") {
			case string(session.EventTradeFinalized):
				sawFinalized = true
			case string(session.EventSessionComplete):
				sawComplete = true
			}
		}
	}
	if !sawFinalized {
		t.Error("No trade_finalized event on the stream")
	}
	if !sawComplete {
		t.Error("No session_complete event on the stream")
	}
}
