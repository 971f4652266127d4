package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesim/internal/domain"
)

// DefaultGenerateTimeout bounds a single strategy-service call.
const DefaultGenerateTimeout = 30 * time.Second

// generateRequest is the wire request for the strategy service.
type generateRequest struct {
	TotalStake  string                        `json:"total_stake"`
	Instruments []string                      `json:"instruments"`
	RiskMode    string                        `json:"risk_mode"`
	RecentTicks map[string][]domain.PriceTick `json:"recent_ticks"`
}

// wireProposal is one proposed trade as returned by the service.
type wireProposal struct {
	Instrument      string  `json:"instrument"`
	Direction       string  `json:"direction"`
	Stake           float64 `json:"stake"`
	DurationSeconds int     `json:"duration_seconds"`
	Rationale       string  `json:"rationale"`
}

// generateResponse is the wire response from the strategy service.
type generateResponse struct {
	TradesToExecute  []wireProposal `json:"trades_to_execute"`
	OverallReasoning string         `json:"overall_reasoning"`
}

// HTTPProvider calls an LLM-backed strategy service over HTTP. The
// service response is model output, so it is run through JSON repair
// before unmarshalling: models routinely emit trailing commas, fences,
// or truncated objects.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// HTTPProviderOption configures an HTTPProvider.
type HTTPProviderOption func(*HTTPProvider)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.client.Timeout = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.client = client
	}
}

// WithLogger sets the provider logger.
func WithLogger(logger *zap.Logger) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.logger = logger
	}
}

// NewHTTPProvider creates a strategy-service client.
func NewHTTPProvider(endpoint string, opts ...HTTPProviderOption) *HTTPProvider {
	p := &HTTPProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultGenerateTimeout},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate requests a strategy from the service. Any transport, decode,
// or validation failure wraps ErrGeneration.
func (p *HTTPProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(generateRequest{
		TotalStake:  req.TotalStake.String(),
		Instruments: req.Instruments,
		RiskMode:    string(req.RiskMode),
		RecentTicks: req.RecentTicks,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrGeneration, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrGeneration, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGeneration, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: service returned status %d", ErrGeneration, resp.StatusCode)
	}

	repaired, err := jsonrepair.JSONRepair(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: repair response json: %v", ErrGeneration, err)
	}

	var wire generateResponse
	if err := json.Unmarshal([]byte(repaired), &wire); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGeneration, err)
	}

	result := &Result{Reasoning: wire.OverallReasoning}
	for _, wp := range wire.TradesToExecute {
		proposal := domain.TradeProposal{
			Instrument:      wp.Instrument,
			Direction:       domain.Direction(wp.Direction),
			Stake:           decimal.NewFromFloat(wp.Stake),
			DurationSeconds: wp.DurationSeconds,
			Rationale:       wp.Rationale,
		}
		if err := proposal.Validate(); err != nil {
			p.logger.Warn("dropping malformed proposal from strategy service",
				zap.String("instrument", wp.Instrument),
				zap.Error(err))
			continue
		}
		if !domain.ValidInstrument(proposal.Instrument) {
			p.logger.Warn("dropping proposal for unknown instrument",
				zap.String("instrument", wp.Instrument))
			continue
		}
		result.Proposals = append(result.Proposals, proposal)
	}

	p.logger.Info("strategy generated",
		zap.Int("proposals", len(result.Proposals)),
		zap.Int("dropped", len(wire.TradesToExecute)-len(result.Proposals)))

	return result, nil
}

var _ Provider = (*HTTPProvider)(nil)
