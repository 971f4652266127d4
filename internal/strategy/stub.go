package strategy

import (
	"context"

	"tradesim/internal/domain"
)

// StubProvider returns a fixed result or error for testing.
type StubProvider struct {
	Result *Result
	Err    error
}

// Generate returns a copy of the configured result, or the configured error.
func (s *StubProvider) Generate(_ context.Context, _ Request) (*Result, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Result == nil {
		return &Result{}, nil
	}

	out := Result{Reasoning: s.Result.Reasoning}
	out.Proposals = make([]domain.TradeProposal, len(s.Result.Proposals))
	copy(out.Proposals, s.Result.Proposals)
	return &out, nil
}

var _ Provider = (*StubProvider)(nil)
