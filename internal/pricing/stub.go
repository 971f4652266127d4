package pricing

import (
	"context"
	"sync"

	"tradesim/internal/domain"
)

// ScriptedSource replays a fixed price sequence per symbol for testing.
// Each LatestTicks call advances one step; when the script runs out the
// last price repeats. Symbols without a script return no data.
type ScriptedSource struct {
	mu     sync.Mutex
	script map[string][]float64
	pos    map[string]int
	epoch  int64

	// Err, when set, is returned by every call. Simulates feed outages.
	Err error
}

// NewScriptedSource creates a scripted source from per-symbol price sequences.
func NewScriptedSource(script map[string][]float64) *ScriptedSource {
	return &ScriptedSource{
		script: script,
		pos:    make(map[string]int),
		epoch:  1700000000,
	}
}

// SetErr makes subsequent calls fail with err (nil restores normal operation).
func (s *ScriptedSource) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

// LatestTicks returns the next scripted price as a single tick.
func (s *ScriptedSource) LatestTicks(_ context.Context, symbol string) ([]domain.PriceTick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	prices, ok := s.script[symbol]
	if !ok || len(prices) == 0 {
		return nil, nil
	}

	i := s.pos[symbol]
	if i >= len(prices) {
		i = len(prices) - 1
	} else {
		s.pos[symbol] = i + 1
	}

	s.epoch++
	return []domain.PriceTick{{Epoch: s.epoch, Price: prices[i]}}, nil
}

var _ Source = (*ScriptedSource)(nil)
