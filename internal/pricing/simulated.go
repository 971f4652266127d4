package pricing

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"tradesim/internal/domain"
)

// Default simulated feed parameters.
const (
	DefaultStartPrice = 100.0
	DefaultVolatility = 0.004 // max fractional move per step
	defaultWindowSize = 30    // ticks returned per call
)

// SimulatedFeed generates a random-walk price series per instrument.
// With a fixed seed the walk is fully deterministic, which makes it
// suitable for replayable demo sessions.
type SimulatedFeed struct {
	mu         sync.Mutex
	rng        *rand.Rand
	volatility float64
	window     int

	last  map[string]float64
	ticks map[string][]domain.PriceTick
	clock func() time.Time
}

// SimulatedFeedOptions configures a SimulatedFeed.
type SimulatedFeedOptions struct {
	Seed       int64   // 0 means time-based seed
	Volatility float64 // 0 means DefaultVolatility
	Clock      func() time.Time
}

// NewSimulatedFeed creates a simulated feed.
func NewSimulatedFeed(opts SimulatedFeedOptions) *SimulatedFeed {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	volatility := opts.Volatility
	if volatility == 0 {
		volatility = DefaultVolatility
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &SimulatedFeed{
		rng:        rand.New(rand.NewSource(seed)),
		volatility: volatility,
		window:     defaultWindowSize,
		last:       make(map[string]float64),
		ticks:      make(map[string][]domain.PriceTick),
		clock:      clock,
	}
}

// LatestTicks advances the walk for the symbol by one step and returns
// the recent tick window. Unknown symbols are rejected.
func (f *SimulatedFeed) LatestTicks(_ context.Context, symbol string) ([]domain.PriceTick, error) {
	if !domain.ValidInstrument(symbol) {
		return nil, fmt.Errorf("simulated feed: unknown instrument %q", symbol)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	price, ok := f.last[symbol]
	if !ok {
		price = DefaultStartPrice
	}
	// Uniform step in [-volatility, +volatility].
	price *= 1 + (f.rng.Float64()*2-1)*f.volatility
	f.last[symbol] = price

	now := f.clock()
	tick := domain.PriceTick{
		Epoch:       now.Unix(),
		Price:       price,
		DisplayTime: now.UTC().Format("15:04:05"),
	}

	window := append(f.ticks[symbol], tick)
	if len(window) > f.window {
		window = window[len(window)-f.window:]
	}
	f.ticks[symbol] = window

	out := make([]domain.PriceTick, len(window))
	copy(out, window)
	return out, nil
}

var _ Source = (*SimulatedFeed)(nil)
