// Package pricing provides price tick sources: a live WebSocket feed,
// a seeded random-walk simulator, and scripted stubs for tests.
package pricing

import (
	"context"

	"tradesim/internal/domain"
)

// Source supplies recent ticks for an instrument. An empty slice with a
// nil error means the source has no data for that instrument; callers
// decide whether that is fatal.
type Source interface {
	// LatestTicks returns the most recent ticks for the symbol,
	// ordered by epoch ascending.
	LatestTicks(ctx context.Context, symbol string) ([]domain.PriceTick, error)
}

// LatestPrice returns the newest price from a source, with ok=false when
// the source has no data for the symbol.
func LatestPrice(ctx context.Context, src Source, symbol string) (float64, bool, error) {
	ticks, err := src.LatestTicks(ctx, symbol)
	if err != nil {
		return 0, false, err
	}
	if len(ticks) == 0 {
		return 0, false, nil
	}
	return ticks[len(ticks)-1].Price, true, nil
}
