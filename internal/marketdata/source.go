// Package marketdata defines the boundary to OHLCV data providers.
package marketdata

import (
	"context"
	"errors"

	"signalbot/internal/model"
)

// ErrDataFetch wraps every provider failure. Callers skip the instrument for
// the current cycle.
var ErrDataFetch = errors.New("data fetch failed")

// Source supplies the most recent limit bars of an instrument, oldest first.
type Source interface {
	FetchSnapshot(ctx context.Context, inst model.Instrument, res model.Resolution, limit int) (model.Snapshot, error)
}
