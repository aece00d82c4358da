package providers

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/i474232898/tripcast/internal/weather"
)

// Fallback answers from Secondary when Primary fails.
type Fallback struct {
	Primary   weather.Forecaster
	Secondary weather.Forecaster

	// ShouldFallback selects the Primary errors worth retrying on
	// Secondary. Nil means every error except cancellation and invalid input.
	ShouldFallback func(error) bool
}

var _ weather.Forecaster = (*Fallback)(nil)

func (f *Fallback) Forecast(ctx context.Context, lon, lat float64) ([]weather.ForecastPeriod, error) {
	periods, err := f.Primary.Forecast(ctx, lon, lat)
	if err == nil || !f.fallback(ctx, err) {
		return periods, err
	}
	log.Warn().Err(err).Float64("lon", lon).Float64("lat", lat).Msg("primary forecaster failed, using fallback")
	return f.Secondary.Forecast(ctx, lon, lat)
}

func (f *Fallback) ForecastBatch(ctx context.Context, refs []weather.LocationRef) ([]weather.BatchResult, error) {
	results, err := f.Primary.ForecastBatch(ctx, refs)
	if err == nil || !f.fallback(ctx, err) {
		return results, err
	}
	log.Warn().Err(err).Int("locations", len(refs)).Msg("primary batch forecast failed, using fallback")
	return f.Secondary.ForecastBatch(ctx, refs)
}

func (f *Fallback) fallback(ctx context.Context, err error) bool {
	if f.Secondary == nil || ctx.Err() != nil || errors.Is(err, weather.ErrInvalidLocation) {
		return false
	}
	if f.ShouldFallback != nil {
		return f.ShouldFallback(err)
	}
	return true
}
