package weather

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNoForecasts is returned when a batch produced no usable forecast at all.
	ErrNoForecasts = errors.New("could not load forecasts")
	// ErrStale is returned by a selection superseded by a newer one.
	ErrStale = errors.New("superseded by a newer request")
	// ErrInvalidLocation marks input rejected before any network call.
	ErrInvalidLocation = errors.New("invalid location")
)

var validate = validator.New()

// Forecaster abstracts the upstream forecast lookups (the trip planner
// backend in production).
type Forecaster interface {
	Forecast(ctx context.Context, lon, lat float64) ([]ForecastPeriod, error)
	ForecastBatch(ctx context.Context, refs []LocationRef) ([]BatchResult, error)
}

// BatchResult is one resolved location of a batch forecast request.
// Failed locations are omitted or carry an empty forecast.
type BatchResult struct {
	Ref      LocationRef
	Forecast []ForecastPeriod
}

// Validate checks a reference before it reaches any forecaster.
func (r LocationRef) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	return nil
}
