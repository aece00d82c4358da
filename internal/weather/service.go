package weather

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

// Service tracks a single "current selection" forecast that newer requests
// supersede. Each Select captures a generation id at dispatch time and drops
// its own result when the counter moved on before the fetch resolved.
type Service struct {
	forecaster Forecaster
	generation *atomic.Uint64
	current    *atomic.Pointer[selection]
}

type selection struct {
	generation uint64
	entry      Entry
}

// NewService creates a new Service.
func NewService(forecaster Forecaster) *Service {
	return &Service{
		forecaster: forecaster,
		generation: atomic.NewUint64(0),
		current:    atomic.NewPointer[selection](nil),
	}
}

// Select fetches the forecast for ref and makes it the current selection.
// It returns ErrStale when a newer Select was dispatched meanwhile.
func (s *Service) Select(ctx context.Context, ref LocationRef, source Provenance) (Entry, error) {
	entry, _, err := s.SelectGeneration(ctx, ref, source)
	return entry, err
}

// SelectGeneration is Select that also returns the generation the selection
// was dispatched with, for callers that act on it later via Superseded.
func (s *Service) SelectGeneration(ctx context.Context, ref LocationRef, source Provenance) (Entry, uint64, error) {
	if err := ref.Validate(); err != nil {
		return Entry{}, 0, err
	}

	gen := s.generation.Inc()

	lon, lat := ref.Coords()
	forecast, err := s.forecaster.Forecast(ctx, lon, lat)
	if err != nil {
		return Entry{}, 0, fmt.Errorf("weather: forecast for %q: %w", ref.Name, err)
	}

	next := &selection{generation: gen, entry: NewEntry(ref, forecast, source)}
	for {
		cur := s.current.Load()
		if s.generation.Load() != gen || (cur != nil && cur.generation > gen) {
			log.Debug().Uint64("generation", gen).Str("name", ref.Name).Msg("dropping stale selection")
			return Entry{}, 0, ErrStale
		}
		if s.current.CompareAndSwap(cur, next) {
			return next.entry, gen, nil
		}
	}
}

// Superseded reports whether a Select newer than gen has been dispatched.
func (s *Service) Superseded(gen uint64) bool {
	return s.generation.Load() != gen
}

// Current returns the latest non-stale selection.
func (s *Service) Current() (Entry, bool) {
	sel := s.current.Load()
	if sel == nil {
		return Entry{}, false
	}
	return sel.entry, true
}
