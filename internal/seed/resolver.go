package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/tripcast/internal/backend"
	"github.com/i474232898/tripcast/internal/weather"
)

// ErrNoMatch is returned when a resolver finds nothing for a query.
var ErrNoMatch = errors.New("seed: no matching place")

// Resolver turns a free-text place into a location reference.
type Resolver interface {
	Resolve(ctx context.Context, query string) (weather.LocationRef, error)
}

// PlaceSearcher is the backend place search.
type PlaceSearcher interface {
	SearchPlaces(ctx context.Context, query string) ([]backend.Place, error)
}

// BackendResolver resolves through the backend place search, taking the
// first hit.
type BackendResolver struct {
	Searcher PlaceSearcher
}

func (r BackendResolver) Resolve(ctx context.Context, query string) (weather.LocationRef, error) {
	places, err := r.Searcher.SearchPlaces(ctx, query)
	if err != nil {
		return weather.LocationRef{}, err
	}
	if len(places) == 0 {
		return weather.LocationRef{}, fmt.Errorf("%w: %q", ErrNoMatch, query)
	}
	return places[0].Ref(), nil
}

var geocoderKeyMu sync.Mutex

// GoogleResolver resolves "City, ST" strings through the Google geocoding
// API. The geocoder client keeps its key in a package variable, so every
// GoogleResolver in a process shares one key.
type GoogleResolver struct {
	country string
	lookup  func(geocoder.Address) (geocoder.Location, error)
}

// NewGoogleResolver configures the geocoder with apiKey.
func NewGoogleResolver(apiKey string) *GoogleResolver {
	geocoderKeyMu.Lock()
	geocoder.ApiKey = apiKey
	geocoderKeyMu.Unlock()
	return &GoogleResolver{country: "United States", lookup: geocoder.Geocoding}
}

func (r *GoogleResolver) Resolve(ctx context.Context, query string) (weather.LocationRef, error) {
	addr := parseAddress(query, r.country)

	type result struct {
		loc geocoder.Location
		err error
	}
	// the geocoder has no context support; abandon the call on cancellation
	ch := make(chan result, 1)
	go func() {
		loc, err := r.lookup(addr)
		ch <- result{loc, err}
	}()

	select {
	case <-ctx.Done():
		return weather.LocationRef{}, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return weather.LocationRef{}, fmt.Errorf("seed: geocode %q: %w", query, res.err)
		}
		if res.loc.Latitude == 0 && res.loc.Longitude == 0 {
			return weather.LocationRef{}, fmt.Errorf("%w: %q", ErrNoMatch, query)
		}
		return weather.NewRef(query, res.loc.Longitude, res.loc.Latitude), nil
	}
}

// parseAddress splits "City, ST" into geocoder address parts.
func parseAddress(query, country string) geocoder.Address {
	parts := strings.SplitN(query, ",", 2)
	addr := geocoder.Address{City: strings.TrimSpace(parts[0]), Country: country}
	if len(parts) == 2 {
		addr.State = strings.TrimSpace(parts[1])
	}
	return addr
}

// Chain tries each resolver in order and returns the first success.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, query string) (weather.LocationRef, error) {
	var errs []error
	for _, r := range c {
		ref, err := r.Resolve(ctx, query)
		if err == nil {
			return ref, nil
		}
		if ctx.Err() != nil {
			return weather.LocationRef{}, ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return weather.LocationRef{}, fmt.Errorf("%w: %q", ErrNoMatch, query)
	}
	return weather.LocationRef{}, errors.Join(errs...)
}
