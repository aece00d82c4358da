package seed

import (
	"context"
	"math/rand/v2"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/i474232898/tripcast/internal/locations"
	"github.com/i474232898/tripcast/internal/weather"
)

// DefaultCount is how many rows a seeded board starts with.
const DefaultCount = 5

// DefaultCities are the cities random seeding picks from.
var DefaultCities = []string{
	"New York, NY",
	"Los Angeles, CA",
	"Chicago, IL",
	"Dallas, TX",
	"Houston, TX",
	"Washington, DC",
	"Philadelphia, PA",
	"Miami, FL",
	"Atlanta, GA",
	"Phoenix, AZ",
	"Boston, MA",
	"San Francisco, CA",
	"Detroit, MI",
	"Seattle, WA",
	"Minneapolis, MN",
	"Tampa, FL",
	"San Diego, CA",
	"Denver, CO",
	"Baltimore, MD",
	"St. Louis, MO",
	"Orlando, FL",
	"Charlotte, NC",
	"San Antonio, TX",
	"Portland, OR",
	"Sacramento, CA",
	"Pittsburgh, PA",
	"Austin, TX",
	"Las Vegas, NV",
	"Cincinnati, OH",
	"Salt Lake City, UT",
}

// Target receives seeded locations; *board.Board and *locations.Store both
// satisfy it.
type Target interface {
	Add(ctx context.Context, ref weather.LocationRef, opts locations.AddOptions) (weather.Entry, error)
}

// Origin is the caller's own position.
type Origin struct {
	Longitude float64 `json:"longitude" validate:"longitude"`
	Latitude  float64 `json:"latitude" validate:"latitude"`
}

// Result reports what a Load added and what it skipped.
type Result struct {
	Added   []weather.Entry `json:"added"`
	Skipped []string        `json:"skipped,omitempty"`
}

// Loader fills a fresh board: the caller's own position first when known,
// then random cities, one at a time so the board order matches load order.
type Loader struct {
	resolver   Resolver
	cities     []string
	count      int
	originName string
	shuffle    func([]string)
}

// NewLoader creates a Loader. Empty cities or a non-positive count fall back
// to the defaults.
func NewLoader(resolver Resolver, cities []string, count int) *Loader {
	if len(cities) == 0 {
		cities = DefaultCities
	}
	if count <= 0 {
		count = DefaultCount
	}
	return &Loader{
		resolver:   resolver,
		cities:     slices.Clone(cities),
		count:      count,
		originName: locations.DefaultPinnedName,
		shuffle: func(s []string) {
			rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
		},
	}
}

// Load seeds target. Individual failures are logged and skipped; only
// context cancellation aborts the load. With an origin, one fewer random
// city is loaded.
func (l *Loader) Load(ctx context.Context, target Target, origin *Origin) (Result, error) {
	var res Result
	opts := locations.AddOptions{InsertAt: locations.Bottom, Provenance: weather.ProvenanceInit}

	count := l.count
	if origin != nil {
		count--
		ref := weather.NewRef(l.originName, origin.Longitude, origin.Latitude)
		e, err := target.Add(ctx, ref, opts)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Warn().Err(err).Msg("could not load forecast for origin")
			res.Skipped = append(res.Skipped, l.originName)
		} else {
			res.Added = append(res.Added, e)
		}
	}

	for _, city := range l.pick(count) {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		ref, err := l.resolver.Resolve(ctx, city)
		if err == nil {
			var e weather.Entry
			if e, err = target.Add(ctx, ref, opts); err == nil {
				res.Added = append(res.Added, e)
				continue
			}
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log.Warn().Err(err).Str("city", city).Msg("failed to load city forecast")
		res.Skipped = append(res.Skipped, city)
	}

	return res, nil
}

// pick returns n distinct cities in random order.
func (l *Loader) pick(n int) []string {
	if n <= 0 {
		return nil
	}
	pool := slices.Clone(l.cities)
	l.shuffle(pool)
	return pool[:min(n, len(pool))]
}
