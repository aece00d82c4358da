package locations

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/i474232898/tripcast/internal/weather"
)

// InsertAt selects the end of the list a new entry goes to.
type InsertAt string

const (
	Top    InsertAt = "top"
	Bottom InsertAt = "bottom"
)

// Mode is the merge-ordering policy for single new entries.
type Mode string

const (
	// ModeAppend moves the new entry to the requested end.
	ModeAppend Mode = "append"
	// ModeNewestTop inserts at the top but keeps a pinned-name entry first.
	ModeNewestTop Mode = "newestTop"
	// ModePinFirst treats index 0 as a permanently pinned slot.
	ModePinFirst Mode = "pinFirst"
)

// DefaultPinnedName is the entry ModeNewestTop keeps on top.
const DefaultPinnedName = "Your Location"

// Options configures a Store.
type Options struct {
	Limit      int
	Mode       Mode
	PinnedName string
}

// AddOptions describes one insertion.
type AddOptions struct {
	InsertAt   InsertAt
	Provenance weather.Provenance
}

// Snapshot is an immutable view of the list at one version.
type Snapshot struct {
	Entries []weather.Entry
	Version uint64
}

type state struct {
	entries []weather.Entry
	version uint64
}

// Store is a bounded, ordered, de-duplicated list of location entries.
//
// Every mutation is a pure function of the state current at the instant it is
// applied, committed with compare-and-swap. A slow fetch therefore never
// overwrites changes that landed while it was in flight, and no lock is held
// across network calls.
type Store struct {
	opts       Options
	forecaster weather.Forecaster

	state  *atomic.Pointer[state]
	seeded *atomic.Bool

	mu        sync.Mutex
	nextSubID int
	subs      map[int]func(Snapshot)
}

// NewStore creates an empty Store.
func NewStore(forecaster weather.Forecaster, opts Options) *Store {
	if opts.Mode == "" {
		opts.Mode = ModeAppend
	}
	if opts.PinnedName == "" {
		opts.PinnedName = DefaultPinnedName
	}
	return &Store{
		opts:       opts,
		forecaster: forecaster,
		state:      atomic.NewPointer(&state{entries: []weather.Entry{}}),
		seeded:     atomic.NewBool(false),
		subs:       make(map[int]func(Snapshot)),
	}
}

// Options returns the store configuration.
func (s *Store) Options() Options {
	return s.opts
}

// Snapshot returns the current list.
func (s *Store) Snapshot() Snapshot {
	cur := s.state.Load()
	return Snapshot{Entries: clone(cur.entries), Version: cur.version}
}

// Len returns the current number of entries.
func (s *Store) Len() int {
	return len(s.state.Load().entries)
}

// Subscribe registers fn to receive every committed snapshot.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// apply commits fn relative to the latest state. fn reports false when it
// made no change, in which case nothing is committed.
func (s *Store) apply(fn func(prev []weather.Entry) ([]weather.Entry, bool)) (Snapshot, bool) {
	for {
		cur := s.state.Load()
		entries, changed := fn(cur.entries)
		if !changed {
			return Snapshot{Entries: clone(cur.entries), Version: cur.version}, false
		}
		next := &state{entries: entries, version: cur.version + 1}
		if s.state.CompareAndSwap(cur, next) {
			snap := Snapshot{Entries: clone(entries), Version: next.version}
			s.notify(snap)
			return snap, true
		}
	}
}

func (s *Store) notify(snap Snapshot) {
	s.mu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// SeedOnce replaces the list with initial the first time it is called with a
// named entry. Later calls are no-ops.
func (s *Store) SeedOnce(initial *weather.Entry) bool {
	if initial == nil || initial.Name == "" {
		return false
	}
	if !s.seeded.CompareAndSwap(false, true) {
		return false
	}
	seed := *initial
	s.apply(func([]weather.Entry) ([]weather.Entry, bool) {
		return []weather.Entry{seed}, true
	})
	return true
}

// Add fetches the forecast for ref and merges the resulting entry.
// On fetch failure the store is left unchanged.
func (s *Store) Add(ctx context.Context, ref weather.LocationRef, opts AddOptions) (weather.Entry, error) {
	if err := ref.Validate(); err != nil {
		return weather.Entry{}, err
	}

	lon, lat := ref.Coords()
	forecast, err := s.forecaster.Forecast(ctx, lon, lat)
	if err != nil {
		return weather.Entry{}, fmt.Errorf("locations: forecast for %q: %w", ref.Name, err)
	}

	return s.Insert(weather.NewEntry(ref, forecast, opts.Provenance), opts), nil
}

// Insert merges an entry whose forecast is already known.
func (s *Store) Insert(e weather.Entry, opts AddOptions) weather.Entry {
	at := opts.InsertAt
	if at == "" {
		at = Bottom
	}
	if opts.Provenance != "" {
		e.Provenance = opts.Provenance
	}

	s.apply(func(prev []weather.Entry) ([]weather.Entry, bool) {
		return mergeOne(prev, e, at, s.opts), true
	})

	log.Debug().
		Str("name", e.Name).
		Str("key", e.Key()).
		Str("mode", string(s.opts.Mode)).
		Str("insert_at", string(at)).
		Msg("location merged")
	return e
}

// InsertIf merges e like Insert, but only while keep reports true. keep is
// checked against the same state the merge commits to, so a concurrent
// change forces it to be asked again. It reports whether e was merged.
func (s *Store) InsertIf(e weather.Entry, opts AddOptions, keep func() bool) (weather.Entry, bool) {
	at := opts.InsertAt
	if at == "" {
		at = Bottom
	}
	if opts.Provenance != "" {
		e.Provenance = opts.Provenance
	}

	_, merged := s.apply(func(prev []weather.Entry) ([]weather.Entry, bool) {
		if !keep() {
			return prev, false
		}
		return mergeOne(prev, e, at, s.opts), true
	})
	if !merged {
		log.Debug().Str("name", e.Name).Msg("insert skipped")
	}
	return e, merged
}

// AddBatch fetches forecasts for refs in one request and merges every
// location that resolved. Locations without a usable forecast are dropped
// silently; ErrNoForecasts is returned only when none resolved.
//
// Past the limit, entries are dropped from the end opposite to InsertAt: a
// batch placed at the top trims the bottom and a batch appended at the
// bottom trims the top, the same as a single Add.
func (s *Store) AddBatch(ctx context.Context, refs []weather.LocationRef, opts AddOptions) ([]weather.Entry, error) {
	valid := make([]weather.LocationRef, 0, len(refs))
	for _, ref := range refs {
		if err := ref.Validate(); err != nil {
			log.Warn().Err(err).Str("name", ref.Name).Msg("skipping invalid batch location")
			continue
		}
		valid = append(valid, ref)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("locations: %w: empty batch", weather.ErrInvalidLocation)
	}

	results, err := s.forecaster.ForecastBatch(ctx, valid)
	if err != nil {
		return nil, fmt.Errorf("locations: batch forecast: %w", err)
	}

	normalized := make([]weather.Entry, 0, len(results))
	for _, r := range results {
		if len(r.Forecast) == 0 {
			continue
		}
		normalized = append(normalized, weather.NewEntry(r.Ref, r.Forecast, opts.Provenance))
	}

	incoming := dedupe(normalized, -1)
	if len(incoming) == 0 {
		return nil, weather.ErrNoForecasts
	}

	at := opts.InsertAt
	if at == "" {
		at = Bottom
	}
	s.apply(func(prev []weather.Entry) ([]weather.Entry, bool) {
		return mergeBatch(prev, incoming, at, s.opts.Limit), true
	})

	log.Debug().Int("requested", len(refs)).Int("merged", len(incoming)).Msg("batch merged")
	return incoming, nil
}

// Move relocates the entry at from to index to. Out-of-range indexes are a
// no-op.
func (s *Store) Move(from, to int) bool {
	_, changed := s.apply(func(prev []weather.Entry) ([]weather.Entry, bool) {
		return move(prev, from, to)
	})
	return changed
}

// MoveInRest is Move on the sub-view that excludes the pinned entry at
// index 0: indexes address the remaining entries and index 0 never moves.
func (s *Store) MoveInRest(from, to int) bool {
	_, changed := s.apply(func(prev []weather.Entry) ([]weather.Entry, bool) {
		if len(prev) < 2 {
			return prev, false
		}
		rest, ok := move(prev[1:], from, to)
		if !ok {
			return prev, false
		}
		return prepend(rest, prev[0]), true
	})
	return changed
}

// Remove drops the entry at index.
func (s *Store) Remove(index int) bool {
	_, changed := s.apply(func(prev []weather.Entry) ([]weather.Entry, bool) {
		return remove(prev, index)
	})
	return changed
}

// RemoveInRest drops the entry at index of the sub-view that excludes the
// pinned entry.
func (s *Store) RemoveInRest(index int) bool {
	_, changed := s.apply(func(prev []weather.Entry) ([]weather.Entry, bool) {
		if len(prev) < 2 {
			return prev, false
		}
		rest, ok := remove(prev[1:], index)
		if !ok {
			return prev, false
		}
		return prepend(rest, prev[0]), true
	})
	return changed
}

// Refresh re-fetches forecasts for every current entry in one batch and
// replaces matching entries in place. Entries that did not resolve keep
// their previous forecast.
func (s *Store) Refresh(ctx context.Context) (int, error) {
	cur := s.Snapshot()
	if len(cur.Entries) == 0 {
		return 0, nil
	}

	refs := make([]weather.LocationRef, 0, len(cur.Entries))
	for _, e := range cur.Entries {
		refs = append(refs, e.Ref())
	}

	results, err := s.forecaster.ForecastBatch(ctx, refs)
	if err != nil {
		return 0, fmt.Errorf("locations: refresh: %w", err)
	}

	fresh := make([]weather.Entry, 0, len(results))
	for _, r := range results {
		if len(r.Forecast) == 0 {
			continue
		}
		fresh = append(fresh, weather.NewEntry(r.Ref, r.Forecast, ""))
	}
	if len(fresh) == 0 {
		return 0, weather.ErrNoForecasts
	}

	replaced := 0
	s.apply(func(prev []weather.Entry) ([]weather.Entry, bool) {
		var next []weather.Entry
		next, replaced = replaceMatching(prev, fresh)
		return next, replaced > 0
	})
	return replaced, nil
}
