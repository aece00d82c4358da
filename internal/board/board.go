package board

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/i474232898/tripcast/internal/backend"
	"github.com/i474232898/tripcast/internal/grid"
	"github.com/i474232898/tripcast/internal/locations"
	"github.com/i474232898/tripcast/internal/weather"
)

var (
	// ErrEntryNotFound is returned when no row has the requested key.
	ErrEntryNotFound = errors.New("board: no entry with that key")
	// ErrSaveInFlight is returned while a save of the same row is pending.
	ErrSaveInFlight = errors.New("board: save already in progress")
)

// Lister saves locations into backend lists.
type Lister interface {
	AddLocationToList(ctx context.Context, listID string, loc backend.NewListLocation) (backend.List, error)
}

// Config sizes a board.
type Config struct {
	Store  locations.Options
	Window grid.Config
}

// Board is one forecast grid: a location list, the sliding day window over
// it, the current selection and the per-row save state.
type Board struct {
	id        string
	createdAt time.Time
	active    *atomic.Time

	store     *locations.Store
	window    *grid.Window
	selection *weather.Service
	lister    Lister

	// serializes snapshot reads with window updates so the window never
	// regresses to an older column set
	syncMu    sync.Mutex
	cancelSub func()

	savesMu sync.Mutex
	saves   map[string]SaveStatus
}

// New creates an empty board.
func New(forecaster weather.Forecaster, lister Lister, cfg Config) *Board {
	now := time.Now()
	b := &Board{
		id:        uuid.NewString(),
		createdAt: now,
		active:    atomic.NewTime(now),
		store:     locations.NewStore(forecaster, cfg.Store),
		window:    grid.NewWindow(cfg.Window),
		selection: weather.NewService(forecaster),
		lister:    lister,
		saves:     make(map[string]SaveStatus),
	}
	b.cancelSub = b.store.Subscribe(func(locations.Snapshot) {
		b.syncColumns()
	})
	return b
}

// ID returns the board id.
func (b *Board) ID() string { return b.id }

// CreatedAt returns the creation time.
func (b *Board) CreatedAt() time.Time { return b.createdAt }

// LastActive returns the last time the board was used.
func (b *Board) LastActive() time.Time { return b.active.Load() }

// Touch marks the board as used now.
func (b *Board) Touch() { b.active.Store(time.Now()) }

// Close detaches the board from its store.
func (b *Board) Close() {
	if b.cancelSub != nil {
		b.cancelSub()
	}
}

// Store exposes the underlying location list.
func (b *Board) Store() *locations.Store { return b.store }

// Len returns the number of rows.
func (b *Board) Len() int { return b.store.Len() }

func (b *Board) syncColumns() grid.State {
	b.syncMu.Lock()
	defer b.syncMu.Unlock()
	return b.window.SetColumns(grid.ReferenceColumns(b.store.Snapshot().Entries))
}

// SeedOnce installs the initial entry of an empty board.
func (b *Board) SeedOnce(initial *weather.Entry) bool {
	return b.store.SeedOnce(initial)
}

// Add fetches and merges one location.
func (b *Board) Add(ctx context.Context, ref weather.LocationRef, opts locations.AddOptions) (weather.Entry, error) {
	return b.store.Add(ctx, ref, opts)
}

// AddBatch fetches and merges many locations at once.
func (b *Board) AddBatch(ctx context.Context, refs []weather.LocationRef, opts locations.AddOptions) ([]weather.Entry, error) {
	return b.store.AddBatch(ctx, refs, opts)
}

// Select makes ref the current selection and puts it on top of the grid. A
// selection overtaken by a newer one returns weather.ErrStale and leaves the
// grid untouched.
func (b *Board) Select(ctx context.Context, ref weather.LocationRef) (weather.Entry, error) {
	entry, gen, err := b.selection.SelectGeneration(ctx, ref, weather.ProvenanceUser)
	if err != nil {
		return weather.Entry{}, err
	}
	opts := locations.AddOptions{InsertAt: locations.Top, Provenance: weather.ProvenanceUser}
	entry, ok := b.store.InsertIf(entry, opts, func() bool { return !b.selection.Superseded(gen) })
	if !ok {
		return weather.Entry{}, weather.ErrStale
	}
	return entry, nil
}

// Selected returns the current selection.
func (b *Board) Selected() (weather.Entry, bool) {
	return b.selection.Current()
}

// Move reorders rows. With rest set, indexes skip the pinned first row.
func (b *Board) Move(from, to int, rest bool) bool {
	if rest {
		return b.store.MoveInRest(from, to)
	}
	return b.store.Move(from, to)
}

// Remove drops a row. With rest set, the index skips the pinned first row.
func (b *Board) Remove(index int, rest bool) bool {
	if rest {
		return b.store.RemoveInRest(index)
	}
	return b.store.Remove(index)
}

// Refresh re-fetches every row's forecast.
func (b *Board) Refresh(ctx context.Context) (int, error) {
	return b.store.Refresh(ctx)
}

// Resize records the rendering width in pixels.
func (b *Board) Resize(width int) grid.State {
	b.syncColumns()
	return b.window.Resize(width)
}

// Next slides the window one day forward.
func (b *Board) Next() grid.State {
	b.syncColumns()
	return b.window.Next()
}

// Prev slides the window one day back.
func (b *Board) Prev() grid.State {
	b.syncColumns()
	return b.window.Prev()
}

// SaveToList adds the row with key to a backend list, tracking the request
// so the row can show its progress.
func (b *Board) SaveToList(ctx context.Context, key, listID string) (SaveStatus, error) {
	entry, ok := b.entry(key)
	if !ok {
		return SaveStatus{}, ErrEntryNotFound
	}

	b.savesMu.Lock()
	if b.saves[key].State == SaveInFlight {
		b.savesMu.Unlock()
		return SaveStatus{}, ErrSaveInFlight
	}
	b.saves[key] = newStatus(SaveInFlight, "")
	b.savesMu.Unlock()

	lon, lat := roundCoord(entry.Longitude), roundCoord(entry.Latitude)
	_, err := b.lister.AddLocationToList(ctx, listID, backend.NewListLocation{
		Name:      entry.Name,
		Longitude: &lon,
		Latitude:  &lat,
	})

	status := statusFor(err)
	b.savesMu.Lock()
	b.saves[key] = status
	b.savesMu.Unlock()

	if err != nil {
		log.Debug().Err(err).Str("board", b.id).Str("key", key).Str("list", listID).Msg("save to list failed")
	}
	return status, err
}

// ResetSave returns a finished row label to its idle state.
func (b *Board) ResetSave(key string) {
	b.savesMu.Lock()
	defer b.savesMu.Unlock()
	if b.saves[key].State != SaveInFlight {
		delete(b.saves, key)
	}
}

// SaveStatusOf returns the save state of one row.
func (b *Board) SaveStatusOf(key string) SaveStatus {
	b.savesMu.Lock()
	defer b.savesMu.Unlock()
	if st, ok := b.saves[key]; ok {
		return st
	}
	return newStatus(SaveIdle, "")
}

// Entries returns the current rows in order.
func (b *Board) Entries() []weather.Entry {
	return b.store.Snapshot().Entries
}

func (b *Board) entry(key string) (weather.Entry, bool) {
	for _, e := range b.store.Snapshot().Entries {
		if e.Key() == key {
			return e, true
		}
	}
	return weather.Entry{}, false
}

// list coordinates are stored at six decimals
func roundCoord(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
