package locations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/tripcast/internal/weather"
)

// fakeForecaster answers every lookup with a one-period forecast unless the
// coordinates are listed in fail or gates holds a channel to wait on.
type fakeForecaster struct {
	mu    sync.Mutex
	fail  map[string]error
	gates map[string]chan struct{}
	empty map[string]bool
	calls int
}

func newFakeForecaster() *fakeForecaster {
	return &fakeForecaster{
		fail:  make(map[string]error),
		gates: make(map[string]chan struct{}),
		empty: make(map[string]bool),
	}
}

func periods(startTime string) []weather.ForecastPeriod {
	return []weather.ForecastPeriod{{StartTime: startTime, IsDaytime: true}}
}

func (f *fakeForecaster) Forecast(ctx context.Context, lon, lat float64) ([]weather.ForecastPeriod, error) {
	key := weather.CoordKey(lon, lat)

	f.mu.Lock()
	f.calls++
	gate := f.gates[key]
	err := f.fail[key]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return periods("2024-01-01T06:00:00-05:00"), nil
}

func (f *fakeForecaster) ForecastBatch(ctx context.Context, refs []weather.LocationRef) ([]weather.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	out := make([]weather.BatchResult, 0, len(refs))
	for _, ref := range refs {
		lon, lat := ref.Coords()
		if f.empty[weather.CoordKey(lon, lat)] {
			out = append(out, weather.BatchResult{Ref: ref})
			continue
		}
		out = append(out, weather.BatchResult{Ref: ref, Forecast: periods("2024-01-02T06:00:00-05:00")})
	}
	return out, nil
}

func ref(name string, n float64) weather.LocationRef {
	return weather.NewRef(name, n, n)
}

func names(s *Store) []string {
	snap := s.Snapshot()
	out := make([]string, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		out = append(out, e.Name)
	}
	return out
}

func TestStore_InsertionEnd(t *testing.T) {
	tests := []struct {
		name     string
		insertAt InsertAt
		expected []string
	}{
		{name: "top", insertAt: Top, expected: []string{"C", "B", "A"}},
		{name: "bottom", insertAt: Bottom, expected: []string{"A", "B", "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(newFakeForecaster(), Options{Limit: 5})
			ctx := context.Background()

			for i, n := range []string{"A", "B", "C"} {
				_, err := s.Add(ctx, ref(n, float64(i+1)), AddOptions{InsertAt: tt.insertAt})
				require.NoError(t, err)
			}

			assert.Equal(t, tt.expected, names(s))
		})
	}
}

func TestStore_TruncationDirection(t *testing.T) {
	s := NewStore(newFakeForecaster(), Options{Limit: 2})
	ctx := context.Background()

	_, err := s.Add(ctx, ref("A", 1), AddOptions{InsertAt: Bottom})
	require.NoError(t, err)
	_, err = s.Add(ctx, ref("B", 2), AddOptions{InsertAt: Bottom})
	require.NoError(t, err)
	_, err = s.Add(ctx, ref("C", 3), AddOptions{InsertAt: Top})
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "A"}, names(s))

	_, err = s.Add(ctx, ref("D", 4), AddOptions{InsertAt: Bottom})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "D"}, names(s))
}

func TestStore_BoundedAndUnique(t *testing.T) {
	const limit = 4
	s := NewStore(newFakeForecaster(), Options{Limit: limit})
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		at := Top
		if i%3 == 0 {
			at = Bottom
		}
		// every fifth name repeats with shifted coordinates, every seventh
		// location repeats coordinates under a new name
		name := fmt.Sprintf("place %d", i%5)
		coord := float64(i % 7)
		if i%2 == 0 {
			_, err := s.Add(ctx, ref(name, coord), AddOptions{InsertAt: at})
			require.NoError(t, err)
		} else {
			_, err := s.AddBatch(ctx, []weather.LocationRef{ref(name, coord), ref("Other "+name, coord+0.5)}, AddOptions{InsertAt: at})
			require.NoError(t, err)
		}

		entries := s.Snapshot().Entries
		require.LessOrEqual(t, len(entries), limit)
		for a := range entries {
			for b := a + 1; b < len(entries); b++ {
				assert.False(t, weather.Collides(entries[a], entries[b]), "%v collides with %v", entries[a], entries[b])
			}
		}
	}
}

func TestStore_AddReplacesColliding(t *testing.T) {
	s := NewStore(newFakeForecaster(), Options{Limit: 5})
	ctx := context.Background()

	_, err := s.Add(ctx, ref("Denver, CO", 1), AddOptions{})
	require.NoError(t, err)
	_, err = s.Add(ctx, ref("Boston, MA", 2), AddOptions{})
	require.NoError(t, err)

	// same name, different coordinates
	_, err = s.Add(ctx, ref("  denver,   co ", 9), AddOptions{InsertAt: Bottom})
	require.NoError(t, err)
	assert.Equal(t, []string{"Boston, MA", "  denver,   co "}, names(s))

	// same rounded coordinates, different name
	_, err = s.Add(ctx, weather.NewRef("Beantown", 2.00001, 2.00002), AddOptions{InsertAt: Top})
	require.NoError(t, err)
	assert.Equal(t, []string{"Beantown", "  denver,   co "}, names(s))
}

func TestStore_AddFailureLeavesStateUntouched(t *testing.T) {
	f := newFakeForecaster()
	f.fail[weather.CoordKey(3, 3)] = errors.New("upstream 500")
	s := NewStore(f, Options{Limit: 5})
	ctx := context.Background()

	_, err := s.Add(ctx, ref("A", 1), AddOptions{})
	require.NoError(t, err)
	before := s.Snapshot()

	_, err = s.Add(ctx, ref("C", 3), AddOptions{})
	require.Error(t, err)
	assert.Equal(t, before, s.Snapshot())
}

func TestStore_AddRejectsInvalidCoordinates(t *testing.T) {
	f := newFakeForecaster()
	s := NewStore(f, Options{Limit: 5})

	_, err := s.Add(context.Background(), weather.NewRef("Nowhere", 200, 10), AddOptions{})
	assert.ErrorIs(t, err, weather.ErrInvalidLocation)

	_, err = s.Add(context.Background(), weather.LocationRef{Name: "No coords"}, AddOptions{})
	assert.ErrorIs(t, err, weather.ErrInvalidLocation)

	assert.Zero(t, f.calls)
}

func TestStore_InsertIf(t *testing.T) {
	s := NewStore(newFakeForecaster(), Options{Limit: 3})
	s.Insert(weather.NewEntry(ref("A", 1), periods("2024-01-01"), weather.ProvenanceUser), AddOptions{})
	before := s.Snapshot().Version

	_, ok := s.InsertIf(weather.NewEntry(ref("Late", 2), periods("2024-01-01"), weather.ProvenanceUser), AddOptions{InsertAt: Top}, func() bool { return false })

	assert.False(t, ok)
	assert.Equal(t, []string{"A"}, names(s))
	assert.Equal(t, before, s.Snapshot().Version)

	// keep is asked again when another writer wins the race
	calls := 0
	_, ok = s.InsertIf(weather.NewEntry(ref("B", 3), periods("2024-01-01"), weather.ProvenanceUser), AddOptions{InsertAt: Top}, func() bool {
		calls++
		if calls == 1 {
			s.Insert(weather.NewEntry(ref("Newer", 4), periods("2024-01-01"), weather.ProvenanceUser), AddOptions{InsertAt: Top})
			return true
		}
		return false
	})

	assert.False(t, ok)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"Newer", "A"}, names(s))
}

func TestStore_AddBatch(t *testing.T) {
	t.Run("dedupes incoming by rounded coordinates", func(t *testing.T) {
		s := NewStore(newFakeForecaster(), Options{Limit: 5})
		got, err := s.AddBatch(context.Background(), []weather.LocationRef{
			weather.NewRef("X", 1, 1),
			weather.NewRef("x", 1.00001, 1.00001),
		}, AddOptions{})
		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.Equal(t, []string{"X"}, names(s))
	})

	t.Run("drops locations without forecast", func(t *testing.T) {
		f := newFakeForecaster()
		f.empty[weather.CoordKey(2, 2)] = true
		s := NewStore(f, Options{Limit: 5})

		got, err := s.AddBatch(context.Background(), []weather.LocationRef{ref("A", 1), ref("B", 2), ref("C", 3)}, AddOptions{})
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, []string{"A", "C"}, names(s))
	})

	t.Run("fully empty result is an error", func(t *testing.T) {
		f := newFakeForecaster()
		f.empty[weather.CoordKey(1, 1)] = true
		s := NewStore(f, Options{Limit: 5})
		s.Insert(weather.NewEntry(ref("Keep", 5), periods("2024-01-01"), weather.ProvenanceUser), AddOptions{})

		_, err := s.AddBatch(context.Background(), []weather.LocationRef{ref("A", 1)}, AddOptions{})
		assert.ErrorIs(t, err, weather.ErrNoForecasts)
		assert.Equal(t, []string{"Keep"}, names(s))
	})

	t.Run("replaces existing collisions and inserts on top", func(t *testing.T) {
		s := NewStore(newFakeForecaster(), Options{Limit: 3})
		ctx := context.Background()
		for i, n := range []string{"A", "B", "C"} {
			_, err := s.Add(ctx, ref(n, float64(i+1)), AddOptions{})
			require.NoError(t, err)
		}

		_, err := s.AddBatch(ctx, []weather.LocationRef{ref("b", 20), ref("D", 4)}, AddOptions{InsertAt: Top})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "D", "A"}, names(s))
	})

	t.Run("bottom insert drops from the top", func(t *testing.T) {
		s := NewStore(newFakeForecaster(), Options{Limit: 3})
		ctx := context.Background()
		for i, n := range []string{"A", "B", "C"} {
			_, err := s.Add(ctx, ref(n, float64(i+1)), AddOptions{})
			require.NoError(t, err)
		}

		_, err := s.AddBatch(ctx, []weather.LocationRef{ref("D", 4), ref("E", 5)}, AddOptions{InsertAt: Bottom})
		require.NoError(t, err)
		assert.Equal(t, []string{"C", "D", "E"}, names(s))
	})

	for _, at := range []InsertAt{Top, Bottom} {
		t.Run("zero limit keeps nothing at "+string(at), func(t *testing.T) {
			s := NewStore(newFakeForecaster(), Options{Limit: 0})

			_, err := s.AddBatch(context.Background(), []weather.LocationRef{ref("A", 1), ref("B", 2)}, AddOptions{InsertAt: at})
			require.NoError(t, err)
			assert.Empty(t, names(s))
		})
	}

	t.Run("limit holds for a larger batch", func(t *testing.T) {
		s := NewStore(newFakeForecaster(), Options{Limit: 2})

		_, err := s.AddBatch(context.Background(), []weather.LocationRef{ref("A", 1), ref("B", 2), ref("C", 3)}, AddOptions{InsertAt: Top})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, names(s))
	})
}

func TestStore_Modes(t *testing.T) {
	entry := func(name string, n float64) weather.Entry {
		return weather.NewEntry(ref(name, n), periods("2024-01-01"), weather.ProvenanceInit)
	}

	t.Run("newestTop forces pinned name first", func(t *testing.T) {
		s := NewStore(newFakeForecaster(), Options{Limit: 5, Mode: ModeNewestTop})
		s.Insert(entry("A", 1), AddOptions{})
		s.Insert(entry("Your Location", 2), AddOptions{})
		s.Insert(entry("B", 3), AddOptions{})
		s.Insert(entry("C", 4), AddOptions{})

		assert.Equal(t, []string{"Your Location", "C", "B", "A"}, names(s))
	})

	t.Run("newestTop without pinned entry inserts on top", func(t *testing.T) {
		s := NewStore(newFakeForecaster(), Options{Limit: 2, Mode: ModeNewestTop})
		s.Insert(entry("A", 1), AddOptions{})
		s.Insert(entry("B", 2), AddOptions{})
		s.Insert(entry("C", 3), AddOptions{})

		assert.Equal(t, []string{"C", "B"}, names(s))
	})

	t.Run("pinFirst inserts after the pinned slot", func(t *testing.T) {
		s := NewStore(newFakeForecaster(), Options{Limit: 3, Mode: ModePinFirst})
		s.Insert(entry("P", 1), AddOptions{})
		s.Insert(entry("A", 2), AddOptions{})
		s.Insert(entry("B", 3), AddOptions{})
		s.Insert(entry("C", 4), AddOptions{})

		assert.Equal(t, []string{"P", "C", "B"}, names(s))
	})

	t.Run("pinFirst replaces the pinned slot on identity match", func(t *testing.T) {
		s := NewStore(newFakeForecaster(), Options{Limit: 3, Mode: ModePinFirst})
		s.Insert(entry("P", 1), AddOptions{})
		s.Insert(entry("A", 2), AddOptions{})
		s.Insert(entry("P renamed", 1), AddOptions{})

		assert.Equal(t, []string{"P renamed", "A"}, names(s))
	})

	t.Run("candidate survives a single slot", func(t *testing.T) {
		s := NewStore(newFakeForecaster(), Options{Limit: 1, Mode: ModePinFirst})
		s.Insert(entry("P", 1), AddOptions{})
		s.Insert(entry("A", 2), AddOptions{})

		assert.Equal(t, []string{"A"}, names(s))
	})

	t.Run("zero limit keeps nothing", func(t *testing.T) {
		s := NewStore(newFakeForecaster(), Options{Limit: 0})
		s.Insert(entry("A", 1), AddOptions{})

		assert.Empty(t, names(s))
	})
}

func TestStore_Move(t *testing.T) {
	build := func() *Store {
		s := NewStore(newFakeForecaster(), Options{Limit: 5, Mode: ModePinFirst})
		s.SeedOnce(&weather.Entry{Name: "P", Longitude: 1, Latitude: 1})
		s.Insert(weather.NewEntry(ref("B", 3), nil, ""), AddOptions{})
		s.Insert(weather.NewEntry(ref("A", 2), nil, ""), AddOptions{})
		return s
	}

	t.Run("rest view swaps without touching the pinned entry", func(t *testing.T) {
		s := build()
		require.Equal(t, []string{"P", "A", "B"}, names(s))

		assert.True(t, s.MoveInRest(0, 1))
		assert.Equal(t, []string{"P", "B", "A"}, names(s))
	})

	t.Run("rest view out of range is a no-op", func(t *testing.T) {
		s := build()
		version := s.Snapshot().Version

		assert.False(t, s.MoveInRest(0, 2))
		assert.False(t, s.MoveInRest(-1, 0))
		assert.Equal(t, version, s.Snapshot().Version)
	})

	t.Run("full list", func(t *testing.T) {
		s := build()
		assert.True(t, s.Move(2, 0))
		assert.Equal(t, []string{"B", "P", "A"}, names(s))
		assert.False(t, s.Move(0, 3))
	})

	t.Run("remove", func(t *testing.T) {
		s := build()
		assert.False(t, s.RemoveInRest(2))
		assert.True(t, s.RemoveInRest(0))
		assert.Equal(t, []string{"P", "B"}, names(s))
		assert.True(t, s.Remove(0))
		assert.Equal(t, []string{"B"}, names(s))
		assert.False(t, s.RemoveInRest(0))
	})
}

func TestStore_SeedOnce(t *testing.T) {
	s := NewStore(newFakeForecaster(), Options{Limit: 5})

	assert.False(t, s.SeedOnce(nil))
	assert.False(t, s.SeedOnce(&weather.Entry{}))
	assert.True(t, s.SeedOnce(&weather.Entry{Name: "First", Longitude: 1, Latitude: 1}))
	assert.False(t, s.SeedOnce(&weather.Entry{Name: "Second", Longitude: 2, Latitude: 2}))

	assert.Equal(t, []string{"First"}, names(s))
}

func TestStore_LateFetchAppliesToLatestState(t *testing.T) {
	f := newFakeForecaster()
	gate := make(chan struct{})
	f.gates[weather.CoordKey(9, 9)] = gate

	s := NewStore(f, Options{Limit: 5})
	ctx := context.Background()
	for i, n := range []string{"A", "B", "C"} {
		_, err := s.Add(ctx, ref(n, float64(i+1)), AddOptions{})
		require.NoError(t, err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Add(ctx, ref("Slow", 9), AddOptions{InsertAt: Top})
		done <- err
	}()

	// mutations landing while the slow fetch is in flight
	require.True(t, s.Move(0, 2))
	require.True(t, s.Remove(0))

	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"Slow", "C", "A"}, names(s))
}

func TestStore_ConcurrentAdds(t *testing.T) {
	const limit = 5
	s := NewStore(newFakeForecaster(), Options{Limit: limit})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at := Top
			if i%2 == 0 {
				at = Bottom
			}
			_, err := s.Add(ctx, ref(fmt.Sprintf("P%d", i%8), float64(i%8)), AddOptions{InsertAt: at})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Len(t, snap.Entries, limit)
	assert.Equal(t, uint64(50), snap.Version)
}

func TestStore_Refresh(t *testing.T) {
	s := NewStore(newFakeForecaster(), Options{Limit: 5})
	s.Insert(weather.NewEntry(ref("Your Location", 1), periods("2023-12-31"), weather.ProvenanceGeo), AddOptions{})
	s.Insert(weather.NewEntry(ref("B", 2), periods("2023-12-31"), weather.ProvenanceInit), AddOptions{})

	n, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap := s.Snapshot()
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "Your Location", snap.Entries[0].Name)
	assert.Equal(t, weather.ProvenanceGeo, snap.Entries[0].Provenance)
	assert.Equal(t, "2024-01-02T06:00:00-05:00", snap.Entries[0].Forecast[0].StartTime)
}

func TestStore_Subscribe(t *testing.T) {
	s := NewStore(newFakeForecaster(), Options{Limit: 5})

	var got []uint64
	cancel := s.Subscribe(func(snap Snapshot) {
		got = append(got, snap.Version)
	})

	s.Insert(weather.NewEntry(ref("A", 1), nil, ""), AddOptions{})
	s.Move(0, 5)
	s.Insert(weather.NewEntry(ref("B", 2), nil, ""), AddOptions{})
	cancel()
	s.Insert(weather.NewEntry(ref("C", 3), nil, ""), AddOptions{})

	assert.Equal(t, []uint64{1, 2}, got)
}
