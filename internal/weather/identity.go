package weather

import (
	"math"
	"strconv"
	"strings"
)

// coordDecimals is the rounding applied before comparing coordinates, so a
// place re-added with slightly different floats still collides.
const coordDecimals = 4

// Keys are the de-duplication keys of one entry. Empty strings mean the key
// is unavailable.
type Keys struct {
	ID    string
	Coord string
	Name  string
}

// KeysOf computes the de-duplication keys of e.
func KeysOf(e Entry) Keys {
	return Keys{
		ID:    e.ID,
		Coord: CoordKey(e.Longitude, e.Latitude),
		Name:  NameKey(e.Name),
	}
}

// Identity picks the strongest available key: server id, then coordinates,
// then name.
func (k Keys) Identity() string {
	switch {
	case k.ID != "":
		return "id:" + k.ID
	case k.Coord != "":
		return "coord:" + k.Coord
	default:
		return "name:" + k.Name
	}
}

// Matches reports whether two key sets collide under any available key.
func (k Keys) Matches(o Keys) bool {
	if k.ID != "" && k.ID == o.ID {
		return true
	}
	if k.Coord != "" && k.Coord == o.Coord {
		return true
	}
	return k.Name != "" && k.Name == o.Name
}

// Collides reports whether a and b describe the same place.
func Collides(a, b Entry) bool {
	return KeysOf(a).Matches(KeysOf(b))
}

// NameKey lowercases, trims and collapses whitespace of a normalized name.
func NameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(NormalizeName(name)), " "))
}

// CoordKey returns "lon|lat" rounded to coordDecimals, or "" when either
// coordinate is not a finite number.
func CoordKey(lon, lat float64) string {
	if !isFinite(lon) || !isFinite(lat) {
		return ""
	}
	return formatCoord(lon) + "|" + formatCoord(lat)
}

func formatCoord(v float64) string {
	scale := math.Pow10(coordDecimals)
	r := math.Round(v*scale) / scale
	if r == 0 {
		// fold -0 into 0
		r = 0
	}
	return strconv.FormatFloat(r, 'f', coordDecimals, 64)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// KeySet tracks keys already seen during a first-occurrence-wins pass.
type KeySet struct {
	ids    map[string]struct{}
	coords map[string]struct{}
	names  map[string]struct{}
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{
		ids:    make(map[string]struct{}),
		coords: make(map[string]struct{}),
		names:  make(map[string]struct{}),
	}
}

// Has reports whether any key of k was added before.
func (s *KeySet) Has(k Keys) bool {
	if _, ok := s.ids[k.ID]; ok && k.ID != "" {
		return true
	}
	if _, ok := s.coords[k.Coord]; ok && k.Coord != "" {
		return true
	}
	_, ok := s.names[k.Name]
	return ok && k.Name != ""
}

// Add records every available key of k.
func (s *KeySet) Add(k Keys) {
	if k.ID != "" {
		s.ids[k.ID] = struct{}{}
	}
	if k.Coord != "" {
		s.coords[k.Coord] = struct{}{}
	}
	if k.Name != "" {
		s.names[k.Name] = struct{}{}
	}
}
