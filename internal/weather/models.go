package weather

import (
	"strings"
)

// Provenance records how an entry entered a location list.
// It only biases merge ordering; it never takes part in identity.
type Provenance string

const (
	ProvenanceInit    Provenance = "init"
	ProvenanceUser    Provenance = "user"
	ProvenanceLanding Provenance = "landing"
	ProvenanceList    Provenance = "list"
	ProvenanceGeo     Provenance = "geo"
)

const (
	// DefaultName replaces an empty display name.
	DefaultName = "Selected Location"

	redundantCountrySuffix = ", United States of America"
)

// LocationRef is the normalized reference to a place, produced once at every
// system boundary so internal code never re-derives coordinates from field
// name variants.
type LocationRef struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name" validate:"max=200"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
}

// NewRef builds a LocationRef from plain values.
func NewRef(name string, lon, lat float64) LocationRef {
	return LocationRef{Name: name, Longitude: &lon, Latitude: &lat}
}

// Coords returns the reference coordinates, zero when absent.
func (r LocationRef) Coords() (lon, lat float64) {
	if r.Longitude != nil {
		lon = *r.Longitude
	}
	if r.Latitude != nil {
		lat = *r.Latitude
	}
	return lon, lat
}

// ForecastPeriod is one half-day slot of an upstream forecast.
// Only StartTime and IsDaytime are structurally significant; the rest is
// display payload passed through untouched.
type ForecastPeriod struct {
	Number                     int            `json:"number,omitempty"`
	Name                       string         `json:"name,omitempty"`
	StartTime                  string         `json:"startTime"`
	EndTime                    string         `json:"endTime,omitempty"`
	IsDaytime                  bool           `json:"isDaytime"`
	Temperature                float64        `json:"temperature"`
	TemperatureUnit            string         `json:"temperatureUnit,omitempty"`
	WindSpeed                  string         `json:"windSpeed,omitempty"`
	WindDirection              string         `json:"windDirection,omitempty"`
	Icon                       string         `json:"icon,omitempty"`
	ShortForecast              string         `json:"shortForecast,omitempty"`
	DetailedForecast           string         `json:"detailedForecast,omitempty"`
	ProbabilityOfPrecipitation *QuantityValue `json:"probabilityOfPrecipitation,omitempty"`
}

// QuantityValue mirrors the upstream {value, unitCode} pairs.
type QuantityValue struct {
	Value    *float64 `json:"value"`
	UnitCode string   `json:"unitCode,omitempty"`
}

// Entry is one row of a location grid. Entries are values: an update always
// replaces the whole entry.
type Entry struct {
	ID         string           `json:"id,omitempty"`
	Name       string           `json:"name"`
	Longitude  float64          `json:"lon"`
	Latitude   float64          `json:"lat"`
	Forecast   []ForecastPeriod `json:"forecast"`
	Provenance Provenance       `json:"source,omitempty"`
}

// NewEntry builds an entry for ref carrying forecast.
func NewEntry(ref LocationRef, forecast []ForecastPeriod, provenance Provenance) Entry {
	lon, lat := ref.Coords()
	return Entry{
		ID:         ref.ID,
		Name:       NormalizeName(ref.Name),
		Longitude:  lon,
		Latitude:   lat,
		Forecast:   forecast,
		Provenance: provenance,
	}
}

// Ref returns the entry's location reference.
func (e Entry) Ref() LocationRef {
	ref := NewRef(e.Name, e.Longitude, e.Latitude)
	ref.ID = e.ID
	return ref
}

// Key is the stable identity used for de-duplication and as the rendering key.
func (e Entry) Key() string {
	return KeysOf(e).Identity()
}

// NormalizeName strips the redundant country suffix and substitutes a
// default for empty names.
func NormalizeName(name string) string {
	name = strings.Replace(name, redundantCountrySuffix, "", 1)
	if strings.TrimSpace(name) == "" {
		return DefaultName
	}
	return name
}
