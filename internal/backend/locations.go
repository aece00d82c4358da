package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/i474232898/tripcast/internal/weather"
)

var _ weather.Forecaster = (*Client)(nil)

// SearchPlaces geocodes free text into candidate places.
func (c *Client) SearchPlaces(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, validationError(errors.New("search query is required"))
	}

	var body struct {
		Places []Place `json:"places"`
	}
	r := request{
		method: http.MethodGet,
		path:   []string{"locations", "places"},
		query:  url.Values{"search": {query}},
	}
	if err := c.do(ctx, r, &body); err != nil {
		return nil, err
	}
	return body.Places, nil
}

// Forecast returns the forecast periods for one coordinate pair.
func (c *Client) Forecast(ctx context.Context, lon, lat float64) ([]weather.ForecastPeriod, error) {
	var body struct {
		Location struct {
			Forecast []weather.ForecastPeriod `json:"forecast"`
		} `json:"location"`
	}
	r := request{
		method: http.MethodGet,
		path:   []string{"locations", "weather"},
		query:  url.Values{"lon": {formatCoord(lon)}, "lat": {formatCoord(lat)}},
	}
	if err := c.do(ctx, r, &body); err != nil {
		return nil, err
	}
	if len(body.Location.Forecast) == 0 {
		return nil, fmt.Errorf("%w for %s,%s", weather.ErrNoForecasts, formatCoord(lon), formatCoord(lat))
	}
	return body.Location.Forecast, nil
}

type batchLocation struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// batchItem accepts both the short and the long coordinate field names.
type batchItem struct {
	Name      string                   `json:"name"`
	Lon       *float64                 `json:"lon"`
	Longitude *float64                 `json:"longitude"`
	Lat       *float64                 `json:"lat"`
	Latitude  *float64                 `json:"latitude"`
	Forecast  []weather.ForecastPeriod `json:"forecast"`
}

func (b batchItem) ref() weather.LocationRef {
	ref := weather.LocationRef{Name: b.Name, Longitude: b.Lon, Latitude: b.Lat}
	if ref.Longitude == nil {
		ref.Longitude = b.Longitude
	}
	if ref.Latitude == nil {
		ref.Latitude = b.Latitude
	}
	return ref
}

// ForecastBatch fetches forecasts for many locations in one call. Items the
// backend could not resolve are returned with an empty forecast or omitted.
func (c *Client) ForecastBatch(ctx context.Context, refs []weather.LocationRef) ([]weather.BatchResult, error) {
	locations := make([]batchLocation, 0, len(refs))
	requested := newRequestIndex(len(refs))
	for _, ref := range refs {
		lon, lat := ref.Coords()
		locations = append(locations, batchLocation{Name: ref.Name, Lat: lat, Lon: lon})
		requested.add(ref)
	}

	var raw json.RawMessage
	r := request{
		method: http.MethodPost,
		path:   []string{"locations", "weather", "batch"},
		body:   map[string]any{"locations": locations},
	}
	if err := c.do(ctx, r, &raw); err != nil {
		return nil, err
	}

	items, err := decodeBatch(raw)
	if err != nil {
		return nil, &APIError{Kind: KindDecode, Message: err.Error(), Method: r.method, URL: c.url(r), Data: raw, cause: err}
	}

	out := make([]weather.BatchResult, 0, len(items))
	for _, item := range items {
		ref, ok := requested.match(item.ref())
		if !ok {
			continue
		}
		out = append(out, weather.BatchResult{Ref: ref, Forecast: item.Forecast})
	}
	return out, nil
}

// requestIndex maps batch results back to the refs that asked for them.
// Display names are not unique, so coordinates win and a name is only used
// when it points at exactly one request.
type requestIndex struct {
	byCoord map[string]weather.LocationRef
	byName  map[string][]weather.LocationRef
}

func newRequestIndex(n int) requestIndex {
	return requestIndex{
		byCoord: make(map[string]weather.LocationRef, n),
		byName:  make(map[string][]weather.LocationRef, n),
	}
}

func (idx requestIndex) add(ref weather.LocationRef) {
	if ref.Longitude != nil && ref.Latitude != nil {
		if key := weather.CoordKey(*ref.Longitude, *ref.Latitude); key != "" {
			idx.byCoord[key] = ref
		}
	}
	if key := weather.NameKey(ref.Name); key != "" {
		idx.byName[key] = append(idx.byName[key], ref)
	}
}

// match fills in the server id and, for name-only echoes, the requested
// coordinates. ok is false when a name-only result cannot be placed.
func (idx requestIndex) match(ref weather.LocationRef) (weather.LocationRef, bool) {
	if ref.Longitude != nil && ref.Latitude != nil {
		if requested, ok := idx.byCoord[weather.CoordKey(*ref.Longitude, *ref.Latitude)]; ok {
			ref.ID = requested.ID
		}
		return ref, true
	}

	candidates := idx.byName[weather.NameKey(ref.Name)]
	if len(candidates) != 1 {
		return ref, false
	}
	ref.Longitude, ref.Latitude = candidates[0].Longitude, candidates[0].Latitude
	ref.ID = candidates[0].ID
	return ref, true
}

// decodeBatch accepts either {"results": [...]} or a bare array.
func decodeBatch(raw json.RawMessage) ([]batchItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var wrapped struct {
		Results []batchItem `json:"results"`
	}
	if raw[0] == '{' {
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("decode batch results: %w", err)
		}
		return wrapped.Results, nil
	}
	var items []batchItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode batch results: %w", err)
	}
	return items, nil
}

// LocationByCoords looks up a previously saved location. A nil location with
// a nil error means none exists.
func (c *Client) LocationByCoords(ctx context.Context, lon, lat float64) (*SavedLocation, error) {
	var loc *SavedLocation
	r := request{
		method: http.MethodGet,
		path:   []string{"locations", "by-coords"},
		query:  url.Values{"lon": {formatCoord(lon)}, "lat": {formatCoord(lat)}},
	}
	if err := c.do(ctx, r, &loc); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return loc, nil
}
