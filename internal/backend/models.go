package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/i474232898/tripcast/internal/weather"
)

// FlexID accepts both string and numeric ids; place ids come back as either
// depending on the geocoder behind the backend.
type FlexID string

func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = FlexID(n.String())
	return nil
}

// Place is one geocoding hit of a place search.
type Place struct {
	ID        FlexID  `json:"place_id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Ref converts a place into a location reference.
func (p Place) Ref() weather.LocationRef {
	return weather.NewRef(p.Name, p.Longitude, p.Latitude)
}

// Activity is a dated note attached to a saved location.
type Activity struct {
	ID        string `json:"_id"`
	Text      string `json:"text"`
	Day       string `json:"day,omitempty"`
	Author    any    `json:"author,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// ActivityInput is the create/update body of an activity.
type ActivityInput struct {
	Text string `json:"text" validate:"required,max=1000"`
	Day  string `json:"day,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Comment is a note on a list.
type Comment struct {
	ID        string `json:"_id"`
	Text      string `json:"text"`
	Author    any    `json:"author,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// CommentInput is the create/update body of a comment.
type CommentInput struct {
	Text string `json:"text" validate:"required,max=1000"`
}

// SavedLocation is a location stored in a list.
type SavedLocation struct {
	ID          string     `json:"_id"`
	Name        string     `json:"name"`
	Longitude   float64    `json:"longitude"`
	Latitude    float64    `json:"latitude"`
	Description string     `json:"description,omitempty"`
	Activities  []Activity `json:"activities,omitempty"`
}

// Ref converts a saved location into a location reference keeping its id.
func (l SavedLocation) Ref() weather.LocationRef {
	ref := weather.NewRef(l.Name, l.Longitude, l.Latitude)
	ref.ID = l.ID
	return ref
}

// List is a named, ordered collection of saved locations.
type List struct {
	ID          string          `json:"_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Owner       any             `json:"owner,omitempty"`
	Locations   []SavedLocation `json:"locations"`
	Comments    []Comment       `json:"comments,omitempty"`
}

// Refs returns the list's locations as references, in list order.
func (l List) Refs() []weather.LocationRef {
	refs := make([]weather.LocationRef, 0, len(l.Locations))
	for _, loc := range l.Locations {
		refs = append(refs, loc.Ref())
	}
	return refs
}

// ListInput is the create/update body of a list.
type ListInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// NewListLocation adds a location to a list, either an existing location by
// id or a new one by name and coordinates.
type NewListLocation struct {
	LocationID  string   `json:"locationId,omitempty"`
	Name        string   `json:"name,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Description string   `json:"description,omitempty" validate:"max=500"`
}

func (n NewListLocation) validate() error {
	if n.LocationID != "" {
		return nil
	}
	if strings.TrimSpace(n.Name) == "" {
		return validationError(errors.New("location name is required"))
	}
	ref := weather.LocationRef{Name: n.Name, Longitude: n.Longitude, Latitude: n.Latitude}
	if err := ref.Validate(); err != nil {
		return validationError(err)
	}
	return check(n)
}

// payload drops the coordinates when an existing location is referenced.
func (n NewListLocation) payload() any {
	if n.LocationID != "" {
		return map[string]string{"locationId": n.LocationID}
	}
	return struct {
		Name        string  `json:"name"`
		Longitude   float64 `json:"longitude"`
		Latitude    float64 `json:"latitude"`
		Description string  `json:"description"`
	}{n.Name, *n.Longitude, *n.Latitude, n.Description}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
