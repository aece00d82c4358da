package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/i474232898/tripcast/internal/weather"
)

// MyLists returns the lists owned by the token's user.
func (c *Client) MyLists(ctx context.Context) ([]List, error) {
	var lists []List
	if err := c.do(ctx, request{method: http.MethodGet, path: []string{"lists"}, auth: true}, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// CreateList creates an empty list.
func (c *Client) CreateList(ctx context.Context, in ListInput) (List, error) {
	if err := check(in); err != nil {
		return List{}, err
	}
	var list List
	err := c.do(ctx, request{method: http.MethodPost, path: []string{"lists"}, body: in, auth: true}, &list)
	return list, err
}

// GetList fetches one list with its locations.
func (c *Client) GetList(ctx context.Context, id string) (List, error) {
	if err := requireID("list", id); err != nil {
		return List{}, err
	}
	var list List
	err := c.do(ctx, request{method: http.MethodGet, path: []string{"lists", id}}, &list)
	return list, err
}

// UpdateList renames or re-describes a list.
func (c *Client) UpdateList(ctx context.Context, id string, in ListInput) (List, error) {
	if err := requireID("list", id); err != nil {
		return List{}, err
	}
	if err := check(in); err != nil {
		return List{}, err
	}
	var list List
	err := c.do(ctx, request{method: http.MethodPut, path: []string{"lists", id}, body: in, auth: true}, &list)
	return list, err
}

// DeleteList removes a list.
func (c *Client) DeleteList(ctx context.Context, id string) error {
	if err := requireID("list", id); err != nil {
		return err
	}
	return c.do(ctx, request{method: http.MethodDelete, path: []string{"lists", id}, auth: true}, nil)
}

// AddLocationToList appends a location to a list. A location already in the
// list yields an error matching ErrConflict.
func (c *Client) AddLocationToList(ctx context.Context, listID string, loc NewListLocation) (List, error) {
	if err := requireID("list", listID); err != nil {
		return List{}, err
	}
	if err := loc.validate(); err != nil {
		return List{}, err
	}
	var list List
	r := request{method: http.MethodPost, path: []string{"lists", listID, "locations"}, body: loc.payload(), auth: true}
	err := c.do(ctx, r, &list)
	return list, err
}

// RemoveLocationFromList drops one location from a list.
func (c *Client) RemoveLocationFromList(ctx context.Context, listID, locationID string) error {
	if err := requireID("list", listID); err != nil {
		return err
	}
	if err := requireID("location", locationID); err != nil {
		return err
	}
	return c.do(ctx, request{method: http.MethodDelete, path: []string{"lists", listID, "locations", locationID}, auth: true}, nil)
}

// ReorderList stores a new location order for a list.
func (c *Client) ReorderList(ctx context.Context, listID string, orderedIDs []string) (List, error) {
	if err := requireID("list", listID); err != nil {
		return List{}, err
	}
	if len(orderedIDs) == 0 {
		return List{}, validationError(errors.New("ordered location ids are required"))
	}
	var list List
	r := request{
		method: http.MethodPut,
		path:   []string{"lists", listID, "reorder"},
		body:   map[string][]string{"orderedLocationIds": orderedIDs},
		auth:   true,
	}
	err := c.do(ctx, r, &list)
	return list, err
}

// SearchLists finds public lists by name.
func (c *Client) SearchLists(ctx context.Context, query string) ([]List, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	var body struct {
		Lists []List `json:"lists"`
	}
	r := request{method: http.MethodGet, path: []string{"lists", "search"}, query: url.Values{"q": {query}}}
	if err := c.do(ctx, r, &body); err != nil {
		return nil, err
	}
	return body.Lists, nil
}

// CreateListWithLocations creates a list and adds entries one at a time so
// the saved order matches the given order. Entries already in the list are
// skipped; any other failure aborts and is returned with the created list.
func (c *Client) CreateListWithLocations(ctx context.Context, in ListInput, entries []weather.Entry) (List, error) {
	created, err := c.CreateList(ctx, in)
	if err != nil {
		return List{}, err
	}

	for _, e := range entries {
		lon, lat := e.Longitude, e.Latitude
		_, err := c.AddLocationToList(ctx, created.ID, NewListLocation{
			Name:      e.Name,
			Longitude: &lon,
			Latitude:  &lat,
		})
		if IsDuplicate(err) {
			log.Debug().Str("list", created.ID).Str("name", e.Name).Msg("location already in list")
			continue
		}
		if err != nil {
			return created, fmt.Errorf("add %q to list %s: %w", e.Name, created.ID, err)
		}
	}
	return created, nil
}

func requireID(what, id string) error {
	if strings.TrimSpace(id) == "" {
		return validationError(fmt.Errorf("%s id is required", what))
	}
	return nil
}
