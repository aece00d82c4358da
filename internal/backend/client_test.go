package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/tripcast/internal/weather"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := New(Config{
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
		Backoff: BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
	})
	return c, &hits
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestForecast(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/locations/weather", r.URL.Path)
		assert.Equal(t, "-120.18", r.URL.Query().Get("lon"))
		assert.Equal(t, "39.33", r.URL.Query().Get("lat"))
		writeJSON(w, http.StatusOK, map[string]any{
			"location": map[string]any{
				"forecast": []map[string]any{
					{"startTime": "2024-01-01T06:00:00-08:00", "isDaytime": true, "temperature": 31, "shortForecast": "Snow"},
				},
			},
		})
	})

	periods, err := c.Forecast(context.Background(), -120.18, 39.33)

	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, "Snow", periods[0].ShortForecast)
	assert.True(t, periods[0].IsDaytime)
}

func TestForecast_EmptyIsNoForecasts(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"location": map[string]any{"forecast": []any{}}})
	})

	_, err := c.Forecast(context.Background(), 1, 1)

	assert.ErrorIs(t, err, weather.ErrNoForecasts)
}

func TestForecastBatch_FieldVariants(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "wrapped short names",
			body: `{"results":[{"name":"Reno","lon":-119.8,"lat":39.5,"forecast":[{"startTime":"2024-01-01T06:00:00Z","isDaytime":true}]}]}`,
		},
		{
			name: "wrapped long names",
			body: `{"results":[{"name":"Reno","longitude":-119.8,"latitude":39.5,"forecast":[{"startTime":"2024-01-01T06:00:00Z","isDaytime":true}]}]}`,
		},
		{
			name: "bare array",
			body: `[{"name":"Reno","lon":-119.8,"latitude":39.5,"forecast":[{"startTime":"2024-01-01T06:00:00Z","isDaytime":true}]}]`,
		},
		{
			name: "name only falls back to requested coordinates",
			body: `{"results":[{"name":"reno","forecast":[{"startTime":"2024-01-01T06:00:00Z","isDaytime":true}]}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/locations/weather/batch", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, tt.body)
			})

			results, err := c.ForecastBatch(context.Background(), []weather.LocationRef{weather.NewRef("Reno", -119.8, 39.5)})

			require.NoError(t, err)
			require.Len(t, results, 1)
			lon, lat := results[0].Ref.Coords()
			assert.Equal(t, -119.8, lon)
			assert.Equal(t, 39.5, lat)
			assert.Len(t, results[0].Forecast, 1)
		})
	}
}

func TestForecastBatch_SameNameKeepsIDs(t *testing.T) {
	il := weather.NewRef("Springfield", -89.65, 39.8)
	il.ID = "loc-IL"
	mo := weather.NewRef("Springfield", -93.29, 37.21)
	mo.ID = "loc-MO"
	forecast := `[{"startTime":"2024-01-01T06:00:00Z","isDaytime":true}]`

	t.Run("coordinates pick the request", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"results":[`+
				`{"name":"Springfield","lon":-89.65,"lat":39.8,"forecast":`+forecast+`},`+
				`{"name":"Springfield","lon":-93.29,"lat":37.21,"forecast":`+forecast+`}]}`)
		})

		results, err := c.ForecastBatch(context.Background(), []weather.LocationRef{il, mo})

		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "loc-IL", results[0].Ref.ID)
		assert.Equal(t, "loc-MO", results[1].Ref.ID)
	})

	t.Run("ambiguous name only result is dropped", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"results":[{"name":"Springfield","forecast":`+forecast+`}]}`)
		})

		results, err := c.ForecastBatch(context.Background(), []weather.LocationRef{il, mo})

		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("unknown coordinates carry no id", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"results":[{"name":"Springfield","lon":10,"lat":10,"forecast":`+forecast+`}]}`)
		})

		results, err := c.ForecastBatch(context.Background(), []weather.LocationRef{il, mo})

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Empty(t, results[0].Ref.ID)
	})
}

func TestForecastBatch_SendsLocations(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Locations []batchLocation `json:"locations"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []batchLocation{{Name: "A", Lat: 2, Lon: 1}, {Name: "B", Lat: 4, Lon: 3}}, body.Locations)
		writeJSON(w, http.StatusOK, map[string]any{"results": []any{}})
	})

	results, err := c.ForecastBatch(context.Background(), []weather.LocationRef{
		weather.NewRef("A", 1, 2),
		weather.NewRef("B", 3, 4),
	})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
		kind    Kind
	}{
		{name: "err field wins", status: http.StatusBadRequest, body: `{"err":"bad name","message":"ignored"}`, message: "bad name", kind: KindValidation},
		{name: "message field", status: http.StatusNotFound, body: `{"message":"List not found"}`, message: "List not found", kind: KindNotFound},
		{name: "plain text", status: http.StatusForbidden, body: "nope", message: "nope", kind: KindUnauthorized},
		{name: "empty body", status: http.StatusTeapot, body: "", message: "Request failed: 418", kind: KindStatus},
		{name: "json without fields", status: http.StatusTeapot, body: `{}`, message: "Request failed: 418", kind: KindStatus},
		{name: "conflict", status: http.StatusConflict, body: `{"err":"duplicate"}`, message: "duplicate", kind: KindConflict},
		{name: "duplicate message on 400", status: http.StatusBadRequest, body: `{"err":"Location already in this list"}`, message: "Location already in this list", kind: KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			err := c.do(context.Background(), request{method: http.MethodPost, path: []string{"lists"}}, nil)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.Status)
		})
	}
}

func TestTimeout(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: 30 * time.Millisecond})

	_, err := c.Forecast(context.Background(), 1, 1)

	require.ErrorIs(t, err, ErrTimeout)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusRequestTimeout, apiErr.Status)
	assert.Equal(t, "Request timed out. Please try again.", apiErr.Message)
}

func TestCanceled(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := c.Forecast(ctx, 1, 1)

	require.ErrorIs(t, err, ErrCanceled)
	assert.NotErrorIs(t, err, ErrTimeout)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 0, apiErr.Status)
	assert.Equal(t, "Request cancelled", apiErr.Message)
}

func TestRetry_OnlyGET(t *testing.T) {
	t.Run("GET retries server errors", func(t *testing.T) {
		var calls int32
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"places": []map[string]any{{"place_id": 42, "name": "Truckee", "latitude": 39.3, "longitude": -120.2}}})
		})

		places, err := c.SearchPlaces(context.Background(), "truckee")

		require.NoError(t, err)
		require.Len(t, places, 1)
		assert.Equal(t, FlexID("42"), places[0].ID)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("POST is not retried", func(t *testing.T) {
		c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := c.ForecastBatch(context.Background(), []weather.LocationRef{weather.NewRef("A", 1, 1)})

		require.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		_, err := c.GetList(context.Background(), "abc")

		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	})
}

func TestAuthHeader(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, []List{{ID: "1", Name: "Tahoe"}})
	})

	_, err := c.MyLists(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))

	lists, err := c.MyLists(WithToken(context.Background(), "tok"))
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "Tahoe", lists[0].Name)
}

func TestValidationBeforeNetwork(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx := WithToken(context.Background(), "tok")

	_, err := c.CreateList(ctx, ListInput{Name: ""})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = c.AddLocationToList(ctx, "list", NewListLocation{Name: "nowhere"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = c.CreateComment(ctx, "list", CommentInput{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = c.SearchPlaces(ctx, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestLocationByCoords(t *testing.T) {
	t.Run("null means none", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/locations/by-coords", r.URL.Path)
			_, _ = io.WriteString(w, "null")
		})

		loc, err := c.LocationByCoords(context.Background(), 1, 2)

		require.NoError(t, err)
		assert.Nil(t, loc)
	})

	t.Run("found", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, SavedLocation{ID: "loc1", Name: "Reno", Longitude: 1, Latitude: 2})
		})

		loc, err := c.LocationByCoords(context.Background(), 1, 2)

		require.NoError(t, err)
		require.NotNil(t, loc)
		assert.Equal(t, "loc1", loc.Ref().ID)
	})
}

func TestCreateListWithLocations_KeepsOrder(t *testing.T) {
	var mu sync.Mutex
	var added []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/lists":
			writeJSON(w, http.StatusCreated, List{ID: "L1", Name: "Trip"})
		case "/lists/L1/locations":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			name := body["name"].(string)
			if name == "Dup" {
				writeJSON(w, http.StatusConflict, map[string]string{"err": "Location already in this list"})
				return
			}
			mu.Lock()
			added = append(added, name)
			mu.Unlock()
			writeJSON(w, http.StatusOK, List{ID: "L1"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	entries := []weather.Entry{
		{Name: "First", Longitude: 1, Latitude: 1},
		{Name: "Dup", Longitude: 2, Latitude: 2},
		{Name: "Second", Longitude: 3, Latitude: 3},
	}

	list, err := c.CreateListWithLocations(WithToken(context.Background(), "tok"), ListInput{Name: "Trip"}, entries)

	require.NoError(t, err)
	assert.Equal(t, "L1", list.ID)
	assert.Equal(t, []string{"First", "Second"}, added)
}

func TestDecodeToken(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"payload":{"_id":"u1","username":"ada"},"iat":1}`))

	user, err := DecodeToken("hdr." + payload + ".sig")
	require.NoError(t, err)
	assert.Equal(t, User{ID: "u1", Username: "ada"}, user)

	_, err = DecodeToken("not-a-token")
	assert.ErrorIs(t, err, ErrMalformedToken)

	_, err = DecodeToken("a.!!!.c")
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestSignIn(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"payload":{"_id":"u1","username":"ada"}}`))
	token := "hdr." + payload + ".sig"

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/sign-in", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	})

	session, err := c.SignIn(context.Background(), Credentials{Username: "ada", Password: "secret1"})

	require.NoError(t, err)
	assert.Equal(t, token, session.Token)
	assert.Equal(t, "ada", session.User.Username)
}

func TestIsDuplicate(t *testing.T) {
	assert.True(t, IsDuplicate(&APIError{Kind: KindConflict}))
	assert.True(t, IsDuplicate(&APIError{Kind: KindStatus, Message: "Those coordinates are already saved"}))
	assert.False(t, IsDuplicate(&APIError{Kind: KindStatus, Message: "server exploded"}))
	assert.False(t, IsDuplicate(nil))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "network", err: &APIError{Kind: KindNetwork}, want: true},
		{name: "timeout", err: &APIError{Kind: KindTimeout}, want: true},
		{name: "breaker open", err: &APIError{Kind: KindUnavailable}, want: true},
		{name: "server error", err: &APIError{Kind: KindStatus, Status: 502}, want: true},
		{name: "not found", err: &APIError{Kind: KindNotFound, Status: 404}, want: false},
		{name: "canceled", err: &APIError{Kind: KindCanceled}, want: false},
		{name: "foreign", err: weather.ErrNoForecasts, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
