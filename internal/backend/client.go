package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/tripcast/internal/common"
)

// DefaultTimeout bounds every backend call unless configured otherwise.
const DefaultTimeout = 15 * time.Second

const (
	msgTimeout  = "Request timed out. Please try again."
	msgCanceled = "Request cancelled"
)

var (
	errDeadline = errors.New("backend request deadline exceeded")
	errNoBase   = errors.New("backend base URL not configured")
)

var validate = validator.New()

// BackoffConfig controls how GET requests are retried.
type BackoffConfig = common.BackoffConfig

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64
	RateBurst  int
	Backoff    BackoffConfig
	HTTPClient *http.Client
}

// Client talks to the trip planner REST backend.
type Client struct {
	baseURL string
	timeout time.Duration
	httpCfg common.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// New creates a Client. A zero RateLimit disables client-side throttling.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Backoff.InitialInterval <= 0 {
		cfg.Backoff = BackoffConfig{
			MaxRetries:      2,
			InitialInterval: 300 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
		httpCfg: common.HTTPClientConfig{
			Client:  cfg.HTTPClient,
			Backoff: cfg.Backoff,
			Limiter: limiter,
		},
		circuit: common.NewBreaker("tripcast-backend"),
	}
}

type request struct {
	method string
	path   []string
	query  url.Values
	body   any
	auth   bool
}

func (c *Client) url(r request) string {
	u := common.JoinURL(c.baseURL, r.path...)
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	return u
}

// do performs one call and decodes a JSON response into out, which may be nil.
// Only GET requests are retried.
func (c *Client) do(ctx context.Context, r request, out any) error {
	if c.baseURL == "" {
		return &APIError{Kind: KindNetwork, Message: errNoBase.Error(), cause: errNoBase}
	}

	target := c.url(r)

	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = json.Marshal(r.body); err != nil {
			return fmt.Errorf("backend: encode %s body: %w", r.method, err)
		}
	}

	token := TokenFrom(ctx)
	if r.auth && token == "" {
		return &APIError{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: "sign in required", Method: r.method, URL: target}
	}

	callCtx, cancel := context.WithTimeoutCause(ctx, c.timeout, errDeadline)
	defer cancel()

	buildRequest := func() (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequest(r.method, target, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return req, nil
	}

	started := time.Now()
	resp, err := common.DoRequestWithResilience(callCtx, c.httpCfg, c.circuit, r.method == http.MethodGet, buildRequest)
	if err != nil {
		apiErr := c.classify(ctx, callCtx, r.method, target, err)
		log.Debug().Err(err).Str("method", r.method).Str("url", target).
			Str("kind", apiErr.Kind.String()).Dur("elapsed", time.Since(started)).Msg("backend call failed")
		return apiErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, common.MaxBodyBytes))
	if err != nil {
		return c.classify(ctx, callCtx, r.method, target, err)
	}

	log.Debug().Str("method", r.method).Str("url", target).Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).Msg("backend call")

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &APIError{
			Kind:    KindDecode,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("decode response: %v", err),
			Method:  r.method,
			URL:     target,
			Data:    data,
			cause:   err,
		}
	}
	return nil
}

// classify turns a transport failure into an APIError. Our own deadline is a
// timeout; the caller's cancellation is a cancel, whatever the transport said.
func (c *Client) classify(parent, callCtx context.Context, method, target string, err error) *APIError {
	var re *common.ResponseError
	switch {
	case errors.As(err, &re):
		return statusError(method, target, re.Status, re.Data)
	case parent.Err() != nil:
		return &APIError{Kind: KindCanceled, Message: msgCanceled, Method: method, URL: target, cause: err}
	case errors.Is(context.Cause(callCtx), errDeadline):
		return &APIError{Kind: KindTimeout, Status: http.StatusRequestTimeout, Message: msgTimeout, Method: method, URL: target, cause: err}
	case errors.Is(err, common.ErrCircuitOpen), errors.Is(err, common.ErrRateLimited):
		return &APIError{Kind: KindUnavailable, Status: http.StatusServiceUnavailable, Message: err.Error(), Method: method, URL: target, cause: err}
	default:
		return &APIError{Kind: KindNetwork, Message: err.Error(), Method: method, URL: target, cause: err}
	}
}

func check(input any) error {
	if err := validate.Struct(input); err != nil {
		return validationError(err)
	}
	return nil
}
