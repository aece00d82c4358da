package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// MaxBodyBytes bounds how much of any response is read into memory.
const MaxBodyBytes = 10 << 20

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
	Limiter *rate.Limiter
}

var (
	ErrRateLimited   = errors.New("rate limited")
	ErrCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// ResponseError carries a non-2xx response out of the circuit breaker with
// its body already drained.
type ResponseError struct {
	Status int
	Data   []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Status)
}

// Retryable reports whether the status is worth another attempt.
func (e *ResponseError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// breakerSuccess keeps client errors (4xx other than 429) from tripping the
// breaker: the upstream answered, the request was just wrong.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var re *ResponseError
	return errors.As(err, &re) && !re.Retryable()
}

// NewBreaker returns a circuit breaker with the settings every outbound
// client uses.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:         name,
		MaxRequests:  5,
		Interval:     1 * time.Minute,
		Timeout:      30 * time.Second,
		IsSuccessful: breakerSuccess,
	})
}

// DoRequestWithResilience executes the HTTP request through the rate limiter
// and circuit breaker. When retry is set, network failures, 429 and 5xx are
// retried with exponential backoff. Non-2xx responses come back as
// *ResponseError; a 2xx response is returned with its body unread.
func DoRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	retry bool,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
			}
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				defer resp.Body.Close()
				data, _ := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
				return nil, &ResponseError{Status: resp.StatusCode, Data: data}
			}
			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}

		var re *ResponseError
		if errors.As(err, &re) && !re.Retryable() {
			return nil, err
		}
		if !retry || attempt >= cfg.Backoff.MaxRetries || ctx.Err() != nil {
			return nil, err
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}
