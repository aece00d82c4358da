package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/i474232898/tripcast/internal/common"
)

// Kind classifies a failed backend call so callers can pick their wording
// without parsing messages.
type Kind int

const (
	KindNetwork Kind = iota
	KindTimeout
	KindCanceled
	KindUnavailable
	KindStatus
	KindConflict
	KindNotFound
	KindUnauthorized
	KindValidation
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	case KindUnavailable:
		return "unavailable"
	case KindStatus:
		return "status"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

var (
	ErrTimeout      = errors.New("backend: request timed out")
	ErrCanceled     = errors.New("backend: request cancelled")
	ErrUnavailable  = errors.New("backend: temporarily unavailable")
	ErrConflict     = errors.New("backend: already exists")
	ErrNotFound     = errors.New("backend: not found")
	ErrUnauthorized = errors.New("backend: unauthorized")
	ErrValidation   = errors.New("backend: invalid input")
)

// APIError describes one failed backend call.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	Method  string
	URL     string
	Data    []byte

	cause error
}

func (e *APIError) Error() string {
	if e.Method == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// Is maps error kinds onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrCanceled:
		return e.Kind == KindCanceled
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}

// KindOf extracts the Kind of err, KindNetwork for foreign errors.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindNetwork
}

// IsDuplicate reports whether err means "already in this list": a 409, or
// a message saying so for backends that answer duplicates with 400.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already") && common.HasAny(msg, "list", "coordinates")
}

// IsTransient reports whether err means the backend could not answer at all,
// as opposed to answering with a refusal.
func IsTransient(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case KindNetwork, KindTimeout, KindUnavailable:
		return true
	case KindStatus:
		return apiErr.Status >= http.StatusInternalServerError
	}
	return false
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusConflict:
		return KindConflict
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindStatus
	}
}

// errorMessage prefers the API-provided "err" then "message" fields, then a
// non-empty text body, then a generic status line.
func errorMessage(data []byte, status int) string {
	var body struct {
		Err     string `json:"err"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Err != "" {
			return body.Err
		}
		if body.Message != "" {
			return body.Message
		}
		return fmt.Sprintf("Request failed: %d", status)
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	return fmt.Sprintf("Request failed: %d", status)
}

func statusError(method, url string, status int, data []byte) *APIError {
	msg := errorMessage(data, status)
	kind := kindForStatus(status)
	if kind == KindValidation && IsDuplicate(errors.New(msg)) {
		kind = KindConflict
	}
	return &APIError{
		Kind:    kind,
		Status:  status,
		Message: msg,
		Method:  method,
		URL:     url,
		Data:    data,
	}
}

func validationError(err error) *APIError {
	return &APIError{Kind: KindValidation, Message: err.Error(), cause: err}
}
