package resilience

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
)

// Class is the retry classification of a failed provider call.
type Class int

const (
	// Transient failures may succeed on retry (network error, 5xx, timeout).
	Transient Class = iota
	// RateLimited failures are throttling signals; retry after a cooldown.
	RateLimited
	// Permanent failures will not succeed on retry (no data, missing input).
	Permanent
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case RateLimited:
		return "rate_limited"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ProviderError is a failure from an external collaborator carrying an
// explicit classification set at the call site.
type ProviderError struct {
	Class      Class
	Provider   string
	StatusCode int
	// RetryAt, when set on a RateLimited error, overrides the default cooldown.
	RetryAt time.Time
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return e.Err.Error()
	}
	return e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewPermanent classifies err as permanent.
func NewPermanent(provider string, err error) *ProviderError {
	return &ProviderError{Class: Permanent, Provider: provider, Err: err}
}

// NewRateLimited classifies err as a throttling signal.
func NewRateLimited(provider string, err error) *ProviderError {
	return &ProviderError{Class: RateLimited, Provider: provider, StatusCode: http.StatusTooManyRequests, Err: err}
}

// NewTransient classifies err as retryable with an optional HTTP status code.
func NewTransient(provider string, err error, statusCode int) *ProviderError {
	return &ProviderError{Class: Transient, Provider: provider, StatusCode: statusCode, Err: err}
}

// ErrNoData is the permanent "provider has nothing for this input" failure.
var ErrNoData = eris.New("no data found")

// NoData returns a permanent ErrNoData failure for provider.
func NoData(provider string) *ProviderError {
	return NewPermanent(provider, ErrNoData)
}

// FromHTTPStatus classifies a non-2xx HTTP response.
// 429 is rate-limited, 404 and other 4xx are permanent, the rest transient.
func FromHTTPStatus(provider string, statusCode int, body string) *ProviderError {
	if len(body) > 200 {
		body = body[:200]
	}
	err := eris.Errorf("http %d: %s", statusCode, body)
	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimited(provider, err)
	case statusCode == http.StatusNotFound:
		return NewPermanent(provider, eris.Wrap(ErrNoData, err.Error()))
	case IsTransientHTTPStatus(statusCode):
		return NewTransient(provider, err, statusCode)
	case statusCode >= 400 && statusCode < 500:
		p := NewPermanent(provider, err)
		p.StatusCode = statusCode
		return p
	default:
		return NewTransient(provider, err, statusCode)
	}
}

// Classify returns the classification of err. Explicitly classified errors
// win; everything else is treated as transient.
func Classify(err error) Class {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return Transient
}

// RetryAt returns the explicit retry time carried by a rate-limited error.
func RetryAt(err error) (time.Time, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Class == RateLimited && !pe.RetryAt.IsZero() {
		return pe.RetryAt, true
	}
	return time.Time{}, false
}

// IsTransient reports whether an in-call retry may help: a transient
// ProviderError or a network-level failure. Rate-limited and permanent
// errors are never retried in-call; the queue owns their schedule.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class == Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus returns true for server-side statuses safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
