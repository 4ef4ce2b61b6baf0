package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
)

var (
	// ErrProviderUnavailable matches every call rejected by an open circuit.
	ErrProviderUnavailable = eris.New("provider unavailable: circuit open")

	// ErrBudgetExceeded marks a call skipped because its declared cost does
	// not fit in the remaining campaign budget. It is a routing decision,
	// not a provider failure.
	ErrBudgetExceeded = eris.New("provider call skipped: budget exceeded")
)

// UnavailableError is returned by an open breaker without a network call.
type UnavailableError struct {
	Provider string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("provider %s unavailable: circuit open", e.Provider)
}

// Is makes errors.Is(err, ErrProviderUnavailable) hold.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrProviderUnavailable
}

// ProviderCallError is a failed provider call: timeout, non-2xx or a
// malformed response.
type ProviderCallError struct {
	Provider   string
	Operation  string
	StatusCode int
	Err        error
}

func (e *ProviderCallError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Operation, e.Err)
}

func (e *ProviderCallError) Unwrap() error { return e.Err }

// NewProviderCallError wraps err as a failed call of provider.operation.
func NewProviderCallError(provider, operation string, statusCode int, err error) *ProviderCallError {
	if err == nil {
		err = eris.New("unexpected response")
	}
	return &ProviderCallError{Provider: provider, Operation: operation, StatusCode: statusCode, Err: err}
}

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// CountsAsFailure reports whether err should count against a provider's
// breaker. Budget skips and caller cancellation are not the provider's fault;
// deadline expiry on the per-call timeout is.
func CountsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBudgetExceeded) || errors.Is(err, ErrProviderUnavailable) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var pe *ProviderCallError
	if errors.As(err, &pe) && IsTransientHTTPStatus(pe.StatusCode) {
		return true
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

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
