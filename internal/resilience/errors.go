package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

// TransientError marks an error as safe to retry (429, 5xx, network faults).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// BackendTimeoutError reports that a call to an embedding or generation
// backend exceeded its time bound.
type BackendTimeoutError struct {
	Backend string
	Timeout time.Duration
	Err     error
}

func (e *BackendTimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s: timed out after %s", e.Backend, e.Timeout)
	}
	return fmt.Sprintf("%s: timed out", e.Backend)
}

func (e *BackendTimeoutError) Unwrap() error { return e.Err }

// BackendUnavailableError reports a transient service fault (network error,
// throttling, 5xx, open circuit) from an embedding or generation backend.
type BackendUnavailableError struct {
	Backend    string
	StatusCode int
	Err        error
}

func (e *BackendUnavailableError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: unavailable (status %d): %v", e.Backend, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: unavailable: %v", e.Backend, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"server closed idle connection",
	"transport connection broken",
	"connection refused",
}

// IsTransient reports whether err (or anything in its chain) is a transient
// fault: an explicit TransientError, a BackendUnavailableError, a connection
// level syscall error, or a known transport failure message.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ue *BackendUnavailableError
	if errors.As(err, &ue) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether an HTTP status indicates a transient
// server-side condition.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var bt *BackendTimeoutError
	if errors.As(err, &bt) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "i/o timeout")
}

// Classify maps a raw backend error onto the typed backend taxonomy.
// Timeouts become BackendTimeoutError, transient faults become
// BackendUnavailableError, and anything else is returned unchanged.
func Classify(backend string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	var bt *BackendTimeoutError
	var bu *BackendUnavailableError
	if errors.As(err, &bt) || errors.As(err, &bu) {
		return err
	}
	if IsTimeout(err) {
		return &BackendTimeoutError{Backend: backend, Timeout: timeout, Err: err}
	}
	if errors.Is(err, ErrCircuitOpen) {
		return &BackendUnavailableError{Backend: backend, Err: err}
	}
	if IsTransient(err) {
		status := 0
		var te *TransientError
		if errors.As(err, &te) {
			status = te.StatusCode
		}
		return &BackendUnavailableError{Backend: backend, StatusCode: status, Err: err}
	}
	return err
}
