package reqengine

import (
	"fmt"

	jperrors "github.com/JohnPlummer/jp-go-errors"
)

// Code is a stable, closed-set identifier for an engine failure kind
// (spec §7). Unlike Go's usual instanceof-free error handling, callers
// that need to branch on failure kind across process/serialization
// boundaries should switch on Code() rather than type-assert.
type Code string

const (
	CodeNetwork             Code = "NETWORK_ERROR"
	CodeTimeout             Code = "TIMEOUT_ERROR"
	CodeRetryExhausted      Code = "RETRY_EXHAUSTED"
	CodeCircuitOpen         Code = "CIRCUIT_OPEN"
	CodeResponseValidation  Code = "RESPONSE_VALIDATION_ERROR"
	CodeIntegrityViolation  Code = "INTEGRITY_VIOLATION"
	CodeDeterministicState  Code = "DETERMINISTIC_STATE_ERROR"
)

// EngineError is implemented by every member of the closed error
// taxonomy. Code is stable across releases; callers should prefer it to
// type assertions when classifying failures (spec §7's replacement for
// instanceof-based classification).
type EngineError interface {
	error
	Code() Code
}

// NetworkError represents a transport-level failure: the transport threw,
// the response was non-2xx/3xx, or the in-flight cap was exceeded before
// the transport was ever invoked.
type NetworkError struct {
	Message string
	Cause   error
}

func (e *NetworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *NetworkError) Unwrap() error { return e.Cause }
func (e *NetworkError) Code() Code    { return CodeNetwork }

// TimeoutError represents a per-attempt deadline that elapsed before the
// transport returned.
type TimeoutError struct {
	TimeoutMs int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %dms", e.TimeoutMs)
}
func (e *TimeoutError) Code() Code { return CodeTimeout }

// RetryExhaustedError wraps the final network or timeout failure when the
// retry loop exits with RetryConfig.MaxAttempts > 1, including when that
// failure was not retryable and only one attempt was made; Attempts is the
// number of attempts actually made. When RetryConfig.MaxAttempts <= 1 the
// original failure is returned directly, unwrapped (spec §7).
type RetryExhaustedError struct {
	Attempts  int
	LastError error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.LastError)
}
func (e *RetryExhaustedError) Unwrap() error { return e.LastError }
func (e *RetryExhaustedError) Code() Code    { return CodeRetryExhausted }

// CircuitOpenError is returned when the circuit breaker rejects an
// attempt before the transport is invoked. Cause carries the underlying
// jp-go-errors.CircuitBreakerError with counts, the same way
// CircuitBreakerWrapper.Execute classifies gobreaker's sentinel errors.
type CircuitOpenError struct {
	Cause error
}

func (e *CircuitOpenError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("circuit breaker open: %v", e.Cause)
	}
	return "circuit breaker open"
}
func (e *CircuitOpenError) Unwrap() error { return e.Cause }
func (e *CircuitOpenError) Code() Code    { return CodeCircuitOpen }

// ResponseValidationError is raised when a caller-supplied Validator
// rejects an otherwise-successful response in strict client mode. It is a
// post-success assertion, not a transport failure: it never counts as a
// breaker failure and never triggers a retry (spec §4.8, testable
// property #7).
type ResponseValidationError struct {
	Message          string
	ValidationErrors []error
	Cause            error
}

func (e *ResponseValidationError) Error() string {
	return fmt.Sprintf("response validation failed: %s", e.Message)
}
func (e *ResponseValidationError) Unwrap() error { return e.Cause }
func (e *ResponseValidationError) Code() Code    { return CodeResponseValidation }

// IntegrityViolationError is raised when an idempotency key is reused
// with a body whose fingerprint differs from the one originally pinned
// to that key.
type IntegrityViolationError struct {
	Message string
	Key     string
}

func (e *IntegrityViolationError) Error() string { return e.Message }
func (e *IntegrityViolationError) Code() Code     { return CodeIntegrityViolation }

// DeterministicStateError signals an illegal StateMachine transition — a
// bug surface, never an expected runtime condition.
type DeterministicStateError struct {
	From State
	To   State
}

func (e *DeterministicStateError) Error() string {
	return fmt.Sprintf("illegal state transition: %s -> %s", e.From, e.To)
}
func (e *DeterministicStateError) Code() Code { return CodeDeterministicState }

// CancelledError is raised when the caller's external context is done
// before or during a request, winning the tie over a concurrently
// elapsing per-attempt deadline (spec §5). It is not part of the closed
// error-code taxonomy in §7 — cancellation is represented by state
// CANCELLED, not by a retryable/non-retryable failure code — but it
// still implements EngineError for uniform handling by callers.
type CancelledError struct {
	Cause error
}

func (e *CancelledError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("request cancelled: %v", e.Cause)
	}
	return "request cancelled"
}
func (e *CancelledError) Unwrap() error { return e.Cause }
func (e *CancelledError) Code() Code    { return "CANCELLED" }

// wrapBreakerRejection classifies a gobreaker sentinel error into a
// jp-go-errors CircuitBreakerError the way CircuitBreakerWrapper.Execute
// does, then wraps it as a CircuitOpenError.
func wrapBreakerRejection(state string, counts jperrors.CircuitCounts, cause error) *CircuitOpenError {
	msg := "request rejected"
	if state == "half-open" {
		msg = "too many requests in half-open state"
	}
	return &CircuitOpenError{
		Cause: jperrors.NewCircuitBreakerError(
			msg,
			"check",
			state,
			jperrors.WithCause(cause),
			jperrors.WithCounts(counts),
		),
	}
}
