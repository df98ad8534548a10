package reqengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// Do executes one logical call end to end: dedup gate, state machine,
// retry loop, circuit breaker, timeout harness, idempotency/integrity
// enforcement, metrics, hooks, and tracing (spec §4.8). T is the decoded
// response payload type; validator may be nil, in which case the response
// is decoded with the package's default JSON/text rules.
//
// Do never panics on a hook failure, never leaks a goroutine past the
// caller's context, and resolves cancellation-vs-timeout ties in favor of
// cancellation (spec §5).
func Do[T any](ctx context.Context, c *Client, desc RequestDescriptor, validator Validator[T]) (resp *Response[T], err error) {
	resolvedURL := resolveURL(c.config.BaseURL, desc.URL)
	requestID := newRequestID()

	bodyBytes, berr := serializeBody(desc.Body)
	if berr != nil {
		return nil, &NetworkError{Message: "failed to serialize request body", Cause: berr}
	}
	if desc.Method.hasNoBody() {
		bodyBytes = nil
	}

	var dedupeOwnerKey string
	if Eligible(c.config.DedupeEnabled, desc.Method, c.config.Retry) {
		key := dedupeKey(desc.Method, resolvedURL, Fingerprint(bodyBytes))
		entry, owner := c.dedupe.GetOrCreate(key)
		if !owner {
			result, waitErr := entry.Wait()
			if waitErr != nil {
				return nil, waitErr
			}
			shared, ok := result.(*Response[T])
			if !ok {
				return nil, &NetworkError{Message: "dedup sharing type mismatch for " + key}
			}
			return shared, nil
		}
		dedupeOwnerKey = key
		defer func() {
			c.dedupe.Settle(dedupeOwnerKey, resp, err)
		}()
	}

	sm := NewStateMachine()
	if terr := sm.Transition(StatePending); terr != nil {
		return nil, terr
	}

	effectiveTimeout := c.config.Timeout
	if desc.TimeoutMs != nil {
		effectiveTimeout = *desc.TimeoutMs
	}

	attempt := 0
	hookCtx := func() HookContext {
		return HookContext{Method: desc.Method, URL: resolvedURL, Attempt: attempt, RequestID: requestID}
	}

	backoff := asGoRetryBackoff(c.config.Retry)

	runErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		c.recordAttempt(attempt > 1)

		if attempt > 1 {
			if terr := sm.Transition(StatePending); terr != nil {
				return terr
			}
		}

		if int(c.inFlight.Load()) >= MaxConcurrentRequests {
			capErr := &NetworkError{Message: "max concurrent requests exceeded"}
			return c.finishAttempt(sm, hookCtx(), nil, capErr, attempt)
		}

		done, checkErr := c.breaker.Check()
		if checkErr != nil {
			c.hooks.circuitOpen(hookCtx())
			if terr := sm.Transition(StateError); terr != nil {
				return terr
			}
			c.recordOutcome(false, checkErr)
			return checkErr
		}

		c.hooks.beforeRequest(hookCtx())

		attemptCtx, cancel := context.WithTimeout(ctx, effectiveTimeout)
		defer cancel()

		headers := buildHeaders(c, desc, requestID)
		effectiveBody := bodyBytes

		if c.config.ProtocolMode == ProtocolIdempotent {
			idemKey := desc.IdempotencyKey
			if idemKey == "" {
				idemKey = newIdempotencyKey()
			}
			headers["Idempotency-Key"] = idemKey

			if len(effectiveBody) > 0 {
				fingerprint, ierr := c.integrity.Enforce(idemKey, effectiveBody)
				if ierr != nil {
					done(true) // pre-flight rejection, not a transport outcome (spec §4.6)
					if terr := sm.Transition(StateError); terr != nil {
						return terr
					}
					c.hooks.onError(hookCtx(), ierr)
					c.recordOutcome(false, ierr)
					return ierr
				}
				headers["X-Payload-Hash"] = fingerprint
			}
		}

		spanCtx, span := startSpan(attemptCtx, c.config.Tracer, "reqengine.attempt")
		start := time.Now()
		c.inFlight.Add(1)
		tresp, terr := c.config.Transport.Do(spanCtx, &TransportRequest{
			Method:  desc.Method,
			URL:     resolvedURL,
			Headers: headers,
			Body:    effectiveBody,
		})
		c.inFlight.Add(-1)
		latencyMs := time.Since(start).Milliseconds()

		if ctxErr := attemptCtx.Err(); ctxErr != nil {
			endSpan(span, nil, requestID, attempt)
			if errors.Is(ctx.Err(), context.Canceled) {
				done(false)
				cancelErr := &CancelledError{Cause: ctx.Err()}
				c.recordMetrics(requestID, resolvedURL, desc.Method, latencyMs, attempt, nil, false)
				if terr := sm.Transition(StateCancelled); terr != nil {
					return terr
				}
				c.hooks.cancel(hookCtx())
				c.recordOutcome(false, cancelErr)
				return cancelErr
			}

			done(false)
			timeoutErr := &TimeoutError{TimeoutMs: effectiveTimeout.Milliseconds()}
			c.recordMetrics(requestID, resolvedURL, desc.Method, latencyMs, attempt, nil, false)
			return c.finishAttempt(sm, hookCtx(), nil, timeoutErr, attempt)
		}

		if terr != nil {
			endSpan(span, nil, requestID, attempt)
			done(false)
			netErr := &NetworkError{Message: "transport error", Cause: terr}
			c.recordMetrics(requestID, resolvedURL, desc.Method, latencyMs, attempt, nil, false)
			return c.finishAttempt(sm, hookCtx(), nil, netErr, attempt)
		}

		status := tresp.StatusCode
		if status < 200 || status >= 400 {
			endSpan(span, &status, requestID, attempt)
			done(false)
			netErr := &NetworkError{Message: fmt.Sprintf("unexpected status code %d", status)}
			c.recordMetrics(requestID, resolvedURL, desc.Method, latencyMs, attempt, &status, false)
			return c.finishAttempt(sm, hookCtx(), &status, netErr, attempt)
		}

		done(true)
		endSpan(span, &status, requestID, attempt)
		c.recordMetrics(requestID, resolvedURL, desc.Method, latencyMs, attempt, &status, true)

		data, decodeErr := decodeResponse(validator, c.config.ClientMode, tresp)
		if decodeErr != nil {
			if terr := sm.Transition(StateError); terr != nil {
				return terr
			}
			valErr := &ResponseValidationError{Message: decodeErr.Error(), Cause: decodeErr}
			c.hooks.onError(hookCtx(), valErr)
			c.recordOutcome(false, valErr)
			return valErr
		}

		if terr := sm.Transition(StateSuccess); terr != nil {
			return terr
		}
		c.hooks.afterResponse(hookCtx(), status, latencyMs)
		c.recordOutcome(true, nil)

		resp = &Response[T]{
			Data:      data,
			Status:    status,
			Headers:   lowercaseHeaders(tresp.Headers),
			RequestID: requestID,
			Attempt:   attempt,
			LatencyMs: latencyMs,
		}
		return nil
	})

	if runErr == nil {
		return resp, nil
	}

	var netErr *NetworkError
	var toErr *TimeoutError
	var cancelledErr *CancelledError
	switch {
	case errors.As(runErr, &netErr):
		return nil, wrapExhaustion(attempt, c.config.Retry.MaxAttempts, netErr)
	case errors.As(runErr, &toErr):
		return nil, wrapExhaustion(attempt, c.config.Retry.MaxAttempts, toErr)
	case errors.As(runErr, &cancelledErr):
		// Cancellation observed inside an attempt: the callback already
		// transitioned the state machine, fired the cancel hook and
		// recorded the outcome.
		return nil, cancelledErr
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		// retry.Do's own backoff sleep observed the caller's context done
		// without our callback ever running again; our callback never saw
		// this attempt, so the state machine and cancel hook haven't fired.
		if terr := sm.Transition(StateCancelled); terr == nil {
			c.hooks.cancel(hookCtx())
		}
		cancelErr := &CancelledError{Cause: runErr}
		c.recordOutcome(false, cancelErr)
		return nil, cancelErr
	default:
		return nil, runErr
	}
}

// finishAttempt classifies a failed attempt that received no response (or a
// non-2xx/3xx one), deciding between "retry" and "terminal" the way spec
// §4.8 steps i/6 do, and firing the matching hook and state transition. It
// is shared by the in-flight-cap, timeout, transport-exception, and
// bad-status branches, which differ only in statusCode and the error value.
func (c *Client) finishAttempt(sm *StateMachine, hctx HookContext, statusCode *int, failure error, attempt int) error {
	if shouldRetry(c.config.Retry, statusCode, attempt) {
		if terr := sm.Transition(StateRetrying); terr != nil {
			return terr
		}
		c.hooks.retry(hctx, failure)
		return retry.RetryableError(failure)
	}

	if terr := sm.Transition(StateError); terr != nil {
		return terr
	}
	c.hooks.onError(hctx, failure)
	c.recordOutcome(false, failure)
	return failure
}

// recordMetrics writes one Sample to the client's MetricsBuffer (spec §4.7).
func (c *Client) recordMetrics(requestID, url string, method Method, latencyMs int64, attempt int, status *int, success bool) {
	c.metrics.Record(Sample{
		RequestID: requestID,
		URL:       url,
		Method:    method,
		LatencyMs: latencyMs,
		Attempt:   attempt,
		Status:    status,
		Success:   success,
		Timestamp: time.Now(),
	})
}

// wrapExhaustion applies spec §7's propagation policy: the raw failure
// propagates unwrapped when retrying was never possible (maxAttempts <= 1),
// otherwise it is wrapped in *RetryExhaustedError carrying the attempt count.
func wrapExhaustion(attempts, maxAttempts int, last EngineError) error {
	if maxAttempts <= 1 {
		return last
	}
	return &RetryExhaustedError{Attempts: attempts, LastError: last}
}

// buildHeaders composes headers in spec §4.8 step e's order: a fixed
// Content-Type and X-Request-Id base, then the client's default headers,
// then the request's own headers — each layer overriding the last on name
// collision.
func buildHeaders(c *Client, desc RequestDescriptor, requestID string) map[string]string {
	headers := map[string]string{
		"Content-Type": "application/json",
		"X-Request-Id": requestID,
	}
	for k, v := range c.config.DefaultHeaders {
		headers[k] = v
	}
	for k, v := range desc.Headers {
		headers[k] = v
	}
	return headers
}

// lowercaseHeaders normalizes header names to lowercase for Response
// (spec §3: "header mapping (lowercase keys)"). Transports built on
// net/http hand back canonical Title-Case keys; the engine, not each
// transport, is responsible for the documented contract.
func lowercaseHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[strings.ToLower(k)] = v
	}
	return out
}

// decodeResponse applies spec §3/§6: a Validator runs only in strict client
// mode; performance mode (or no Validator) falls back to decodeDefault.
func decodeResponse[T any](validator Validator[T], mode ClientMode, tresp *TransportResponse) (T, error) {
	if validator != nil && mode == ClientStrict {
		return validator.Parse(tresp.Body)
	}
	return decodeDefault[T](tresp.Body, responseContentType(tresp.Headers))
}
