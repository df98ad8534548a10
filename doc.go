// Package reqengine implements a resilient outbound request engine: a
// reusable core that wraps a pluggable byte-level transport and enforces a
// deterministic per-request lifecycle, retry/backoff, circuit-breaking,
// in-flight deduplication, bounded concurrency, timeout/cancellation,
// idempotency-key payload integrity, response validation, and
// observability hooks for every call.
//
// The engine does not implement a transport itself. Callers supply a
// Transport — typically a thin adapter over *http.Client, but any
// request/response-over-bytes implementation works — and the engine
// layers resilience around it the same way jp-go-resilience layers retry
// and circuit-breaking around a ResilientClient: circuit breaker innermost,
// retry outermost, with deterministic state transitions, hooks, dedupe,
// and metrics instrumented at every seam.
//
// Example:
//
//	client := reqengine.NewClient(
//	    reqengine.WithBaseURL("https://api.example.com"),
//	    reqengine.WithTransport(httpTransport),
//	    reqengine.WithRetry(reqengine.WithMaxAttempts(3), reqengine.WithExponentialBackoff(time.Second, 30*time.Second)),
//	    reqengine.WithBreaker(reqengine.WithFailureThreshold(5), reqengine.WithResetTimeout(30*time.Second)),
//	)
//
//	resp, err := reqengine.Do[User](ctx, client, reqengine.RequestDescriptor{
//	    Method: reqengine.MethodGet,
//	    URL:    "/users/1",
//	}, nil)
package reqengine
