package reqengine

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProtocolMode selects whether idempotency-key/payload-hash headers and
// the integrity registry are consulted (spec §3).
type ProtocolMode string

const (
	ProtocolStandard   ProtocolMode = "standard"
	ProtocolIdempotent ProtocolMode = "idempotent"
)

// ClientMode selects whether a supplied Validator runs (spec §3,
// GLOSSARY "Strict vs performance mode").
type ClientMode string

const (
	ClientStrict      ClientMode = "strict"
	ClientPerformance ClientMode = "performance"
)

// DefaultTimeout is used when neither the client nor the request supplies
// one (spec §4.8 step 2).
const DefaultTimeout = 30 * time.Second

// MaxConcurrentRequests bounds in-flight attempts per client (spec §3).
const MaxConcurrentRequests = 100

// ClientConfig is immutable after NewClient returns (spec §3).
type ClientConfig struct {
	BaseURL              string
	Timeout              time.Duration
	DefaultHeaders       map[string]string
	Retry                RetryConfig
	Breaker              BreakerConfig
	DedupeEnabled        bool
	ProtocolMode         ProtocolMode
	ClientMode           ClientMode
	Transport            Transport
	Tracer               Tracer
	Logger               *slog.Logger
	PrometheusRegisterer prometheus.Registerer
	IntegrityRegistry    *IntegrityRegistry
	FailureWindow        time.Duration
}

// ClientOption configures a Client at construction time.
type ClientOption func(*ClientConfig)

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:        DefaultTimeout,
		DefaultHeaders: map[string]string{},
		Retry:          DefaultRetryConfig(),
		Breaker:        DefaultBreakerConfig(),
		DedupeEnabled:  false,
		ProtocolMode:   ProtocolStandard,
		ClientMode:     ClientStrict,
		Logger:         slog.Default(),
		FailureWindow:  DefaultFailureWindow,
	}
}

// WithBaseURL sets the prefix prepended to non-absolute request URLs.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *ClientConfig) { c.BaseURL = baseURL }
}

// WithTransport sets the pluggable byte-level transport.
func WithTransport(t Transport) ClientOption {
	return func(c *ClientConfig) { c.Transport = t }
}

// WithTimeout sets the client-wide default per-attempt timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.Timeout = d }
}

// WithDefaultHeaders sets headers merged into every request (overridden
// by per-request headers on name collision, spec §4.8 step e).
func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(c *ClientConfig) {
		merged := make(map[string]string, len(headers))
		for k, v := range headers {
			merged[k] = v
		}
		c.DefaultHeaders = merged
	}
}

// WithDedupe enables in-flight request deduplication (spec §4.4).
func WithDedupe(enabled bool) ClientOption {
	return func(c *ClientConfig) { c.DedupeEnabled = enabled }
}

// WithProtocolMode selects standard vs idempotent wire behavior.
func WithProtocolMode(m ProtocolMode) ClientOption {
	return func(c *ClientConfig) { c.ProtocolMode = m }
}

// WithClientMode selects strict vs performance validator behavior.
func WithClientMode(m ClientMode) ClientOption {
	return func(c *ClientConfig) { c.ClientMode = m }
}

// WithRetry applies retry options on top of DefaultRetryConfig.
func WithRetry(opts ...RetryOption) ClientOption {
	return func(c *ClientConfig) {
		for _, opt := range opts {
			opt(&c.Retry)
		}
	}
}

// WithBreaker applies breaker options on top of DefaultBreakerConfig.
func WithBreaker(opts ...BreakerOption) ClientOption {
	return func(c *ClientConfig) {
		for _, opt := range opts {
			opt(&c.Breaker)
		}
	}
}

// WithTracer sets the optional opaque span factory.
func WithTracer(t Tracer) ClientOption {
	return func(c *ClientConfig) { c.Tracer = t }
}

// WithLogger sets the structured logger used across every component.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *ClientConfig) {
		c.Logger = logger
		c.Breaker.Logger = logger
	}
}

// WithPrometheusRegisterer turns on Prometheus export for MetricsBuffer
// samples (SPEC_FULL.md §C.4). Without this option the engine never
// touches Prometheus's default registry.
func WithPrometheusRegisterer(reg prometheus.Registerer) ClientOption {
	return func(c *ClientConfig) { c.PrometheusRegisterer = reg }
}

// WithIntegrityRegistry lets callers share one registry across clients
// explicitly (spec §9's re-architecture guidance). Without this option
// each Client owns its own.
func WithIntegrityRegistry(r *IntegrityRegistry) ClientOption {
	return func(c *ClientConfig) { c.IntegrityRegistry = r }
}

// WithFailureWindow sets the window MetricsBuffer.RecentFailures uses in
// Health() (spec §4.7 default: 60s).
func WithFailureWindow(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.FailureWindow = d }
}

// RetryOption configures a RetryConfig.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the maximum number of attempts (including the
// initial one).
func WithMaxAttempts(n int) RetryOption {
	return func(c *RetryConfig) { c.MaxAttempts = n }
}

// WithFixedBackoff configures a constant delay between retries.
func WithFixedBackoff(delay time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.Strategy = StrategyFixed
		c.BaseDelay = delay
		c.MaxDelay = delay
	}
}

// WithLinearBackoff configures delay = base * attempt.
func WithLinearBackoff(base, max time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.Strategy = StrategyLinear
		c.BaseDelay = base
		c.MaxDelay = max
	}
}

// WithExponentialBackoff configures delay = base * 2^(attempt-1).
func WithExponentialBackoff(base, max time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.Strategy = StrategyExponential
		c.BaseDelay = base
		c.MaxDelay = max
	}
}

// WithCustomBackoff configures an arbitrary delay(attempt, base) function.
func WithCustomBackoff(base, max time.Duration, fn CustomBackoffFunc) RetryOption {
	return func(c *RetryConfig) {
		c.Strategy = StrategyCustom
		c.BaseDelay = base
		c.MaxDelay = max
		c.CustomBackoff = fn
	}
}

// WithJitter toggles jitter on the computed delay.
func WithJitter(enabled bool) RetryOption {
	return func(c *RetryConfig) { c.Jitter = enabled }
}

// WithRetryOn sets the retryable tag set: "network", "5xx", or numeric
// status codes as strings (e.g. "429").
func WithRetryOn(tags ...string) RetryOption {
	return func(c *RetryConfig) { c.RetryOn = tags }
}

// WithRetryEnabled toggles retrying altogether.
func WithRetryEnabled(enabled bool) RetryOption {
	return func(c *RetryConfig) { c.Enabled = enabled }
}

// BreakerOption configures a BreakerConfig.
type BreakerOption func(*BreakerConfig)

// WithFailureThreshold sets the consecutive-failure count that trips the
// breaker from CLOSED to OPEN.
func WithFailureThreshold(n uint32) BreakerOption {
	return func(c *BreakerConfig) { c.FailureThreshold = n }
}

// WithResetTimeout sets how long the breaker stays OPEN before allowing a
// HALF_OPEN probe.
func WithResetTimeout(d time.Duration) BreakerOption {
	return func(c *BreakerConfig) { c.ResetTimeout = d }
}

// WithHalfOpenMaxCalls sets the number of probe calls admitted while
// HALF_OPEN.
func WithHalfOpenMaxCalls(n uint32) BreakerOption {
	return func(c *BreakerConfig) { c.HalfOpenMaxCalls = n }
}

// WithOnCircuitStateChange sets an additional observer fired alongside
// (never instead of) the onCircuitOpen hook (SPEC_FULL.md §C.3).
func WithOnCircuitStateChange(fn func(from, to CircuitState)) BreakerOption {
	return func(c *BreakerConfig) { c.OnStateChange = fn }
}
