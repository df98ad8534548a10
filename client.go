package reqengine

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Client is the engine's public handle: an immutable config plus the
// shared, request-spanning primitives it owns for its whole lifetime
// (spec §3, "Lifecycles") — the breaker, dedupe map, metrics buffer, and
// integrity registry.
type Client struct {
	config ClientConfig

	breaker   *CircuitBreaker
	dedupe    *DedupeMap
	metrics   *MetricsBuffer
	integrity *IntegrityRegistry

	hooks *HookRunner

	inFlight atomic.Int32

	statsMu sync.RWMutex
	stats   Stats
}

// Stats tracks attempt counters across the client's lifetime, kept from
// the teacher's RetryStats (SPEC_FULL.md §C.2). It is purely
// observational: nothing in the engine ever branches on it.
type Stats struct {
	TotalAttempts   int64
	TotalRetries    int64
	TotalSuccesses  int64
	TotalFailures   int64
	LastAttemptTime time.Time
	LastError       error
}

// NewClient builds a Client from options, applying ClientOptions over
// defaultClientConfig() the same way the teacher's wrapper constructors
// apply functional options over DefaultRetryConfig/DefaultCircuitBreakerConfig.
func NewClient(opts ...ClientOption) *Client {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Breaker.Logger == nil {
		cfg.Breaker.Logger = cfg.Logger
	}

	metrics := NewMetricsBuffer()
	if cfg.PrometheusRegisterer != nil {
		metrics.exporter = newPrometheusExporter(cfg.PrometheusRegisterer)
	}

	integrity := cfg.IntegrityRegistry
	if integrity == nil {
		integrity = NewIntegrityRegistry()
	}

	return &Client{
		config:    cfg,
		breaker:   NewCircuitBreaker(cfg.Breaker),
		dedupe:    NewDedupeMap(),
		metrics:   metrics,
		integrity: integrity,
		hooks:     newHookRunner(cfg.Logger),
	}
}

// Use merges partial into the client's hook table (spec §6). Idempotent;
// later Use calls override earlier keys for the same hook name.
func (c *Client) Use(partial Hooks) *Client {
	c.hooks.use(partial)
	return c
}

// HealthStatus reports the breaker's and the metrics buffer's views of
// client health (spec §6). Two distinct notions of "recent failures" are
// exposed under distinct names, resolving Open Question §9.2:
// RecentFailures carries the breaker's cheap, synchronous
// consecutive-failure counter (matching the teacher's GetHealth());
// MetricsFailures carries the windowed count from MetricsBuffer. Breaker
// holds the full snapshot of the breaker's counters.
type HealthStatus struct {
	CircuitState    CircuitState
	RecentFailures  uint32
	AverageLatency  float64
	Breaker         BreakerCounts
	MetricsFailures int
}

// Health returns a snapshot per spec §6.
func (c *Client) Health() HealthStatus {
	counts := c.breaker.Counts()
	return HealthStatus{
		CircuitState:    c.breaker.State(),
		RecentFailures:  counts.ConsecutiveFailures,
		AverageLatency:  c.metrics.AverageLatency(),
		Breaker:         counts,
		MetricsFailures: c.metrics.RecentFailures(time.Now(), c.config.FailureWindow),
	}
}

// Stats returns a snapshot of the client's lifetime attempt counters
// (SPEC_FULL.md §C.2).
func (c *Client) Stats() Stats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

func (c *Client) recordAttempt(isRetry bool) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats.TotalAttempts++
	if isRetry {
		c.stats.TotalRetries++
	}
	c.stats.LastAttemptTime = time.Now()
}

func (c *Client) recordOutcome(success bool, err error) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	if success {
		c.stats.TotalSuccesses++
	} else {
		c.stats.TotalFailures++
		c.stats.LastError = err
	}
}
