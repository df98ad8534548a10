package reqengine

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MaxSamples is the ring buffer capacity (spec §3).
const MaxSamples = 1000

// DefaultFailureWindow is the default ClientConfig.FailureWindow, the
// window Health() passes to RecentFailures (spec §4.7).
const DefaultFailureWindow = 60 * time.Second

// Sample is one recorded attempt outcome (spec §4.7). Timestamp resolves
// Open Question §9.1: the source compared latency against wall-clock
// directly, which is dimensionally nonsensical; samples here carry their
// own wall-clock Timestamp so RecentFailures can do "within the last
// window" correctly.
type Sample struct {
	RequestID string
	URL       string
	Method    Method
	LatencyMs int64
	Attempt   int
	Status    *int
	Success   bool
	Timestamp time.Time
}

// MetricsBuffer is a fixed-capacity ring of recent samples (spec §4.7).
// It is safe for concurrent use.
type MetricsBuffer struct {
	mu      sync.Mutex
	samples []Sample
	head    int // next write index
	size    int // number of valid samples, capped at MaxSamples

	exporter *prometheusExporter
}

// NewMetricsBuffer returns an empty buffer with no Prometheus export.
func NewMetricsBuffer() *MetricsBuffer {
	return &MetricsBuffer{samples: make([]Sample, MaxSamples)}
}

// Record appends a sample, discarding the oldest on overflow.
func (b *MetricsBuffer) Record(s Sample) {
	b.mu.Lock()
	b.samples[b.head] = s
	b.head = (b.head + 1) % MaxSamples
	if b.size < MaxSamples {
		b.size++
	}
	exporter := b.exporter
	b.mu.Unlock()

	if exporter != nil {
		exporter.observe(s)
	}
}

// AverageLatency returns the mean LatencyMs over all resident samples, or
// 0 if the buffer is empty.
func (b *MetricsBuffer) AverageLatency() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return 0
	}
	var total int64
	for i := 0; i < b.size; i++ {
		total += b.samples[i].LatencyMs
	}
	return float64(total) / float64(b.size)
}

// RecentFailures counts samples with Success == false whose Timestamp
// falls within window of now.
func (b *MetricsBuffer) RecentFailures(now time.Time, window time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for i := 0; i < b.size; i++ {
		s := b.samples[i]
		if !s.Success && now.Sub(s.Timestamp) <= window {
			count++
		}
	}
	return count
}

// Len reports the number of resident samples.
func (b *MetricsBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// prometheusExporter mirrors ring-buffer samples into Prometheus series,
// the way klayengo's MetricsCollector instruments its request lifecycle.
// It is opt-in (see WithPrometheusRegisterer) so the engine never touches
// process-wide Prometheus state implicitly (spec §1's non-goal: no
// implicit process-wide mutable state beyond the integrity registry).
type prometheusExporter struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
}

func newPrometheusExporter(reg prometheus.Registerer) *prometheusExporter {
	return &prometheusExporter{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqengine_requests_total",
				Help: "Total number of attempts made by the request engine.",
			},
			[]string{"method", "status", "success"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reqengine_request_duration_seconds",
				Help:    "Duration of engine attempts in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),
		errorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqengine_errors_total",
				Help: "Total number of failed attempts by method.",
			},
			[]string{"method"},
		),
	}
}

func (e *prometheusExporter) observe(s Sample) {
	status := "none"
	if s.Status != nil {
		status = strconv.Itoa(*s.Status)
	}
	success := strconv.FormatBool(s.Success)

	e.requestsTotal.WithLabelValues(string(s.Method), status, success).Inc()
	e.requestDuration.WithLabelValues(string(s.Method), status).Observe(float64(s.LatencyMs) / 1000)
	if !s.Success {
		e.errorsTotal.WithLabelValues(string(s.Method)).Inc()
	}
}
