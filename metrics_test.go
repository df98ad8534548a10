package reqengine_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	reqengine "github.com/kestrelcloud/reqengine"
)

var _ = Describe("MetricsBuffer", func() {
	var buf *reqengine.MetricsBuffer

	BeforeEach(func() {
		buf = reqengine.NewMetricsBuffer()
	})

	It("starts empty", func() {
		Expect(buf.Len()).To(Equal(0))
		Expect(buf.AverageLatency()).To(Equal(0.0))
	})

	It("computes the average latency over resident samples", func() {
		now := time.Now()
		buf.Record(reqengine.Sample{LatencyMs: 100, Success: true, Timestamp: now})
		buf.Record(reqengine.Sample{LatencyMs: 300, Success: true, Timestamp: now})

		Expect(buf.AverageLatency()).To(Equal(200.0))
	})

	It("counts only failures within the window", func() {
		now := time.Now()
		buf.Record(reqengine.Sample{Success: false, Timestamp: now.Add(-10 * time.Second)})
		buf.Record(reqengine.Sample{Success: false, Timestamp: now.Add(-90 * time.Second)})
		buf.Record(reqengine.Sample{Success: true, Timestamp: now})

		Expect(buf.RecentFailures(now, 60*time.Second)).To(Equal(1))
	})

	It("discards the oldest sample once the ring is full", func() {
		for i := 0; i < reqengine.MaxSamples; i++ {
			buf.Record(reqengine.Sample{LatencyMs: int64(i), Timestamp: time.Now()})
		}
		Expect(buf.Len()).To(Equal(reqengine.MaxSamples))

		buf.Record(reqengine.Sample{LatencyMs: 999999, Timestamp: time.Now()})
		Expect(buf.Len()).To(Equal(reqengine.MaxSamples))
	})
})
