package reqengine_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	reqengine "github.com/kestrelcloud/reqengine"
)

var _ = Describe("CircuitBreaker", func() {
	var breaker *reqengine.CircuitBreaker

	BeforeEach(func() {
		breaker = reqengine.NewCircuitBreaker(reqengine.BreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     20 * time.Millisecond,
			HalfOpenMaxCalls: 1,
		})
	})

	It("starts CLOSED", func() {
		Expect(breaker.State()).To(Equal(reqengine.CircuitClosed))
	})

	It("trips to OPEN after FailureThreshold consecutive failures", func() {
		for i := 0; i < 3; i++ {
			done, err := breaker.Check()
			Expect(err).NotTo(HaveOccurred())
			done(false)
		}
		Expect(breaker.State()).To(Equal(reqengine.CircuitOpen))
	})

	It("rejects checks while OPEN with a *CircuitOpenError", func() {
		for i := 0; i < 3; i++ {
			done, _ := breaker.Check()
			done(false)
		}

		_, err := breaker.Check()
		Expect(err).To(HaveOccurred())

		var circuitErr *reqengine.CircuitOpenError
		Expect(err).To(BeAssignableToTypeOf(circuitErr))
		Expect(err.(reqengine.EngineError).Code()).To(Equal(reqengine.CodeCircuitOpen))
	})

	It("transitions OPEN -> HALF_OPEN -> CLOSED after a successful probe", func() {
		for i := 0; i < 3; i++ {
			done, _ := breaker.Check()
			done(false)
		}
		Expect(breaker.State()).To(Equal(reqengine.CircuitOpen))

		Eventually(func() reqengine.CircuitState {
			return breaker.State()
		}, "200ms", "5ms").Should(Equal(reqengine.CircuitHalfOpen))

		done, err := breaker.Check()
		Expect(err).NotTo(HaveOccurred())
		done(true)

		Expect(breaker.State()).To(Equal(reqengine.CircuitClosed))
	})

	It("resets consecutive failures on a success", func() {
		done, _ := breaker.Check()
		done(false)
		done, _ = breaker.Check()
		done(false)

		done, _ = breaker.Check()
		done(true)

		Expect(breaker.Counts().ConsecutiveFailures).To(Equal(uint32(0)))
	})

	It("invokes OnStateChange alongside the internal transition", func() {
		var captured []string
		breaker = reqengine.NewCircuitBreaker(reqengine.BreakerConfig{
			FailureThreshold: 1,
			ResetTimeout:     time.Second,
			HalfOpenMaxCalls: 1,
			OnStateChange: func(from, to reqengine.CircuitState) {
				captured = append(captured, from.String()+"->"+to.String())
			},
		})

		done, _ := breaker.Check()
		done(false)

		Expect(captured).To(ContainElement("CLOSED->OPEN"))
	})
})
