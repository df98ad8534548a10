package reqengine_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	reqengine "github.com/kestrelcloud/reqengine"
)

var _ = Describe("StateMachine", func() {
	var sm *reqengine.StateMachine

	BeforeEach(func() {
		sm = reqengine.NewStateMachine()
	})

	It("starts in IDLE", func() {
		Expect(sm.Current()).To(Equal(reqengine.StateIdle))
	})

	It("allows IDLE -> PENDING -> SUCCESS", func() {
		Expect(sm.Transition(reqengine.StatePending)).To(Succeed())
		Expect(sm.Transition(reqengine.StateSuccess)).To(Succeed())
		Expect(sm.IsTerminal()).To(BeTrue())
	})

	It("allows the retry loop PENDING -> RETRYING -> PENDING -> ERROR", func() {
		Expect(sm.Transition(reqengine.StatePending)).To(Succeed())
		Expect(sm.Transition(reqengine.StateRetrying)).To(Succeed())
		Expect(sm.Transition(reqengine.StatePending)).To(Succeed())
		Expect(sm.Transition(reqengine.StateError)).To(Succeed())
	})

	It("allows cancellation from IDLE, PENDING, or RETRYING", func() {
		fresh := reqengine.NewStateMachine()
		Expect(fresh.Transition(reqengine.StateCancelled)).To(Succeed())

		fresh = reqengine.NewStateMachine()
		Expect(fresh.Transition(reqengine.StatePending)).To(Succeed())
		Expect(fresh.Transition(reqengine.StateCancelled)).To(Succeed())

		fresh = reqengine.NewStateMachine()
		Expect(fresh.Transition(reqengine.StatePending)).To(Succeed())
		Expect(fresh.Transition(reqengine.StateRetrying)).To(Succeed())
		Expect(fresh.Transition(reqengine.StateCancelled)).To(Succeed())
	})

	It("rejects illegal edges, e.g. IDLE -> SUCCESS", func() {
		err := sm.Transition(reqengine.StateSuccess)
		Expect(err).To(HaveOccurred())

		var stateErr *reqengine.DeterministicStateError
		Expect(err).To(BeAssignableToTypeOf(stateErr))
	})

	It("rejects leaving a terminal state", func() {
		Expect(sm.Transition(reqengine.StatePending)).To(Succeed())
		Expect(sm.Transition(reqengine.StateSuccess)).To(Succeed())

		err := sm.Transition(reqengine.StatePending)
		Expect(err).To(HaveOccurred())
		Expect(sm.Current()).To(Equal(reqengine.StateSuccess))
	})

	DescribeTable("State.String()",
		func(s reqengine.State, expected string) {
			Expect(s.String()).To(Equal(expected))
		},
		Entry("idle", reqengine.StateIdle, "IDLE"),
		Entry("pending", reqengine.StatePending, "PENDING"),
		Entry("retrying", reqengine.StateRetrying, "RETRYING"),
		Entry("success", reqengine.StateSuccess, "SUCCESS"),
		Entry("error", reqengine.StateError, "ERROR"),
		Entry("cancelled", reqengine.StateCancelled, "CANCELLED"),
	)
})
