package reqengine_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	reqengine "github.com/kestrelcloud/reqengine"
)

var _ = Describe("DedupeMap", func() {
	var m *reqengine.DedupeMap

	BeforeEach(func() {
		m = reqengine.NewDedupeMap()
	})

	It("gives ownership to the first caller for a key", func() {
		_, owner := m.GetOrCreate("k1")
		Expect(owner).To(BeTrue())
		Expect(m.Len()).To(Equal(1))
	})

	It("gives non-owner status to a second caller for the same key", func() {
		m.GetOrCreate("k1")
		_, owner := m.GetOrCreate("k1")
		Expect(owner).To(BeFalse())
		Expect(m.Len()).To(Equal(1))
	})

	It("wakes every waiter with the settled result once Settle is called", func() {
		entry, owner := m.GetOrCreate("k1")
		Expect(owner).To(BeTrue())
		waiterEntry, _ := m.GetOrCreate("k1")

		done := make(chan struct{})
		var gotResp any
		var gotErr error
		go func() {
			gotResp, gotErr = waiterEntry.Wait()
			close(done)
		}()

		m.Settle("k1", "shared-result", nil)

		<-done
		Expect(gotResp).To(Equal("shared-result"))
		Expect(gotErr).NotTo(HaveOccurred())

		ownerResp, ownerErr := entry.Wait()
		Expect(ownerResp).To(Equal("shared-result"))
		Expect(ownerErr).NotTo(HaveOccurred())
	})

	It("propagates a failure to every waiter", func() {
		boom := errors.New("boom")
		entry, _ := m.GetOrCreate("k1")
		m.Settle("k1", nil, boom)

		_, err := entry.Wait()
		Expect(err).To(MatchError(boom))
	})

	It("removes the key after Settle so the next call starts fresh", func() {
		m.GetOrCreate("k1")
		m.Settle("k1", "x", nil)
		Expect(m.Len()).To(Equal(0))

		_, owner := m.GetOrCreate("k1")
		Expect(owner).To(BeTrue())
	})

	It("evicts the oldest entry on overflow (FIFO)", func() {
		small := reqengine.NewDedupeMap()
		for i := 0; i < reqengine.MaxDedupeMapSize; i++ {
			small.GetOrCreate(keyFor(i))
		}
		Expect(small.Len()).To(Equal(reqengine.MaxDedupeMapSize))

		small.GetOrCreate(keyFor(reqengine.MaxDedupeMapSize))
		Expect(small.Len()).To(Equal(reqengine.MaxDedupeMapSize))

		_, owner := small.GetOrCreate(keyFor(0))
		Expect(owner).To(BeTrue(), "oldest key should have been evicted, so re-requesting it claims ownership again")
	})
})

var _ = Describe("Eligible", func() {
	It("requires dedupe enabled, a GET/HEAD method, and maxAttempts <= 1", func() {
		retryOff := reqengine.RetryConfig{MaxAttempts: 1}
		retryOn := reqengine.RetryConfig{MaxAttempts: 3}

		Expect(reqengine.Eligible(true, reqengine.MethodGet, retryOff)).To(BeTrue())
		Expect(reqengine.Eligible(false, reqengine.MethodGet, retryOff)).To(BeFalse())
		Expect(reqengine.Eligible(true, reqengine.MethodPost, retryOff)).To(BeFalse())
		Expect(reqengine.Eligible(true, reqengine.MethodHead, retryOff)).To(BeTrue())
		Expect(reqengine.Eligible(true, reqengine.MethodGet, retryOn)).To(BeFalse())
	})
})

func keyFor(i int) string {
	return "key-" + string(rune('a'+i%26)) + string(rune(i))
}
