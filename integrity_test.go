package reqengine_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	reqengine "github.com/kestrelcloud/reqengine"
)

var _ = Describe("IntegrityRegistry", func() {
	var reg *reqengine.IntegrityRegistry

	BeforeEach(func() {
		reg = reqengine.NewIntegrityRegistry()
	})

	It("pins the first fingerprint seen for a key", func() {
		fp, err := reg.Enforce("idem-1", []byte(`{"a":1}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(fp).NotTo(BeEmpty())
	})

	It("accepts a repeat of the same body under the same key", func() {
		fp1, err := reg.Enforce("idem-1", []byte(`{"a":1,"b":2}`))
		Expect(err).NotTo(HaveOccurred())

		fp2, err := reg.Enforce("idem-1", []byte(`{"b":2,"a":1}`)) // different key order, same canonical content
		Expect(err).NotTo(HaveOccurred())
		Expect(fp2).To(Equal(fp1))
	})

	It("rejects a different body reused under the same key", func() {
		_, err := reg.Enforce("idem-1", []byte(`{"a":1}`))
		Expect(err).NotTo(HaveOccurred())

		_, err = reg.Enforce("idem-1", []byte(`{"a":2}`))
		Expect(err).To(HaveOccurred())

		var violation *reqengine.IntegrityViolationError
		Expect(err).To(BeAssignableToTypeOf(violation))
		Expect(err.(reqengine.EngineError).Code()).To(Equal(reqengine.CodeIntegrityViolation))
	})

	It("treats distinct keys independently", func() {
		_, err := reg.Enforce("idem-1", []byte(`{"a":1}`))
		Expect(err).NotTo(HaveOccurred())

		_, err = reg.Enforce("idem-2", []byte(`{"a":2}`))
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("Fingerprint", func() {
	It("is stable across JSON key ordering", func() {
		Expect(reqengine.Fingerprint([]byte(`{"x":1,"y":2}`))).
			To(Equal(reqengine.Fingerprint([]byte(`{"y":2,"x":1}`))))
	})

	It("differs for different content", func() {
		Expect(reqengine.Fingerprint([]byte(`{"x":1}`))).
			NotTo(Equal(reqengine.Fingerprint([]byte(`{"x":2}`))))
	})

	It("is stable for an empty/nil body", func() {
		Expect(reqengine.Fingerprint(nil)).To(Equal(reqengine.Fingerprint([]byte{})))
	})
})
