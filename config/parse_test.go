package config_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/memsim/config"
)

var _ = Describe("Parse helpers", func() {
	Describe("ParseSize", func() {
		It("should parse plain byte counts", func() {
			Expect(config.ParseSize("4096", true)).To(Equal(int64(4096)))
		})

		It("should apply base-2 suffixes", func() {
			Expect(config.ParseSize("4K", true)).To(Equal(int64(4096)))
			Expect(config.ParseSize("2M", true)).To(Equal(int64(2 * 1024 * 1024)))
			Expect(config.ParseSize("1G", true)).To(Equal(int64(1 << 30)))
		})

		It("should apply base-10 suffixes", func() {
			Expect(config.ParseSize("4k", false)).To(Equal(int64(4000)))
			Expect(config.ParseSize("3m", false)).To(Equal(int64(3000000)))
		})

		It("should reject garbage", func() {
			_, err := config.ParseSize("12x", true)
			Expect(err).To(HaveOccurred())
			_, err = config.ParseSize("K", true)
			Expect(err).To(HaveOccurred())
			_, err = config.ParseSize("", true)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ParseDuration", func() {
		It("should parse plain seconds", func() {
			Expect(config.ParseDuration("2")).
				To(BeNumerically("~", 2.0, 1e-12))
		})

		It("should apply sub-second suffixes", func() {
			Expect(config.ParseDuration("5m")).
				To(BeNumerically("~", 5e-3, 1e-15))
			Expect(config.ParseDuration("3u")).
				To(BeNumerically("~", 3e-6, 1e-15))
			Expect(config.ParseDuration("10n")).
				To(BeNumerically("~", 10e-9, 1e-18))
			Expect(config.ParseDuration("7p")).
				To(BeNumerically("~", 7e-12, 1e-21))
		})

		It("should reject garbage", func() {
			_, err := config.ParseDuration("ten")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ParseBool", func() {
		It("should accept all spellings, case insensitive", func() {
			for _, s := range []string{"1", "yes", "true", "YES", "True"} {
				Expect(config.ParseBool(s)).To(BeTrue())
			}
			for _, s := range []string{"0", "no", "false", "NO", "False"} {
				Expect(config.ParseBool(s)).To(BeFalse())
			}
		})

		It("should reject other values", func() {
			_, err := config.ParseBool("maybe")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ParseAddress", func() {
		It("should parse 0x-prefixed hexadecimal", func() {
			Expect(config.ParseAddress("0x1000")).To(Equal(uint64(0x1000)))
			Expect(config.ParseAddress("0XdeadBEEF")).
				To(Equal(uint64(0xDEADBEEF)))
		})

		It("should reject non-hex values", func() {
			_, err := config.ParseAddress("1000")
			Expect(err).To(HaveOccurred())
			_, err = config.ParseAddress("0xZZ")
			Expect(err).To(HaveOccurred())
		})
	})
})
