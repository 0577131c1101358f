package trace_test

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/memsim/mem"
	"github.com/sarchlab/memsim/trace"
)

var _ = Describe("Trace parser", func() {
	It("should parse loads and stores", func() {
		ops, err := trace.Parse(strings.NewReader(
			"L 0x1000 D\nS 0x2000 D 42\nL 0x3000 I\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(ops).To(HaveLen(3))

		Expect(ops[0].Kind).To(Equal(mem.Load))
		Expect(ops[0].Address).To(Equal(uint64(0x1000)))
		Expect(ops[0].IsData).To(BeTrue())
		Expect(ops[0].Data).To(BeNil())
		Expect(ops[0].NumWords).To(Equal(1))

		Expect(ops[1].Kind).To(Equal(mem.Store))
		Expect(ops[1].Data).To(Equal([]uint64{42}))

		Expect(ops[2].IsData).To(BeFalse())
	})

	It("should skip comments and blank lines", func() {
		ops, err := trace.Parse(strings.NewReader(
			"# a full comment line\n" +
				"\n" +
				"   \n" +
				"L 0x1000 D # trailing comment\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(ops).To(HaveLen(1))
	})

	It("should treat tabs as spaces", func() {
		ops, err := trace.Parse(strings.NewReader("L\t0x1000\tD\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(ops).To(HaveLen(1))
		Expect(ops[0].Address).To(Equal(uint64(0x1000)))
	})

	It("should mark breakpoint lines", func() {
		ops, err := trace.Parse(strings.NewReader(
			"L 0x1000 D\n!L 0x2000 D\n! S 0x3000 D 1\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(ops[0].Breakpoint).To(BeFalse())
		Expect(ops[1].Breakpoint).To(BeTrue())
		Expect(ops[2].Breakpoint).To(BeTrue())
	})

	It("should default a store without payload to zero", func() {
		ops, err := trace.Parse(strings.NewReader("S 0x1000 D\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(ops[0].Data).To(Equal([]uint64{0}))
	})

	It("should reject storing an instruction", func() {
		_, err := trace.Parse(strings.NewReader("S 0x1000 I 5\n"))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("cannot store"))
	})

	It("should reject a payload on a load", func() {
		_, err := trace.Parse(strings.NewReader("L 0x1000 D 5\n"))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("payload"))
	})

	It("should reject non-hexadecimal addresses", func() {
		for _, line := range []string{"L 1000 D", "L 0xZZ D", "L x10 D"} {
			_, err := trace.Parse(strings.NewReader(line + "\n"))
			Expect(err).To(HaveOccurred(), "line %q", line)
		}
	})

	It("should reject malformed operations", func() {
		for _, line := range []string{
			"X 0x1000 D",
			"L 0x1000 Q",
			"L 0x1000",
			"S 0x1000 D 1 2",
			"S 0x1000 D five",
		} {
			_, err := trace.Parse(strings.NewReader(line + "\n"))
			Expect(err).To(HaveOccurred(), "line %q", line)
		}
	})

	It("should report every bad line with its number", func() {
		_, err := trace.Parse(strings.NewReader(
			"L 0x1000 D\nS 0x2000 I 1\nL nope D\n"))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("line 2"))
		Expect(err.Error()).To(ContainSubstring("line 3"))
		Expect(err.Error()).To(ContainSubstring("total errors: 2"))
	})

	It("should load from a file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "accesses.vca")
		Expect(os.WriteFile(path,
			[]byte("L 0x1000 D\nS 0x1004 D 9\n"), 0644)).To(Succeed())

		ops, err := trace.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(ops).To(HaveLen(2))
	})

	It("should fail on a missing file", func() {
		_, err := trace.Load("no/such/trace.vca")
		Expect(err).To(HaveOccurred())
	})
})
