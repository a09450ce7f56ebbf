package insts_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/armsim/insts"
)

var _ = Describe("SplitMnemonic", func() {
	DescribeTable("valid mnemonics",
		func(word, mnemonic, cond string, setFlags bool) {
			m, c, s, err := insts.SplitMnemonic(word)
			Expect(err).ToNot(HaveOccurred())
			Expect(m).To(Equal(mnemonic))
			Expect(c).To(Equal(cond))
			Expect(s).To(Equal(setFlags))
		},
		Entry("plain", "add", "add", "", false),
		Entry("pre-UAL order", "addeqs", "add", "eq", true),
		Entry("unified order", "addseq", "add", "eq", true),
		Entry("upper case", "MOVS", "mov", "", true),
		Entry("signed byte load", "ldrsbne", "ldrsb", "ne", false),
		Entry("pre-UAL byte load", "ldreqb", "ldrb", "eq", false),
		Entry("hs is a condition", "ldrhs", "ldr", "hs", false),
		Entry("stack mode", "stmfd", "stmfd", "", false),
		Entry("branch link", "bl", "bl", "", false),
		Entry("conditional link", "bleq", "bl", "eq", false),
		Entry("branch lower or same", "bls", "b", "ls", false),
		Entry("branch less than", "blt", "b", "lt", false),
		Entry("bic is not a branch", "bics", "bic", "", true),
		Entry("byte swap", "swpb", "swpb", "", false),
		Entry("compare with s", "cmps", "cmp", "", true),
	)

	DescribeTable("invalid mnemonics",
		func(word string) {
			_, _, _, err := insts.SplitMnemonic(word)
			Expect(errors.Is(err, insts.ErrInvalidInstruction)).To(BeTrue())
		},
		Entry("unknown", "foo"),
		Entry("branch exchange", "bx"),
		Entry("flags on a load", "ldrs"),
		Entry("bad condition", "addxx"),
	)
})
