// Package insts provides ARM32 instruction definitions, assembly and encoding.
//
// This package turns already-tokenized assembly into a typed instruction
// model and encodes that model into 32-bit ARM machine words. It supports:
//   - Data processing: ADD, ADC, SUB, SBC, RSB, RSC, AND, ORR, EOR, BIC,
//     CMP, CMN, TST, TEQ, MOV, MVN
//   - Multiply: MUL, MLA
//   - Branch: B, BL
//   - Single and multiple load/store: LDR, STR (word, byte, halfword,
//     signed byte/halfword), LDM, STM
//   - Swap and software interrupt: SWP, SWPB, SWI
//
// Usage:
//
//	inst, err := insts.Assemble(insts.Statement{
//		Mnemonic: "add",
//		Operands: []string{"r0", "r1", "#42"},
//	})
//	enc := insts.NewEncoder(labels)
//	hex, err := enc.EncodeHex(inst, 0x0) // "e281002a"
package insts
