package main

import (
	"fmt"
	"io"

	"github.com/sarchlab/armsim/emu"
	"github.com/sarchlab/armsim/insts"
)

// writeListing prints one line per occupied slot: address, machine word,
// label and source. Data words are annotated with their disassembly.
func writeListing(w io.Writer, mem *emu.Memory) {
	decoder := insts.NewDecoder()

	for _, addr := range mem.Addresses() {
		line := mem.Line(addr)

		label := ""
		if name, ok := mem.LabelAt(addr); ok {
			label = name + ":"
		}

		hex, err := mem.Encoding(addr)
		if err != nil {
			_, _ = fmt.Fprintf(w, "%08x  ????????  %-12s %s  ; %v\n", addr, label, line, err)
			continue
		}

		text := line.String()
		if !line.IsInstruction() {
			text = fmt.Sprintf("%s  ; %s", text, decoder.Decode(line.Word))
		}
		_, _ = fmt.Fprintf(w, "%08x  %s  %-12s %s\n", addr, hex, label, text)
	}
}
