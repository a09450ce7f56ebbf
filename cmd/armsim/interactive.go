package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/sarchlab/armsim/emu"
)

const interactiveHelp = "s=step c=continue r=registers b=breakpoint at pc q=quit"

// interact reads single-key commands from in until q or end of input.
func interact(e *emu.Emulator, in io.Reader, out io.Writer, delay time.Duration) error {
	r := bufio.NewReader(in)

	e.SetBetweenSteps(func(em *emu.Emulator) bool {
		if delay > 0 {
			time.Sleep(delay)
		}
		return emu.StopAtBreakpoints(em)
	})

	_, _ = fmt.Fprintln(out, interactiveHelp)
	printPosition(e, out)

	for {
		key, err := r.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch key {
		case 's':
			result := e.Step()
			if result.Halted {
				_, _ = fmt.Fprintf(out, "halted: %v\n", result.Err)
				continue
			}
			printPosition(e, out)
		case 'c':
			result := e.Continue()
			_, _ = fmt.Fprintf(out, "%s after %d steps\n", result.Reason, result.Steps)
			printPosition(e, out)
		case 'r':
			e.DumpRegisters()
		case 'b':
			pc := e.RegFile().PC()
			if e.ToggleBreakpoint(pc) {
				_, _ = fmt.Fprintf(out, "breakpoint set at 0x%08x\n", pc)
			} else {
				_, _ = fmt.Fprintf(out, "breakpoint cleared at 0x%08x\n", pc)
			}
		case 'q', 0x03, 0x04: // ctrl-c and ctrl-d arrive as bytes in raw mode
			return nil
		case '?', 'h':
			_, _ = fmt.Fprintln(out, interactiveHelp)
		}
	}
}

func printPosition(e *emu.Emulator, out io.Writer) {
	pc := e.RegFile().PC()
	line := e.Memory().Line(pc)
	if !line.IsInstruction() {
		_, _ = fmt.Fprintf(out, "pc=0x%08x  (end of program)\n", pc)
		return
	}
	_, _ = fmt.Fprintf(out, "pc=0x%08x  %s\n", pc, line)
}

// rawStdin puts stdin into raw mode when it is a terminal. The returned
// function restores it. raw reports whether the mode changed.
func rawStdin() (restore func(), raw bool) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, false
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "armsim: failed to set raw mode: %v\n", err)
		return func() {}, false
	}
	return func() { _ = term.Restore(fd, oldState) }, true
}

// crlfWriter turns \n into \r\n for terminals in raw mode.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
