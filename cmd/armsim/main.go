// Package main provides the armsim command line: it assembles an ARM
// source file, prints its encodings and runs it.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/armsim/config"
	"github.com/sarchlab/armsim/emu"
	"github.com/sarchlab/armsim/loader"
	"github.com/sarchlab/armsim/script"
)

var (
	configPath  = flag.String("config", "", "Path to simulator configuration JSON file")
	scriptPath  = flag.String("script", "", "Lua script to run after the program is loaded")
	dump        = flag.Bool("dump", false, "Print address, encoding and source of every memory slot")
	interactive = flag.Bool("i", false, "Step interactively ("+interactiveHelp+")")
	verbose     = flag.Bool("v", false, "Verbose output")
	cpuProfile  = flag.String("cpuprofile", "", "Write a CPU profile to file")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 && *scriptPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: armsim [options] <program.s>\n       armsim -dump <program.elf>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	os.Exit(run())
}

func run() int {
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			return 1
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	cfg := config.DefaultSimConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			return 1
		}
	}

	var stdout, stderr io.Writer = os.Stdout, os.Stderr
	if *interactive {
		restore, raw := rawStdin()
		defer restore()
		if raw {
			stdout, stderr = crlfWriter{os.Stdout}, crlfWriter{os.Stderr}
		}
	}

	logger, err := newLogger(cfg, stderr, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	memory := emu.NewMemory()
	e := emu.NewEmulator(
		emu.WithMemory(memory),
		emu.WithStdout(stdout),
		emu.WithStepLimit(cfg.StepLimit),
		emu.WithBetweenSteps(emu.StopAtBreakpoints),
	)
	hook := &logHook{logger: logger, trace: cfg.Trace}
	memory.AcceptHook(hook)
	e.AcceptHook(hook)

	for _, bp := range cfg.Breakpoints {
		e.SetBreakpoint(bp)
	}

	entry := cfg.EntryPoint
	if flag.NArg() > 0 {
		programPath := flag.Arg(0)
		if isELF(programPath) {
			if err := checkELFMode(*dump, *interactive, *scriptPath); err != nil {
				logger.WithField("file", programPath).Error(err)
				return 1
			}
		}
		elfEntry, err := loadProgram(programPath, memory)
		if err != nil {
			logger.WithField("file", programPath).Error(err)
			return 1
		}
		if elfEntry != nil && entry == 0 {
			entry = *elfEntry
		}
		logger.WithFields(logrus.Fields{
			"file":  programPath,
			"slots": memory.Len(),
		}).Debug("program loaded")
	}
	e.RegFile().SetPC(entry)

	if *dump {
		writeListing(stdout, memory)
		if flag.NArg() > 0 && isELF(flag.Arg(0)) {
			return 0
		}
	}

	if *scriptPath != "" {
		host := script.NewHost(memory, e, stdout)
		if err := host.RunFile(*scriptPath); err != nil {
			logger.WithField("script", *scriptPath).Error(err)
			return 1
		}
		return 0
	}

	if *interactive {
		delay := time.Duration(cfg.StepDelayMs) * time.Millisecond
		if err := interact(e, os.Stdin, stdout, delay); err != nil {
			logger.Error(err)
			return 1
		}
		return 0
	}

	if *dump {
		return 0
	}

	return runToCompletion(e, logger)
}

// runToCompletion continues until the program stops, then dumps the
// registers. An interrupt signal stops the run between two steps.
func runToCompletion(e *emu.Emulator, logger logrus.FieldLogger) int {
	stop := stopOnInterrupt(e)
	defer stop()

	result := e.Continue()
	logger.WithFields(logrus.Fields{
		"reason": result.Reason.String(),
		"steps":  result.Steps,
	}).Info("run stopped")

	e.DumpRegisters()

	if result.Reason == emu.StopError {
		return 1
	}
	return 0
}

// stopOnInterrupt stops e when an interrupt signal arrives. The returned
// function releases the signal and ends the watcher goroutine.
func stopOnInterrupt(e *emu.Emulator) func() {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	exited := make(chan struct{})
	signal.Notify(sigs, os.Interrupt)

	go func() {
		defer close(exited)
		select {
		case <-sigs:
			e.Stop()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
		<-exited
	}
}

// newLogger builds the diagnostic logger. Verbose output lowers the level
// to debug.
func newLogger(cfg *config.SimConfig, out io.Writer, verbose bool) (*logrus.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	if verbose && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return logger, nil
}

// errELFListingOnly rejects modes that would execute an ELF image. ELF
// segments are placed as data words, which the engine does not execute.
var errELFListingOnly = errors.New("ELF images are placed as data words and can only be listed; use -dump without -i or -script")

func isELF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".elf")
}

// checkELFMode accepts only the listing mode for ELF input.
func checkELFMode(dump, interactive bool, script string) error {
	if !dump || interactive || script != "" {
		return errELFListingOnly
	}
	return nil
}

// loadProgram places an assembly source or an ARM ELF image into mem. For
// ELF images it returns the entry point.
func loadProgram(path string, mem *emu.Memory) (*uint32, error) {
	if isELF(path) {
		img, err := loader.LoadELF(path)
		if err != nil {
			return nil, err
		}
		if err := img.Place(mem); err != nil {
			return nil, err
		}
		return &img.EntryPoint, nil
	}

	prog, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	return nil, prog.Assemble(mem)
}
