// Package emu binds a sound CPU engine and a sample rendering chip engine
// into one deterministic device whose whole state lives in a relocatable
// byte slice.
package emu

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrInvalidCycles = errors.New("emu: negative cycle count")
	ErrEngineFault   = errors.New("emu: cpu engine fault")
	ErrStateTooSmall = errors.New("emu: state buffer too small")
)

// Config carries the optional collaborators of a Core.
type Config struct {
	// Logger receives relocation and fault events. Nil means slog.Default.
	Logger *slog.Logger
	// Recorder, if set, observes register stores, RAM stores and rendered
	// sample counts.
	Recorder Recorder
}

// Core drives one CPU and one chip over a State. It caches views derived
// from the last State it saw; those are rebuilt automatically when a
// different or moved State is passed in. A Core is not safe for concurrent
// use.
type Core struct {
	cpu  CPU
	chip Chip
	log  *slog.Logger
	rec  Recorder

	h     header
	bound uint64
	stamp uint64
	mem   []byte
	ram   []byte
	bus   *BusMap
}

// New creates a Core for the given engines.
func New(cpu CPU, chip Chip, cfg Config) *Core {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Core{cpu: cpu, chip: chip, log: log, rec: cfg.Recorder}
}

// StateSize is StateSize for this Core's engines.
func (c *Core) StateSize() int {
	return StateSize(c.cpu, c.chip)
}

// SetRecorder replaces the recorder. The bus map picks it up on the next
// call.
func (c *Core) SetRecorder(r Recorder) {
	c.rec = r
	c.bound = 0
}

// Execute runs the CPU for up to cycles cycles, rendering at most samples
// stereo frames into buf. A nil buf renders silently. It returns the cycles
// actually executed and the frames produced.
//
// A negative cycle count is rejected without touching st. An engine fault
// ends the call early; the work done so far is kept and committed.
func (c *Core) Execute(st State, cycles int, buf []int16, samples int) (executed, produced int, err error) {
	if cycles < 0 {
		return 0, 0, ErrInvalidCycles
	}
	if !c.relocationCheck(st) {
		return 0, 0, ErrStateTooSmall
	}

	if cycles > MaxCyclesPerCall {
		cycles = MaxCyclesPerCall
	}
	if samples < 0 {
		samples = 0
	}
	if samples > MaxSamplesPerCall {
		samples = MaxSamplesPerCall
	}
	if buf != nil && samples > len(buf)/2 {
		samples = len(buf) / 2
	}

	c.chip.BeginBuffer(buf)
	c.h.remaining = uint32(samples)
	c.h.executed = 0
	c.h.odometer = c.cpu.Odometer()

	c.syncSound()

	budget := int(c.h.remaining)*CyclesPerSample - int(c.h.ahead)
	if budget < 0 {
		budget = 0
	}
	if cycles > budget {
		cycles = budget
	}

	for int(c.h.executed) < cycles {
		slice := uint32(cycles - int(c.h.executed))
		if next := c.cyclesUntilNextInterrupt(); next < slice {
			slice = next
		}
		c.checkInterrupts()
		if ferr := c.cpu.Execute(int(slice)); ferr != nil {
			c.advanceSync()
			c.log.Warn("cpu engine fault", "pc", c.cpu.PC(), "error", ferr)
			err = fmt.Errorf("%w: %w", ErrEngineFault, ferr)
			break
		}
		c.advanceSync()
	}

	c.chip.Flush()
	c.chip.BeginBuffer(nil)

	executed = int(c.h.executed)
	if executed < 0 {
		executed = 0
	}
	produced = samples - int(c.h.remaining)
	c.commit(st)
	return executed, produced, err
}
