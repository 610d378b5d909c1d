// Package scpu adapts CPU cores to the emu.CPU engine interface.
package scpu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/user-none/go-chip-m68k"

	"github.com/user-none/satsound/emu"
)

var (
	// ErrHalted is returned by Execute when the CPU has stopped on a
	// double bus fault and cannot make progress.
	ErrHalted = errors.New("scpu: cpu halted")
	// ErrBadState is returned by LoadState for a buffer of the wrong size.
	ErrBadState = errors.New("scpu: invalid cpu state")
)

// m68kBus adapts an emu.BusMap to the m68k.Bus interface. The 68000 core
// does not tell instruction fetches from data reads, so both go through
// the data classes.
type m68kBus struct {
	m *emu.BusMap
}

func (b *m68kBus) Read(op m68k.Size, addr uint32) uint32 {
	if b.m == nil {
		return 0
	}
	switch op {
	case m68k.Byte:
		return uint32(b.m.Read8(addr))
	case m68k.Word:
		return uint32(b.m.Read16(addr))
	default:
		return b.m.Read32(addr)
	}
}

func (b *m68kBus) Write(op m68k.Size, addr uint32, val uint32) {
	if b.m == nil {
		return
	}
	switch op {
	case m68k.Byte:
		b.m.Write8(addr, uint8(val))
	case m68k.Word:
		b.m.Write16(addr, uint16(val))
	default:
		b.m.Write32(addr, val)
	}
}

// Reset is the RESET instruction. Nothing else on the sound bus listens.
func (b *m68kBus) Reset() {}

// M68K runs a 68000 as the sound CPU.
type M68K struct {
	cpu *m68k.CPU
	bus m68kBus

	// odoBase is added to the core's cycle counter, which restarts at
	// zero on every Reset and SetState.
	odoBase uint32
	brk     bool
}

var _ emu.CPU = (*M68K)(nil)

// NewM68K creates a 68000 engine with no bus installed.
func NewM68K() *M68K {
	a := &M68K{}
	a.cpu = m68k.New(&a.bus)
	return a
}

// Core state, then the odometer base (4). The core's own form carries the
// STOP flag and any interrupt requested but not yet taken.
const m68kStateSize = m68k.SerializeSize + 4

func (a *M68K) StateSize() int { return m68kStateSize }

func (a *M68K) ClearState() {
	a.cpu.SetState(m68k.Registers{SR: 0x2700})
	a.odoBase = 0
	a.brk = false
}

func (a *M68K) SaveState(buf []byte) {
	a.cpu.Serialize(buf[:m68k.SerializeSize])
	binary.BigEndian.PutUint32(buf[m68k.SerializeSize:], a.odoBase)
}

func (a *M68K) LoadState(buf []byte) error {
	if len(buf) < m68kStateSize {
		return fmt.Errorf("%w: m68k needs %d bytes, got %d", ErrBadState, m68kStateSize, len(buf))
	}
	if err := a.cpu.Deserialize(buf[:m68k.SerializeSize]); err != nil {
		return fmt.Errorf("%w: %w", ErrBadState, err)
	}
	a.odoBase = binary.BigEndian.Uint32(buf[m68k.SerializeSize:])
	a.brk = false
	return nil
}

// Reset loads SSP and PC from the vectors at 0 and 4.
func (a *M68K) Reset() {
	a.odoBase = a.Odometer()
	a.cpu.Reset()
	a.brk = false
}

// Execute steps whole instructions until maxCycles have elapsed or a bus
// access requested a break. The last instruction may overrun the budget.
func (a *M68K) Execute(maxCycles int) error {
	a.brk = false
	consumed := 0
	for consumed < maxCycles {
		n := a.cpu.Step()
		if n == 0 {
			return fmt.Errorf("%w at pc %06X", ErrHalted, a.cpu.Registers().PC)
		}
		consumed += n
		if a.brk {
			a.brk = false
			break
		}
	}
	return nil
}

func (a *M68K) Odometer() uint32 {
	return a.odoBase + uint32(a.cpu.Cycles())
}

// RequestInterrupt raises an autovectored interrupt.
func (a *M68K) RequestInterrupt(level uint8) {
	a.cpu.RequestInterrupt(level&7, nil)
}

func (a *M68K) Break() { a.brk = true }

func (a *M68K) InstallBus(m *emu.BusMap) { a.bus.m = m }

func (a *M68K) PC() uint32 { return a.cpu.Registers().PC }
