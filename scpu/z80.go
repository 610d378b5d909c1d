package scpu

import (
	"encoding/binary"
	"fmt"

	"github.com/user-none/go-chip-z80"

	"github.com/user-none/satsound/emu"
)

// Z80 address space:
//
//	0x0000-0x7FFF  device 0x000000-0x007FFF (low sound RAM)
//	0x8000-0xFFFF  device window selected by the bank register
//
// The 9-bit bank register is loaded through I/O port 0 (bits 0-7) and port
// 1 (bit 8). Bank 0x20 puts the chip registers at 0x8000.
const (
	z80WindowBase = 0x8000
	z80WindowMask = 0x7FFF
	z80BankShift  = 15
	z80BankMask   = 0x1FF
	z80PortBankLo = 0x00
	z80PortBankHi = 0x01
)

type z80Bus struct {
	m    *emu.BusMap
	bank uint16
}

func (b *z80Bus) device(addr uint16) uint32 {
	if addr < z80WindowBase {
		return uint32(addr)
	}
	return uint32(b.bank)<<z80BankShift | uint32(addr&z80WindowMask)
}

func (b *z80Bus) Fetch(addr uint16) uint8 {
	if b.m == nil {
		return 0
	}
	return b.m.Fetch8(b.device(addr))
}

func (b *z80Bus) Read(addr uint16) uint8 {
	if b.m == nil {
		return 0
	}
	return b.m.Read8(b.device(addr))
}

func (b *z80Bus) Write(addr uint16, val uint8) {
	if b.m == nil {
		return
	}
	b.m.Write8(b.device(addr), val)
}

func (b *z80Bus) In(port uint16) uint8 {
	switch uint8(port) {
	case z80PortBankLo:
		return uint8(b.bank)
	case z80PortBankHi:
		return uint8(b.bank >> 8)
	}
	return 0xFF
}

func (b *z80Bus) Out(port uint16, val uint8) {
	switch uint8(port) {
	case z80PortBankLo:
		b.bank = b.bank&0x100 | uint16(val)
	case z80PortBankHi:
		b.bank = b.bank&0xFF | uint16(val&1)<<8
	}
}

// Z80 runs a Z80 as the sound CPU through a banked window.
type Z80 struct {
	cpu *z80.CPU
	bus z80Bus

	odo        uint32
	intPending bool
	brk        bool
}

var _ emu.CPU = (*Z80)(nil)

// NewZ80 creates a Z80 engine with no bus installed.
func NewZ80() *Z80 {
	a := &Z80{}
	a.cpu = z80.New(&a.bus)
	return a
}

// Core state, then odometer (4), bank (2), INT pending (1).
const z80StateSize = z80.SerializeSize + 4 + 2 + 1

func (a *Z80) StateSize() int { return z80StateSize }

func (a *Z80) ClearState() {
	a.cpu = z80.New(&a.bus)
	a.bus.bank = 0
	a.odo = 0
	a.intPending = false
	a.brk = false
}

func (a *Z80) SaveState(buf []byte) {
	a.cpu.Serialize(buf[:z80.SerializeSize])
	off := z80.SerializeSize
	binary.LittleEndian.PutUint32(buf[off:], a.odo)
	binary.LittleEndian.PutUint16(buf[off+4:], a.bus.bank)
	buf[off+6] = 0
	if a.intPending {
		buf[off+6] = 1
	}
}

func (a *Z80) LoadState(buf []byte) error {
	if len(buf) < z80StateSize {
		return fmt.Errorf("%w: z80 needs %d bytes, got %d", ErrBadState, z80StateSize, len(buf))
	}
	if err := a.cpu.Deserialize(buf[:z80.SerializeSize]); err != nil {
		return fmt.Errorf("%w: %w", ErrBadState, err)
	}
	off := z80.SerializeSize
	a.odo = binary.LittleEndian.Uint32(buf[off:])
	a.bus.bank = binary.LittleEndian.Uint16(buf[off+4:]) & z80BankMask
	a.intPending = buf[off+6] != 0
	a.cpu.INT(a.intPending, 0xFF)
	a.brk = false
	return nil
}

// Reset starts execution at 0 with the bank register cleared.
func (a *Z80) Reset() {
	a.cpu.Reset()
	a.bus.bank = 0
	a.intPending = false
	a.cpu.INT(false, 0xFF)
	a.brk = false
}

// Execute runs until maxCycles have been consumed or a bus access
// requested a break. While INT is asserted it is released as soon as the
// CPU acknowledges it, seen as IFF1 dropping.
func (a *Z80) Execute(maxCycles int) error {
	a.brk = false
	consumed := 0
	for consumed < maxCycles {
		var prevIFF1 bool
		if a.intPending {
			prevIFF1 = a.cpu.Registers().IFF1
		}

		n := a.cpu.StepCycles(maxCycles - consumed)
		if n == 0 {
			return fmt.Errorf("%w at pc %04X", ErrHalted, a.cpu.Registers().PC)
		}
		consumed += n
		a.odo += uint32(n)

		if a.intPending && prevIFF1 && !a.cpu.Registers().IFF1 {
			a.intPending = false
			a.cpu.INT(false, 0xFF)
		}
		if a.brk {
			a.brk = false
			break
		}
	}
	return nil
}

func (a *Z80) Odometer() uint32 { return a.odo }

// RequestInterrupt asserts INT in mode 1/2 style. The level is not
// visible to a Z80.
func (a *Z80) RequestInterrupt(level uint8) {
	if level == 0 {
		return
	}
	a.intPending = true
	a.cpu.INT(true, 0xFF)
}

func (a *Z80) Break() { a.brk = true }

func (a *Z80) InstallBus(m *emu.BusMap) { a.bus.m = m }

func (a *Z80) PC() uint32 { return uint32(a.cpu.Registers().PC) }
