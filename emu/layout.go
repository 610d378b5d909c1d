package emu

import (
	"encoding/binary"
	"math/rand/v2"
	"unsafe"
)

const (
	// RAMSize is the size of sound RAM.
	RAMSize = 0x80000
	ramMask = RAMSize - 1

	// GuardSize is the number of 0xFF bytes on each side of RAM. Reads that
	// straddle the end of the RAM window land in the guard instead of
	// neighbouring state.
	GuardSize = 0x9000
	guardFill = 0xFF

	// ByteSwizzle is XORed into byte addresses on upload and handed to the
	// chip's RAM binding. RAM is kept in 68000 byte order so it is zero.
	ByteSwizzle = 0
)

// State is a caller-owned, relocatable save-state. It holds no pointers:
// every internal reference is an offset from the start of the slice, so a
// State may be copied, moved or written to disk and resumed later.
type State []byte

// Header field offsets. All values are little-endian.
const (
	hdrSelf      = 0x00 // uint64: base address when views were last derived
	hdrStamp     = 0x08 // uint64: commit stamp
	hdrOffMaps   = 0x10
	hdrOffCPU    = 0x14
	hdrOffChip   = 0x18
	hdrOffRAM    = 0x1C
	hdrOdometer  = 0x20
	hdrRemaining = 0x24
	hdrAhead     = 0x28
	hdrExecuted  = 0x2C
	hdrPrevLevel = 0x30
	headerSize   = 0x40
)

type header struct {
	self      uint64
	stamp     uint64
	offMaps   uint32
	offCPU    uint32
	offChip   uint32
	offRAM    uint32
	odometer  uint32
	remaining uint32
	ahead     uint32
	executed  int32
	prevLevel uint8
}

func (h *header) decode(st State) {
	le := binary.LittleEndian
	h.self = le.Uint64(st[hdrSelf:])
	h.stamp = le.Uint64(st[hdrStamp:])
	h.offMaps = le.Uint32(st[hdrOffMaps:])
	h.offCPU = le.Uint32(st[hdrOffCPU:])
	h.offChip = le.Uint32(st[hdrOffChip:])
	h.offRAM = le.Uint32(st[hdrOffRAM:])
	h.odometer = le.Uint32(st[hdrOdometer:])
	h.remaining = le.Uint32(st[hdrRemaining:])
	h.ahead = le.Uint32(st[hdrAhead:])
	h.executed = int32(le.Uint32(st[hdrExecuted:]))
	h.prevLevel = st[hdrPrevLevel]
}

func (h *header) encode(st State) {
	le := binary.LittleEndian
	le.PutUint64(st[hdrSelf:], h.self)
	le.PutUint64(st[hdrStamp:], h.stamp)
	le.PutUint32(st[hdrOffMaps:], h.offMaps)
	le.PutUint32(st[hdrOffCPU:], h.offCPU)
	le.PutUint32(st[hdrOffChip:], h.offChip)
	le.PutUint32(st[hdrOffRAM:], h.offRAM)
	le.PutUint32(st[hdrOdometer:], h.odometer)
	le.PutUint32(st[hdrRemaining:], h.remaining)
	le.PutUint32(st[hdrAhead:], h.ahead)
	le.PutUint32(st[hdrExecuted:], uint32(h.executed))
	st[hdrPrevLevel] = h.prevLevel
}

// StateSize returns the number of bytes a State needs for the given
// engines.
func StateSize(cpu CPU, chip Chip) int {
	return headerSize + mapsSize + align(cpu.StateSize()) + align(chip.StateSize()) +
		GuardSize + RAMSize + GuardSize
}

func align(n int) int {
	return (n + 7) &^ 7
}

// baseOf is the identity marker for a State. It is only ever compared.
func baseOf(st State) uint64 {
	return uint64(uintptr(unsafe.Pointer(unsafe.SliceData(st))))
}

// Init lays out st and puts both engines in their power-on state.
func (c *Core) Init(st State) error {
	if len(st) < c.StateSize() {
		return ErrStateTooSmall
	}

	clear(st[:headerSize])
	c.h = header{}
	off := uint32(headerSize)
	c.h.offMaps = off
	off += mapsSize
	c.h.offCPU = off
	off += uint32(align(c.cpu.StateSize()))
	c.h.offChip = off
	off += uint32(align(c.chip.StateSize()))
	c.h.offRAM = off

	writeDescriptors(st[c.h.offMaps : c.h.offMaps+mapsSize])

	mem := st[c.h.offRAM : int(c.h.offRAM)+GuardSize+RAMSize+GuardSize]
	for i := range mem {
		mem[i] = guardFill
	}
	clear(mem[GuardSize : GuardSize+RAMSize])

	c.cpu.ClearState()
	c.chip.ClearState()
	c.cpu.SaveState(c.cpuRegion(st))
	c.chip.SaveState(c.chipRegion(st))

	c.h.stamp = rand.Uint64()
	c.h.encode(st)
	c.bound = 0
	c.relocationCheck(st)
	return nil
}

// CPUState returns the CPU engine's region of st, or nil if st is too
// short.
func (c *Core) CPUState(st State) []byte {
	if len(st) < c.StateSize() {
		return nil
	}
	c.h.decode(st)
	return c.cpuRegion(st)
}

// ChipState returns the chip engine's region of st, or nil if st is too
// short.
func (c *Core) ChipState(st State) []byte {
	if len(st) < c.StateSize() {
		return nil
	}
	c.h.decode(st)
	return c.chipRegion(st)
}

func (c *Core) cpuRegion(st State) []byte {
	return st[c.h.offCPU : int(c.h.offCPU)+c.cpu.StateSize()]
}

func (c *Core) chipRegion(st State) []byte {
	return st[c.h.offChip : int(c.h.offChip)+c.chip.StateSize()]
}

// relocationCheck decodes the header and rebuilds every derived view when
// st is not the blob the Core last worked on, or has moved, or has been
// overwritten with a different snapshot since. Engine state is reloaded
// only in the last case: a blob carrying the stamp of the Core's latest
// commit already matches the live engines, which may hold state (a queued
// interrupt, a stopped CPU) their saved form does not.
//
// It reports false, touching nothing, when st is too short to be a State
// for this Core's engines.
func (c *Core) relocationCheck(st State) bool {
	if len(st) < c.StateSize() {
		return false
	}
	c.h.decode(st)
	base := baseOf(st)
	if c.h.self == base && c.bound == base && c.stamp == c.h.stamp {
		return true
	}

	c.mem = st[c.h.offRAM : int(c.h.offRAM)+GuardSize+RAMSize+GuardSize]
	c.ram = c.mem[GuardSize : GuardSize+RAMSize]
	c.bus = c.buildBusMap(readDescriptors(st[c.h.offMaps : c.h.offMaps+mapsSize]))
	c.cpu.InstallBus(c.bus)

	if c.stamp != c.h.stamp {
		if err := c.cpu.LoadState(c.cpuRegion(st)); err != nil {
			c.log.Warn("cpu state rejected, clearing", "error", err)
			c.cpu.ClearState()
		}
		if err := c.chip.LoadState(c.chipRegion(st)); err != nil {
			c.log.Warn("chip state rejected, clearing", "error", err)
			c.chip.ClearState()
		}
	}
	c.chip.BindRAM(c.ram, ByteSwizzle)

	if c.h.self != base {
		c.log.Debug("state relocated", "from", c.h.self, "to", base)
	}
	c.h.self = base
	binary.LittleEndian.PutUint64(st[hdrSelf:], base)
	c.bound = base
	c.stamp = c.h.stamp
	return true
}

// commit writes the header and both engines' state back into st. Each
// commit draws a fresh stamp so that two Cores resuming copies of one
// snapshot never end up with matching stamps.
func (c *Core) commit(st State) {
	c.h.stamp = rand.Uint64()
	c.stamp = c.h.stamp
	c.cpu.SaveState(c.cpuRegion(st))
	c.chip.SaveState(c.chipRegion(st))
	c.h.encode(st)
}
