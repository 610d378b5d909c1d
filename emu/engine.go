package emu

// CPU is the sound processor engine driven by a Core.
//
// Engines keep their live state in Go objects. The Core asks them to persist
// that state into their region of the State after every mutating call and to
// reload it whenever the State has moved, so the State alone is a complete
// snapshot.
type CPU interface {
	// StateSize is the number of bytes SaveState writes and LoadState reads.
	StateSize() int
	// ClearState puts the engine in its power-on state.
	ClearState()
	SaveState(buf []byte)
	LoadState(buf []byte) error

	// Reset performs a hardware reset, fetching the reset vector through
	// the installed bus.
	Reset()

	// Execute runs for at least maxCycles cycles unless Break is called
	// from inside a bus access. A non-nil error means the engine reached a
	// state it cannot continue from.
	Execute(maxCycles int) error

	// Odometer is a free running cycle counter. It wraps at 32 bits.
	Odometer() uint32

	// RequestInterrupt raises an autovectored interrupt at level (1-7).
	RequestInterrupt(level uint8)

	// Break ends the current Execute call after the instruction in flight.
	Break()

	// InstallBus binds the memory map used for all subsequent accesses.
	InstallBus(m *BusMap)

	PC() uint32
}

// Chip is the sample rendering engine driven by a Core.
type Chip interface {
	StateSize() int
	ClearState()
	SaveState(buf []byte)
	LoadState(buf []byte) error

	// BindRAM gives the chip its view of sound RAM. Byte addresses are
	// XORed with swizzle before indexing ram.
	BindRAM(ram []byte, swizzle uint32)

	// BeginBuffer sets the interleaved stereo output for subsequent Render
	// calls. A nil buffer renders without output.
	BeginBuffer(out []int16)

	// Render advances the chip by n samples. Output may be deferred until
	// Flush or the next register store.
	Render(n int)
	Flush()

	// LoadRegister and StoreRegister access the 16-bit register at addr
	// (even, relative to the register window) through mask.
	LoadRegister(addr uint32, mask uint16) uint16
	// StoreRegister reports whether the CPU should stop executing so the
	// caller can re-evaluate interrupts and deadlines.
	StoreRegister(addr uint32, value, mask uint16) bool

	// MinSamplesUntilInterrupt is how many samples may be rendered before
	// the chip could raise a new interrupt.
	MinSamplesUntilInterrupt() uint32
	// PendingLevel is the interrupt level the chip currently asserts, 0 for
	// none.
	PendingLevel() uint8
}

// Recorder observes the externally visible activity of a Core: register
// stores, CPU stores into RAM and rendered sample counts, in timeline order.
type Recorder interface {
	RegisterWrite(addr uint32, value, mask uint16)
	RAMWrite(addr uint32, data []byte)
	Samples(n int)
}
