package scpu

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user-none/satsound/emu"
)

type store struct {
	addr        uint32
	value, mask uint16
}

// stubChip is a silent chip with a fixed interrupt level.
type stubChip struct {
	level        uint8
	breakOnStore bool
	regs         map[uint32]uint16
	stores       []store
}

func newStubChip() *stubChip { return &stubChip{regs: map[uint32]uint16{}} }

func (s *stubChip) StateSize() int                     { return 0 }
func (s *stubChip) ClearState()                        {}
func (s *stubChip) SaveState(buf []byte)               {}
func (s *stubChip) LoadState(buf []byte) error         { return nil }
func (s *stubChip) BindRAM(ram []byte, swizzle uint32) {}
func (s *stubChip) BeginBuffer(out []int16)            {}
func (s *stubChip) Render(n int)                       {}
func (s *stubChip) Flush()                             {}
func (s *stubChip) MinSamplesUntilInterrupt() uint32   { return 0xFFFFFFFF }
func (s *stubChip) PendingLevel() uint8                { return s.level }

func (s *stubChip) LoadRegister(addr uint32, mask uint16) uint16 {
	return s.regs[addr] & mask
}

func (s *stubChip) StoreRegister(addr uint32, value, mask uint16) bool {
	s.regs[addr] = s.regs[addr]&^mask | value&mask
	s.stores = append(s.stores, store{addr, value, mask})
	return s.breakOnStore
}

func newCore(t *testing.T, cpu emu.CPU, chip emu.Chip) (*emu.Core, emu.State) {
	t.Helper()
	c := emu.New(cpu, chip, emu.Config{})
	st := make(emu.State, c.StateSize())
	require.NoError(t, c.Init(st))
	return c, st
}

// be32 appends v as a big-endian long.
func be32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// m68kVectors builds a vector table with the given SSP and PC.
func m68kVectors(ssp, pc uint32) []byte {
	return be32(be32(nil, ssp), pc)
}
