// Package scsp implements a Saturn Custom Sound Processor style chip: 32
// PCM slots playing from shared sound RAM, three sample-clocked timers and
// a leveled interrupt controller.
package scsp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/user-none/satsound/emu"
)

// ErrBadState is returned by LoadState for a buffer of the wrong size or
// format.
var ErrBadState = errors.New("scsp: invalid chip state")

const (
	// SampleRate is the output rate in Hz.
	SampleRate = 44100
	// Clock is the chip master clock, 512 times the sample rate.
	Clock = 22579200

	Slots = 32

	regSize    = 0x430
	slotStride = 0x20
	commonBase = 0x400
)

// Common register byte offsets.
const (
	regMVOL  = 0x400 // master volume, bits 0-3
	regMSLC  = 0x408 // monitor slot (bits 11-15), CA readback (bits 7-10)
	regTIMA  = 0x418
	regTIMB  = 0x41A
	regTIMC  = 0x41C
	regSCIEB = 0x41E
	regSCIPD = 0x420
	regSCIRE = 0x422
	regSCILV = 0x424 // SCILV0, SCILV1, SCILV2 at +0, +2, +4
	regMCIEB = 0x42A
	regMCIPD = 0x42C
	regMCIRE = 0x42E

	intTimerA   = 6
	intCPUWrite = 5
	intMask     = 0x7FF
)

// SCSP is the chip engine. The zero value is not usable; call New.
type SCSP struct {
	regs  [regSize / 2]uint16
	slots [Slots]slot
	timer [3]timer
	scipd uint16
	mcipd uint16

	ram     []byte
	swizzle uint32

	out    []int16
	outPos int
	queued int
}

var _ emu.Chip = (*SCSP)(nil)

// New returns a chip in its power-on state.
func New() *SCSP {
	s := &SCSP{}
	s.ClearState()
	return s
}

func (s *SCSP) ClearState() {
	s.regs = [regSize / 2]uint16{}
	s.slots = [Slots]slot{}
	for i := range s.slots {
		s.slots[i].env = envMax
	}
	s.timer = [3]timer{}
	s.scipd = 0
	s.mcipd = 0
	s.queued = 0
}

func (s *SCSP) BindRAM(ram []byte, swizzle uint32) {
	s.ram = ram
	s.swizzle = swizzle
}

func (s *SCSP) BeginBuffer(out []int16) {
	s.out = out
	s.outPos = 0
}

// Render advances the timers now and queues n samples of audio. The audio
// is mixed on Flush or before the next register store takes effect.
func (s *SCSP) Render(n int) {
	if n <= 0 {
		return
	}
	for i := range s.timer {
		if s.timer[i].advance(&s.regs[(regTIMA>>1)+i], n) {
			s.scipd |= 1 << (intTimerA + i)
			s.mcipd |= 1 << (intTimerA + i)
		}
	}
	s.queued += n
}

func (s *SCSP) Flush() {
	if s.queued == 0 {
		return
	}
	s.mix(s.queued)
	s.queued = 0
}

func (s *SCSP) reg(addr uint32) uint16 {
	return s.regs[addr>>1]
}

func (s *SCSP) LoadRegister(addr uint32, mask uint16) uint16 {
	if addr >= regSize {
		return 0
	}
	var v uint16
	switch addr {
	case regMSLC:
		s.Flush()
		v = s.reg(regMSLC) & 0xF800
		mslc := v >> 11
		v |= uint16(s.slots[mslc].pos>>12&0xF) << 7
	case regSCIPD:
		v = s.scipd
	case regMCIPD:
		v = s.mcipd
	case regSCIRE, regMCIRE:
		v = 0
	default:
		v = s.reg(addr)
	}
	return v & mask
}

// StoreRegister applies a register write after mixing any queued audio so
// the change lands at the right sample.
func (s *SCSP) StoreRegister(addr uint32, value, mask uint16) bool {
	if addr >= regSize {
		return false
	}
	s.Flush()

	value &= mask
	switch addr {
	case regSCIPD:
		if value&(1<<intCPUWrite) != 0 {
			s.scipd |= 1 << intCPUWrite
		}
		return true
	case regSCIRE:
		s.scipd &^= value & intMask
		return true
	case regMCIPD:
		if value&(1<<intCPUWrite) != 0 {
			s.mcipd |= 1 << intCPUWrite
		}
		return false
	case regMCIRE:
		s.mcipd &^= value & intMask
		return false
	}

	i := addr >> 1
	s.regs[i] = s.regs[i]&^mask | value

	if addr < commonBase {
		if addr%slotStride == 0 && s.regs[i]&slotKeyExec != 0 {
			s.regs[i] &^= slotKeyExec
			s.keyExecute()
		}
		return false
	}

	switch addr {
	case regTIMA, regTIMB, regTIMC:
		if mask&0xFF00 != 0 {
			s.timer[(addr-regTIMA)>>1].sub = 0
		}
		return true
	case regSCIEB, regSCILV, regSCILV + 2, regSCILV + 4:
		return true
	}
	return false
}

// PendingLevel is the highest level among interrupt sources that are both
// pending and enabled. Sources 7 and above share the level bits of 7.
func (s *SCSP) PendingLevel() uint8 {
	active := s.scipd & s.reg(regSCIEB) & intMask
	var level uint8
	for b := uint(0); b < 11; b++ {
		if active&(1<<b) == 0 {
			continue
		}
		lb := min(b, 7)
		l := uint8(s.reg(regSCILV)>>lb&1) |
			uint8(s.reg(regSCILV+2)>>lb&1)<<1 |
			uint8(s.reg(regSCILV+4)>>lb&1)<<2
		level = max(level, l)
	}
	return level
}

// MinSamplesUntilInterrupt is the distance to the nearest overflow of a
// timer whose interrupt is enabled.
func (s *SCSP) MinSamplesUntilInterrupt() uint32 {
	best := uint32(0xFFFFFFFF)
	enabled := s.reg(regSCIEB)
	for i := range s.timer {
		if enabled&(1<<(intTimerA+i)) == 0 {
			continue
		}
		best = min(best, s.timer[i].untilOverflow(s.regs[(regTIMA>>1)+i]))
	}
	return best
}

// timer counts up once per 2^prescale samples and overflows from 0xFF.
type timer struct {
	sub uint32
}

func prescale(reg uint16) uint32 { return uint32(reg>>8) & 7 }

func (t *timer) advance(reg *uint16, n int) bool {
	shift := prescale(*reg)
	total := t.sub + uint32(n)
	ticks := total >> shift
	t.sub = total & (1<<shift - 1)
	count := uint32(*reg&0xFF) + ticks
	*reg = *reg&0xFF00 | uint16(count&0xFF)
	return count > 0xFF
}

func (t *timer) untilOverflow(reg uint16) uint32 {
	shift := prescale(reg)
	return (0x100-uint32(reg&0xFF))<<shift - t.sub
}

// Serialized layout: magic, registers, slots, timers, SCIPD, MCIPD.
const (
	stateMagic    = 0x53435350 // "SCSP"
	slotStateSize = 14
	stateSize     = 4 + regSize + Slots*slotStateSize + 3*4 + 2 + 2
)

func (s *SCSP) StateSize() int { return stateSize }

func (s *SCSP) SaveState(buf []byte) {
	le := binary.LittleEndian
	le.PutUint32(buf, stateMagic)
	off := 4
	for _, r := range s.regs {
		le.PutUint16(buf[off:], r)
		off += 2
	}
	for i := range s.slots {
		s.slots[i].save(buf[off:])
		off += slotStateSize
	}
	for _, t := range s.timer {
		le.PutUint32(buf[off:], t.sub)
		off += 4
	}
	le.PutUint16(buf[off:], s.scipd)
	le.PutUint16(buf[off+2:], s.mcipd)
}

func (s *SCSP) LoadState(buf []byte) error {
	le := binary.LittleEndian
	if len(buf) < stateSize {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrBadState, stateSize, len(buf))
	}
	if le.Uint32(buf) != stateMagic {
		return fmt.Errorf("%w: bad magic", ErrBadState)
	}
	off := 4
	for i := range s.regs {
		s.regs[i] = le.Uint16(buf[off:])
		off += 2
	}
	for i := range s.slots {
		s.slots[i].load(buf[off:])
		off += slotStateSize
	}
	for i := range s.timer {
		s.timer[i].sub = le.Uint32(buf[off:])
		off += 4
	}
	s.scipd = le.Uint16(buf[off:])
	s.mcipd = le.Uint16(buf[off+2:])
	s.queued = 0
	return nil
}
