// Package psgchip puts an SN76489 behind the emu.Chip interface, for
// drivers that want a simple tone generator on the sound bus instead of the
// PCM chip.
package psgchip

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/user-none/go-chip-sn76489"

	"github.com/user-none/satsound/emu"
)

// ErrBadState is returned by LoadState for a buffer of the wrong size.
var ErrBadState = errors.New("psgchip: invalid chip state")

const (
	// Clock is the PSG input clock in Hz.
	Clock = 3579545
	// SampleRate is the output rate in Hz.
	SampleRate = 44100

	// Register offsets in the sound register window.
	RegData = 0x000
	RegLast = 0x002

	chunk = 1024
)

// PSG is the chip engine.
type PSG struct {
	psg   *sn76489.SN76489
	carry uint64 // clock remainder, in 1/SampleRate clocks
	last  uint8

	out    []int16
	outPos int
	queued int
	hold   int16
}

var _ emu.Chip = (*PSG)(nil)

func New() *PSG {
	p := &PSG{}
	p.ClearState()
	return p
}

func (p *PSG) ClearState() {
	p.psg = sn76489.New(Clock, SampleRate, chunk+2, sn76489.Sega)
	p.carry = 0
	p.last = 0
	p.queued = 0
	p.hold = 0
}

// The PSG has no view of sound RAM.
func (p *PSG) BindRAM(ram []byte, swizzle uint32) {}

func (p *PSG) BeginBuffer(out []int16) {
	p.out = out
	p.outPos = 0
}

func (p *PSG) Render(n int) {
	if n > 0 {
		p.queued += n
	}
}

func (p *PSG) Flush() {
	for p.queued > 0 {
		n := min(p.queued, chunk)
		p.generate(n)
		p.queued -= n
	}
}

// generate clocks the PSG for n output samples. The library's own sample
// counter may land one sample either side of n; the block is padded or
// trimmed to n.
func (p *PSG) generate(n int) {
	total := uint64(n)*Clock + p.carry
	clocks := total / SampleRate
	p.carry = total % SampleRate

	p.psg.GenerateSamples(int(clocks))
	buf, count := p.psg.GetBuffer()
	for i := 0; i < n; i++ {
		v := p.hold
		if i < count {
			v = int16(buf[i] * 32767 * 0.5)
			p.hold = v
		}
		if p.out != nil && p.outPos*2+1 < len(p.out) {
			p.out[p.outPos*2] = v
			p.out[p.outPos*2+1] = v
			p.outPos++
		}
	}
}

func (p *PSG) LoadRegister(addr uint32, mask uint16) uint16 {
	if addr == RegLast {
		return uint16(p.last) & mask
	}
	return 0
}

// StoreRegister writes the selected byte lane of a store to RegData into
// the PSG.
func (p *PSG) StoreRegister(addr uint32, value, mask uint16) bool {
	if addr != RegData {
		return false
	}
	p.Flush()
	b := uint8(value)
	if mask&0x00FF == 0 {
		b = uint8(value >> 8)
	}
	p.last = b
	p.psg.Write(b)
	return false
}

func (p *PSG) MinSamplesUntilInterrupt() uint32 { return 0xFFFFFFFF }
func (p *PSG) PendingLevel() uint8              { return 0 }

// Serialized layout: library state, clock carry, last byte, held sample.
const stateSize = sn76489.SerializeSize + 8 + 1 + 2

func (p *PSG) StateSize() int { return stateSize }

func (p *PSG) SaveState(buf []byte) {
	p.psg.Serialize(buf[:sn76489.SerializeSize])
	off := sn76489.SerializeSize
	binary.LittleEndian.PutUint64(buf[off:], p.carry)
	buf[off+8] = p.last
	binary.LittleEndian.PutUint16(buf[off+9:], uint16(p.hold))
}

func (p *PSG) LoadState(buf []byte) error {
	if len(buf) < stateSize {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrBadState, stateSize, len(buf))
	}
	if err := p.psg.Deserialize(buf[:sn76489.SerializeSize]); err != nil {
		return fmt.Errorf("%w: %w", ErrBadState, err)
	}
	off := sn76489.SerializeSize
	p.carry = binary.LittleEndian.Uint64(buf[off:]) % SampleRate
	p.last = buf[off+8]
	p.hold = int16(binary.LittleEndian.Uint16(buf[off+9:]))
	p.queued = 0
	return nil
}
