package scpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user-none/satsound/emu"
)

func TestZ80_RunsProgram(t *testing.T) {
	cpu := NewZ80()
	c, st := newCore(t, cpu, newStubChip())
	// ld a,$5A ; ld ($2000),a ; jr $
	c.Upload(st, 0, []byte{0x3E, 0x5A, 0x32, 0x00, 0x20, 0x18, 0xFE})

	executed, produced, err := c.Execute(st, 10*emu.CyclesPerSample, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, 10*emu.CyclesPerSample, executed)
	assert.Equal(t, 10, produced)
	assert.Equal(t, uint16(0x5A00), c.PeekWord(st, 0x2000))
	assert.Equal(t, uint32(5), c.PC(st))
	assert.Equal(t, uint32(executed), cpu.Odometer())
}

func TestZ80_BankedRegisterWindow(t *testing.T) {
	chip := newStubChip()
	c, st := newCore(t, NewZ80(), chip)
	c.Upload(st, 0, []byte{
		0x3E, 0x20, // ld a,$20
		0xD3, 0x00, // out ($00),a
		0x3E, 0x00, // ld a,$00
		0xD3, 0x01, // out ($01),a
		0x3E, 0x77, // ld a,$77
		0x32, 0x01, 0x84, // ld ($8401),a
		0x18, 0xFE, // jr $
	})

	_, _, err := c.Execute(st, 2560, nil, 10)
	require.NoError(t, err)
	require.Len(t, chip.stores, 1)
	assert.Equal(t, store{0x400, 0x0077, 0x00FF}, chip.stores[0])
}

func TestZ80Bus_Bank(t *testing.T) {
	tests := []struct {
		lo, hi uint8
		addr   uint16
		want   uint32
	}{
		{0x00, 0x00, 0x1234, 0x001234},
		{0x00, 0x00, 0x8000, 0x000000},
		{0x20, 0x00, 0x8418, 0x100418},
		{0xFF, 0x01, 0xFFFF, 0xFFFFFF},
		{0x0F, 0xFE, 0x8001, 0x078001},
	}

	for _, tc := range tests {
		var b z80Bus
		b.Out(z80PortBankLo, tc.lo)
		b.Out(z80PortBankHi, tc.hi)
		assert.Equal(t, tc.want, b.device(tc.addr), "bank %02X:%02X addr %04X", tc.hi, tc.lo, tc.addr)
		assert.Equal(t, tc.lo, b.In(z80PortBankLo))
	}
}

func TestZ80_InterruptAcknowledge(t *testing.T) {
	chip := newStubChip()
	cpu := NewZ80()
	c, st := newCore(t, cpu, chip)
	// ld a,$99 ; ld ($2000),a ; jr $
	c.Upload(st, 0x38, []byte{0x3E, 0x99, 0x32, 0x00, 0x20, 0x18, 0xFE})
	// im 1 ; ei ; jr $
	c.Upload(st, 0, []byte{0xED, 0x56, 0xFB, 0x18, 0xFE})

	chip.level = 1
	_, _, err := c.Execute(st, 2560, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x9900), c.PeekWord(st, 0x2000))
	assert.False(t, cpu.intPending)
}

func TestZ80_StateRoundTrip(t *testing.T) {
	cpu := NewZ80()
	c, st := newCore(t, cpu, newStubChip())
	c.Upload(st, 0, []byte{0x3E, 0x20, 0xD3, 0x00, 0x18, 0xFE})
	_, _, err := c.Execute(st, 2560, nil, 10)
	require.NoError(t, err)

	other := NewZ80()
	require.NoError(t, other.LoadState(c.CPUState(st)))
	assert.Equal(t, cpu.PC(), other.PC())
	assert.Equal(t, cpu.Odometer(), other.Odometer())
	assert.Equal(t, uint16(0x20), other.bus.bank)

	assert.ErrorIs(t, other.LoadState(nil), ErrBadState)

	bad := append([]byte(nil), c.CPUState(st)...)
	bad[0] ^= 0xFF // library format version
	assert.ErrorIs(t, other.LoadState(bad), ErrBadState)
}
