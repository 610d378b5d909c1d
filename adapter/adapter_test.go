package adapter

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	emucore "github.com/user-none/eblitui/api"

	"github.com/user-none/satsound/emu"
	"github.com/user-none/satsound/psf"
	"github.com/user-none/satsound/vgm"
)

// moveW encodes move.w #val,(addr).l
func moveW(val uint16, addr uint32) []byte {
	out := []byte{0x33, 0xFC, byte(val >> 8), byte(val)}
	return binary.BigEndian.AppendUint32(out, addr)
}

type regWrite struct {
	addr uint32
	val  uint16
}

// toneSetup starts slot 0 looping a constant sample at full level.
var toneSetup = []regWrite{
	{0x100400, 0x000F}, // MVOL
	{0x100002, 0x4000}, // SA
	{0x100004, 0x0000}, // LSA
	{0x100006, 0x0100}, // LEA
	{0x100008, 0x001F}, // AR
	{0x10000A, 0x001F}, // RR
	{0x100016, 0xE000}, // DISDL
	{0x100000, 0x1820}, // key on, loop
}

func storeProgram(writes []regWrite) []byte {
	var prog []byte
	for _, w := range writes {
		prog = append(prog, moveW(w.val, w.addr)...)
	}
	return prog
}

// driverImage lays out vectors, a program at $1000 and the looped sample
// at $4000.
func driverImage(prog []byte) *psf.Image {
	data := make([]byte, 0x4200)
	binary.BigEndian.PutUint32(data[0:], 0x7F000) // SSP
	binary.BigEndian.PutUint32(data[4:], 0x1000)  // PC
	copy(data[0x1000:], prog)
	for i := 0x4000; i < len(data); i += 2 {
		binary.BigEndian.PutUint16(data[i:], 0x4000)
	}
	return &psf.Image{Start: 0, Data: data}
}

// toneImage plays the tone, then spins.
func toneImage() *psf.Image {
	return driverImage(append(storeProgram(toneSetup), 0x60, 0xFE))
}

// timerImage plays the tone and then sleeps in STOP. Timer A interrupts at
// level 2 every 64 samples; the handler acknowledges, reloads the timer,
// toggles the slot's direct level and counts at $2000.
func timerImage() *psf.Image {
	prog := storeProgram(append(append([]regWrite(nil), toneSetup...),
		regWrite{0x100418, 0x00C0}, // TIMA
		regWrite{0x100426, 0x0040}, // SCILV1: timer A at level 2
		regWrite{0x10041E, 0x0040}, // SCIEB: timer A
	))
	prog = append(prog,
		0x4E, 0x72, 0x20, 0x00, // stop #$2000
		0x60, 0xFA, // bra.s stop
	)
	img := driverImage(prog)

	handler := storeProgram([]regWrite{
		{0x100422, 0x0040}, // SCIRE: clear timer A
		{0x100418, 0x00C0}, // TIMA
	})
	handler = append(handler, 0x0A, 0x79, 0x20, 0x00, 0x00, 0x10, 0x00, 0x16) // eori.w #$2000,$100016.l
	handler = append(handler, 0x52, 0x79, 0x00, 0x00, 0x20, 0x00)             // addq.w #1,$2000.l
	handler = append(handler, 0x4E, 0x73)                                     // rte
	copy(img.Data[0x3000:], handler)
	binary.BigEndian.PutUint32(img.Data[0x68:], 0x3000) // level 2 autovector
	return img
}

// psgImage is a Z80 program that banks in the register window and starts a
// PSG tone.
func psgImage() *psf.Image {
	return &psf.Image{Data: []byte{
		0x3E, 0x20, 0xD3, 0x00, // bank low = $20
		0x3E, 0x00, 0xD3, 0x01, // bank high = 0
		0x3E, 0x8E, 0x32, 0x01, 0x80, // latch ch0 tone
		0x3E, 0x00, 0x32, 0x01, 0x80, // tone high bits
		0x3E, 0x90, 0x32, 0x01, 0x80, // ch0 full volume
		0x18, 0xFE, // jr $
	}}
}

func nonZero(samples []int16) int {
	n := 0
	for _, s := range samples {
		if s != 0 {
			n++
		}
	}
	return n
}

func newPlayer(t *testing.T, cpu, chip string) *Player {
	t.Helper()
	f := &Factory{}
	p, err := f.Create(cpu, chip)
	require.NoError(t, err)
	return p
}

func TestFactory_Create(t *testing.T) {
	f := &Factory{}
	for _, cpu := range append(f.CPUKinds(), "") {
		for _, chip := range append(f.ChipKinds(), "") {
			p, err := f.Create(cpu, chip)
			require.NoError(t, err, "%s/%s", cpu, chip)
			assert.NotNil(t, p)
		}
	}

	_, err := f.Create("6502", ChipSCSP)
	assert.ErrorIs(t, err, ErrUnknownCPU)
	_, err = f.Create(CPUM68K, "ym2612")
	assert.ErrorIs(t, err, ErrUnknownChip)
}

func TestPlayer_M68KSCSP(t *testing.T) {
	p := newPlayer(t, CPUM68K, ChipSCSP)
	p.Load(toneImage())
	assert.Equal(t, uint32(0x1000), p.PC())

	out, err := p.Render(512)
	require.NoError(t, err)
	require.Len(t, out, 1024)
	assert.Greater(t, nonZero(out), 900)
	assert.Equal(t, uint32(0x1040), p.PC())
}

func TestPlayer_Z80PSG(t *testing.T) {
	p := newPlayer(t, CPUZ80, ChipPSG)
	p.Load(psgImage())

	out, err := p.Render(1000)
	require.NoError(t, err)
	require.Len(t, out, 2000)
	assert.NotZero(t, nonZero(out))
}

func TestPlayer_SaveState(t *testing.T) {
	p := newPlayer(t, CPUM68K, ChipSCSP)
	p.Load(toneImage())
	_, err := p.Render(100)
	require.NoError(t, err)

	saved, err := p.Serialize()
	require.NoError(t, err)
	require.Len(t, saved, p.SerializeSize())

	first, err := p.Render(300)
	require.NoError(t, err)
	first = append([]int16(nil), first...)

	require.NoError(t, p.Deserialize(saved))
	again, err := p.Render(300)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	t.Run("into another player", func(t *testing.T) {
		other := newPlayer(t, CPUM68K, ChipSCSP)
		require.NoError(t, other.Deserialize(saved))
		out, err := other.Render(300)
		require.NoError(t, err)
		assert.Equal(t, first, out)
	})

	t.Run("rejects bad data", func(t *testing.T) {
		bad := append([]byte(nil), saved...)
		bad[len(bad)-1] ^= 0xFF
		assert.Error(t, p.Deserialize(bad))
		assert.Error(t, p.Deserialize(saved[:len(saved)-1]))

		bad = append([]byte(nil), saved...)
		bad[0] = 'X'
		assert.Error(t, p.Deserialize(bad))
	})
}

func TestPlayer_TimerDriverSurvivesStateMove(t *testing.T) {
	type result struct {
		out   []int16
		pc    uint32
		ticks uint16
		ram   []byte
	}

	tests := []struct {
		name string
		move func(t *testing.T, p *Player) *Player
	}{
		{
			name: "in place",
			move: func(t *testing.T, p *Player) *Player { return p },
		},
		{
			name: "state copied to a new slice",
			move: func(t *testing.T, p *Player) *Player {
				p.st = append(emu.State(nil), p.st...)
				return p
			},
		},
		{
			name: "restored into another player",
			move: func(t *testing.T, p *Player) *Player {
				saved, err := p.Serialize()
				require.NoError(t, err)
				other := newPlayer(t, CPUM68K, ChipSCSP)
				require.NoError(t, other.Deserialize(saved))
				return other
			},
		},
	}

	var want result
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlayer(t, CPUM68K, ChipSCSP)
			p.Load(timerImage())
			_, err := p.Render(300)
			require.NoError(t, err)

			p = tt.move(t, p)
			out, err := p.Render(2000)
			require.NoError(t, err)

			ram := p.ReadRegion(emucore.MemorySystemRAM)
			got := result{
				out:   append([]int16(nil), out...),
				pc:    p.PC(),
				ticks: binary.BigEndian.Uint16(ram[0x2000:]),
				ram:   ram,
			}
			if i == 0 {
				want = got
				// 2300 samples at one interrupt per 64.
				assert.GreaterOrEqual(t, got.ticks, uint16(30))
				assert.Greater(t, nonZero(got.out), 1000)
				return
			}
			assert.Equal(t, want.pc, got.pc)
			assert.Equal(t, want.ticks, got.ticks)
			assert.Equal(t, want.out, got.out)
			assert.True(t, bytes.Equal(want.ram, got.ram), "sound RAM differs")
		})
	}
}

func TestPlayer_LoadLeavesImageIntact(t *testing.T) {
	p := newPlayer(t, CPUM68K, ChipSCSP)
	data := make([]byte, 0x20)
	for i := range data {
		data[i] = byte(i + 1)
	}
	img := &psf.Image{Start: emu.RAMSize - 0x10, Data: data}

	p.Load(img)
	assert.Equal(t, uint32(emu.RAMSize-0x10), img.Start)
	assert.Len(t, img.Data, 0x20)

	buf := make([]byte, 0x20)
	require.Equal(t, uint32(0x10), p.ReadMemory(emu.RAMSize-0x10, buf))
	assert.Equal(t, data[:0x10], buf[:0x10])
	require.Equal(t, uint32(1), p.ReadMemory(0, buf[:1]))
	assert.Equal(t, byte(0), buf[0], "nothing wraps to the start of RAM")
}

func TestPlayer_Memory(t *testing.T) {
	p := newPlayer(t, CPUM68K, ChipSCSP)
	p.Load(toneImage())

	buf := make([]byte, 4)
	require.Equal(t, uint32(4), p.ReadMemory(4, buf))
	assert.Equal(t, []byte{0, 0, 0x10, 0}, buf)
	assert.Zero(t, p.ReadMemory(emu.RAMSize, buf))

	regions := p.MemoryMap()
	require.Len(t, regions, 1)
	assert.Equal(t, emucore.MemorySystemRAM, regions[0].Type)
	assert.Equal(t, emu.RAMSize, regions[0].Size)

	ram := p.ReadRegion(emucore.MemorySystemRAM)
	require.Len(t, ram, emu.RAMSize)
	assert.Equal(t, byte(0x33), ram[0x1000])
	assert.Nil(t, p.ReadRegion(emucore.MemorySaveRAM))

	p.WriteRegion(emucore.MemorySystemRAM, []byte{0xDE, 0xAD})
	require.Equal(t, uint32(2), p.ReadMemory(0, buf[:2]))
	assert.Equal(t, []byte{0xDE, 0xAD}, buf[:2])
}

func TestPlayer_BlockCyclesOption(t *testing.T) {
	p := newPlayer(t, CPUM68K, ChipSCSP)
	p.Load(toneImage())

	p.SetOption("block_cycles", "0")
	out, err := p.Render(10)
	require.NoError(t, err)
	assert.Empty(t, out)

	p.SetOption("block_cycles", "bogus")
	p.SetOption("block_cycles", "2560")
	out, err = p.Render(64)
	require.NoError(t, err)
	assert.Len(t, out, 128)
}

func TestPlayer_RecordsVGM(t *testing.T) {
	p := newPlayer(t, CPUM68K, ChipSCSP)
	var buf bytes.Buffer
	w := vgm.NewWriter(&buf)
	p.SetRecorder(w)

	img := toneImage()
	w.Begin(img.Data)
	p.Load(img)
	_, err := p.Render(1000)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data := buf.Bytes()
	assert.Equal(t, uint32(1000), binary.LittleEndian.Uint32(data[0x18:]))
	// MVOL low byte is written as register $401.
	assert.True(t, bytes.Contains(data, []byte{0xC5, 0x04, 0x01, 0x0F}))
	// Key on lands on the slot control word.
	assert.True(t, bytes.Contains(data, []byte{0xC5, 0x00, 0x00, 0x18, 0xC5, 0x00, 0x01, 0x20}))
}
