package adapter

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"log/slog"
	"strconv"

	emucore "github.com/user-none/eblitui/api"

	"github.com/user-none/satsound/emu"
	"github.com/user-none/satsound/psf"
)

// Compile-time interface checks.
var _ emucore.SaveStater = (*Player)(nil)
var _ emucore.MemoryInspector = (*Player)(nil)
var _ emucore.MemoryMapper = (*Player)(nil)

const (
	SampleRate = 44100

	// DefaultBlockCycles leaves the cycle budget unbounded so each Render
	// call is limited by its sample count alone.
	DefaultBlockCycles = 0x7FFFFFFF
)

// Save state format constants
const (
	stateVersion    = 1
	stateMagic      = "satsoundSave"
	stateHeaderSize = 18 // magic(12) + version(2) + dataCRC(4)
)

// Player owns a Core and the State it runs on.
type Player struct {
	core        *emu.Core
	st          emu.State
	blockCycles int
	buf         []int16
}

// NewPlayer builds a Player for the given engines and initializes its
// State.
func NewPlayer(cpu emu.CPU, chip emu.Chip, log *slog.Logger) (*Player, error) {
	c := emu.New(cpu, chip, emu.Config{Logger: log})
	st := make(emu.State, c.StateSize())
	if err := c.Init(st); err != nil {
		return nil, err
	}
	return &Player{core: c, st: st, blockCycles: DefaultBlockCycles}, nil
}

// SetRecorder attaches a recorder to the Core, nil detaches it.
func (p *Player) SetRecorder(r emu.Recorder) {
	p.core.SetRecorder(r)
}

// Load uploads a program image into sound RAM and resets the CPU. Whatever
// lies beyond the end of RAM is dropped; img itself is not modified.
func (p *Player) Load(img *psf.Image) {
	clipped := psf.Image{Start: img.Start, Data: img.Data}
	clipped.Clip(emu.RAMSize)
	p.core.Upload(p.st, clipped.Start, clipped.Data)
}

// Render produces up to samples stereo frames. It stops early only when the
// Core makes no progress or fails.
func (p *Player) Render(samples int) ([]int16, error) {
	if cap(p.buf) < samples*2 {
		p.buf = make([]int16, samples*2)
	}
	out := p.buf[:samples*2]

	done := 0
	for done < samples {
		executed, produced, err := p.core.Execute(p.st, p.blockCycles, out[done*2:], samples-done)
		done += produced
		if err != nil {
			return out[:done*2], err
		}
		if executed == 0 && produced == 0 {
			break
		}
	}
	return out[:done*2], nil
}

// PC returns the CPU program counter.
func (p *Player) PC() uint32 {
	return p.core.PC(p.st)
}

// SetOption applies a core option change identified by key.
func (p *Player) SetOption(key string, value string) {
	switch key {
	case "block_cycles":
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			p.blockCycles = n
		}
	}
}

// Close releases any resources held by the player.
func (p *Player) Close() {}

// SerializeSize is the length of a save state.
func (p *Player) SerializeSize() int {
	return stateHeaderSize + len(p.st)
}

// Serialize creates a save state and returns it as a byte slice.
func (p *Player) Serialize() ([]byte, error) {
	data := make([]byte, p.SerializeSize())
	copy(data[0:12], stateMagic)
	binary.LittleEndian.PutUint16(data[12:14], stateVersion)
	copy(data[stateHeaderSize:], p.st)
	binary.LittleEndian.PutUint32(data[14:18], crc32.ChecksumIEEE(data[stateHeaderSize:]))
	return data, nil
}

// Deserialize restores player state from a save state byte slice. The
// blob is copied in place; the Core notices and reloads its engines.
func (p *Player) Deserialize(data []byte) error {
	if err := p.VerifyState(data); err != nil {
		return err
	}
	copy(p.st, data[stateHeaderSize:])
	return nil
}

// VerifyState checks if a save state is valid without loading it.
func (p *Player) VerifyState(data []byte) error {
	if len(data) != p.SerializeSize() {
		return errors.New("save state size mismatch")
	}
	if string(data[0:12]) != stateMagic {
		return errors.New("invalid save state magic")
	}
	if binary.LittleEndian.Uint16(data[12:14]) != stateVersion {
		return errors.New("unsupported save state version")
	}
	if crc32.ChecksumIEEE(data[stateHeaderSize:]) != binary.LittleEndian.Uint32(data[14:18]) {
		return errors.New("save state checksum mismatch")
	}
	return nil
}

// ReadMemory reads sound RAM from a flat address into buf and returns the
// number of bytes read.
func (p *Player) ReadMemory(addr uint32, buf []byte) uint32 {
	return uint32(p.core.ReadRAM(p.st, addr, buf))
}

// MemoryMap returns a list of available memory regions with sizes.
func (p *Player) MemoryMap() []emucore.MemoryRegion {
	return []emucore.MemoryRegion{
		{Type: emucore.MemorySystemRAM, Size: emu.RAMSize},
	}
}

// ReadRegion returns a copy of the specified memory region.
func (p *Player) ReadRegion(regionType int) []byte {
	if regionType != emucore.MemorySystemRAM {
		return nil
	}
	out := make([]byte, emu.RAMSize)
	p.core.ReadRAM(p.st, 0, out)
	return out
}

// WriteRegion writes data to the specified memory region.
func (p *Player) WriteRegion(regionType int, data []byte) {
	if regionType == emucore.MemorySystemRAM {
		p.core.WriteRAM(p.st, 0, data)
	}
}
