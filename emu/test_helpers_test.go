package emu

import (
	"encoding/binary"
	"errors"
)

// fakeCPU is a scripted CPU engine. Each Execute call advances the odometer
// by the requested cycles plus overshoot, after running the optional hook.
type fakeCPU struct {
	odo       uint32
	pc        uint32
	overshoot uint32
	brk       bool
	breaks    int
	bus       *BusMap
	irqs      []uint8
	resets    int
	slices    []int
	onExecute func(f *fakeCPU, n int)
	fault     error
	faultAt   int // fail on this Execute call (1-based), 0 for never
	calls     int
	loads     int
}

const fakeCPUStateSize = 8

func (f *fakeCPU) StateSize() int { return fakeCPUStateSize }
func (f *fakeCPU) ClearState()    { f.odo, f.pc = 0, 0 }

func (f *fakeCPU) SaveState(buf []byte) {
	binary.LittleEndian.PutUint32(buf, f.odo)
	binary.LittleEndian.PutUint32(buf[4:], f.pc)
}

func (f *fakeCPU) LoadState(buf []byte) error {
	if len(buf) < fakeCPUStateSize {
		return errors.New("short")
	}
	f.loads++
	f.odo = binary.LittleEndian.Uint32(buf)
	f.pc = binary.LittleEndian.Uint32(buf[4:])
	return nil
}

func (f *fakeCPU) Reset() {
	f.resets++
	f.pc = f.bus.Read32(4)
}

func (f *fakeCPU) Execute(n int) error {
	f.calls++
	f.slices = append(f.slices, n)
	if f.onExecute != nil {
		f.onExecute(f, n)
	}
	if f.brk {
		f.brk = false
		f.breaks++
		f.odo += uint32(min(n, 8))
		return nil
	}
	f.odo += uint32(n) + f.overshoot
	if f.faultAt != 0 && f.calls == f.faultAt {
		return f.fault
	}
	return nil
}

func (f *fakeCPU) Odometer() uint32             { return f.odo }
func (f *fakeCPU) RequestInterrupt(level uint8) { f.irqs = append(f.irqs, level) }
func (f *fakeCPU) Break()                       { f.brk = true }
func (f *fakeCPU) InstallBus(m *BusMap)         { f.bus = m }
func (f *fakeCPU) PC() uint32                   { return f.pc }

type regStore struct {
	addr        uint32
	value, mask uint16
	rendered    int
}

// fakeChip renders a ramp derived from its running sample position so that
// output depends on persisted state.
type fakeChip struct {
	pos          uint32
	renders      []int
	out          []int16
	outPos       int
	flushes      int
	levels       []uint8
	levelCalls   int
	minSamples   uint32
	regs         map[uint32]uint16
	stores       []regStore
	breakOnStore bool
	ram          []byte
}

const fakeChipStateSize = 4

func newFakeChip() *fakeChip {
	return &fakeChip{minSamples: 0xFFFFFFFF, regs: map[uint32]uint16{}}
}

func (f *fakeChip) StateSize() int { return fakeChipStateSize }
func (f *fakeChip) ClearState()    { f.pos = 0 }

func (f *fakeChip) SaveState(buf []byte) { binary.LittleEndian.PutUint32(buf, f.pos) }

func (f *fakeChip) LoadState(buf []byte) error {
	f.pos = binary.LittleEndian.Uint32(buf)
	return nil
}

func (f *fakeChip) BindRAM(ram []byte, swizzle uint32) { f.ram = ram }

func (f *fakeChip) BeginBuffer(out []int16) {
	f.out = out
	f.outPos = 0
}

func (f *fakeChip) Render(n int) {
	f.renders = append(f.renders, n)
	for i := 0; i < n; i++ {
		if f.out != nil && f.outPos*2+1 < len(f.out) {
			f.out[f.outPos*2] = int16(f.pos)
			f.out[f.outPos*2+1] = -int16(f.pos)
			f.outPos++
		}
		f.pos++
	}
}

func (f *fakeChip) Flush() { f.flushes++ }

func (f *fakeChip) rendered() int {
	total := 0
	for _, n := range f.renders {
		total += n
	}
	return total
}

func (f *fakeChip) LoadRegister(addr uint32, mask uint16) uint16 {
	return f.regs[addr] & mask
}

func (f *fakeChip) StoreRegister(addr uint32, value, mask uint16) bool {
	f.regs[addr] = f.regs[addr]&^mask | value&mask
	f.stores = append(f.stores, regStore{addr, value, mask, f.rendered()})
	return f.breakOnStore
}

func (f *fakeChip) MinSamplesUntilInterrupt() uint32 { return f.minSamples }

func (f *fakeChip) PendingLevel() uint8 {
	if len(f.levels) == 0 {
		return 0
	}
	i := min(f.levelCalls, len(f.levels)-1)
	f.levelCalls++
	return f.levels[i]
}

type fakeRecorder struct {
	regWrites []regStore
	ramWrites map[uint32]byte
	samples   int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{ramWrites: map[uint32]byte{}}
}

func (r *fakeRecorder) RegisterWrite(addr uint32, value, mask uint16) {
	r.regWrites = append(r.regWrites, regStore{addr: addr, value: value, mask: mask})
}

func (r *fakeRecorder) RAMWrite(addr uint32, data []byte) {
	for i, b := range data {
		r.ramWrites[addr+uint32(i)] = b
	}
}

func (r *fakeRecorder) Samples(n int) { r.samples += n }

// newTestCore builds a Core over fakes and an initialized State.
func newTestCore(cfg Config) (*Core, *fakeCPU, *fakeChip, State) {
	cpu := &fakeCPU{}
	chip := newFakeChip()
	c := New(cpu, chip, cfg)
	st := make(State, c.StateSize())
	if err := c.Init(st); err != nil {
		panic(err)
	}
	return c, cpu, chip, st
}
