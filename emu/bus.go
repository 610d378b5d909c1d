package emu

import "encoding/binary"

// Access is a class of bus access. Each class has its own map.
type Access int

const (
	Fetch Access = iota
	ReadByte
	ReadWord
	WriteByte
	WriteWord
	accessClasses
)

type rangeKind uint32

const (
	kindEnd rangeKind = iota
	kindRAM
	kindRegister
)

const (
	// RegisterBase is the first address of the chip register window.
	RegisterBase = 0x100000
	registerEnd  = 0x100FFF
	registerMask = 0xFFE

	maxRanges = 3 // per class, including the terminator
	descSize  = 12
	mapsSize  = 5 * maxRanges * descSize // one table per access class
)

type rangeDesc struct {
	low, high uint32
	kind      rangeKind
}

// platformMap is the sound CPU's view of the world. Ranges are checked in
// order and the first match wins.
var platformMap = [accessClasses][]rangeDesc{
	Fetch: {
		{0x000000, ramMask, kindRAM},
	},
	ReadByte: {
		{0x000000, ramMask, kindRAM},
		{RegisterBase, registerEnd, kindRegister},
	},
	ReadWord: {
		{0x000000, ramMask, kindRAM},
		{RegisterBase, registerEnd, kindRegister},
	},
	WriteByte: {
		{0x000000, ramMask, kindRAM},
		{RegisterBase, registerEnd, kindRegister},
	},
	WriteWord: {
		{0x000000, ramMask, kindRAM},
		{RegisterBase, registerEnd, kindRegister},
	},
}

func writeDescriptors(buf []byte) {
	clear(buf)
	le := binary.LittleEndian
	for class, ranges := range platformMap {
		for i, r := range ranges {
			at := (class*maxRanges + i) * descSize
			le.PutUint32(buf[at:], r.low)
			le.PutUint32(buf[at+4:], r.high)
			le.PutUint32(buf[at+8:], uint32(r.kind))
		}
	}
}

func readDescriptors(buf []byte) [accessClasses][]rangeDesc {
	var out [accessClasses][]rangeDesc
	le := binary.LittleEndian
	for class := range out {
		for i := 0; i < maxRanges; i++ {
			at := (class*maxRanges + i) * descSize
			kind := rangeKind(le.Uint32(buf[at+8:]))
			if kind == kindEnd {
				break
			}
			out[class] = append(out[class], rangeDesc{
				low:  le.Uint32(buf[at:]),
				high: le.Uint32(buf[at+4:]),
				kind: kind,
			})
		}
	}
	return out
}

// Region is one entry of a BusMap: either a direct view of memory or a
// handler pair.
type Region struct {
	Low, High uint32

	mem  []byte // backing slice for direct regions
	base int    // index in mem of Low

	read  func(addr uint32) uint16
	write func(addr uint32, val uint16)
}

// BusMap routes CPU accesses by class and address. It is rebuilt from the
// descriptors in a State whenever the State moves and must not be retained
// by engines across InstallBus calls.
type BusMap struct {
	classes [accessClasses][]Region
	onStore func(addr uint32, data []byte)
}

func (m *BusMap) find(class Access, addr uint32) *Region {
	rs := m.classes[class]
	for i := range rs {
		if addr >= rs[i].Low && addr <= rs[i].High {
			return &rs[i]
		}
	}
	return nil
}

func (r *Region) index(addr uint32) int {
	return r.base + int(addr-r.Low)
}

// Fetch16 reads an instruction word.
func (m *BusMap) Fetch16(addr uint32) uint16 {
	r := m.find(Fetch, addr)
	if r == nil || r.mem == nil {
		return 0
	}
	return binary.BigEndian.Uint16(r.mem[r.index(addr):])
}

// Fetch8 reads an instruction byte.
func (m *BusMap) Fetch8(addr uint32) uint8 {
	r := m.find(Fetch, addr)
	if r == nil || r.mem == nil {
		return 0
	}
	return r.mem[r.index(addr)]
}

func (m *BusMap) Read8(addr uint32) uint8 {
	r := m.find(ReadByte, addr)
	switch {
	case r == nil:
		return 0
	case r.mem != nil:
		return r.mem[r.index(addr)]
	default:
		return uint8(r.read(addr))
	}
}

func (m *BusMap) Read16(addr uint32) uint16 {
	r := m.find(ReadWord, addr)
	switch {
	case r == nil:
		return 0
	case r.mem != nil:
		return binary.BigEndian.Uint16(r.mem[r.index(addr):])
	default:
		return r.read(addr)
	}
}

// Read32 reads a long word. Direct regions are read in one go, so a long
// read at the last word of RAM picks up guard bytes.
func (m *BusMap) Read32(addr uint32) uint32 {
	if r := m.find(ReadWord, addr); r != nil && r.mem != nil {
		return binary.BigEndian.Uint32(r.mem[r.index(addr):])
	}
	return uint32(m.Read16(addr))<<16 | uint32(m.Read16(addr+2))
}

func (m *BusMap) Write8(addr uint32, val uint8) {
	r := m.find(WriteByte, addr)
	switch {
	case r == nil:
	case r.mem != nil:
		i := r.index(addr)
		r.mem[i] = val
		m.stored(addr, r.mem[i:i+1])
	default:
		r.write(addr, uint16(val))
	}
}

func (m *BusMap) Write16(addr uint32, val uint16) {
	r := m.find(WriteWord, addr)
	switch {
	case r == nil:
	case r.mem != nil:
		i := r.index(addr)
		binary.BigEndian.PutUint16(r.mem[i:], val)
		m.stored(addr, r.mem[i:i+2])
	default:
		r.write(addr, val)
	}
}

// Write32 is two word writes, high word first.
func (m *BusMap) Write32(addr uint32, val uint32) {
	m.Write16(addr, uint16(val>>16))
	m.Write16(addr+2, uint16(val))
}

func (m *BusMap) stored(addr uint32, data []byte) {
	if m.onStore != nil {
		m.onStore(addr, data)
	}
}

// buildBusMap turns descriptors into a live map over the current RAM view.
func (c *Core) buildBusMap(desc [accessClasses][]rangeDesc) *BusMap {
	m := &BusMap{}
	if c.rec != nil {
		rec := c.rec
		m.onStore = func(addr uint32, data []byte) { rec.RAMWrite(addr, data) }
	}
	for class, ranges := range desc {
		for _, d := range ranges {
			r := Region{Low: d.low, High: d.high}
			switch d.kind {
			case kindRAM:
				r.mem = c.mem
				r.base = GuardSize
			case kindRegister:
				switch Access(class) {
				case ReadByte:
					r.read = c.readRegisterByte
				case ReadWord:
					r.read = c.readRegisterWord
				case WriteByte:
					r.write = c.writeRegisterByte
				case WriteWord:
					r.write = c.writeRegisterWord
				default:
					continue
				}
			default:
				continue
			}
			m.classes[class] = append(m.classes[class], r)
		}
	}
	return m
}

func laneShift(addr uint32) uint32 {
	return ((addr & 1) ^ 1) * 8
}

func (c *Core) readRegisterByte(addr uint32) uint16 {
	c.advanceSync()
	shift := laneShift(addr)
	return (c.chip.LoadRegister(addr&registerMask, 0xFF<<shift) >> shift) & 0xFF
}

func (c *Core) readRegisterWord(addr uint32) uint16 {
	c.advanceSync()
	return c.chip.LoadRegister(addr&registerMask, 0xFFFF)
}

func (c *Core) writeRegisterByte(addr uint32, val uint16) {
	c.advanceSync()
	shift := laneShift(addr)
	c.storeRegister(addr&registerMask, (val&0xFF)<<shift, 0xFF<<shift)
}

func (c *Core) writeRegisterWord(addr uint32, val uint16) {
	c.advanceSync()
	c.storeRegister(addr&registerMask, val, 0xFFFF)
}

func (c *Core) storeRegister(addr uint32, val, mask uint16) {
	if c.rec != nil {
		c.rec.RegisterWrite(addr, val, mask)
	}
	if c.chip.StoreRegister(addr, val, mask) {
		c.cpu.Break()
	}
}
