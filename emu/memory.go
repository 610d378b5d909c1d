package emu

import "encoding/binary"

// PeekWord reads the big-endian word at addr in sound RAM. A State too
// short for this Core reads as zero.
func (c *Core) PeekWord(st State, addr uint32) uint16 {
	if !c.relocationCheck(st) {
		return 0
	}
	return binary.BigEndian.Uint16(c.ram[addr&(ramMask&^1):])
}

// PokeWord writes a big-endian word into sound RAM without any
// synchronization side effects.
func (c *Core) PokeWord(st State, addr uint32, val uint16) {
	if !c.relocationCheck(st) {
		return
	}
	binary.BigEndian.PutUint16(c.ram[addr&(ramMask&^1):], val)
}

// ReadRAM copies sound RAM starting at addr into buf and returns the number
// of bytes copied. Reads stop at the end of RAM.
func (c *Core) ReadRAM(st State, addr uint32, buf []byte) int {
	if !c.relocationCheck(st) || addr >= RAMSize {
		return 0
	}
	return copy(buf, c.ram[addr:])
}

// WriteRAM copies buf into sound RAM at addr, stopping at the end of RAM,
// and returns the number of bytes written. The CPU is not reset.
func (c *Core) WriteRAM(st State, addr uint32, buf []byte) int {
	if !c.relocationCheck(st) || addr >= RAMSize {
		return 0
	}
	n := copy(c.ram[addr:RAMSize], buf)
	if c.rec != nil && n > 0 {
		c.rec.RAMWrite(addr, buf[:n])
	}
	return n
}

// PC returns the CPU program counter.
func (c *Core) PC(st State) uint32 {
	if !c.relocationCheck(st) {
		return 0
	}
	return c.cpu.PC()
}

// Upload copies data into sound RAM at addr, wrapping at the end of RAM,
// then resets the CPU so it picks up the new vectors. A State too short for
// this Core is left alone.
func (c *Core) Upload(st State, addr uint32, data []byte) {
	if !c.relocationCheck(st) {
		return
	}
	for i, b := range data {
		c.ram[((addr+uint32(i))^ByteSwizzle)&ramMask] = b
	}
	if c.rec != nil && len(data) > 0 {
		c.recordUpload(addr, data)
	}
	c.cpu.Reset()
	c.commit(st)
}

func (c *Core) recordUpload(addr uint32, data []byte) {
	addr &= ramMask
	for len(data) > 0 {
		n := min(len(data), int(RAMSize-addr))
		c.rec.RAMWrite(addr, data[:n])
		data = data[n:]
		addr = 0
	}
}
