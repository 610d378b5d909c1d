// Package vgm records the activity of a sound core as a VGM 1.71 log
// targeting the SCSP. It implements emu.Recorder.
package vgm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"unicode/utf16"
)

const (
	version    = 0x171
	headerSize = 0x100
	scspClock  = 22579200

	offEOF        = 0x04
	offVersion    = 0x08
	offGD3        = 0x14
	offTotal      = 0x18
	offDataOffset = 0x34
	offSCSPClock  = 0xB8

	cmdSCSPWrite = 0xC5
	cmdDataBlock = 0x67
	cmdWait      = 0x61
	cmdWait60    = 0x62
	cmdWait50    = 0x63
	cmdWaitShort = 0x70
	cmdEnd       = 0x66

	blockSCSPRAM = 0xE0

	ramSize  = 0x80000
	pageBits = 8
	pageSize = 1 << pageBits
)

// ErrClosed is returned by Close on a Writer already closed.
var ErrClosed = errors.New("vgm: writer closed")

// GD3 is the tag block appended to the log. Empty fields are written as
// empty strings.
type GD3 struct {
	Track  string
	Game   string
	System string
	Author string
	Date   string
	Ripper string
	Notes  string
}

// Writer buffers the command stream and writes the complete file on Close.
//
// RAM stores are tracked per page and emitted as coalesced data blocks right
// before the next command that depends on them.
type Writer struct {
	w       io.Writer
	body    bytes.Buffer
	ram     []byte
	dirty   []bool
	nDirty  int
	pending int
	total   uint32
	gd3     *GD3
	closed  bool
}

// NewWriter creates a Writer whose file goes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:     w,
		ram:   make([]byte, ramSize),
		dirty: make([]bool, ramSize/pageSize),
	}
}

// SetGD3 attaches a tag block.
func (v *Writer) SetGD3(g GD3) {
	v.gd3 = &g
}

// Begin records the initial contents of sound RAM. Trailing zero bytes are
// omitted.
func (v *Writer) Begin(ram []byte) {
	n := copy(v.ram, ram)
	end := n
	for end > 0 && v.ram[end-1] == 0 {
		end--
	}
	if end > 0 {
		v.dataBlock(0, v.ram[:end])
	}
}

// TotalSamples is the number of samples recorded so far.
func (v *Writer) TotalSamples() uint32 {
	return v.total + uint32(v.pending)
}

// RegisterWrite records a store to the 16-bit register at addr. Each byte
// lane selected by mask becomes one SCSP write command.
func (v *Writer) RegisterWrite(addr uint32, value, mask uint16) {
	v.flushWait()
	v.flushRAM()
	addr &= 0xFFE
	if mask&0xFF00 != 0 {
		v.scspWrite(addr, byte(value>>8))
	}
	if mask&0x00FF != 0 {
		v.scspWrite(addr|1, byte(value))
	}
}

// RAMWrite records a store into sound RAM.
func (v *Writer) RAMWrite(addr uint32, data []byte) {
	for i, b := range data {
		a := (addr + uint32(i)) & (ramSize - 1)
		v.ram[a] = b
		if p := a >> pageBits; !v.dirty[p] {
			v.dirty[p] = true
			v.nDirty++
		}
	}
}

// Samples records the passage of n output samples.
func (v *Writer) Samples(n int) {
	if n <= 0 {
		return
	}
	if v.nDirty > 0 {
		v.flushWait()
		v.flushRAM()
	}
	v.pending += n
}

// Close terminates the command stream and writes the file.
func (v *Writer) Close() error {
	if v.closed {
		return ErrClosed
	}
	v.closed = true
	v.flushWait()
	v.flushRAM()
	v.body.WriteByte(cmdEnd)

	hdr := make([]byte, headerSize)
	copy(hdr, "Vgm ")
	binary.LittleEndian.PutUint32(hdr[offVersion:], version)
	binary.LittleEndian.PutUint32(hdr[offTotal:], v.total)
	binary.LittleEndian.PutUint32(hdr[offDataOffset:], headerSize-offDataOffset)
	binary.LittleEndian.PutUint32(hdr[offSCSPClock:], scspClock)

	size := headerSize + v.body.Len()
	var gd3 []byte
	if v.gd3 != nil {
		gd3 = encodeGD3(v.gd3)
		binary.LittleEndian.PutUint32(hdr[offGD3:], uint32(size-offGD3))
		size += len(gd3)
	}
	binary.LittleEndian.PutUint32(hdr[offEOF:], uint32(size-offEOF))

	for _, part := range [][]byte{hdr, v.body.Bytes(), gd3} {
		if _, err := v.w.Write(part); err != nil {
			return err
		}
	}
	return nil
}

func (v *Writer) scspWrite(addr uint32, b byte) {
	v.body.Write([]byte{cmdSCSPWrite, byte(addr >> 8), byte(addr), b})
}

func (v *Writer) dataBlock(addr uint32, data []byte) {
	var hdr [11]byte
	hdr[0] = cmdDataBlock
	hdr[1] = cmdEnd
	hdr[2] = blockSCSPRAM
	binary.LittleEndian.PutUint32(hdr[3:], uint32(4+len(data)))
	binary.LittleEndian.PutUint32(hdr[7:], addr)
	v.body.Write(hdr[:])
	v.body.Write(data)
}

// flushRAM emits one data block per run of consecutive dirty pages.
func (v *Writer) flushRAM() {
	if v.nDirty == 0 {
		return
	}
	for p := 0; p < len(v.dirty); {
		if !v.dirty[p] {
			p++
			continue
		}
		start := p
		for p < len(v.dirty) && v.dirty[p] {
			v.dirty[p] = false
			p++
		}
		v.dataBlock(uint32(start)<<pageBits, v.ram[start<<pageBits:p<<pageBits])
	}
	v.nDirty = 0
}

func (v *Writer) flushWait() {
	n := v.pending
	v.total += uint32(n)
	v.pending = 0
	for n > 0 {
		switch {
		case n == 735:
			v.body.WriteByte(cmdWait60)
			n = 0
		case n == 882:
			v.body.WriteByte(cmdWait50)
			n = 0
		case n <= 16:
			v.body.WriteByte(cmdWaitShort | byte(n-1))
			n = 0
		default:
			chunk := min(n, 0xFFFF)
			v.body.Write([]byte{cmdWait, byte(chunk), byte(chunk >> 8)})
			n -= chunk
		}
	}
}

func encodeGD3(g *GD3) []byte {
	var strs bytes.Buffer
	// English and Japanese pairs for track, game, system and author.
	for _, s := range []string{
		g.Track, "", g.Game, "", g.System, "", g.Author, "",
		g.Date, g.Ripper, g.Notes,
	} {
		for _, u := range utf16.Encode([]rune(s)) {
			strs.Write([]byte{byte(u), byte(u >> 8)})
		}
		strs.Write([]byte{0, 0})
	}

	out := make([]byte, 12, 12+strs.Len())
	copy(out, "Gd3 ")
	binary.LittleEndian.PutUint32(out[4:], 0x100)
	binary.LittleEndian.PutUint32(out[8:], uint32(strs.Len()))
	return append(out, strs.Bytes()...)
}
