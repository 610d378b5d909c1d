// Package psf reads PSF-family containers and assembles the program image
// they carry, following _lib references.
package psf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"
)

var (
	ErrNotPSF     = errors.New("psf: not a PSF file")
	ErrBadVersion = errors.New("psf: unexpected version")
	ErrCRC        = errors.New("psf: program CRC mismatch")
	ErrTruncated  = errors.New("psf: truncated file")
	ErrLibDepth   = errors.New("psf: library nesting too deep")
)

const (
	// VersionSSF identifies Saturn sound format files.
	VersionSSF = 0x11

	headerSize = 16
	tagMarker  = "[TAG]"

	// maxProgram bounds the decompressed program section.
	maxProgram = 0x800000 + 4
)

// File is one decoded PSF container.
type File struct {
	Version  byte
	Reserved []byte
	Program  []byte // decompressed exe section
	Tags     Tags
}

// Parse decodes a PSF container. The program section is decompressed and
// its CRC checked.
func Parse(data []byte) (*File, error) {
	if len(data) < headerSize {
		return nil, ErrTruncated
	}
	if !bytes.Equal(data[:3], []byte("PSF")) {
		return nil, ErrNotPSF
	}

	le := binary.LittleEndian
	f := &File{Version: data[3]}
	reservedSize := le.Uint32(data[4:])
	programSize := le.Uint32(data[8:])
	crc := le.Uint32(data[12:])

	off := uint64(headerSize)
	end := off + uint64(reservedSize) + uint64(programSize)
	if end > uint64(len(data)) {
		return nil, ErrTruncated
	}
	f.Reserved = data[off : off+uint64(reservedSize)]
	off += uint64(reservedSize)
	compressed := data[off:end]

	if programSize > 0 {
		if crc32.ChecksumIEEE(compressed) != crc {
			return nil, ErrCRC
		}
		program, err := inflate(compressed)
		if err != nil {
			return nil, err
		}
		f.Program = program
	}

	rest := data[end:]
	if bytes.HasPrefix(rest, []byte(tagMarker)) {
		f.Tags = parseTags(string(rest[len(tagMarker):]))
	}
	return f, nil
}

func inflate(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("psf: program: %w", err)
	}
	defer zr.Close()

	program, err := io.ReadAll(io.LimitReader(zr, maxProgram+1))
	if err != nil {
		return nil, fmt.Errorf("psf: program: %w", err)
	}
	if len(program) > maxProgram {
		return nil, fmt.Errorf("psf: program exceeds %d bytes", maxProgram)
	}
	return program, nil
}

// Tags holds the [TAG] section. Keys are case-insensitive; a key repeated
// on several lines has its values joined with newlines.
type Tags struct {
	keys   []string
	values map[string]string
}

func parseTags(text string) Tags {
	var t Tags
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(strings.TrimRight(line, "\r"), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		t.add(key, strings.TrimSpace(value))
	}
	return t
}

func (t *Tags) add(key, value string) {
	if t.values == nil {
		t.values = map[string]string{}
	}
	k := strings.ToLower(key)
	if prev, ok := t.values[k]; ok {
		t.values[k] = prev + "\n" + value
		return
	}
	t.keys = append(t.keys, key)
	t.values[k] = value
}

// Get returns the value for key, or "" if absent.
func (t Tags) Get(key string) string {
	return t.values[strings.ToLower(key)]
}

// Keys returns the tag names in file order.
func (t Tags) Keys() []string {
	return t.keys
}

// Libraries returns the _lib, _lib2, _lib3, ... references in load order
// relative to the file's own program: the first entry loads before it and
// the rest after.
func (t Tags) Libraries() []string {
	var libs []string
	if lib := t.Get("_lib"); lib != "" {
		libs = append(libs, lib)
	}
	for n := 2; ; n++ {
		lib := t.Get(fmt.Sprintf("_lib%d", n))
		if lib == "" {
			break
		}
		libs = append(libs, lib)
	}
	return libs
}

// Encode builds a PSF container. Used for fixtures and for writing
// rebuilt images.
func Encode(version byte, reserved, program []byte, tags map[string]string, order []string) ([]byte, error) {
	var z bytes.Buffer
	if len(program) > 0 {
		zw := zlib.NewWriter(&z)
		if _, err := zw.Write(program); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	}

	var b bytes.Buffer
	b.WriteString("PSF")
	b.WriteByte(version)
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(len(reserved)))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(z.Len()))
	binary.LittleEndian.PutUint32(hdr[8:], crc32.ChecksumIEEE(z.Bytes()))
	b.Write(hdr[:])
	b.Write(reserved)
	b.Write(z.Bytes())

	if len(order) > 0 {
		b.WriteString(tagMarker)
		for _, k := range order {
			for _, v := range strings.Split(tags[k], "\n") {
				fmt.Fprintf(&b, "%s=%s\n", k, v)
			}
		}
	}
	return b.Bytes(), nil
}
