package psf

import "encoding/binary"

const (
	addrMask   = 0x7FFFFF
	maxSection = 0x800000
)

// Image is a program image: a load address and the bytes that go there.
// Exe sections merged into it grow the image in either direction; gaps are
// zero.
type Image struct {
	Start uint32
	Data  []byte

	loaded bool
}

// Merge overlays an exe section (a 4-byte little-endian load address
// followed by the payload) onto the image.
func (im *Image) Merge(exe []byte) error {
	if len(exe) < 4 {
		return ErrTruncated
	}
	start := binary.LittleEndian.Uint32(exe) & addrMask
	payload := exe[4:]
	if len(payload) > maxSection {
		payload = payload[:maxSection]
	}

	if !im.loaded {
		im.Start = start
		im.Data = append([]byte(nil), payload...)
		im.loaded = true
		return nil
	}

	if start < im.Start {
		grown := make([]byte, int(im.Start-start)+len(im.Data))
		copy(grown[im.Start-start:], im.Data)
		im.Data = grown
		im.Start = start
	}
	if end := int(start-im.Start) + len(payload); end > len(im.Data) {
		im.Data = append(im.Data, make([]byte, end-len(im.Data))...)
	}
	copy(im.Data[start-im.Start:], payload)
	return nil
}

// Clip drops whatever lies at or beyond limit.
func (im *Image) Clip(limit uint32) {
	if im.Start >= limit {
		im.Data = nil
		return
	}
	if room := limit - im.Start; uint32(len(im.Data)) > room {
		im.Data = im.Data[:room]
	}
}

// Exe encodes the image back into exe section form.
func (im *Image) Exe() []byte {
	out := make([]byte, 4+len(im.Data))
	binary.LittleEndian.PutUint32(out, im.Start)
	copy(out[4:], im.Data)
	return out
}
