package scsp

import (
	"encoding/binary"
	"math"
)

// Slot register word indexes, relative to the slot's first word.
const (
	slotCtl   = 0x0 // KYONEX, KYONB, LPCTL, PCM8B, SA[19:16]
	slotSA    = 0x1
	slotLSA   = 0x2
	slotLEA   = 0x3
	slotEG1   = 0x4 // D2R, D1R, EGHOLD, AR
	slotEG2   = 0x5 // LPSLNK, KRS, DL, RR
	slotTL    = 0x6
	slotPitch = 0x8 // OCT, FNS
	slotMix   = 0xB // DISDL, DIPAN, EFSDL, EFPAN

	slotKeyExec = 1 << 12
	slotKeyOn   = 1 << 11
	slotPCM8    = 1 << 4
)

const (
	envAttack uint8 = iota
	envDecay1
	envDecay2
	envRelease
)

// Attenuation is kept in 1/64ths of 6dB with envFrac fractional bits on
// the envelope.
const (
	envFrac = 8
	envMax  = 0x3FF << envFrac
	attMute = 16 << 6
)

var attTable [64]int64

func init() {
	for i := range attTable {
		attTable[i] = int64(math.Round(0x10000 * math.Exp2(-float64(i)/64)))
	}
}

func attenuate(v int32, att int32) int32 {
	if att <= 0 {
		return v
	}
	if att >= attMute {
		return 0
	}
	return int32((int64(v) * attTable[att&63]) >> (16 + att>>6))
}

// rateStep is the per-sample envelope change for a 5-bit rate, in
// envelope units.
func rateStep(r uint16) int32 {
	if r == 0 {
		return 0
	}
	return int32(4+r&3) << (r >> 2)
}

type slot struct {
	playing bool
	state   uint8
	env     int32
	pos     uint32
	frac    uint32
}

func (sl *slot) save(buf []byte) {
	le := binary.LittleEndian
	buf[0] = 0
	if sl.playing {
		buf[0] = 1
	}
	buf[1] = sl.state
	le.PutUint32(buf[2:], uint32(sl.env))
	le.PutUint32(buf[6:], sl.pos)
	le.PutUint32(buf[10:], sl.frac)
}

func (sl *slot) load(buf []byte) {
	le := binary.LittleEndian
	sl.playing = buf[0] != 0
	sl.state = buf[1] & 3
	sl.env = min(max(int32(le.Uint32(buf[2:])), 0), envMax)
	sl.pos = le.Uint32(buf[6:])
	sl.frac = le.Uint32(buf[10:]) & 0x3FF
}

func (s *SCSP) slotRegs(i int) []uint16 {
	return s.regs[i*slotStride/2 : (i+1)*slotStride/2]
}

// keyExecute latches KYONB of every slot.
func (s *SCSP) keyExecute() {
	for i := range s.slots {
		r := s.slotRegs(i)
		sl := &s.slots[i]
		on := r[slotCtl]&slotKeyOn != 0
		switch {
		case on && (!sl.playing || sl.state == envRelease):
			sl.playing = true
			sl.pos = 0
			sl.frac = 0
			sl.state = envAttack
			sl.env = envMax
			if r[slotEG1]&0x1F == 0x1F {
				sl.env = 0
				sl.state = envDecay1
			}
		case !on && sl.playing && sl.state != envRelease:
			sl.state = envRelease
		}
	}
}

func (s *SCSP) ramByte(addr uint32) uint8 {
	if len(s.ram) == 0 {
		return 0
	}
	return s.ram[((addr^s.swizzle)&0x7FFFF)%uint32(len(s.ram))]
}

// step produces one sample of slot i and advances it.
func (s *SCSP) step(i int) (left, right int32) {
	sl := &s.slots[i]
	r := s.slotRegs(i)

	sa := uint32(r[slotCtl]&0xF)<<16 | uint32(r[slotSA])
	var smp int32
	if r[slotCtl]&slotPCM8 != 0 {
		smp = int32(int8(s.ramByte(sa+sl.pos))) << 8
	} else {
		a := sa&^1 + sl.pos*2
		smp = int32(int16(uint16(s.ramByte(a))<<8 | uint16(s.ramByte(a+1))))
	}
	smp = attenuate(smp, sl.env>>envFrac+int32(r[slotTL]&0xFF)<<2)

	s.advancePitch(sl, r)
	s.advanceEnvelope(sl, r)

	disdl := r[slotMix] >> 13 & 7
	if disdl == 0 {
		return 0, 0
	}
	smp >>= 7 - disdl
	left, right = smp, smp

	pan := r[slotMix] >> 8 & 0x1F
	if level := int32(pan & 0xF); level != 0 {
		att := level * 32
		if level == 0xF {
			att = attMute
		}
		if pan&0x10 == 0 {
			right = attenuate(right, att)
		} else {
			left = attenuate(left, att)
		}
	}
	return left, right
}

// advancePitch moves the play position by 2^OCT * (1 + FNS/1024) samples.
// Reverse and alternating loops play forward.
func (s *SCSP) advancePitch(sl *slot, r []uint16) {
	oct := int32(r[slotPitch] >> 11 & 0xF)
	if oct >= 8 {
		oct -= 16
	}
	inc := uint32(0x400 | r[slotPitch]&0x3FF)
	if oct >= 0 {
		inc <<= uint(oct)
	} else {
		inc >>= uint(-oct)
	}
	sl.frac += inc
	sl.pos += sl.frac >> 10
	sl.frac &= 0x3FF

	lsa, lea := uint32(r[slotLSA]), uint32(r[slotLEA])
	if sl.pos < lea {
		return
	}
	if r[slotCtl]>>5&3 == 0 {
		sl.playing = false
		sl.env = envMax
		return
	}
	if span := lea - lsa; lea > lsa {
		sl.pos = lsa + (sl.pos-lea)%span
	} else {
		sl.pos = lsa
	}
}

func (s *SCSP) advanceEnvelope(sl *slot, r []uint16) {
	switch sl.state {
	case envAttack:
		sl.env -= rateStep(r[slotEG1] & 0x1F)
		if sl.env <= 0 {
			sl.env = 0
			sl.state = envDecay1
		}
	case envDecay1:
		sl.env += rateStep(r[slotEG1] >> 6 & 0x1F)
		if sl.env >= int32(r[slotEG2]>>5&0x1F)<<(5+envFrac) {
			sl.state = envDecay2
		}
	case envDecay2:
		sl.env += rateStep(r[slotEG1] >> 11 & 0x1F)
	case envRelease:
		sl.env += rateStep(r[slotEG2] & 0x1F)
		if sl.env >= envMax {
			sl.playing = false
		}
	}
	sl.env = min(sl.env, envMax)
}

// mix renders n samples of all playing slots into the bound buffer.
func (s *SCSP) mix(n int) {
	master := (15 - int32(s.reg(regMVOL)&0xF)) * 32
	if master == 15*32 {
		master = attMute
	}
	for ; n > 0; n-- {
		var left, right int32
		for i := range s.slots {
			if !s.slots[i].playing {
				continue
			}
			l, r := s.step(i)
			left += l
			right += r
		}
		if s.out == nil || s.outPos*2+1 >= len(s.out) {
			continue
		}
		s.out[s.outPos*2] = clamp16(attenuate(left, master))
		s.out[s.outPos*2+1] = clamp16(attenuate(right, master))
		s.outPos++
	}
}

func clamp16(v int32) int16 {
	return int16(min(max(v, math.MinInt16), math.MaxInt16))
}
