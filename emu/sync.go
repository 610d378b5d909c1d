package emu

const (
	// CyclesPerSample is the number of CPU cycles per output sample.
	CyclesPerSample = 256

	MaxCyclesPerCall    = 0x1000000
	MaxSamplesPerCall   = 0x10000
	MaxInterruptSamples = 0x10000
)

// advanceSync folds the cycles the CPU has run since the last checkpoint
// into the carry and renders any whole samples that are now owed.
func (c *Core) advanceSync() {
	now := c.cpu.Odometer()
	delta := now - c.h.odometer
	c.h.odometer = now
	c.h.executed += int32(delta)
	c.h.ahead += delta
	c.syncSound()
}

// syncSound converts carried cycles into rendered samples without
// exceeding the samples still permitted this call.
func (c *Core) syncSound() {
	if c.h.ahead < CyclesPerSample {
		return
	}
	n := c.h.ahead / CyclesPerSample
	if n > c.h.remaining {
		n = c.h.remaining
	}
	if n == 0 {
		return
	}
	c.chip.Render(int(n))
	if c.rec != nil {
		c.rec.Samples(int(n))
	}
	c.h.ahead -= CyclesPerSample * n
	c.h.remaining -= n
}

// cyclesUntilNextInterrupt is how far the CPU may run before the chip could
// raise an interrupt it has not raised yet. Always at least 1.
func (c *Core) cyclesUntilNextInterrupt() uint32 {
	samples := c.chip.MinSamplesUntilInterrupt()
	if samples > MaxInterruptSamples {
		samples = MaxInterruptSamples
	}
	cycles := samples * CyclesPerSample
	if cycles <= c.h.ahead {
		return 1
	}
	return cycles - c.h.ahead
}
