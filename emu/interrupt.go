package emu

// checkInterrupts forwards rising and changing chip interrupt levels to the
// CPU. A drop to zero is only recorded; the CPU's own masking takes care of
// the rest.
func (c *Core) checkInterrupts() {
	level := c.chip.PendingLevel()
	if level == c.h.prevLevel {
		return
	}
	c.h.prevLevel = level
	if level != 0 {
		c.cpu.RequestInterrupt(level & 7)
	}
}
