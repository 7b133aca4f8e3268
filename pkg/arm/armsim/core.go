package armsim

// Core models one Cortex-M core behind its own MEM-AP: sparse word memory,
// the debug registers of the system control space and an FPB.
type Core struct {
	// ResetVector is loaded into pc whenever the core leaves reset.
	ResetVector uint32
	// HaltAfterPolls delays a requested or caught halt by this many DHCSR
	// reads.
	HaltAfterPolls int
	// NeverHalt makes the core ignore every halt request and reset catch.
	NeverHalt bool
	// FailBreakpointWrites answers FP_COMP writes with a bus fault.
	FailBreakpointWrites bool
	// FPBRevision is reported in FP_CTRL.REV.
	FPBRevision uint32

	mem  map[uint32]uint32
	regs [19]uint32

	debugEn     bool
	halted      bool
	haltPending int // DHCSR reads left before a pending halt completes; <0 none
	inReset     bool
	resetSticky bool
	demcr       uint32
	dcrdr       uint32

	fpEnabled bool
	fpComp    []uint32
	fpClears  int
}

// NewCore returns a running core with the given number of breakpoint
// comparators.
func NewCore(breakpoints int) *Core {
	return &Core{
		mem:         make(map[uint32]uint32),
		fpComp:      make([]uint32, breakpoints),
		haltPending: -1,
	}
}

// Halted reports whether the core is halted.
func (c *Core) Halted() bool { return c.halted }

// PC returns the program counter.
func (c *Core) PC() uint32 { return c.regs[15] }

// Breakpoints returns the raw FP_COMP register values.
func (c *Core) Breakpoints() []uint32 { return append([]uint32(nil), c.fpComp...) }

// BreakpointClears counts writes that disabled a comparator.
func (c *Core) BreakpointClears() int { return c.fpClears }

// SetBreakpointRaw loads a comparator directly, as a previous debugger
// session would have left it.
func (c *Core) SetBreakpointRaw(unit int, value uint32) { c.fpComp[unit] = value }

// Poke stores a word in simulated memory.
func (c *Core) Poke(addr, value uint32) { c.mem[addr&^3] = value }

// Peek loads a word from simulated memory.
func (c *Core) Peek(addr uint32) uint32 { return c.mem[addr&^3] }

func (c *Core) requestHalt() {
	if c.NeverHalt || c.halted || c.haltPending >= 0 {
		return
	}
	c.haltPending = c.HaltAfterPolls
}

func (c *Core) enterReset() {
	c.inReset = true
	c.halted = false
	c.haltPending = -1
	c.resetSticky = true
	c.regs = [19]uint32{}
}

func (c *Core) leaveReset() {
	c.inReset = false
	c.regs[15] = c.ResetVector
	if c.debugEn && c.demcr&demcrVCCoreReset != 0 {
		c.requestHalt()
	}
}

func (c *Core) readDHCSR() uint32 {
	if c.haltPending == 0 {
		c.halted = true
		c.haltPending = -1
	} else if c.haltPending > 0 {
		c.haltPending--
	}
	v := dhcsrSRegRdy
	if c.debugEn {
		v |= dhcsrCDebugEn
	}
	if c.halted {
		v |= dhcsrSHalt | dhcsrCHalt
	}
	if c.resetSticky {
		v |= dhcsrSResetSt
		c.resetSticky = false
	}
	return v
}

func (c *Core) writeDHCSR(v uint32) {
	if v&0xFFFF0000 != dhcsrKey {
		return
	}
	c.debugEn = v&dhcsrCDebugEn != 0
	if !c.debugEn {
		c.halted = false
		c.haltPending = -1
		return
	}
	switch {
	case v&dhcsrCStep != 0 && c.halted:
		c.regs[15] += 2
	case v&dhcsrCHalt != 0:
		c.requestHalt()
	default:
		c.halted = false
		c.haltPending = -1
	}
}

func (c *Core) fpCtrl() uint32 {
	n := uint32(len(c.fpComp))
	v := c.FPBRevision<<28 | (n&0x70)<<8 | (n&0xF)<<4
	if c.fpEnabled {
		v |= fpCtrlEnable
	}
	return v
}

// read performs a word read on the core's bus.
func (c *Core) read(addr uint32) (uint32, bool) {
	switch {
	case addr == regDHCSR:
		return c.readDHCSR(), true
	case addr == regDCRDR:
		return c.dcrdr, true
	case addr == regDEMCR:
		return c.demcr, true
	case addr == regFPCTRL:
		return c.fpCtrl(), true
	case addr >= regFPCOMP0 && addr < regFPCOMP0+uint32(len(c.fpComp))*4:
		return c.fpComp[(addr-regFPCOMP0)/4], true
	}
	return c.mem[addr], true
}

// write performs a word write on the core's bus. It returns false for a bus
// fault.
func (c *Core) write(addr, value uint32) bool {
	switch {
	case addr == regDHCSR:
		c.writeDHCSR(value)
	case addr == regDCRSR:
		sel := value & 0x7F
		if int(sel) < len(c.regs) {
			if value&dcrsrRegWnR != 0 {
				c.regs[sel] = c.dcrdr
			} else {
				c.dcrdr = c.regs[sel]
			}
		}
	case addr == regDCRDR:
		c.dcrdr = value
	case addr == regDEMCR:
		c.demcr = value
	case addr == regAIRCR:
		if value&0xFFFF0000 == aircrVectKey && value&aircrSysResetReq != 0 {
			c.enterReset()
			c.leaveReset()
		}
	case addr == regFPCTRL:
		if value&fpCtrlKey != 0 {
			c.fpEnabled = value&fpCtrlEnable != 0
		}
	case addr >= regFPCOMP0 && addr < regFPCOMP0+uint32(len(c.fpComp))*4:
		if c.FailBreakpointWrites {
			return false
		}
		if value&1 == 0 {
			c.fpClears++
		}
		c.fpComp[(addr-regFPCOMP0)/4] = value
	default:
		c.mem[addr] = value
	}
	return true
}
