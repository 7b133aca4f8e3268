package riscvsim

// Register numbers served through the access register abstract command.
const (
	regGPR0    = 0x1000
	regTSelect = 0x7A0
	regTData1  = 0x7A1
	regTData2  = 0x7A2
	regDCSR    = 0x7B0
	regDPC     = 0x7B1
)

const (
	dcsrStep         uint32 = 1 << 2
	dcsrReset        uint32 = 4<<28 | 3 // xdebugver 4, prv M
	triggerTypeMatch uint32 = 2 << 28
	mcontrolExecute  uint32 = 1 << 2
	mcontrolModes    uint32 = 1<<6 | 1<<4 | 1<<3
)

// Hart models one RISC-V hart: registers, debug CSRs and mcontrol
// triggers.
type Hart struct {
	// ResetVector is loaded into pc whenever the hart leaves reset.
	ResetVector uint32
	// HaltAfterPolls delays a requested or caught halt by this many
	// dmstatus reads.
	HaltAfterPolls int
	// NeverHalt makes the hart ignore halt requests and reset catches.
	NeverHalt bool
	// FailTriggerWrites fails abstract writes to tdata1 and tdata2.
	FailTriggerWrites bool

	gpr  [32]uint32
	dpc  uint32
	dcsr uint32

	halted       bool
	haltPending  int // dmstatus reads left before a pending halt completes; <0 none
	inReset      bool
	haveReset    bool
	resumeAck    bool
	resetHaltReq bool

	tselect uint32
	tdata1  []uint32
	tdata2  []uint32
	tClears int
}

// NewHart returns a running hart with the given number of address match
// triggers.
func NewHart(triggers int) *Hart {
	h := &Hart{
		dcsr:        dcsrReset,
		haltPending: -1,
		tdata1:      make([]uint32, triggers),
		tdata2:      make([]uint32, triggers),
	}
	for i := range h.tdata1 {
		h.tdata1[i] = triggerTypeMatch
	}
	return h
}

// Halted reports whether the hart is halted.
func (h *Hart) Halted() bool { return h.halted }

// PC returns the debug pc.
func (h *Hart) PC() uint32 { return h.dpc }

// Register returns general purpose register xN.
func (h *Hart) Register(n int) uint32 { return h.gpr[n] }

// TriggerClears counts tdata1 writes that disabled a trigger.
func (h *Hart) TriggerClears() int { return h.tClears }

// Breakpoints lists the addresses of enabled execute triggers by unit, zero
// for disabled units.
func (h *Hart) Breakpoints() []uint32 {
	out := make([]uint32, len(h.tdata1))
	for i, t := range h.tdata1 {
		if t&mcontrolExecute != 0 && t&mcontrolModes != 0 {
			out[i] = h.tdata2[i]
		}
	}
	return out
}

// SetTriggerRaw programs a trigger directly, as a previous debugger session
// would have left it.
func (h *Hart) SetTriggerRaw(unit int, tdata1, tdata2 uint32) {
	h.tdata1[unit] = tdata1
	h.tdata2[unit] = tdata2
}

func (h *Hart) requestHalt() {
	if h.NeverHalt || h.halted || h.haltPending >= 0 {
		return
	}
	if h.HaltAfterPolls <= 0 {
		h.halted = true
		return
	}
	h.haltPending = h.HaltAfterPolls
}

// tick advances a pending halt by one status poll.
func (h *Hart) tick() {
	if h.haltPending < 0 {
		return
	}
	h.haltPending--
	if h.haltPending <= 0 {
		h.halted = true
		h.haltPending = -1
	}
}

func (h *Hart) enterReset() {
	h.inReset = true
	h.halted = false
	h.haltPending = -1
}

func (h *Hart) leaveReset() {
	if !h.inReset {
		return
	}
	h.inReset = false
	h.haveReset = true
	h.gpr = [32]uint32{}
	h.dpc = h.ResetVector
	h.dcsr = dcsrReset
	if h.resetHaltReq {
		h.requestHalt()
	}
}

func (h *Hart) resume() {
	h.resumeAck = true
	if !h.halted {
		return
	}
	h.halted = false
	if h.dcsr&dcsrStep != 0 {
		h.dpc += 4
		h.halted = true
	}
}

// readReg returns cmderr 3 for registers the hart does not implement.
func (h *Hart) readReg(regno uint32) (uint32, uint32) {
	switch {
	case regno >= regGPR0 && regno < regGPR0+32:
		return h.gpr[regno-regGPR0], 0
	case regno == regDPC:
		return h.dpc, 0
	case regno == regDCSR:
		return h.dcsr, 0
	case regno == regTSelect:
		return h.tselect, 0
	case regno == regTData1:
		if int(h.tselect) >= len(h.tdata1) {
			return 0, 0
		}
		return h.tdata1[h.tselect], 0
	case regno == regTData2:
		if int(h.tselect) >= len(h.tdata2) {
			return 0, 0
		}
		return h.tdata2[h.tselect], 0
	}
	return 0, cmdErrException
}

func (h *Hart) writeReg(regno, value uint32) uint32 {
	switch {
	case regno == regGPR0:
	case regno > regGPR0 && regno < regGPR0+32:
		h.gpr[regno-regGPR0] = value
	case regno == regDPC:
		h.dpc = value
	case regno == regDCSR:
		h.dcsr = value
	case regno == regTSelect:
		// WARL: out of range selections keep the previous trigger.
		if int(value) < len(h.tdata1) {
			h.tselect = value
		}
	case regno == regTData1, regno == regTData2:
		if int(h.tselect) >= len(h.tdata1) {
			return 0
		}
		if h.FailTriggerWrites {
			return cmdErrException
		}
		if regno == regTData2 {
			h.tdata2[h.tselect] = value
			return 0
		}
		value = value&^(0xF<<28) | triggerTypeMatch
		if h.tdata1[h.tselect]&mcontrolExecute != 0 && value&mcontrolExecute == 0 {
			h.tClears++
		}
		h.tdata1[h.tselect] = value
	default:
		return cmdErrException
	}
	return 0
}
