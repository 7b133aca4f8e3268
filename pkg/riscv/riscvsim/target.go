// Package riscvsim simulates a RISC-V target behind a JTAG debug transport
// module for exercising the riscv package without hardware.
package riscvsim

import "encoding/binary"

// JTAG DTM instructions.
const (
	irLength = 5
	irIDCODE = 0x01
	irDTMCS  = 0x10
	irDMI    = 0x11
)

const (
	abits         = 7
	dtmcsValue    = 1 | abits<<4 | 1<<12 // version 0.13, idle hint 1
	dtmcsDMIReset = 1 << 16

	dmiRespOK   = 0
	dmiRespBusy = 3
)

// Debug module registers.
const (
	dmData0      = 0x04
	dmControl    = 0x10
	dmStatus     = 0x11
	dmAbstractCS = 0x16
	dmCommand    = 0x17
	dmSBCS       = 0x38
	dmSBAddress0 = 0x39
	dmSBData0    = 0x3C
)

const (
	ctlHaltReq         uint32 = 1 << 31
	ctlResumeReq       uint32 = 1 << 30
	ctlAckHaveReset    uint32 = 1 << 28
	ctlSetResetHaltReq uint32 = 1 << 3
	ctlClrResetHaltReq uint32 = 1 << 2
	ctlNDMReset        uint32 = 1 << 1
	ctlDMActive        uint32 = 1 << 0

	cmdErrNotSupported uint32 = 2
	cmdErrException    uint32 = 3
	cmdErrHaltResume   uint32 = 4

	sbcsValue       uint32 = 1<<29 | 32<<5 | 1<<2 // sbversion 1, asize 32, access32
	sbcsBusyError   uint32 = 1 << 22
	sbcsReadOnAddr  uint32 = 1 << 20
	sbcsAccessMask  uint32 = 7 << 17
	sbcsAutoIncr    uint32 = 1 << 16
	sbcsErrorMask   uint32 = 7 << 12
	sbcsErrBadAlign uint32 = 3 << 12
)

// Target is a JTAG TAP device hosting a DTM and a debug module with one or
// more harts sharing a little-endian memory. It also implements the reset
// line.
type Target struct {
	// IDCode is returned from the IDCODE register.
	IDCode uint32
	// DMIBusy answers this many DMI operations with a busy response before
	// accepting them.
	DMIBusy int
	// NoResetHaltReq clears dmstatus.hasresethaltreq.
	NoResetHaltReq bool

	harts []*Hart
	mem   map[uint32]uint32

	dmiResult uint64
	dmiSticky bool
	dmiOps    int

	dmcontrol uint32
	hartsel   uint32
	data0     uint32
	cmdErr    uint32

	sbcs    uint32
	sbAddr  uint32
	sbData  uint32
	sbError uint32

	ndmResets int
}

// New returns a target with the given IDCODE and harts.
func New(idcode uint32, harts ...*Hart) *Target {
	return &Target{IDCode: idcode, harts: harts, mem: make(map[uint32]uint32)}
}

// Hart returns hart i.
func (t *Target) Hart(i int) *Hart { return t.harts[i] }

// NDMResets counts ndmreset pulses.
func (t *Target) NDMResets() int { return t.ndmResets }

// DMIOps counts DMI operations, including nops and rejected ones.
func (t *Target) DMIOps() int { return t.dmiOps }

// Poke stores a word in memory.
func (t *Target) Poke(addr, value uint32) { t.mem[addr&^3] = value }

// Peek loads a word from memory.
func (t *Target) Peek(addr uint32) uint32 { return t.mem[addr&^3] }

// PokeBytes stores data at addr.
func (t *Target) PokeBytes(addr uint32, data []byte) {
	for i, b := range data {
		a := addr + uint32(i)
		var word [4]byte
		binary.LittleEndian.PutUint32(word[:], t.mem[a&^3])
		word[a&3] = b
		t.mem[a&^3] = binary.LittleEndian.Uint32(word[:])
	}
}

func (t *Target) SetReset(asserted bool) error {
	for _, h := range t.harts {
		if asserted {
			h.enterReset()
		} else {
			h.leaveReset()
		}
	}
	return nil
}

func (t *Target) IRLength() int { return irLength }

func (t *Target) ResetInstruction() uint32 { return irIDCODE }

func (t *Target) CaptureDR(ir uint32) (uint64, int) {
	switch ir {
	case irIDCODE:
		return uint64(t.IDCode), 32
	case irDTMCS:
		return dtmcsValue, 32
	case irDMI:
		return t.dmiResult, abits + 34
	}
	return 0, 0
}

func (t *Target) UpdateDR(ir uint32, value uint64) {
	switch ir {
	case irDTMCS:
		if value&dtmcsDMIReset != 0 {
			t.dmiSticky = false
			t.dmiResult &^= 3
		}
	case irDMI:
		t.dmi(value)
	}
}

func (t *Target) dmi(value uint64) {
	t.dmiOps++
	op := value & 3
	addr := uint32(value>>34) & (1<<abits - 1)
	data := uint32(value >> 2)
	if t.dmiSticky {
		return
	}
	if op != 0 && t.DMIBusy > 0 {
		t.DMIBusy--
		t.dmiSticky = true
		t.dmiResult = t.dmiResult&^3 | dmiRespBusy
		return
	}
	var result uint32
	switch op {
	case 0:
		result = uint32(t.dmiResult >> 2)
	case 1:
		result = t.readDM(addr)
	case 2:
		t.writeDM(addr, data)
	}
	t.dmiResult = uint64(addr)<<34 | uint64(result)<<2 | dmiRespOK
}

func (t *Target) selected() *Hart {
	if int(t.hartsel) < len(t.harts) {
		return t.harts[t.hartsel]
	}
	return nil
}

func (t *Target) readDM(addr uint32) uint32 {
	switch addr {
	case dmData0:
		return t.data0
	case dmControl:
		return t.dmcontrol
	case dmStatus:
		return t.dmstatus()
	case dmAbstractCS:
		return 1 | t.cmdErr<<8 // datacount 1, no program buffer
	case dmSBCS:
		return sbcsValue | t.sbcs | t.sbError
	case dmSBAddress0:
		return t.sbAddr
	case dmSBData0:
		return t.sbData
	}
	return 0
}

func (t *Target) dmstatus() uint32 {
	status := uint32(2) | 1<<7 // version 0.13, authenticated
	if !t.NoResetHaltReq {
		status |= 1 << 5
	}
	h := t.selected()
	if h == nil {
		return status | 1<<14 | 1<<15
	}
	h.tick()
	if h.halted {
		status |= 1<<8 | 1<<9
	} else {
		status |= 1<<10 | 1<<11
	}
	if h.resumeAck {
		status |= 1<<16 | 1<<17
	}
	if h.haveReset {
		status |= 1<<18 | 1<<19
	}
	return status
}

func (t *Target) writeDM(addr, value uint32) {
	switch addr {
	case dmData0:
		t.data0 = value
	case dmControl:
		t.control(value)
	case dmAbstractCS:
		t.cmdErr &^= (value >> 8) & 7
	case dmCommand:
		t.command(value)
	case dmSBCS:
		t.sbcs = value & (sbcsReadOnAddr | sbcsAccessMask | sbcsAutoIncr)
		t.sbError &^= value & (sbcsErrorMask | sbcsBusyError)
	case dmSBAddress0:
		t.sbAddr = value
		if t.sbcs&sbcsReadOnAddr != 0 {
			t.sbRead()
		}
	case dmSBData0:
		t.sbWrite(value)
	}
}

func (t *Target) control(value uint32) {
	wasReset := t.dmcontrol&ctlNDMReset != 0
	t.dmcontrol = value &^ (ctlHaltReq | ctlResumeReq | ctlAckHaveReset | ctlSetResetHaltReq | ctlClrResetHaltReq)
	if value&ctlDMActive == 0 {
		t.hartsel = 0
		return
	}
	t.hartsel = (value >> 16) & 0x3FF
	h := t.selected()
	if h != nil {
		if value&ctlSetResetHaltReq != 0 {
			h.resetHaltReq = true
		}
		if value&ctlClrResetHaltReq != 0 {
			h.resetHaltReq = false
		}
		if value&ctlAckHaveReset != 0 {
			h.haveReset = false
		}
		if value&ctlHaltReq != 0 {
			h.requestHalt()
		}
		if value&ctlResumeReq != 0 && value&ctlHaltReq == 0 {
			h.resumeAck = false
			h.resume()
		}
	}
	switch isReset := value&ctlNDMReset != 0; {
	case isReset && !wasReset:
		t.ndmResets++
		for _, h := range t.harts {
			h.enterReset()
		}
	case !isReset && wasReset:
		for _, h := range t.harts {
			h.leaveReset()
		}
	}
}

func (t *Target) command(value uint32) {
	if t.cmdErr != 0 {
		return
	}
	cmdType := value >> 24
	size := (value >> 20) & 7
	if cmdType != 0 || size != 2 {
		t.cmdErr = cmdErrNotSupported
		return
	}
	h := t.selected()
	if h == nil || !h.halted {
		t.cmdErr = cmdErrHaltResume
		return
	}
	if value&(1<<17) == 0 {
		return
	}
	regno := value & 0xFFFF
	if value&(1<<16) != 0 {
		t.cmdErr = h.writeReg(regno, t.data0)
		return
	}
	v, errCode := h.readReg(regno)
	if errCode != 0 {
		t.cmdErr = errCode
		return
	}
	t.data0 = v
}

func (t *Target) sbRead() {
	if t.sbAddr&3 != 0 {
		t.sbError = sbcsErrBadAlign
		return
	}
	t.sbData = t.mem[t.sbAddr]
	if t.sbcs&sbcsAutoIncr != 0 {
		t.sbAddr += 4
	}
}

func (t *Target) sbWrite(value uint32) {
	if t.sbAddr&3 != 0 {
		t.sbError = sbcsErrBadAlign
		return
	}
	t.mem[t.sbAddr] = value
	if t.sbcs&sbcsAutoIncr != 0 {
		t.sbAddr += 4
	}
}
