package riscv

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/core"
)

// sbcs fields.
const (
	sbcsBusyError       uint32 = 1 << 22
	sbcsBusy            uint32 = 1 << 21
	sbcsReadOnAddr      uint32 = 1 << 20
	sbcsAccess32        uint32 = 2 << 17
	sbcsAutoIncrement   uint32 = 1 << 16
	sbcsErrorMask       uint32 = 0x7 << 12
	sbcsASizeShift      uint32 = 5
	sbcsAccess32Capable uint32 = 1 << 2
)

// checkSBA verifies once that the debug module offers 32-bit system bus
// access.
func (c *Core) checkSBA() error {
	st := c.ci.state
	if !st.sbaChecked {
		sbcs, err := c.ci.ReadDM(dmSBCS)
		if err != nil {
			return err
		}
		st.sbaOK = sbcs&sbcsAccess32Capable != 0 && (sbcs>>sbcsASizeShift)&0x7F >= 32
		st.sbaChecked = true
	}
	if !st.sbaOK {
		return fmt.Errorf("riscv: debug module has no 32-bit system bus access")
	}
	return nil
}

func (c *Core) sbWait() error {
	deadline := time.Now().Add(dmTimeout)
	for {
		sbcs, err := c.ci.ReadDM(dmSBCS)
		if err != nil {
			return err
		}
		if sbcs&sbcsBusy == 0 {
			if sbcs&(sbcsErrorMask|sbcsBusyError) != 0 {
				// Both error fields are write-1-to-clear.
				if err := c.ci.WriteDM(dmSBCS, sbcsErrorMask|sbcsBusyError); err != nil {
					return err
				}
				return fmt.Errorf("riscv: system bus error %d", (sbcs&sbcsErrorMask)>>12)
			}
			return nil
		}
		if time.Now().After(deadline) {
			return &core.TimeoutError{Op: "system bus access", Timeout: dmTimeout}
		}
	}
}

func (c *Core) Read32(addr uint32) (uint32, error) {
	if addr&3 != 0 {
		return 0, fmt.Errorf("riscv: unaligned read32 at 0x%08X", addr)
	}
	if err := c.checkSBA(); err != nil {
		return 0, err
	}
	if err := c.ci.WriteDM(dmSBCS, sbcsAccess32|sbcsReadOnAddr); err != nil {
		return 0, err
	}
	if err := c.ci.WriteDM(dmSBAddress0, addr); err != nil {
		return 0, err
	}
	if err := c.sbWait(); err != nil {
		return 0, fmt.Errorf("riscv: read 0x%08X: %w", addr, err)
	}
	return c.ci.ReadDM(dmSBData0)
}

func (c *Core) Write32(addr, value uint32) error {
	if addr&3 != 0 {
		return fmt.Errorf("riscv: unaligned write32 at 0x%08X", addr)
	}
	if err := c.checkSBA(); err != nil {
		return err
	}
	if err := c.ci.WriteDM(dmSBCS, sbcsAccess32); err != nil {
		return err
	}
	if err := c.ci.WriteDM(dmSBAddress0, addr); err != nil {
		return err
	}
	if err := c.ci.WriteDM(dmSBData0, value); err != nil {
		return err
	}
	if err := c.sbWait(); err != nil {
		return fmt.Errorf("riscv: write 0x%08X: %w", addr, err)
	}
	return nil
}

// writeWords streams words with sbautoincrement.
func (c *Core) writeWords(addr uint32, words []uint32) error {
	if err := c.checkSBA(); err != nil {
		return err
	}
	if err := c.ci.WriteDM(dmSBCS, sbcsAccess32|sbcsAutoIncrement); err != nil {
		return err
	}
	if err := c.ci.WriteDM(dmSBAddress0, addr); err != nil {
		return err
	}
	for _, w := range words {
		if err := c.ci.WriteDM(dmSBData0, w); err != nil {
			return err
		}
	}
	return c.sbWait()
}

func (c *Core) ReadBlock(addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	start := addr &^ 3
	end := (addr + uint32(len(data)) + 3) &^ 3
	raw := make([]byte, end-start)
	for a := start; a < end; a += 4 {
		w, err := c.Read32(a)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(raw[a-start:], w)
	}
	copy(data, raw[addr-start:])
	return nil
}

func (c *Core) WriteBlock(addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	start := addr &^ 3
	end := (addr + uint32(len(data)) + 3) &^ 3
	raw := make([]byte, end-start)
	if addr != start {
		if err := c.ReadBlock(start, raw[:4]); err != nil {
			return err
		}
	}
	if tail := addr + uint32(len(data)); tail != end {
		if err := c.ReadBlock(end-4, raw[len(raw)-4:]); err != nil {
			return err
		}
	}
	copy(raw[addr-start:], data)
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return c.writeWords(start, words)
}
