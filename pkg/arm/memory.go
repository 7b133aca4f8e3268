package arm

import (
	"encoding/binary"
	"fmt"
)

// Memory is a MEM-AP giving 32-bit access to a core's address space.
type Memory struct {
	ci *CommunicationInterface
	ap uint8
}

// AP is the access port index.
func (m *Memory) AP() uint8 {
	return m.ap
}

func (m *Memory) setCSW(value uint32) error {
	if cur, ok := m.ci.state.csw[m.ap]; ok && cur == value {
		return nil
	}
	if err := m.ci.WriteAP(m.ap, apCSW, value); err != nil {
		delete(m.ci.state.csw, m.ap)
		return err
	}
	m.ci.state.csw[m.ap] = value
	return nil
}

func (m *Memory) Read32(addr uint32) (uint32, error) {
	if addr&3 != 0 {
		return 0, fmt.Errorf("arm: unaligned read32 at 0x%08X", addr)
	}
	if err := m.setCSW(cswDefault); err != nil {
		return 0, err
	}
	if err := m.ci.WriteAP(m.ap, apTAR, addr); err != nil {
		return 0, err
	}
	v, err := m.ci.ReadAP(m.ap, apDRW)
	if err != nil {
		return 0, fmt.Errorf("arm: read 0x%08X: %w", addr, err)
	}
	return v, nil
}

func (m *Memory) Write32(addr, value uint32) error {
	if addr&3 != 0 {
		return fmt.Errorf("arm: unaligned write32 at 0x%08X", addr)
	}
	if err := m.setCSW(cswDefault); err != nil {
		return err
	}
	if err := m.ci.WriteAP(m.ap, apTAR, addr); err != nil {
		return err
	}
	if err := m.ci.WriteAP(m.ap, apDRW, value); err != nil {
		return fmt.Errorf("arm: write 0x%08X: %w", addr, err)
	}
	return nil
}

// ReadWords reads consecutive words using TAR auto-increment, reloading
// TAR at every 1 KiB boundary.
func (m *Memory) ReadWords(addr uint32, words []uint32) error {
	return m.words(addr, len(words), func(i int) error {
		v, err := m.ci.ReadAP(m.ap, apDRW)
		words[i] = v
		return err
	})
}

// WriteWords writes consecutive words using TAR auto-increment.
func (m *Memory) WriteWords(addr uint32, words []uint32) error {
	return m.words(addr, len(words), func(i int) error {
		return m.ci.WriteAP(m.ap, apDRW, words[i])
	})
}

func (m *Memory) words(addr uint32, n int, xfer func(i int) error) error {
	if addr&3 != 0 {
		return fmt.Errorf("arm: unaligned block access at 0x%08X", addr)
	}
	if err := m.setCSW(cswDefault); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		cur := addr + uint32(i)*4
		if i == 0 || cur%tarWrapSize == 0 {
			if err := m.ci.WriteAP(m.ap, apTAR, cur); err != nil {
				return err
			}
		}
		if err := xfer(i); err != nil {
			return fmt.Errorf("arm: block access at 0x%08X: %w", cur, err)
		}
	}
	return nil
}

// ReadBlock reads len(data) bytes starting at any byte address.
func (m *Memory) ReadBlock(addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	start, words := span(addr, len(data))
	buf := make([]uint32, words)
	if err := m.ReadWords(start, buf); err != nil {
		return err
	}
	raw := make([]byte, words*4)
	for i, w := range buf {
		binary.LittleEndian.PutUint32(raw[i*4:], w)
	}
	copy(data, raw[addr-start:])
	return nil
}

// WriteBlock writes data starting at any byte address. Partial words at
// either end are read back first so neighbouring bytes are preserved.
func (m *Memory) WriteBlock(addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	start, words := span(addr, len(data))
	raw := make([]byte, words*4)
	head := addr - start
	end := head + uint32(len(data))
	if head != 0 {
		v, err := m.Read32(start)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(raw, v)
	}
	if end%4 != 0 && (words > 1 || head == 0) {
		v, err := m.Read32(start + uint32(words-1)*4)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(raw[(words-1)*4:], v)
	}
	copy(raw[head:], data)

	buf := make([]uint32, words)
	for i := range buf {
		buf[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return m.WriteWords(start, buf)
}

func span(addr uint32, n int) (start uint32, words int) {
	start = addr &^ 3
	end := (addr + uint32(n) + 3) &^ 3
	return start, int(end-start) / 4
}
