package jtag

import (
	"fmt"
	"sync"
)

// CMSISDAPAdapter implements Adapter, DAPAccess and ResetLine for CMSIS-DAP
// probes. The debug port protocol (SWD or JTAG) is fixed when the adapter is
// opened.
type CMSISDAPAdapter struct {
	transport packetTransport
	protocol  *CMSISDAPProtocol

	info      AdapterInfo
	speedHz   int
	port      byte
	connected bool

	mu sync.Mutex // Protect concurrent access
}

// CMSISDAPOptions selects the probe and debug port for NewCMSISDAPAdapter.
type CMSISDAPOptions struct {
	VendorID  uint16
	ProductID uint16
	Serial    string // empty matches the first probe
	Port      byte   // PortSWD or PortJTAG; PortDefault lets the probe choose
	SpeedHz   int    // 0 keeps the 1 MHz default
}

// packetTransport carries CMSIS-DAP command and response packets.
type packetTransport interface {
	WriteRead(cmd []byte) ([]byte, error)
	GetPacketSize() int
	Close() error
}

// NewCMSISDAPAdapter opens a CMSIS-DAP probe and connects its debug port.
func NewCMSISDAPAdapter(opts CMSISDAPOptions) (*CMSISDAPAdapter, error) {
	transport, err := NewUSBTransport(opts.VendorID, opts.ProductID, opts.Serial)
	if err != nil {
		return nil, fmt.Errorf("failed to open USB device: %w", err)
	}
	return openCMSISDAP(transport, opts)
}

func openCMSISDAP(transport packetTransport, opts CMSISDAPOptions) (*CMSISDAPAdapter, error) {
	protocol := NewCMSISDAPProtocol(transport.GetPacketSize())

	adapter := &CMSISDAPAdapter{
		transport: transport,
		protocol:  protocol,
		speedHz:   1_000_000, // Default 1 MHz
	}
	if opts.SpeedHz > 0 {
		adapter.speedHz = opts.SpeedHz
	}

	if err := adapter.queryInfo(); err != nil {
		transport.Close()
		return nil, fmt.Errorf("failed to query device info: %w", err)
	}

	if err := adapter.connect(opts.Port); err != nil {
		transport.Close()
		return nil, fmt.Errorf("failed to connect debug port: %w", err)
	}

	if err := adapter.SetSpeed(adapter.speedHz); err != nil {
		transport.Close()
		return nil, fmt.Errorf("failed to set default speed: %w", err)
	}

	if err := adapter.configureTransfers(); err != nil {
		transport.Close()
		return nil, fmt.Errorf("failed to configure transfers: %w", err)
	}

	return adapter, nil
}

// queryInfo retrieves device information from the probe
func (a *CMSISDAPAdapter) queryInfo() error {
	// Get vendor ID
	cmd := a.protocol.EncodeInfo(InfoVendorID)
	resp, err := a.transport.WriteRead(cmd)
	if err != nil {
		return err
	}
	vendor, _ := a.protocol.DecodeInfo(resp)

	// Remaining strings are optional for CMSIS-DAP firmware
	product := a.queryString(InfoProductID)
	serial := a.queryString(InfoSerialNum)
	firmware := a.queryString(InfoFirmwareVer)

	a.info = AdapterInfo{
		Name:         "CMSIS-DAP Probe",
		Vendor:       vendor,
		Model:        product,
		SerialNumber: serial,
		Firmware:     firmware,
		MinFrequency: 1000,       // 1 kHz
		MaxFrequency: 10_000_000, // 10 MHz (typical for CMSIS-DAP)
		SupportsSRST: true,
		SupportsTRST: true,
		SupportsSWD:  true,
		SupportsJTAG: true,
	}

	return nil
}

func (a *CMSISDAPAdapter) queryString(id byte) string {
	resp, err := a.transport.WriteRead(a.protocol.EncodeInfo(id))
	if err != nil {
		return ""
	}
	str, _ := a.protocol.DecodeInfo(resp)
	return str
}

// connect establishes the debug port connection and, for SWD, performs the
// JTAG-to-SWD switch followed by a line reset.
func (a *CMSISDAPAdapter) connect(port byte) error {
	cmd := a.protocol.EncodeConnect(port)
	resp, err := a.transport.WriteRead(cmd)
	if err != nil {
		return err
	}

	got, err := a.protocol.DecodeConnect(resp)
	if err != nil {
		return err
	}

	if port != PortDefault && got != port {
		return fmt.Errorf("failed to connect port %d (got port %d)", port, got)
	}
	a.port = got
	a.connected = true

	if got == PortSWD {
		return a.swdLineReset()
	}
	return nil
}

// swdLineReset clocks the ARM JTAG-to-SWD select sequence surrounded by line
// resets (>50 cycles with SWDIO high), then two idle cycles.
func (a *CMSISDAPAdapter) swdLineReset() error {
	seqs := []struct {
		bits int
		data []byte
	}{
		{56, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{16, []byte{0x9E, 0xE7}},
		{56, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{8, []byte{0x00}},
	}
	for _, seq := range seqs {
		resp, err := a.transport.WriteRead(a.protocol.EncodeSWJSequence(seq.bits, seq.data))
		if err != nil {
			return fmt.Errorf("SWJ sequence failed: %w", err)
		}
		if err := a.protocol.DecodeSWJSequence(resp); err != nil {
			return err
		}
	}
	return nil
}

func (a *CMSISDAPAdapter) configureTransfers() error {
	resp, err := a.transport.WriteRead(a.protocol.EncodeTransferConfigure(0, 64, 0))
	if err != nil {
		return err
	}
	return a.protocol.DecodeTransferConfigure(resp)
}

// Port reports the connected debug port (PortSWD or PortJTAG).
func (a *CMSISDAPAdapter) Port() byte {
	return a.port
}

// Info returns adapter capabilities
func (a *CMSISDAPAdapter) Info() (AdapterInfo, error) {
	return a.info, nil
}

// ShiftIR shifts data into the instruction register
func (a *CMSISDAPAdapter) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.port != PortJTAG {
		return nil, ErrNotImplemented
	}
	if _, err := ValidateShiftBuffers(tms, tdi, bits); err != nil {
		return nil, err
	}

	return a.shiftRegister(tms, tdi, bits)
}

// ShiftDR shifts data into the data register
func (a *CMSISDAPAdapter) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.port != PortJTAG {
		return nil, ErrNotImplemented
	}
	if _, err := ValidateShiftBuffers(tms, tdi, bits); err != nil {
		return nil, err
	}

	return a.shiftRegister(tms, tdi, bits)
}

// shiftRegister clocks a scan as DAP_JTAG_Sequence commands, as many per
// packet as fit, and reassembles TDO.
func (a *CMSISDAPAdapter) shiftRegister(tms, tdi []byte, bits int) ([]byte, error) {
	sequences := a.buildSequences(tms, tdi, bits)

	tdo := make([]byte, (bits+7)/8)
	bitPos := 0
	for len(sequences) > 0 {
		n := a.protocol.SequencesPerPacket(sequences)
		batch := sequences[:n]
		sequences = sequences[n:]

		resp, err := a.transport.WriteRead(a.protocol.EncodeJTAGSequence(batch))
		if err != nil {
			return nil, fmt.Errorf("shift failed: %w", err)
		}
		captured, err := a.protocol.DecodeJTAGSequence(resp, batch)
		if err != nil {
			return nil, err
		}
		// buildSequences captures TDO on every sequence
		for i, seqTDO := range captured {
			count := batch[i].TCKCount()
			for bit := 0; bit < count && bitPos < bits; bit++ {
				if seqTDO[bit/8]&(1<<(bit%8)) != 0 {
					tdo[bitPos/8] |= 1 << (bitPos % 8)
				}
				bitPos++
			}
		}
	}
	return tdo, nil
}

// buildSequences splits a shift operation into CMSIS-DAP sequences
// CMSIS-DAP uses a single TMS value per sequence, but our Adapter interface
// expects per-bit TMS control, so we need to split whenever TMS changes
func (a *CMSISDAPAdapter) buildSequences(tms, tdi []byte, bits int) []JTAGSequence {
	sequences := make([]JTAGSequence, 0)

	if len(tms) == 0 {
		// No TMS provided - use single sequence with TMS=0
		seqTDI := make([]byte, (bits+7)/8)
		copy(seqTDI, tdi)

		// Split into 64-bit chunks if needed
		for bitPos := 0; bitPos < bits; bitPos += 64 {
			seqBits := bits - bitPos
			if seqBits > 64 {
				seqBits = 64
			}
			seqBytes := (seqBits + 7) / 8
			chunkTDI := make([]byte, seqBytes)
			copy(chunkTDI, seqTDI[bitPos/8:])

			seq := NewJTAGSequence(seqBits, false, true, chunkTDI)
			sequences = append(sequences, seq)
		}
		return sequences
	}

	// Build sequences based on TMS transitions
	bitPos := 0
	for bitPos < bits {
		// Determine TMS value for this segment
		byteIdx := bitPos / 8
		bitIdx := bitPos % 8
		currentTMS := (tms[byteIdx] & (1 << bitIdx)) != 0

		// Find how many consecutive bits have the same TMS
		seqBits := 0
		for bitPos+seqBits < bits && seqBits < 64 {
			idx := (bitPos + seqBits) / 8
			bit := (bitPos + seqBits) % 8
			tmsVal := (tms[idx] & (1 << bit)) != 0
			if tmsVal != currentTMS {
				break
			}
			seqBits++
		}

		// Extract TDI data for this sequence
		seqBytes := (seqBits + 7) / 8
		seqTDI := make([]byte, seqBytes)

		startByte := bitPos / 8
		startBit := bitPos % 8

		if startBit == 0 {
			// Aligned - simple copy
			copy(seqTDI, tdi[startByte:])
		} else {
			// Misaligned - need to shift bits
			for i := 0; i < seqBytes; i++ {
				if startByte+i < len(tdi) {
					seqTDI[i] = tdi[startByte+i] >> startBit
					if startByte+i+1 < len(tdi) {
						seqTDI[i] |= tdi[startByte+i+1] << (8 - startBit)
					}
				}
			}

			// Mask off extra bits in last byte
			if seqBits%8 != 0 {
				lastByte := seqBytes - 1
				mask := byte((1 << (seqBits % 8)) - 1)
				seqTDI[lastByte] &= mask
			}
		}

		// Create sequence
		seq := NewJTAGSequence(seqBits, currentTMS, true, seqTDI)
		sequences = append(sequences, seq)

		bitPos += seqBits
	}

	return sequences
}

// ResetTAP resets the JTAG TAP state machine
func (a *CMSISDAPAdapter) ResetTAP(hard bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if hard {
		// Use DAP_ResetTarget command
		cmd := a.protocol.EncodeResetTarget()
		resp, err := a.transport.WriteRead(cmd)
		if err != nil {
			return fmt.Errorf("hard reset failed: %w", err)
		}
		return a.protocol.DecodeResetTarget(resp)
	}

	// Soft reset via TMS sequence: 5+ clocks with TMS=1
	tdi := []byte{0x00}
	seq := NewJTAGSequence(5, true, false, tdi)

	cmd := a.protocol.EncodeJTAGSequence([]JTAGSequence{seq})
	resp, err := a.transport.WriteRead(cmd)
	if err != nil {
		return fmt.Errorf("TAP reset failed: %w", err)
	}

	_, err = a.protocol.DecodeJTAGSequence(resp, []JTAGSequence{seq})
	return err
}

// SetSpeed sets the TCK frequency
func (a *CMSISDAPAdapter) SetSpeed(hz int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if hz < a.info.MinFrequency || hz > a.info.MaxFrequency {
		return fmt.Errorf("frequency %d Hz out of range [%d, %d]",
			hz, a.info.MinFrequency, a.info.MaxFrequency)
	}

	cmd := a.protocol.EncodeSetClock(uint32(hz))
	resp, err := a.transport.WriteRead(cmd)
	if err != nil {
		return fmt.Errorf("set speed failed: %w", err)
	}

	if err := a.protocol.DecodeSetClock(resp); err != nil {
		return err
	}

	a.speedHz = hz
	return nil
}

// Close disconnects and releases resources
func (a *CMSISDAPAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		// Send disconnect command
		cmd := a.protocol.EncodeDisconnect()
		a.transport.WriteRead(cmd)
		a.connected = false
	}

	return a.transport.Close()
}

// ReadRegister performs a single DAP register read. WAIT acknowledges are
// retried by the probe according to the transfer configuration.
func (a *CMSISDAPAdapter) ReadRegister(port PortType, addr uint8) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	resp, err := a.transport.WriteRead(a.protocol.EncodeTransfer(port, true, addr, 0))
	if err != nil {
		return 0, fmt.Errorf("%s read 0x%X failed: %w", port, addr, err)
	}
	return a.protocol.DecodeTransfer(resp, true)
}

// WriteRegister performs a single DAP register write.
func (a *CMSISDAPAdapter) WriteRegister(port PortType, addr uint8, value uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	resp, err := a.transport.WriteRead(a.protocol.EncodeTransfer(port, false, addr, value))
	if err != nil {
		return fmt.Errorf("%s write 0x%X failed: %w", port, addr, err)
	}
	_, err = a.protocol.DecodeTransfer(resp, false)
	return err
}

// SetReset drives nRESET through DAP_SWJ_Pins. The line is active low.
func (a *CMSISDAPAdapter) SetReset(asserted bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var output byte = PinNRESET
	if asserted {
		output = 0
	}
	resp, err := a.transport.WriteRead(a.protocol.EncodeSWJPins(output, PinNRESET, 0))
	if err != nil {
		return fmt.Errorf("set nRESET failed: %w", err)
	}
	_, err = a.protocol.DecodeSWJPins(resp)
	return err
}

// ConfigureJTAGChain configures the JTAG chain with IR lengths
// This is a CMSIS-DAP specific extension not part of the Adapter interface
func (a *CMSISDAPAdapter) ConfigureJTAGChain(irLengths []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cmd := a.protocol.EncodeJTAGConfigure(irLengths)
	resp, err := a.transport.WriteRead(cmd)
	if err != nil {
		return fmt.Errorf("configure chain failed: %w", err)
	}

	return a.protocol.DecodeJTAGConfigure(resp)
}

// ReadIDCODE reads the IDCODE from a specific device in the chain
// This is a CMSIS-DAP specific extension not part of the Adapter interface
func (a *CMSISDAPAdapter) ReadIDCODE(deviceIndex byte) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cmd := a.protocol.EncodeJTAGIDCODE(deviceIndex)
	resp, err := a.transport.WriteRead(cmd)
	if err != nil {
		return 0, fmt.Errorf("read IDCODE failed: %w", err)
	}

	return a.protocol.DecodeJTAGIDCODE(resp)
}
