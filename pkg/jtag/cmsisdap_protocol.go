package jtag

import (
	"encoding/binary"
	"fmt"
)

// CMSIS-DAP Command IDs
const (
	CmdInfo              = 0x00
	CmdHostStatus        = 0x01
	CmdConnect           = 0x02
	CmdDisconnect        = 0x03
	CmdTransferConfigure = 0x04
	CmdTransfer          = 0x05
	CmdResetTarget       = 0x0A
	CmdSWJPins           = 0x10
	CmdSWJClock          = 0x11
	CmdSWJSequence       = 0x12
	CmdSWDConfigure      = 0x13
	CmdJTAGSequence      = 0x14
	CmdJTAGConfigure     = 0x15
	CmdJTAGIDCODE        = 0x16
)

// DAP_Info Info IDs
const (
	InfoVendorID     = 0x01
	InfoProductID    = 0x02
	InfoSerialNum    = 0x03
	InfoFirmwareVer  = 0x04
	InfoCapabilities = 0xF0
	InfoPacketCount  = 0xFE
	InfoPacketSize   = 0xFF
)

// Connection ports
const (
	PortDefault = 0
	PortSWD     = 1
	PortJTAG    = 2
)

// Status codes
const (
	StatusOK    = 0x00
	StatusError = 0xFF
)

// DAP_Transfer request bits
const (
	TransferAPnDP = 0x01
	TransferRnW   = 0x02
	TransferA2    = 0x04
	TransferA3    = 0x08
)

// DAP_Transfer acknowledge values (bits [2:0] of the transfer response)
const (
	TransferAckOK    = 0x01
	TransferAckWait  = 0x02
	TransferAckFault = 0x04
	TransferAckMask  = 0x07
	TransferProtoErr = 0x08
)

// DAP_SWJ_Pins bit positions
const (
	PinSWCLK  = 1 << 0
	PinSWDIO  = 1 << 1
	PinTDI    = 1 << 2
	PinTDO    = 1 << 3
	PinNTRST  = 1 << 5
	PinNRESET = 1 << 7
)

// JTAG Sequence info flags
const (
	JTAGSeqTCKMask = 0x3F // Bits [5:0] = TCK count (0-63, where 0 means 64)
	JTAGSeqTMS     = 0x40 // Bit [6] = TMS value
	JTAGSeqTDO     = 0x80 // Bit [7] = Capture TDO
)

// CMSISDAPProtocol handles encoding/decoding of CMSIS-DAP commands
type CMSISDAPProtocol struct {
	PacketSize int
}

// NewCMSISDAPProtocol creates a new protocol handler
func NewCMSISDAPProtocol(packetSize int) *CMSISDAPProtocol {
	return &CMSISDAPProtocol{
		PacketSize: packetSize,
	}
}

// EncodeInfo builds a DAP_Info command
func (p *CMSISDAPProtocol) EncodeInfo(infoID byte) []byte {
	return []byte{CmdInfo, infoID}
}

// DecodeInfo parses a DAP_Info response
func (p *CMSISDAPProtocol) DecodeInfo(resp []byte) (string, error) {
	if len(resp) < 2 {
		return "", fmt.Errorf("response too short")
	}
	if resp[0] != CmdInfo {
		return "", fmt.Errorf("invalid command ID: 0x%02X", resp[0])
	}

	length := int(resp[1])
	if len(resp) < 2+length {
		return "", fmt.Errorf("incomplete info string")
	}

	return string(resp[2 : 2+length]), nil
}

// EncodeConnect builds a DAP_Connect command
func (p *CMSISDAPProtocol) EncodeConnect(port byte) []byte {
	return []byte{CmdConnect, port}
}

// DecodeConnect parses a DAP_Connect response
func (p *CMSISDAPProtocol) DecodeConnect(resp []byte) (byte, error) {
	if len(resp) < 2 {
		return 0, fmt.Errorf("response too short")
	}
	if resp[0] != CmdConnect {
		return 0, fmt.Errorf("invalid command ID")
	}
	if resp[1] == 0 {
		return 0, fmt.Errorf("connection failed")
	}
	return resp[1], nil
}

// EncodeDisconnect builds a DAP_Disconnect command
func (p *CMSISDAPProtocol) EncodeDisconnect() []byte {
	return []byte{CmdDisconnect}
}

// DecodeDisconnect parses a DAP_Disconnect response
func (p *CMSISDAPProtocol) DecodeDisconnect(resp []byte) error {
	return p.decodeStatus(resp, CmdDisconnect, "disconnect")
}

// EncodeJTAGConfigure builds a DAP_JTAG_Configure command
func (p *CMSISDAPProtocol) EncodeJTAGConfigure(irLengths []byte) []byte {
	cmd := make([]byte, 2+len(irLengths))
	cmd[0] = CmdJTAGConfigure
	cmd[1] = byte(len(irLengths))
	copy(cmd[2:], irLengths)
	return cmd
}

// DecodeJTAGConfigure parses response
func (p *CMSISDAPProtocol) DecodeJTAGConfigure(resp []byte) error {
	return p.decodeStatus(resp, CmdJTAGConfigure, "configure")
}

// EncodeJTAGIDCODE builds a DAP_JTAG_IDCODE command
func (p *CMSISDAPProtocol) EncodeJTAGIDCODE(deviceIndex byte) []byte {
	return []byte{CmdJTAGIDCODE, deviceIndex}
}

// DecodeJTAGIDCODE parses response and extracts IDCODE
func (p *CMSISDAPProtocol) DecodeJTAGIDCODE(resp []byte) (uint32, error) {
	if len(resp) < 6 {
		return 0, fmt.Errorf("response too short")
	}
	if resp[0] != CmdJTAGIDCODE {
		return 0, fmt.Errorf("invalid command ID")
	}
	if resp[1] != StatusOK {
		return 0, fmt.Errorf("IDCODE read failed")
	}

	// IDCODE is 32-bit little-endian
	idcode := binary.LittleEndian.Uint32(resp[2:6])
	return idcode, nil
}

// JTAGSequence represents one JTAG shift operation
type JTAGSequence struct {
	Info byte   // Sequence info byte (TCK count, TMS, TDO capture)
	TDI  []byte // TDI data to shift
}

// NewJTAGSequence creates a sequence descriptor
func NewJTAGSequence(tckCount int, tms bool, captureTDO bool, tdi []byte) JTAGSequence {
	// Build info byte
	info := byte(tckCount & JTAGSeqTCKMask)
	if tms {
		info |= JTAGSeqTMS
	}
	if captureTDO {
		info |= JTAGSeqTDO
	}

	return JTAGSequence{
		Info: info,
		TDI:  tdi,
	}
}

// TCKCount returns the number of TCK clocks in this sequence
func (seq *JTAGSequence) TCKCount() int {
	count := int(seq.Info & JTAGSeqTCKMask)
	if count == 0 {
		return 64 // 0 means 64
	}
	return count
}

// TMS returns the TMS value for this sequence
func (seq *JTAGSequence) TMS() bool {
	return (seq.Info & JTAGSeqTMS) != 0
}

// CaptureTDO returns whether TDO should be captured
func (seq *JTAGSequence) CaptureTDO() bool {
	return (seq.Info & JTAGSeqTDO) != 0
}

// EncodeJTAGSequence builds a DAP_JTAG_Sequence command
// Each sequence is: [info_byte][tdi_data...]
func (p *CMSISDAPProtocol) EncodeJTAGSequence(sequences []JTAGSequence) []byte {
	// Calculate total size
	size := 2 // cmd + count
	for _, seq := range sequences {
		size += 1 + len(seq.TDI) // info + data
	}

	cmd := make([]byte, size)
	cmd[0] = CmdJTAGSequence
	cmd[1] = byte(len(sequences))

	offset := 2
	for _, seq := range sequences {
		cmd[offset] = seq.Info
		offset++
		copy(cmd[offset:], seq.TDI)
		offset += len(seq.TDI)
	}

	return cmd
}

// SequencesPerPacket returns how many leading sequences fit into one
// DAP_JTAG_Sequence command and its response. At least one is always
// returned.
func (p *CMSISDAPProtocol) SequencesPerPacket(sequences []JTAGSequence) int {
	cmdSize, respSize := 2, 2
	for i, seq := range sequences {
		cmdSize += 1 + len(seq.TDI)
		if seq.CaptureTDO() {
			respSize += len(seq.TDI)
		}
		if i > 0 && (cmdSize > p.PacketSize || respSize > p.PacketSize || i == 0xFF) {
			return i
		}
	}
	return len(sequences)
}

// DecodeJTAGSequence parses response and extracts TDO data
func (p *CMSISDAPProtocol) DecodeJTAGSequence(resp []byte, sequences []JTAGSequence) ([][]byte, error) {
	if len(resp) < 2 {
		return nil, fmt.Errorf("response too short")
	}
	if resp[0] != CmdJTAGSequence {
		return nil, fmt.Errorf("invalid command ID")
	}
	if resp[1] != StatusOK {
		return nil, fmt.Errorf("sequence failed")
	}

	// Extract TDO data for sequences that requested capture
	result := make([][]byte, 0)
	offset := 2

	for _, seq := range sequences {
		if seq.CaptureTDO() {
			// This sequence captured TDO
			tdo := make([]byte, len(seq.TDI))
			if offset+len(tdo) > len(resp) {
				return nil, fmt.Errorf("incomplete TDO data")
			}
			copy(tdo, resp[offset:offset+len(tdo)])
			result = append(result, tdo)
			offset += len(tdo)
		}
	}

	return result, nil
}

// EncodeSetClock builds a DAP_SWJ_Clock command
func (p *CMSISDAPProtocol) EncodeSetClock(hz uint32) []byte {
	cmd := make([]byte, 5)
	cmd[0] = CmdSWJClock
	binary.LittleEndian.PutUint32(cmd[1:], hz)
	return cmd
}

// DecodeSetClock parses response
func (p *CMSISDAPProtocol) DecodeSetClock(resp []byte) error {
	return p.decodeStatus(resp, CmdSWJClock, "set clock")
}

// EncodeResetTarget builds a DAP_ResetTarget command
func (p *CMSISDAPProtocol) EncodeResetTarget() []byte {
	return []byte{CmdResetTarget}
}

// DecodeResetTarget parses response
func (p *CMSISDAPProtocol) DecodeResetTarget(resp []byte) error {
	return p.decodeStatus(resp, CmdResetTarget, "reset target")
}

// EncodeTransferConfigure builds a DAP_TransferConfigure command
func (p *CMSISDAPProtocol) EncodeTransferConfigure(idleCycles byte, waitRetry, matchRetry uint16) []byte {
	cmd := make([]byte, 6)
	cmd[0] = CmdTransferConfigure
	cmd[1] = idleCycles
	binary.LittleEndian.PutUint16(cmd[2:], waitRetry)
	binary.LittleEndian.PutUint16(cmd[4:], matchRetry)
	return cmd
}

// DecodeTransferConfigure parses response
func (p *CMSISDAPProtocol) DecodeTransferConfigure(resp []byte) error {
	return p.decodeStatus(resp, CmdTransferConfigure, "transfer configure")
}

// EncodeTransfer builds a single-register DAP_Transfer command. The register
// address uses bits [3:2]; value is ignored for reads.
func (p *CMSISDAPProtocol) EncodeTransfer(port PortType, read bool, addr uint8, value uint32) []byte {
	request := addr & (TransferA2 | TransferA3)
	if port == PortAccess {
		request |= TransferAPnDP
	}
	if read {
		request |= TransferRnW
		return []byte{CmdTransfer, 0, 1, request}
	}
	cmd := make([]byte, 8)
	cmd[0] = CmdTransfer
	cmd[1] = 0 // DAP index, ignored for SWD
	cmd[2] = 1
	cmd[3] = request
	binary.LittleEndian.PutUint32(cmd[4:], value)
	return cmd
}

// DecodeTransfer parses a single-register DAP_Transfer response. Reads return
// the register value; writes return zero.
func (p *CMSISDAPProtocol) DecodeTransfer(resp []byte, read bool) (uint32, error) {
	if len(resp) < 3 {
		return 0, fmt.Errorf("response too short")
	}
	if resp[0] != CmdTransfer {
		return 0, fmt.Errorf("invalid command ID: 0x%02X", resp[0])
	}
	ack := resp[2]
	if ack&TransferProtoErr != 0 {
		return 0, fmt.Errorf("transfer protocol error (ack 0x%02X)", ack)
	}
	switch ack & TransferAckMask {
	case TransferAckOK:
	case TransferAckWait:
		return 0, ErrTransferWait
	case TransferAckFault:
		return 0, ErrTransferFault
	default:
		return 0, fmt.Errorf("transfer failed (ack 0x%02X)", ack)
	}
	if resp[1] != 1 {
		return 0, fmt.Errorf("transfer count %d, want 1", resp[1])
	}
	if !read {
		return 0, nil
	}
	if len(resp) < 7 {
		return 0, fmt.Errorf("incomplete transfer data")
	}
	return binary.LittleEndian.Uint32(resp[3:7]), nil
}

// EncodeSWJPins builds a DAP_SWJ_Pins command driving the selected pins to
// output and waiting up to waitUS microseconds for them to settle.
func (p *CMSISDAPProtocol) EncodeSWJPins(output, selectMask byte, waitUS uint32) []byte {
	cmd := make([]byte, 7)
	cmd[0] = CmdSWJPins
	cmd[1] = output
	cmd[2] = selectMask
	binary.LittleEndian.PutUint32(cmd[3:], waitUS)
	return cmd
}

// DecodeSWJPins parses response and returns the sampled pin input byte
func (p *CMSISDAPProtocol) DecodeSWJPins(resp []byte) (byte, error) {
	if len(resp) < 2 {
		return 0, fmt.Errorf("response too short")
	}
	if resp[0] != CmdSWJPins {
		return 0, fmt.Errorf("invalid command ID")
	}
	return resp[1], nil
}

// EncodeSWJSequence builds a DAP_SWJ_Sequence command clocking bits of data
// out on SWDIO/TMS. A bit count of 256 is encoded as zero.
func (p *CMSISDAPProtocol) EncodeSWJSequence(bits int, data []byte) []byte {
	n := (bits + 7) / 8
	cmd := make([]byte, 2+n)
	cmd[0] = CmdSWJSequence
	cmd[1] = byte(bits & 0xFF)
	copy(cmd[2:], data)
	return cmd
}

// DecodeSWJSequence parses response
func (p *CMSISDAPProtocol) DecodeSWJSequence(resp []byte) error {
	return p.decodeStatus(resp, CmdSWJSequence, "SWJ sequence")
}

// EncodeSWDConfigure builds a DAP_SWD_Configure command
func (p *CMSISDAPProtocol) EncodeSWDConfigure(config byte) []byte {
	return []byte{CmdSWDConfigure, config}
}

// DecodeSWDConfigure parses response
func (p *CMSISDAPProtocol) DecodeSWDConfigure(resp []byte) error {
	return p.decodeStatus(resp, CmdSWDConfigure, "SWD configure")
}

func (p *CMSISDAPProtocol) decodeStatus(resp []byte, cmdID byte, what string) error {
	if len(resp) < 2 {
		return fmt.Errorf("response too short")
	}
	if resp[0] != cmdID {
		return fmt.Errorf("invalid command ID")
	}
	if resp[1] != StatusOK {
		return fmt.Errorf("%s failed", what)
	}
	return nil
}
