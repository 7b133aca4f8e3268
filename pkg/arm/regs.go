package arm

// Debug port registers.
const (
	dpDPIDR    uint8 = 0x0 // read
	dpABORT    uint8 = 0x0 // write
	dpCTRLSTAT uint8 = 0x4
	dpSELECT   uint8 = 0x8
)

// CTRL/STAT bits.
const (
	ctrlCSYSPWRUPACK uint32 = 1 << 31
	ctrlCSYSPWRUPREQ uint32 = 1 << 30
	ctrlCDBGPWRUPACK uint32 = 1 << 29
	ctrlCDBGPWRUPREQ uint32 = 1 << 28
)

// ABORT bits clearing every sticky flag.
const abortClearAll uint32 = 0x1E

// MEM-AP registers.
const (
	apCSW  uint8 = 0x00
	apTAR  uint8 = 0x04
	apDRW  uint8 = 0x0C
	apBASE uint8 = 0xF8
	apIDR  uint8 = 0xFC
)

// CSW fields.
const (
	cswSize32        uint32 = 0x2
	cswAddrIncSingle uint32 = 0x1 << 4
	cswDeviceEn      uint32 = 0x1 << 6
	cswHProtPriv     uint32 = 0x23 << 24
	cswDefault       uint32 = cswHProtPriv | cswDeviceEn | cswAddrIncSingle | cswSize32
)

// tarWrapSize is the boundary TAR auto-increment is guaranteed to cross
// correctly.
const tarWrapSize = 0x400

// System control space registers of a Cortex-M core.
const (
	regDHCSR uint32 = 0xE000EDF0
	regDCRSR uint32 = 0xE000EDF4
	regDCRDR uint32 = 0xE000EDF8
	regDEMCR uint32 = 0xE000EDFC
	regAIRCR uint32 = 0xE000ED0C
)

// DHCSR bits.
const (
	dhcsrKey       uint32 = 0xA05F << 16
	dhcsrCDebugEn  uint32 = 1 << 0
	dhcsrCHalt     uint32 = 1 << 1
	dhcsrCStep     uint32 = 1 << 2
	dhcsrCMaskInts uint32 = 1 << 3
	dhcsrSRegRdy   uint32 = 1 << 16
	dhcsrSHalt     uint32 = 1 << 17
	dhcsrSSleep    uint32 = 1 << 18
	dhcsrSLockup   uint32 = 1 << 19
	dhcsrSResetSt  uint32 = 1 << 25
)

const (
	dcrsrRegWnR      uint32 = 1 << 16
	demcrVCCoreReset uint32 = 1 << 0
	aircrVectKey     uint32 = 0x05FA << 16
	aircrSysResetReq uint32 = 1 << 2
)

// Flash patch and breakpoint unit.
const (
	regFPCTRL    uint32 = 0xE0002000
	regFPCOMP0   uint32 = 0xE0002008
	fpCtrlEnable uint32 = 1 << 0
	fpCtrlKey    uint32 = 1 << 1
)

// Component and peripheral ID register offsets within a 4 KiB component.
const (
	offPIDR4 = 0xFD0
	offPIDR0 = 0xFE0
	offCIDR0 = 0xFF0
)
