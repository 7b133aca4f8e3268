package armsim

const (
	regDHCSR uint32 = 0xE000EDF0
	regDCRSR uint32 = 0xE000EDF4
	regDCRDR uint32 = 0xE000EDF8
	regDEMCR uint32 = 0xE000EDFC
	regAIRCR uint32 = 0xE000ED0C

	regFPCTRL  uint32 = 0xE0002000
	regFPCOMP0 uint32 = 0xE0002008
)

const (
	dhcsrKey      uint32 = 0xA05F << 16
	dhcsrCDebugEn uint32 = 1 << 0
	dhcsrCHalt    uint32 = 1 << 1
	dhcsrCStep    uint32 = 1 << 2
	dhcsrSRegRdy  uint32 = 1 << 16
	dhcsrSHalt    uint32 = 1 << 17
	dhcsrSResetSt uint32 = 1 << 25

	dcrsrRegWnR      uint32 = 1 << 16
	demcrVCCoreReset uint32 = 1 << 0
	aircrVectKey     uint32 = 0x05FA << 16
	aircrSysResetReq uint32 = 1 << 2

	fpCtrlEnable uint32 = 1 << 0
	fpCtrlKey    uint32 = 1 << 1
)

// ROMTableBase is where AP 0 reports its ROM table.
const ROMTableBase uint32 = 0xE00FF000

// AHB-AP identification register value reported by every simulated AP.
const ahbAPIDR uint32 = 0x24770011
