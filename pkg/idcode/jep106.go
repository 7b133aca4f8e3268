package idcode

// manufacturers maps packed JEP106 codes (see JEP106.Code) to names. Only
// vendors of debuggable MCUs and common JTAG parts are listed.
var manufacturers = map[uint16]string{
	0x001: "AMD",
	0x009: "Intel",
	0x00E: "Freescale (Motorola)",
	0x015: "NXP (Philips)",
	0x017: "Texas Instruments",
	0x01F: "Atmel",
	0x020: "STMicroelectronics",
	0x021: "Lattice Semiconductor",
	0x029: "Microchip Technology",
	0x041: "Infineon",
	0x049: "Xilinx",
	0x06E: "Altera",
	0x144: "Nordic Semiconductor",
	0x23B: "ARM Ltd",
	0x31E: "Nuclei System Technology",
	0x3D1: "GigaDevice Semiconductor",
	0x489: "SiFive",
	0x493: "Raspberry Pi",
	0x612: "Espressif Systems",
}

// LookupManufacturer returns the manufacturer name for a JEP106 identity.
func LookupManufacturer(j JEP106) (string, bool) {
	name, ok := manufacturers[j.Code()]
	return name, ok
}
