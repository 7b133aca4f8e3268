package core

import (
	"fmt"
	"strings"
)

// RegisterID is the architecture-specific register number passed to
// CoreInterface.ReadCoreReg.
type RegisterID uint16

// RegisterDesc names one core register.
type RegisterDesc struct {
	Name    string
	ID      RegisterID
	Aliases []string
}

// RegisterFile lists the registers of a core. PC, SP and RA (the return
// address register: lr on ARM, ra on RISC-V) are also present in All.
type RegisterFile struct {
	PC  RegisterDesc
	SP  RegisterDesc
	RA  RegisterDesc
	All []RegisterDesc
}

// Lookup finds a register by name or alias, ignoring case.
func (f *RegisterFile) Lookup(name string) (RegisterDesc, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, r := range f.All {
		if r.Name == name {
			return r, nil
		}
		for _, alias := range r.Aliases {
			if alias == name {
				return r, nil
			}
		}
	}
	return RegisterDesc{}, fmt.Errorf("%w %q", ErrUnknownRegister, name)
}
