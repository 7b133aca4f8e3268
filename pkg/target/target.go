// Package target describes debuggable chips and resolves chip selections
// against a registry of YAML chip family descriptions.
package target

import (
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/core"
)

// Target is the static description of one chip. It is immutable once
// produced by a Registry.
type Target struct {
	Name            string
	CoreType        core.CoreType
	Cores           []CoreSpec
	MemoryMap       []MemoryRegion
	FlashAlgorithms []RawFlashAlgorithm
	Source          Source
}

// CoreSpec names one core of a target. AP selects the MEM-AP of an ARM core
// and is ignored for RISC-V, where the core index is the hart index.
type CoreSpec struct {
	Name string        `yaml:"name"`
	Type core.CoreType `yaml:"type"`
	AP   uint8         `yaml:"ap,omitempty"`
}

// Source records where a target description was loaded from.
type Source struct {
	Builtin bool
	Path    string
}

func (s Source) String() string {
	if s.Builtin {
		return "builtin"
	}
	return s.Path
}

// Architecture derives the debug architecture from the core type.
func (t *Target) Architecture() core.Architecture {
	return t.CoreType.Architecture()
}

// CoreList returns one entry per declared core. A target that declares no
// cores has a single core of its CoreType.
func (t *Target) CoreList() []CoreSpec {
	if len(t.Cores) == 0 {
		return []CoreSpec{{Name: "main", Type: t.CoreType}}
	}
	return append([]CoreSpec(nil), t.Cores...)
}

// MemoryKind classifies a memory region.
type MemoryKind string

const (
	MemoryRAM     MemoryKind = "ram"
	MemoryNVM     MemoryKind = "nvm"
	MemoryGeneric MemoryKind = "generic"
)

// MemoryRegion is one entry of a target memory map.
type MemoryRegion struct {
	Name       string     `yaml:"name"`
	Kind       MemoryKind `yaml:"kind"`
	Start      uint64     `yaml:"start"`
	Size       uint64     `yaml:"size"`
	Boot       bool       `yaml:"boot"`
	PageSize   uint32     `yaml:"page_size,omitempty"`
	SectorSize uint32     `yaml:"sector_size,omitempty"`
}

// End is the first address past the region.
func (r MemoryRegion) End() uint64 {
	return r.Start + r.Size
}

// Contains reports whether addr falls inside the region.
func (r MemoryRegion) Contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End()
}

// RawFlashAlgorithm is a flash loader blob as described in the registry.
// Programming is out of scope; the descriptor is carried for tools that
// consume it.
type RawFlashAlgorithm struct {
	Name              string          `yaml:"name"`
	Description       string          `yaml:"description"`
	Default           bool            `yaml:"default"`
	Instructions      string          `yaml:"instructions"` // base64
	LoadAddress       uint32          `yaml:"load_address"`
	PCInit            *uint32         `yaml:"pc_init,omitempty"`
	PCUninit          *uint32         `yaml:"pc_uninit,omitempty"`
	PCProgramPage     uint32          `yaml:"pc_program_page"`
	PCEraseSector     uint32          `yaml:"pc_erase_sector"`
	PCEraseAll        *uint32         `yaml:"pc_erase_all,omitempty"`
	DataSectionOffset uint32          `yaml:"data_section_offset"`
	FlashProperties   FlashProperties `yaml:"flash_properties"`
}

func (a RawFlashAlgorithm) clone() RawFlashAlgorithm {
	a.PCInit = cloneAddr(a.PCInit)
	a.PCUninit = cloneAddr(a.PCUninit)
	a.PCEraseAll = cloneAddr(a.PCEraseAll)
	a.FlashProperties.Sectors = append([]SectorInfo(nil), a.FlashProperties.Sectors...)
	return a
}

func cloneAddr(p *uint32) *uint32 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// FlashProperties describes the flash a RawFlashAlgorithm operates on.
type FlashProperties struct {
	Start              uint64       `yaml:"start"`
	Size               uint64       `yaml:"size"`
	PageSize           uint32       `yaml:"page_size"`
	ErasedByteValue    uint8        `yaml:"erased_byte_value"`
	ProgramPageTimeout uint32       `yaml:"program_page_timeout"` // ms
	EraseSectorTimeout uint32       `yaml:"erase_sector_timeout"` // ms
	Sectors            []SectorInfo `yaml:"sectors"`
}

// SectorInfo starts a run of equally sized sectors at Address.
type SectorInfo struct {
	Size    uint64 `yaml:"size"`
	Address uint64 `yaml:"address"`
}
