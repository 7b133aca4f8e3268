package target

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/OpenTraceLab/OpenTraceProbe/internal/logflags"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/core"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode"
)

//go:embed builtin/*.yaml
var builtinFamilies embed.FS

const nameCacheSize = 64

// Family is a chip family description as stored in YAML.
type Family struct {
	Name            string              `yaml:"name"`
	Manufacturer    *idcode.JEP106      `yaml:"manufacturer,omitempty"`
	CoreType        core.CoreType       `yaml:"core"`
	Variants        []Variant           `yaml:"variants"`
	FlashAlgorithms []RawFlashAlgorithm `yaml:"flash_algorithms"`

	source Source
}

// Variant is one orderable chip within a family.
type Variant struct {
	Name            string         `yaml:"name"`
	Part            uint16         `yaml:"part,omitempty"`
	JTAGIDCode      uint32         `yaml:"jtag_idcode,omitempty"`
	Cores           []CoreSpec     `yaml:"cores,omitempty"`
	MemoryMap       []MemoryRegion `yaml:"memory_map"`
	FlashAlgorithms []string       `yaml:"flash_algorithms,omitempty"`
}

// Registry holds chip families and resolves names and silicon identities
// to targets.
type Registry struct {
	families []Family
	names    *lru.Cache
	log      *logrus.Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	cache, err := lru.New(nameCacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	return &Registry{names: cache, log: logflags.RegistryLogger()}
}

// Builtin returns a registry holding the families compiled into the binary.
func Builtin() (*Registry, error) {
	r := NewRegistry()
	entries, err := builtinFamilies.ReadDir("builtin")
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		path := "builtin/" + entry.Name()
		data, err := builtinFamilies.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := r.LoadYAML(data, Source{Builtin: true, Path: path}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadYAML parses one family description and adds it.
func (r *Registry) LoadYAML(data []byte, source Source) error {
	var family Family
	if err := yaml.UnmarshalStrict(data, &family); err != nil {
		return &RegistryError{Reason: ReasonInvalidDescription, Name: source.String(), Err: err}
	}
	family.source = source
	return r.AddFamily(family)
}

// LoadDir loads every .yaml/.yml file in dir.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("target: read %s: %w", dir, err)
	}
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("target: read %s: %w", path, err)
		}
		if err := r.LoadYAML(data, Source{Path: path}); err != nil {
			return err
		}
		r.log.WithField("file", path).Debug("loaded chip family")
	}
	return nil
}

// AddFamily validates and adds a family. A family with the same name
// replaces the existing one.
func (r *Registry) AddFamily(family Family) error {
	if err := family.validate(); err != nil {
		return &RegistryError{Reason: ReasonInvalidDescription, Name: family.Name, Err: err}
	}
	r.names.Purge()
	for i := range r.families {
		if strings.EqualFold(r.families[i].Name, family.Name) {
			r.log.Warnf("chip family %q from %s replaces %s", family.Name, family.source, r.families[i].source)
			r.families[i] = family
			return nil
		}
	}
	r.families = append(r.families, family)
	return nil
}

func (f *Family) validate() error {
	if f.Name == "" {
		return fmt.Errorf("family has no name")
	}
	if len(f.Variants) == 0 {
		return fmt.Errorf("family has no variants")
	}
	algorithms := make(map[string]bool, len(f.FlashAlgorithms))
	for _, algo := range f.FlashAlgorithms {
		algorithms[algo.Name] = true
	}
	for _, v := range f.Variants {
		if v.Name == "" {
			return fmt.Errorf("variant without a name")
		}
		if f.CoreType == "" && len(v.Cores) == 0 {
			return fmt.Errorf("variant %s: no core type", v.Name)
		}
		for _, c := range v.Cores {
			if c.Type.Architecture() != v.Cores[0].Type.Architecture() {
				return fmt.Errorf("variant %s: cores %s and %s have different architectures", v.Name, v.Cores[0].Name, c.Name)
			}
		}
		for _, name := range v.FlashAlgorithms {
			if !algorithms[name] {
				return fmt.Errorf("variant %s: unknown flash algorithm %q", v.Name, name)
			}
		}
	}
	return nil
}

// Families returns the loaded families in load order.
func (r *Registry) Families() []Family {
	return append([]Family(nil), r.families...)
}

// Targets returns the names of every known variant, sorted.
func (r *Registry) Targets() []string {
	var names []string
	for _, f := range r.families {
		for _, v := range f.Variants {
			names = append(names, v.Name)
		}
	}
	sort.Strings(names)
	return names
}

// TargetByName finds a variant by case-insensitive name. When no variant
// matches exactly, a name that is a prefix of exactly one variant selects it.
func (r *Registry) TargetByName(name string) (*Target, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if cached, ok := r.names.Get(key); ok {
		m := cached.(nameMatch)
		return m.family.target(m.variant), nil
	}

	var exact *nameMatch
	var partial []nameMatch
	for fi := range r.families {
		f := &r.families[fi]
		for vi := range f.Variants {
			v := &f.Variants[vi]
			lower := strings.ToLower(v.Name)
			switch {
			case lower == key:
				exact = &nameMatch{f, v}
			case strings.HasPrefix(lower, key):
				partial = append(partial, nameMatch{f, v})
			}
		}
	}

	var found nameMatch
	switch {
	case exact != nil:
		found = *exact
	case len(partial) == 1:
		found = partial[0]
		r.log.Warnf("found chip %s which matches given partial name %s; consider specifying its full name", found.variant.Name, name)
	case len(partial) > 1:
		for _, m := range partial {
			r.log.Debugf("ambiguous match for %s: %s", name, m.variant.Name)
		}
		return nil, &RegistryError{Reason: ReasonNameNotFound, Name: name, Err: fmt.Errorf("ambiguous name matches %d chips", len(partial))}
	default:
		return nil, &RegistryError{Reason: ReasonNameNotFound, Name: name}
	}

	r.names.Add(key, found)
	return found.family.target(found.variant), nil
}

// nameMatch is what the name cache holds. Every lookup builds a fresh
// Target from it so callers never share one.
type nameMatch struct {
	family  *Family
	variant *Variant
}

// TargetByChipInfo finds the variant matching an identity read from silicon.
// ARM identities match on JEP106 manufacturer and part number; RISC-V
// identities on the JTAG IDCODE.
func (r *Registry) TargetByChipInfo(info ChipInfo) (*Target, error) {
	var matches []*Target
	for fi := range r.families {
		f := &r.families[fi]
		for vi := range f.Variants {
			v := &f.Variants[vi]
			if f.matches(v, info) {
				matches = append(matches, f.target(v))
			}
		}
	}
	if len(matches) == 0 {
		return nil, &RegistryError{Reason: ReasonChipInfoNotFound, ChipInfo: info}
	}
	if len(matches) > 1 {
		r.log.Warnf("%d chips match %s, using %s", len(matches), info, matches[0].Name)
	}
	return matches[0], nil
}

func (f *Family) matches(v *Variant, info ChipInfo) bool {
	switch info := info.(type) {
	case ArmChipInfo:
		return f.Manufacturer != nil && *f.Manufacturer == info.Manufacturer && v.Part != 0 && v.Part == info.Part
	case RiscvChipInfo:
		return v.JTAGIDCode != 0 && v.JTAGIDCode == info.IDCode
	}
	return false
}

func (f *Family) target(v *Variant) *Target {
	t := &Target{
		Name:      v.Name,
		CoreType:  f.CoreType,
		Cores:     append([]CoreSpec(nil), v.Cores...),
		MemoryMap: append([]MemoryRegion(nil), v.MemoryMap...),
		Source:    f.source,
	}
	if len(t.Cores) > 0 {
		t.CoreType = t.Cores[0].Type
	}
	for _, name := range v.FlashAlgorithms {
		for _, algo := range f.FlashAlgorithms {
			if algo.Name == name {
				t.FlashAlgorithms = append(t.FlashAlgorithms, algo.clone())
			}
		}
	}
	return t
}
