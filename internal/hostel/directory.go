// Package hostel holds the static category partitions, the registration
// number to hostel lookup, and the category access predicate built on them.
package hostel

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed hostels.yaml
var defaultDirectory []byte

// Partition identifies which of the three disjoint category groups a
// category belongs to.
type Partition int

const (
	PartitionUnknown Partition = iota
	PartitionLadies
	PartitionMens
	PartitionCommon
)

func (p Partition) String() string {
	switch p {
	case PartitionLadies:
		return "ladies_hostels"
	case PartitionMens:
		return "mens_hostels"
	case PartitionCommon:
		return "common_sections"
	}
	return "unknown"
}

type directoryFile struct {
	LadiesHostels  []string          `yaml:"ladies_hostels"`
	MensHostels    []string          `yaml:"mens_hostels"`
	CommonSections []string          `yaml:"common_sections"`
	Registrations  map[string]string `yaml:"registrations"`
}

// Directory is the immutable lookup loaded once at startup.
type Directory struct {
	ladies        []string
	mens          []string
	common        []string
	partitions    map[string]Partition
	registrations map[string]string
}

// Default returns the directory compiled into the binary.
func Default() *Directory {
	d, err := Parse(defaultDirectory)
	if err != nil {
		panic(fmt.Sprintf("hostel: embedded directory is invalid: %v", err))
	}
	return d
}

// Load reads a directory file, or returns the embedded default when path is
// empty.
func Load(path string) (*Directory, error) {
	if path == "" {
		return Parse(defaultDirectory)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hostel directory %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML directory.
func Parse(data []byte) (*Directory, error) {
	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse hostel directory: %w", err)
	}

	d := &Directory{
		partitions:    make(map[string]Partition),
		registrations: make(map[string]string, len(f.Registrations)),
	}
	groups := []struct {
		names []string
		dst   *[]string
		part  Partition
	}{
		{f.LadiesHostels, &d.ladies, PartitionLadies},
		{f.MensHostels, &d.mens, PartitionMens},
		{f.CommonSections, &d.common, PartitionCommon},
	}
	for _, g := range groups {
		for _, raw := range g.names {
			name := strings.TrimSpace(raw)
			if name == "" {
				return nil, fmt.Errorf("blank category in %s", g.part)
			}
			if prev, ok := d.partitions[name]; ok {
				return nil, fmt.Errorf("category %q listed in both %s and %s", name, prev, g.part)
			}
			d.partitions[name] = g.part
			*g.dst = append(*g.dst, name)
		}
	}
	if len(d.common) == 0 {
		return nil, errors.New("hostel directory has no common sections")
	}

	for rawReg, rawHostel := range f.Registrations {
		reg := NormalizeRegistration(rawReg)
		hostel := strings.TrimSpace(rawHostel)
		if reg == "" {
			return nil, errors.New("blank registration number")
		}
		if !d.IsHostel(hostel) {
			return nil, fmt.Errorf("registration %s maps to %q, which is not a hostel", reg, hostel)
		}
		d.registrations[reg] = hostel
	}
	return d, nil
}

// NormalizeRegistration is the form registration numbers are stored and
// matched in.
func NormalizeRegistration(reg string) string {
	return strings.ToUpper(strings.TrimSpace(reg))
}

// HostelFor returns the hostel assigned to a registration number.
func (d *Directory) HostelFor(registrationNumber string) (string, bool) {
	h, ok := d.registrations[NormalizeRegistration(registrationNumber)]
	return h, ok
}

// PartitionOf reports which group category belongs to.
func (d *Directory) PartitionOf(category string) Partition {
	return d.partitions[category]
}

// IsKnown reports whether category appears in any partition.
func (d *Directory) IsKnown(category string) bool {
	return d.PartitionOf(category) != PartitionUnknown
}

// IsCommon reports whether category is a common section.
func (d *Directory) IsCommon(category string) bool {
	return d.PartitionOf(category) == PartitionCommon
}

// IsHostel reports whether category is a ladies or men's hostel.
func (d *Directory) IsHostel(category string) bool {
	p := d.PartitionOf(category)
	return p == PartitionLadies || p == PartitionMens
}

func (d *Directory) LadiesHostels() []string  { return slices.Clone(d.ladies) }
func (d *Directory) MensHostels() []string    { return slices.Clone(d.mens) }
func (d *Directory) CommonSections() []string { return slices.Clone(d.common) }

// All returns every category: ladies, then men's, then common.
func (d *Directory) All() []string {
	all := make([]string, 0, len(d.ladies)+len(d.mens)+len(d.common))
	all = append(all, d.ladies...)
	all = append(all, d.mens...)
	return append(all, d.common...)
}
