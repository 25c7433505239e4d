// Package regmap holds the register database the calculators write into.
//
// A Map is a set of peripheral blocks (MODEM, AGC, SYNTH, RAC, ...), each at a
// base address, each holding memory-mapped registers that are split into
// named bit fields. Maps are loaded from YAML so that the per-chip data stays
// out of the Go code:
//
//	blocks:
//	  - name: MODEM
//	    base: 0x40086000
//	    registers:
//	      - name: CF
//	        offset: 0x020
//	        fields:
//	          - {name: DEC0, offset: 0, width: 3}
//
// Fields are addressed by their full name, BLOCK_REGISTER_FIELD, which is
// also the name of the model variable bound to the field.
package regmap

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidMap is wrapped by every validation error returned by Parse.
var ErrInvalidMap = errors.New("invalid register map")

// ErrReadOnly is returned when encoding a value for a field that cannot be written.
var ErrReadOnly = errors.New("field is read-only")

// Access is the bus access mode of a field
type Access string

const (
	AccessRW Access = "RW"
	AccessR  Access = "R"
	AccessW  Access = "W"
)

// Field is a named bit range within a register.
type Field struct {
	Name   string `yaml:"name" json:"name"`
	Offset uint   `yaml:"offset" json:"offset"`
	Width  uint   `yaml:"width" json:"width"`
	Access Access `yaml:"access" json:"access"`
	Signed bool   `yaml:"signed" json:"signed,omitempty"`
	Desc   string `yaml:"desc" json:"desc,omitempty"`

	Register *Register `yaml:"-" json:"-"`
}

// Register is a 32-bit memory-mapped location inside a block.
type Register struct {
	Name   string   `yaml:"name" json:"name"`
	Offset uint32   `yaml:"offset" json:"offset"`
	Reset  uint32   `yaml:"reset" json:"reset"`
	Desc   string   `yaml:"desc" json:"desc,omitempty"`
	Fields []*Field `yaml:"fields" json:"fields"`

	Block *Block `yaml:"-" json:"-"`
}

// Block is a peripheral with a base address.
type Block struct {
	Name      string      `yaml:"name" json:"name"`
	Base      uint32      `yaml:"base" json:"base"`
	Desc      string      `yaml:"desc" json:"desc,omitempty"`
	Registers []*Register `yaml:"registers" json:"registers"`
}

// Map is a complete register database for one chip family.
type Map struct {
	Name   string   `yaml:"name" json:"name"`
	Blocks []*Block `yaml:"blocks" json:"blocks"`

	fields    map[string]*Field
	registers map[string]*Register
	byAddr    map[uint32]*Register
}

// FullName returns BLOCK_REGISTER.
func (r *Register) FullName() string {
	return r.Block.Name + "_" + r.Name
}

// Address returns the absolute bus address of the register.
func (r *Register) Address() uint32 {
	return r.Block.Base + r.Offset
}

// FullName returns BLOCK_REGISTER_FIELD.
func (f *Field) FullName() string {
	return f.Register.FullName() + "_" + f.Name
}

// Mask returns the in-register bit mask covered by the field.
func (f *Field) Mask() uint32 {
	return uint32(((uint64(1) << f.Width) - 1) << f.Offset)
}

// Writable reports whether software may write the field.
func (f *Field) Writable() bool {
	return f.Access != AccessR
}

// Parse decodes and validates a YAML register map.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMap, err)
	}
	if err := m.link(); err != nil {
		return nil, err
	}
	return &m, nil
}

// MustParse is Parse for maps embedded in the binary.
func MustParse(data []byte) *Map {
	m, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Map) link() error {
	m.fields = make(map[string]*Field)
	m.registers = make(map[string]*Register)
	m.byAddr = make(map[uint32]*Register)

	blocks := make(map[string]bool)
	for _, b := range m.Blocks {
		if b.Name == "" {
			return fmt.Errorf("%w: block without a name", ErrInvalidMap)
		}
		if blocks[b.Name] {
			return fmt.Errorf("%w: duplicate block %s", ErrInvalidMap, b.Name)
		}
		blocks[b.Name] = true

		for _, r := range b.Registers {
			r.Block = b
			if r.Offset%4 != 0 {
				return fmt.Errorf("%w: register %s offset 0x%X is not word aligned", ErrInvalidMap, r.FullName(), r.Offset)
			}
			if _, dup := m.registers[r.FullName()]; dup {
				return fmt.Errorf("%w: duplicate register %s", ErrInvalidMap, r.FullName())
			}
			if other, dup := m.byAddr[r.Address()]; dup {
				return fmt.Errorf("%w: registers %s and %s share address 0x%08X", ErrInvalidMap, other.FullName(), r.FullName(), r.Address())
			}
			m.registers[r.FullName()] = r
			m.byAddr[r.Address()] = r

			var used uint32
			for _, f := range r.Fields {
				f.Register = r
				if f.Access == "" {
					f.Access = AccessRW
				}
				switch f.Access {
				case AccessRW, AccessR, AccessW:
				default:
					return fmt.Errorf("%w: field %s has unknown access %q", ErrInvalidMap, f.FullName(), f.Access)
				}
				if f.Width == 0 || f.Offset+f.Width > 32 {
					return fmt.Errorf("%w: field %s [%d+:%d] does not fit in 32 bits", ErrInvalidMap, f.FullName(), f.Offset, f.Width)
				}
				if used&f.Mask() != 0 {
					return fmt.Errorf("%w: field %s overlaps another field of %s", ErrInvalidMap, f.FullName(), r.FullName())
				}
				used |= f.Mask()
				if _, dup := m.fields[f.FullName()]; dup {
					return fmt.Errorf("%w: duplicate field %s", ErrInvalidMap, f.FullName())
				}
				m.fields[f.FullName()] = f
			}
		}
	}
	return nil
}

// Field looks up a field by its full name.
func (m *Map) Field(name string) (*Field, bool) {
	f, ok := m.fields[strings.ToUpper(name)]
	return f, ok
}

// Register looks up a register by its full name.
func (m *Map) Register(name string) (*Register, bool) {
	r, ok := m.registers[strings.ToUpper(name)]
	return r, ok
}

// RegisterAt returns the register at an absolute address.
func (m *Map) RegisterAt(addr uint32) (*Register, bool) {
	r, ok := m.byAddr[addr]
	return r, ok
}

// Block looks up a block by name.
func (m *Map) Block(name string) (*Block, bool) {
	for _, b := range m.Blocks {
		if strings.EqualFold(b.Name, name) {
			return b, true
		}
	}
	return nil, false
}

// Fields returns every field sorted by address, then bit offset.
func (m *Map) Fields() []*Field {
	out := make([]*Field, 0, len(m.fields))
	for _, f := range m.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].Register.Address(), out[j].Register.Address()
		if ai != aj {
			return ai < aj
		}
		return out[i].Offset < out[j].Offset
	})
	return out
}

// Registers returns every register sorted by address.
func (m *Map) Registers() []*Register {
	out := make([]*Register, 0, len(m.registers))
	for _, r := range m.registers {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address() < out[j].Address() })
	return out
}
