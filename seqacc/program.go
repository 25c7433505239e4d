package seqacc

import (
	"errors"
	"fmt"
)

// ErrTooManyBases is returned when a program touches more address windows
// than the base table can hold.
var ErrTooManyBases = errors.New("base address table full")

// Program is an assembled sequencer program.
type Program struct {
	Bases  []uint32       `json:"bases" yaml:"bases"`
	Words  []uint32       `json:"words" yaml:"words"`
	Labels map[string]int `json:"labels,omitempty" yaml:"labels,omitempty"`

	Instrs []Instr `json:"-" yaml:"-"`
}

// locate maps an absolute address to a base index and offset, adding a
// 64 KiB aligned base when no existing one reaches the address.
func (p *Program) locate(addr uint32) (uint8, uint16, error) {
	best := -1
	for i, b := range p.Bases {
		if addr < b || addr-b > MaxOffset {
			continue
		}
		if best < 0 || b > p.Bases[best] {
			best = i
		}
	}
	if best < 0 {
		if len(p.Bases) == MaxBases {
			return 0, 0, fmt.Errorf("%w: no room for %#08x", ErrTooManyBases, addr)
		}
		p.Bases = append(p.Bases, addr&^MaxOffset)
		best = len(p.Bases) - 1
	}
	return uint8(best), uint16(addr - p.Bases[best]), nil
}

// assemble encodes Instrs into Words.
func (p *Program) assemble() error {
	p.Words = p.Words[:0]
	for i, in := range p.Instrs {
		w, err := in.Encode()
		if err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
		p.Words = append(p.Words, w...)
	}
	return nil
}

// Listing disassembles the program against its own base table.
func (p *Program) Listing() string {
	s, err := Disassemble(p.Words, p.Bases)
	if err != nil {
		return err.Error()
	}
	return s
}
