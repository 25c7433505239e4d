package seqacc

import (
	"sort"

	"github.com/linht/radioconf/regmap"
)

// FromWrites turns composed register words into a program of REGALL runs.
// Writes to consecutive addresses within one base window share a run; the
// program ends with END. bases preloads the base table and may be nil.
func FromWrites(writes []regmap.RegisterWord, bases []uint32) (*Program, error) {
	sorted := append([]regmap.RegisterWord(nil), writes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	p := &Program{Bases: append([]uint32(nil), bases...)}
	var run *Instr
	var next uint32
	for _, w := range sorted {
		base, off, err := p.locate(w.Address)
		if err != nil {
			return nil, err
		}
		if run != nil && w.Address == next && base == run.Base && run.Count < MaxCount {
			run.Args = append(run.Args, w.Value)
			run.Count++
		} else {
			p.Instrs = append(p.Instrs, Instr{Op: OpREGALL, Base: base, Offset: off, Count: 1, Args: []uint32{w.Value}})
			run = &p.Instrs[len(p.Instrs)-1]
		}
		next = w.Address + 4
	}
	p.Instrs = append(p.Instrs, Instr{Op: OpEND})
	if err := p.assemble(); err != nil {
		return nil, err
	}
	return p, nil
}
