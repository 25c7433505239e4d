// Package seqacc encodes programs for the radio sequencer accelerator.
//
// Every instruction starts with a header word
//
//	[31:28] opcode  [27:24] base index  [23:16] count-1  [15:0] byte offset
//
// optionally followed by operand words. Register addresses are written as
// an index into a table of up to 16 base addresses plus a 16-bit offset.
package seqacc

import (
	"errors"
	"fmt"
	"strings"
)

// Opcode is the instruction kind held in the top four bits of a header.
type Opcode uint8

const (
	OpNOP        Opcode = 0
	OpREGALL     Opcode = 1
	OpSET        Opcode = 2
	OpCLEAR      Opcode = 3
	OpWAITFORREG Opcode = 4
	OpSKIPCOND   Opcode = 5
	OpJUMP       Opcode = 6
	OpMOVBLOCK   Opcode = 7
	OpDELAY      Opcode = 8
	OpEND        Opcode = 15
)

var opNames = map[Opcode]string{
	OpNOP:        "NOP",
	OpREGALL:     "REGALL",
	OpSET:        "SET",
	OpCLEAR:      "CLEAR",
	OpWAITFORREG: "WAITFORREG",
	OpSKIPCOND:   "SKIPCOND",
	OpJUMP:       "JUMP",
	OpMOVBLOCK:   "MOVBLOCK",
	OpDELAY:      "DELAY",
	OpEND:        "END",
}

func (o Opcode) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("OP%d", uint8(o))
}

// ParseOpcode looks an opcode up by mnemonic, case-insensitively.
func ParseOpcode(s string) (Opcode, bool) {
	s = strings.ToUpper(s)
	for op, name := range opNames {
		if name == s {
			return op, true
		}
	}
	return 0, false
}

// Cond selects the comparison of SKIPCOND. It travels in the count field.
type Cond uint8

const (
	CondEQ Cond = iota
	CondNE
)

func (c Cond) String() string {
	if c == CondNE {
		return "NE"
	}
	return "EQ"
}

const (
	// MaxBases is the size of the base address table.
	MaxBases = 16
	// MaxCount is the largest REGALL or MOVBLOCK word count.
	MaxCount = 256
	// MaxOffset is the largest byte offset from a base.
	MaxOffset = 0xffff
)

var (
	ErrBadOpcode = errors.New("unknown opcode")
	ErrTruncated = errors.New("program ends inside an instruction")
	ErrRange     = errors.New("value out of range")
)

// Instr is one decoded or to-be-encoded instruction.
//
// Args holds the operand words: the data words of REGALL, the mask of
// SET and CLEAR, mask and value of WAITFORREG and SKIPCOND, and the
// destination address of MOVBLOCK.
type Instr struct {
	Op     Opcode
	Base   uint8
	Count  int
	Offset uint16
	Cond   Cond
	Args   []uint32
}

// argWords is the number of operand words following the header.
func argWords(op Opcode, count int) int {
	switch op {
	case OpREGALL:
		return count
	case OpSET, OpCLEAR, OpMOVBLOCK:
		return 1
	case OpWAITFORREG, OpSKIPCOND:
		return 2
	}
	return 0
}

// Len is the size of the encoded instruction in words.
func (in Instr) Len() int {
	return 1 + argWords(in.Op, in.Count)
}

func (in Instr) countField() (uint32, error) {
	switch in.Op {
	case OpREGALL, OpMOVBLOCK:
		if in.Count < 1 || in.Count > MaxCount {
			return 0, fmt.Errorf("%w: %s count %d not in 1..%d", ErrRange, in.Op, in.Count, MaxCount)
		}
		return uint32(in.Count - 1), nil
	case OpSKIPCOND:
		if in.Cond > CondNE {
			return 0, fmt.Errorf("%w: condition %d", ErrRange, in.Cond)
		}
		return uint32(in.Cond), nil
	}
	return 0, nil
}

// Encode packs the instruction into its header and operand words.
func (in Instr) Encode() ([]uint32, error) {
	if _, ok := opNames[in.Op]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrBadOpcode, in.Op)
	}
	if in.Base >= MaxBases {
		return nil, fmt.Errorf("%w: base index %d", ErrRange, in.Base)
	}
	count, err := in.countField()
	if err != nil {
		return nil, err
	}
	if want := argWords(in.Op, in.Count); len(in.Args) != want {
		return nil, fmt.Errorf("%s takes %d operand words, have %d", in.Op, want, len(in.Args))
	}
	words := make([]uint32, 0, in.Len())
	words = append(words, uint32(in.Op)<<28|uint32(in.Base)<<24|count<<16|uint32(in.Offset))
	return append(words, in.Args...), nil
}

// Decode splits a word stream back into instructions.
func Decode(words []uint32) ([]Instr, error) {
	var out []Instr
	for pc := 0; pc < len(words); {
		h := words[pc]
		in := Instr{
			Op:     Opcode(h >> 28),
			Base:   uint8(h>>24) & 0xf,
			Offset: uint16(h),
		}
		if _, ok := opNames[in.Op]; !ok {
			return out, fmt.Errorf("word %d: %w: %d", pc, ErrBadOpcode, in.Op)
		}
		count := int(h>>16&0xff) + 1
		switch in.Op {
		case OpREGALL, OpMOVBLOCK:
			in.Count = count
		case OpSKIPCOND:
			in.Cond = Cond(count - 1)
		}
		n := argWords(in.Op, in.Count)
		if pc+1+n > len(words) {
			return out, fmt.Errorf("word %d: %s: %w", pc, in.Op, ErrTruncated)
		}
		in.Args = append([]uint32(nil), words[pc+1:pc+1+n]...)
		out = append(out, in)
		pc += 1 + n
	}
	return out, nil
}

func addrString(base uint8, offset uint16, bases []uint32) string {
	if int(base) < len(bases) {
		return fmt.Sprintf("%#08x", bases[base]+uint32(offset))
	}
	return fmt.Sprintf("b%d+%#04x", base, offset)
}

// String renders the instruction in assembler syntax. Addresses are shown
// relative to their base index.
func (in Instr) String() string {
	return in.format(nil)
}

func (in Instr) format(bases []uint32) string {
	addr := addrString(in.Base, in.Offset, bases)
	switch in.Op {
	case OpREGALL:
		return fmt.Sprintf("REGALL %s x%d", addr, in.Count)
	case OpSET, OpCLEAR:
		return fmt.Sprintf("%s %s mask=%#x", in.Op, addr, in.Args[0])
	case OpWAITFORREG:
		return fmt.Sprintf("WAITFORREG %s mask=%#x value=%#x", addr, in.Args[0], in.Args[1])
	case OpSKIPCOND:
		return fmt.Sprintf("SKIPCOND %s mask=%#x value=%#x %s", addr, in.Args[0], in.Args[1], in.Cond)
	case OpJUMP:
		return fmt.Sprintf("JUMP %d", in.Offset)
	case OpMOVBLOCK:
		return fmt.Sprintf("MOVBLOCK %s -> %#08x x%d", addr, in.Args[0], in.Count)
	case OpDELAY:
		return fmt.Sprintf("DELAY %dus", in.Offset)
	}
	return in.Op.String()
}

// Disassemble produces a listing with one line per word. When bases is
// given, addresses are resolved to absolute values.
func Disassemble(words []uint32, bases []uint32) (string, error) {
	instrs, err := Decode(words)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	pc := 0
	for _, in := range instrs {
		fmt.Fprintf(&b, "%04d  %08x  %s\n", pc, words[pc], in.format(bases))
		for i, a := range in.Args {
			fmt.Fprintf(&b, "%04d  %08x    .word %#x\n", pc+1+i, a, a)
		}
		pc += in.Len()
	}
	return b.String(), nil
}
