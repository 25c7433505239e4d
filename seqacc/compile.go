package seqacc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/linht/radioconf/regmap"
	"gopkg.in/yaml.v3"
)

var (
	ErrSyntax       = errors.New("malformed item")
	ErrOperand      = errors.New("bad operands")
	ErrDefine       = errors.New("bad DEFINE")
	ErrDuplicate    = errors.New("duplicate name")
	ErrUnknownLabel = errors.New("unknown label")
	ErrUndefined    = errors.New("undefined name")
)

// operand sets per mnemonic. A scalar item value is shorthand for the sole
// required operand.
var syntax = map[string]struct{ required, optional []string }{
	"NOP":        {},
	"END":        {},
	"DEFINE":     {required: []string{"NAME", "VALUE"}},
	"LABEL":      {required: []string{"NAME"}},
	"REGALL":     {required: []string{"REG", "VALUES"}},
	"SET":        {required: []string{"REG", "MASK"}},
	"CLEAR":      {required: []string{"REG", "MASK"}},
	"WAITFORREG": {required: []string{"REG", "MASK", "VALUE"}},
	"SKIPCOND":   {required: []string{"REG", "MASK", "VALUE"}, optional: []string{"COND"}},
	"JUMP":       {required: []string{"LABEL"}},
	"MOVBLOCK":   {required: []string{"SRC", "DST", "COUNT"}},
	"DELAY":      {required: []string{"US"}},
}

// Compiler translates the YAML sequencer language into a Program.
//
// A source is either a list of items or a mapping with an optional
// "bases" list and a "program" list. Each item is a single-key mapping
// from mnemonic to operands, or a bare mnemonic for NOP and END:
//
//	- DEFINE: {NAME: RXEN, VALUE: 0x2}
//	- LABEL: wait
//	- WAITFORREG: {REG: RAC_STATUS, MASK: RXEN, VALUE: 0}
//	- SKIPCOND: {REG: 0x40084000, MASK: 1, VALUE: 1, COND: NE}
//	- JUMP: wait
//	- END
//
// Registers are named through Map, or given as absolute addresses.
type Compiler struct {
	Map   *regmap.Map
	Bases []uint32
}

// Compile is a shorthand for a Compiler using rm.
func Compile(src []byte, rm *regmap.Map) (*Program, error) {
	c := &Compiler{Map: rm}
	return c.Compile(src)
}

type fixup struct {
	instr int
	line  int
	label string
}

type compileState struct {
	c       *Compiler
	prog    *Program
	defines map[string]int64
	pc      int
	fixups  []fixup
}

type item struct {
	line int
	op   string
	args map[string]*yaml.Node
}

// Compile assembles src in two passes: the first lays out instructions and
// records label positions, the second resolves jump targets.
func (c *Compiler) Compile(src []byte) (*Program, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty program", ErrSyntax)
	}
	s := &compileState{
		c:       c,
		prog:    &Program{Bases: append([]uint32(nil), c.Bases...), Labels: make(map[string]int)},
		defines: make(map[string]int64),
	}

	list := doc.Content[0]
	if list.Kind == yaml.MappingNode {
		var err error
		if list, err = s.header(list); err != nil {
			return nil, err
		}
	}
	if list.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: %w: program must be a list", list.Line, ErrSyntax)
	}

	for _, n := range list.Content {
		it, err := parseItem(n)
		if err != nil {
			return nil, err
		}
		if err := s.add(it); err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", it.line, it.op, err)
		}
	}

	for _, f := range s.fixups {
		target, ok := s.prog.Labels[f.label]
		if !ok {
			return nil, fmt.Errorf("line %d: JUMP: %w: %s", f.line, ErrUnknownLabel, f.label)
		}
		if target > MaxOffset {
			return nil, fmt.Errorf("line %d: JUMP: %w: target %d", f.line, ErrRange, target)
		}
		s.prog.Instrs[f.instr].Offset = uint16(target)
	}
	if err := s.prog.assemble(); err != nil {
		return nil, err
	}
	return s.prog, nil
}

// header reads the optional base table and returns the program list.
func (s *compileState) header(m *yaml.Node) (*yaml.Node, error) {
	var program *yaml.Node
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i], m.Content[i+1]
		switch key.Value {
		case "bases":
			var bases []uint32
			if err := val.Decode(&bases); err != nil {
				return nil, fmt.Errorf("line %d: bases: %w: %v", val.Line, ErrSyntax, err)
			}
			if len(bases) > MaxBases {
				return nil, fmt.Errorf("line %d: %w: %d bases", val.Line, ErrTooManyBases, len(bases))
			}
			s.prog.Bases = bases
		case "program":
			program = val
		default:
			return nil, fmt.Errorf("line %d: %w: unexpected key %q", key.Line, ErrSyntax, key.Value)
		}
	}
	if program == nil {
		return nil, fmt.Errorf("%w: no program", ErrSyntax)
	}
	return program, nil
}

func parseItem(n *yaml.Node) (item, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		op := strings.ToUpper(n.Value)
		if _, ok := syntax[op]; !ok {
			return item{}, fmt.Errorf("line %d: %w: %s", n.Line, ErrBadOpcode, n.Value)
		}
		return item{line: n.Line, op: op, args: map[string]*yaml.Node{}}, nil
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return item{}, fmt.Errorf("line %d: %w: want exactly one mnemonic per item", n.Line, ErrSyntax)
		}
	default:
		return item{}, fmt.Errorf("line %d: %w", n.Line, ErrSyntax)
	}

	key, val := n.Content[0], n.Content[1]
	it := item{line: key.Line, op: strings.ToUpper(key.Value), args: make(map[string]*yaml.Node)}
	spec, ok := syntax[it.op]
	if !ok {
		return it, fmt.Errorf("line %d: %w: %s", key.Line, ErrBadOpcode, key.Value)
	}

	switch val.Kind {
	case yaml.ScalarNode:
		if val.ShortTag() == "!!null" {
			break
		}
		if len(spec.required) != 1 {
			return it, fmt.Errorf("line %d: %s: %w: operands must be a mapping", val.Line, it.op, ErrOperand)
		}
		it.args[spec.required[0]] = val
	case yaml.MappingNode:
		for i := 0; i+1 < len(val.Content); i += 2 {
			name := strings.ToUpper(val.Content[i].Value)
			if !contains(spec.required, name) && !contains(spec.optional, name) {
				return it, fmt.Errorf("line %d: %s: %w: unknown operand %s", val.Content[i].Line, it.op, ErrOperand, name)
			}
			if _, dup := it.args[name]; dup {
				return it, fmt.Errorf("line %d: %s: %w: %s given twice", val.Content[i].Line, it.op, ErrOperand, name)
			}
			it.args[name] = val.Content[i+1]
		}
	default:
		return it, fmt.Errorf("line %d: %s: %w", val.Line, it.op, ErrOperand)
	}

	for _, name := range spec.required {
		if _, ok := it.args[name]; !ok {
			return it, fmt.Errorf("line %d: %s: %w: missing %s", it.line, it.op, ErrOperand, name)
		}
	}
	return it, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func (s *compileState) add(it item) error {
	switch it.op {
	case "DEFINE":
		return s.define(it)
	case "LABEL":
		name, err := s.name(it.args["NAME"])
		if err != nil {
			return err
		}
		if _, dup := s.prog.Labels[name]; dup {
			return fmt.Errorf("%w: label %s", ErrDuplicate, name)
		}
		if _, dup := s.defines[name]; dup {
			return fmt.Errorf("%w: label %s is already a DEFINE", ErrDuplicate, name)
		}
		s.prog.Labels[name] = s.pc
		return nil
	}

	op, _ := ParseOpcode(it.op)
	in := Instr{Op: op}
	var err error
	switch op {
	case OpREGALL:
		vals := it.args["VALUES"]
		if vals.Kind != yaml.SequenceNode {
			return fmt.Errorf("%w: VALUES must be a list", ErrOperand)
		}
		for _, v := range vals.Content {
			w, err := s.word(v)
			if err != nil {
				return err
			}
			in.Args = append(in.Args, w)
		}
		in.Count = len(in.Args)
		if in.Count == 0 || in.Count > MaxCount {
			return fmt.Errorf("%w: %d values, want 1..%d", ErrRange, in.Count, MaxCount)
		}
		err = s.reg(&in, it.args["REG"])
	case OpSET, OpCLEAR:
		err = s.operands(&in, it, "MASK")
	case OpWAITFORREG:
		err = s.operands(&in, it, "MASK", "VALUE")
	case OpSKIPCOND:
		if err = s.operands(&in, it, "MASK", "VALUE"); err != nil {
			return err
		}
		if n, ok := it.args["COND"]; ok {
			switch strings.ToUpper(n.Value) {
			case "EQ":
				in.Cond = CondEQ
			case "NE":
				in.Cond = CondNE
			default:
				return fmt.Errorf("%w: COND %q, want EQ or NE", ErrOperand, n.Value)
			}
		}
	case OpJUMP:
		label, err := s.name(it.args["LABEL"])
		if err != nil {
			return err
		}
		s.fixups = append(s.fixups, fixup{instr: len(s.prog.Instrs), line: it.line, label: label})
	case OpMOVBLOCK:
		if err = s.reg(&in, it.args["SRC"]); err != nil {
			return err
		}
		dst, err := s.address(it.args["DST"])
		if err != nil {
			return err
		}
		n, err := s.value(it.args["COUNT"])
		if err != nil {
			return err
		}
		if n < 1 || n > MaxCount {
			return fmt.Errorf("%w: COUNT %d, want 1..%d", ErrRange, n, MaxCount)
		}
		in.Count = int(n)
		in.Args = []uint32{dst}
	case OpDELAY:
		us, err := s.value(it.args["US"])
		if err != nil {
			return err
		}
		if us < 0 || us > MaxOffset {
			return fmt.Errorf("%w: DELAY %dus, want 0..%d", ErrRange, us, MaxOffset)
		}
		in.Offset = uint16(us)
	}
	if err != nil {
		return err
	}
	s.prog.Instrs = append(s.prog.Instrs, in)
	s.pc += in.Len()
	return nil
}

func (s *compileState) define(it item) error {
	n := it.args["NAME"]
	if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!str" || n.Value == "" {
		return fmt.Errorf("%w: NAME must be a plain name", ErrDefine)
	}
	name := n.Value
	if _, ok := syntax[strings.ToUpper(name)]; ok {
		return fmt.Errorf("%w: %s is a mnemonic", ErrDefine, name)
	}
	if s.c.Map != nil {
		if _, ok := s.c.Map.Register(name); ok {
			return fmt.Errorf("%w: %s is a register", ErrDefine, name)
		}
	}
	if _, dup := s.defines[name]; dup {
		return fmt.Errorf("%w: DEFINE %s", ErrDuplicate, name)
	}
	if _, dup := s.prog.Labels[name]; dup {
		return fmt.Errorf("%w: DEFINE %s is already a label", ErrDuplicate, name)
	}
	v, err := s.value(it.args["VALUE"])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDefine, err)
	}
	s.defines[name] = v
	return nil
}

func (s *compileState) name(n *yaml.Node) (string, error) {
	if n.Kind != yaml.ScalarNode || n.Value == "" {
		return "", fmt.Errorf("%w: want a name", ErrOperand)
	}
	return n.Value, nil
}

// value resolves an integer literal or DEFINE name.
func (s *compileState) value(n *yaml.Node) (int64, error) {
	if n.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("%w: want a number", ErrOperand)
	}
	switch n.ShortTag() {
	case "!!int":
		var v int64
		if err := n.Decode(&v); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRange, err)
		}
		return v, nil
	case "!!str":
		if v, ok := s.defines[n.Value]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("%w: %s", ErrUndefined, n.Value)
	}
	return 0, fmt.Errorf("%w: %q is not an integer", ErrOperand, n.Value)
}

// word resolves a 32-bit operand; negative values wrap to two's complement.
func (s *compileState) word(n *yaml.Node) (uint32, error) {
	v, err := s.value(n)
	if err != nil {
		return 0, err
	}
	if v < -(1<<31) || v > 1<<32-1 {
		return 0, fmt.Errorf("%w: %d does not fit 32 bits", ErrRange, v)
	}
	return uint32(v), nil
}

// address resolves a register name, DEFINE or literal address.
func (s *compileState) address(n *yaml.Node) (uint32, error) {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!str" && s.c.Map != nil {
		if r, ok := s.c.Map.Register(n.Value); ok {
			return r.Address(), nil
		}
	}
	v, err := s.value(n)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 1<<32-1 || v%4 != 0 {
		return 0, fmt.Errorf("%w: address %#x", ErrRange, v)
	}
	return uint32(v), nil
}

func (s *compileState) reg(in *Instr, n *yaml.Node) error {
	addr, err := s.address(n)
	if err != nil {
		return err
	}
	in.Base, in.Offset, err = s.prog.locate(addr)
	return err
}

func (s *compileState) operands(in *Instr, it item, names ...string) error {
	if err := s.reg(in, it.args["REG"]); err != nil {
		return err
	}
	for _, name := range names {
		w, err := s.word(it.args[name])
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		in.Args = append(in.Args, w)
	}
	return nil
}
