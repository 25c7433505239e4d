package calc

import (
	"fmt"
	"log/slog"

	"github.com/linht/radioconf/regmap"
)

// NamedValue pairs a variable name with a value, for ordered output.
type NamedValue struct {
	Name  string `json:"name" yaml:"name"`
	Value any    `json:"value" yaml:"value"`
}

// Model is the set of variables a single configuration run works on.
type Model struct {
	Family  string
	Profile string
	Log     *slog.Logger

	vars     map[string]*Variable
	order    []*Variable
	warnings []string
}

// NewModel returns an empty model. A nil logger means slog.Default().
func NewModel(family, profile string, log *slog.Logger) *Model {
	if log == nil {
		log = slog.Default()
	}
	return &Model{
		Family:  family,
		Profile: profile,
		Log:     log.With("family", family, "profile", profile),
		vars:    make(map[string]*Variable),
	}
}

// Declare adds a variable.
func (m *Model) Declare(v *Variable) error {
	if _, dup := m.vars[v.Name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateVariable, v.Name)
	}
	if v.Type == Enum && v.Enum == nil {
		return fmt.Errorf("%s: %w: enum variable without enumeration", v.Name, ErrType)
	}
	m.vars[v.Name] = v
	m.order = append(m.order, v)
	return nil
}

// BindFields declares one Int variable per writable field of the map,
// named after the field's full name.
func (m *Model) BindFields(rm *regmap.Map) error {
	for _, f := range rm.Fields() {
		if !f.Writable() {
			continue
		}
		v := &Variable{Name: f.FullName(), Type: Int, Desc: f.Desc, Field: f}
		if err := m.Declare(v); err != nil {
			return err
		}
	}
	return nil
}

// Var looks up a variable.
func (m *Model) Var(name string) (*Variable, bool) {
	v, ok := m.vars[name]
	return v, ok
}

// Variables returns every variable in declaration order.
func (m *Model) Variables() []*Variable {
	return append([]*Variable(nil), m.order...)
}

// Values returns the effective values of the named variables that have one.
func (m *Model) Values(names ...string) []NamedValue {
	out := make([]NamedValue, 0, len(names))
	for _, n := range names {
		if v, ok := m.vars[n]; ok && v.HasValue() {
			out = append(out, NamedValue{Name: n, Value: v.Value()})
		}
	}
	return out
}

// FieldValues returns the value of every field variable that has one,
// in declaration order.
func (m *Model) FieldValues() []regmap.FieldValue {
	var out []regmap.FieldValue
	for _, v := range m.order {
		if v.Field == nil || !v.HasValue() {
			continue
		}
		n, ok := v.Value().(int64)
		if !ok {
			continue
		}
		out = append(out, regmap.FieldValue{Field: v.Field, Value: n})
	}
	return out
}

// Warn records a warning and logs it.
func (m *Model) Warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	m.warnings = append(m.warnings, msg)
	m.Log.Warn(msg)
}

// Warnings returns the warnings recorded so far.
func (m *Model) Warnings() []string {
	return append([]string(nil), m.warnings...)
}
