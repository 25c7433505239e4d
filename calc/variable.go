package calc

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/linht/radioconf/regmap"
	"periph.io/x/conn/v3/physic"
)

// Type is the value type of a model variable.
type Type int

const (
	Int Type = iota
	Float
	Bool
	Enum
	String
	FloatList
	IntList
)

var typeNames = [...]string{"int", "float", "bool", "enum", "string", "float_list", "int_list"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// MarshalText lets types appear by name in YAML and JSON output.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// EnumMember is one named value of an enumeration.
type EnumMember struct {
	Name  string `json:"name" yaml:"name"`
	Value int64  `json:"value" yaml:"value"`
	Desc  string `json:"desc,omitempty" yaml:"desc,omitempty"`
}

// EnumType is an ordered set of members.
type EnumType struct {
	Name    string       `json:"name" yaml:"name"`
	Members []EnumMember `json:"members" yaml:"members"`
}

// NewEnum builds an enumeration.
func NewEnum(name string, members ...EnumMember) *EnumType {
	return &EnumType{Name: name, Members: members}
}

// ByName finds a member, ignoring case.
func (e *EnumType) ByName(s string) (EnumMember, bool) {
	for _, m := range e.Members {
		if strings.EqualFold(m.Name, s) {
			return m, true
		}
	}
	return EnumMember{}, false
}

// ByValue finds a member by its numeric value.
func (e *EnumType) ByValue(v int64) (EnumMember, bool) {
	for _, m := range e.Members {
		if m.Value == v {
			return m, true
		}
	}
	return EnumMember{}, false
}

// Variable is a named, typed value in the model.
//
// A variable has three value slots. The forced slot holds values pinned by
// a profile or by the user, the calculated slot holds what a calculation
// wrote, and the default slot holds the profile default for inputs.
// Value returns the first one that is set, in that order.
type Variable struct {
	Name  string
	Type  Type
	Units string
	Desc  string
	Enum  *EnumType
	Field *regmap.Field

	def, calc, forced any
}

// Value returns the effective value, or nil.
func (v *Variable) Value() any {
	switch {
	case v.forced != nil:
		return v.forced
	case v.calc != nil:
		return v.calc
	}
	return v.def
}

// HasValue reports whether any slot is set.
func (v *Variable) HasValue() bool {
	return v.Value() != nil
}

// IsForced reports whether the forced slot is set.
func (v *Variable) IsForced() bool {
	return v.forced != nil
}

// Calculated returns the calculated slot, ignoring forced values.
func (v *Variable) Calculated() any {
	return v.calc
}

// Set stores a calculated value.
func (v *Variable) Set(x any) error {
	c, err := v.coerce(x)
	if err != nil {
		return err
	}
	v.calc = c
	return nil
}

// Force pins a value that wins over anything calculated.
func (v *Variable) Force(x any) error {
	c, err := v.coerce(x)
	if err != nil {
		return err
	}
	v.forced = c
	return nil
}

// SetDefault stores the fallback value.
func (v *Variable) SetDefault(x any) error {
	c, err := v.coerce(x)
	if err != nil {
		return err
	}
	v.def = c
	return nil
}

func (v *Variable) coerce(x any) (any, error) {
	if x == nil {
		return nil, fmt.Errorf("%s: %w: nil value", v.Name, ErrType)
	}
	var (
		out any
		err error
	)
	switch v.Type {
	case Int:
		out, err = toInt(x)
	case Float:
		out, err = toFloat(x, v.Units)
	case Bool:
		out, err = toBool(x)
	case Enum:
		out, err = v.toEnum(x)
	case String:
		s, ok := x.(string)
		if !ok {
			err = fmt.Errorf("want string, got %T", x)
		}
		out = s
	case FloatList:
		out, err = toFloatList(x)
	case IntList:
		out, err = toIntList(x)
	default:
		err = fmt.Errorf("unsupported type %v", v.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%s (%v): %w: %v", v.Name, v.Type, ErrType, err)
	}
	return out, nil
}

func (v *Variable) toEnum(x any) (string, error) {
	if v.Enum == nil {
		return "", fmt.Errorf("no enumeration attached")
	}
	if s, ok := x.(string); ok {
		if m, ok := v.Enum.ByName(s); ok {
			return m.Name, nil
		}
		return "", fmt.Errorf("%q is not a member of %s", s, v.Enum.Name)
	}
	n, err := toInt(x)
	if err != nil {
		return "", err
	}
	m, ok := v.Enum.ByValue(n)
	if !ok {
		return "", fmt.Errorf("%d is not a member of %s", n, v.Enum.Name)
	}
	return m.Name, nil
}

func toInt(x any) (int64, error) {
	switch n := x.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", n)
		}
		return int64(n), nil
	case float32:
		return toInt(float64(n))
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not integral", n)
		}
		return int64(n), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 0, 64)
	}
	return 0, fmt.Errorf("want integer, got %T", x)
}

func toFloat(x any, units string) (float64, error) {
	switch n := x.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case string:
		s := strings.TrimSpace(n)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
		if units == "Hz" {
			return ParseHz(s)
		}
		return 0, fmt.Errorf("cannot parse %q", s)
	}
	i, err := toInt(x)
	if err != nil {
		return 0, fmt.Errorf("want number, got %T", x)
	}
	return float64(i), nil
}

func toBool(x any) (bool, error) {
	switch b := x.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(b)
	}
	i, err := toInt(x)
	if err != nil {
		return false, fmt.Errorf("want bool, got %T", x)
	}
	return i != 0, nil
}

func toFloatList(x any) ([]float64, error) {
	switch l := x.(type) {
	case []float64:
		return append([]float64(nil), l...), nil
	case []int:
		out := make([]float64, len(l))
		for i, n := range l {
			out[i] = float64(n)
		}
		return out, nil
	case []any:
		out := make([]float64, len(l))
		for i, e := range l {
			f, err := toFloat(e, "")
			if err != nil {
				return nil, fmt.Errorf("element %d: %v", i, err)
			}
			out[i] = f
		}
		return out, nil
	}
	return nil, fmt.Errorf("want list of numbers, got %T", x)
}

func toIntList(x any) ([]int64, error) {
	switch l := x.(type) {
	case []int64:
		return append([]int64(nil), l...), nil
	case []int:
		out := make([]int64, len(l))
		for i, n := range l {
			out[i] = int64(n)
		}
		return out, nil
	case []any:
		out := make([]int64, len(l))
		for i, e := range l {
			n, err := toInt(e)
			if err != nil {
				return nil, fmt.Errorf("element %d: %v", i, err)
			}
			out[i] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("want list of integers, got %T", x)
}

// ParseHz parses a frequency such as "868MHz" or "2.45GHz" into Hz.
func ParseHz(s string) (float64, error) {
	var f physic.Frequency
	if err := f.Set(s); err != nil {
		return 0, err
	}
	return float64(f) / float64(physic.Hertz), nil
}

// FormatHz renders a frequency in Hz with an SI prefix.
func FormatHz(hz float64) string {
	return physic.Frequency(math.Round(hz * float64(physic.Hertz))).String()
}
