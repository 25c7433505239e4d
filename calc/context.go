package calc

import (
	"errors"
	"fmt"

	"github.com/linht/radioconf/regmap"
)

// Context is what a calculation sees of the model. It only allows the
// reads and writes the calculation declared, and it keeps the first error
// so that calculation bodies can read several values before checking Err.
type Context struct {
	m       *Model
	calc    *Calculation
	reads   map[string]bool
	writes  map[string]bool
	written []NamedValue
	err     error
}

func newContext(m *Model, c *Calculation) *Context {
	cx := &Context{
		m:      m,
		calc:   c,
		reads:  make(map[string]bool, len(c.Reads)),
		writes: make(map[string]bool, len(c.Writes)),
	}
	for _, r := range c.Reads {
		cx.reads[r] = true
	}
	for _, w := range c.Writes {
		cx.writes[w] = true
	}
	return cx
}

// Err returns the first error recorded.
func (c *Context) Err() error {
	return c.err
}

// Fail records err unless an earlier error is already recorded.
func (c *Context) Fail(err error) {
	if c.err == nil && err != nil {
		c.err = err
	}
}

// Failf records a formatted error.
func (c *Context) Failf(format string, args ...any) {
	c.Fail(fmt.Errorf(format, args...))
}

// Warn records a warning on the model, prefixed with the calculation name.
func (c *Context) Warn(format string, args ...any) {
	c.m.Warn(c.calc.Name+": "+format, args...)
}

func (c *Context) lookup(name string, write bool) *Variable {
	if c.err != nil {
		return nil
	}
	declared := c.reads[name]
	if write {
		declared = c.writes[name]
	}
	if !declared {
		c.Fail(fmt.Errorf("%w: %s", ErrUndeclaredAccess, name))
		return nil
	}
	v, ok := c.m.Var(name)
	if !ok {
		c.Fail(fmt.Errorf("%w: %s", ErrUnknownVariable, name))
		return nil
	}
	return v
}

func (c *Context) value(name string) any {
	v := c.lookup(name, false)
	if v == nil {
		return nil
	}
	x := v.Value()
	if x == nil {
		c.Fail(fmt.Errorf("%w: %s", ErrUndefinedValue, name))
	}
	return x
}

// Has reports whether a declared read has a value.
func (c *Context) Has(name string) bool {
	v := c.lookup(name, false)
	return v != nil && v.HasValue()
}

// Int returns an Int variable.
func (c *Context) Int(name string) int64 {
	switch x := c.value(name).(type) {
	case int64:
		return x
	case nil:
		return 0
	default:
		c.typeErr(name, x)
		return 0
	}
}

// Float returns a Float variable; Int variables are widened.
func (c *Context) Float(name string) float64 {
	switch x := c.value(name).(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case nil:
		return 0
	default:
		c.typeErr(name, x)
		return 0
	}
}

// Bool returns a Bool variable.
func (c *Context) Bool(name string) bool {
	switch x := c.value(name).(type) {
	case bool:
		return x
	case nil:
		return false
	default:
		c.typeErr(name, x)
		return false
	}
}

// Enum returns the member name of an Enum variable.
func (c *Context) Enum(name string) string {
	v := c.lookup(name, false)
	if v != nil && v.Type != Enum {
		c.Fail(fmt.Errorf("%w: %s is %v, not enum", ErrType, name, v.Type))
		return ""
	}
	s, _ := c.value(name).(string)
	return s
}

// Text returns a String variable.
func (c *Context) Text(name string) string {
	switch x := c.value(name).(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		c.typeErr(name, x)
		return ""
	}
}

// Floats returns a FloatList variable.
func (c *Context) Floats(name string) []float64 {
	switch x := c.value(name).(type) {
	case []float64:
		return x
	case nil:
		return nil
	default:
		c.typeErr(name, x)
		return nil
	}
}

// Ints returns an IntList variable.
func (c *Context) Ints(name string) []int64 {
	switch x := c.value(name).(type) {
	case []int64:
		return x
	case nil:
		return nil
	default:
		c.typeErr(name, x)
		return nil
	}
}

func (c *Context) typeErr(name string, x any) {
	c.Fail(fmt.Errorf("%w: %s holds %T", ErrType, name, x))
}

// Set writes the calculated slot of a declared output.
func (c *Context) Set(name string, x any) {
	v := c.lookup(name, true)
	if v == nil {
		return
	}
	if err := v.Set(x); err != nil {
		c.Fail(err)
		return
	}
	c.written = append(c.written, NamedValue{Name: name, Value: v.Value()})
}

// WriteField writes a register field variable, saturating the value to
// the field range. A clamped write is recorded as a warning, not an error.
func (c *Context) WriteField(name string, x int64) {
	v := c.lookup(name, true)
	if v == nil {
		return
	}
	if v.Field == nil {
		c.Fail(fmt.Errorf("%w: %s is not bound to a register field", ErrType, name))
		return
	}
	_, clamped, err := v.Field.Encode(x)
	if err != nil {
		c.Fail(err)
		return
	}
	if clamped {
		lo, hi := v.Field.Range()
		sat := regmap.Saturate(x, lo, hi)
		c.Warn("%s: %d saturated to %d", name, x, sat)
		x = sat
	}
	c.Set(name, x)
}

// IsUndefined reports whether err is a read of a variable without a value.
func IsUndefined(err error) bool {
	return errors.Is(err, ErrUndefinedValue)
}
