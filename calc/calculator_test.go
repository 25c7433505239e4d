package calc

import (
	"context"
	"errors"
	"testing"

	"github.com/linht/radioconf/regmap"
	"gotest.tools/v3/assert"
)

func newTestModel(t *testing.T, names ...string) *Model {
	t.Helper()
	m := NewModel("test", "base", nil)
	for _, n := range names {
		assert.NilError(t, m.Declare(&Variable{Name: n, Type: Float}))
	}
	return m
}

func setter(name string, f func(c *Context) any) func(c *Context) {
	return func(c *Context) { c.Set(name, f(c)) }
}

func TestPlanOrdersByDependency(t *testing.T) {
	m := newTestModel(t, "a", "b", "c", "d")
	calc := NewCalculator(
		Calculation{Name: "d", Reads: []string{"b", "c"}, Writes: []string{"d"},
			Run: setter("d", func(c *Context) any { return c.Float("b") + c.Float("c") })},
		Calculation{Name: "c", Reads: []string{"a"}, Writes: []string{"c"},
			Run: setter("c", func(c *Context) any { return c.Float("a") * 3 })},
		Calculation{Name: "b", Reads: []string{"a"}, Writes: []string{"b"},
			Run: setter("b", func(c *Context) any { return c.Float("a") * 2 })},
	)

	plan, err := calc.Plan(m)
	assert.NilError(t, err)
	var names []string
	for _, p := range plan {
		names = append(names, p.Name)
	}
	// c and b are both ready once a is known; registration order breaks the tie.
	assert.DeepEqual(t, names, []string{"c", "b", "d"})

	a, _ := m.Var("a")
	assert.NilError(t, a.SetDefault(1.5))

	var steps []Step
	assert.NilError(t, calc.Run(context.Background(), m, func(s Step) { steps = append(steps, s) }))
	d, _ := m.Var("d")
	assert.Equal(t, d.Value(), 7.5)
	assert.Equal(t, len(steps), 3)
	assert.Equal(t, steps[2].Name, "d")
	assert.Equal(t, steps[2].Writes[0].Value, 7.5)
}

func TestPlanErrors(t *testing.T) {
	tests := []struct {
		name  string
		calcs []Calculation
		want  error
	}{
		{
			name: "cycle",
			calcs: []Calculation{
				{Name: "x", Reads: []string{"b"}, Writes: []string{"a"}},
				{Name: "y", Reads: []string{"a"}, Writes: []string{"b"}},
			},
			want: ErrCycle,
		},
		{
			name:  "self",
			calcs: []Calculation{{Name: "x", Reads: []string{"a"}, Writes: []string{"a"}}},
			want:  ErrCycle,
		},
		{
			name: "two producers",
			calcs: []Calculation{
				{Name: "x", Writes: []string{"a"}},
				{Name: "y", Writes: []string{"a"}},
			},
			want: ErrDuplicateProducer,
		},
		{
			name:  "unknown read",
			calcs: []Calculation{{Name: "x", Reads: []string{"nope"}, Writes: []string{"a"}}},
			want:  ErrUnknownVariable,
		},
		{
			name:  "unknown write",
			calcs: []Calculation{{Name: "x", Writes: []string{"nope"}}},
			want:  ErrUnknownVariable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(t, "a", "b")
			_, err := NewCalculator(tt.calcs...).Plan(m)
			var ce *CalculationError
			if !errors.As(err, &ce) {
				t.Fatalf("got %v, want a CalculationError", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRunErrors(t *testing.T) {
	t.Run("undefined", func(t *testing.T) {
		m := newTestModel(t, "a", "b")
		c := NewCalculator(Calculation{Name: "b", Reads: []string{"a"}, Writes: []string{"b"},
			Run: setter("b", func(c *Context) any { return c.Float("a") })})
		err := c.Run(context.Background(), m, nil)
		assert.ErrorIs(t, err, ErrUndefinedValue)
		assert.ErrorContains(t, err, "calculation b")
		assert.ErrorContains(t, err, ": a")
	})
	t.Run("undeclared", func(t *testing.T) {
		m := newTestModel(t, "a", "b")
		c := NewCalculator(Calculation{Name: "b", Writes: []string{"b"},
			Run: setter("b", func(c *Context) any { return c.Float("a") })})
		err := c.Run(context.Background(), m, nil)
		assert.ErrorIs(t, err, ErrUndeclaredAccess)
	})
	t.Run("cancelled", func(t *testing.T) {
		m := newTestModel(t, "a")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c := NewCalculator(Calculation{Name: "a", Writes: []string{"a"}, Run: setter("a", func(*Context) any { return 1.0 })})
		assert.ErrorIs(t, c.Run(ctx, m, nil), context.Canceled)
	})
}

func TestForcedWinsAndOverride(t *testing.T) {
	m := newTestModel(t, "a")
	a, _ := m.Var("a")
	assert.NilError(t, a.Force(9))

	ran := false
	base := NewCalculator(Calculation{Name: "a", Writes: []string{"a"}, Run: setter("a", func(*Context) any { return 1.0 })})
	over := base.Override(Calculation{Name: "a", Writes: []string{"a"}, Run: func(c *Context) {
		ran = true
		c.Set("a", 2.0)
	}})
	assert.Equal(t, len(base.Calculations()), 1)
	assert.NilError(t, over.Run(context.Background(), m, nil))
	assert.Assert(t, ran)
	assert.Equal(t, a.Value(), 9.0)
	assert.Equal(t, a.Calculated(), 2.0)
}

func TestWriteFieldSaturates(t *testing.T) {
	rm, err := regmap.Parse([]byte(`
blocks:
  - name: MODEM
    base: 0x1000
    registers:
      - name: VITERBI
        offset: 0
        fields:
          - {name: KSI1, offset: 0, width: 7}
          - {name: OFFS, offset: 8, width: 4, signed: true}
`))
	assert.NilError(t, err)
	m := NewModel("test", "base", nil)
	assert.NilError(t, m.BindFields(rm))

	c := NewCalculator(Calculation{Name: "w", Writes: []string{"MODEM_VITERBI_KSI1", "MODEM_VITERBI_OFFS"}, Run: func(c *Context) {
		c.WriteField("MODEM_VITERBI_KSI1", 300)
		c.WriteField("MODEM_VITERBI_OFFS", -3)
	}})
	assert.NilError(t, c.Run(context.Background(), m, nil))

	ksi, _ := m.Var("MODEM_VITERBI_KSI1")
	assert.Equal(t, ksi.Value(), int64(127))
	assert.Equal(t, len(m.Warnings()), 1)

	words := regmap.Compose(m.FieldValues())
	assert.Equal(t, len(words), 1)
	assert.Equal(t, words[0].Value, uint32(0xd7f))
}

func TestCoerce(t *testing.T) {
	mod := NewEnum("modulation", EnumMember{Name: "FSK2", Value: 0}, EnumMember{Name: "OOK", Value: 4})
	tests := []struct {
		v    *Variable
		in   any
		want any
		err  bool
	}{
		{&Variable{Name: "i", Type: Int}, 3.0, int64(3), false},
		{&Variable{Name: "i", Type: Int}, 3.5, nil, true},
		{&Variable{Name: "i", Type: Int}, "0x10", int64(16), false},
		{&Variable{Name: "f", Type: Float}, 7, 7.0, false},
		{&Variable{Name: "f", Type: Float, Units: "Hz"}, "868MHz", 868e6, false},
		{&Variable{Name: "e", Type: Enum, Enum: mod}, "ook", "OOK", false},
		{&Variable{Name: "e", Type: Enum, Enum: mod}, 0, "FSK2", false},
		{&Variable{Name: "e", Type: Enum, Enum: mod}, "BPSK", nil, true},
		{&Variable{Name: "b", Type: Bool}, "true", true, false},
		{&Variable{Name: "l", Type: FloatList}, []any{1, 2.5}, []float64{1, 2.5}, false},
	}
	for i, tt := range tests {
		err := tt.v.Set(tt.in)
		if tt.err {
			if !errors.Is(err, ErrType) {
				t.Errorf("%d: got %v, want ErrType", i, err)
			}
			continue
		}
		assert.NilError(t, err)
		assert.DeepEqual(t, tt.v.Value(), tt.want)
	}
}
