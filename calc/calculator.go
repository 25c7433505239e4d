// Package calc walks a dependency graph of named model variables.
//
// Each Calculation declares the variables it reads and the variables it
// writes. Planning turns those declarations into a graph (an edge runs from
// the single producer of a variable to every reader), checks it, and orders
// it topologically. Running executes the plan once, in order, against a
// Model; there is no retry and no state kept across runs.
package calc

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Calculation derives some variables from others.
type Calculation struct {
	Name   string
	Reads  []string
	Writes []string
	Run    func(c *Context)
}

// Step describes one executed calculation.
type Step struct {
	Index    int           `json:"index" yaml:"index"`
	Name     string        `json:"name" yaml:"name"`
	Writes   []NamedValue  `json:"writes" yaml:"writes"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Calculator is an ordered set of calculations.
type Calculator struct {
	calcs []Calculation
}

// NewCalculator returns a calculator holding calcs in the given order.
func NewCalculator(calcs ...Calculation) *Calculator {
	return &Calculator{calcs: append([]Calculation(nil), calcs...)}
}

// Override returns a copy where each calculation in calcs replaces the
// existing one with the same name in place, or is appended when new.
func (c *Calculator) Override(calcs ...Calculation) *Calculator {
	out := NewCalculator(c.calcs...)
	for _, nc := range calcs {
		replaced := false
		for i := range out.calcs {
			if out.calcs[i].Name == nc.Name {
				out.calcs[i] = nc
				replaced = true
				break
			}
		}
		if !replaced {
			out.calcs = append(out.calcs, nc)
		}
	}
	return out
}

// Add appends calculations.
func (c *Calculator) Add(calcs ...Calculation) {
	c.calcs = append(c.calcs, calcs...)
}

// Without returns a copy lacking the named calculations.
func (c *Calculator) Without(names ...string) *Calculator {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := &Calculator{}
	for _, cc := range c.calcs {
		if !drop[cc.Name] {
			out.calcs = append(out.calcs, cc)
		}
	}
	return out
}

// Calculations returns the calculations in registration order.
func (c *Calculator) Calculations() []Calculation {
	return append([]Calculation(nil), c.calcs...)
}

// Plan checks the dependency graph against m and returns the calculations
// in execution order. Among calculations that are ready at the same time,
// registration order wins, so plans are deterministic.
func (c *Calculator) Plan(m *Model) ([]*Calculation, error) {
	n := len(c.calcs)
	producer := make(map[string]int)
	names := make(map[string]bool, n)

	for i := range c.calcs {
		cc := &c.calcs[i]
		if names[cc.Name] {
			return nil, &CalculationError{Calc: cc.Name, Err: fmt.Errorf("registered twice")}
		}
		names[cc.Name] = true
		for _, w := range cc.Writes {
			if _, ok := m.Var(w); !ok {
				return nil, &CalculationError{Calc: cc.Name, Err: fmt.Errorf("%w: writes %s", ErrUnknownVariable, w)}
			}
			if p, dup := producer[w]; dup {
				return nil, &CalculationError{Calc: cc.Name, Err: fmt.Errorf("%w: %s is also written by %s", ErrDuplicateProducer, w, c.calcs[p].Name)}
			}
			producer[w] = i
		}
	}

	succ := make([][]int, n)
	indeg := make([]int, n)
	for i := range c.calcs {
		cc := &c.calcs[i]
		seen := make(map[int]bool)
		for _, r := range cc.Reads {
			if _, ok := m.Var(r); !ok {
				return nil, &CalculationError{Calc: cc.Name, Err: fmt.Errorf("%w: reads %s", ErrUnknownVariable, r)}
			}
			p, ok := producer[r]
			if !ok {
				continue
			}
			if p == i {
				return nil, &CalculationError{Calc: cc.Name, Err: fmt.Errorf("%w: reads its own output %s", ErrCycle, r)}
			}
			if seen[p] {
				continue
			}
			seen[p] = true
			succ[p] = append(succ[p], i)
			indeg[i]++
		}
	}

	done := make([]bool, n)
	plan := make([]*Calculation, 0, n)
	for len(plan) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !done[i] && indeg[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []string
			for i := 0; i < n; i++ {
				if !done[i] {
					stuck = append(stuck, c.calcs[i].Name)
				}
			}
			return nil, &CalculationError{Calc: stuck[0], Err: fmt.Errorf("%w among %s", ErrCycle, strings.Join(stuck, ", "))}
		}
		done[next] = true
		plan = append(plan, &c.calcs[next])
		for _, s := range succ[next] {
			indeg[s]--
		}
	}
	return plan, nil
}

// Run plans and executes every calculation against m. observe, when not
// nil, is called after each calculation completes.
func (c *Calculator) Run(ctx context.Context, m *Model, observe func(Step)) error {
	plan, err := c.Plan(m)
	if err != nil {
		return err
	}
	for i, cc := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}
		cx := newContext(m, cc)
		start := time.Now()
		cc.Run(cx)
		if cx.err != nil {
			return &CalculationError{Calc: cc.Name, Err: cx.err}
		}
		m.Log.Debug("calculation done", "calc", cc.Name, "writes", len(cx.written))
		if observe != nil {
			observe(Step{Index: i, Name: cc.Name, Writes: cx.written, Duration: time.Since(start)})
		}
	}
	return nil
}
