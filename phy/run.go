package phy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/linht/radioconf/calc"
	"github.com/linht/radioconf/regmap"
)

// Request asks for one PHY configuration.
type Request struct {
	Family  string         `json:"family" yaml:"family"`
	Profile string         `json:"profile" yaml:"profile"`
	Inputs  map[string]any `json:"inputs" yaml:"inputs"`
	Forced  map[string]any `json:"forced,omitempty" yaml:"forced,omitempty"`

	Log *slog.Logger `json:"-" yaml:"-"`
}

// FieldResult is a computed register field.
type FieldResult struct {
	Name   string `json:"name" yaml:"name"`
	Value  int64  `json:"value" yaml:"value"`
	Forced bool   `json:"forced,omitempty" yaml:"forced,omitempty"`
}

// RegisterResult is a composed register write.
type RegisterResult struct {
	Name    string `json:"name" yaml:"name"`
	Address uint32 `json:"address" yaml:"address"`
	Value   uint32 `json:"value" yaml:"value"`
	Mask    uint32 `json:"mask" yaml:"mask"`
}

// Result is everything a run produced.
type Result struct {
	ID        string            `json:"id,omitempty" yaml:"id,omitempty"`
	Family    string            `json:"family" yaml:"family"`
	Profile   string            `json:"profile" yaml:"profile"`
	Created   time.Time         `json:"created" yaml:"created"`
	Outputs   []calc.NamedValue `json:"outputs" yaml:"outputs"`
	Fields    []FieldResult     `json:"fields" yaml:"fields"`
	Registers []RegisterResult  `json:"registers" yaml:"registers"`
	Warnings  []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Steps     []calc.Step       `json:"steps,omitempty" yaml:"steps,omitempty"`

	// Writes keeps the composed words with their register for encoders.
	Writes []regmap.RegisterWord `json:"-" yaml:"-"`
}

// Run builds the model for req and executes the family's calculations.
// observe, when not nil, sees every step as it completes.
func Run(ctx context.Context, req Request, observe func(calc.Step)) (*Result, error) {
	fam, ok := Lookup(req.Family)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, req.Family)
	}
	if req.Profile == "" {
		req.Profile = "base"
	}
	prof, ok := LookupProfile(req.Profile)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, req.Profile)
	}
	if prof.RequiresTRECS && !fam.TRECS {
		return nil, fmt.Errorf("profile %s: %w: %s has no TRECS demodulator", prof.Name, ErrUnsupported, fam.Name)
	}

	m := calc.NewModel(fam.Name, prof.Name, req.Log)
	if err := declareVariables(m, fam); err != nil {
		return nil, err
	}
	if err := applyInputs(m, fam, prof, req); err != nil {
		return nil, err
	}

	res := &Result{Family: fam.Name, Profile: prof.Name, Created: time.Now()}
	err := fam.Calculator().Run(ctx, m, func(s calc.Step) {
		res.Steps = append(res.Steps, s)
		if observe != nil {
			observe(s)
		}
	})
	if err != nil {
		return nil, err
	}

	res.Outputs = m.Values(prof.Outputs...)
	for _, fv := range m.FieldValues() {
		v, _ := m.Var(fv.Field.FullName())
		res.Fields = append(res.Fields, FieldResult{Name: fv.Field.FullName(), Value: fv.Value, Forced: v.IsForced()})
	}
	res.Writes = regmap.Compose(m.FieldValues())
	for _, w := range res.Writes {
		res.Registers = append(res.Registers, RegisterResult{
			Name: w.Register.FullName(), Address: w.Address, Value: w.Value, Mask: w.Mask,
		})
	}
	res.Warnings = m.Warnings()
	m.Log.Info("PHY calculated", "fields", len(res.Fields), "registers", len(res.Registers), "warnings", len(res.Warnings))
	return res, nil
}

func applyInputs(m *calc.Model, fam *Family, prof *Profile, req Request) error {
	familyDefaults := map[string]any{
		"xtal_frequency_hz": fam.XtalHz,
		"if_frequency_hz":   fam.IFHz,
	}
	accepted := make(map[string]Input, len(prof.Inputs))
	for _, in := range prof.Inputs {
		accepted[in.Name] = in
		def := in.Default
		if def == nil {
			def = familyDefaults[in.Name]
		}
		if def == nil {
			continue
		}
		v, _ := m.Var(in.Name)
		if err := v.SetDefault(def); err != nil {
			return fmt.Errorf("profile %s default: %w", prof.Name, err)
		}
	}

	for _, name := range sortedKeys(req.Inputs) {
		if _, ok := accepted[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownInput, name)
		}
		v, _ := m.Var(name)
		if err := v.SetDefault(req.Inputs[name]); err != nil {
			return err
		}
	}

	force := func(name string, x any) error {
		v, ok := m.Var(name)
		if !ok {
			return fmt.Errorf("forced %w: %s", calc.ErrUnknownVariable, name)
		}
		if err := v.Force(x); err != nil {
			return err
		}
		return saturateForced(m, v)
	}
	for _, nv := range prof.Forced {
		if err := force(nv.Name, nv.Value); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(req.Forced) {
		if err := force(name, req.Forced[name]); err != nil {
			return err
		}
	}

	for _, in := range prof.Inputs {
		v, _ := m.Var(in.Name)
		if in.Required && !v.HasValue() {
			return fmt.Errorf("%w: %s", ErrMissingInput, in.Name)
		}
	}
	return nil
}

// saturateForced clamps a forced register field to the field range, the
// same way WriteField clamps calculated values.
func saturateForced(m *calc.Model, v *calc.Variable) error {
	if v.Field == nil {
		return nil
	}
	n, ok := v.Value().(int64)
	if !ok {
		return nil
	}
	_, clamped, err := v.Field.Encode(n)
	if err != nil {
		return fmt.Errorf("forced %w", err)
	}
	if !clamped {
		return nil
	}
	lo, hi := v.Field.Range()
	sat := regmap.Saturate(n, lo, hi)
	m.Warn("%s: %d saturated to %d", v.Name, n, sat)
	return v.Force(sat)
}

// sortedKeys gives map entries a reproducible order, so the first error
// reported for a request does not change between runs.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
