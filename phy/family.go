// Package phy turns radio PHY intent (modulation, data rate, deviation,
// frequency plan) into register field values for a chip family.
//
// A Family carries the silicon constants and register map, a Profile
// declares which inputs are taken and which values are forced, and Run
// executes the family's calculations over a model built from both.
package phy

import (
	"embed"
	"errors"
	"fmt"
	"sort"

	"github.com/linht/radioconf/calc"
	"github.com/linht/radioconf/regmap"
)

//go:embed regs/*.yaml
var regFS embed.FS

var (
	ErrUnknownFamily  = errors.New("unknown chip family")
	ErrUnknownProfile = errors.New("unknown profile")
	ErrUnsupported    = errors.New("not supported by chip family")
	ErrUnknownInput   = errors.New("unknown input")
	ErrMissingInput   = errors.New("missing required input")
)

// Dec0Option is one setting of the first, fixed-ratio decimator.
type Dec0Option struct {
	Factor int
	Code   int64
	Taps   int
}

// LODivider is a synthesizer output divider and its DIVCTRL encoding.
type LODivider struct {
	Div  int
	Code int64
}

// Band is an RF front-end band.
type Band struct {
	Name string  `json:"name" yaml:"name"`
	Min  float64 `json:"min_hz" yaml:"min_hz"`
	Max  float64 `json:"max_hz" yaml:"max_hz"`
	Code int64   `json:"code" yaml:"code"`
}

// AGCGains describes the gain steps the AGC can walk through.
type AGCGains struct {
	LNASteps   int
	LNAStepDB  float64
	LNAMaxCode int64
	PGASteps   int
	PGAStepDB  float64
	PGAMaxCode int64
}

// Family holds everything that differs between chip revisions.
type Family struct {
	Name string
	Desc string

	XtalHz float64
	IFHz   float64
	// ADC clock is the VCO divided by ADCDiv.
	ADCDiv int

	Dec0     []Dec0Option
	Dec1Max  int
	CICOrder int
	Dec2Max  int

	// Channel filter bandwidths as a fraction of the filter input rate,
	// indexed by MODEM_CF_CHFSEL.
	ChannelFilters    []float64
	ChannelFilterTaps int

	OSRMin, OSRMax float64

	VCOMin, VCOMax float64
	LODividers     []LODivider
	LOHighSide     bool
	Bands          []Band

	AGC AGCGains

	// Demodulator latency from first sample to sync detect, in demod samples.
	DemodDelaySamples int
	TRECS             bool

	Registers *regmap.Map

	// Customize adjusts the shared calculation set for this family.
	Customize func(f *Family, c *calc.Calculator) *calc.Calculator
}

var families = make(map[string]*Family)

// Register adds a family to the registry.
func Register(f *Family) {
	families[f.Name] = f
}

// Lookup retrieves a family by name.
func Lookup(name string) (*Family, bool) {
	f, ok := families[name]
	return f, ok
}

// Families returns every registered family sorted by name.
func Families() []*Family {
	out := make([]*Family, 0, len(families))
	for _, f := range families {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Calculator returns the calculations run for this family.
func (f *Family) Calculator() *calc.Calculator {
	c := calc.NewCalculator(baseCalculations(f)...)
	if f.Customize != nil {
		c = f.Customize(f, c)
	}
	return c
}

// Band returns the band covering freq.
func (f *Family) Band(freq float64) (Band, bool) {
	for _, b := range f.Bands {
		if freq >= b.Min && freq <= b.Max {
			return b, true
		}
	}
	return Band{}, false
}

func (f *Family) dec0(factor int) (Dec0Option, bool) {
	for _, d := range f.Dec0 {
		if d.Factor == factor {
			return d, true
		}
	}
	return Dec0Option{}, false
}

func loadMap(name string) *regmap.Map {
	data, err := regFS.ReadFile("regs/" + name + ".yaml")
	if err != nil {
		panic(fmt.Sprintf("register map %s: %v", name, err))
	}
	return regmap.MustParse(data)
}

// stageDividers lists every divide ratio reachable with three cascaded
// stages of 1..maxStage, each encoded in three bits of LODIVFREQCTRL.
func stageDividers(maxStage int) []LODivider {
	seen := make(map[int]bool)
	var out []LODivider
	for d1 := 1; d1 <= maxStage; d1++ {
		for d2 := 1; d2 <= d1; d2++ {
			for d3 := 1; d3 <= d2; d3++ {
				div := d1 * d2 * d3
				if seen[div] {
					continue
				}
				seen[div] = true
				out = append(out, LODivider{Div: div, Code: int64(d1 | d2<<3 | d3<<6)})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Div < out[j].Div })
	return out
}
