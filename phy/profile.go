package phy

import (
	"sort"

	"github.com/linht/radioconf/calc"
)

// Input is a model input a profile accepts.
type Input struct {
	Name     string `json:"name" yaml:"name"`
	Required bool   `json:"required" yaml:"required"`
	Default  any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Profile selects the inputs, forced values and reported outputs of a
// PHY use case.
type Profile struct {
	Name          string            `json:"name" yaml:"name"`
	Desc          string            `json:"desc" yaml:"desc"`
	Inputs        []Input           `json:"inputs" yaml:"inputs"`
	Forced        []calc.NamedValue `json:"forced,omitempty" yaml:"forced,omitempty"`
	Outputs       []string          `json:"outputs" yaml:"outputs"`
	RequiresTRECS bool              `json:"requires_trecs,omitempty" yaml:"requires_trecs,omitempty"`
}

var profiles = make(map[string]*Profile)

// RegisterProfile adds a profile to the registry.
func RegisterProfile(p *Profile) {
	profiles[p.Name] = p
}

// LookupProfile retrieves a profile by name.
func LookupProfile(name string) (*Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// Profiles returns the profiles usable with f, sorted by name.
func Profiles(f *Family) []*Profile {
	var out []*Profile
	for _, p := range profiles {
		if p.RequiresTRECS && !f.TRECS {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var commonInputs = []Input{
	{Name: "base_frequency_hz", Required: true},
	{Name: "bitrate", Required: true},
	{Name: "modulation_type", Required: true},
	{Name: "deviation", Default: 0.0},
	{Name: "channel_spacing_hz", Default: 0.0},
	{Name: "shaping_filter", Default: "GAUSSIAN"},
	{Name: "shaping_filter_param", Default: 0.5},
	{Name: "baudrate_tol_ppm", Default: 1000.0},
	{Name: "rx_xtal_error_ppm", Default: 0.0},
	{Name: "tx_xtal_error_ppm", Default: 0.0},
	{Name: "symbols_in_timing_window", Default: 6},
	{Name: "preamble_length", Default: 40},
	{Name: "preamble_pattern", Default: 1},
	{Name: "preamble_pattern_len", Default: 2},
	{Name: "syncword_length", Default: 16},
	{Name: "syncword_0", Default: 0xF68D},
	{Name: "antdivmode", Default: "DISABLE"},
	{Name: "demod_select", Default: "LEGACY"},
	{Name: "agc_power_target", Default: -8},
	{Name: "agc_settling_mode", Default: "LOCKPREDET"},
	{Name: "agc_period"},
	{Name: "xtal_frequency_hz"},
	{Name: "if_frequency_hz"},
}

var commonOutputs = []string{
	"bits_per_symbol", "baudrate", "modulation_index", "bw_carson", "bandwidth_hz",
	"rf_band", "lodiv", "synth_res_hz", "synth_freq_actual_hz",
	"adc_freq_hz", "dec0", "dec1", "dec2", "bandwidth_actual_hz", "demod_rate_hz", "oversampling_rate",
	"freq_gain_actual", "tx_deviation_actual_hz", "tx_baudrate_actual",
	"rx_sync_delay_ns", "rx_eof_delay_ns", "agc_gain_table_db",
}

func init() {
	RegisterProfile(&Profile{
		Name:    "base",
		Desc:    "Generic FSK/PSK/OOK PHY",
		Inputs:  commonInputs,
		Outputs: commonOutputs,
	})
	RegisterProfile(&Profile{
		Name:          "viterbi",
		Desc:          "FSK PHY received by the TRECS Viterbi demodulator",
		Inputs:        commonInputs,
		Forced:        []calc.NamedValue{{Name: "demod_select", Value: "TRECS_VITERBI"}},
		Outputs:       commonOutputs,
		RequiresTRECS: true,
	})
	RegisterProfile(&Profile{
		Name:   "ook",
		Desc:   "On-off keyed PHY",
		Inputs: commonInputs,
		Forced: []calc.NamedValue{
			{Name: "modulation_type", Value: "OOK"},
			{Name: "shaping_filter", Value: "NONE"},
			{Name: "agc_settling_mode", Value: "LOCKFRAMEDET"},
		},
		Outputs: commonOutputs,
	})
}
