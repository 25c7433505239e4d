package phy

import (
	"github.com/linht/radioconf/calc"
)

var (
	ModulationEnum = calc.NewEnum("modulation_type",
		calc.EnumMember{Name: "FSK2", Value: 0, Desc: "Binary frequency shift keying"},
		calc.EnumMember{Name: "FSK4", Value: 1, Desc: "Four-level FSK"},
		calc.EnumMember{Name: "BPSK", Value: 2},
		calc.EnumMember{Name: "DBPSK", Value: 3},
		calc.EnumMember{Name: "OQPSK", Value: 4, Desc: "Offset QPSK with half-sine shaping"},
		calc.EnumMember{Name: "MSK", Value: 5},
		calc.EnumMember{Name: "OOK", Value: 6, Desc: "On-off keying"},
		calc.EnumMember{Name: "ASK", Value: 7, Desc: "Amplitude shift keying"},
	)

	ShapingEnum = calc.NewEnum("shaping_filter",
		calc.EnumMember{Name: "NONE", Value: 0},
		calc.EnumMember{Name: "GAUSSIAN", Value: 1},
	)

	DemodEnum = calc.NewEnum("demod_select",
		calc.EnumMember{Name: "LEGACY", Value: 0, Desc: "Correlation demodulator"},
		calc.EnumMember{Name: "TRECS_VITERBI", Value: 1, Desc: "TRECS with Viterbi detection"},
	)

	AntDivEnum = calc.NewEnum("antdivmode",
		calc.EnumMember{Name: "DISABLE", Value: 0},
		calc.EnumMember{Name: "ANTENNA0", Value: 1, Desc: "Always antenna 0"},
		calc.EnumMember{Name: "ANTENNA1", Value: 2, Desc: "Always antenna 1"},
		calc.EnumMember{Name: "ANTSELFIRST", Value: 3, Desc: "First antenna to detect a preamble"},
		calc.EnumMember{Name: "ANTSELCORR", Value: 4, Desc: "Best correlation"},
		calc.EnumMember{Name: "ANTSELRSSI", Value: 5, Desc: "Best RSSI"},
	)

	AGCModeEnum = calc.NewEnum("agc_settling_mode",
		calc.EnumMember{Name: "CONT", Value: 0, Desc: "Gain adjusts continuously"},
		calc.EnumMember{Name: "LOCKPREDET", Value: 1, Desc: "Lock after preamble detect"},
		calc.EnumMember{Name: "LOCKFRAMEDET", Value: 2, Desc: "Lock after frame detect"},
		calc.EnumMember{Name: "LOCKDSA", Value: 3},
	)
)

type varSpec struct {
	name  string
	typ   calc.Type
	units string
	desc  string
	enum  *calc.EnumType
}

var inputSpecs = []varSpec{
	{"base_frequency_hz", calc.Float, "Hz", "Channel 0 centre frequency", nil},
	{"channel_spacing_hz", calc.Float, "Hz", "Distance between channels", nil},
	{"xtal_frequency_hz", calc.Float, "Hz", "Reference crystal", nil},
	{"if_frequency_hz", calc.Float, "Hz", "Receiver intermediate frequency", nil},
	{"bitrate", calc.Float, "bps", "Over-the-air data rate", nil},
	{"modulation_type", calc.Enum, "", "", ModulationEnum},
	{"deviation", calc.Float, "Hz", "Peak frequency deviation (outer symbol for FSK4)", nil},
	{"shaping_filter", calc.Enum, "", "TX pulse shaping", ShapingEnum},
	{"shaping_filter_param", calc.Float, "", "Gaussian bandwidth-time product", nil},
	{"baudrate_tol_ppm", calc.Float, "ppm", "Acceptable TX baud rate error", nil},
	{"rx_xtal_error_ppm", calc.Float, "ppm", "", nil},
	{"tx_xtal_error_ppm", calc.Float, "ppm", "", nil},
	{"symbols_in_timing_window", calc.Int, "symbols", "", nil},
	{"preamble_length", calc.Int, "bits", "", nil},
	{"preamble_pattern", calc.Int, "", "", nil},
	{"preamble_pattern_len", calc.Int, "bits", "", nil},
	{"syncword_length", calc.Int, "bits", "", nil},
	{"syncword_0", calc.Int, "", "", nil},
	{"antdivmode", calc.Enum, "", "Antenna diversity", AntDivEnum},
	{"demod_select", calc.Enum, "", "", DemodEnum},
	{"agc_power_target", calc.Int, "dBm", "", nil},
	{"agc_settling_mode", calc.Enum, "", "", AGCModeEnum},
	{"agc_period", calc.Int, "", "RSSI averaging period exponent", nil},
}

var derivedSpecs = []varSpec{
	{"bits_per_symbol", calc.Int, "", "", nil},
	{"baudrate", calc.Float, "baud", "", nil},
	{"freq_deviation_hz", calc.Float, "Hz", "Deviation the modulator produces", nil},
	{"modulation_index", calc.Float, "", "", nil},
	{"bw_carson", calc.Float, "Hz", "Carson's rule occupied bandwidth", nil},
	{"xtal_offset_hz", calc.Float, "Hz", "Worst-case carrier offset from crystal error", nil},
	{"bandwidth_hz", calc.Float, "Hz", "Requested receive bandwidth", nil},
	{"rf_band", calc.String, "", "", nil},
	{"lodiv", calc.Int, "", "LO divider", nil},
	{"vco_frequency_hz", calc.Float, "Hz", "", nil},
	{"synth_res_hz", calc.Float, "Hz", "Synthesizer frequency step", nil},
	{"synth_freq_actual_hz", calc.Float, "Hz", "", nil},
	{"adc_freq_hz", calc.Float, "Hz", "", nil},
	{"dec0", calc.Int, "", "", nil},
	{"dec1", calc.Int, "", "", nil},
	{"dec2", calc.Int, "", "", nil},
	{"chfilt_index", calc.Int, "", "", nil},
	{"chfilt_rate_hz", calc.Float, "Hz", "Channel filter sample rate", nil},
	{"chfilt_taps", calc.FloatList, "", "Channel filter impulse response", nil},
	{"bandwidth_actual_hz", calc.Float, "Hz", "", nil},
	{"demod_rate_hz", calc.Float, "Hz", "", nil},
	{"oversampling_rate", calc.Float, "", "Demod samples per symbol", nil},
	{"grpdelay_s", calc.Float, "s", "Receive chain group delay", nil},
	{"rx_sync_delay_ns", calc.Float, "ns", "", nil},
	{"rx_eof_delay_ns", calc.Float, "ns", "", nil},
	{"shaping_filter_taps", calc.FloatList, "", "", nil},
	{"freq_gain_actual", calc.Float, "", "", nil},
	{"tx_deviation_actual_hz", calc.Float, "Hz", "", nil},
	{"tx_baudrate_actual", calc.Float, "baud", "", nil},
	{"timing_threshold", calc.Int, "", "", nil},
	{"agc_gain_table_db", calc.FloatList, "dB", "Gain reduction per AGC index", nil},
	{"demod_trecs", calc.Bool, "", "", nil},
}

func declareVariables(m *calc.Model, f *Family) error {
	for _, list := range [][]varSpec{inputSpecs, derivedSpecs} {
		for _, s := range list {
			v := &calc.Variable{Name: s.name, Type: s.typ, Units: s.units, Desc: s.desc, Enum: s.enum}
			if err := m.Declare(v); err != nil {
				return err
			}
		}
	}
	return m.BindFields(f.Registers)
}

func isInput(name string) bool {
	for _, s := range inputSpecs {
		if s.name == name {
			return true
		}
	}
	return false
}
