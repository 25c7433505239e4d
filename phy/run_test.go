package phy

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/linht/radioconf/calc"
	"gotest.tools/v3/assert"
)

func fieldMap(r *Result) map[string]int64 {
	out := make(map[string]int64, len(r.Fields))
	for _, f := range r.Fields {
		out[f.Name] = f.Value
	}
	return out
}

func outputMap(r *Result) map[string]any {
	out := make(map[string]any, len(r.Outputs))
	for _, o := range r.Outputs {
		out[o.Name] = o.Value
	}
	return out
}

func TestRunSubGHzFSK(t *testing.T) {
	var steps []calc.Step
	res, err := Run(context.Background(), Request{
		Family:  "xg1",
		Profile: "base",
		Inputs: map[string]any{
			"base_frequency_hz": "868MHz",
			"bitrate":           100e3,
			"modulation_type":   "FSK2",
			"deviation":         50e3,
		},
	}, func(s calc.Step) { steps = append(steps, s) })
	assert.NilError(t, err)
	assert.Equal(t, len(steps), len(res.Steps))

	out := outputMap(res)
	assert.Equal(t, out["bw_carson"], 200e3)
	assert.Equal(t, out["modulation_index"], 1.0)
	assert.Equal(t, out["lodiv"], int64(3))
	assert.Equal(t, out["rf_band"], "779-960")
	bw := out["bandwidth_actual_hz"].(float64)
	assert.Assert(t, bw >= 200e3, "bandwidth %g below Carson", bw)
	osr := out["oversampling_rate"].(float64)
	assert.Assert(t, osr >= 4 && osr <= 8, "osr %g", osr)

	fields := fieldMap(res)
	assert.Equal(t, fields["MODEM_CTRL0_MODFORMAT"], int64(0))
	assert.Equal(t, fields["MODEM_TXBR_TXBRNUM"], int64(48))
	assert.Equal(t, fields["MODEM_TXBR_TXBRDEN"], int64(1))
	assert.Equal(t, fields["MODEM_CTRL2_DEVWEIGHTDIS"], int64(0))
	assert.Equal(t, fields["MODEM_TIMING_TIMTHRESH"], int64(67))
	assert.Equal(t, fields["MODEM_TIMING_TIMINGBASES"], int64(3))
	assert.Equal(t, fields["MODEM_SYNC0_SYNC0"], int64(0xF68D))
	assert.Equal(t, fields["MODEM_SHAPING2_COEFF8"], int64(127))
	_, hasKSI := fields["MODEM_VITERBIDEMOD_VITERBIKSI1"]
	assert.Assert(t, !hasKSI)

	res868 := 38.4e6 / (math.Ldexp(1, 19) * 3)
	assert.Equal(t, fields["SYNTH_FREQ_FREQ"], int64(math.Round(868e6/res868)))

	// Registers come out in address order and carry the written bits.
	for i := 1; i < len(res.Registers); i++ {
		assert.Assert(t, res.Registers[i-1].Address < res.Registers[i].Address)
	}
}

func TestRunViterbi(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Family:  "xg22",
		Profile: "viterbi",
		Inputs: map[string]any{
			"base_frequency_hz": 2.45e9,
			"bitrate":           1e6,
			"modulation_type":   "FSK2",
			"deviation":         250e3,
		},
	}, nil)
	assert.NilError(t, err)
	fields := fieldMap(res)
	assert.Equal(t, fields["MODEM_VITERBIDEMOD_VTDEMODEN"], int64(1))
	ksi1 := fields["MODEM_VITERBIDEMOD_VITERBIKSI1"]
	ksi2 := fields["MODEM_VITERBIDEMOD_VITERBIKSI2"]
	ksi3 := fields["MODEM_VITERBIDEMOD_VITERBIKSI3"]
	assert.Assert(t, ksi1 >= ksi3 && ksi3 >= ksi2 && ksi2 > 0, "ksi %d %d %d", ksi1, ksi2, ksi3)
	assert.Assert(t, ksi1 > 40 && ksi1 <= 127, "ksi1 %d", ksi1)
	// xg22 writes per-index LNA slices instead of a gain range.
	assert.Equal(t, fields["AGC_LNAMIXCODE0_LNAMIXSLICE1"], int64(63))
	_, hasRange := fields["AGC_GAINRANGE_LNAINDEXBORDER"]
	assert.Assert(t, !hasRange)
}

func TestRunLegacyOnTRECSFamily(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Family: "xg22",
		Inputs: map[string]any{"base_frequency_hz": 2.44e9, "bitrate": 250e3, "modulation_type": "OQPSK"},
	}, nil)
	assert.NilError(t, err)
	fields := fieldMap(res)
	assert.Equal(t, fields["MODEM_VITERBIDEMOD_VTDEMODEN"], int64(0))
	assert.Equal(t, fields["MODEM_VITERBIDEMOD_VITERBIKSI1"], int64(0))
}

func TestRunOOKProfile(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Family:  "xg12",
		Profile: "ook",
		Inputs:  map[string]any{"base_frequency_hz": 433.92e6, "bitrate": 4800},
	}, nil)
	assert.NilError(t, err)
	out := outputMap(res)
	assert.Equal(t, out["bw_carson"], 4800.0)
	fields := fieldMap(res)
	assert.Equal(t, fields["MODEM_CTRL0_MODFORMAT"], int64(6))
	assert.Equal(t, fields["MODEM_CTRL0_SHAPING"], int64(0))
	// xg12 keeps deviation weighting off regardless of modulation.
	assert.Equal(t, fields["MODEM_CTRL2_DEVWEIGHTDIS"], int64(1))
	assert.Equal(t, fields["AGC_CTRL0_MODE"], int64(2))
}

func TestRunForcedValues(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Family: "xg1",
		Inputs: map[string]any{"base_frequency_hz": 915e6, "bitrate": 50e3, "modulation_type": "FSK2", "deviation": 25e3},
		Forced: map[string]any{"bandwidth_hz": 400e3, "MODEM_TIMING_TIMTHRESH": 20},
	}, nil)
	assert.NilError(t, err)
	out := outputMap(res)
	assert.Equal(t, out["bandwidth_hz"], 400e3)
	assert.Assert(t, out["bandwidth_actual_hz"].(float64) >= 400e3)
	for _, f := range res.Fields {
		if f.Name == "MODEM_TIMING_TIMTHRESH" {
			assert.Equal(t, f.Value, int64(20))
			assert.Assert(t, f.Forced)
		}
	}
}

func TestRunForcedFieldSaturates(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Family: "xg1",
		Inputs: map[string]any{"base_frequency_hz": 915e6, "bitrate": 50e3, "modulation_type": "FSK2", "deviation": 25e3},
		Forced: map[string]any{"MODEM_TIMING_TIMTHRESH": 1000},
	}, nil)
	assert.NilError(t, err)
	assert.Equal(t, fieldMap(res)["MODEM_TIMING_TIMTHRESH"], int64(255))
	assert.Assert(t, hasWarning(res, "MODEM_TIMING_TIMTHRESH: 1000 saturated to 255"), "%v", res.Warnings)
	for _, r := range res.Registers {
		if r.Name == "MODEM_TIMING" {
			assert.Equal(t, r.Value&0xff, uint32(0xff))
		}
	}

	_, err = Run(context.Background(), Request{
		Family: "xg1",
		Inputs: map[string]any{"base_frequency_hz": 915e6, "bitrate": 50e3, "modulation_type": "FSK2", "deviation": 25e3},
		Forced: map[string]any{"MODEM_STATUS_CORR": 1},
	}, nil)
	assert.ErrorIs(t, err, calc.ErrUnknownVariable)
}

func TestRunGroupDelay(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Family: "xg1",
		Inputs: map[string]any{"base_frequency_hz": 868e6, "bitrate": 100e3, "modulation_type": "FSK2", "deviation": 50e3},
	}, nil)
	assert.NilError(t, err)

	var grp float64
	for _, s := range res.Steps {
		for _, w := range s.Writes {
			if w.Name == "grpdelay_s" {
				grp = w.Value.(float64)
			}
		}
	}
	assert.Assert(t, grp > 0)

	out := outputMap(res)
	demod := out["demod_rate_hz"].(float64)
	sync := out["rx_sync_delay_ns"].(float64)
	eof := out["rx_eof_delay_ns"].(float64)
	assert.Assert(t, math.Abs(sync-(grp+4/demod)*1e9) < 1e-6, "sync %g", sync)
	assert.Assert(t, math.Abs(eof-(grp+1/100e3)*1e9) < 1e-6, "eof %g", eof)
}

func TestGroupDelayChain(t *testing.T) {
	f := &Family{CICOrder: 4}
	d := Decimation{
		Dec0:    Dec0Option{Factor: 3, Taps: 7},
		Dec1:    5,
		Dec2:    2,
		ADCRate: 12e6,
		ChfRate: 800e3,
	}
	// 3/12e6 + 4*4/2/4e6 + 15/800e3 + 0.5/800e3
	want := 0.25e-6 + 2e-6 + 18.75e-6 + 0.625e-6
	got := f.groupDelay(d, 31)
	assert.Assert(t, math.Abs(got-want) < 1e-12, "got %g want %g", got, want)
}

func TestRunWidestChannelFilter(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Family: "xg1",
		Inputs: map[string]any{"base_frequency_hz": 915e6, "bitrate": 2e6, "modulation_type": "FSK2", "deviation": 4e6},
	}, nil)
	assert.NilError(t, err)
	out := outputMap(res)
	assert.Equal(t, out["bandwidth_hz"], 10e6)
	assert.Assert(t, out["bandwidth_actual_hz"].(float64) < out["bandwidth_hz"].(float64))
	assert.Assert(t, hasWarning(res, "no channel filter reaches 10MHz"), "%v", res.Warnings)
}

func hasWarning(res *Result, sub string) bool {
	for _, w := range res.Warnings {
		if strings.Contains(w, sub) {
			return true
		}
	}
	return false
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"family", Request{Family: "xg99"}, ErrUnknownFamily},
		{"profile", Request{Family: "xg1", Profile: "zigbee"}, ErrUnknownProfile},
		{"viterbi on xg1", Request{Family: "xg1", Profile: "viterbi"}, ErrUnsupported},
		{"missing", Request{Family: "xg1", Inputs: map[string]any{"bitrate": 1e3}}, ErrMissingInput},
		{"unknown input", Request{Family: "xg1", Inputs: map[string]any{"bogus": 1}}, ErrUnknownInput},
		{"bad enum", Request{Family: "xg1", Inputs: map[string]any{"modulation_type": "QAM64"}}, calc.ErrType},
		{"band", Request{Family: "xg22", Inputs: map[string]any{
			"base_frequency_hz": 868e6, "bitrate": 1e5, "modulation_type": "FSK2", "deviation": 5e4}}, ErrUnsupported},
		{"no deviation", Request{Family: "xg1", Inputs: map[string]any{
			"base_frequency_hz": 868e6, "bitrate": 1e5, "modulation_type": "FSK2"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), tt.req, nil)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFamilies(t *testing.T) {
	var names []string
	for _, f := range Families() {
		names = append(names, f.Name)
		_, err := f.Calculator().Plan(newFamilyModel(t, f))
		assert.NilError(t, err, f.Name)
	}
	assert.DeepEqual(t, names, []string{"xg1", "xg12", "xg22"})

	xg1, _ := Lookup("xg1")
	var profs []string
	for _, p := range Profiles(xg1) {
		profs = append(profs, p.Name)
	}
	assert.DeepEqual(t, profs, []string{"base", "ook"})
}

func newFamilyModel(t *testing.T, f *Family) *calc.Model {
	t.Helper()
	m := calc.NewModel(f.Name, "base", nil)
	assert.NilError(t, declareVariables(m, f))
	return m
}

func TestSearchHelpers(t *testing.T) {
	num, den, ok := txBaudFraction(38.4e6 / (8 * 2e6))
	assert.Assert(t, ok)
	assert.Equal(t, num, int64(12))
	assert.Equal(t, den, int64(5))

	m, e, ok := encodeDeviation(250e3, 38.4e6/math.Ldexp(1, 20))
	assert.Assert(t, ok)
	assert.Equal(t, e, int64(8))
	assert.Equal(t, m, int64(27))

	xg1, _ := Lookup("xg1")
	d, err := xg1.pickLODivider(315e6)
	assert.NilError(t, err)
	assert.Equal(t, d.Div, 8)
	_, err = xg1.pickLODivider(1.5e9)
	assert.ErrorContains(t, err, "VCO range")
}
