package phy

import (
	"math"
	"strconv"

	"github.com/linht/radioconf/calc"
)

// Shaping filter oversampling used by the modulator.
const shapingOSR = 8

func baseCalculations(f *Family) []calc.Calculation {
	return []calc.Calculation{
		{
			Name:   "modulation",
			Reads:  []string{"modulation_type"},
			Writes: []string{"bits_per_symbol", "MODEM_CTRL0_MODFORMAT"},
			Run: func(c *calc.Context) {
				mod := c.Enum("modulation_type")
				bps := int64(1)
				if mod == "FSK4" {
					bps = 2
				}
				code, _ := ModulationEnum.ByName(mod)
				if mod == "ASK" {
					// OOK and ASK share a format; amplitude depth is set by the PA.
					code.Value = 6
				}
				c.Set("bits_per_symbol", bps)
				c.WriteField("MODEM_CTRL0_MODFORMAT", code.Value)
			},
		},
		{
			Name:   "baudrate",
			Reads:  []string{"bitrate", "bits_per_symbol"},
			Writes: []string{"baudrate"},
			Run: func(c *calc.Context) {
				br := c.Float("bitrate")
				if c.Err() == nil && br <= 0 {
					c.Failf("bitrate must be positive, got %g", br)
					return
				}
				c.Set("baudrate", br/float64(c.Int("bits_per_symbol")))
			},
		},
		{
			Name:   "deviation",
			Reads:  []string{"modulation_type", "deviation", "baudrate"},
			Writes: []string{"freq_deviation_hz"},
			Run: func(c *calc.Context) {
				baud := c.Float("baudrate")
				dev := 0.0
				switch c.Enum("modulation_type") {
				case "FSK2", "FSK4":
					dev = c.Float("deviation")
					if c.Err() == nil && dev <= 0 {
						c.Failf("%s needs a positive deviation", c.Enum("modulation_type"))
						return
					}
				case "MSK", "OQPSK":
					dev = baud / 4
				}
				c.Set("freq_deviation_hz", dev)
			},
		},
		{
			Name:   "modulation_index",
			Reads:  []string{"freq_deviation_hz", "baudrate"},
			Writes: []string{"modulation_index"},
			Run: func(c *calc.Context) {
				c.Set("modulation_index", 2*c.Float("freq_deviation_hz")/c.Float("baudrate"))
			},
		},
		{
			Name:   "bw_carson",
			Reads:  []string{"modulation_type", "baudrate", "freq_deviation_hz"},
			Writes: []string{"bw_carson"},
			Run: func(c *calc.Context) {
				baud := c.Float("baudrate")
				bw := baud
				switch c.Enum("modulation_type") {
				case "FSK2", "FSK4", "MSK":
					bw = baud + 2*c.Float("freq_deviation_hz")
				}
				c.Set("bw_carson", bw)
			},
		},
		{
			Name:   "xtal_offset",
			Reads:  []string{"rx_xtal_error_ppm", "tx_xtal_error_ppm", "base_frequency_hz"},
			Writes: []string{"xtal_offset_hz"},
			Run: func(c *calc.Context) {
				ppm := c.Float("rx_xtal_error_ppm") + c.Float("tx_xtal_error_ppm")
				c.Set("xtal_offset_hz", ppm*1e-6*c.Float("base_frequency_hz"))
			},
		},
		{
			Name:   "bandwidth",
			Reads:  []string{"bw_carson", "xtal_offset_hz"},
			Writes: []string{"bandwidth_hz"},
			Run: func(c *calc.Context) {
				c.Set("bandwidth_hz", c.Float("bw_carson")+2*c.Float("xtal_offset_hz"))
			},
		},
		{
			Name:   "band",
			Reads:  []string{"base_frequency_hz"},
			Writes: []string{"rf_band", "RAC_BANDCTRL_BANDSEL"},
			Run: func(c *calc.Context) {
				rf := c.Float("base_frequency_hz")
				b, ok := f.Band(rf)
				if !ok && c.Err() == nil {
					c.Failf("%w: %s is outside every %s band", ErrUnsupported, calc.FormatHz(rf), f.Name)
					return
				}
				c.Set("rf_band", b.Name)
				c.WriteField("RAC_BANDCTRL_BANDSEL", b.Code)
			},
		},
		{
			Name:   "lo_divider",
			Reads:  []string{"base_frequency_hz", "xtal_frequency_hz"},
			Writes: []string{"lodiv", "vco_frequency_hz", "synth_res_hz", "SYNTH_DIVCTRL_LODIVFREQCTRL"},
			Run: func(c *calc.Context) {
				rf := c.Float("base_frequency_hz")
				xtal := c.Float("xtal_frequency_hz")
				if c.Err() != nil {
					return
				}
				d, err := f.pickLODivider(rf)
				if err != nil {
					c.Fail(err)
					return
				}
				c.Set("lodiv", int64(d.Div))
				c.Set("vco_frequency_hz", rf*float64(d.Div))
				c.Set("synth_res_hz", xtal/(math.Ldexp(1, 19)*float64(d.Div)))
				c.WriteField("SYNTH_DIVCTRL_LODIVFREQCTRL", d.Code)
			},
		},
		{
			Name:  "synth",
			Reads: []string{"base_frequency_hz", "channel_spacing_hz", "if_frequency_hz", "synth_res_hz"},
			Writes: []string{"synth_freq_actual_hz", "SYNTH_FREQ_FREQ", "SYNTH_CHSP_CHSP",
				"SYNTH_IFFREQ_IFFREQ", "SYNTH_IFFREQ_LOSIDE"},
			Run: func(c *calc.Context) {
				res := c.Float("synth_res_hz")
				freq := math.Round(c.Float("base_frequency_hz") / res)
				c.Set("synth_freq_actual_hz", freq*res)
				c.WriteField("SYNTH_FREQ_FREQ", int64(freq))
				c.WriteField("SYNTH_CHSP_CHSP", int64(math.Round(c.Float("channel_spacing_hz")/res)))
				c.WriteField("SYNTH_IFFREQ_IFFREQ", int64(math.Round(c.Float("if_frequency_hz")/res)))
				loside := int64(0)
				if f.LOHighSide {
					loside = 1
				}
				c.WriteField("SYNTH_IFFREQ_LOSIDE", loside)
			},
		},
		{
			Name:  "decimation",
			Reads: []string{"vco_frequency_hz", "bandwidth_hz", "baudrate"},
			Writes: []string{"adc_freq_hz", "dec0", "dec1", "dec2", "chfilt_index", "chfilt_rate_hz",
				"demod_rate_hz", "oversampling_rate", "bandwidth_actual_hz",
				"MODEM_CF_DEC0", "MODEM_CF_DEC1", "MODEM_CF_DEC2", "MODEM_CF_CHFSEL"},
			Run: func(c *calc.Context) {
				adc := c.Float("vco_frequency_hz") / float64(f.ADCDiv)
				want := c.Float("bandwidth_hz")
				baud := c.Float("baudrate")
				if c.Err() != nil {
					return
				}
				d, covered, err := f.searchDecimation(adc, want, baud)
				if err != nil {
					c.Fail(err)
					return
				}
				if !covered {
					c.Warn("no channel filter reaches %s, using %s", calc.FormatHz(want), calc.FormatHz(d.Bandwidth))
				}
				c.Set("adc_freq_hz", adc)
				c.Set("dec0", int64(d.Dec0.Factor))
				c.Set("dec1", int64(d.Dec1))
				c.Set("dec2", int64(d.Dec2))
				c.Set("chfilt_index", int64(d.ChfIndex))
				c.Set("chfilt_rate_hz", d.ChfRate)
				c.Set("demod_rate_hz", d.DemodRate)
				c.Set("oversampling_rate", d.OSR)
				c.Set("bandwidth_actual_hz", d.Bandwidth)
				c.WriteField("MODEM_CF_DEC0", d.Dec0.Code)
				c.WriteField("MODEM_CF_DEC1", int64(d.Dec1-1))
				c.WriteField("MODEM_CF_DEC2", int64(d.Dec2-1))
				c.WriteField("MODEM_CF_CHFSEL", int64(d.ChfIndex))
			},
		},
		{
			Name:   "chfilt_taps",
			Reads:  []string{"chfilt_index"},
			Writes: []string{"chfilt_taps"},
			Run: func(c *calc.Context) {
				k := c.Int("chfilt_index")
				if c.Err() != nil {
					return
				}
				if k < 0 || int(k) >= len(f.ChannelFilters) {
					c.Failf("channel filter %d out of range", k)
					return
				}
				c.Set("chfilt_taps", LowpassTaps(f.ChannelFilterTaps, f.ChannelFilters[k]))
			},
		},
		{
			Name: "group_delay",
			Reads: []string{"adc_freq_hz", "dec0", "dec1", "dec2", "chfilt_rate_hz", "demod_rate_hz",
				"chfilt_taps", "baudrate"},
			Writes: []string{"grpdelay_s", "rx_sync_delay_ns", "rx_eof_delay_ns"},
			Run: func(c *calc.Context) {
				d0, ok := f.dec0(int(c.Int("dec0")))
				if !ok && c.Err() == nil {
					c.Failf("DEC0 factor %d not available on %s", c.Int("dec0"), f.Name)
					return
				}
				d := Decimation{
					Dec0:      d0,
					Dec1:      int(c.Int("dec1")),
					Dec2:      int(c.Int("dec2")),
					ADCRate:   c.Float("adc_freq_hz"),
					ChfRate:   c.Float("chfilt_rate_hz"),
					DemodRate: c.Float("demod_rate_hz"),
				}
				taps := len(c.Floats("chfilt_taps"))
				baud := c.Float("baudrate")
				if c.Err() != nil {
					return
				}
				delay := f.groupDelay(d, taps)
				c.Set("grpdelay_s", delay)
				c.Set("rx_sync_delay_ns", (delay+float64(f.DemodDelaySamples)/d.DemodRate)*1e9)
				c.Set("rx_eof_delay_ns", (delay+1/baud)*1e9)
			},
		},
		{
			Name:  "shaping",
			Reads: []string{"shaping_filter", "shaping_filter_param"},
			Writes: append([]string{"shaping_filter_taps", "MODEM_CTRL0_SHAPING"},
				shapingCoeffFields()...),
			Run: func(c *calc.Context) {
				if c.Enum("shaping_filter") == "NONE" {
					c.Set("shaping_filter_taps", RectTaps(shapingOSR))
					c.WriteField("MODEM_CTRL0_SHAPING", 0)
					for _, name := range shapingCoeffFields() {
						c.WriteField(name, 0)
					}
					return
				}
				bt := c.Float("shaping_filter_param")
				if c.Err() == nil && bt <= 0 {
					c.Failf("Gaussian BT must be positive, got %g", bt)
					return
				}
				taps := GaussianTaps(bt, shapingOSR)
				c.Set("shaping_filter_taps", taps)
				c.WriteField("MODEM_CTRL0_SHAPING", 1)
				peak := taps[len(taps)/2]
				for i, name := range shapingCoeffFields() {
					c.WriteField(name, int64(math.Round(127*taps[i]/peak)))
				}
			},
		},
		{
			Name:   "freq_gain",
			Reads:  []string{"demod_rate_hz", "freq_deviation_hz"},
			Writes: []string{"freq_gain_actual", "MODEM_MODINDEX_FREQGAINM", "MODEM_MODINDEX_FREQGAINE"},
			Run: func(c *calc.Context) {
				fs := c.Float("demod_rate_hz")
				dev := c.Float("freq_deviation_hz")
				ideal := 1.0
				if dev > 0 {
					// The discriminator maps fs/2 to 128 LSB; put the deviation at 64.
					ideal = fs / (4 * dev)
				}
				m, e, actual := encodeFreqGain(ideal)
				if math.Abs(actual-ideal)/ideal > 0.25 {
					c.Warn("frequency gain %.3f not representable, using %.3f", ideal, actual)
				}
				c.Set("freq_gain_actual", actual)
				c.WriteField("MODEM_MODINDEX_FREQGAINM", m)
				c.WriteField("MODEM_MODINDEX_FREQGAINE", e)
			},
		},
		{
			Name:   "tx_deviation",
			Reads:  []string{"freq_deviation_hz", "synth_res_hz"},
			Writes: []string{"tx_deviation_actual_hz", "MODEM_MODINDEX_MODINDEXM", "MODEM_MODINDEX_MODINDEXE"},
			Run: func(c *calc.Context) {
				dev := c.Float("freq_deviation_hz")
				res := c.Float("synth_res_hz")
				m, e, ok := encodeDeviation(dev, res)
				if !ok {
					c.Warn("deviation %s exceeds the modulator range", calc.FormatHz(dev))
				}
				c.Set("tx_deviation_actual_hz", float64(m)*math.Ldexp(res, int(e)))
				c.WriteField("MODEM_MODINDEX_MODINDEXM", m)
				c.WriteField("MODEM_MODINDEX_MODINDEXE", e)
			},
		},
		{
			Name:   "tx_baudrate",
			Reads:  []string{"xtal_frequency_hz", "baudrate", "baudrate_tol_ppm"},
			Writes: []string{"tx_baudrate_actual", "MODEM_TXBR_TXBRNUM", "MODEM_TXBR_TXBRDEN"},
			Run: func(c *calc.Context) {
				xtal := c.Float("xtal_frequency_hz")
				baud := c.Float("baudrate")
				tol := c.Float("baudrate_tol_ppm")
				if c.Err() != nil {
					return
				}
				num, den, ok := txBaudFraction(xtal / (8 * baud))
				if !ok {
					c.Failf("baud rate %g cannot be derived from a %s crystal", baud, calc.FormatHz(xtal))
					return
				}
				actual := xtal / (8 * float64(num) / float64(den))
				if ppm := math.Abs(actual-baud) / baud * 1e6; ppm > tol {
					c.Warn("TX baud rate %.3f is %.0f ppm off, tolerance %.0f ppm", actual, ppm, tol)
				}
				c.Set("tx_baudrate_actual", actual)
				c.WriteField("MODEM_TXBR_TXBRNUM", num)
				c.WriteField("MODEM_TXBR_TXBRDEN", den)
			},
		},
		{
			Name:   "timing",
			Reads:  []string{"symbols_in_timing_window", "preamble_pattern_len", "bits_per_symbol"},
			Writes: []string{"timing_threshold", "MODEM_TIMING_TIMTHRESH", "MODEM_TIMING_TIMINGBASES"},
			Run: func(c *calc.Context) {
				symbols := c.Int("symbols_in_timing_window")
				baseBits := c.Int("preamble_pattern_len")
				bps := c.Int("bits_per_symbol")
				if c.Err() != nil {
					return
				}
				if symbols <= 0 || baseBits <= 0 {
					c.Failf("timing window and preamble base must be positive")
					return
				}
				// Correlation peaks reach 64 per pair of symbols; accept 35 % of that.
				thresh := int64(math.Round(0.35 * 64 * float64(symbols) / 2))
				baseSymbols := float64(baseBits) / float64(bps)
				bases := int64(math.Ceil(float64(symbols) / baseSymbols))
				c.Set("timing_threshold", thresh)
				c.WriteField("MODEM_TIMING_TIMTHRESH", thresh)
				c.WriteField("MODEM_TIMING_TIMINGBASES", bases)
			},
		},
		{
			Name: "preamble",
			Reads: []string{"preamble_length", "preamble_pattern", "preamble_pattern_len",
				"syncword_length", "syncword_0", "symbols_in_timing_window", "bits_per_symbol"},
			Writes: []string{"MODEM_PRE_BASE", "MODEM_PRE_BASEBITS", "MODEM_PRE_TXBASES",
				"MODEM_CTRL1_SYNCBITS", "MODEM_SYNC0_SYNC0"},
			Run: func(c *calc.Context) {
				length := c.Int("preamble_length")
				pattern := c.Int("preamble_pattern")
				plen := c.Int("preamble_pattern_len")
				sync := c.Int("syncword_length")
				word := c.Int("syncword_0")
				window := c.Int("symbols_in_timing_window") * c.Int("bits_per_symbol")
				if c.Err() != nil {
					return
				}
				if plen < 1 || plen > 4 {
					c.Failf("preamble pattern length %d not in 1..4", plen)
					return
				}
				if sync < 1 || sync > 32 {
					c.Failf("sync word length %d not in 1..32", sync)
					return
				}
				if length%plen != 0 {
					c.Warn("preamble of %d bits is not a whole number of %d-bit bases", length, plen)
				}
				if length < window {
					c.Warn("preamble of %d bits is shorter than the %d-bit timing window", length, window)
				}
				c.WriteField("MODEM_PRE_BASE", pattern)
				c.WriteField("MODEM_PRE_BASEBITS", plen-1)
				c.WriteField("MODEM_PRE_TXBASES", length/plen)
				c.WriteField("MODEM_CTRL1_SYNCBITS", sync-1)
				c.WriteField("MODEM_SYNC0_SYNC0", word&(int64(1)<<sync-1))
			},
		},
		{
			Name: "antdiv",
			Reads: []string{"antdivmode", "preamble_length", "symbols_in_timing_window", "bits_per_symbol",
				"timing_threshold"},
			Writes: []string{"MODEM_CTRL3_ANTDIVMODE", "MODEM_CTRL3_ANTDIVREPEATDIS",
				"MODEM_ANTDIVCTRL_ADPRETHRESH", "MODEM_ANTDIVCTRL_ENADPRETHRESH"},
			Run: func(c *calc.Context) {
				mode, _ := AntDivEnum.ByName(c.Enum("antdivmode"))
				length := c.Int("preamble_length")
				window := c.Int("symbols_in_timing_window") * c.Int("bits_per_symbol")
				thresh := c.Int("timing_threshold")
				if c.Err() != nil {
					return
				}
				code := mode.Value - 1
				if code < 0 {
					code = 0
				}
				selecting := mode.Value >= 3
				if selecting && length < 2*window {
					c.Warn("antenna selection needs %d preamble bits, have %d", 2*window, length)
				}
				repeatDis := int64(1)
				enPre := int64(0)
				if selecting {
					repeatDis = 0
					enPre = 1
				}
				c.WriteField("MODEM_CTRL3_ANTDIVMODE", code)
				c.WriteField("MODEM_CTRL3_ANTDIVREPEATDIS", repeatDis)
				c.WriteField("MODEM_ANTDIVCTRL_ADPRETHRESH", thresh*enPre)
				c.WriteField("MODEM_ANTDIVCTRL_ENADPRETHRESH", enPre)
			},
		},
		{
			Name:   "devweightdis",
			Reads:  []string{"modulation_type", "modulation_index"},
			Writes: []string{"MODEM_CTRL2_DEVWEIGHTDIS"},
			Run: func(c *calc.Context) {
				mod := c.Enum("modulation_type")
				h := c.Float("modulation_index")
				dis := int64(1)
				if mod == "FSK2" && h >= 1 {
					dis = 0
				}
				c.WriteField("MODEM_CTRL2_DEVWEIGHTDIS", dis)
			},
		},
		{
			Name: "agc",
			Reads: []string{"agc_power_target", "agc_settling_mode", "agc_period",
				"symbols_in_timing_window", "oversampling_rate"},
			Writes: []string{"AGC_CTRL0_PWRTARGET", "AGC_CTRL0_MODE", "AGC_CTRL1_RSSIPERIOD"},
			Run: func(c *calc.Context) {
				mode, _ := AGCModeEnum.ByName(c.Enum("agc_settling_mode"))
				var period int64
				if c.Has("agc_period") {
					period = c.Int("agc_period")
				} else {
					// Average RSSI over about one timing window.
					samples := float64(c.Int("symbols_in_timing_window")) * c.Float("oversampling_rate")
					period = int64(math.Floor(math.Log2(math.Max(samples, 1))))
				}
				c.WriteField("AGC_CTRL0_PWRTARGET", c.Int("agc_power_target"))
				c.WriteField("AGC_CTRL0_MODE", mode.Value)
				c.WriteField("AGC_CTRL1_RSSIPERIOD", period)
			},
		},
		{
			Name:   "agc_gain_table",
			Writes: []string{"agc_gain_table_db", "AGC_GAINRANGE_LNAINDEXBORDER", "AGC_GAINRANGE_PGAINDEXBORDER", "AGC_GAINRANGE_GAININCSTEP"},
			Run: func(c *calc.Context) {
				g := f.AGC
				table := make([]float64, 0, g.LNASteps+g.PGASteps)
				for i := 0; i < g.LNASteps; i++ {
					table = append(table, float64(i)*g.LNAStepDB)
				}
				lnaTotal := float64(g.LNASteps) * g.LNAStepDB
				for j := 0; j < g.PGASteps; j++ {
					table = append(table, lnaTotal+float64(j)*g.PGAStepDB)
				}
				c.Set("agc_gain_table_db", table)
				c.WriteField("AGC_GAINRANGE_LNAINDEXBORDER", int64(g.LNASteps))
				c.WriteField("AGC_GAINRANGE_PGAINDEXBORDER", int64(g.LNASteps+g.PGASteps))
				c.WriteField("AGC_GAINRANGE_GAININCSTEP", 1)
			},
		},
		{
			Name:   "demod",
			Reads:  []string{"demod_select"},
			Writes: []string{"demod_trecs"},
			Run: func(c *calc.Context) {
				trecs := c.Enum("demod_select") == "TRECS_VITERBI"
				if trecs && !f.TRECS {
					c.Failf("%w: TRECS demodulator on %s", ErrUnsupported, f.Name)
					return
				}
				c.Set("demod_trecs", trecs)
			},
		},
	}
}

func shapingCoeffFields() []string {
	names := make([]string, 0, shapingOSR+1)
	for i := 0; i <= shapingOSR; i++ {
		reg := "MODEM_SHAPING0"
		switch {
		case i >= 8:
			reg = "MODEM_SHAPING2"
		case i >= 4:
			reg = "MODEM_SHAPING1"
		}
		names = append(names, reg+"_COEFF"+strconv.Itoa(i))
	}
	return names
}
