package phy

import (
	"fmt"
	"math"

	"github.com/linht/radioconf/calc"
)

// lnaMixGainTable replaces the border-style AGC gain range with explicit
// per-index LNA/mixer slice counts and PGA gain codes.
func lnaMixGainTable(f *Family) calc.Calculation {
	g := f.AGC
	var writes []string
	for i := 1; i <= g.LNASteps; i++ {
		writes = append(writes, lnaSliceField(i))
	}
	for j := 1; j <= g.PGASteps; j++ {
		writes = append(writes, fmt.Sprintf("AGC_PGACODE%d_PGAGAIN%d", (j-1)/8, j))
	}
	return calc.Calculation{
		Name:   "agc_gain_table",
		Writes: append([]string{"agc_gain_table_db"}, writes...),
		Run: func(c *calc.Context) {
			table := make([]float64, 0, g.LNASteps+g.PGASteps)
			for i := 1; i <= g.LNASteps; i++ {
				att := float64(i-1) * g.LNAStepDB
				slices := int64(math.Round(float64(g.LNAMaxCode) * math.Pow(10, -att/20)))
				if slices < 1 {
					slices = 1
				}
				// Report the attenuation the slice count really gives.
				table = append(table, -20*math.Log10(float64(slices)/float64(g.LNAMaxCode)))
				c.WriteField(lnaSliceField(i), slices)
			}
			lnaTotal := table[len(table)-1]
			for j := 1; j <= g.PGASteps; j++ {
				table = append(table, lnaTotal+float64(j)*g.PGAStepDB)
				c.WriteField(fmt.Sprintf("AGC_PGACODE%d_PGAGAIN%d", (j-1)/8, j), g.PGAMaxCode-int64(j))
			}
			c.Set("agc_gain_table_db", table)
		},
	}
}

func lnaSliceField(i int) string {
	return fmt.Sprintf("AGC_LNAMIXCODE%d_LNAMIXSLICE%d", (i-1)/5, i)
}

// trecsCalculations configure the TRECS demodulator and derive the Viterbi
// branch metric constants. With the legacy demodulator they switch the
// Viterbi path off and write zeros.
func trecsCalculations(f *Family) []calc.Calculation {
	return []calc.Calculation{
		{
			Name:   "trecs",
			Reads:  []string{"demod_trecs", "oversampling_rate"},
			Writes: []string{"MODEM_TRECSCFG_TRECSOSR", "MODEM_VITERBIDEMOD_VTDEMODEN", "MODEM_VITERBIDEMOD_HARDDECISION"},
			Run: func(c *calc.Context) {
				on := c.Bool("demod_trecs")
				osr := c.Float("oversampling_rate")
				if !on {
					c.WriteField("MODEM_TRECSCFG_TRECSOSR", 0)
					c.WriteField("MODEM_VITERBIDEMOD_VTDEMODEN", 0)
					c.WriteField("MODEM_VITERBIDEMOD_HARDDECISION", 0)
					return
				}
				if osr != math.Trunc(osr) {
					c.Warn("TRECS runs best at an integer oversampling rate, have %.3f", osr)
				}
				c.WriteField("MODEM_TRECSCFG_TRECSOSR", int64(math.Round(osr)))
				c.WriteField("MODEM_VITERBIDEMOD_VTDEMODEN", 1)
				c.WriteField("MODEM_VITERBIDEMOD_HARDDECISION", 0)
			},
		},
		{
			Name: "ksi",
			Reads: []string{"demod_trecs", "modulation_type", "shaping_filter_taps", "chfilt_taps",
				"freq_deviation_hz", "baudrate", "chfilt_rate_hz", "demod_rate_hz", "freq_gain_actual"},
			Writes: []string{"MODEM_VITERBIDEMOD_VITERBIKSI1", "MODEM_VITERBIDEMOD_VITERBIKSI2",
				"MODEM_VITERBIDEMOD_VITERBIKSI3"},
			Run: func(c *calc.Context) {
				if !c.Bool("demod_trecs") {
					c.WriteField("MODEM_VITERBIDEMOD_VITERBIKSI1", 0)
					c.WriteField("MODEM_VITERBIDEMOD_VITERBIKSI2", 0)
					c.WriteField("MODEM_VITERBIDEMOD_VITERBIKSI3", 0)
					return
				}
				switch mod := c.Enum("modulation_type"); mod {
				case "FSK2", "MSK", "OQPSK":
				default:
					c.Failf("%w: Viterbi detection of %s", ErrUnsupported, mod)
					return
				}
				sf := c.Floats("shaping_filter_taps")
				cf := c.Floats("chfilt_taps")
				dev := c.Float("freq_deviation_hz")
				baud := c.Float("baudrate")
				rx := c.Float("chfilt_rate_hz")
				fs := c.Float("demod_rate_hz")
				gain := c.Float("freq_gain_actual")
				if c.Err() != nil {
					return
				}
				k := SimulateKSI(sf, cf, shapingOSR, dev, baud, rx)
				c.WriteField("MODEM_VITERBIDEMOD_VITERBIKSI1", ksiCode(k.Run, fs, gain))
				c.WriteField("MODEM_VITERBIDEMOD_VITERBIKSI2", ksiCode(k.One, fs, gain))
				c.WriteField("MODEM_VITERBIDEMOD_VITERBIKSI3", ksiCode(k.Pair, fs, gain))
			},
		},
	}
}
