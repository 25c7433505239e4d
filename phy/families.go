package phy

import (
	"github.com/linht/radioconf/calc"
)

var subGHzBands = []Band{
	{Name: "169", Min: 169e6, Max: 170e6, Code: 0},
	{Name: "315-500", Min: 300e6, Max: 500e6, Code: 1},
	{Name: "779-960", Min: 779e6, Max: 960e6, Code: 2},
	{Name: "2400", Min: 2400e6, Max: 2483.5e6, Code: 3},
}

var legacyChannelFilters = []float64{0.30, 0.27, 0.245, 0.22, 0.20, 0.18, 0.16, 0.145}

func init() {
	Register(&Family{
		Name:              "xg1",
		Desc:              "EFR32xG1 sub-GHz and 2.4 GHz radio",
		XtalHz:            38.4e6,
		IFHz:              400e3,
		ADCDiv:            64,
		Dec0:              []Dec0Option{{Factor: 3, Code: 0, Taps: 7}, {Factor: 4, Code: 2, Taps: 11}, {Factor: 8, Code: 3, Taps: 21}},
		Dec1Max:           11500,
		CICOrder:          4,
		Dec2Max:           64,
		ChannelFilters:    legacyChannelFilters,
		ChannelFilterTaps: 15,
		OSRMin:            4,
		OSRMax:            8,
		VCOMin:            2.3e9,
		VCOMax:            2.9e9,
		LODividers:        stageDividers(5),
		LOHighSide:        false,
		Bands:             subGHzBands,
		AGC:               AGCGains{LNASteps: 7, LNAStepDB: 3, PGASteps: 8, PGAStepDB: 3},
		DemodDelaySamples: 4,
		Registers:         loadMap("xg1"),
	})

	Register(&Family{
		Name:              "xg12",
		Desc:              "EFR32xG12 sub-GHz and 2.4 GHz radio",
		XtalHz:            38.4e6,
		IFHz:              400e3,
		ADCDiv:            64,
		Dec0:              []Dec0Option{{Factor: 3, Code: 0, Taps: 7}, {Factor: 4, Code: 2, Taps: 11}, {Factor: 8, Code: 3, Taps: 21}},
		Dec1Max:           11500,
		CICOrder:          4,
		Dec2Max:           64,
		ChannelFilters:    legacyChannelFilters,
		ChannelFilterTaps: 15,
		OSRMin:            4,
		OSRMax:            8,
		VCOMin:            2.25e9,
		VCOMax:            2.95e9,
		LODividers:        stageDividers(5),
		LOHighSide:        false,
		Bands:             subGHzBands,
		AGC:               AGCGains{LNASteps: 7, LNAStepDB: 3, PGASteps: 8, PGAStepDB: 3},
		DemodDelaySamples: 4,
		Registers:         loadMap("xg12"),
		Customize: func(f *Family, c *calc.Calculator) *calc.Calculator {
			// Deviation weighting is unusable on this die; keep it off.
			return c.Override(calc.Calculation{
				Name:   "devweightdis",
				Writes: []string{"MODEM_CTRL2_DEVWEIGHTDIS"},
				Run:    func(c *calc.Context) { c.WriteField("MODEM_CTRL2_DEVWEIGHTDIS", 1) },
			})
		},
	})

	Register(&Family{
		Name:              "xg22",
		Desc:              "EFR32xG22 2.4 GHz radio with TRECS demodulator",
		XtalHz:            38.4e6,
		IFHz:              1.37e6,
		ADCDiv:            128,
		Dec0:              []Dec0Option{{Factor: 3, Code: 0, Taps: 7}, {Factor: 4, Code: 2, Taps: 11}, {Factor: 8, Code: 3, Taps: 21}},
		Dec1Max:           11500,
		CICOrder:          4,
		Dec2Max:           64,
		ChannelFilters:    []float64{0.32, 0.29, 0.26, 0.235, 0.21, 0.19, 0.17, 0.155},
		ChannelFilterTaps: 31,
		OSRMin:            4,
		OSRMax:            8,
		VCOMin:            4.75e9,
		VCOMax:            5.0e9,
		LODividers:        []LODivider{{Div: 2, Code: 2 | 1<<3 | 1<<6}},
		LOHighSide:        true,
		Bands:             []Band{{Name: "2400", Min: 2400e6, Max: 2483.5e6, Code: 0}},
		AGC:               AGCGains{LNASteps: 10, LNAStepDB: 3, LNAMaxCode: 63, PGASteps: 11, PGAStepDB: 3, PGAMaxCode: 11},
		DemodDelaySamples: 6,
		TRECS:             true,
		Registers:         loadMap("xg22"),
		Customize: func(f *Family, c *calc.Calculator) *calc.Calculator {
			c = c.Override(lnaMixGainTable(f))
			c.Add(trecsCalculations(f)...)
			return c
		},
	})
}
