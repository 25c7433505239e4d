package phy

import (
	"fmt"
	"math"

	"github.com/linht/radioconf/calc"
)

// pickLODivider finds the LO divider that puts the VCO inside the family
// range, closest to the middle of it.
func (f *Family) pickLODivider(rf float64) (LODivider, error) {
	centre := (f.VCOMin + f.VCOMax) / 2
	best, found := LODivider{}, false
	for _, d := range f.LODividers {
		vco := rf * float64(d.Div)
		if vco < f.VCOMin || vco > f.VCOMax {
			continue
		}
		if !found || math.Abs(vco-centre) < math.Abs(rf*float64(best.Div)-centre) {
			best, found = d, true
		}
	}
	if !found {
		return LODivider{}, fmt.Errorf("no LO divider puts %s inside the VCO range", calc.FormatHz(rf))
	}
	return best, nil
}

// Decimation is one configuration of the receive decimation chain.
type Decimation struct {
	Dec0      Dec0Option
	Dec1      int
	Dec2      int
	ChfIndex  int
	ADCRate   float64
	ChfRate   float64
	DemodRate float64
	OSR       float64
	Bandwidth float64
}

// pickDec2 returns the smallest DEC2 that brings the oversampling rate
// down to the family maximum, provided it also stays above the minimum.
func (f *Family) pickDec2(chfRate, baud float64) (int, float64, bool) {
	for d := 1; d <= f.Dec2Max; d++ {
		osr := chfRate / float64(d) / baud
		if osr > f.OSRMax {
			continue
		}
		return d, osr, osr >= f.OSRMin
	}
	return 0, 0, false
}

// searchDecimation looks for the narrowest channel bandwidth that is not
// below want. covered is false when nothing reaches want; the widest
// valid chain is returned in that case.
func (f *Family) searchDecimation(adcRate, want, baud float64) (best Decimation, covered bool, err error) {
	var widest Decimation
	haveBest, haveWidest := false, false

	for _, d0 := range f.Dec0 {
		r1 := adcRate / float64(d0.Factor)
		for k, ratio := range f.ChannelFilters {
			for d1 := 1; d1 <= f.Dec1Max; d1++ {
				r2 := r1 / float64(d1)
				bw := r2 * ratio
				d2, osr, ok := f.pickDec2(r2, baud)
				if !ok {
					if r2/baud < f.OSRMin {
						break
					}
					continue
				}
				cand := Decimation{
					Dec0: d0, Dec1: d1, Dec2: d2, ChfIndex: k,
					ADCRate: adcRate, ChfRate: r2, DemodRate: r2 / float64(d2),
					OSR: osr, Bandwidth: bw,
				}
				if bw >= want {
					if !haveBest || bw < best.Bandwidth {
						best, haveBest = cand, true
					}
					continue
				}
				if !haveWidest || bw > widest.Bandwidth {
					widest, haveWidest = cand, true
				}
				break
			}
		}
	}
	switch {
	case haveBest:
		return best, true, nil
	case haveWidest:
		return widest, false, nil
	}
	return Decimation{}, false, fmt.Errorf("no decimation chain gives %g to %g samples per symbol", f.OSRMin, f.OSRMax)
}

// groupDelay sums the delay through every filter of the receive chain, in seconds.
func (f *Family) groupDelay(d Decimation, chfTaps int) float64 {
	r1 := d.ADCRate / float64(d.Dec0.Factor)
	delay := float64(d.Dec0.Taps-1) / 2 / d.ADCRate
	delay += float64(f.CICOrder) * float64(d.Dec1-1) / 2 / r1
	delay += float64(chfTaps-1) / 2 / d.ChfRate
	delay += float64(d.Dec2-1) / 2 / d.ChfRate
	return delay
}

// encodeFreqGain approximates gain as m * 2^-e with 3-bit m and e, choosing
// the smallest error and, on ties, the smallest exponent.
func encodeFreqGain(gain float64) (m, e int64, actual float64) {
	bestErr := math.Inf(1)
	for ee := int64(0); ee <= 7; ee++ {
		mm := int64(math.Round(gain * math.Ldexp(1, int(ee))))
		if mm < 1 {
			mm = 1
		}
		if mm > 7 {
			mm = 7
		}
		g := math.Ldexp(float64(mm), -int(ee))
		if diff := math.Abs(g - gain); diff < bestErr {
			bestErr, m, e, actual = diff, mm, ee, g
		}
	}
	return m, e, actual
}

// encodeDeviation expresses dev as m * 2^e synthesizer steps, with a 5-bit
// mantissa and a signed 5-bit exponent. The smallest exponent that keeps the
// mantissa in range gives the finest resolution. ok is false when dev is
// too large for the encoding; m and e are then saturated.
func encodeDeviation(dev, res float64) (m, e int64, ok bool) {
	if dev <= 0 {
		return 0, 0, true
	}
	for ee := int64(-16); ee <= 15; ee++ {
		mm := int64(math.Round(dev / (res * math.Ldexp(1, int(ee)))))
		if mm <= 31 {
			return mm, ee, true
		}
	}
	return 31, 15, false
}

// txBaudFraction finds num/den closest to ratio with num ≤ 65535 and
// den ≤ 255, preferring the smaller denominator.
func txBaudFraction(ratio float64) (num, den int64, ok bool) {
	bestErr := math.Inf(1)
	for d := int64(1); d <= 255; d++ {
		n := int64(math.Round(ratio * float64(d)))
		if n > 65535 {
			break
		}
		if n < 1 {
			continue
		}
		if diff := math.Abs(float64(n)/float64(d) - ratio); diff < bestErr {
			bestErr, num, den = diff, n, d
			if diff == 0 {
				break
			}
		}
	}
	return num, den, num != 0
}
