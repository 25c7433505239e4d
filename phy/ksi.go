package phy

import (
	"math"
	"math/cmplx"
)

// GenFrequencySignal simulates the frequency a discriminator sees for a
// symbol stream.
//
// The symbols (±1, or ±1/±3 scaled to ±1 for four-level FSK) are
// zero-stuffed to sfosr samples per symbol and shaped by sf, then
// integrated to phase with dev Hz per unit amplitude. The phase is
// resampled by linear interpolation to rxRate, filtered by cf and fed to
// a delay-and-multiply discriminator. The returned slice is frequency in
// Hz, one value per rxRate sample.
func GenFrequencySignal(symbols []float64, sf, cf []float64, sfosr int, dev, baud, rxRate float64) []float64 {
	txRate := baud * float64(sfosr)

	stuffed := make([]float64, len(symbols)*sfosr)
	for i, s := range symbols {
		stuffed[i*sfosr] = s
	}
	shaped := convolve(stuffed, sf)

	phase := make([]float64, len(shaped)+1)
	for n, f := range shaped {
		phase[n+1] = phase[n] + 2*math.Pi*dev*f/txRate
	}

	duration := float64(len(phase)-1) / txRate
	nrx := int(math.Floor(duration*rxRate)) + 1
	z := make([]complex128, nrx)
	for k := range z {
		pos := float64(k) / rxRate * txRate
		i := int(math.Floor(pos))
		frac := pos - float64(i)
		var p float64
		if i >= len(phase)-1 {
			p = phase[len(phase)-1]
		} else {
			p = phase[i] + frac*(phase[i+1]-phase[i])
		}
		z[k] = cmplx.Exp(complex(0, p))
	}

	y := convolveComplex(z, cf)
	freq := make([]float64, len(y))
	for k := 1; k < len(y); k++ {
		freq[k] = cmplx.Phase(y[k]*cmplx.Conj(y[k-1])) * rxRate / (2 * math.Pi)
	}
	return freq
}

// sampleIndex returns the discriminator output index aligned with the
// centre of symbol i after the shaping and channel filter delays.
func sampleIndex(i int, sfLen, cfLen, sfosr int, baud, rxRate float64) int {
	txRate := baud * float64(sfosr)
	t := (float64(i*sfosr) + float64(sfLen-1)/2 + 0.5) / txRate
	return int(math.Round(t*rxRate + 0.5 + float64(cfLen-1)/2))
}

// KSI is the discriminator response to the three canonical bit patterns,
// in Hz.
type KSI struct {
	Run  float64 // long run of ones
	One  float64 // isolated one
	Pair float64 // two ones
}

const ksiPatternLen = 16

// SimulateKSI measures the frequency at the centre of the symbol under
// test for each pattern.
func SimulateKSI(sf, cf []float64, sfosr int, dev, baud, rxRate float64) KSI {
	const at = ksiPatternLen / 2
	pattern := func(ones ...int) []float64 {
		s := make([]float64, ksiPatternLen)
		for i := range s {
			s[i] = -1
		}
		for _, i := range ones {
			s[i] = 1
		}
		return s
	}
	all := make([]int, ksiPatternLen)
	for i := range all {
		all[i] = i
	}
	k := sampleIndex(at, len(sf), len(cf), sfosr, baud, rxRate)
	probe := func(symbols []float64) float64 {
		f := GenFrequencySignal(symbols, sf, cf, sfosr, dev, baud, rxRate)
		if k >= len(f) {
			return 0
		}
		return math.Abs(f[k])
	}
	return KSI{
		Run:  probe(pattern(all...)),
		One:  probe(pattern(at)),
		Pair: probe(pattern(at, at+1)),
	}
}

// ksiCode scales a discriminator frequency to demodulator LSBs. The
// discriminator maps demodRate/2 to 128 LSB before the frequency gain.
func ksiCode(f, demodRate, gain float64) int64 {
	return int64(math.Round(f * 256 / demodRate * gain))
}
