package phy

import (
	"math"
)

// convolve returns the full linear convolution of x and h.
func convolve(x, h []float64) []float64 {
	if len(x) == 0 || len(h) == 0 {
		return nil
	}
	out := make([]float64, len(x)+len(h)-1)
	for i, xv := range x {
		if xv == 0 {
			continue
		}
		for j, hv := range h {
			out[i+j] += xv * hv
		}
	}
	return out
}

func convolveComplex(x []complex128, h []float64) []complex128 {
	if len(x) == 0 || len(h) == 0 {
		return nil
	}
	out := make([]complex128, len(x)+len(h)-1)
	for i, xv := range x {
		for j, hv := range h {
			out[i+j] += xv * complex(hv, 0)
		}
	}
	return out
}

func sum(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v
	}
	return s
}

func scale(x []float64, k float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v * k
	}
	return out
}

// GaussianTaps returns a Gaussian pulse of bandwidth-time product bt,
// sampled at sfosr points per symbol over two symbols, scaled so the taps
// sum to sfosr (unit gain per symbol).
func GaussianTaps(bt float64, sfosr int) []float64 {
	n := 2*sfosr + 1
	a := math.Pi * bt * math.Sqrt(2/math.Ln2)
	taps := make([]float64, n)
	for i := range taps {
		t := float64(i-sfosr) / float64(sfosr)
		taps[i] = 0.5 * (math.Erf(a*(t+0.5)) - math.Erf(a*(t-0.5)))
	}
	return scale(taps, float64(sfosr)/sum(taps))
}

// RectTaps is the shaping filter with no shaping: one symbol of ones.
func RectTaps(sfosr int) []float64 {
	taps := make([]float64, sfosr)
	for i := range taps {
		taps[i] = 1
	}
	return taps
}

// LowpassTaps designs an n-tap Hamming windowed sinc whose two-sided
// bandwidth is ratio times the sample rate, normalised to unit DC gain.
func LowpassTaps(n int, ratio float64) []float64 {
	if n <= 1 {
		return []float64{1}
	}
	fc := ratio / 2
	mid := float64(n-1) / 2
	taps := make([]float64, n)
	for i := range taps {
		x := float64(i) - mid
		s := 2 * fc
		if x != 0 {
			s = math.Sin(2*math.Pi*fc*x) / (math.Pi * x)
		}
		w := 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		taps[i] = s * w
	}
	return scale(taps, 1/sum(taps))
}
