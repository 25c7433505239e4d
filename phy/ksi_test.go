package phy

import (
	"math"
	"testing"

	"gotest.tools/v3/assert"
)

func TestGaussianTaps(t *testing.T) {
	taps := GaussianTaps(0.5, 8)
	assert.Equal(t, len(taps), 17)
	assert.Assert(t, math.Abs(sum(taps)-8) < 1e-9)
	for i := 0; i < len(taps)/2; i++ {
		if math.Abs(taps[i]-taps[len(taps)-1-i]) > 1e-12 {
			t.Errorf("tap %d not symmetric: %g != %g", i, taps[i], taps[len(taps)-1-i])
		}
		if taps[i] > taps[i+1] {
			t.Errorf("tap %d larger than tap %d", i, i+1)
		}
	}
}

func TestLowpassTaps(t *testing.T) {
	taps := LowpassTaps(15, 0.25)
	assert.Equal(t, len(taps), 15)
	assert.Assert(t, math.Abs(sum(taps)-1) < 1e-12)
	assert.DeepEqual(t, LowpassTaps(1, 0.25), []float64{1})
}

func TestFrequencySignalRectangular(t *testing.T) {
	// With no shaping and no channel filter every symbol holds the full
	// deviation, whatever its neighbours are.
	const (
		dev  = 25e3
		baud = 50e3
		rx   = 400e3
	)
	k := SimulateKSI(RectTaps(8), []float64{1}, 8, dev, baud, rx)
	for name, f := range map[string]float64{"run": k.Run, "one": k.One, "pair": k.Pair} {
		if math.Abs(f-dev) > 1e-6 {
			t.Errorf("%s: got %g Hz, want %g", name, f, dev)
		}
	}
	// fs/(4*dev) = 4 is exactly representable, so KSI1 lands on 64.
	m, e, gain := encodeFreqGain(rx / (4 * dev))
	assert.Equal(t, m, int64(4))
	assert.Equal(t, e, int64(0))
	assert.Equal(t, ksiCode(k.Run, rx, gain), int64(64))
}

func TestFrequencySignalGaussianOrdering(t *testing.T) {
	const (
		dev  = 125e3
		baud = 500e3
		rx   = 4e6
	)
	cf := LowpassTaps(15, 0.3)
	k := SimulateKSI(GaussianTaps(0.5, 8), cf, 8, dev, baud, rx)
	if !(k.Run >= k.Pair && k.Pair >= k.One) {
		t.Fatalf("want run >= pair >= one, got %+v", k)
	}
	if k.One <= 0 {
		t.Errorf("isolated one should still deviate, got %g", k.One)
	}
	if math.Abs(k.Run-dev)/dev > 0.05 {
		t.Errorf("long run: got %g Hz, want about %g", k.Run, dev)
	}
}

func TestFrequencySignalLength(t *testing.T) {
	symbols := []float64{1, -1, 1, 1}
	f := GenFrequencySignal(symbols, RectTaps(4), []float64{0.5, 0.5}, 4, 1e3, 1e3, 8e3)
	// 4 symbols * 4 + 3 shaped samples = 19 tx samples = 4.75 ms,
	// 39 rx samples, plus one from the 2-tap filter.
	assert.Equal(t, len(f), 40)
	assert.Equal(t, f[0], 0.0)
}

func TestConvolve(t *testing.T) {
	assert.DeepEqual(t, convolve([]float64{1, 0, 2}, []float64{1, 1}), []float64{1, 1, 2, 2})
	assert.Assert(t, convolve(nil, []float64{1}) == nil)
}
