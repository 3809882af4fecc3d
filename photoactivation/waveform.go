package photoactivation

import (
	"fmt"
	"math"
)

// MaxSamples is the largest buffer, in samples per channel, a run will
// allocate
const MaxSamples = 1 << 24

// SampleCount is the number of samples per channel needed to play a
// stimulation of durationMs milliseconds at sampleRate Hz, rounded down.
// The product is taken before dividing, so 290 ms at 100 Hz is 29 samples.
// Counts that are not finite or are negative give 0; counts above
// MaxSamples give MaxSamples+1.
func SampleCount(durationMs int, sampleRate float64) int {
	f := float64(durationMs) * sampleRate / 1000
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > MaxSamples:
		return MaxSamples + 1
	}
	return int(f)
}

// Waveform holds the per-axis galvo voltages of one stimulation
type Waveform struct {
	X []float64
	Y []float64
}

// Peak is the largest absolute voltage in the waveform
func (w Waveform) Peak() float64 {
	peak := 0.
	for _, s := range [][]float64{w.X, w.Y} {
		for _, v := range s {
			if a := math.Abs(v); a > peak || math.IsNaN(a) {
				peak = a
			}
		}
	}
	return peak
}

func constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// BuildWaveform computes n samples per axis for the pattern in p.
// The location is relative to the image center and assumes the beam is
// centered at 0 V.
func BuildWaveform(p Parameters, n int) (Waveform, error) {
	switch p.Pattern {
	case Point:
		return Waveform{
			X: constant(p.LocationX*p.XScalingFactor, n),
			Y: constant(p.LocationY*p.YScalingFactor, n),
		}, nil
	case Square, Circle:
		return Waveform{}, fmt.Errorf("%w: %s is not implemented", ErrUnsupportedPattern, p.Pattern)
	}
	return Waveform{}, fmt.Errorf("%w: %s", ErrUnsupportedPattern, p.Pattern)
}

// Len is the number of samples per channel
func (w Waveform) Len() int {
	return len(w.X)
}

// Interleaved returns the two axes as one buffer for a two channel task,
// x0, y0, x1, y1, ...
func (w Waveform) Interleaved() []float64 {
	out := make([]float64, 0, len(w.X)+len(w.Y))
	for i := range w.X {
		out = append(out, w.X[i], w.Y[i])
	}
	return out
}
