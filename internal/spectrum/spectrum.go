// Package spectrum computes Hann-windowed magnitude spectra of analysis frames.
package spectrum

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/petems/spectrum-osc/internal/frame"
)

// ErrFrameLength is returned when a frame does not hold exactly frame.FrameLen samples.
var ErrFrameLength = errors.New("frame length mismatch")

// Bin is one frequency slot of a spectrum.
type Bin struct {
	Frequency float32 // Hz
	Magnitude float32
}

// Spectrum holds one bin per FFT index from DC up to and including Nyquist.
type Spectrum struct {
	Bins []Bin
}

// Magnitudes returns the magnitude of every bin in order.
func (s Spectrum) Magnitudes() []float32 {
	out := make([]float32, len(s.Bins))
	for i, b := range s.Bins {
		out[i] = b.Magnitude
	}
	return out
}

// Truncate returns a spectrum limited to the first n bins. n <= 0 or
// n >= len(Bins) returns s unchanged.
func (s Spectrum) Truncate(n int) Spectrum {
	if n <= 0 || n >= len(s.Bins) {
		return s
	}
	return Spectrum{Bins: s.Bins[:n]}
}

// BinCount is the number of bins Analyze produces.
const BinCount = frame.FrameLen/2 + 1

var norm = 1 / math.Sqrt(frame.FrameLen)

// periodicHann is the DFT-even Hann window: 0.5 - 0.5cos(2*pi*n/L).
// window.Hann is the symmetric form, which divides by L-1.
func periodicHann(L int) []float64 {
	w := make([]float64, L)
	for n := range w {
		w[n] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(n)/float64(L))
	}
	return w
}

// Analyze applies a Hann window to f and returns its magnitude spectrum,
// scaled by 1/sqrt(FrameLen). Bin k sits at k*sampleRate/FrameLen Hz.
func Analyze(f []float32, sampleRate uint32) (Spectrum, error) {
	if len(f) != frame.FrameLen {
		return Spectrum{}, fmt.Errorf("%w: got %d samples, want %d", ErrFrameLength, len(f), frame.FrameLen)
	}

	x := make([]float64, frame.FrameLen)
	for i, v := range f {
		x[i] = float64(v)
	}
	window.Apply(x, periodicHann)

	coeffs := fft.FFTReal(x)

	bins := make([]Bin, BinCount)
	step := float64(sampleRate) / frame.FrameLen
	for k := range bins {
		bins[k] = Bin{
			Frequency: float32(float64(k) * step),
			Magnitude: float32(cmplx.Abs(coeffs[k]) * norm),
		}
	}

	return Spectrum{Bins: bins}, nil
}
