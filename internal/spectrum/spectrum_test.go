package spectrum

import (
	"errors"
	"math"
	"testing"

	"github.com/petems/spectrum-osc/internal/frame"
)

func TestAnalyzeSilence(t *testing.T) {
	s, err := Analyze(make([]float32, frame.FrameLen), 44100)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	for k, b := range s.Bins {
		if b.Magnitude != 0 {
			t.Fatalf("bin %d: expected magnitude 0, got %f", k, b.Magnitude)
		}
	}
}

func TestAnalyzeBinLayout(t *testing.T) {
	const rate = 48000
	s, err := Analyze(make([]float32, frame.FrameLen), rate)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(s.Bins) != frame.FrameLen/2+1 {
		t.Fatalf("expected %d bins, got %d", frame.FrameLen/2+1, len(s.Bins))
	}
	for k, b := range s.Bins {
		want := float32(float64(k) * rate / frame.FrameLen)
		if b.Frequency != want {
			t.Fatalf("bin %d: expected frequency %f, got %f", k, want, b.Frequency)
		}
	}
	if last := s.Bins[len(s.Bins)-1].Frequency; last != rate/2 {
		t.Fatalf("expected last bin at Nyquist %d, got %f", rate/2, last)
	}
}

func TestAnalyzeRejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 1, frame.FrameLen - 1, frame.FrameLen + 1} {
		_, err := Analyze(make([]float32, n), 44100)
		if !errors.Is(err, ErrFrameLength) {
			t.Fatalf("length %d: expected ErrFrameLength, got %v", n, err)
		}
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	f := sine(1000, 44100, 0.5)

	a, err := Analyze(f, 44100)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	b, err := Analyze(f, 44100)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	for k := range a.Bins {
		if math.Float32bits(a.Bins[k].Magnitude) != math.Float32bits(b.Bins[k].Magnitude) {
			t.Fatalf("bin %d differs between runs: %v vs %v", k, a.Bins[k].Magnitude, b.Bins[k].Magnitude)
		}
	}
}

func TestAnalyzePeakAtToneFrequency(t *testing.T) {
	const rate = 44100
	// Centre the tone on bin 100 so leakage stays in the neighbours.
	freq := 100.0 * rate / frame.FrameLen
	s, err := Analyze(sine(freq, rate, 1), rate)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	peak := 0
	for k, b := range s.Bins {
		if b.Magnitude > s.Bins[peak].Magnitude {
			peak = k
		}
	}
	if peak != 100 {
		t.Fatalf("expected peak at bin 100, got %d", peak)
	}
}

func TestTruncate(t *testing.T) {
	s := Spectrum{Bins: make([]Bin, 10)}

	tests := []struct {
		n    int
		want int
	}{
		{0, 10},
		{-1, 10},
		{4, 4},
		{10, 10},
		{20, 10},
	}
	for _, tt := range tests {
		if got := len(s.Truncate(tt.n).Bins); got != tt.want {
			t.Errorf("Truncate(%d): expected %d bins, got %d", tt.n, tt.want, got)
		}
	}
}

func sine(freq, rate, amp float64) []float32 {
	out := make([]float32, frame.FrameLen)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return out
}

func TestPeriodicHann(t *testing.T) {
	w := periodicHann(frame.FrameLen)

	if w[0] != 0 {
		t.Errorf("expected w[0] = 0, got %v", w[0])
	}
	if math.Abs(w[frame.FrameLen/2]-1) > 1e-12 {
		t.Errorf("expected peak of 1 at L/2, got %v", w[frame.FrameLen/2])
	}
	// The periodic form does not return to zero at the last sample.
	if w[frame.FrameLen-1] < 1e-6 {
		t.Errorf("expected non-zero last sample, got %v", w[frame.FrameLen-1])
	}
	for n := 1; n < frame.FrameLen/2; n++ {
		if math.Abs(w[n]-w[frame.FrameLen-n]) > 1e-12 {
			t.Fatalf("expected w[%d] == w[%d], got %v and %v", n, frame.FrameLen-n, w[n], w[frame.FrameLen-n])
		}
	}
}

func TestAnalyzeConstantOnlyTouchesFirstTwoBins(t *testing.T) {
	f := make([]float32, frame.FrameLen)
	for i := range f {
		f[i] = 1
	}

	s, err := Analyze(f, 44100)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	root := math.Sqrt(frame.FrameLen)
	if got := float64(s.Bins[0].Magnitude); math.Abs(got-root/2) > 1e-3 {
		t.Errorf("bin 0: expected %v, got %v", root/2, got)
	}
	if got := float64(s.Bins[1].Magnitude); math.Abs(got-root/4) > 1e-3 {
		t.Errorf("bin 1: expected %v, got %v", root/4, got)
	}
	for k := 2; k < len(s.Bins); k++ {
		if s.Bins[k].Magnitude > 1e-4 {
			t.Fatalf("bin %d: expected no leakage, got %v", k, s.Bins[k].Magnitude)
		}
	}
}
