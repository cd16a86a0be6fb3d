package dispatch

import (
	"testing"

	"github.com/hypebeast/go-osc/osc"

	"github.com/petems/spectrum-osc/internal/frame"
	"github.com/petems/spectrum-osc/internal/spectrum"
)

func ramp(n int) spectrum.Spectrum {
	bins := make([]spectrum.Bin, n)
	for i := range bins {
		bins[i].Magnitude = float32(i)
	}
	return spectrum.Spectrum{Bins: bins}
}

func TestEncodeTilesWithoutGapOrOverlap(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		width int
		want  int
	}{
		{"exact fit", 1024, 256, 4},
		{"remainder dropped", 1025, 256, 4},
		{"narrow bands", 100, 7, 14},
		{"smaller than one band", 100, 256, 0},
		{"empty spectrum", 0, 256, 0},
		{"zero width", 100, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bands := Encode(ramp(tt.size), tt.width)
			if len(bands) != tt.want {
				t.Fatalf("expected %d bands, got %d", tt.want, len(bands))
			}

			next := float32(0)
			for i, b := range bands {
				if b.Index != i {
					t.Fatalf("band %d has index %d", i, b.Index)
				}
				if len(b.Values) != tt.width {
					t.Fatalf("band %d has %d values, want %d", i, len(b.Values), tt.width)
				}
				for _, v := range b.Values {
					if v != next {
						t.Fatalf("band %d: expected value %f, got %f", i, next, v)
					}
					next++
				}
			}
		})
	}
}

func TestEncodeSilentFrame(t *testing.T) {
	s, err := spectrum.Analyze(make([]float32, frame.FrameLen), 44100)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	bands := Encode(s, 256)
	if len(bands) != 4 {
		t.Fatalf("expected 4 bands, got %d", len(bands))
	}

	want := []string{"/fft/0", "/fft/1", "/fft/2", "/fft/3"}
	for i, b := range bands {
		if b.Address() != want[i] {
			t.Errorf("band %d: expected address %s, got %s", i, want[i], b.Address())
		}
		for _, v := range b.Values {
			if v != 0 {
				t.Fatalf("band %d: expected zero values, got %f", i, v)
			}
		}
	}
}

func TestBandWireFormat(t *testing.T) {
	b := Band{Index: 3, Values: []float32{0.25, 1.5, -2}}

	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	pkt, err := osc.ParsePacket(string(data))
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	msg, ok := pkt.(*osc.Message)
	if !ok {
		t.Fatalf("expected *osc.Message, got %T", pkt)
	}
	if msg.Address != "/fft/3" {
		t.Fatalf("expected address /fft/3, got %s", msg.Address)
	}
	if len(msg.Arguments) != len(b.Values) {
		t.Fatalf("expected %d arguments, got %d", len(b.Values), len(msg.Arguments))
	}
	for i, arg := range msg.Arguments {
		v, ok := arg.(float32)
		if !ok {
			t.Fatalf("argument %d: expected float32, got %T", i, arg)
		}
		if v != b.Values[i] {
			t.Fatalf("argument %d: expected %f, got %f", i, b.Values[i], v)
		}
	}
}
