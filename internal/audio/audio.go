package audio

import (
	"errors"
	"time"
)

// ErrDeviceNotFound is returned when no input device matches the requested name.
var ErrDeviceNotFound = errors.New("device not found")

// Latency selects the device latency class requested when opening a stream.
type Latency string

const (
	LatencyLow  Latency = "low"
	LatencyHigh Latency = "high"
)

// Capture defines the interface for audio capture
type Capture interface {
	ListDevices() ([]AudioDevice, error)
	// Open resolves the device and opens an input stream. cb runs on the
	// audio subsystem's thread; the slice it receives is only valid for the
	// duration of the call.
	Open(cfg StreamConfig, cb func(in []float32)) (Stream, Negotiated, error)
	Close() error
}

// Stream is an opened hardware input stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	ID         string
	Name       string
	Default    bool
	Channels   int
	SampleRate float64
}

// StreamConfig is the requested stream shape. Zero values ask for the
// device's native setting.
type StreamConfig struct {
	DeviceID   string
	SampleRate int
	Channels   int
	Latency    Latency
}

// Negotiated is the stream shape the device actually granted.
type Negotiated struct {
	Device     string
	SampleRate int
	Channels   int
	Latency    time.Duration
}

// Downmix averages interleaved multi-channel samples into mono.
// Mono input is copied.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return downmixInterleaved(in, 1, len(in))
	}
	return downmixInterleaved(in, channels, len(in)/channels)
}

func downmixInterleaved(in []float32, channels, frames int) []float32 {
	out := make([]float32, frames)
	if channels == 1 {
		copy(out, in[:frames])
		return out
	}

	scale := 1 / float32(channels)
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += in[base+c]
		}
		out[i] = sum * scale
	}
	return out
}
