package session

import (
	"context"
	"encoding"
	"errors"
	"fmt"

	"github.com/petems/spectrum-osc/internal/audio"
	"github.com/petems/spectrum-osc/internal/transport"
)

// DropPolicy decides which chunk is discarded when the hand-off queue is full.
type DropPolicy string

const (
	DropNewest DropPolicy = "newest"
	DropOldest DropPolicy = "oldest"
)

const (
	DefaultBandWidth     = 256
	DefaultMaxBins       = 1024
	DefaultQueueCapacity = 16
	DefaultBindHost      = "0.0.0.0"
)

// Config is fixed for the lifetime of one session run. Starting with a
// different target or device requires a new Config and a new run.
type Config struct {
	Device     string
	SampleRate int
	Channels   int
	Latency    audio.Latency

	BindHost   string
	TargetHost string
	TargetPort int

	// BandWidth is the number of bins per outbound message.
	BandWidth int
	// MaxBins cuts the spectrum before banding; 0 sends every full band.
	MaxBins int

	QueueCapacity int
	DropPolicy    DropPolicy
}

func (c Config) withDefaults() Config {
	if c.BindHost == "" {
		c.BindHost = DefaultBindHost
	}
	if c.BandWidth == 0 {
		c.BandWidth = DefaultBandWidth
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.DropPolicy == "" {
		c.DropPolicy = DropNewest
	}
	if c.Latency == "" {
		c.Latency = audio.LatencyLow
	}
	return c
}

func (c Config) validate() error {
	var errs []error
	if c.TargetHost == "" {
		errs = append(errs, errors.New("target host is required"))
	}
	if c.TargetPort <= 0 || c.TargetPort > 65535 {
		errs = append(errs, fmt.Errorf("target port %d out of range", c.TargetPort))
	}
	if c.BandWidth < 0 {
		errs = append(errs, fmt.Errorf("band width %d must be positive", c.BandWidth))
	}
	if c.MaxBins < 0 {
		errs = append(errs, fmt.Errorf("max bins %d must not be negative", c.MaxBins))
	}
	if c.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("queue capacity %d must be positive", c.QueueCapacity))
	}
	switch c.DropPolicy {
	case DropNewest, DropOldest:
	default:
		errs = append(errs, fmt.Errorf("unknown drop policy %q", c.DropPolicy))
	}
	return errors.Join(errs...)
}

func (c Config) streamConfig() audio.StreamConfig {
	return audio.StreamConfig{
		DeviceID:   c.Device,
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
		Latency:    c.Latency,
	}
}

// Sender delivers encoded packets to the session's target.
type Sender interface {
	Send(ctx context.Context, pkt encoding.BinaryMarshaler) error
	Close() error
}

// DialFunc opens a Sender bound on bindHost and connected to host:port.
type DialFunc func(bindHost, host string, port int) (Sender, error)

// DialUDP is the default DialFunc.
func DialUDP(bindHost, host string, port int) (Sender, error) {
	ep, err := transport.Dial(bindHost, host, port)
	if err != nil {
		return nil, err
	}
	return ep, nil
}
