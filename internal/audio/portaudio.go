package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// maxChannels caps the channel count requested from multi-channel interfaces.
const maxChannels = 2

type portAudioCapture struct{}

// New initializes PortAudio and returns a Capture backed by it
func New() (Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioCapture{}, nil
}

func (p *portAudioCapture) Open(cfg StreamConfig, cb func(in []float32)) (Stream, Negotiated, error) {
	device, err := findDevice(cfg.DeviceID)
	if err != nil {
		return nil, Negotiated{}, err
	}

	channels := cfg.Channels
	if channels <= 0 || channels > device.MaxInputChannels {
		channels = device.MaxInputChannels
	}
	if channels > maxChannels {
		channels = maxChannels
	}

	sampleRate := float64(cfg.SampleRate)
	if sampleRate <= 0 {
		sampleRate = device.DefaultSampleRate
	}

	latency := device.DefaultLowInputLatency
	if cfg.Latency == LatencyHigh {
		latency = device.DefaultHighInputLatency
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  latency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
	}, cb)
	if err != nil {
		return nil, Negotiated{}, fmt.Errorf("failed to open audio stream on %q: %w", device.Name, err)
	}

	neg := Negotiated{
		Device:     device.Name,
		SampleRate: int(sampleRate),
		Channels:   channels,
		Latency:    latency,
	}
	if info := stream.Info(); info != nil {
		neg.SampleRate = int(info.SampleRate)
		neg.Latency = info.InputLatency
	}

	return stream, neg, nil
}

func findDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == deviceID && d.MaxInputChannels > 0 {
			return d, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
}

func (p *portAudioCapture) ListDevices() ([]AudioDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, AudioDevice{
				ID:         d.Name,
				Name:       d.Name,
				Default:    d == defaultDevice,
				Channels:   d.MaxInputChannels,
				SampleRate: d.DefaultSampleRate,
			})
		}
	}

	return result, nil
}

func (p *portAudioCapture) Close() error {
	return portaudio.Terminate()
}
