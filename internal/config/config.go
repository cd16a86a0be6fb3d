package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/petems/spectrum-osc/internal/audio"
	"github.com/petems/spectrum-osc/internal/session"
)

type Config struct {
	Device     string `toml:"device"`
	SampleRate int    `toml:"sample_rate"` // 0 = device native
	Channels   int    `toml:"channels"`    // 0 = device native
	Latency    string `toml:"latency"`     // "low" or "high"

	BindHost   string `toml:"bind_host"`
	TargetHost string `toml:"target_host"`
	TargetPort int    `toml:"target_port"`

	BandWidth     int    `toml:"band_width"`
	MaxBins       int    `toml:"max_bins"` // 0 = no cutoff
	QueueCapacity int    `toml:"queue_capacity"`
	DropPolicy    string `toml:"drop_policy"` // "newest" or "oldest"

	LogLevel    string `toml:"log_level"`
	MetricsAddr string `toml:"metrics_addr"`

	path string
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Device:        "",
		SampleRate:    0,
		Channels:      0,
		Latency:       string(audio.LatencyLow),
		BindHost:      session.DefaultBindHost,
		TargetHost:    "127.0.0.1",
		TargetPort:    9000,
		BandWidth:     session.DefaultBandWidth,
		MaxBins:       session.DefaultMaxBins,
		QueueCapacity: session.DefaultQueueCapacity,
		DropPolicy:    string(session.DropNewest),
		LogLevel:      "info",
		path:          Path(),
	}
}

// Load reads the config from path (or the platform default when empty) on
// top of the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		cfg.path = path
	}

	fc, err := readFile(cfg.path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	applyFile(cfg, fc, nil)
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(c.path, data, 0644)
}

// Update applies edit to the file at path alone and saves it. Values that
// came from flags or the environment are never written back.
func Update(path string, edit func(*Config)) error {
	onDisk, err := Load(path)
	if err != nil {
		return err
	}
	edit(onDisk)
	return onDisk.Save()
}

// File returns the path the config was loaded from and saves to.
func (c *Config) File() string {
	return c.path
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("sample_rate must not be negative, got %d", c.SampleRate))
	}
	if c.Channels < 0 {
		errs = append(errs, fmt.Errorf("channels must not be negative, got %d", c.Channels))
	}
	switch audio.Latency(c.Latency) {
	case audio.LatencyLow, audio.LatencyHigh:
	default:
		errs = append(errs, fmt.Errorf("latency must be low or high, got %q", c.Latency))
	}
	if c.TargetHost == "" {
		errs = append(errs, errors.New("target_host is required"))
	}
	if c.TargetPort <= 0 || c.TargetPort > 65535 {
		errs = append(errs, fmt.Errorf("target_port must be 1-65535, got %d", c.TargetPort))
	}
	if c.BandWidth <= 0 {
		errs = append(errs, fmt.Errorf("band_width must be positive, got %d", c.BandWidth))
	}
	if c.MaxBins < 0 {
		errs = append(errs, fmt.Errorf("max_bins must not be negative, got %d", c.MaxBins))
	}
	if c.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("queue_capacity must be positive, got %d", c.QueueCapacity))
	}
	switch session.DropPolicy(c.DropPolicy) {
	case session.DropNewest, session.DropOldest:
	default:
		errs = append(errs, fmt.Errorf("drop_policy must be newest or oldest, got %q", c.DropPolicy))
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}

	return errors.Join(errs...)
}

// Session converts the config into an immutable session configuration.
func (c *Config) Session() session.Config {
	return session.Config{
		Device:        c.Device,
		SampleRate:    c.SampleRate,
		Channels:      c.Channels,
		Latency:       audio.Latency(c.Latency),
		BindHost:      c.BindHost,
		TargetHost:    c.TargetHost,
		TargetPort:    c.TargetPort,
		BandWidth:     c.BandWidth,
		MaxBins:       c.MaxBins,
		QueueCapacity: c.QueueCapacity,
		DropPolicy:    session.DropPolicy(c.DropPolicy),
	}
}

// Target returns host:port of the destination.
func (c *Config) Target() string {
	return fmt.Sprintf("%s:%d", c.TargetHost, c.TargetPort)
}

// Path returns the platform-specific config file path
func Path() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "spectrum-osc", "config.toml")
}
