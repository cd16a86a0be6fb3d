package config

import (
	"fmt"
	"os"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
)

// fileConfig uses pointers so an explicit zero in the file (e.g. max_bins = 0)
// is told apart from an absent key.
type fileConfig struct {
	Device        *string `toml:"device"`
	SampleRate    *int    `toml:"sample_rate"`
	Channels      *int    `toml:"channels"`
	Latency       *string `toml:"latency"`
	BindHost      *string `toml:"bind_host"`
	TargetHost    *string `toml:"target_host"`
	TargetPort    *int    `toml:"target_port"`
	BandWidth     *int    `toml:"band_width"`
	MaxBins       *int    `toml:"max_bins"`
	QueueCapacity *int    `toml:"queue_capacity"`
	DropPolicy    *string `toml:"drop_policy"`
	LogLevel      *string `toml:"log_level"`
	MetricsAddr   *string `toml:"metrics_addr"`
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// BindFlags registers every option on fs, defaulting to the values in cfg.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Device, "device", cfg.Device, "capture device name (default: system input)")
	fs.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "sample rate in Hz (0 = device native)")
	fs.IntVar(&cfg.Channels, "channels", cfg.Channels, "input channels, down-mixed to mono (0 = device native)")
	fs.StringVar(&cfg.Latency, "latency", cfg.Latency, "device latency class: low or high")
	fs.StringVar(&cfg.BindHost, "bind", cfg.BindHost, "local address to send from")
	fs.StringVar(&cfg.TargetHost, "host", cfg.TargetHost, "OSC target host")
	fs.IntVar(&cfg.TargetPort, "port", cfg.TargetPort, "OSC target port")
	fs.IntVar(&cfg.BandWidth, "band-width", cfg.BandWidth, "bins per OSC message")
	fs.IntVar(&cfg.MaxBins, "max-bins", cfg.MaxBins, "highest bin sent (0 = all full bands)")
	fs.IntVar(&cfg.QueueCapacity, "queue", cfg.QueueCapacity, "pending chunks between audio thread and worker")
	fs.StringVar(&cfg.DropPolicy, "drop", cfg.DropPolicy, "chunk to drop when the queue is full: newest or oldest")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address (empty = off)")
}

// Changed returns the names of flags set on the command line.
func Changed(fs *pflag.FlagSet) map[string]bool {
	changed := map[string]bool{}
	fs.Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	return changed
}

// Resolve layers file and environment values under the flags in changed.
// Precedence: flags > SPECTRUM_OSC_* env > file > defaults.
func Resolve(cfg *Config, path string, changed map[string]bool) error {
	if path != "" {
		cfg.path = path
	}

	fc, err := readFile(cfg.path)
	switch {
	case err == nil:
		applyFile(cfg, fc, changed)
	case os.IsNotExist(err):
	default:
		return err
	}

	return applyEnv(cfg, changed)
}

type setter struct {
	changed map[string]bool
}

func (s setter) skip(flag string) bool {
	return s.changed[flag]
}

func (s setter) str(flag string, v *string, dst *string) {
	if v != nil && !s.skip(flag) {
		*dst = *v
	}
}

func (s setter) num(flag string, v *int, dst *int) {
	if v != nil && !s.skip(flag) {
		*dst = *v
	}
}

func applyFile(cfg *Config, fc fileConfig, changed map[string]bool) {
	s := setter{changed: changed}

	s.str("device", fc.Device, &cfg.Device)
	s.num("sample-rate", fc.SampleRate, &cfg.SampleRate)
	s.num("channels", fc.Channels, &cfg.Channels)
	s.str("latency", fc.Latency, &cfg.Latency)
	s.str("bind", fc.BindHost, &cfg.BindHost)
	s.str("host", fc.TargetHost, &cfg.TargetHost)
	s.num("port", fc.TargetPort, &cfg.TargetPort)
	s.num("band-width", fc.BandWidth, &cfg.BandWidth)
	s.num("max-bins", fc.MaxBins, &cfg.MaxBins)
	s.num("queue", fc.QueueCapacity, &cfg.QueueCapacity)
	s.str("drop", fc.DropPolicy, &cfg.DropPolicy)
	s.str("log-level", fc.LogLevel, &cfg.LogLevel)
	s.str("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
}

const envPrefix = "SPECTRUM_OSC_"

func applyEnv(cfg *Config, changed map[string]bool) error {
	s := setter{changed: changed}

	strs := []struct {
		flag, env string
		dst       *string
	}{
		{"device", "DEVICE", &cfg.Device},
		{"latency", "LATENCY", &cfg.Latency},
		{"bind", "BIND_HOST", &cfg.BindHost},
		{"host", "TARGET_HOST", &cfg.TargetHost},
		{"drop", "DROP_POLICY", &cfg.DropPolicy},
		{"log-level", "LOG_LEVEL", &cfg.LogLevel},
		{"metrics-addr", "METRICS_ADDR", &cfg.MetricsAddr},
	}
	for _, e := range strs {
		if v, ok := os.LookupEnv(envPrefix + e.env); ok {
			s.str(e.flag, &v, e.dst)
		}
	}

	ints := []struct {
		flag, env string
		dst       *int
	}{
		{"sample-rate", "SAMPLE_RATE", &cfg.SampleRate},
		{"channels", "CHANNELS", &cfg.Channels},
		{"port", "TARGET_PORT", &cfg.TargetPort},
		{"band-width", "BAND_WIDTH", &cfg.BandWidth},
		{"max-bins", "MAX_BINS", &cfg.MaxBins},
		{"queue", "QUEUE_CAPACITY", &cfg.QueueCapacity},
	}
	for _, e := range ints {
		raw, ok := os.LookupEnv(envPrefix + e.env)
		if !ok || raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s%s=%q: %w", envPrefix, e.env, raw, err)
		}
		s.num(e.flag, &n, e.dst)
	}

	return nil
}
