package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petems/spectrum-osc/internal/audio"
	"github.com/petems/spectrum-osc/internal/config"
	"github.com/petems/spectrum-osc/internal/session"
)

// ErrStreaming is returned when a setting cannot change mid-session.
var ErrStreaming = errors.New("cannot change while streaming")

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetStreaming()
	SetError()
}

type Config struct {
	Capture       audio.Capture
	Controller    *session.Controller
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

// App is the operator-facing surface over the capture session. It holds the
// editable settings; every start snapshots them into a new session.Config.
type App struct {
	capture audio.Capture
	ctrl    *session.Controller
	log     zerolog.Logger
	status  StatusUpdater

	mu  sync.Mutex
	cfg *config.Config
}

func New(cfg Config) *App {
	return &App{
		capture: cfg.Capture,
		ctrl:    cfg.Controller,
		cfg:     cfg.Config,
		log:     cfg.Logger,
		status:  cfg.StatusUpdater,
	}
}

// SetStatusUpdater attaches the tray after construction
func (a *App) SetStatusUpdater(s StatusUpdater) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

// Toggle starts streaming when idle and stops it when running.
func (a *App) Toggle(ctx context.Context) error {
	if a.IsStreaming() {
		return a.Stop(ctx)
	}
	return a.Start(ctx)
}

func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	sc := a.cfg.Session()
	a.mu.Unlock()

	a.log.Info().
		Str("device", deviceLabel(sc.Device)).
		Str("target", fmt.Sprintf("%s:%d", sc.TargetHost, sc.TargetPort)).
		Msg("Starting stream")

	if err := a.ctrl.Start(ctx, sc); err != nil {
		a.setError()
		return err
	}
	a.notify(func(s StatusUpdater) { s.SetStreaming() })
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info().Msg("Stopping stream")

	err := a.ctrl.Stop(ctx)
	if errors.Is(err, session.ErrNotRunning) {
		a.notify(func(s StatusUpdater) { s.SetIdle() })
		return err
	}

	st := a.ctrl.Status()
	a.log.Info().
		Uint64("frames", st.Stats.FramesAnalyzed).
		Uint64("bands_sent", st.Stats.BandsSent).
		Uint64("send_errors", st.Stats.SendErrors).
		Uint64("chunks_dropped", st.Stats.ChunksDropped).
		Msg("Stream stopped")

	if err != nil {
		a.setError()
		return err
	}
	a.notify(func(s StatusUpdater) { s.SetIdle() })
	return nil
}

// Reload replaces the settings. A running session is restarted so the new
// settings take effect; an idle one stays idle.
func (a *App) Reload(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()

	if !a.IsStreaming() {
		return nil
	}

	a.log.Info().Msg("Settings changed, restarting stream")
	if err := a.Stop(ctx); err != nil && !errors.Is(err, session.ErrNotRunning) {
		a.log.Warn().Err(err).Msg("Stop before restart reported errors")
	}
	return a.Start(ctx)
}

func (a *App) Shutdown(ctx context.Context) error {
	if !a.IsStreaming() {
		return nil
	}
	return a.Stop(ctx)
}

// SessionFailed is the controller's OnFailure hook. The session is already
// torn down; only the status needs to follow.
func (a *App) SessionFailed(err error) {
	a.log.Error().Err(err).Msg("Stream stopped unexpectedly")
	a.setError()
}

func (a *App) IsStreaming() bool {
	return a.ctrl.State() == session.Running
}

func (a *App) Status() session.Status {
	return a.ctrl.Status()
}

// Tray actions

func (a *App) SetDevice(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.IsStreaming() {
		return ErrStreaming
	}

	a.cfg.Device = id
	return config.Update(a.cfg.File(), func(c *config.Config) { c.Device = id })
}

func (a *App) SetTarget(host string, port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.IsStreaming() {
		return ErrStreaming
	}

	next := *a.cfg
	next.TargetHost = host
	next.TargetPort = port
	if err := next.Validate(); err != nil {
		return err
	}
	*a.cfg = next
	return config.Update(a.cfg.File(), func(c *config.Config) {
		c.TargetHost = host
		c.TargetPort = port
	})
}

// Target returns host:port of the configured destination.
func (a *App) Target() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Target()
}

// Device returns the configured device name; empty means system default.
func (a *App) Device() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Device
}

func (a *App) ListDevices() ([]audio.AudioDevice, error) {
	return a.capture.ListDevices()
}

func (a *App) setError() {
	a.notify(func(s StatusUpdater) { s.SetError() })
}

func (a *App) notify(fn func(StatusUpdater)) {
	a.mu.Lock()
	s := a.status
	a.mu.Unlock()
	if s != nil {
		fn(s)
	}
}

func deviceLabel(name string) string {
	if name == "" {
		return "(default)"
	}
	return name
}
