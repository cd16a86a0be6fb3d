package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/petems/spectrum-osc/internal/app"
	"github.com/petems/spectrum-osc/internal/audio"
	"github.com/petems/spectrum-osc/internal/config"
	"github.com/petems/spectrum-osc/internal/logging"
	"github.com/petems/spectrum-osc/internal/observe"
	"github.com/petems/spectrum-osc/internal/permissions"
	"github.com/petems/spectrum-osc/internal/session"
	"github.com/petems/spectrum-osc/internal/tray"
)

const (
	shutdownTimeout = 5 * time.Second
	reloadTimeout   = 10 * time.Second
)

// stack is everything a streaming command needs, torn down in reverse.
type stack struct {
	log     zerolog.Logger
	capture audio.Capture
	app     *app.App
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup []func()
}

func setup(cmd *cobra.Command, opts *options) (*stack, error) {
	cfg, load, err := resolve(cmd, opts)
	if err != nil {
		return nil, err
	}

	log := logging.NewWithLevel(cfg.LogLevel)
	s := &stack{log: log}

	// macOS requires explicit microphone approval before capture works
	if err := permissions.EnsureMicrophone(); err != nil {
		return nil, err
	}

	if cfg.MetricsAddr != "" {
		shutdown, err := observe.InitProvider(Version)
		if err != nil {
			return nil, err
		}
		s.cleanup = append(s.cleanup, func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("Metrics provider shutdown failed")
			}
		})
	}

	capture, err := audio.New()
	if err != nil {
		s.close()
		return nil, &session.SetupError{Resource: session.ResourceDevice, Err: err}
	}
	s.capture = capture
	s.cleanup = append(s.cleanup, func() {
		if err := capture.Close(); err != nil {
			log.Warn().Err(err).Msg("Audio shutdown failed")
		}
	})

	// Run is not started until s.app is set.
	ctrl := session.NewController(session.Options{
		Capture: capture,
		Logger:  log,
		Metrics: observe.DefaultMetrics(),
		OnFailure: func(err error) {
			s.app.SessionFailed(err)
		},
	})

	s.app = app.New(app.Config{
		Capture:    capture,
		Controller: ctrl,
		Config:     cfg,
		Logger:     log,
	})

	// The controller outlives signal handling so the app can stop cleanly.
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.group, s.ctx = errgroup.WithContext(s.ctx)

	s.group.Go(func() error {
		return ctrl.Run(s.ctx)
	})

	if cfg.MetricsAddr != "" {
		s.group.Go(func() error {
			return observe.Serve(s.ctx, cfg.MetricsAddr, log)
		})
	}

	if opts.watch {
		if err := os.MkdirAll(filepath.Dir(cfg.File()), 0755); err != nil {
			log.Warn().Err(err).Msg("Cannot create config directory")
		}
		s.group.Go(func() error {
			return config.Watch(s.ctx, cfg.File(), config.DefaultDebounce, func() {
				s.reload(load)
			})
		})
	}

	log.Info().
		Str("version", Version).
		Str("target", cfg.Target()).
		Bool("watch", opts.watch).
		Msg("spectrum-osc starting...")

	return s, nil
}

func (s *stack) reload(load func() (*config.Config, error)) {
	next, err := load()
	if err != nil {
		s.log.Warn().Err(err).Msg("Ignoring config change")
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, reloadTimeout)
	defer cancel()
	if err := s.app.Reload(ctx, next); err != nil {
		s.log.Error().Err(err).Msg("Reload failed")
	}
}

// wait stops the app, then the background goroutines, then releases
// resources.
func (s *stack) wait() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.app.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("Shutdown error")
	}

	s.cancel()
	err := s.group.Wait()
	s.close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *stack) close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
}

func runHeadless(cmd *cobra.Command, opts *options) error {
	s, err := setup(cmd, opts)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.app.Start(sigCtx); err != nil {
		s.log.Error().Err(err).Msg("Failed to start stream")
		s.wait()
		return err
	}

	select {
	case <-sigCtx.Done():
		s.log.Info().Msg("Shutting down...")
	case <-s.ctx.Done():
	}
	return s.wait()
}

func runTray(cmd *cobra.Command, opts *options) error {
	s, err := setup(cmd, opts)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui := tray.New(s.app, s.log, Version, Commit)
	s.app.SetStatusUpdater(ui)

	// Start tray UI - MUST run on main thread
	if err := ui.Run(sigCtx); err != nil {
		s.log.Error().Err(err).Msg("Tray error")
	}
	return s.wait()
}
