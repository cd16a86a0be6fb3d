// Package session implements the capture session: the real-time callback,
// the bounded hand-off queue, the analysis worker and the start/stop state
// machine that owns them.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petems/spectrum-osc/internal/audio"
	"github.com/petems/spectrum-osc/internal/observe"
)

// Options configures a Controller.
type Options struct {
	Capture audio.Capture
	Dial    DialFunc // defaults to DialUDP
	Logger  zerolog.Logger
	Metrics *observe.Metrics // optional

	// OnFailure is called from Run after a session tore itself down because
	// its worker failed. It must not call Start or Stop synchronously.
	OnFailure func(error)
}

// Status is a snapshot of the controller.
type Status struct {
	State      State
	Config     Config
	Negotiated audio.Negotiated
	Stats      Stats
	// LastError is the cause of the most recent failed start or
	// unexpected session teardown.
	LastError error
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
)

type command struct {
	kind  commandKind
	ctx   context.Context
	cfg   Config
	reply chan error
}

// Controller is the single authority over the capture session. Start and
// Stop are sent as commands to the loop in Run; nothing else mutates session
// state. At most one session is live at a time.
type Controller struct {
	capture audio.Capture
	dial    DialFunc
	log     zerolog.Logger
	metrics *observe.Metrics
	onFail  func(error)

	cmds    chan command
	stopped chan struct{}

	// owned by the Run goroutine
	current *run

	mu       sync.RWMutex
	snapshot Status
	live     *run
}

// NewController creates a controller. Call Run to start processing commands.
func NewController(opts Options) *Controller {
	dial := opts.Dial
	if dial == nil {
		dial = DialUDP
	}
	return &Controller{
		capture: opts.Capture,
		dial:    dial,
		log:     opts.Logger,
		metrics: opts.Metrics,
		onFail:  opts.OnFailure,
		cmds:    make(chan command),
		stopped: make(chan struct{}),
	}
}

// Run processes commands until ctx is cancelled, then stops any live session.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)

	for {
		var workerDone <-chan struct{}
		if c.current != nil {
			workerDone = c.current.done
		}

		select {
		case <-ctx.Done():
			if c.current != nil {
				c.stopCurrent(context.Background())
			}
			return ctx.Err()

		case cmd := <-c.cmds:
			switch cmd.kind {
			case cmdStart:
				cmd.reply <- c.handleStart(cmd.cfg)
			case cmdStop:
				cmd.reply <- c.handleStop(cmd.ctx)
			}

		case <-workerDone:
			c.handleWorkerExit()
		}
	}
}

// Start begins a capture session with cfg. It fails with ErrAlreadyRunning
// if a session is live, or with a *SetupError naming the resource that could
// not be acquired; in both cases no new session is left running.
func (c *Controller) Start(ctx context.Context, cfg Config) error {
	return c.do(ctx, command{kind: cmdStart, cfg: cfg})
}

// Stop ends the live session. The worker finishes the queued audio before
// the transport is released, unless ctx expires first.
func (c *Controller) Stop(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdStop, ctx: ctx})
}

// Status returns the current state and counters.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := c.snapshot
	if c.live != nil {
		st.Stats = c.live.stats()
	}
	return st
}

// State is shorthand for Status().State.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.State
}

func (c *Controller) do(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	if cmd.ctx == nil {
		cmd.ctx = ctx
	}

	select {
	case c.cmds <- cmd:
	case <-c.stopped:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) handleStart(cfg Config) error {
	if c.current != nil {
		return ErrAlreadyRunning
	}

	cfg = cfg.withDefaults()
	c.publish(func(s *Status) {
		*s = Status{State: Starting, Config: cfg}
	})

	if err := cfg.validate(); err != nil {
		return c.failStart(&SetupError{Resource: ResourceConfig, Err: err})
	}

	r, err := startRun(c.capture, c.dial, cfg, c.log, c.metrics)
	if err != nil {
		return c.failStart(err)
	}

	c.current = r
	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	c.publish(func(s *Status) {
		s.State = Running
		s.Negotiated = r.neg
		s.LastError = nil
	}, r)
	return nil
}

func (c *Controller) failStart(err error) error {
	c.log.Error().Err(err).Msg("Failed to start capture session")

	var se *SetupError
	if c.metrics != nil && errors.As(err, &se) {
		c.metrics.SetupFailures.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("resource", se.Resource)))
	}

	c.publish(func(s *Status) {
		s.State = Failed
		s.LastError = err
	})
	c.publish(func(s *Status) {
		s.State = Idle
	})
	return err
}

func (c *Controller) handleStop(ctx context.Context) error {
	if c.current == nil {
		return ErrNotRunning
	}
	// The worker may have failed before Run saw its done channel.
	select {
	case <-c.current.done:
		c.handleWorkerExit()
		return ErrNotRunning
	default:
	}
	return c.stopCurrent(ctx)
}

func (c *Controller) stopCurrent(ctx context.Context) error {
	r := c.current
	c.publish(func(s *Status) { s.State = Stopping }, r)

	err := r.stop(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Capture session stopped with errors")
	} else {
		c.log.Info().Msg("Capture session stopped")
	}

	c.teardown(r, nil)
	return err
}

// handleWorkerExit tears down a session whose worker quit on its own.
func (c *Controller) handleWorkerExit() {
	r := c.current
	cause := r.err
	if cause == nil {
		cause = errors.New("worker exited unexpectedly")
	}
	c.log.Error().Err(cause).Msg("Capture session failed")

	if err := r.stop(context.Background()); err != nil {
		c.log.Warn().Err(err).Msg("Teardown after failure reported errors")
	}
	c.teardown(r, cause)
	if c.onFail != nil {
		c.onFail(cause)
	}
}

func (c *Controller) teardown(r *run, cause error) {
	c.current = nil
	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	}

	final := r.stats()
	c.publish(func(s *Status) {
		s.State = Idle
		s.Stats = final
		if cause != nil {
			s.LastError = cause
		}
	})
}

// publish updates the snapshot read by Status. live is the run whose counters
// Status should read, if any.
func (c *Controller) publish(update func(*Status), live ...*run) {
	c.mu.Lock()
	defer c.mu.Unlock()

	update(&c.snapshot)
	c.live = nil
	if len(live) > 0 {
		c.live = live[0]
	}
}
