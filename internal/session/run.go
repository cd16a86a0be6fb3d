package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petems/spectrum-osc/internal/audio"
	"github.com/petems/spectrum-osc/internal/dispatch"
	"github.com/petems/spectrum-osc/internal/frame"
	"github.com/petems/spectrum-osc/internal/observe"
	"github.com/petems/spectrum-osc/internal/spectrum"
	"github.com/petems/spectrum-osc/internal/transport"
)

// Stats are cumulative counters for one run.
type Stats struct {
	ChunksEnqueued uint64
	ChunksDropped  uint64
	FramesAnalyzed uint64
	BandsSent      uint64
	SendErrors     uint64
}

// run is one live capture session: the hardware stream, the hand-off queue,
// the worker and the transport endpoint. Only the worker touches acc and sender.
type run struct {
	cfg     Config
	neg     audio.Negotiated
	stream  audio.Stream
	sender  Sender
	queue   *handoff
	acc     *frame.Accumulator
	log     zerolog.Logger
	metrics *observe.Metrics

	frames     atomic.Uint64
	bandsSent  atomic.Uint64
	sendErrors atomic.Uint64

	// flushed counts already reported to metrics; worker only
	flushedEnqueued uint64
	flushedDropped  uint64

	cancel context.CancelFunc
	done   chan struct{}
	err    error // set by the worker before done is closed
}

func startRun(capture audio.Capture, dial DialFunc, cfg Config, log zerolog.Logger, metrics *observe.Metrics) (*run, error) {
	r := &run{
		cfg:     cfg,
		queue:   newHandoff(cfg.QueueCapacity, cfg.DropPolicy),
		acc:     frame.NewAccumulator(),
		metrics: metrics,
		done:    make(chan struct{}),
	}

	stream, neg, err := capture.Open(cfg.streamConfig(), r.onSamples)
	if err != nil {
		res := ResourceStream
		if errors.Is(err, audio.ErrDeviceNotFound) {
			res = ResourceDevice
		}
		return nil, &SetupError{Resource: res, Err: err}
	}
	r.stream = stream
	r.neg = neg
	r.log = log.With().
		Str("device", neg.Device).
		Int("sample_rate", neg.SampleRate).
		Int("channels", neg.Channels).
		Str("target", fmt.Sprintf("%s:%d", cfg.TargetHost, cfg.TargetPort)).
		Logger()

	if neg.SampleRate <= 0 {
		stream.Close()
		return nil, &SetupError{Resource: ResourceStream, Err: fmt.Errorf("device reported sample rate %d", neg.SampleRate)}
	}

	sender, err := dial(cfg.BindHost, cfg.TargetHost, cfg.TargetPort)
	if err != nil {
		stream.Close()
		return nil, &SetupError{Resource: ResourceTransport, Err: err}
	}
	r.sender = sender
	if la, ok := sender.(interface{ LocalAddr() net.Addr }); ok {
		r.log = r.log.With().Str("local", la.LocalAddr().String()).Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.work(ctx)

	if err := stream.Start(); err != nil {
		// Nothing was produced, so the worker sees an empty closed queue.
		stream.Close()
		r.queue.close()
		<-r.done
		cancel()
		sender.Close()
		return nil, &SetupError{Resource: ResourceStream, Err: err}
	}

	r.log.Info().Dur("latency", neg.Latency).Msg("Capture session running")
	return r, nil
}

// onSamples runs on the audio thread. The input buffer is reused by the
// driver, so it is copied before hand-off.
func (r *run) onSamples(in []float32) {
	chunk := make([]float32, len(in))
	copy(chunk, in)
	r.queue.offer(chunk)
}

func (r *run) work(ctx context.Context) {
	defer close(r.done)

	for chunk := range r.queue.ch {
		mono := audio.Downmix(chunk, r.neg.Channels)
		for _, f := range r.acc.Push(mono) {
			if err := r.process(ctx, f); err != nil {
				r.err = err
				r.flushQueueMetrics(ctx)
				return
			}
		}
		r.flushQueueMetrics(ctx)

		// Cancellation is observed between chunks, never mid-frame.
		if ctx.Err() != nil {
			return
		}
	}
}

// process runs one frame through analysis, banding and transport.
func (r *run) process(ctx context.Context, f []float32) error {
	start := time.Now()
	s, err := spectrum.Analyze(f, uint32(r.neg.SampleRate))
	if err != nil {
		return fmt.Errorf("analyze frame: %w", err)
	}
	r.frames.Add(1)
	if r.metrics != nil {
		r.metrics.AnalysisDuration.Record(ctx, time.Since(start).Seconds())
		r.metrics.FramesAnalyzed.Add(ctx, 1)
	}

	bands := dispatch.Encode(s.Truncate(r.cfg.MaxBins), r.cfg.BandWidth)

	// The in-flight frame is always sent in full, even if stop was requested.
	sendCtx := context.WithoutCancel(ctx)
	for _, b := range bands {
		if err := r.sender.Send(sendCtx, b); err != nil {
			r.sendErrors.Add(1)
			if r.metrics != nil {
				r.metrics.SendErrors.Add(ctx, 1)
			}
			if errors.Is(err, transport.ErrClosed) {
				return fmt.Errorf("send band %d: %w", b.Index, err)
			}
			r.log.Warn().Err(err).Int("band", b.Index).Msg("Send failed")
			continue
		}
		r.bandsSent.Add(1)
		if r.metrics != nil {
			r.metrics.BandsSent.Add(ctx, 1)
		}
	}
	return nil
}

func (r *run) flushQueueMetrics(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	if n := r.queue.enqueued.Load(); n > r.flushedEnqueued {
		r.metrics.ChunksEnqueued.Add(ctx, int64(n-r.flushedEnqueued))
		r.flushedEnqueued = n
	}
	if n := r.queue.dropped.Load(); n > r.flushedDropped {
		r.metrics.ChunksDropped.Add(ctx, int64(n-r.flushedDropped),
			metric.WithAttributes(attribute.String("policy", string(r.cfg.DropPolicy))))
		r.flushedDropped = n
	}
}

// stop halts the stream, lets the worker drain the queue and releases the
// endpoint. It is safe after the worker has already exited. If ctx expires
// while draining, the worker is cancelled after its current frame.
func (r *run) stop(ctx context.Context) error {
	var errs []error

	if err := r.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop stream: %w", err))
	}
	if err := r.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}

	r.queue.close()

	select {
	case <-r.done:
	case <-ctx.Done():
		r.cancel()
		r.log.Warn().Msg("Drain interrupted, worker cancelled")
		<-r.done
	}
	r.cancel()

	if n := len(r.acc.Residual()); n > 0 {
		r.log.Debug().Int("samples", n).Msg("Discarding partial frame")
	}
	r.flushQueueMetrics(context.Background())

	if err := r.sender.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}

	if dropped := r.queue.dropped.Load(); dropped > 0 {
		r.log.Warn().Uint64("dropped", dropped).Msg("Chunks dropped during session")
	}
	return errors.Join(errs...)
}

func (r *run) stats() Stats {
	return Stats{
		ChunksEnqueued: r.queue.enqueued.Load(),
		ChunksDropped:  r.queue.dropped.Load(),
		FramesAnalyzed: r.frames.Load(),
		BandsSent:      r.bandsSent.Load(),
		SendErrors:     r.sendErrors.Load(),
	}
}
