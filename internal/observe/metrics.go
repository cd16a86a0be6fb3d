// Package observe provides the OpenTelemetry metric instruments for the
// capture pipeline and a Prometheus bridge for scraping them.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/petems/spectrum-osc"

// Metrics holds the instruments recorded by the capture session.
type Metrics struct {
	// ChunksEnqueued counts sample chunks accepted by the hand-off queue.
	ChunksEnqueued metric.Int64Counter

	// ChunksDropped counts chunks discarded because the queue was full. Use with
	//   attribute.String("policy", ...)
	ChunksDropped metric.Int64Counter

	FramesAnalyzed metric.Int64Counter
	BandsSent      metric.Int64Counter

	// SendErrors counts failed band sends; the pipeline keeps running.
	SendErrors metric.Int64Counter

	// SetupFailures counts failed session starts. Use with
	//   attribute.String("resource", ...)
	SetupFailures metric.Int64Counter

	// AnalysisDuration tracks window+FFT time per frame.
	AnalysisDuration metric.Float64Histogram

	ActiveSessions metric.Int64UpDownCounter
}

var analysisBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ChunksEnqueued, err = m.Int64Counter("spectrum_osc.chunks.enqueued",
		metric.WithDescription("Sample chunks accepted by the hand-off queue."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("spectrum_osc.chunks.dropped",
		metric.WithDescription("Sample chunks dropped because the hand-off queue was full."),
	); err != nil {
		return nil, err
	}
	if met.FramesAnalyzed, err = m.Int64Counter("spectrum_osc.frames.analyzed",
		metric.WithDescription("Analysis frames transformed into spectra."),
	); err != nil {
		return nil, err
	}
	if met.BandsSent, err = m.Int64Counter("spectrum_osc.bands.sent",
		metric.WithDescription("Band messages written to the transport."),
	); err != nil {
		return nil, err
	}
	if met.SendErrors, err = m.Int64Counter("spectrum_osc.send.errors",
		metric.WithDescription("Band messages that failed to send."),
	); err != nil {
		return nil, err
	}
	if met.SetupFailures, err = m.Int64Counter("spectrum_osc.setup.failures",
		metric.WithDescription("Session starts that failed, by resource."),
	); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = m.Float64Histogram("spectrum_osc.analysis.duration",
		metric.WithDescription("Latency of windowing and FFT for one frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(analysisBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("spectrum_osc.active_sessions",
		metric.WithDescription("Number of running capture sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level Metrics built on the global meter
// provider. Tests should use NewMetrics with their own provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
