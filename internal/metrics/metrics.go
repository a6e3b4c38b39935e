// Package metrics exposes Prometheus instrumentation for both codec
// directions. Every method is safe on a nil *Collector so elements can run
// without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Direction label values.
const (
	DirectionDecode = "decode"
	DirectionEncode = "encode"
)

// Collector holds the metric vectors registered on one registry.
type Collector struct {
	cellSubmits      *prometheus.CounterVec
	cellMerges       *prometheus.CounterVec
	producerWaits    *prometheus.CounterVec
	bufferingPercent prometheus.Gauge
	skippedBytes     prometheus.Counter
	framesDecoded    prometheus.Counter
	framesShown      prometheus.Counter
	lateFrames       prometheus.Counter
	pacingSleep      prometheus.Histogram
	pauseWaits       prometheus.Counter
	encodedUnits     prometheus.Counter
	encodedBytes     prometheus.Counter
	errors           *prometheus.CounterVec
	sessions         *prometheus.CounterVec
}

// New registers the collector on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		cellSubmits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shvideo_cell_submits_total",
			Help: "Units submitted to the frame buffer cell",
		}, []string{"direction"}),
		cellMerges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shvideo_cell_merges_total",
			Help: "Submits merged into an already pending unit",
		}, []string{"direction"}),
		producerWaits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shvideo_cell_producer_waits_total",
			Help: "Times the producer blocked on back-pressure",
		}, []string{"direction"}),
		bufferingPercent: f.NewGauge(prometheus.GaugeOpts{
			Name: "shvideo_buffering_percent",
			Help: "Last pre-buffering progress reported by the decode sink",
		}),
		skippedBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "shvideo_decode_skipped_bytes_total",
			Help: "Compressed bytes the decoder did not consume",
		}),
		framesDecoded: f.NewCounter(prometheus.CounterOpts{
			Name: "shvideo_decode_frames_total",
			Help: "Pictures produced by the decoder",
		}),
		framesShown: f.NewCounter(prometheus.CounterOpts{
			Name: "shvideo_display_frames_total",
			Help: "Pictures handed to the display",
		}),
		lateFrames: f.NewCounter(prometheus.CounterOpts{
			Name: "shvideo_pacing_late_frames_total",
			Help: "Frames that were due before they were decoded",
		}),
		pacingSleep: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "shvideo_pacing_sleep_seconds",
			Help:    "Time the pacing engine slept before showing a frame",
			Buckets: []float64{0, 0.001, 0.005, 0.01, 0.02, 0.033, 0.04, 0.08, 0.2, 1},
		}),
		pauseWaits: f.NewCounter(prometheus.CounterOpts{
			Name: "shvideo_pacing_pause_waits_total",
			Help: "Frames held at the pause gate",
		}),
		encodedUnits: f.NewCounter(prometheus.CounterOpts{
			Name: "shvideo_encode_units_total",
			Help: "Encoded units pushed downstream",
		}),
		encodedBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "shvideo_encode_bytes_total",
			Help: "Encoded bytes pushed downstream",
		}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shvideo_errors_total",
			Help: "Errors by direction and severity",
		}, []string{"direction", "severity"}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shvideo_sessions_total",
			Help: "Codec sessions by direction and outcome",
		}, []string{"direction", "result"}),
	}
}

// ObserveSubmit records one submit on the cell of a direction.
func (c *Collector) ObserveSubmit(direction string, merged, waited bool) {
	if c == nil {
		return
	}
	c.cellSubmits.WithLabelValues(direction).Inc()
	if merged {
		c.cellMerges.WithLabelValues(direction).Inc()
	}
	if waited {
		c.producerWaits.WithLabelValues(direction).Inc()
	}
}

// SetBuffering records the pre-buffering progress.
func (c *Collector) SetBuffering(percent int) {
	if c == nil {
		return
	}
	c.bufferingPercent.Set(float64(percent))
}

// AddSkippedBytes records partial consumption by the decoder.
func (c *Collector) AddSkippedBytes(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.skippedBytes.Add(float64(n))
}

// ObserveFrame records one decoded picture, its pacing sleep and whether it
// reached the display.
func (c *Collector) ObserveFrame(sleep time.Duration, late, shown bool) {
	if c == nil {
		return
	}
	c.framesDecoded.Inc()
	c.pacingSleep.Observe(sleep.Seconds())
	if late {
		c.lateFrames.Inc()
	}
	if shown {
		c.framesShown.Inc()
	}
}

// IncPauseWait records a frame held at the pause gate.
func (c *Collector) IncPauseWait() {
	if c == nil {
		return
	}
	c.pauseWaits.Inc()
}

// ObserveEncoded records one unit pushed downstream.
func (c *Collector) ObserveEncoded(size int) {
	if c == nil {
		return
	}
	c.encodedUnits.Inc()
	c.encodedBytes.Add(float64(size))
}

// IncError records an error with its severity label.
func (c *Collector) IncError(direction, severity string) {
	if c == nil {
		return
	}
	c.errors.WithLabelValues(direction, severity).Inc()
}

// IncSession records a session outcome ("ok", "failed", "aborted").
func (c *Collector) IncSession(direction, result string) {
	if c == nil {
		return
	}
	c.sessions.WithLabelValues(direction, result).Inc()
}
