package pacing

import (
	"math"
	"time"
)

const (
	defaultWindowSize = 256

	// fpsStabilityThreshold: playback is smooth if the FPS stddev stays
	// below 15% of the mean FPS.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold: playback is smooth if the mean deviation from
	// the nominal frame interval stays below 20% of it.
	jitterStabilityThreshold = 0.20
)

// PlaybackStats describes how regularly frames reached the display.
type PlaybackStats struct {
	FramesShown int
	Span        time.Duration
	FPSMean     float64
	FPSStdDev   float64
	FPSMin      float64
	FPSMax      float64
	// Jitter is measured against the nominal frame interval, in seconds.
	JitterMean   float64
	JitterStdDev float64
	JitterMax    float64
	IsSmooth     bool
}

// Window is a bounded ring of display instants. Not safe for concurrent use;
// the Pacer guards it.
type Window struct {
	times    []time.Time
	next     int
	count    int
	interval time.Duration
}

// NewWindow keeps the last size instants. interval is the nominal frame
// interval used for jitter; zero falls back to the measured mean.
func NewWindow(size int, interval time.Duration) *Window {
	if size < 2 {
		size = 2
	}
	return &Window{times: make([]time.Time, size), interval: interval}
}

// Add records one display instant.
func (w *Window) Add(t time.Time) {
	w.times[w.next] = t
	w.next = (w.next + 1) % len(w.times)
	if w.count < len(w.times) {
		w.count++
	}
}

// Len is the number of instants held.
func (w *Window) Len() int { return w.count }

// ordered returns the instants oldest first.
func (w *Window) ordered() []time.Time {
	out := make([]time.Time, 0, w.count)
	start := (w.next - w.count + len(w.times)) % len(w.times)
	for i := 0; i < w.count; i++ {
		out = append(out, w.times[(start+i)%len(w.times)])
	}
	return out
}

// Stats computes playback statistics over the window. Nil with fewer than two
// instants.
func (w *Window) Stats() *PlaybackStats {
	return CalculatePlaybackStats(w.ordered(), w.interval)
}

// CalculatePlaybackStats derives FPS and jitter figures from display instants.
//
//  1. Mean FPS over the whole span
//  2. Instantaneous FPS per interval, with min/max/stddev
//  3. Jitter: |interval − nominal| per interval, mean/stddev/max
//  4. Smooth when FPS stddev < 15% of mean and jitter < 20% of nominal
func CalculatePlaybackStats(times []time.Time, nominal time.Duration) *PlaybackStats {
	n := len(times)
	if n < 2 {
		return nil
	}

	span := times[n-1].Sub(times[0])
	st := &PlaybackStats{FramesShown: n, Span: span}
	if span <= 0 {
		return st
	}
	st.FPSMean = float64(n-1) / span.Seconds()

	expected := nominal.Seconds()
	if expected <= 0 {
		expected = 1.0 / st.FPSMean
	}

	var fps, jitter []float64
	for i := 1; i < n; i++ {
		iv := times[i].Sub(times[i-1]).Seconds()
		jitter = append(jitter, math.Abs(iv-expected))
		if iv > 0 {
			fps = append(fps, 1.0/iv)
		}
	}

	if len(fps) > 0 {
		st.FPSMin, st.FPSMax = fps[0], fps[0]
		for _, f := range fps {
			st.FPSMin = math.Min(st.FPSMin, f)
			st.FPSMax = math.Max(st.FPSMax, f)
		}
		st.FPSStdDev = stddev(fps, st.FPSMean)
	}

	for _, j := range jitter {
		st.JitterMean += j
		st.JitterMax = math.Max(st.JitterMax, j)
	}
	st.JitterMean /= float64(len(jitter))
	st.JitterStdDev = stddev(jitter, st.JitterMean)

	st.IsSmooth = st.FPSStdDev < st.FPSMean*fpsStabilityThreshold &&
		st.JitterMean < expected*jitterStabilityThreshold
	return st
}

func stddev(xs []float64, mean float64) float64 {
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}
