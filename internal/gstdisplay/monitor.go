package gstdisplay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/shvideo/internal/codec"
)

// busError is a pipeline error message with its classification.
type busError struct {
	message  string
	debug    string
	severity codec.Severity
}

func (e *busError) Error() string {
	return fmt.Sprintf("gst-display: pipeline error [%s]: %s", e.severity, e.message)
}

// Unwrap lets codec.Classify and errors.Is see fatal bus errors as hardware
// failures.
func (e *busError) Unwrap() error {
	if e.severity == codec.SeverityFatal {
		return codec.ErrHardware
	}
	return nil
}

// classifyBusError maps GStreamer error text onto codec severities. Missing
// elements, negotiation and device failures end the session; anything else
// costs a frame.
func classifyBusError(message, debug string) codec.Severity {
	combined := strings.ToLower(message + " " + debug)
	for _, kw := range []string{
		"not negotiated",
		"not-negotiated",
		"negotiation",
		"missing plugin",
		"no such element",
		"could not open",
		"device",
		"resource",
		"output window was closed",
	} {
		if strings.Contains(combined, kw) {
			return codec.SeverityFatal
		}
	}
	return codec.Classify(errors.New(combined))
}

// monitorBus polls the pipeline bus until ctx is cancelled, the pipeline
// posts end of stream, or a fatal error arrives. Every error is handed to
// report; non-fatal ones do not stop monitoring.
func monitorBus(ctx context.Context, pipeline *gst.Pipeline, report func(*busError)) {
	bus := pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("gst-display: context cancelled, stopping bus monitor")
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Debug("gst-display: end of stream on bus")
			return

		case gst.MessageError:
			gerr := msg.ParseError()
			be := &busError{message: gerr.Error(), debug: gerr.DebugString()}
			be.severity = classifyBusError(be.message, be.debug)
			slog.Error("gst-display: pipeline error",
				"error", be.message,
				"debug", be.debug,
				"severity", be.severity.String(),
			)
			report(be)
			if be.severity == codec.SeverityFatal {
				return
			}

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				old, new := msg.ParseStateChanged()
				slog.Debug("gst-display: pipeline state changed", "from", old, "to", new)
			}
		}
	}
}
