package codec

import (
	"errors"
	"strings"
)

// Sentinel errors shared by both directions. Callers wrap them with context
// and test with errors.Is.
var (
	// ErrSessionOpen rejects renegotiation while a codec session is open.
	ErrSessionOpen = errors.New("codec session already open")
	// ErrNotNegotiated is returned for data before caps, or for caps out of range.
	ErrNotNegotiated = errors.New("not negotiated")
	// ErrUnsupportedFormat is returned for an unknown media type or format name.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrFrameSize is returned when a raw frame does not match the negotiated geometry.
	ErrFrameSize = errors.New("frame size mismatch")
	// ErrClosed is returned by operations on an aborted session.
	ErrClosed = errors.New("session closed")
	// ErrEndOfStream is returned by Push after end of stream.
	ErrEndOfStream = errors.New("end of stream")
	// ErrStreaming rejects configuration that is only allowed before streaming starts.
	ErrStreaming = errors.New("already streaming")
	// ErrHardware marks failures reported by the codec or display device.
	ErrHardware = errors.New("hardware failure")
)

// Severity classifies errors for telemetry and for the decision whether a
// session can continue.
type Severity int

const (
	// SeverityFatal aborts the session (setup failures, bad frame geometry).
	SeverityFatal Severity = iota
	// SeverityNonFatal is logged and counted; streaming continues.
	SeverityNonFatal
	// SeverityFlow is a normal flow outcome (end of stream, shutdown).
	SeverityFlow
	// SeverityUnknown is anything not produced by this module.
	SeverityUnknown
)

func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "fatal"
	case SeverityNonFatal:
		return "non_fatal"
	case SeverityFlow:
		return "flow"
	default:
		return "unknown"
	}
}

// Classify maps an error to its severity. Errors from collaborators that do
// not wrap a sentinel fall back to message heuristics, as device drivers tend
// to report plain strings.
func Classify(err error) Severity {
	switch {
	case err == nil:
		return SeverityUnknown
	case errors.Is(err, ErrEndOfStream), errors.Is(err, ErrClosed):
		return SeverityFlow
	case errors.Is(err, ErrSessionOpen), errors.Is(err, ErrStreaming):
		return SeverityNonFatal
	case errors.Is(err, ErrNotNegotiated), errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrFrameSize), errors.Is(err, ErrHardware):
		return SeverityFatal
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"open", "probe", "init", "alloc", "config"} {
		if strings.Contains(msg, kw) {
			return SeverityFatal
		}
	}
	for _, kw := range []string{"decode", "corrupt", "bitstream", "slice"} {
		if strings.Contains(msg, kw) {
			return SeverityNonFatal
		}
	}
	return SeverityUnknown
}
