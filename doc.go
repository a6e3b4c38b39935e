// Package shvideo is a streaming core for hardware video codecs.
//
// Two elements share one buffering and lifecycle model:
//
//   - DecodeSink takes a compressed elementary stream, pre-buffers it up to a
//     watermark, decodes on a dedicated driver goroutine and paces every
//     decoded picture to the stream clock before handing it to a Display.
//   - Encoder takes raw 4:2:0 frames, splits them into luma/chroma pairs
//     (interleaving chroma when the codec wants it), feeds the hardware
//     encoder one pair at a time and stamps the output n × frame duration.
//
// Hardware access is behind the collaborator interfaces in Decoder, Encoder,
// Display and Downstream. The internal/codec/sim package provides simulated
// implementations; internal/gstdisplay shows pictures through GStreamer.
//
// Lifecycle of a decode session:
//
//	New → SetCaps → Push… → EndOfStream → Close
//	            ↑ Play / Pause / SetClock at any time
//
// A sink starts paused unless DecodeConfig.Playing is set.
package shvideo
