package cell

// Flow is the watermark policy applied to the pending batch.
//
// Watermark is in bytes; zero disables pre-buffering (every unit is released
// as soon as it is present and the producer never blocks).
type Flow struct {
	Watermark int
	Draining  bool
}

// Enabled reports whether pre-buffering is active.
func (f Flow) Enabled() bool {
	return f.Watermark > 0
}

// Ready reports whether a batch of n bytes may be handed to the consumer.
func (f Flow) Ready(n int) bool {
	if n == 0 {
		return false
	}
	return !f.Enabled() || n >= f.Watermark || f.Draining
}

// Full reports whether a batch of n bytes must not grow further while a
// consumer is active.
func (f Flow) Full(n int) bool {
	return f.Enabled() && n >= f.Watermark
}

// Percent is the pre-buffering progress for n pending bytes, saturating at
// 100. Always 100 when pre-buffering is disabled.
func (f Flow) Percent(n int) int {
	if !f.Enabled() {
		return 100
	}
	p := int(int64(n) * 100 / int64(f.Watermark))
	return min(p, 100)
}

// Progress is returned by Submit.
type Progress struct {
	// Percent is the pre-buffering progress after this submit.
	Percent int
	// StartConsumer is set for exactly one submit: the one that performed the
	// Idle→Starting transition. The caller must start the driver.
	StartConsumer bool
	// Merged is set when the unit was appended to an existing batch.
	Merged bool
	// Waited is set when the producer blocked on back-pressure.
	Waited bool
}
