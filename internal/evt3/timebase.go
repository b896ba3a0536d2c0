package evt3

const (
	// MaxTimestampBase is the largest value a TIME_HIGH word can place in the
	// time base before the 12-bit counter wraps.
	MaxTimestampBase uint64 = ((1 << 12) - 1) << 12
	// TimeLoop is one full period of the 24-bit TIME_HIGH/TIME_LOW counter.
	TimeLoop uint64 = MaxTimestampBase + (1 << 12)
	// LoopThreshold is the backward jitter tolerated before a TIME_HIGH word is
	// treated as a wrap.
	LoopThreshold uint64 = 10 << 12
)

// timeBase reconstructs a monotonic 64-bit clock from TIME_HIGH and TIME_LOW.
type timeBase struct {
	base        uint64
	low         uint64
	current     uint64
	loops       uint64
	initialized bool
}

// high applies a TIME_HIGH payload. A large backward jump means the counter
// wrapped; a small one is jitter and moves the base back.
func (tb *timeBase) high(h uint16) {
	candidate := uint64(h)<<12 + tb.loops*TimeLoop
	if tb.base > candidate && tb.base-candidate >= MaxTimestampBase-LoopThreshold {
		candidate += TimeLoop
		tb.loops++
	}
	tb.base = candidate
	tb.current = tb.base
	tb.initialized = true
}

// lowWord applies a TIME_LOW payload on top of the current base.
func (tb *timeBase) lowWord(l uint16) {
	tb.low = uint64(l)
	tb.current = tb.base + tb.low
}
