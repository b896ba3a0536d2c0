package evt3

import "fmt"

// FilterTime returns the events with t0 < Timestamp < tend, preserving order.
func FilterTime(events []Event, t0, tend uint64) ([]Event, error) {
	if t0 > tend {
		return nil, fmt.Errorf("%w: t0=%d tend=%d", ErrInvalidRange, t0, tend)
	}
	out := make([]Event, 0, len(events)/4)
	for _, ev := range events {
		if ev.Timestamp > t0 && ev.Timestamp < tend {
			out = append(out, ev)
		}
	}
	return out, nil
}

// TimeRange recomputes the (min, max) timestamp bounds of events using the
// same sentinel as Metadata.
func TimeRange(events []Event) (uint64, uint64) {
	m := newMetadata(0, 0)
	for _, ev := range events {
		m.observe(ev.Timestamp)
	}
	return m.MinTime, m.MaxTime
}

// Window is a strict time window whose bounds may each be left open. An
// open bound admits every timestamp on its side.
type Window struct {
	From    uint64
	To      uint64
	HasFrom bool
	HasTo   bool
}

// Set reports whether either bound is given.
func (w Window) Set() bool {
	return w.HasFrom || w.HasTo
}

// Validate fails with ErrInvalidRange when both bounds are given and
// From > To.
func (w Window) Validate() error {
	if w.HasFrom && w.HasTo && w.From > w.To {
		return fmt.Errorf("%w: t0=%d tend=%d", ErrInvalidRange, w.From, w.To)
	}
	return nil
}

// Contains reports whether ts lies strictly inside the given bounds.
func (w Window) Contains(ts uint64) bool {
	if w.HasFrom && ts <= w.From {
		return false
	}
	if w.HasTo && ts >= w.To {
		return false
	}
	return true
}

// Filter returns the events inside w, preserving order. An unset window
// returns events unchanged.
func (w Window) Filter(events []Event) ([]Event, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if !w.Set() {
		return events, nil
	}
	out := make([]Event, 0, len(events)/4)
	for _, ev := range events {
		if w.Contains(ev.Timestamp) {
			out = append(out, ev)
		}
	}
	return out, nil
}
