// Package progress carries throttled progress updates from the long
// hashing/copying passes of an ISO patch out to a caller-supplied
// callback, without coupling the patching pipeline to any particular UI.
package progress

// Progress is a single update. Total == 0 means the operation's extent is
// not yet known (indeterminate), or that it has just completed. Error is
// set only on a terminal record reporting that the operation failed; a
// UI watching the callback should treat a non-nil Error as the last
// update it will ever receive for this run.
type Progress struct {
	Description string
	Current     uint64
	Total       uint64
	Error       error
}

// Ratio returns Current/Total in [0,1], or 0 when Total is 0.
func (p Progress) Ratio() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total)
}

// Callback receives progress updates. It must not block for long, since
// callers invoke it inline on the hashing/copying hot path.
type Callback func(Progress)

// Throttle wraps cb so that it is invoked at most once per step bytes of
// Current advance, plus always on the first and last call for a given
// Description. A nil cb yields a no-op Callback.
func Throttle(cb Callback, step uint64) Callback {
	if cb == nil {
		return func(Progress) {}
	}
	if step == 0 {
		step = 1
	}
	var last uint64
	var lastDesc string
	var seenFirst bool
	return func(p Progress) {
		first := !seenFirst || p.Description != lastDesc
		done := p.Total != 0 && p.Current >= p.Total
		if first || done || p.Current-last >= step {
			cb(p)
			last = p.Current
			lastDesc = p.Description
			seenFirst = true
		}
	}
}
