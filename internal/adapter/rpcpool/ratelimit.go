package rpcpool

import "time"

// rateWindow is one fixed-size sliding request budget: count resets when the
// window elapses. A zero or negative limit disables the budget. Access is
// serialized by the Manager mutex.
type rateWindow struct {
	limit   int
	window  time.Duration
	count   int
	resetAt time.Time
}

func newRateWindow(limit int, window time.Duration) *rateWindow {
	return &rateWindow{limit: limit, window: window}
}

func (w *rateWindow) roll(now time.Time) {
	if !now.Before(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(w.window)
	}
}

// available reports whether one more request fits the current window without
// consuming it.
func (w *rateWindow) available(now time.Time) bool {
	if w.limit <= 0 {
		return true
	}
	w.roll(now)
	return w.count < w.limit
}

func (w *rateWindow) consume(now time.Time) {
	if w.limit <= 0 {
		return
	}
	w.roll(now)
	w.count++
}
