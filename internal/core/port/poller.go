package port

import "time"

// IntervalSource recommends polling intervals per chain from observed market
// behavior. It performs no I/O of its own.
type IntervalSource interface {
	// Interval returns the current recommended polling interval for the chain.
	Interval(chainID uint64) time.Duration

	// ShouldPollNow reports whether one full interval has elapsed since the
	// last completed poll for the chain.
	ShouldPollNow(chainID uint64) bool

	// MarkPollComplete records the completion time of a poll cycle.
	MarkPollComplete()

	// RecordRPCCall bumps the self-reported per-minute call counter used for
	// the quota-safety penalty floor.
	RecordRPCCall()
}
