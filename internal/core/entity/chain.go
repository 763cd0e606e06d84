package entity

import "time"

// Chain describes one monitored network. BlockTime is the nominal interval
// between blocks and drives the adaptive poller's floor (polling faster than
// roughly half the block time wastes request budget).
type Chain struct {
	ID        uint64
	Name      string
	BlockTime time.Duration
}

// MinPollInterval returns the floor polling interval for the chain: half the
// nominal block time, or zero when the block time is unknown.
func (c Chain) MinPollInterval() time.Duration {
	return c.BlockTime / 2
}
