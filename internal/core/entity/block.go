package entity

import "time"

// BlockEvent is the normalized new-block notification emitted per chain.
// Events for one chain are strictly increasing in Number; duplicates and
// out-of-order deliveries from providers are filtered before emission.
type BlockEvent struct {
	ChainID uint64 `json:"chainId"`
	Number  uint64 `json:"blockNumber"`
	// Timestamp is the local receipt time, not the block's own timestamp.
	Timestamp time.Time `json:"timestamp"`
}
