package port

// BlockMonitor represents one chain's block ingestion source. Implementations
// must support lifecycle management and graceful, idempotent shutdown; block
// events are delivered through the event bus, not a direct handler.
type BlockMonitor interface {
	Start() error
	Stop()
}
