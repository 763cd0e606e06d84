package metrics

// Component label values used by app-level metrics.
const (
	ComponentPool    = "rpcpool"
	ComponentMonitor = "monitor"
	ComponentPoller  = "poller"
	ComponentKafka   = "kafka"
	ComponentRedis   = "redis"
)
