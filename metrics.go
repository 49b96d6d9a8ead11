package jobengine

import (
	"time"

	"github.com/google/uuid"
)

// LatencyHistogram carries p50/p95/p99 execution-latency percentiles plus a
// sliding-window throughput counter, populated only when enhanced metrics
// are enabled.
type LatencyHistogram struct {
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
	Throughput float64 // completions per second over the sliding window
}

// MetricsSnapshot is the structured record exported on demand by a pool.
type MetricsSnapshot struct {
	PoolName     string
	InstanceID   uuid.UUID
	WorkerCount  int
	ActiveCount  int
	QueueDepth   int
	Submitted    uint64
	Completed    uint64
	Failed       uint64
	Rejected     uint64
	TotalBusy    time.Duration
	TotalIdle    time.Duration
	Enhanced     bool
	Latency      LatencyHistogram
}
