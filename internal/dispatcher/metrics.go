package dispatcher

import (
	"sync/atomic"
	"time"
)

// WorkerMetrics accumulates counters across worker invocations in one
// process. Fields are exported for inspection but should be mutated only
// through the Inc/Add helpers, which are safe for concurrent use.
type WorkerMetrics struct {
	ShardsProcessed int64
	ShardsFailed    int64
	processingTime  int64 // nanoseconds

	emitted            int64
	nonZeroRewardCount int64
}

func (m *WorkerMetrics) IncProcessed() { atomic.AddInt64(&m.ShardsProcessed, 1) }
func (m *WorkerMetrics) IncFailed()    { atomic.AddInt64(&m.ShardsFailed, 1) }

func (m *WorkerMetrics) AddProcessingTime(d time.Duration) {
	atomic.AddInt64(&m.processingTime, d.Nanoseconds())
}

func (m *WorkerMetrics) RecordPass(result AssignResult) {
	atomic.AddInt64(&m.emitted, int64(result.TotalEmitted))
	atomic.AddInt64(&m.nonZeroRewardCount, int64(result.NonZeroRewardCount))
}

// Snapshot returns a point-in-time view of every counter.
func (m *WorkerMetrics) Snapshot() (processed, failed, emitted, nonZeroReward int64, processingTime time.Duration) {
	return atomic.LoadInt64(&m.ShardsProcessed),
		atomic.LoadInt64(&m.ShardsFailed),
		atomic.LoadInt64(&m.emitted),
		atomic.LoadInt64(&m.nonZeroRewardCount),
		time.Duration(atomic.LoadInt64(&m.processingTime))
}
