package dispatcher

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/banditpipe/rewardcore/internal/history"
	"github.com/banditpipe/rewardcore/internal/hooks"
	"github.com/banditpipe/rewardcore/internal/naming"
	"github.com/banditpipe/rewardcore/internal/objectstore"
	"github.com/banditpipe/rewardcore/internal/registry"
	"github.com/banditpipe/rewardcore/internal/rewardjoin"
	"github.com/banditpipe/rewardcore/internal/writer"
)

// Worker assigns rewards for one (project, shard) invocation.
type Worker struct {
	Store          objectstore.Store
	Layout         naming.Layout
	Registry       registry.Registry
	Hooks          hooks.Hooks
	ReshardInvoker ReshardInvoker
	StaleFilter    StaleFilter // nil uses IdentityStaleFilter

	MaxPayloadBytes int64
	RewardWindow    time.Duration
	MaxParallel     int

	Metrics *WorkerMetrics
	Logger  *log.Logger
}

func (w *Worker) staleFilter() StaleFilter {
	if w.StaleFilter != nil {
		return w.StaleFilter
	}
	return IdentityStaleFilter{}
}

func (w *Worker) logf(format string, args ...interface{}) {
	if w.Logger != nil {
		w.Logger.Printf(format, args...)
	}
}

// AssignRewards implements the worker side of one dispatch invocation:
// validate, mark last-processed if not already done, list, size-check
// against the reshard threshold, and — if within bounds — load, join, and
// write, deleting incoming markers only on success.
func (w *Worker) AssignRewards(ctx context.Context, payload Payload) (AssignResult, error) {
	start := time.Now()
	defer func() {
		if w.Metrics != nil {
			w.Metrics.AddProcessingTime(time.Since(start))
		}
	}()

	if payload.Project == "" || payload.Shard == "" {
		return AssignResult{}, &DispatchError{Err: fmt.Errorf("payload missing project_name or shard_id")}
	}

	if !payload.LastProcessedTimestampUpdated {
		if err := w.Registry.UpdateShardLastProcessed(ctx, payload.Project, payload.Shard, time.Now()); err != nil {
			w.failIfMetrics()
			return AssignResult{}, &PassError{Err: fmt.Errorf("update last-processed: %w", err)}
		}
	}

	historyObjs, err := w.Layout.ListAllHistoryShardObjectsWithMetadata(ctx, w.Store, payload.Project, payload.Shard)
	if err != nil {
		w.failIfMetrics()
		return AssignResult{}, &PassError{Err: fmt.Errorf("list history objects: %w", err)}
	}
	incomingKeys, err := w.Layout.ListAllIncomingHistoryShardKeys(ctx, w.Store, payload.Project, payload.Shard)
	if err != nil {
		w.failIfMetrics()
		return AssignResult{}, &PassError{Err: fmt.Errorf("list incoming keys: %w", err)}
	}

	staleObjects := w.staleFilter().Filter(historyObjs)

	var totalSize int64
	for _, o := range staleObjects {
		totalSize += o.Size
	}

	if w.MaxPayloadBytes > 0 && totalSize > w.MaxPayloadBytes {
		w.logf("worker: %s/%s stale payload %s exceeds threshold %s, invoking reshard",
			payload.Project, payload.Shard, humanize.Bytes(uint64(totalSize)), humanize.Bytes(uint64(w.MaxPayloadBytes)))
		if err := w.ReshardInvoker.InvokeReshard(ctx, payload.Project, payload.Shard); err != nil {
			w.failIfMetrics()
			return AssignResult{}, &PassError{Err: fmt.Errorf("invoke reshard: %w", err)}
		}
		return AssignResult{Reshared: true}, nil
	}

	keys := make([]string, len(staleObjects))
	for i, o := range staleObjects {
		keys[i] = o.Key
	}

	maxParallel := w.MaxParallel
	if maxParallel < 1 {
		maxParallel = 1
	}

	loadResult, err := history.Load(ctx, w.Store, w.Layout, payload.Project, keys, w.Hooks, maxParallel)
	if err != nil {
		w.failIfMetrics()
		return AssignResult{}, &PassError{Err: fmt.Errorf("load history: %w", err)}
	}

	decisions, groupErrs := rewardjoin.Build(payload.Project, loadResult.Records, w.Hooks, w.RewardWindow)
	for _, ge := range groupErrs {
		w.logf("worker: %s/%s: %v", payload.Project, payload.Shard, ge)
	}

	wr := writer.New(w.Store, w.Layout, w.Hooks)
	report, err := wr.Write(ctx, payload.Project, payload.Shard, decisions)
	if err != nil {
		w.failIfMetrics()
		return AssignResult{}, &PassError{Err: fmt.Errorf("write rewarded decisions: %w", err)}
	}

	if len(incomingKeys) > 0 {
		if err := w.Store.Delete(ctx, incomingKeys); err != nil {
			w.failIfMetrics()
			return AssignResult{}, &PassError{Err: fmt.Errorf("delete incoming markers: %w", err)}
		}
	}

	result := AssignResult{
		TotalEmitted:       report.TotalEmitted,
		NonZeroRewardCount: report.NonZeroRewardCount,
		MaxReward:          report.MaxReward,
		MeanReward:         report.MeanReward,
		Duplicates:         loadResult.Duplicates,
	}
	if w.Metrics != nil {
		w.Metrics.IncProcessed()
		w.Metrics.RecordPass(result)
	}
	return result, nil
}

func (w *Worker) failIfMetrics() {
	if w.Metrics != nil {
		w.Metrics.IncFailed()
	}
}

// InlineWorkerInvoker enqueues a worker invocation by running it on a new
// goroutine against the local Worker — a stand-in for the out-of-scope
// message-queue delivery mechanism named in spec.md §9. Invoke returns as
// soon as the goroutine is launched; delivery is fire-and-forget.
type InlineWorkerInvoker struct {
	Worker *Worker
	Logger *log.Logger
}

func (inv InlineWorkerInvoker) Invoke(ctx context.Context, payload Payload) error {
	go func() {
		if _, err := inv.Worker.AssignRewards(context.Background(), payload); err != nil {
			if inv.Logger != nil {
				inv.Logger.Printf("worker invocation %s/%s failed: %v", payload.Project, payload.Shard, err)
			}
		}
	}()
	return nil
}

// LoggingReshardInvoker logs a resharding request without performing one.
// Deployments wire a real invoker (queue publish, Lambda call) in its place.
type LoggingReshardInvoker struct {
	Logger *log.Logger
}

func (inv LoggingReshardInvoker) InvokeReshard(ctx context.Context, project, shard string) error {
	if inv.Logger != nil {
		inv.Logger.Printf("reshard: %s/%s would be invoked (no-op invoker)", project, shard)
	}
	return nil
}

func (inv LoggingReshardInvoker) ContinueReshard(ctx context.Context, project, parentShard string) error {
	if inv.Logger != nil {
		inv.Logger.Printf("reshard: continue %s/%s would be invoked (no-op invoker)", project, parentShard)
	}
	return nil
}
