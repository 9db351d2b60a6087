package dispatcher

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/banditpipe/rewardcore/internal/naming"
	"github.com/banditpipe/rewardcore/internal/objectstore"
	"github.com/banditpipe/rewardcore/internal/registry"
)

// Dispatcher runs one control-plane tick: for every project, list and
// classify shards, continue any unfinished resharding, and dispatch worker
// invocations for stable shards whose incoming markers are due. A single
// Dispatcher must never run Dispatch concurrently with itself — that
// single-flight guarantee is external (infrastructure-level), matching
// spec.md §5.
type Dispatcher struct {
	Store          objectstore.Store
	Layout         naming.Layout
	Registry       registry.Registry
	WorkerInvoker  WorkerInvoker
	ReshardInvoker ReshardInvoker

	WorkerCount             int
	ReprocessShardWait      time.Duration

	Logger *log.Logger

	mainLoopErrorCount int
	mainLoopBackoff    time.Duration
}

func (d *Dispatcher) logf(format string, args ...interface{}) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}

// Dispatch runs one tick over every statically configured project,
// concurrently. Per-project failures are collected into that project's
// ProjectReport rather than aborting the other projects' dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, event DispatchEvent) (Report, error) {
	projects := d.Layout.AllProjects()
	results := make([]ProjectReport, len(projects))

	var wg sync.WaitGroup
	for i, project := range projects {
		i, project := i, project
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = d.dispatchProject(ctx, project, event)
		}()
	}
	wg.Wait()

	return Report{Projects: results}, nil
}

func (d *Dispatcher) dispatchProject(ctx context.Context, project string, event DispatchEvent) ProjectReport {
	report := ProjectReport{Project: project}

	shards, err := d.Layout.ListAllShards(ctx, d.Store, project)
	if err != nil {
		report.Err = fmt.Errorf("list shards: %w", err)
		return report
	}
	if len(shards) == 0 {
		return report
	}

	lastProcessed, err := d.Registry.LoadAndConsolidateShardLastProcessed(ctx, project)
	if err != nil {
		report.Err = fmt.Errorf("load last-processed: %w", err)
		return report
	}

	sort.Strings(shards)
	groups := registry.GroupShards(shards)

	var reshardContinued []string
	var assignReport ProjectReport

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if !event.ForceContinueReshard {
			return
		}
		for _, parent := range groups.Parents {
			if err := d.ReshardInvoker.ContinueReshard(ctx, project, parent); err != nil {
				d.logf("dispatcher: continue reshard %s/%s: %v", project, parent, err)
				continue
			}
			reshardContinued = append(reshardContinued, parent)
		}
	}()
	go func() {
		defer wg.Done()
		assignReport = d.dispatchAssignRewardsIfNecessary(ctx, project, groups.Stable, lastProcessed, event.ForceProcessing)
	}()
	wg.Wait()

	report.Dispatched = assignReport.Dispatched
	report.SkippedCooldown = assignReport.SkippedCooldown
	report.SkippedResharding = assignReport.SkippedResharding
	report.SkippedNoWorkers = assignReport.SkippedNoWorkers
	report.ReshardContinued = reshardContinued
	if assignReport.Err != nil {
		report.Err = assignReport.Err
	}
	return report
}

type shardCandidate struct {
	shard         string
	lastProcessed time.Time
}

// dispatchAssignRewardsIfNecessary implements spec.md §4.3's oldest-first,
// cool-down-gated, worker-count-bounded dispatch loop. Marking a shard's
// last-processed timestamp and enqueueing its worker invocation happen
// concurrently, mark first in program order, to minimize the double-dispatch
// window.
func (d *Dispatcher) dispatchAssignRewardsIfNecessary(ctx context.Context, project string, stableShards []string, lastProcessed map[string]time.Time, forceProcessing bool) ProjectReport {
	report := ProjectReport{Project: project}

	incomingShards, err := d.Layout.ListAllIncomingHistoryShards(ctx, d.Store, project)
	if err != nil {
		report.Err = fmt.Errorf("list incoming shards: %w", err)
		return report
	}
	if len(incomingShards) == 0 {
		return report
	}

	stableSet := make(map[string]struct{}, len(stableShards))
	for _, s := range stableShards {
		stableSet[s] = struct{}{}
	}

	candidates := make([]shardCandidate, len(incomingShards))
	for i, s := range incomingShards {
		candidates[i] = shardCandidate{shard: s, lastProcessed: lastProcessed[s]}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].lastProcessed.Before(candidates[j].lastProcessed)
	})

	remainingWorkers := d.WorkerCount
	if remainingWorkers < 1 {
		remainingWorkers = 1
	}

	now := time.Now()
	var wg sync.WaitGroup
	for _, c := range candidates {
		if !forceProcessing {
			if remainingWorkers <= 0 {
				report.SkippedNoWorkers = append(report.SkippedNoWorkers, c.shard)
				continue
			}
			if _, ok := stableSet[c.shard]; !ok {
				report.SkippedResharding = append(report.SkippedResharding, c.shard)
				continue
			}
			if now.Sub(c.lastProcessed) < d.ReprocessShardWait {
				report.SkippedCooldown = append(report.SkippedCooldown, c.shard)
				continue
			}
		}
		remainingWorkers--
		report.Dispatched = append(report.Dispatched, c.shard)

		shard := c.shard
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := d.Registry.UpdateShardLastProcessed(ctx, project, shard, now); err != nil {
				d.logf("dispatcher: mark %s/%s last-processed: %v", project, shard, err)
			}
		}()
		go func() {
			defer wg.Done()
			payload := Payload{Project: project, Shard: shard, LastProcessedTimestampUpdated: true}
			if err := d.WorkerInvoker.Invoke(ctx, payload); err != nil {
				d.logf("dispatcher: invoke worker %s/%s: %v", project, shard, err)
			}
		}()
	}
	wg.Wait()

	return report
}

// Run drives Dispatch on a fixed tick, applying the same error-threshold
// exponential backoff (capped at 30s) the teacher's worker supervisory loop
// uses — generalized here from "worker polling loop" to "one dispatch
// invocation's per-project error budget". Intended for deployments that run
// the dispatcher as a long-lived process rather than a per-tick cron/Lambda
// invocation.
func (d *Dispatcher) Run(ctx context.Context, tickInterval time.Duration, event DispatchEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		report, _ := d.Dispatch(ctx, event)
		failed := false
		for _, p := range report.Projects {
			if p.Err != nil {
				d.logf("dispatcher: project %s: %v", p.Project, p.Err)
				failed = true
			}
		}

		if failed {
			d.mainLoopErrorCount++
			if d.mainLoopErrorCount >= mainLoopErrorThreshold {
				if d.mainLoopBackoff == 0 {
					d.mainLoopBackoff = time.Second
				} else if d.mainLoopBackoff < maxMainLoopBackoff {
					d.mainLoopBackoff *= 2
				}
				if d.mainLoopBackoff > maxMainLoopBackoff {
					d.mainLoopBackoff = maxMainLoopBackoff
				}
				d.logf("dispatcher: backing off for %s due to repeated errors", d.mainLoopBackoff)
				time.Sleep(d.mainLoopBackoff)
			}
		} else {
			d.mainLoopErrorCount = 0
			d.mainLoopBackoff = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tickInterval):
		}
	}
}
