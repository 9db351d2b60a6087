// Package writer partitions rewarded decisions by output key and flushes
// each partition as a compressed JSONL object.
package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/banditpipe/rewardcore/internal/hooks"
	"github.com/banditpipe/rewardcore/internal/naming"
	"github.com/banditpipe/rewardcore/internal/objectstore"
	"github.com/banditpipe/rewardcore/internal/rewardjoin"
)

// Report summarizes one Write call, for dispatcher/worker-level logging.
type Report struct {
	TotalEmitted       int
	NonZeroRewardCount int
	MaxReward          float64
	MeanReward         float64
}

// Writer projects, validates, partitions, and flushes rewarded decisions.
// One Writer is constructed per worker invocation; its model cache is never
// shared across workers.
type Writer struct {
	store  objectstore.Store
	layout naming.Layout
	hooks  hooks.Hooks

	cacheMu sync.Mutex
	cache   map[string]map[string]string // project -> domain -> model
}

func New(store objectstore.Store, layout naming.Layout, h hooks.Hooks) *Writer {
	return &Writer{
		store:  store,
		layout: layout,
		hooks:  h,
		cache:  make(map[string]map[string]string),
	}
}

// Write projects each decision to the eight-field output shape, applies the
// ModifyRewardedAction hook, validates, resolves its output partition, and
// flushes every partition concurrently.
func (w *Writer) Write(ctx context.Context, project, shard string, decisions []rewardjoin.DecisionRecord) (Report, error) {
	partitions := make(map[string][][]byte)
	var report Report
	var rewardSum float64

	for _, d := range decisions {
		rewarded := d.Project()

		modifiedMap, err := w.hooks.ModifyRewardedAction(project, rewardjoin.RewardedDecisionToMap(rewarded))
		if err != nil {
			return Report{}, fmt.Errorf("writer: modifyRewardedAction: %w", err)
		}
		final := rewardjoin.MapToRewardedDecision(modifiedMap)

		if err := naming.AssertValidRewardedDecision(modifiedMap); err != nil {
			return Report{}, fmt.Errorf("writer: %w", err)
		}

		model, err := w.resolveModel(project, final.Domain, d)
		if err != nil {
			return Report{}, fmt.Errorf("writer: modelNameForAction: %w", err)
		}

		dateStr := final.Timestamp.UTC().Format("2006-01-02")
		key := w.layout.GetRewardedDecisionKey(project, model, shard, dateStr)

		line, err := json.Marshal(final)
		if err != nil {
			return Report{}, fmt.Errorf("writer: marshal rewarded decision: %w", err)
		}
		partitions[key] = append(partitions[key], line)

		report.TotalEmitted++
		if final.Reward != nil {
			r := *final.Reward
			rewardSum += r
			if r != 0 {
				report.NonZeroRewardCount++
			}
			if r > report.MaxReward {
				report.MaxReward = r
			}
		}
	}
	if report.TotalEmitted > 0 {
		report.MeanReward = rewardSum / float64(report.TotalEmitted)
	}

	if err := w.flush(ctx, partitions); err != nil {
		return report, err
	}
	return report, nil
}

// resolveModel consults the per-process project->domain->model cache,
// merging in a new entry via the ModelNameForAction hook on a miss. Entries
// are merged, not overwritten, across distinct domains — the spec's
// overwrite-cache behavior and a merging cache are both valid per-domain
// readers never see a stale value for the same (project, domain) pair.
func (w *Writer) resolveModel(project, domain string, action rewardjoin.DecisionRecord) (string, error) {
	w.cacheMu.Lock()
	if models, ok := w.cache[project]; ok {
		if model, ok := models[domain]; ok {
			w.cacheMu.Unlock()
			return model, nil
		}
	}
	w.cacheMu.Unlock()

	model, err := w.hooks.ModelNameForAction(rewardjoin.DecisionRecordToMap(action))
	if err != nil {
		return "", err
	}
	if model == "" {
		model = w.layout.GetModelForDomain(project, domain)
	}

	w.cacheMu.Lock()
	if w.cache[project] == nil {
		w.cache[project] = make(map[string]string)
	}
	w.cache[project][domain] = model
	w.cacheMu.Unlock()

	return model, nil
}

func (w *Writer) flush(ctx context.Context, partitions map[string][][]byte) error {
	keys := make([]string, 0, len(partitions))
	for k := range partitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var wg sync.WaitGroup
	errs := make([]error, len(keys))
	for i, key := range keys {
		i, key := i, key
		lines := partitions[key]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.store.PutLines(ctx, key, lines); err != nil {
				errs[i] = fmt.Errorf("flush %s: %w", key, err)
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
