package rewardjoin

import (
	"fmt"
	"sort"
	"time"

	"github.com/banditpipe/rewardcore/internal/hooks"
)

// Build groups records by history_id, infers decision and reward records per
// group via h, and runs the single-pass temporal join within each group.
// Groups are processed independently: a group that fails is abandoned (its
// error is returned alongside the decisions successfully produced by every
// other group) rather than aborting the whole pass.
//
// A line that failed to decode into a valid HistoryRecord (a non-sequence
// "decisions" or a non-mapping "rewards") arrives here carrying a non-nil
// DecodeError rather than having aborted the load; buildGroup turns that
// into a GroupError for just its own history_id, so one poisoned line still
// can't stop any other group in the shard.
func Build(project string, records []HistoryRecord, h hooks.Hooks, rewardWindow time.Duration) ([]DecisionRecord, []*GroupError) {
	groups := make(map[string][]HistoryRecord)
	var order []string
	for _, r := range records {
		if _, seen := groups[r.HistoryID]; !seen {
			order = append(order, r.HistoryID)
		}
		groups[r.HistoryID] = append(groups[r.HistoryID], r)
	}
	sort.Strings(order)

	var allDecisions []DecisionRecord
	var errs []*GroupError
	for _, historyID := range order {
		decisions, err := buildGroup(project, historyID, groups[historyID], h, rewardWindow)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		allDecisions = append(allDecisions, decisions...)
	}
	return allDecisions, errs
}

func buildGroup(project, historyID string, records []HistoryRecord, h hooks.Hooks, rewardWindow time.Duration) ([]DecisionRecord, *GroupError) {
	abort := func(err error) *GroupError {
		return &GroupError{HistoryID: historyID, Err: err}
	}

	var decisions []DecisionRecord
	var rewardsRecs []RewardsRecord

	for _, rec := range records {
		if rec.DecodeError != nil {
			return nil, abort(fmt.Errorf("decode: %w", rec.DecodeError))
		}
		if rec.Timestamp.IsZero() {
			return nil, abort(fmt.Errorf("record %q has no valid timestamp", rec.MessageID))
		}
		if rec.MessageID == "" {
			return nil, abort(fmt.Errorf("record missing message_id"))
		}

		var candidates []DecisionRecord
		if rec.Type == RecordKindDecision {
			candidates = append(candidates, DecisionRecord{
				Chosen:     rec.Chosen,
				Context:    rec.Context,
				Domain:     rec.Domain,
				Propensity: rec.Propensity,
				RewardKey:  rec.RewardKey,
			})
		}
		candidates = append(candidates, rec.Decisions...)

		inferredMaps := make([]hooks.DecisionRecord, len(candidates))
		for i, c := range candidates {
			inferredMaps[i] = DecisionRecordToMap(c)
		}

		hookOut, err := h.ActionRecordsFromHistoryRecord(project, HistoryRecordToMap(rec), inferredMaps)
		if err != nil {
			return nil, abort(fmt.Errorf("actionRecordsFromHistoryRecord: %w", err))
		}

		for i, m := range hookOut {
			if hid, ok := m["history_id"].(string); ok && hid != "" && hid != historyID {
				return nil, abort(fmt.Errorf("inferred decision history_id %q disagrees with group %q", hid, historyID))
			}
			d := mapToDecisionRecord(m)
			d.Type = RecordKindDecision
			d.Timestamp = rec.Timestamp
			d.TimestampDate = rec.Timestamp
			d.HistoryID = historyID
			if i == 0 {
				d.MessageID = rec.MessageID
			} else {
				d.MessageID = fmt.Sprintf("%s-%d", rec.MessageID, i)
			}
			decisions = append(decisions, d)
		}

		rewardsMap, err := h.RewardsRecordFromHistoryRecord(project, HistoryRecordToMap(rec))
		if err != nil {
			return nil, abort(fmt.Errorf("rewardsRecordFromHistoryRecord: %w", err))
		}
		if rewardsMap != nil {
			rewardsRecs = append(rewardsRecs, RewardsRecord{
				HistoryID:     historyID,
				Timestamp:     rec.Timestamp,
				TimestampDate: rec.Timestamp,
				Type:          RecordKindRewards,
				Rewards:       rewardsMap,
			})
		}
	}

	if len(rewardsRecs) == 0 {
		return decisions, nil
	}
	return join(decisions, rewardsRecs, rewardWindow), nil
}

type timelineEvent struct {
	at          time.Time
	isReward    bool
	decisionIdx int
	rewardIdx   int
}

// join runs the single-pass temporal join: decisions and rewards are merged
// into one ascending-timestamp sequence (stable sort, so input order breaks
// ties), then walked once. Each reward key keeps an ordered listener queue
// of still-live decisions; a reward record credits every listener whose
// window has not yet expired and evicts the ones that have, walking the
// queue in reverse so in-place removal never disturbs an index still to be
// visited.
func join(decisions []DecisionRecord, rewards []RewardsRecord, window time.Duration) []DecisionRecord {
	events := make([]timelineEvent, 0, len(decisions)+len(rewards))
	for i := range decisions {
		events = append(events, timelineEvent{at: decisions[i].TimestampDate, decisionIdx: i})
	}
	for i := range rewards {
		events = append(events, timelineEvent{at: rewards[i].TimestampDate, isReward: true, rewardIdx: i})
	}
	sort.SliceStable(events, func(a, b int) bool {
		return events[a].at.Before(events[b].at)
	})

	listeners := make(map[string][]int)

	for _, ev := range events {
		if !ev.isReward {
			d := &decisions[ev.decisionIdx]
			d.rewardWindowEndDate = d.TimestampDate.Add(window)
			key := d.effectiveRewardKey()
			listeners[key] = append(listeners[key], ev.decisionIdx)
			continue
		}

		r := rewards[ev.rewardIdx]
		for rewardKey, rawValue := range r.Rewards {
			idxs := listeners[rewardKey]
			for i := len(idxs) - 1; i >= 0; i-- {
				di := idxs[i]
				d := &decisions[di]
				if !d.rewardWindowEndDate.After(r.TimestampDate) {
					idxs = append(idxs[:i], idxs[i+1:]...)
					continue
				}
				d.addReward(coerceNumeric(rawValue))
			}
			listeners[rewardKey] = idxs
		}
	}

	return decisions
}

func coerceNumeric(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// HistoryRecordToMap converts a typed HistoryRecord to the generic map form
// the hooks capability interface consumes.
func HistoryRecordToMap(r HistoryRecord) hooks.HistoryRecord {
	m := hooks.HistoryRecord{
		"timestamp":  r.Timestamp,
		"message_id": r.MessageID,
		"history_id": r.HistoryID,
	}
	if r.Type != "" {
		m["type"] = string(r.Type)
	}
	if r.Decisions != nil {
		decs := make([]interface{}, len(r.Decisions))
		for i, d := range r.Decisions {
			decs[i] = DecisionRecordToMap(d)
		}
		m["decisions"] = decs
	}
	if r.Rewards != nil {
		m["rewards"] = r.Rewards
	}
	if r.Chosen != nil {
		m["chosen"] = r.Chosen
	}
	if r.Context != nil {
		m["context"] = r.Context
	}
	if r.Domain != "" {
		m["domain"] = r.Domain
	}
	if r.Propensity != 0 {
		m["propensity"] = r.Propensity
	}
	if r.RewardKey != "" {
		m["reward_key"] = r.RewardKey
	}
	return m
}

// DecisionRecordToMap converts a typed DecisionRecord to the generic map
// form the hooks capability interface consumes.
func DecisionRecordToMap(d DecisionRecord) hooks.DecisionRecord {
	m := hooks.DecisionRecord{
		"chosen":     d.Chosen,
		"context":    d.Context,
		"domain":     d.Domain,
		"propensity": d.Propensity,
	}
	if d.RewardKey != "" {
		m["reward_key"] = d.RewardKey
	}
	return m
}

func mapToDecisionRecord(m hooks.DecisionRecord) DecisionRecord {
	var d DecisionRecord
	if v, ok := m["chosen"]; ok {
		d.Chosen = v
	}
	if v, ok := m["context"].(map[string]interface{}); ok {
		d.Context = v
	}
	if v, ok := m["domain"].(string); ok {
		d.Domain = v
	}
	if v, ok := m["propensity"]; ok {
		d.Propensity = coerceNumeric(v)
	}
	if v, ok := m["reward_key"].(string); ok {
		d.RewardKey = v
	}
	return d
}
