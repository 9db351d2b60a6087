package rewardjoin

import (
	"fmt"
	"time"

	"github.com/banditpipe/rewardcore/internal/hooks"
)

// MapToHistoryRecord converts the generic map form the hooks interface
// returns back into a typed HistoryRecord, used after ModifyHistoryRecords
// runs. Both a native time.Time and an RFC3339 string are accepted for
// timestamp, since a hook implementation may re-serialize the record.
func MapToHistoryRecord(m hooks.HistoryRecord) (HistoryRecord, error) {
	var r HistoryRecord

	switch v := m["timestamp"].(type) {
	case time.Time:
		r.Timestamp = v
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return HistoryRecord{}, fmt.Errorf("invalid timestamp %q: %w", v, err)
		}
		r.Timestamp = t
	}

	if v, ok := m["message_id"].(string); ok {
		r.MessageID = v
	}
	if v, ok := m["history_id"].(string); ok {
		r.HistoryID = v
	}
	if v, ok := m["type"].(string); ok {
		r.Type = RecordKind(v)
	}
	if v, ok := m["decisions"].([]interface{}); ok {
		for _, raw := range v {
			if dm, ok := raw.(map[string]interface{}); ok {
				r.Decisions = append(r.Decisions, mapToDecisionRecord(dm))
			}
		}
	}
	if v, ok := m["rewards"].(map[string]interface{}); ok {
		r.Rewards = v
	}
	if v, ok := m["chosen"]; ok {
		r.Chosen = v
	}
	if v, ok := m["context"].(map[string]interface{}); ok {
		r.Context = v
	}
	if v, ok := m["domain"].(string); ok {
		r.Domain = v
	}
	if v, ok := m["propensity"]; ok {
		r.Propensity = coerceNumeric(v)
	}
	if v, ok := m["reward_key"].(string); ok {
		r.RewardKey = v
	}
	return r, nil
}

// RewardedDecisionToMap converts a RewardedDecision to the generic map form
// the ModifyRewardedAction hook and naming.AssertValidRewardedDecision
// operate over.
func RewardedDecisionToMap(d RewardedDecision) map[string]interface{} {
	m := map[string]interface{}{
		"chosen":     d.Chosen,
		"context":    d.Context,
		"domain":     d.Domain,
		"timestamp":  d.Timestamp,
		"message_id": d.MessageID,
		"history_id": d.HistoryID,
		"propensity": d.Propensity,
	}
	if d.Reward != nil {
		m["reward"] = *d.Reward
	}
	return m
}

// MapToRewardedDecision converts back from the generic map form, after a
// ModifyRewardedAction hook has had a chance to mutate it.
func MapToRewardedDecision(m map[string]interface{}) RewardedDecision {
	var d RewardedDecision
	if v, ok := m["chosen"]; ok {
		d.Chosen = v
	}
	if v, ok := m["context"].(map[string]interface{}); ok {
		d.Context = v
	}
	if v, ok := m["domain"].(string); ok {
		d.Domain = v
	}
	switch v := m["timestamp"].(type) {
	case time.Time:
		d.Timestamp = v
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			d.Timestamp = t
		}
	}
	if v, ok := m["message_id"].(string); ok {
		d.MessageID = v
	}
	if v, ok := m["history_id"].(string); ok {
		d.HistoryID = v
	}
	if v, ok := m["propensity"]; ok {
		d.Propensity = coerceNumeric(v)
	}
	if v, ok := m["reward"]; ok && v != nil {
		r := coerceNumeric(v)
		d.Reward = &r
	}
	return d
}
