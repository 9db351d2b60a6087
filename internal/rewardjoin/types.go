// Package rewardjoin implements the per-history_id grouping, decision/reward
// inference, and single-pass temporal join that turns deduped history
// records into rewarded decisions.
package rewardjoin

import "time"

// RecordKind discriminates the two derived record shapes a history record
// expands into.
type RecordKind string

const (
	RecordKindDecision RecordKind = "decision"
	RecordKindRewards  RecordKind = "rewards"
)

const defaultRewardKey = "reward"

// HistoryRecord is one input record as loaded from an object-store JSONL
// line: a decision, a rewards observation, or a container of embedded
// decisions, identified by HistoryID within one shard-assignment pass.
type HistoryRecord struct {
	Timestamp   time.Time              `json:"timestamp"`
	MessageID   string                 `json:"message_id"`
	HistoryID   string                 `json:"history_id"`
	Type        RecordKind             `json:"type,omitempty"`
	Decisions   []DecisionRecord       `json:"decisions,omitempty"`
	Rewards     map[string]interface{} `json:"rewards,omitempty"`
	Chosen      interface{}            `json:"chosen,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Domain      string                 `json:"domain,omitempty"`
	Propensity  float64                `json:"propensity,omitempty"`
	RewardKey   string                 `json:"reward_key,omitempty"`

	// DecodeError is set by the history loader when a line could not be
	// unmarshalled into this shape (e.g. a non-sequence "decisions" or a
	// non-mapping "rewards"). It is never populated from JSON and carries
	// the record's own group straight to a GroupError in Build, isolating
	// one poisoned line from the rest of the shard.
	DecodeError error `json:"-"`
}

// DecisionRecord is a derived record representing one decision a model made.
type DecisionRecord struct {
	HistoryID     string                 `json:"history_id"`
	MessageID     string                 `json:"message_id"`
	Timestamp     time.Time              `json:"timestamp"`
	TimestampDate time.Time              `json:"timestampDate"`
	Type          RecordKind             `json:"type"`
	Chosen        interface{}            `json:"chosen"`
	Context       map[string]interface{} `json:"context"`
	Domain        string                 `json:"domain"`
	Propensity    float64                `json:"propensity"`
	RewardKey     string                 `json:"reward_key,omitempty"`
	Reward        *float64               `json:"reward,omitempty"`

	rewardWindowEndDate time.Time
}

func (d *DecisionRecord) effectiveRewardKey() string {
	if d.RewardKey == "" {
		return defaultRewardKey
	}
	return d.RewardKey
}

func (d *DecisionRecord) addReward(value float64) {
	if d.Reward == nil {
		v := value
		d.Reward = &v
		return
	}
	*d.Reward += value
}

// RewardsRecord is a derived record representing one observed reward event.
type RewardsRecord struct {
	HistoryID     string
	Timestamp     time.Time
	TimestampDate time.Time
	Type          RecordKind
	Rewards       map[string]interface{}
}

// RewardedDecision is the eight-field output projection of a DecisionRecord,
// possibly further mutated by the ModifyRewardedAction hook.
type RewardedDecision struct {
	Chosen     interface{}            `json:"chosen"`
	Context    map[string]interface{} `json:"context"`
	Domain     string                 `json:"domain"`
	Timestamp  time.Time              `json:"timestamp"`
	MessageID  string                 `json:"message_id"`
	HistoryID  string                 `json:"history_id"`
	Reward     *float64               `json:"reward,omitempty"`
	Propensity float64                `json:"propensity"`
}

// Project projects a DecisionRecord onto the eight allowed output fields.
func (d DecisionRecord) Project() RewardedDecision {
	return RewardedDecision{
		Chosen:     d.Chosen,
		Context:    d.Context,
		Domain:     d.Domain,
		Timestamp:  d.Timestamp,
		MessageID:  d.MessageID,
		HistoryID:  d.HistoryID,
		Reward:     d.Reward,
		Propensity: d.Propensity,
	}
}

// GroupError reports a fatal-to-group failure: the group is abandoned but
// processing continues with other groups.
type GroupError struct {
	HistoryID string
	Err       error
}

func (e *GroupError) Error() string {
	return "rewardjoin: group " + e.HistoryID + " abandoned: " + e.Err.Error()
}

func (e *GroupError) Unwrap() error { return e.Err }
