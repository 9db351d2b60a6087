package writer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banditpipe/rewardcore/internal/hooks"
	"github.com/banditpipe/rewardcore/internal/naming"
	"github.com/banditpipe/rewardcore/internal/objectstore"
	"github.com/banditpipe/rewardcore/internal/rewardjoin"
)

func testLayout() naming.Layout {
	return naming.Layout{
		HistoryPrefix:  "history",
		IncomingPrefix: "incoming",
		OutputPrefix:   "rewarded",
		ProjectModels: map[string]map[string]string{
			"acme": {"chat": "acme-chat-v2"},
		},
	}
}

func reward(v float64) *float64 { return &v }

func TestWrite_PartitionsByOutputKey(t *testing.T) {
	store := objectstore.NewMemStore()
	w := New(store, testLayout(), hooks.IdentityHooks{})
	ts := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	decisions := []rewardjoin.DecisionRecord{
		{HistoryID: "h1", MessageID: "m1", Timestamp: ts, Domain: "chat", Chosen: "A", Reward: reward(1)},
		{HistoryID: "h2", MessageID: "m2", Timestamp: ts, Domain: "chat", Chosen: "B"},
	}

	report, err := w.Write(context.Background(), "acme", "s1", decisions)
	require.NoError(t, err)
	require.Equal(t, 2, report.TotalEmitted)
	require.Equal(t, 1, report.NonZeroRewardCount)
	require.Equal(t, 1.0, report.MaxReward)
	require.Equal(t, 0.5, report.MeanReward)

	objs := store.Objects()
	require.Contains(t, objs, "rewarded/acme/chat/s1/2026-07-29/part.jsonl.gz")
}

func TestWrite_HookModelNameTakesPrecedenceOverLayoutMapping(t *testing.T) {
	store := objectstore.NewMemStore()
	w := New(store, testLayout(), hooks.IdentityHooks{})
	ts := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	decisions := []rewardjoin.DecisionRecord{
		{HistoryID: "h1", MessageID: "m1", Timestamp: ts, Domain: "chat", Chosen: "A"},
	}
	_, err := w.Write(context.Background(), "acme", "s1", decisions)
	require.NoError(t, err)

	objs := store.Objects()
	require.Contains(t, objs, "rewarded/acme/chat/s1/2026-07-29/part.jsonl.gz")
}

func TestWrite_ModelCacheReused(t *testing.T) {
	store := objectstore.NewMemStore()
	w := New(store, testLayout(), hooks.IdentityHooks{})
	ts := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	decisions := make([]rewardjoin.DecisionRecord, 5)
	for i := range decisions {
		decisions[i] = rewardjoin.DecisionRecord{HistoryID: "h", MessageID: "m", Timestamp: ts, Domain: "chat", Chosen: "A"}
	}
	_, err := w.Write(context.Background(), "acme", "s1", decisions)
	require.NoError(t, err)
	require.Equal(t, "chat", w.cache["acme"]["chat"])
}

type rejectingHooks struct{ hooks.IdentityHooks }

func (rejectingHooks) ModifyRewardedAction(_ string, rewarded map[string]interface{}) (map[string]interface{}, error) {
	delete(rewarded, "chosen")
	return rewarded, nil
}

func TestWrite_InvalidProjectionIsFatal(t *testing.T) {
	store := objectstore.NewMemStore()
	w := New(store, testLayout(), rejectingHooks{})
	ts := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	decisions := []rewardjoin.DecisionRecord{
		{HistoryID: "h1", MessageID: "m1", Timestamp: ts, Domain: "chat", Chosen: "A"},
	}
	_, err := w.Write(context.Background(), "acme", "s1", decisions)
	require.Error(t, err)
}

func TestWrite_EmptyDecisionsProducesNoOutput(t *testing.T) {
	store := objectstore.NewMemStore()
	w := New(store, testLayout(), hooks.IdentityHooks{})
	report, err := w.Write(context.Background(), "acme", "s1", nil)
	require.NoError(t, err)
	require.Equal(t, 0, report.TotalEmitted)
	require.Empty(t, store.Objects())
}

func TestWrite_LineIsValidJSON(t *testing.T) {
	store := objectstore.NewMemStore()
	w := New(store, testLayout(), hooks.IdentityHooks{})
	ts := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	decisions := []rewardjoin.DecisionRecord{
		{HistoryID: "h1", MessageID: "m1", Timestamp: ts, Domain: "chat", Chosen: "A", Reward: reward(1)},
	}
	_, err := w.Write(context.Background(), "acme", "s1", decisions)
	require.NoError(t, err)

	r, err := store.Get(context.Background(), "rewarded/acme/chat/s1/2026-07-29/part.jsonl.gz")
	require.NoError(t, err)
	defer r.Close()

	var decoded map[string]interface{}
	dec := json.NewDecoder(r)
	require.NoError(t, dec.Decode(&decoded))
	require.Equal(t, "m1", decoded["message_id"])
}
