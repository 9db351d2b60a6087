package naming

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banditpipe/rewardcore/internal/objectstore"
)

func testLayout() Layout {
	return Layout{
		HistoryPrefix:  "history",
		IncomingPrefix: "incoming",
		OutputPrefix:   "rewarded",
		Projects:       []string{"acme", "globex"},
		ProjectModels: map[string]map[string]string{
			"acme": {"chat": "acme-chat-v2", "default": "acme-base"},
		},
	}
}

func TestAllProjects(t *testing.T) {
	l := testLayout()
	require.Equal(t, []string{"acme", "globex"}, l.AllProjects())
}

func TestGetModelForDomain(t *testing.T) {
	l := testLayout()
	require.Equal(t, "acme-chat-v2", l.GetModelForDomain("acme", "chat"))
	require.Equal(t, "acme-base", l.GetModelForDomain("acme", "unknown-domain"))
	require.Equal(t, "default", l.GetModelForDomain("globex", "anything"))
}

func TestIsHistoryKey(t *testing.T) {
	l := testLayout()
	require.True(t, l.IsHistoryKey("history/acme/s1/2026-07-29/a.jsonl.gz"))
	require.False(t, l.IsHistoryKey("incoming/acme/s1/2026-07-29/a.jsonl.gz"))
}

func TestGetIncomingHistoryKey(t *testing.T) {
	l := testLayout()
	inc, err := l.GetIncomingHistoryKey("history/acme/s1/2026-07-29/a.jsonl.gz")
	require.NoError(t, err)
	require.Equal(t, "incoming/acme/s1/2026-07-29/a.jsonl.gz", inc)

	_, err = l.GetIncomingHistoryKey("incoming/acme/s1/2026-07-29/a.jsonl.gz")
	require.Error(t, err)
}

func TestGroupHistoryKeysByDatePath(t *testing.T) {
	l := testLayout()
	keys := []string{
		"history/acme/s1/2026-07-29/a.jsonl.gz",
		"history/acme/s1/2026-07-29/b.jsonl.gz",
		"history/acme/s1/2026-07-30/c.jsonl.gz",
	}
	groups, err := l.GroupHistoryKeysByDatePath(keys)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.ElementsMatch(t,
		[]string{"history/acme/s1/2026-07-29/a.jsonl.gz", "history/acme/s1/2026-07-29/b.jsonl.gz"},
		groups["history/acme/s1/2026-07-29"],
	)
}

func TestGetConsolidatedHistoryKey(t *testing.T) {
	l := testLayout()
	key, err := l.GetConsolidatedHistoryKey("history/acme/s1/2026-07-29/a.jsonl.gz")
	require.NoError(t, err)
	require.Equal(t, "history/acme/s1/2026-07-29/consolidated.jsonl.gz", key)
}

func TestGetRewardedDecisionKey(t *testing.T) {
	l := testLayout()
	key := l.GetRewardedDecisionKey("acme", "acme-chat-v2", "s1", "2026-07-29")
	require.Equal(t, "rewarded/acme/acme-chat-v2/s1/2026-07-29/part.jsonl.gz", key)
}

func TestListAllShards(t *testing.T) {
	l := testLayout()
	store := objectstore.NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.PutLines(ctx, "history/acme/s1/2026-07-29/a.jsonl.gz", nil))
	require.NoError(t, store.PutLines(ctx, "history/acme/s2/2026-07-29/a.jsonl.gz", nil))
	require.NoError(t, store.PutLines(ctx, "history/globex/s9/2026-07-29/a.jsonl.gz", nil))

	shards, err := l.ListAllShards(ctx, store, "acme")
	require.NoError(t, err)
	require.Equal(t, []string{"s1", "s2"}, shards)
}

func TestListAllIncomingHistoryShards(t *testing.T) {
	l := testLayout()
	store := objectstore.NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.PutLines(ctx, "incoming/acme/s1/2026-07-29/a.jsonl.gz", nil))

	shards, err := l.ListAllIncomingHistoryShards(ctx, store, "acme")
	require.NoError(t, err)
	require.Equal(t, []string{"s1"}, shards)
}

func TestListAllHistoryShardObjectsWithMetadata(t *testing.T) {
	l := testLayout()
	store := objectstore.NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.PutLines(ctx, "history/acme/s1/2026-07-29/a.jsonl.gz", [][]byte{[]byte("x")}))
	require.NoError(t, store.PutLines(ctx, "history/acme/s2/2026-07-29/a.jsonl.gz", nil))

	objs, err := l.ListAllHistoryShardObjectsWithMetadata(ctx, store, "acme", "s1")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, "history/acme/s1/2026-07-29/a.jsonl.gz", objs[0].Key)
	require.Greater(t, objs[0].Size, int64(0))
}

func TestIsObjectNotArray(t *testing.T) {
	require.True(t, IsObjectNotArray([]byte(`{"a":1}`)))
	require.False(t, IsObjectNotArray([]byte(`[1,2,3]`)))
}

func TestAssertValidRewardedDecision(t *testing.T) {
	valid := map[string]interface{}{
		"chosen": "a", "context": map[string]interface{}{}, "domain": "d",
		"timestamp": "2026-07-29T00:00:00Z", "message_id": "m1", "history_id": "h1",
		"propensity": 0.5,
	}
	require.NoError(t, AssertValidRewardedDecision(valid))

	missing := map[string]interface{}{"chosen": "a"}
	err := AssertValidRewardedDecision(missing)
	require.Error(t, err)
	require.Contains(t, err.Error(), "context")
}
