package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGroupShards_Stable(t *testing.T) {
	groups := GroupShards([]string{"alpha", "beta", "gamma"})
	require.ElementsMatch(t, []string{"alpha", "beta", "gamma"}, groups.Stable)
	require.Empty(t, groups.Parents)
	require.Empty(t, groups.Children)
}

func TestGroupShards_ParentChild(t *testing.T) {
	groups := GroupShards([]string{"shard1", "shard1-0", "shard1-1", "shard2"})
	require.ElementsMatch(t, []string{"shard1"}, groups.Parents)
	require.ElementsMatch(t, []string{"shard1-0", "shard1-1"}, groups.Children)
	require.ElementsMatch(t, []string{"shard2"}, groups.Stable)
}

func TestGroupShards_ChildWithoutLiveParentIsStable(t *testing.T) {
	groups := GroupShards([]string{"shard1-0", "shard1-1"})
	require.Empty(t, groups.Parents)
	require.Empty(t, groups.Children)
	require.ElementsMatch(t, []string{"shard1-0", "shard1-1"}, groups.Stable)
}

func TestGroupShards_NonNumericSuffixIsNotChild(t *testing.T) {
	groups := GroupShards([]string{"eu-west", "eu-west-prod"})
	require.ElementsMatch(t, []string{"eu-west", "eu-west-prod"}, groups.Stable)
}

func TestGroupShards_DeterministicUnderResort(t *testing.T) {
	a := GroupShards([]string{"shard2", "shard1", "shard1-0"})
	b := GroupShards([]string{"shard1", "shard1-0", "shard2"})
	require.Equal(t, a, b)
}

func TestMemRegistry_UpdateAndLoad(t *testing.T) {
	reg := NewMemRegistry()
	ctx := context.Background()
	t1 := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	require.NoError(t, reg.UpdateShardLastProcessed(ctx, "acme", "s1", t1))
	require.NoError(t, reg.UpdateShardLastProcessed(ctx, "acme", "s1", t2))

	out, err := reg.LoadAndConsolidateShardLastProcessed(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, t2, out["s1"])
}

func TestMemRegistry_ConsolidatesMax(t *testing.T) {
	reg := NewMemRegistry()
	ctx := context.Background()
	newer := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	require.NoError(t, reg.UpdateShardLastProcessed(ctx, "acme", "s1", newer))
	require.NoError(t, reg.UpdateShardLastProcessed(ctx, "acme", "s1", older))

	out, err := reg.LoadAndConsolidateShardLastProcessed(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, newer, out["s1"])
}

func TestMemRegistry_UnknownProjectIsEmpty(t *testing.T) {
	reg := NewMemRegistry()
	out, err := reg.LoadAndConsolidateShardLastProcessed(context.Background(), "nope")
	require.NoError(t, err)
	require.Empty(t, out)
}
