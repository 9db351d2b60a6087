package hooks

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityHooks_ModelNameForAction(t *testing.T) {
	h := IdentityHooks{}
	name, err := h.ModelNameForAction(DecisionRecord{"domain": "chat"})
	require.NoError(t, err)
	require.Equal(t, "chat", name)

	name, err = h.ModelNameForAction(DecisionRecord{})
	require.NoError(t, err)
	require.Equal(t, "default", name)
}

func TestIdentityHooks_ModifyHistoryRecordsIsIdentity(t *testing.T) {
	h := IdentityHooks{}
	in := []HistoryRecord{{"message_id": "m1"}}
	out, err := h.ModifyHistoryRecords("acme", in)
	require.NoError(t, err)
	require.Same(t, &in[0], &out[0])
}

func TestIdentityHooks_RewardsRecordFromHistoryRecord(t *testing.T) {
	h := IdentityHooks{}

	rewards, err := h.RewardsRecordFromHistoryRecord("acme", HistoryRecord{
		"rewards": map[string]interface{}{"reward": 1.0},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"reward": 1.0}, rewards)

	rewards, err = h.RewardsRecordFromHistoryRecord("acme", HistoryRecord{})
	require.NoError(t, err)
	require.Nil(t, rewards)
}

func TestIdentityHooks_GetProjectName(t *testing.T) {
	h := IdentityHooks{}
	name, err := h.GetProjectName(map[string]interface{}{"project": "acme"})
	require.NoError(t, err)
	require.Equal(t, "acme", name)

	_, err = h.GetProjectName(map[string]interface{}{})
	require.Error(t, err)
}

func TestIdentityHooks_ActionRecordsFromHistoryRecordPassesThrough(t *testing.T) {
	h := IdentityHooks{}
	inferred := []DecisionRecord{{"chosen": "a"}}
	out, err := h.ActionRecordsFromHistoryRecord("acme", HistoryRecord{}, inferred)
	require.NoError(t, err)
	require.Equal(t, inferred, out)
}
