package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 4, cfg.RewardAssignment.WorkerCount)
	require.Equal(t, 300, cfg.RewardAssignment.ReprocessShardWaitTimeInSeconds)
	require.Equal(t, 256, cfg.RewardAssignment.WorkerMaxPayloadInMB)
	require.Equal(t, 86400, cfg.Customization.RewardWindowInSeconds)
	require.Equal(t, "s3", cfg.ObjectStore.Kind)
	require.Equal(t, "gzip", cfg.ObjectStore.Compression)
}

func TestLoad_WorkerCountFloorsAtOne(t *testing.T) {
	t.Setenv("REWARDCORE_REWARD_ASSIGNMENT__WORKER_COUNT", "0")
	cfg, err := Load("")
	require.NoError(t, err)
	require.GreaterOrEqual(t, cfg.RewardAssignment.WorkerCount, 1)
}
