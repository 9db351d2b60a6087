package secrets

import (
	"crypto/rand"
	"testing"
)

// SetupTestStore returns a Store backed by an in-memory KV and a randomly
// generated cluster key, for use by tests across the module.
func SetupTestStore(t *testing.T) *Store {
	t.Helper()
	var clusterKey [32]byte
	if _, err := rand.Read(clusterKey[:]); err != nil {
		t.Fatalf("failed to generate cluster key: %v", err)
	}
	return NewStore(NewMemKV(), "/rewardcore/secrets/store/", clusterKey)
}
