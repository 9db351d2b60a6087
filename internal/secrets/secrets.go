// Package secrets implements an encrypted key-value store for object-store
// credentials (S3/Azure access keys), backed by etcd and NaCl secretbox.
package secrets

// Store holds credentials encrypted-at-rest under a single symmetric cluster
// key. The cluster key itself is provisioned out of band (config/KMS) and
// handed to NewStore; this package only encrypts/decrypts values under it.
type Store struct {
	kv       KV
	prefix   string
	clusterK [32]byte
}

// NewStore constructs a Store over kv, scoping all keys under prefix and
// encrypting values with clusterKey.
func NewStore(kv KV, prefix string, clusterKey [32]byte) *Store {
	return &Store{kv: kv, prefix: prefix, clusterK: clusterKey}
}

func (s *Store) HasClusterKey() bool {
	var zero [32]byte
	return s.clusterK != zero
}
