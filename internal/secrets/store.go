package secrets

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

// List returns all secret keys under the given prefix ("" for all).
// The returned keys are relative (store prefix removed).
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	keyPrefix := s.prefix + prefix
	kvs, err := s.kv.List(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(kvs))
	for k := range kvs {
		keys = append(keys, strings.TrimPrefix(k, s.prefix))
	}
	return keys, nil
}

// Set encrypts the provided value with the cluster key and stores it under
// the given key. Overwrites any existing value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	var nonce [24]byte
	_, _ = rand.Read(nonce[:])
	sealed := secretbox.Seal(nonce[:], value, &nonce, &s.clusterK)
	b64 := base64.StdEncoding.EncodeToString(sealed)
	return s.kv.Put(ctx, s.prefix+key, b64)
}

// Get retrieves and decrypts the value stored under the given key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, found, err := s.kv.Get(ctx, s.prefix+key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New("secret not found")
	}
	sealed, err := base64.StdEncoding.DecodeString(val)
	if err != nil || len(sealed) < 24 {
		return nil, errors.New("invalid secret data")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.clusterK)
	if !ok {
		return nil, errors.New("decryption failed")
	}
	return plain, nil
}

// Delete removes the secret stored under the given key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, s.prefix+key)
}
