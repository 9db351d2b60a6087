package main

import (
	"encoding/base64"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/banditpipe/rewardcore/internal/config"
	"github.com/banditpipe/rewardcore/internal/naming"
	"github.com/banditpipe/rewardcore/internal/objectstore"
	"github.com/banditpipe/rewardcore/internal/registry"
	"github.com/banditpipe/rewardcore/internal/secrets"
)

// newEtcdClient connects to the registry/secrets etcd cluster described by
// cfg. The registry and secrets store each hold their own client, mirroring
// how the teacher's cluster and secrets packages keep independent
// connections rather than sharing one.
func newEtcdClient(cfg config.EtcdConfig) (*clientv3.Client, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 5 * time.Second
	}
	return clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: dialTimeout,
	})
}

func newRegistry(cfg config.EtcdConfig) (*registry.EtcdRegistry, error) {
	return registry.NewEtcdRegistry(registry.EtcdConfig{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: cfg.DialTimeout,
		Prefix:      cfg.Prefix,
	})
}

func newSecretsStore(cfg *config.Config) (*secrets.Store, error) {
	cli, err := newEtcdClient(cfg.Etcd)
	if err != nil {
		return nil, fmt.Errorf("secrets: etcd client: %w", err)
	}
	var clusterKey [32]byte
	if cfg.Secrets.ClusterKey != "" {
		raw, err := base64.StdEncoding.DecodeString(cfg.Secrets.ClusterKey)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("secrets: cluster_key must be 32 bytes, base64-encoded")
		}
		copy(clusterKey[:], raw)
	}
	return secrets.NewStore(secrets.EtcdKV{Client: cli}, cfg.Secrets.Prefix, clusterKey), nil
}

// newObjectStore builds the configured Store implementation (S3 or Azure
// Blob), wiring the encrypted secrets store for credential lookup.
func newObjectStore(cfg *config.Config) (objectstore.Store, error) {
	secretStore, err := newSecretsStore(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.ObjectStore.Kind {
	case "", "s3":
		return objectstore.NewS3Store(objectstore.S3Config{
			Bucket:                cfg.RecordsBucket,
			Region:                cfg.ObjectStore.Region,
			Endpoint:              cfg.ObjectStore.Endpoint,
			Compression:           cfg.ObjectStore.Compression,
			AccessKeyIDSecret:     cfg.ObjectStore.AccessKeyIDSecret,
			SecretAccessKeySecret: cfg.ObjectStore.SecretAccessKeySecret,
			BufferType:            cfg.ObjectStore.BufferType,
		}, secretStore)
	case "azure":
		return objectstore.NewAzureBlobStore(objectstore.AzureBlobConfig{
			Account:         cfg.ObjectStore.Account,
			Container:       cfg.ObjectStore.Container,
			Compression:     cfg.ObjectStore.Compression,
			AccessKeySecret: cfg.ObjectStore.AccessKeyIDSecret,
			BufferType:      cfg.ObjectStore.BufferType,
		}, secretStore)
	default:
		return nil, fmt.Errorf("unknown object_store.kind %q", cfg.ObjectStore.Kind)
	}
}

func newLayout(cfg *config.Config) naming.Layout {
	return naming.Layout{
		HistoryPrefix:  "history",
		IncomingPrefix: "incoming",
		OutputPrefix:   "rewarded_decisions",
		Projects:       cfg.Customization.Projects,
		ProjectModels:  cfg.Customization.ProjectNamesToModelNamesMapping,
	}
}
