package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdConfig configures an EtcdRegistry.
type EtcdConfig struct {
	Endpoints   []string
	Username    string // optional
	Password    string // optional
	DialTimeout time.Duration
	Prefix      string // default: "/rewardcore/registry"
}

// EtcdRegistry is a Registry backed by etcd, grounded on the CAS/scan idioms
// certslurp's cluster/shards.go uses for shard assignment, repurposed here
// from worker-assignment leases to last-processed timestamps.
type EtcdRegistry struct {
	client *clientv3.Client
	cfg    EtcdConfig
}

func NewEtcdRegistry(cfg EtcdConfig) (*EtcdRegistry, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "/rewardcore/registry"
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: etcd client init: %w", err)
	}
	return &EtcdRegistry{client: cli, cfg: cfg}, nil
}

func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}

func (r *EtcdRegistry) shardPrefix(project, shard string) string {
	return fmt.Sprintf("%s/projects/%s/shards/%s/", r.cfg.Prefix, project, shard)
}

// LoadAndConsolidateShardLastProcessed scans every last_processed key under
// the project and, per shard id, keeps the maximum timestamp across however
// many keys contributed one — the same "scan-prefix, take max" fold
// GetShardAssignments uses to reduce many etcd keys to one logical status.
func (r *EtcdRegistry) LoadAndConsolidateShardLastProcessed(ctx context.Context, project string) (map[string]time.Time, error) {
	prefix := fmt.Sprintf("%s/projects/%s/shards/", r.cfg.Prefix, project)
	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("registry: get %s: %w", prefix, err)
	}

	out := make(map[string]time.Time)
	for _, kv := range resp.Kvs {
		key := strings.TrimPrefix(string(kv.Key), prefix)
		segs := strings.SplitN(key, "/", 2)
		if len(segs) != 2 || segs[1] != "last_processed" {
			continue
		}
		shard := segs[0]
		nanos, err := strconv.ParseInt(string(kv.Value), 10, 64)
		if err != nil {
			continue
		}
		ts := time.Unix(0, nanos).UTC()
		if existing, ok := out[shard]; !ok || ts.After(existing) {
			out[shard] = ts
		}
	}
	return out, nil
}

// UpdateShardLastProcessed writes now unconditionally to the shard's single
// last_processed key, so the last write wins even if it carries an older
// timestamp than the value it replaces.
func (r *EtcdRegistry) UpdateShardLastProcessed(ctx context.Context, project, shard string, now time.Time) error {
	key := r.shardPrefix(project, shard) + "last_processed"
	_, err := r.client.Put(ctx, key, strconv.FormatInt(now.UnixNano(), 10))
	if err != nil {
		return fmt.Errorf("registry: put %s: %w", key, err)
	}
	return nil
}
