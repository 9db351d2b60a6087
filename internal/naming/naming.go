// Package naming implements the pure mapping between logical identifiers
// (project, shard, history id, date) and object-store keys. Nothing in this
// package touches the network; callers inject an objectstore.Store for the
// enumeration helpers that need to list real objects.
package naming

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/banditpipe/rewardcore/internal/objectstore"
)

// Layout holds the bucket/prefix conventions the rest of the module builds
// keys against. Production code constructs one from config; tests can use a
// throwaway Layout pointed at an in-memory store.
type Layout struct {
	HistoryPrefix  string // e.g. "history"
	IncomingPrefix string // e.g. "incoming"
	OutputPrefix   string // e.g. "rewarded"

	// Projects enumerates the static set of known projects.
	Projects []string

	// ProjectModels maps project -> domain -> model name. A "default" entry
	// in the inner map, if present, is used when a domain has no direct
	// mapping.
	ProjectModels map[string]map[string]string
}

// AllProjects returns the statically configured projects.
func (l Layout) AllProjects() []string {
	out := make([]string, len(l.Projects))
	copy(out, l.Projects)
	return out
}

// GetModelForDomain resolves a domain to an output model name via the static
// project -> model mapping, falling back to "default".
func (l Layout) GetModelForDomain(project, domain string) string {
	models, ok := l.ProjectModels[project]
	if !ok {
		return "default"
	}
	if m, ok := models[domain]; ok {
		return m
	}
	if m, ok := models["default"]; ok {
		return m
	}
	return "default"
}

func join(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return path.Join(cleaned...)
}

// historyShardPrefix is the key prefix under which every history object for
// (project, shard) lives.
func (l Layout) historyShardPrefix(project, shard string) string {
	return join(l.HistoryPrefix, project, shard) + "/"
}

func (l Layout) incomingShardPrefix(project, shard string) string {
	return join(l.IncomingPrefix, project, shard) + "/"
}

// IsHistoryKey reports whether key belongs under the history prefix.
func (l Layout) IsHistoryKey(key string) bool {
	return strings.HasPrefix(key, l.HistoryPrefix+"/")
}

// GetIncomingHistoryKey maps a history object key to the incoming-marker key
// that shadows it; the two share every path segment after their prefix.
func (l Layout) GetIncomingHistoryKey(historyKey string) (string, error) {
	rest := strings.TrimPrefix(historyKey, l.HistoryPrefix+"/")
	if rest == historyKey {
		return "", fmt.Errorf("naming: %q is not a history key", historyKey)
	}
	return join(l.IncomingPrefix, rest), nil
}

// splitKey splits a history or incoming key into its (project,
// shard, datePath, name) components.
func (l Layout) splitKey(prefix, key string) (project, shard, datePath, name string, err error) {
	rest := strings.TrimPrefix(key, prefix+"/")
	if rest == key {
		return "", "", "", "", fmt.Errorf("naming: %q has no %s prefix", key, prefix)
	}
	segs := strings.Split(rest, "/")
	if len(segs) < 4 {
		return "", "", "", "", fmt.Errorf("naming: %q is malformed (want project/shard/datePath/name)", key)
	}
	return segs[0], segs[1], segs[2], path.Join(segs[3:]...), nil
}

// GroupHistoryKeysByDatePath groups history keys that share a calendar-date
// path; each group is a consolidation candidate.
func (l Layout) GroupHistoryKeysByDatePath(keys []string) (map[string][]string, error) {
	groups := make(map[string][]string)
	for _, k := range keys {
		project, shard, datePath, _, err := l.splitKey(l.HistoryPrefix, k)
		if err != nil {
			return nil, err
		}
		groupKey := join(l.HistoryPrefix, project, shard, datePath)
		groups[groupKey] = append(groups[groupKey], k)
	}
	for _, group := range groups {
		sort.Strings(group)
	}
	return groups, nil
}

// GetConsolidatedHistoryKey returns the canonical key a date-path's
// consolidated object is written to, derived from any key in that group.
func (l Layout) GetConsolidatedHistoryKey(anyKeyFromGroup string) (string, error) {
	project, shard, datePath, _, err := l.splitKey(l.HistoryPrefix, anyKeyFromGroup)
	if err != nil {
		return "", err
	}
	return join(l.HistoryPrefix, project, shard, datePath, "consolidated.jsonl.gz"), nil
}

// GetRewardedDecisionKey returns the output key a rewarded decision with the
// given coordinates collates into.
func (l Layout) GetRewardedDecisionKey(project, model, shard, timestampDate string) string {
	return join(l.OutputPrefix, project, model, shard, timestampDate, "part.jsonl.gz")
}

// ListAllShards enumerates every shard id with at least one history object
// under the given project.
func (l Layout) ListAllShards(ctx context.Context, store objectstore.Store, project string) ([]string, error) {
	return l.listShardIDs(ctx, store, join(l.HistoryPrefix, project)+"/")
}

// ListAllIncomingHistoryShards enumerates every shard id with at least one
// pending incoming marker under the given project.
func (l Layout) ListAllIncomingHistoryShards(ctx context.Context, store objectstore.Store, project string) ([]string, error) {
	return l.listShardIDs(ctx, store, join(l.IncomingPrefix, project)+"/")
}

func (l Layout) listShardIDs(ctx context.Context, store objectstore.Store, prefix string) ([]string, error) {
	objs, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("naming: list %s: %w", prefix, err)
	}
	seen := make(map[string]struct{})
	var shards []string
	for _, o := range objs {
		rest := strings.TrimPrefix(o.Key, prefix)
		segs := strings.SplitN(rest, "/", 2)
		if len(segs) == 0 || segs[0] == "" {
			continue
		}
		if _, ok := seen[segs[0]]; ok {
			continue
		}
		seen[segs[0]] = struct{}{}
		shards = append(shards, segs[0])
	}
	sort.Strings(shards)
	return shards, nil
}

// ListAllHistoryShardObjectsWithMetadata lists every history object for
// (project, shard), with size.
func (l Layout) ListAllHistoryShardObjectsWithMetadata(ctx context.Context, store objectstore.Store, project, shard string) ([]objectstore.ObjectMeta, error) {
	objs, err := store.List(ctx, l.historyShardPrefix(project, shard))
	if err != nil {
		return nil, fmt.Errorf("naming: list history objects for %s/%s: %w", project, shard, err)
	}
	return objs, nil
}

// ListAllIncomingHistoryShardKeys lists every pending incoming-marker key for
// (project, shard).
func (l Layout) ListAllIncomingHistoryShardKeys(ctx context.Context, store objectstore.Store, project, shard string) ([]string, error) {
	objs, err := store.List(ctx, l.incomingShardPrefix(project, shard))
	if err != nil {
		return nil, fmt.Errorf("naming: list incoming keys for %s/%s: %w", project, shard, err)
	}
	keys := make([]string, len(objs))
	for i, o := range objs {
		keys[i] = o.Key
	}
	return keys, nil
}

// IsObjectNotArray reports whether a raw JSON value is anything other than
// a JSON array — used to reject malformed history lines that smuggle an
// array where a single record object is expected.
func IsObjectNotArray(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return !strings.HasPrefix(trimmed, "[")
}

// AssertValidRewardedDecision raises an error if record is missing any field
// required of an emitted rewarded decision.
func AssertValidRewardedDecision(record map[string]interface{}) error {
	required := []string{"chosen", "context", "domain", "timestamp", "message_id", "history_id", "propensity"}
	var missing []string
	for _, field := range required {
		v, ok := record[field]
		if !ok || v == nil {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("naming: rewarded decision missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
