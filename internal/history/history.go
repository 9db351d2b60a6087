// Package history loads and deduplicates the stale history for one
// (project, shard) pass: it streams every relevant history object, drops
// records whose message_id is missing or already seen this pass, and
// consolidates multi-object date-paths into one canonical object.
package history

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/banditpipe/rewardcore/internal/hooks"
	"github.com/banditpipe/rewardcore/internal/naming"
	"github.com/banditpipe/rewardcore/internal/objectstore"
	"github.com/banditpipe/rewardcore/internal/rewardjoin"
)

// LoadResult is the outcome of one Load call.
type LoadResult struct {
	Records    []rewardjoin.HistoryRecord
	Duplicates int
}

// Load groups the given history keys by date-path, streams and dedupes each
// group's objects (bounded by maxParallel concurrent group loads),
// consolidates any date-path backed by more than one object, and finally
// applies the ModifyHistoryRecords hook over the whole pass.
func Load(ctx context.Context, store objectstore.Store, layout naming.Layout, project string, keys []string, h hooks.Hooks, maxParallel int) (LoadResult, error) {
	if maxParallel < 1 {
		maxParallel = 1
	}

	groups, err := layout.GroupHistoryKeysByDatePath(keys)
	if err != nil {
		return LoadResult{}, fmt.Errorf("history: group keys: %w", err)
	}

	groupKeys := make([]string, 0, len(groups))
	for gk := range groups {
		groupKeys = append(groupKeys, gk)
	}
	sort.Strings(groupKeys)

	dedup := &dedupState{seen: make(map[string]struct{})}
	results := make([]groupOutcome, len(groupKeys))

	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup
	for i, gk := range groupKeys {
		i, objectKeys := i, groups[gk]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			records, dup, err := loadGroup(ctx, store, objectKeys, dedup)
			if err == nil && len(objectKeys) > 1 {
				err = consolidate(ctx, store, layout, objectKeys, records)
			}
			results[i] = groupOutcome{records: records, duplicates: dup, err: err}
		}()
	}
	wg.Wait()

	var goodRecords, poisonedRecords []rewardjoin.HistoryRecord
	duplicates := 0
	for _, r := range results {
		if r.err != nil {
			return LoadResult{}, r.err
		}
		for _, rec := range r.records {
			if rec.DecodeError != nil {
				poisonedRecords = append(poisonedRecords, rec)
				continue
			}
			goodRecords = append(goodRecords, rec)
		}
		duplicates += r.duplicates
	}

	// Poisoned records never reach ModifyHistoryRecords: the hook's generic
	// map round-trip (HistoryRecordToMap/MapToHistoryRecord) has no slot for
	// DecodeError and would silently discard it, erasing the group
	// isolation Build relies on.
	customized, err := applyModifyHistoryRecords(project, goodRecords, h)
	if err != nil {
		return LoadResult{}, fmt.Errorf("history: modifyHistoryRecords: %w", err)
	}
	customized = append(customized, poisonedRecords...)

	return LoadResult{Records: customized, Duplicates: duplicates}, nil
}

type groupOutcome struct {
	records    []rewardjoin.HistoryRecord
	duplicates int
	err        error
}

type dedupState struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func (d *dedupState) markSeen(messageID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[messageID]; ok {
		return false
	}
	d.seen[messageID] = struct{}{}
	return true
}

// historyIDPeek extracts just enough of a malformed line to keep a decode
// failure scoped to its own history_id group, without requiring the line to
// fully satisfy rewardjoin.HistoryRecord's shape.
type historyIDPeek struct {
	HistoryID string `json:"history_id"`
	MessageID string `json:"message_id"`
}

func loadGroup(ctx context.Context, store objectstore.Store, objectKeys []string, dedup *dedupState) ([]rewardjoin.HistoryRecord, int, error) {
	var survivors []rewardjoin.HistoryRecord
	duplicates := 0

	for _, key := range objectKeys {
		if err := func() error {
			r, err := store.Get(ctx, key)
			if err != nil {
				return fmt.Errorf("get %s: %w", key, err)
			}
			defer r.Close()

			scanner := bufio.NewScanner(r)
			scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
			lineNo := 0
			for scanner.Scan() {
				lineNo++
				line := bytes.TrimSpace(scanner.Bytes())
				if len(line) == 0 {
					continue
				}
				var rec rewardjoin.HistoryRecord
				if err := json.Unmarshal(line, &rec); err != nil {
					// A malformed line (e.g. a non-sequence "decisions" or a
					// non-mapping "rewards") is fatal-to-group, not
					// fatal-to-pass: it's carried forward as its own
					// poisoned record rather than aborting every other
					// history_id in the shard.
					survivors = append(survivors, poisonedRecord(key, lineNo, line, err))
					continue
				}
				if rec.MessageID == "" || !dedup.markSeen(rec.MessageID) {
					duplicates++
					continue
				}
				survivors = append(survivors, rec)
			}
			return scanner.Err()
		}(); err != nil {
			return nil, 0, err
		}
	}

	return survivors, duplicates, nil
}

// poisonedRecord builds a stand-in HistoryRecord for a line that failed to
// decode. It best-effort scavenges history_id/message_id from the raw line
// so the failure groups with its own conversation where possible; when even
// that peek fails, it's given a synthetic history_id unique to its source
// line so it can't collide with — or abort — any real group.
func poisonedRecord(key string, lineNo int, line []byte, decodeErr error) rewardjoin.HistoryRecord {
	var peek historyIDPeek
	_ = json.Unmarshal(line, &peek)

	historyID := peek.HistoryID
	if historyID == "" {
		historyID = fmt.Sprintf("__decode_error__:%s:%d", key, lineNo)
	}

	return rewardjoin.HistoryRecord{
		HistoryID:   historyID,
		MessageID:   peek.MessageID,
		DecodeError: fmt.Errorf("decode %s line %d: %w", key, lineNo, decodeErr),
	}
}

// consolidate writes the surviving records of a multi-object date-path group
// as one compressed-JSONL object, then deletes the originals. It never
// alters the content of the records it writes.
func consolidate(ctx context.Context, store objectstore.Store, layout naming.Layout, objectKeys []string, records []rewardjoin.HistoryRecord) error {
	consolidatedKey, err := layout.GetConsolidatedHistoryKey(objectKeys[0])
	if err != nil {
		return fmt.Errorf("consolidated key: %w", err)
	}

	lines := make([][]byte, len(records))
	for i, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", rec.MessageID, err)
		}
		lines[i] = line
	}

	if err := store.PutLines(ctx, consolidatedKey, lines); err != nil {
		return fmt.Errorf("write consolidated %s: %w", consolidatedKey, err)
	}

	toDelete := make([]string, 0, len(objectKeys))
	for _, k := range objectKeys {
		if k != consolidatedKey {
			toDelete = append(toDelete, k)
		}
	}
	if err := store.Delete(ctx, toDelete); err != nil {
		return fmt.Errorf("delete originals: %w", err)
	}
	return nil
}

func applyModifyHistoryRecords(project string, records []rewardjoin.HistoryRecord, h hooks.Hooks) ([]rewardjoin.HistoryRecord, error) {
	maps := make([]hooks.HistoryRecord, len(records))
	for i, r := range records {
		maps[i] = rewardjoin.HistoryRecordToMap(r)
	}
	out, err := h.ModifyHistoryRecords(project, maps)
	if err != nil {
		return nil, err
	}
	result := make([]rewardjoin.HistoryRecord, len(out))
	for i, m := range out {
		rec, err := rewardjoin.MapToHistoryRecord(m)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		result[i] = rec
	}
	return result, nil
}
