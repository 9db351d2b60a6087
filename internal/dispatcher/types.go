// Package dispatcher implements the two control-plane roles of the
// reward-assignment core: the dispatcher tick that fans out work across
// projects and shards, and the worker invocation that assigns rewards for
// one (project, shard) pair.
package dispatcher

import (
	"context"
	"time"

	"github.com/banditpipe/rewardcore/internal/objectstore"
)

// DispatchEvent is the dispatcher's input: both flags default false.
type DispatchEvent struct {
	ForceProcessing      bool `json:"force_processing,omitempty"`
	ForceContinueReshard bool `json:"force_continue_reshard,omitempty"`
}

// Payload is one worker invocation's input.
type Payload struct {
	Project                      string `json:"project_name"`
	Shard                         string `json:"shard_id"`
	LastProcessedTimestampUpdated bool  `json:"last_processed_timestamp_updated"`
}

// ProjectReport summarizes one project's dispatch outcome.
type ProjectReport struct {
	Project            string
	Dispatched         []string
	SkippedCooldown    []string
	SkippedResharding  []string
	SkippedNoWorkers   []string
	ReshardContinued   []string
	Err                error
}

// Report summarizes one Dispatch call across every project.
type Report struct {
	Projects []ProjectReport
}

// AssignResult summarizes one AssignRewards call.
type AssignResult struct {
	Reshared           bool
	TotalEmitted       int
	NonZeroRewardCount int
	MaxReward          float64
	MeanReward         float64
	Duplicates         int
}

// PassError marks a fatal-to-pass failure: the worker invocation is
// abandoned without deleting incoming markers, so the next dispatch retries.
type PassError struct{ Err error }

func (e *PassError) Error() string { return "dispatcher: pass aborted: " + e.Err.Error() }
func (e *PassError) Unwrap() error { return e.Err }

// DispatchError marks a fatal-to-dispatch failure: malformed payload or
// missing configuration, caught before any work begins.
type DispatchError struct{ Err error }

func (e *DispatchError) Error() string { return "dispatcher: " + e.Err.Error() }
func (e *DispatchError) Unwrap() error { return e.Err }

// WorkerInvoker enqueues an asynchronous worker invocation. Delivery is
// fire-and-forget and at-least-once; workers are expected to be idempotent.
type WorkerInvoker interface {
	Invoke(ctx context.Context, payload Payload) error
}

// ReshardInvoker stands in for the external resharding subsystem.
type ReshardInvoker interface {
	InvokeReshard(ctx context.Context, project, shard string) error
	ContinueReshard(ctx context.Context, project, parentShard string) error
}

// StaleFilter restricts the history objects a worker invocation reads to the
// bounded time region affected by incoming events. The intended windowing
// semantics are an open question (spec §9 note 1); IdentityStaleFilter is
// the documented default.
type StaleFilter interface {
	Filter(objects []objectstore.ObjectMeta) []objectstore.ObjectMeta
}

// IdentityStaleFilter reads every history object unfiltered.
type IdentityStaleFilter struct{}

func (IdentityStaleFilter) Filter(objects []objectstore.ObjectMeta) []objectstore.ObjectMeta {
	return objects
}

const (
	mainLoopErrorThreshold = 3
	maxMainLoopBackoff      = 30 * time.Second
)
