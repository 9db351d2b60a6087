package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/banditpipe/rewardcore/internal/config"
	"github.com/banditpipe/rewardcore/internal/dispatcher"
	"github.com/banditpipe/rewardcore/internal/hooks"
)

var (
	dispatchForceProcessing      bool
	dispatchForceContinueReshard bool
)

func dispatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Trigger one dispatcher tick and print a per-project report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			return runDispatchOnce(cfg, dispatcher.DispatchEvent{
				ForceProcessing:      dispatchForceProcessing,
				ForceContinueReshard: dispatchForceContinueReshard,
			})
		},
	}
	cmd.Flags().BoolVar(&dispatchForceProcessing, "force", false, "ignore worker-count, stability, and cool-down gates")
	cmd.Flags().BoolVar(&dispatchForceContinueReshard, "force-continue-reshard", false, "ask the reshard subsystem to continue unfinished parents")
	return cmd
}

func runDispatchOnce(cfg *config.Config, event dispatcher.DispatchEvent) error {
	logger := log.New(os.Stdout, "[rewardassignctl] ", log.LstdFlags)

	store, err := newObjectStore(cfg)
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	reg, err := newRegistry(cfg.Etcd)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	defer reg.Close()

	worker := &dispatcher.Worker{
		Store:           store,
		Layout:          newLayout(cfg),
		Registry:        reg,
		Hooks:           hooks.IdentityHooks{},
		ReshardInvoker:  dispatcher.LoggingReshardInvoker{Logger: logger},
		MaxPayloadBytes: int64(cfg.RewardAssignment.WorkerMaxPayloadInMB) << 20,
		RewardWindow:    time.Duration(cfg.Customization.RewardWindowInSeconds) * time.Second,
		MaxParallel:     cfg.RewardAssignment.WorkerCount,
		Metrics:         &dispatcher.WorkerMetrics{},
		Logger:          logger,
	}

	d := &dispatcher.Dispatcher{
		Store:              store,
		Layout:             worker.Layout,
		Registry:           reg,
		WorkerInvoker:      dispatcher.InlineWorkerInvoker{Worker: worker, Logger: logger},
		ReshardInvoker:     worker.ReshardInvoker,
		WorkerCount:        cfg.RewardAssignment.WorkerCount,
		ReprocessShardWait: time.Duration(cfg.RewardAssignment.ReprocessShardWaitTimeInSeconds) * time.Second,
		Logger:             logger,
	}

	report, err := d.Dispatch(context.Background(), event)
	if err != nil {
		return err
	}
	for _, p := range report.Projects {
		fmt.Printf("%s: dispatched=%v skipped_cooldown=%v skipped_resharding=%v skipped_no_workers=%v reshard_continued=%v\n",
			p.Project, p.Dispatched, p.SkippedCooldown, p.SkippedResharding, p.SkippedNoWorkers, p.ReshardContinued)
		if p.Err != nil {
			fmt.Printf("%s: error: %v\n", p.Project, p.Err)
		}
	}
	return nil
}
