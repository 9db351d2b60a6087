package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/banditpipe/rewardcore/internal/config"
	"github.com/banditpipe/rewardcore/internal/dispatcher"
	"github.com/banditpipe/rewardcore/internal/hooks"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rewardassignd",
	Short: "rewardassignd assigns rewards to bandit decisions (dispatch/worker)",
}

var (
	flagForceProcessing      bool
	flagForceContinueReshard bool
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run one dispatcher tick and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		return runDispatch(cfg, dispatcher.DispatchEvent{
			ForceProcessing:      flagForceProcessing,
			ForceContinueReshard: flagForceContinueReshard,
		})
	},
}

var (
	flagProject string
	flagShard   string
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run one worker invocation for a (project, shard) pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagProject == "" || flagShard == "" {
			return fmt.Errorf("--project and --shard are required")
		}
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		return runWorker(cfg, dispatcher.Payload{Project: flagProject, Shard: flagShard})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $PWD/rewardassignd.yaml)")

	dispatchCmd.Flags().BoolVar(&flagForceProcessing, "force-processing", false, "ignore worker-count, stability, and cool-down gates")
	dispatchCmd.Flags().BoolVar(&flagForceContinueReshard, "force-continue-reshard", false, "ask the reshard subsystem to continue unfinished parents")
	rootCmd.AddCommand(dispatchCmd)

	workerCmd.Flags().StringVar(&flagProject, "project", "", "project name")
	workerCmd.Flags().StringVar(&flagShard, "shard", "", "shard id")
	rootCmd.AddCommand(workerCmd)
}

func buildWorker(cfg *config.Config, logger *log.Logger) (*dispatcher.Worker, func() error, error) {
	store, err := newObjectStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("object store: %w", err)
	}
	reg, err := newRegistry(cfg.Etcd)
	if err != nil {
		return nil, nil, fmt.Errorf("registry: %w", err)
	}

	w := &dispatcher.Worker{
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
	return w, reg.Close, nil
}

func runDispatch(cfg *config.Config, event dispatcher.DispatchEvent) error {
	logger := log.New(os.Stdout, "[dispatch] ", log.LstdFlags)

	w, closeReg, err := buildWorker(cfg, log.New(os.Stdout, "[worker] ", log.LstdFlags))
	if err != nil {
		return err
	}
	defer closeReg()

	d := &dispatcher.Dispatcher{
		Store:              w.Store,
		Layout:             w.Layout,
		Registry:           w.Registry,
		WorkerInvoker:      dispatcher.InlineWorkerInvoker{Worker: w, Logger: logger},
		ReshardInvoker:     w.ReshardInvoker,
		WorkerCount:        cfg.RewardAssignment.WorkerCount,
		ReprocessShardWait: time.Duration(cfg.RewardAssignment.ReprocessShardWaitTimeInSeconds) * time.Second,
		Logger:             logger,
	}

	report, err := d.Dispatch(cmdContext(), event)
	if err != nil {
		return err
	}
	for _, p := range report.Projects {
		logger.Printf("project %s: dispatched=%v skipped_cooldown=%v skipped_resharding=%v skipped_no_workers=%v reshard_continued=%v err=%v",
			p.Project, p.Dispatched, p.SkippedCooldown, p.SkippedResharding, p.SkippedNoWorkers, p.ReshardContinued, p.Err)
	}
	return nil
}

func runWorker(cfg *config.Config, payload dispatcher.Payload) error {
	invocationID := uuid.NewString()
	logger := log.New(os.Stdout, fmt.Sprintf("[worker %s] ", invocationID), log.LstdFlags)

	w, closeReg, err := buildWorker(cfg, logger)
	if err != nil {
		return err
	}
	defer closeReg()

	result, err := w.AssignRewards(cmdContext(), payload)
	if err != nil {
		return err
	}
	logger.Printf("%s/%s: reshared=%v emitted=%d non_zero_reward=%d max_reward=%.4f mean_reward=%.4f duplicates=%d",
		payload.Project, payload.Shard, result.Reshared, result.TotalEmitted, result.NonZeroRewardCount, result.MaxReward, result.MeanReward, result.Duplicates)
	return nil
}

func cmdContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
	}()
	return ctx
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
