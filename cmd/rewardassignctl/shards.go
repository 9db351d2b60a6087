package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/banditpipe/rewardcore/internal/config"
	"github.com/banditpipe/rewardcore/internal/registry"
)

var shardsProject string

func shardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shards",
		Short: "List a project's shards with their registry status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			return runShards(cfg, shardsProject)
		},
	}
	cmd.Flags().StringVar(&shardsProject, "project", "", "project name (required)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func runShards(cfg *config.Config, project string) error {
	ctx := context.Background()

	store, err := newObjectStore(cfg)
	if err != nil {
		return err
	}
	reg, err := newRegistry(cfg.Etcd)
	if err != nil {
		return err
	}
	defer reg.Close()
	layout := newLayout(cfg)

	shards, err := layout.ListAllShards(ctx, store, project)
	if err != nil {
		return err
	}
	sort.Strings(shards)
	groups := registry.GroupShards(shards)

	class := make(map[string]string, len(shards))
	for _, s := range groups.Parents {
		class[s] = "parent"
	}
	for _, s := range groups.Children {
		class[s] = "child"
	}
	for _, s := range groups.Stable {
		class[s] = "stable"
	}

	lastProcessed, err := reg.LoadAndConsolidateShardLastProcessed(ctx, project)
	if err != nil {
		return err
	}

	cooldown := time.Duration(cfg.RewardAssignment.ReprocessShardWaitTimeInSeconds) * time.Second
	now := time.Now()

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SHARD\tCLASS\tLAST PROCESSED\tIN COOLDOWN")
	for _, shard := range shards {
		lp, seen := lastProcessed[shard]
		age := "never"
		inCooldown := "no"
		if seen {
			age = humanize.Time(lp)
			if now.Sub(lp) < cooldown {
				inCooldown = "yes"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", shard, class[shard], age, inCooldown)
	}
	return w.Flush()
}
