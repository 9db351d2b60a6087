package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rewardassignctl",
	Short: "rewardassignctl inspects and drives the reward-assignment core",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $PWD/rewardassignd.yaml)")
	rootCmd.AddCommand(shardsCmd())
	rootCmd.AddCommand(dispatchCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
