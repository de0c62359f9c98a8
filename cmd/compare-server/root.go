package main

import (
	"github.com/spf13/cobra"
)

var (
	flagConfigPath string
	flagLogLevel   string
	flagLogFormat  string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "compare-server",
		Short: "Run and benchmark the Threaded, Hybrid, and EventLoop HTTP pipelines",
	}

	root.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to a YAML config file (optional)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "debug, info, warn, or error")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "console", "console or json")

	root.AddCommand(newServeCmd())
	root.AddCommand(newBenchmarkCmd())
	return root
}
