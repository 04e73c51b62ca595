package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// 全局参数
	configPath string
	serverAddr string
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "backtrack",
	Short: "backtrack - always-on HTTP request log for Chromium",
	Long: `backtrack attaches to a Chromium browser over the DevTools protocol and keeps
a rolling log of the HTTP(S) requests made by the open pages.

The log keeps the last 5 minutes (at most 1000 entries, pinned entries excepted),
is cleared on every top-level page navigation, and is served to UI consumers
over a small JSON message protocol.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "", "HTTP listen address (overrides config)")

	rootCmd.AddCommand(runCmd, versionCmd)
	rootCmd.AddCommand(logCmd, clearCmd, trackingCmd, pinCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
