package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// versionCmd 打印版本
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "backtrack %s\n", cfg.Version)
		return nil
	},
}
