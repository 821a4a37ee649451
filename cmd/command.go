// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/internaltools/credshare/pkg/logger"
	"github.com/internaltools/credshare/pkg/utils"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "credshare",
	Short: "credshare - ephemeral object store for sharing credentials",
	Long: `credshare stores uploaded secrets for a fixed retention window, refuses to
serve them once expired, purges expired objects and abandoned multipart
uploads in the background, and keeps an audit trail of every upload,
access and deletion.`,
	PersistentPreRun: initializeLogging,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
	rootCmd.PersistentFlags().String("log_level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
}

func initializeLogging(cmd *cobra.Command, args []string) {
	level, _ := cmd.Flags().GetString("log_level")
	if level == "" {
		return
	}
	if err := logger.SetLevelString(level); err != nil {
		logger.Warn().Err(err).Str("level", level).Msg("ignoring invalid log level")
	}
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
