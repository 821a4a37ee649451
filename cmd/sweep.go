// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/internaltools/credshare/pkg/app"
	"github.com/internaltools/credshare/pkg/lifecycle"
	"github.com/internaltools/credshare/pkg/logger"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one expiry sweep and exit",
	Long: `Run the object sweep (expired objects, abandoned multipart uploads) and
the audit log sweep once against the configured stores, then exit. Useful
from cron when the server's own timers are disabled.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	addStoreFlags(sweepCmd)
	f := sweepCmd.Flags()
	f.Bool("objects_only", false, "Skip the audit log sweep")
	f.Bool("logs_only", false, "Skip the object sweep")

	viper.BindPFlags(f)
}

func runSweep(cmd *cobra.Command, args []string) error {
	f := NewFlagLoader(cmd)
	objectsOnly, logsOnly := f.Bool("objects_only"), f.Bool("logs_only")
	if objectsOnly && logsOnly {
		return errors.New("--objects_only and --logs_only are mutually exclusive")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Stop(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("close stores")
		}
	}()

	start := time.Now()
	var res lifecycle.Result
	switch {
	case objectsOnly:
		r, err := a.Sweeper().SweepObjects(ctx)
		res.Objects, res.Uploads = r.Objects, r.Uploads
		if err != nil {
			return err
		}
	case logsOnly:
		res.Logs, err = a.Sweeper().SweepLogs(ctx)
		if err != nil {
			return err
		}
	default:
		if res, err = a.Sweeper().RunOnce(ctx); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "purged %s objects, %s uploads, %s audit entries in %s\n",
		humanize.Comma(int64(res.Objects)),
		humanize.Comma(int64(res.Uploads)),
		humanize.Comma(int64(res.Logs)),
		time.Since(start).Round(time.Millisecond))
	return nil
}
