// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/internaltools/credshare/pkg/app"
	"github.com/internaltools/credshare/pkg/env"
	"github.com/internaltools/credshare/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const stopTimeout = 30 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the credshare server",
	Long: `Start a credshare server that:
- serves the object, multipart, upload and audit log HTTP API
- sweeps expired objects and abandoned multipart uploads
- sweeps audit entries past their retention
- serves metrics, health and pprof on the debug address`,
	Run: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	addStoreFlags(serverCmd)
	f := serverCmd.Flags()
	f.String("http_addr", ":8080", "Address for the object API")
	f.String("debug_addr", ":8085", "Address for metrics, health and pprof (empty disables)")
	f.String("public_url", "", "Base URL used in upload responses")
	f.String("cert_file", "", "Path to TLS certificate file")
	f.String("key_file", "", "Path to TLS key file")
	f.Bool("trust_proxy", false, "Take client addresses from X-Forwarded-For / X-Real-IP")
	f.Bool("access_log", false, "Write a combined access log line per request")
	f.Float64("rate_limit", 20, "Requests per second per client IP (negative disables)")

	viper.BindPFlags(f)
}

func runServer(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if env.IsLocal() && !NewFlagLoader(cmd).IsSet("rate_limit") {
		cfg.API.RateLimit = -1
		logger.Info().Msg("rate limiting disabled for local environment")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to assemble credshare")
	}
	if err := a.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start credshare")
	}
	logger.Info().
		Str("http_addr", a.Addr().String()).
		Str("debug_addr", cfg.DebugAddr).
		Msg("credshare server started")

	waitForShutdown()
	logger.Info().Msg("shutting down")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		logger.Error().Err(err).Msg("unclean shutdown")
	}
}

func waitForShutdown() {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	<-stopChan
}
