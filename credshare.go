// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/internaltools/credshare/cmd"
	"github.com/internaltools/credshare/pkg/env"

	"github.com/getsentry/sentry-go"
)

func main() {
	err := sentry.Init(sentry.ClientOptions{
		SampleRate:       0.1,
		EnableTracing:    true,
		TracesSampleRate: 0.1,
		Release:          cmd.Version,
		Environment:      env.Load(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentry.Init: %v\n", err)
	}
	defer sentry.Flush(2 * time.Second)

	cmd.Execute()
}
