// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package env

import (
	"sync"

	"github.com/spf13/viper"
)

const (
	Local      = "local"
	Production = "production"
	Testing    = "testing"
)

var (
	Env string

	once sync.Once
)

func IsLocal() bool {
	return Env == Local
}

// Load resolves ENV through viper. The deployment scripts default to production,
// but a bare binary on a laptop runs as local.
func Load() string {
	once.Do(func() {
		viper.BindEnv("ENV")
		Env = viper.GetString("ENV")
		if Env == "" {
			Env = Local
		}
	})
	return Env
}

func init() {
	Load()
}
