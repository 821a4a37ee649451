// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/internaltools/credshare/pkg/api"
	"github.com/internaltools/credshare/pkg/audit"
	"github.com/internaltools/credshare/pkg/events"
	"github.com/internaltools/credshare/pkg/lifecycle"
	"github.com/internaltools/credshare/pkg/metadata/db"
	"github.com/internaltools/credshare/pkg/objstore"
	"github.com/internaltools/credshare/pkg/types"
)

// Backend IDs registered with the backend manager.
const (
	BackendPayload    = "payload"
	BackendAccessLogs = "access-logs"
)

// Config is the full process configuration. Each section is owned by the
// package it configures; zero values are filled by that package's defaults.
type Config struct {
	Objects   objstore.Config     `mapstructure:"objects"`
	Metadata  db.Config           `mapstructure:"metadata"`
	Payload   types.BackendConfig `mapstructure:"payload"`
	Audit     audit.Config        `mapstructure:"audit"`
	Events    events.Config       `mapstructure:"events"`
	Lifecycle lifecycle.Config    `mapstructure:"lifecycle"`
	API       api.Config          `mapstructure:"api"`

	// AccessLogs is where exported audit lines are written. Export is off
	// unless Audit.ExportEnabled is set and a type is configured here.
	AccessLogs types.BackendConfig `mapstructure:"access_logs"`

	// DebugAddr serves /metrics, /health, /ready and pprof. Empty disables it.
	DebugAddr string `mapstructure:"debug_addr"`
}

// DefaultConfig runs everything in memory on the default ports.
func DefaultConfig() Config {
	return Config{
		Objects:   objstore.DefaultConfig(),
		Metadata:  db.DefaultConfig(db.DriverMemory),
		Payload:   types.BackendConfig{Type: types.StorageTypeMemory},
		Audit:     audit.DefaultConfig(),
		Events:    events.DefaultConfig(),
		Lifecycle: lifecycle.DefaultConfig(),
		API:       api.DefaultConfig(),
		DebugAddr: ":8085",
	}
}

// Validate fills defaults and rejects configurations that cannot start.
func (c *Config) Validate() error {
	c.Objects.Validate()
	c.Audit.Validate()
	c.Events.Validate()
	c.Lifecycle.Validate()
	c.API.Validate()

	if c.Metadata.Driver == "" {
		c.Metadata.Driver = db.DriverMemory
	}
	switch c.Metadata.Driver {
	case db.DriverMemory:
	case db.DriverLevelDB, db.DriverSQLite, db.DriverPostgres, db.DriverMySQL:
		if c.Metadata.DSN == "" {
			return fmt.Errorf("metadata driver %s requires a dsn", c.Metadata.Driver)
		}
	default:
		return fmt.Errorf("unknown metadata driver %q", c.Metadata.Driver)
	}

	if c.Payload.Type == "" {
		c.Payload.Type = types.StorageTypeMemory
	}
	if c.Audit.ExportEnabled && c.AccessLogs.Type == "" {
		return fmt.Errorf("audit export is enabled but access_logs.type is not set")
	}
	return nil
}

// exportEnabled reports whether an access-log destination should be opened.
func (c *Config) exportEnabled() bool {
	return c.Audit.ExportEnabled && c.AccessLogs.Type != ""
}
