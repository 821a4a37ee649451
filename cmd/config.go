// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"time"

	"github.com/internaltools/credshare/pkg/app"
	"github.com/internaltools/credshare/pkg/audit"
	"github.com/internaltools/credshare/pkg/metadata/db"
	"github.com/internaltools/credshare/pkg/objstore"
	"github.com/internaltools/credshare/pkg/types"
	"github.com/internaltools/credshare/pkg/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configFileName is looked up as credshare.{yaml,json,toml} in the config
// search path. Its nested sections mirror app.Config.
const configFileName = "credshare"

// addStoreFlags registers the flags shared by every command that opens the
// object store.
func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Duration("retention", objstore.DefaultRetention, "Lifetime of every stored object")
	f.Duration("upload_grace", objstore.DefaultUploadGrace, "Age after which incomplete multipart uploads are aborted")
	f.Bool("allow_overwrite", true, "Allow a put to replace an unexpired object")

	f.String("metadata_driver", string(db.DriverMemory), "Metadata store (memory, leveldb, sqlite, postgres, mysql)")
	f.String("metadata_dsn", "", "Metadata DSN, or directory for leveldb")

	f.String("payload_type", string(types.StorageTypeMemory), "Payload backend (memory, local, s3, redis)")
	f.String("payload_path", "", "Directory for the local payload backend")
	f.String("payload_endpoint", "", "Endpoint for the s3 or redis payload backend")
	f.String("payload_bucket", "", "Bucket for the s3 payload backend")
	f.String("payload_region", "", "Region for the s3 payload backend")

	f.String("audit_store", audit.StoreMemory, "Audit store (memory, clickhouse)")
	f.String("audit_dsn", "", "ClickHouse DSN for the audit store")
	f.Duration("audit_retention", audit.DefaultRetention, "How long audit entries are kept")
}

// loadConfig merges defaults, the config file, environment and flags, in
// increasing order of precedence.
func loadConfig(cmd *cobra.Command) (app.Config, error) {
	utils.LoadConfiguration(configFileName, false)

	cfg := app.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	f := NewFlagLoader(cmd)
	setDuration(f, "retention", &cfg.Objects.Retention)
	setDuration(f, "upload_grace", &cfg.Objects.UploadGrace)
	if f.IsSet("allow_overwrite") {
		cfg.Objects.AllowOverwrite = f.Bool("allow_overwrite")
	}

	if f.IsSet("metadata_driver") {
		cfg.Metadata.Driver = db.Driver(f.String("metadata_driver"))
	}
	setString(f, "metadata_dsn", &cfg.Metadata.DSN)

	if f.IsSet("payload_type") {
		cfg.Payload.Type = types.StorageType(f.String("payload_type"))
	}
	setString(f, "payload_path", &cfg.Payload.Path)
	setString(f, "payload_endpoint", &cfg.Payload.Endpoint)
	setString(f, "payload_bucket", &cfg.Payload.Bucket)
	setString(f, "payload_region", &cfg.Payload.Region)

	setString(f, "audit_store", &cfg.Audit.Store)
	setString(f, "audit_dsn", &cfg.Audit.DSN)
	setDuration(f, "audit_retention", &cfg.Audit.Retention)

	if cmd.Flags().Lookup("http_addr") != nil {
		setString(f, "http_addr", &cfg.API.Addr)
		setString(f, "debug_addr", &cfg.DebugAddr)
		setString(f, "public_url", &cfg.API.PublicURL)
		setString(f, "cert_file", &cfg.API.CertFile)
		setString(f, "key_file", &cfg.API.KeyFile)
		if f.IsSet("trust_proxy") {
			cfg.API.TrustProxy = f.Bool("trust_proxy")
		}
		if f.IsSet("rate_limit") {
			cfg.API.RateLimit = f.Float64("rate_limit")
		}
		if f.IsSet("access_log") {
			cfg.API.AccessLog = f.Bool("access_log")
		}
	}

	return cfg, cfg.Validate()
}

func setString(f *FlagLoader, name string, dst *string) {
	if f.IsSet(name) {
		*dst = f.String(name)
	}
}

func setDuration(f *FlagLoader, name string, dst *time.Duration) {
	if f.IsSet(name) {
		*dst = f.Duration(name)
	}
}
