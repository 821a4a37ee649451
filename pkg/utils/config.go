// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ConfigurationFileDirectory string
)

// EnvPrefix namespaces environment overrides, e.g. CREDSHARE_RETENTION.
const EnvPrefix = "CREDSHARE"

// LoadConfiguration merges <configFileName>.{yaml,json,toml} from the usual
// search path into viper. Environment variables always win over the file.
func LoadConfiguration(configFileName string, required bool) bool {
	viper.SetConfigName(configFileName)
	if ConfigurationFileDirectory != "" {
		viper.AddConfigPath(ResolvePath(ConfigurationFileDirectory))
	}
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.credshare")
	viper.AddConfigPath("/etc/credshare/")
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if required {
				log.Fatal().Msgf("Config file not found: %s", configFileName)
			}
			log.Info().Msgf("Config file not found: %s", configFileName)
			return false
		}

		if required {
			log.Fatal().Err(err).Msgf("Failed to load required config file: %s", configFileName)
		}
		log.Warn().Err(err).Msgf("Ignoring unreadable config file: %s", configFileName)
		return false
	}
	log.Info().Msgf("Loaded config file: %s", viper.ConfigFileUsed())

	return true
}
