package config

// Package config provides a reusable loader for ICN node configuration
// files and environment variables.

import (
	"fmt"

	"github.com/spf13/viper"

	"icn-network/core"
	"icn-network/pkg/utils"
)

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig core.NodeConfig

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration is loaded.
func Load(env string) (*core.NodeConfig, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")

	AppConfig = core.DefaultNodeConfig()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
		return &AppConfig, nil
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("ICN")
	viper.AutomaticEnv() // env vars override file values

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the ICN_ENV environment variable.
func LoadFromEnv() (*core.NodeConfig, error) {
	return Load(utils.EnvOrDefault("ICN_ENV", ""))
}
