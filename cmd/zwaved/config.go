package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// config is the CLI's layered configuration: flags override environment
// variables (ZWAVED_*) which override a YAML config file, mirroring
// keskad-loco's config.NewConfig.
type config struct {
	Device   string `mapstructure:"device"`
	LogLevel string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// loadConfig reads zwaved.yaml from the current directory or
// $HOME/.config/zwaved, then
// layers ZWAVED_* environment variables and already-bound flags on top.
func loadConfig(v *viper.Viper) (*config, error) {
	v.SetConfigType("yaml")
	v.SetConfigName("zwaved")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/zwaved")

	v.SetEnvPrefix("zwaved")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("device", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "auto")

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	cfg := &config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
