// File: cmd/reactorhttpd/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Config is loaded with viper: defaults, then an optional YAML file,
// then REACTORHTTPD_* environment variables, then cobra flags bound
// through viper.BindPFlags, in ascending priority.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds every knob the entry binary exposes.
type Config struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Threads     int           `mapstructure:"threads"`
	Backlog     int           `mapstructure:"backlog"`
	ReusePort   bool          `mapstructure:"reuse_port"`
	Affinity    bool          `mapstructure:"affinity"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	LogLevel    string        `mapstructure:"log_level"`
	LogDev      bool          `mapstructure:"log_dev"`
	StaticDir   string        `mapstructure:"static_dir"`
	ConfigFile  string        `mapstructure:"-"`
}

func loadConfig(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("threads", 0)
	v.SetDefault("backlog", 1024)
	v.SetDefault("reuse_port", false)
	v.SetDefault("affinity", false)
	v.SetDefault("idle_timeout", "60s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dev", false)
	v.SetDefault("static_dir", "")

	v.SetEnvPrefix("REACTORHTTPD")
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, fmt.Errorf("cmd: bind flags: %w", err)
	}

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("cmd: read config %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("cmd: unmarshal config: %w", err)
	}
	return cfg, nil
}
