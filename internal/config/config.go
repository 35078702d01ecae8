// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the node configuration from flags, the environment and an
// optional YAML file
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "GOBEACON"

// Configuration keys, shared by command line flags, environment variables and the
// config file
const (
	KeyDataDir          = "data-dir"
	KeyNetwork          = "network"
	KeyListen           = "listen"
	KeyPeer             = "peer"
	KeyTopology         = "topology"
	KeyMetricsListen    = "metrics-listen"
	KeyLogLevel         = "log-level"
	KeyLogFormat        = "log-format"
	KeyMaxRangeSize     = "max-range-size"
	KeyFinalityDepth    = "finality-depth"
	KeyMaxRequestBlocks = "max-request-blocks"
	KeyRateLimit        = "rate-limit"
	KeyRateBurst        = "rate-burst"
	KeyStatusInterval   = "status-interval"
)

var (
	ErrUnknownLogFormat = errors.New("unknown log format")
	ErrNoDataDir        = errors.New("no data directory specified")
)

type Config struct {
	DataDir        string        `mapstructure:"data-dir"`
	Network        string        `mapstructure:"network"`
	Listen         string        `mapstructure:"listen"`
	Peer           string        `mapstructure:"peer"`
	Topology       string        `mapstructure:"topology"`
	MetricsListen  string        `mapstructure:"metrics-listen"`
	LogLevel       string        `mapstructure:"log-level"`
	LogFormat      string        `mapstructure:"log-format"`
	Sync           SyncConfig    `mapstructure:",squash"`
	Server         ServerConfig  `mapstructure:",squash"`
	StatusInterval time.Duration `mapstructure:"status-interval"`
}

type SyncConfig struct {
	MaxRangeSize  uint64 `mapstructure:"max-range-size"`
	FinalityDepth uint64 `mapstructure:"finality-depth"`
}

type ServerConfig struct {
	MaxRequestBlocks uint64 `mapstructure:"max-request-blocks"`
	// RateLimit is the number of blocks per second served to each peer
	RateLimit float64 `mapstructure:"rate-limit"`
	RateBurst int     `mapstructure:"rate-burst"`
}

// New returns a viper instance with the defaults set and environment lookups enabled
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault(KeyDataDir, ".gobeacon")
	v.SetDefault(KeyNetwork, "mainnet")
	v.SetDefault(KeyListen, "0.0.0.0:9000")
	v.SetDefault(KeyPeer, "")
	v.SetDefault(KeyTopology, "")
	v.SetDefault(KeyMetricsListen, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyMaxRangeSize, 200)
	v.SetDefault(KeyFinalityDepth, 2)
	v.SetDefault(KeyMaxRequestBlocks, 1024)
	v.SetDefault(KeyRateLimit, 500.0)
	v.SetDefault(KeyRateBurst, 1024)
	v.SetDefault(KeyStatusInterval, 5*time.Minute)
	return v
}

// Load reads the optional config file and decodes the merged settings
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return ErrNoDataDir
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %s", ErrUnknownLogFormat, c.LogFormat)
	}
	return nil
}

func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// NewLogger builds the node logger for the configured format and level
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch c.LogFormat {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownLogFormat, c.LogFormat)
	}
}
