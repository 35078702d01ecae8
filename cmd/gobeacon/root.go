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

package main

import (
	"fmt"
	"log/slog"

	beacon "github.com/blinklabs-io/gobeacon"
	"github.com/blinklabs-io/gobeacon/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// globalState is filled in before any subcommand runs
type globalState struct {
	viper      *viper.Viper
	configFile string
	config     *config.Config
	network    beacon.Network
	logger     *slog.Logger
}

func newRootCommand() *cobra.Command {
	state := &globalState{
		viper: config.New(),
	}
	rootCmd := &cobra.Command{
		Use:           "gobeacon",
		Short:         "Beacon chain range sync node",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.load(cmd)
		},
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&state.configFile, "config", "", "path to YAML config file")
	flags.String(config.KeyDataDir, ".gobeacon", "directory for the chain archive")
	flags.String(config.KeyNetwork, "mainnet", "network to participate in (mainnet, minimal)")
	flags.String(config.KeyLogLevel, "info", "log level (debug, info, warn, error)")
	flags.String(config.KeyLogFormat, "text", "log format (text, json)")
	flags.String(config.KeyMetricsListen, "", "address for the Prometheus metrics endpoint, disabled when empty")
	flags.String(config.KeyPeer, "", "peer to sync from in address:port format")
	flags.String(config.KeyTopology, "", "path to a topology file listing peers to sync from")
	flags.Uint64(config.KeyMaxRangeSize, 200, "maximum number of slots requested at once")
	flags.Uint64(config.KeyFinalityDepth, 2, "epochs behind the head at which imported blocks are finalized")
	flags.Duration(config.KeyStatusInterval, beacon.DefaultStatusInterval, "interval between status refreshes of a sync peer")
	rootCmd.AddCommand(
		newServeCommand(state),
		newSyncCommand(state),
	)
	return rootCmd
}

func (s *globalState) load(cmd *cobra.Command) error {
	if err := s.viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(s.viper, s.configFile)
	if err != nil {
		return err
	}
	network := beacon.NetworkByName(cfg.Network)
	if network == beacon.NetworkInvalid {
		return fmt.Errorf("unknown network: %s", cfg.Network)
	}
	logger, err := cfg.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	s.config = cfg
	s.network = network
	s.logger = logger
	return nil
}
