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
	"context"
	"fmt"

	"github.com/blinklabs-io/gobeacon/peersync"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newSyncCommand(state *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Sync the local chain up to the head of a peer and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, state)
		},
	}
}

func runSync(cmd *cobra.Command, state *globalState) error {
	addrs, err := peerAddresses(state)
	if err != nil {
		return err
	}
	store, err := openStore(state)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			state.logger.Error(fmt.Sprintf("failed to close chain data: %s", err))
		}
	}()
	reg := newRegistry()
	s := newSyncer(state, store, reg)
	group, groupCtx := errgroup.WithContext(cmd.Context())
	syncCtx, cancel := context.WithCancel(groupCtx)
	defer cancel()
	if state.config.MetricsListen != "" {
		group.Go(func() error {
			return serveMetrics(syncCtx, state.logger, state.config.MetricsListen, reg)
		})
	}
	var result peersync.Result
	group.Go(func() error {
		// Stop the metrics server once the session is over
		defer cancel()
		var err error
		result, err = s.syncFromAny(syncCtx, addrs)
		return err
	})
	if err := group.Wait(); err != nil {
		return err
	}
	fmt.Fprintf(
		cmd.OutOrStdout(),
		"sync result: %s, local head: %s\n",
		result,
		describeHead(context.Background(), store),
	)
	if !result.IsSuccess() {
		return fmt.Errorf("sync did not complete: %s", result)
	}
	return nil
}
