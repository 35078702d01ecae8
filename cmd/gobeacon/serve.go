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
	"errors"
	"fmt"
	"net"
	"time"

	beacon "github.com/blinklabs-io/gobeacon"
	"github.com/blinklabs-io/gobeacon/chaindata"
	"github.com/blinklabs-io/gobeacon/connection"
	"github.com/blinklabs-io/gobeacon/internal/config"
	"github.com/blinklabs-io/gobeacon/metrics"
	"github.com/blinklabs-io/gobeacon/peersync"
	"github.com/blinklabs-io/gobeacon/protocol/blocksbyrange"
	"github.com/blinklabs-io/gobeacon/protocol/status"
	"github.com/blinklabs-io/gobeacon/rangehandler"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func newServeCommand(state *globalState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer status and block range requests from the local chain",
		Long: "Answer status and block range requests from the local chain. When peers " +
			"are configured, the local chain is also kept in sync with them",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), state)
		},
	}
	flags := cmd.Flags()
	flags.String(config.KeyListen, "0.0.0.0:9000", "address to accept peer connections on")
	flags.Uint64(config.KeyMaxRequestBlocks, 1024, "maximum number of blocks in a single range response")
	flags.Float64(config.KeyRateLimit, 500, "blocks per second served to each peer")
	flags.Int(config.KeyRateBurst, 1024, "burst size of the per-peer block allowance")
	return cmd
}

type node struct {
	state       *globalState
	store       *chaindata.Store
	handler     *rangehandler.Handler
	connManager *beacon.ConnectionManager
}

func runServe(ctx context.Context, state *globalState) error {
	// Peers are optional when serving
	addrs, err := peerAddresses(state)
	if err != nil && !errors.Is(err, ErrNoPeers) {
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
	n := &node{
		state: state,
		store: store,
		handler: rangehandler.New(
			store,
			rangehandler.WithChainConfig(state.network.ChainConfig),
			rangehandler.WithLogger(state.logger),
			rangehandler.WithMetrics(metrics.NewServerMetrics(reg)),
			rangehandler.WithMaxRequestBlocks(state.config.Server.MaxRequestBlocks),
			rangehandler.WithRateLimit(rate.Limit(state.config.Server.RateLimit), state.config.Server.RateBurst),
		),
	}
	n.connManager = beacon.NewConnectionManager(
		beacon.ConnectionManagerConfig{
			ConnClosedFunc: n.connClosed,
		},
	)
	listener, err := listen(ctx, state.config.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", state.config.Listen, err)
	}
	state.logger.Info(
		fmt.Sprintf("listening for peers on %s", listener.Addr().String()),
		"component", "node",
		"network", state.network.Name,
		"head", describeHead(ctx, store),
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return n.acceptLoop(groupCtx, listener)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		_ = listener.Close()
		return nil
	})
	if state.config.MetricsListen != "" {
		group.Go(func() error {
			return serveMetrics(groupCtx, state.logger, state.config.MetricsListen, reg)
		})
	}
	if len(addrs) > 0 {
		s := newSyncer(state, store, reg)
		group.Go(func() error {
			n.syncLoop(groupCtx, s, addrs)
			return nil
		})
	}
	err = group.Wait()
	if closeErr := n.connManager.Close(); closeErr != nil {
		state.logger.Warn(fmt.Sprintf("failed to close peer connections: %s", closeErr))
	}
	return err
}

func (n *node) acceptLoop(ctx context.Context, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		if err := n.addConnection(conn); err != nil {
			n.state.logger.Warn(
				fmt.Sprintf("failed to set up connection from %s: %s", conn.RemoteAddr().String(), err),
				"component", "node",
			)
			_ = conn.Close()
		}
	}
}

func (n *node) addConnection(conn net.Conn) error {
	c, err := beacon.NewConnection(
		beacon.WithConnection(conn),
		beacon.WithNetwork(n.state.network),
		beacon.WithServer(true),
		beacon.WithLogger(n.state.logger),
		beacon.WithStatusConfig(
			status.NewConfig(
				status.WithLocalStatusFunc(beacon.NewLocalStatusFunc(n.state.network, n.store)),
			),
		),
		beacon.WithBlocksByRangeConfig(
			blocksbyrange.NewConfig(
				blocksbyrange.WithRequestRangeFunc(n.handler.RequestRangeFunc()),
			),
		),
	)
	if err != nil {
		return err
	}
	n.connManager.AddConnection(c, beacon.ConnectionManagerTagRoleResponder)
	n.state.logger.Info(
		"accepted peer connection",
		"component", "node",
		"connection_id", c.Id().String(),
	)
	return nil
}

func (n *node) connClosed(connId connection.ConnectionId, err error) {
	if err != nil {
		n.state.logger.Info(
			fmt.Sprintf("peer connection closed: %s", err),
			"component", "node",
			"connection_id", connId.String(),
		)
		return
	}
	n.state.logger.Debug(
		"peer connection closed",
		"component", "node",
		"connection_id", connId.String(),
	)
}

// syncLoop follows the configured peers, starting a new session each status interval
func (n *node) syncLoop(ctx context.Context, s *syncer, addrs []string) {
	interval := n.state.config.StatusInterval
	if interval <= 0 {
		interval = beacon.DefaultStatusInterval
	}
	for {
		result, err := s.syncFromAny(ctx, addrs)
		switch {
		case err != nil:
			n.state.logger.Warn(fmt.Sprintf("sync failed: %s", err), "component", "node")
		case result == peersync.ResultCancelled:
			return
		default:
			n.state.logger.Info(
				fmt.Sprintf("sync finished: %s", result),
				"component", "node",
				"head", describeHead(ctx, n.store),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
