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
	"log/slog"
	"net"
	"net/http"
	"time"

	beacon "github.com/blinklabs-io/gobeacon"
	"github.com/blinklabs-io/gobeacon/blockimport"
	"github.com/blinklabs-io/gobeacon/chaindata"
	"github.com/blinklabs-io/gobeacon/metrics"
	"github.com/blinklabs-io/gobeacon/peersync"
	"github.com/blinklabs-io/gobeacon/protocol/status"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsShutdownTimeout = 5 * time.Second

var ErrNoPeers = errors.New("no peers configured")

// openStore opens the chain archive and anchors an empty one at the network genesis
func openStore(state *globalState) (*chaindata.Store, error) {
	store, err := chaindata.NewStore(
		chaindata.WithDataDir(state.config.DataDir),
		chaindata.WithChainConfig(state.network.ChainConfig),
		chaindata.WithLogger(state.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open chain data: %w", err)
	}
	genesis, err := state.network.Genesis()
	if err != nil {
		return nil, multierror.Append(err, store.Close())
	}
	if err := store.Initialize(genesis); err != nil {
		return nil, multierror.Append(err, store.Close())
	}
	return store, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// serveMetrics runs the metrics endpoint until the context is done
func serveMetrics(ctx context.Context, logger *slog.Logger, address string, reg *prometheus.Registry) error {
	server := &http.Server{
		Addr:              address,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})
	defer stop()
	logger.Info("serving metrics", "component", "metrics", "address", address)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// peerAddresses returns the peer flag followed by the static and bootstrap peers of
// the topology file
func peerAddresses(state *globalState) ([]string, error) {
	var addrs []string
	if state.config.Peer != "" {
		addrs = append(addrs, state.config.Peer)
	}
	if state.config.Topology != "" {
		topology, err := beacon.NewTopologyConfigFromFile(state.config.Topology)
		if err != nil {
			return nil, fmt.Errorf("load topology: %w", err)
		}
		connManager := beacon.NewConnectionManager(beacon.ConnectionManagerConfig{})
		connManager.AddHostsFromTopology(topology)
		for _, tag := range []beacon.ConnectionManagerTag{
			beacon.ConnectionManagerTagHostStatic,
			beacon.ConnectionManagerTagHostBootstrap,
		} {
			for _, host := range connManager.GetHostsByTags(tag) {
				addrs = append(addrs, host.HostPort())
			}
		}
	}
	if len(addrs) == 0 {
		return nil, ErrNoPeers
	}
	return addrs, nil
}

type syncer struct {
	state          *globalState
	store          *chaindata.Store
	sessionOptions []peersync.SessionOptionFunc
	importer       blockimport.Importer
}

func newSyncer(state *globalState, store *chaindata.Store, reg prometheus.Registerer) *syncer {
	importer := blockimport.NewChainImporter(
		store,
		blockimport.NewConfig(
			blockimport.WithChainConfig(state.network.ChainConfig),
			blockimport.WithLogger(state.logger),
			blockimport.WithFinalityDepth(state.config.Sync.FinalityDepth),
		),
	)
	return &syncer{
		state:    state,
		store:    store,
		importer: importer,
		sessionOptions: []peersync.SessionOptionFunc{
			peersync.WithChainConfig(state.network.ChainConfig),
			peersync.WithLogger(state.logger),
			peersync.WithMetrics(metrics.NewSyncMetrics(reg)),
			peersync.WithMaxRangeSize(state.config.Sync.MaxRangeSize),
		},
	}
}

// newSession returns a session for a single sync attempt. A session is done once it
// has delivered its result
func (s *syncer) newSession() *peersync.Session {
	return peersync.NewSession(s.store, s.importer, s.sessionOptions...)
}

// syncFrom dials the peer and runs a sync session against it
func (s *syncer) syncFrom(ctx context.Context, address string) (peersync.Result, error) {
	conn, err := beacon.NewConnection(
		beacon.WithNetwork(s.state.network),
		beacon.WithLogger(s.state.logger),
		beacon.WithStatusInterval(s.state.config.StatusInterval),
		beacon.WithKeepAlive(true),
		beacon.WithStatusConfig(
			status.NewConfig(
				status.WithLocalStatusFunc(beacon.NewLocalStatusFunc(s.state.network, s.store)),
			),
		),
	)
	if err != nil {
		return 0, err
	}
	if err := conn.Dial(ctx, "tcp", address); err != nil {
		return 0, fmt.Errorf("connect to %s: %w", address, err)
	}
	defer conn.Close()
	result := <-s.newSession().Sync(ctx, conn)
	return result, nil
}

// syncFromAny tries each peer in turn until a session completes
func (s *syncer) syncFromAny(ctx context.Context, addrs []string) (peersync.Result, error) {
	var lastErr error
	for _, address := range addrs {
		result, err := s.syncFrom(ctx, address)
		if err != nil {
			if ctx.Err() != nil {
				return peersync.ResultCancelled, nil
			}
			s.state.logger.Warn(
				"failed to connect to peer",
				"component", "peersync",
				"peer", address,
				"error", err,
			)
			lastErr = err
			continue
		}
		if result.IsSuccess() || result == peersync.ResultCancelled {
			return result, nil
		}
		lastErr = fmt.Errorf("sync with %s: %s", address, result)
	}
	return 0, lastErr
}

// describeHead formats the local chain head for the command output
func describeHead(ctx context.Context, store *chaindata.Store) string {
	head, err := store.ChainHead(ctx)
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("slot %d (%s), finalized epoch %d", head.Slot, head.Root.String(), store.FinalizedEpoch())
}

// listen opens the listening socket for the serve command
func listen(ctx context.Context, address string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", address)
}
