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
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"

	beacon "github.com/blinklabs-io/gobeacon"
	"github.com/blinklabs-io/gobeacon/chaindata"
	"github.com/blinklabs-io/gobeacon/internal/config"
	"github.com/blinklabs-io/gobeacon/internal/test"
	"github.com/blinklabs-io/gobeacon/peersync"
	"github.com/blinklabs-io/gobeacon/rangehandler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestNode serves the canonical chain of the builder on a loopback listener
func startTestNode(t *testing.T, chain *test.ChainBuilder, finalizedEpoch uint64) string {
	t.Helper()
	state := &globalState{
		config:  &config.Config{},
		network: beacon.NetworkMinimal,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	store, err := chaindata.NewStore(
		chaindata.WithChainConfig(beacon.NetworkMinimal.ChainConfig),
	)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(chain.Genesis()))
	for _, blk := range chain.Canonical()[1:] {
		require.NoError(t, store.PutBlock(context.Background(), blk))
	}
	require.NoError(t, store.Finalize(context.Background(), finalizedEpoch))
	n := &node{
		state: state,
		store: store,
		handler: rangehandler.New(
			store,
			rangehandler.WithChainConfig(beacon.NetworkMinimal.ChainConfig),
		),
	}
	n.connManager = beacon.NewConnectionManager(beacon.ConnectionManagerConfig{})
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	doneChan := make(chan error, 1)
	go func() {
		doneChan <- n.acceptLoop(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		_ = listener.Close()
		assert.NoError(t, <-doneChan)
		_ = n.connManager.Close()
		_ = store.Close()
	})
	return listener.Addr().String()
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSyncCommand(t *testing.T) {
	genesis, err := beacon.NetworkMinimal.Genesis()
	require.NoError(t, err)
	chain := test.NewChainBuilderFromGenesis(t, genesis)
	chain.ExtendTo(40)
	address := startTestNode(t, chain, 2)
	dataDir := t.TempDir()
	args := []string{
		"sync",
		"--network", "minimal",
		"--peer", address,
		"--data-dir", dataDir,
		"--max-range-size", "16",
	}
	out, err := executeCommand(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "sync result: Completed")
	assert.Contains(t, out, "slot 40 ("+chain.Tip().Root().String()+")")
	// Blocks finalized by the first run are restored from the archive
	out, err = executeCommand(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "sync result: Completed")
	assert.Contains(t, out, "slot 40 ("+chain.Tip().Root().String()+"), finalized epoch 3")
}

func TestSyncerSessionPerAttempt(t *testing.T) {
	genesis, err := beacon.NetworkMinimal.Genesis()
	require.NoError(t, err)
	chain := test.NewChainBuilderFromGenesis(t, genesis)
	chain.ExtendTo(20)
	firstAddress := startTestNode(t, chain, 1)
	chain.ExtendTo(40)
	secondAddress := startTestNode(t, chain, 2)

	state := &globalState{
		config:  &config.Config{},
		network: beacon.NetworkMinimal,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	store, err := chaindata.NewStore(
		chaindata.WithChainConfig(beacon.NetworkMinimal.ChainConfig),
	)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Initialize(genesis))
	s := newSyncer(state, store, prometheus.NewRegistry())
	assert.NotSame(t, s.newSession(), s.newSession())

	ctx := context.Background()
	result, err := s.syncFrom(ctx, firstAddress)
	require.NoError(t, err)
	assert.Equal(t, peersync.ResultCompleted, result)
	head, err := store.ChainHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), head.Slot)

	// The next attempt starts from the head left by the previous one
	result, err = s.syncFrom(ctx, secondAddress)
	require.NoError(t, err)
	assert.Equal(t, peersync.ResultCompleted, result)
	head, err = store.ChainHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), head.Slot)
	assert.Equal(t, chain.Tip().Root(), head.Root)
}

func TestSyncCommandNoPeers(t *testing.T) {
	_, err := executeCommand(t, "sync", "--network", "minimal", "--data-dir", t.TempDir())
	assert.ErrorIs(t, err, ErrNoPeers)
}

func TestSyncCommandUnreachablePeer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := listener.Addr().String()
	require.NoError(t, listener.Close())
	_, err = executeCommand(t, "sync", "--network", "minimal", "--peer", address, "--data-dir", t.TempDir())
	assert.Error(t, err)
}

func TestUnknownNetwork(t *testing.T) {
	_, err := executeCommand(t, "sync", "--network", "testnet", "--peer", "127.0.0.1:9000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown network")
}

func TestPeerAddressesFromTopology(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.json")
	data := []byte(`{
		"bootstrapPeers": [{"address": "10.0.0.2", "port": 9000}],
		"staticPeers": [{"address": "10.0.0.1", "port": 9001}]
	}`)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	state := &globalState{
		config: &config.Config{
			Peer:     "127.0.0.1:9000",
			Topology: path,
		},
	}
	addrs, err := peerAddresses(state)
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1:9000", "10.0.0.1:9001", "10.0.0.2:9000"}, addrs)
}
