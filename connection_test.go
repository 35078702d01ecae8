// Copyright 2023 Blink Labs Software
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

package beacon_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	beacon "github.com/blinklabs-io/gobeacon"
	"github.com/blinklabs-io/gobeacon/blockimport"
	"github.com/blinklabs-io/gobeacon/chaindata"
	"github.com/blinklabs-io/gobeacon/internal/test"
	"github.com/blinklabs-io/gobeacon/peersync"
	"github.com/blinklabs-io/gobeacon/protocol/blocksbyrange"
	"github.com/blinklabs-io/gobeacon/protocol/common"
	"github.com/blinklabs-io/gobeacon/protocol/keepalive"
	"github.com/blinklabs-io/gobeacon/protocol/status"
	"github.com/blinklabs-io/gobeacon/rangehandler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"
)

// newTestStore returns an in-memory store holding the genesis block. The caller must
// close it before checking for leaked goroutines
func newTestStore(t *testing.T, chain *test.ChainBuilder) *chaindata.Store {
	t.Helper()
	store, err := chaindata.NewStore(
		chaindata.WithChainConfig(beacon.NetworkMinimal.ChainConfig),
	)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(chain.Genesis()))
	return store
}

// newServingStore returns a store holding the canonical chain of the builder
func newServingStore(t *testing.T, chain *test.ChainBuilder, finalizedEpoch uint64) *chaindata.Store {
	t.Helper()
	store := newTestStore(t, chain)
	for _, blk := range chain.Canonical()[1:] {
		require.NoError(t, store.PutBlock(context.Background(), blk))
	}
	require.NoError(t, store.Finalize(context.Background(), finalizedEpoch))
	return store
}

// newConnectionPair returns the accepting and dialing ends of a connection
func newConnectionPair(
	t *testing.T,
	serverOpts []beacon.ConnectionOptionFunc,
	clientOpts []beacon.ConnectionOptionFunc,
) (*beacon.Connection, *beacon.Connection) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	server, err := beacon.NewConnection(
		append(
			[]beacon.ConnectionOptionFunc{
				beacon.WithConnection(serverConn),
				beacon.WithNetwork(beacon.NetworkMinimal),
				beacon.WithServer(true),
			},
			serverOpts...,
		)...,
	)
	require.NoError(t, err)
	client, err := beacon.NewConnection(
		append(
			[]beacon.ConnectionOptionFunc{
				beacon.WithConnection(clientConn),
				beacon.WithNetwork(beacon.NetworkMinimal),
				beacon.WithStatusInterval(0),
			},
			clientOpts...,
		)...,
	)
	if err != nil {
		server.Close()
		t.Fatalf("unexpected error when creating Connection object: %s", err)
	}
	return server, client
}

func servingOptions(store *chaindata.Store) []beacon.ConnectionOptionFunc {
	handler := rangehandler.New(
		store,
		rangehandler.WithChainConfig(beacon.NetworkMinimal.ChainConfig),
	)
	return []beacon.ConnectionOptionFunc{
		beacon.WithStatusConfig(
			status.NewConfig(
				status.WithLocalStatusFunc(beacon.NewLocalStatusFunc(beacon.NetworkMinimal, store)),
			),
		),
		beacon.WithBlocksByRangeConfig(
			blocksbyrange.NewConfig(
				blocksbyrange.WithRequestRangeFunc(handler.RequestRangeFunc()),
			),
		),
	}
}

func TestConnectionStatusExchange(t *testing.T) {
	defer goleak.VerifyNone(t)
	chain := test.NewChainBuilder(t)
	chain.ExtendTo(20)
	store := newServingStore(t, chain, 1)
	defer store.Close()
	server, client := newConnectionPair(t, servingOptions(store), nil)
	defer server.Close()
	defer client.Close()
	peerStatus := client.Status()
	assert.Equal(t, beacon.NetworkMinimal.ForkDigest, peerStatus.ForkDigest)
	assert.Equal(t, uint64(20), peerStatus.HeadSlot)
	assert.Equal(t, chain.Tip().Root(), peerStatus.HeadRoot)
	assert.Equal(t, uint64(1), peerStatus.FinalizedEpoch)
	// The accepting side learns the status of the dialer from its request
	assert.Equal(t, beacon.NetworkMinimal.ForkDigest, server.Status().ForkDigest)
	assert.Equal(t, uint64(0), server.Status().HeadSlot)
}

func TestConnectionIrrelevantNetwork(t *testing.T) {
	defer goleak.VerifyNone(t)
	serverConn, clientConn := net.Pipe()
	server, err := beacon.NewConnection(
		beacon.WithConnection(serverConn),
		beacon.WithNetwork(beacon.NetworkMinimal),
		beacon.WithServer(true),
	)
	require.NoError(t, err)
	defer server.Close()
	_, err = beacon.NewConnection(
		beacon.WithConnection(clientConn),
		beacon.WithNetwork(beacon.NetworkMainnet),
	)
	require.Error(t, err)
	select {
	case err := <-server.ErrorChan():
		assert.ErrorIs(t, err, beacon.ErrIrrelevantNetwork)
	case <-time.After(5 * time.Second):
		t.Fatalf("did not receive error within timeout")
	}
	reason, ok := server.DisconnectReason()
	assert.True(t, ok)
	assert.Equal(t, common.DisconnectReasonIrrelevantNetwork, reason)
}

func TestConnectionInvalidNetwork(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()
	_, err := beacon.NewConnection(
		beacon.WithConnection(clientConn),
		beacon.WithNetwork(beacon.NetworkByName("unknown")),
	)
	assert.ErrorIs(t, err, beacon.ErrInvalidNetwork)
}

func TestConnectionNotConnected(t *testing.T) {
	defer goleak.VerifyNone(t)
	conn, err := beacon.NewConnection()
	require.NoError(t, err)
	_, err = conn.RequestBlocksByRange(
		context.Background(),
		blocksbyrange.RangeRequest{StartSlot: 1, Count: 1, Step: 1},
	)
	assert.ErrorIs(t, err, beacon.ErrNotConnected)
	_, err = conn.RefreshStatus()
	assert.ErrorIs(t, err, beacon.ErrNotConnected)
	assert.NoError(t, conn.Close())
	// Close is idempotent
	assert.NoError(t, conn.Close())
}

func TestConnectionSyncFromPeer(t *testing.T) {
	for _, version := range []blocksbyrange.Version{blocksbyrange.Version1, blocksbyrange.Version2} {
		t.Run(version.String(), func(t *testing.T) {
			defer goleak.VerifyNone(t)
			chain := test.NewChainBuilder(t)
			chain.ExtendTo(40)
			serverStore := newServingStore(t, chain, 2)
			defer serverStore.Close()
			clientStore := newTestStore(t, chain)
			defer clientStore.Close()
			server, client := newConnectionPair(
				t,
				servingOptions(serverStore),
				[]beacon.ConnectionOptionFunc{
					beacon.WithBlocksByRangeVersion(version),
				},
			)
			defer server.Close()
			defer client.Close()
			importer := blockimport.NewChainImporter(
				clientStore,
				blockimport.NewConfig(
					blockimport.WithChainConfig(beacon.NetworkMinimal.ChainConfig),
					blockimport.WithFinalityDepth(2),
				),
			)
			session := peersync.NewSession(
				clientStore,
				importer,
				peersync.WithChainConfig(beacon.NetworkMinimal.ChainConfig),
				peersync.WithMaxRangeSize(16),
			)
			select {
			case result := <-session.Sync(context.Background(), client):
				assert.Equal(t, peersync.ResultCompleted, result)
			case <-time.After(10 * time.Second):
				t.Fatalf("did not receive sync result within timeout")
			}
			head, err := clientStore.ChainHead(context.Background())
			require.NoError(t, err)
			assert.Equal(t, chain.Tip().Root(), head.Root)
			assert.Equal(t, uint64(3), clientStore.FinalizedEpoch())
			_, disconnected := client.DisconnectReason()
			assert.False(t, disconnected)
		})
	}
}

func TestConnectionDisconnect(t *testing.T) {
	defer goleak.VerifyNone(t)
	chain := test.NewChainBuilder(t)
	store := newTestStore(t, chain)
	defer store.Close()
	server, client := newConnectionPair(t, servingOptions(store), nil)
	defer server.Close()
	client.Disconnect(common.DisconnectReasonRemoteFault)
	reason, ok := client.DisconnectReason()
	assert.True(t, ok)
	assert.Equal(t, common.DisconnectReasonRemoteFault, reason)
	select {
	case err := <-server.ErrorChan():
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(5 * time.Second):
		t.Fatalf("did not receive error within timeout")
	}
	// Requests fail once the connection is gone
	_, err := client.RequestBlocksByRange(
		context.Background(),
		blocksbyrange.RangeRequest{StartSlot: 1, Count: 1, Step: 1},
	)
	assert.Error(t, err)
}

func TestConnectionStatusRefresh(t *testing.T) {
	defer goleak.VerifyNone(t)
	headSlot := atomic.NewUint64(5)
	server, client := newConnectionPair(
		t,
		[]beacon.ConnectionOptionFunc{
			beacon.WithStatusConfig(
				status.NewConfig(
					status.WithLocalStatusFunc(func(status.CallbackContext) (common.PeerStatus, error) {
						return common.PeerStatus{
							ForkDigest: beacon.NetworkMinimal.ForkDigest,
							HeadSlot:   headSlot.Load(),
						}, nil
					}),
				),
			),
		},
		[]beacon.ConnectionOptionFunc{
			beacon.WithStatusInterval(20 * time.Millisecond),
		},
	)
	defer server.Close()
	defer client.Close()
	assert.Equal(t, uint64(5), client.Status().HeadSlot)
	headSlot.Store(9)
	require.Eventually(
		t,
		func() bool { return client.Status().HeadSlot == 9 },
		5*time.Second,
		20*time.Millisecond,
	)
}

func TestConnectionKeepAlive(t *testing.T) {
	defer goleak.VerifyNone(t)
	pings := atomic.NewUint64(0)
	server, client := newConnectionPair(
		t,
		[]beacon.ConnectionOptionFunc{
			beacon.WithKeepAliveConfig(
				keepalive.NewConfig(
					keepalive.WithKeepAliveFunc(func(keepalive.CallbackContext, uint64) error {
						pings.Inc()
						return nil
					}),
				),
			),
		},
		[]beacon.ConnectionOptionFunc{
			beacon.WithKeepAlive(true),
			beacon.WithKeepAliveConfig(
				keepalive.NewConfig(
					keepalive.WithPeriod(10 * time.Millisecond),
				),
			),
		},
	)
	defer server.Close()
	defer client.Close()
	require.Eventually(
		t,
		func() bool { return pings.Load() >= 3 },
		5*time.Second,
		10*time.Millisecond,
	)
	select {
	case err := <-client.ErrorChan():
		t.Fatalf("unexpected connection error: %s", err)
	default:
	}
}

func TestConnectionDial(t *testing.T) {
	defer goleak.VerifyNone(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	serverChan := make(chan *beacon.Connection, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			close(serverChan)
			return
		}
		server, err := beacon.NewConnection(
			beacon.WithConnection(conn),
			beacon.WithNetwork(beacon.NetworkMinimal),
			beacon.WithServer(true),
		)
		if err != nil {
			conn.Close()
			close(serverChan)
			return
		}
		serverChan <- server
	}()
	client, err := beacon.NewConnection(
		beacon.WithNetwork(beacon.NetworkMinimal),
		beacon.WithStatusInterval(0),
	)
	require.NoError(t, err)
	require.NoError(t, client.Dial(context.Background(), "tcp", listener.Addr().String()))
	defer client.Close()
	server, ok := <-serverChan
	require.True(t, ok)
	defer server.Close()
	assert.Equal(t, beacon.NetworkMinimal.ForkDigest, client.Status().ForkDigest)
	err = client.Dial(context.Background(), "tcp", listener.Addr().String())
	assert.True(t, errors.Is(err, beacon.ErrAlreadyConnected))
}
