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

// Package beacon implements the peer connection used to sync blocks between beacon
// chain nodes.
//
// A connection consists of a muxer and several mini-protocols that run over it. The
// status protocol exchanges chain heads, and the blocks-by-range protocol (in two
// method versions) serves and fetches batches of blocks. Both sides of a connection
// run both roles of every protocol.
package beacon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/blinklabs-io/gobeacon/chaindata"
	"github.com/blinklabs-io/gobeacon/connection"
	"github.com/blinklabs-io/gobeacon/muxer"
	"github.com/blinklabs-io/gobeacon/peersync"
	"github.com/blinklabs-io/gobeacon/protocol"
	"github.com/blinklabs-io/gobeacon/protocol/blocksbyrange"
	"github.com/blinklabs-io/gobeacon/protocol/common"
	"github.com/blinklabs-io/gobeacon/protocol/keepalive"
	"github.com/blinklabs-io/gobeacon/protocol/status"

	"go.uber.org/atomic"
)

const DefaultStatusInterval = 5 * time.Minute

var (
	ErrNotConnected      = errors.New("connection has not been established")
	ErrAlreadyConnected  = errors.New("a connection was already established")
	ErrIrrelevantNetwork = errors.New("peer is on a different network")
	ErrInvalidNetwork    = errors.New("invalid network")
)

// Compile-time check that Connection can be synced from
var _ peersync.Peer = (*Connection)(nil)

// The Connection type is a wrapper around a net.Conn object that handles communication
// with a beacon chain peer over that connection
type Connection struct {
	id                   connection.ConnectionId
	conn                 net.Conn
	network              Network
	server               bool
	logger               *slog.Logger
	muxer                *muxer.Muxer
	errorChan            chan error
	protoErrorChan       chan error
	doneChan             chan struct{}
	waitGroup            sync.WaitGroup
	onceShutdown         sync.Once
	onceClose            sync.Once
	closeErr             error
	statusInterval       time.Duration
	blocksByRangeVersion blocksbyrange.Version
	sendKeepAlives       bool
	peerStatus           atomic.Pointer[common.PeerStatus]
	disconnectReason     atomic.Uint64
	// Mini-protocols
	status              *status.Status
	statusConfig        *status.Config
	blocksByRangeV1     *blocksbyrange.BlocksByRange
	blocksByRangeV2     *blocksbyrange.BlocksByRange
	blocksByRangeConfig *blocksbyrange.Config
	keepAlive           *keepalive.KeepAlive
	keepAliveConfig     *keepalive.Config
}

// NewConnection returns a new Connection object with the specified options. If a
// connection is provided, the protocols are started and, for an outbound connection,
// the initial status exchange is performed. An error is returned if the exchange fails
func NewConnection(options ...ConnectionOptionFunc) (*Connection, error) {
	c := &Connection{
		network:              NetworkMainnet,
		protoErrorChan:       make(chan error, 10),
		doneChan:             make(chan struct{}),
		statusInterval:       DefaultStatusInterval,
		blocksByRangeVersion: blocksbyrange.Version2,
	}
	// Apply provided options functions
	for _, option := range options {
		option(c)
	}
	if c.errorChan == nil {
		c.errorChan = make(chan error, 10)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.conn != nil {
		if err := c.setupConnection(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Id returns the connection ID
func (c *Connection) Id() connection.ConnectionId {
	return c.id
}

// Network returns the network the connection was configured for
func (c *Connection) Network() Network {
	return c.network
}

// Muxer returns the muxer object for the connection
func (c *Connection) Muxer() *muxer.Muxer {
	return c.muxer
}

// ErrorChan returns the channel for asynchronous errors. It is closed by Close
func (c *Connection) ErrorChan() chan error {
	return c.errorChan
}

// Dial will establish a connection using the specified protocol and address. These
// parameters are passed to the [net.Dialer]. The status exchange is performed when
// a connection is established
func (c *Connection) Dial(ctx context.Context, proto string, address string) error {
	if c.conn != nil {
		return ErrAlreadyConnected
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, proto, address)
	if err != nil {
		return err
	}
	c.conn = conn
	return c.setupConnection()
}

// Close will shutdown the connection
func (c *Connection) Close() error {
	c.shutdown()
	c.onceClose.Do(func() {
		// Wait for other goroutines to finish
		c.waitGroup.Wait()
		close(c.errorChan)
	})
	return c.closeErr
}

// shutdown stops the protocols and closes the underlying connection. Unlike Close, it
// does not wait on the connection goroutines and is safe to call from them
func (c *Connection) shutdown() {
	c.onceShutdown.Do(func() {
		close(c.doneChan)
		if c.muxer == nil {
			return
		}
		c.status.Client.Protocol.Stop()
		c.status.Server.Protocol.Stop()
		c.keepAlive.Client.Protocol.Stop()
		c.keepAlive.Server.Protocol.Stop()
		for _, bbr := range []*blocksbyrange.BlocksByRange{c.blocksByRangeV1, c.blocksByRangeV2} {
			bbr.Client.Protocol.Stop()
			bbr.Server.Protocol.Stop()
		}
		// Gracefully stop the muxer before closing the connection out from under it
		c.muxer.Stop()
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.closeErr = fmt.Errorf("close connection: %w", err)
		}
	})
}

// StatusProtocol returns the status protocol handler
func (c *Connection) StatusProtocol() *status.Status {
	return c.status
}

// KeepAlive returns the keep-alive protocol handler
func (c *Connection) KeepAlive() *keepalive.KeepAlive {
	return c.keepAlive
}

// BlocksByRange returns the blocks-by-range protocol handler for a method version
func (c *Connection) BlocksByRange(version blocksbyrange.Version) *blocksbyrange.BlocksByRange {
	if version == blocksbyrange.Version1 {
		return c.blocksByRangeV1
	}
	return c.blocksByRangeV2
}

// ID returns a printable identifier for the remote peer
func (c *Connection) ID() string {
	return c.id.String()
}

// Status returns the latest status received from the peer
func (c *Connection) Status() common.PeerStatus {
	if peerStatus := c.peerStatus.Load(); peerStatus != nil {
		return *peerStatus
	}
	return common.PeerStatus{}
}

// RefreshStatus exchanges status with the peer and returns the status it sent
func (c *Connection) RefreshStatus() (common.PeerStatus, error) {
	if c.status == nil {
		return common.PeerStatus{}, ErrNotConnected
	}
	peerStatus, err := c.status.Client.GetStatus()
	if err != nil {
		if common.DisconnectReason(c.disconnectReason.Load()) == common.DisconnectReasonIrrelevantNetwork {
			return common.PeerStatus{}, ErrIrrelevantNetwork
		}
		return common.PeerStatus{}, err
	}
	return peerStatus, nil
}

// RequestBlocksByRange sends a range request to the peer with the configured method version
func (c *Connection) RequestBlocksByRange(
	ctx context.Context,
	req blocksbyrange.RangeRequest,
) (peersync.BlockStream, error) {
	if c.muxer == nil {
		return nil, ErrNotConnected
	}
	stream, err := c.BlocksByRange(c.blocksByRangeVersion).Client.RequestRange(ctx, req)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// Disconnect closes the connection and records the reason
func (c *Connection) Disconnect(reason common.DisconnectReason) {
	c.disconnectReason.CompareAndSwap(0, uint64(reason))
	c.logger.Info(
		fmt.Sprintf("disconnecting peer: %s", reason.String()),
		"component", "connection",
		"connection_id", c.id.String(),
	)
	_ = c.Close()
}

// DisconnectReason returns the reason given for disconnecting the peer, if any
func (c *Connection) DisconnectReason() (common.DisconnectReason, bool) {
	reason := c.disconnectReason.Load()
	return common.DisconnectReason(reason), reason != 0
}

// sendError reports an asynchronous error unless the connection is already shutting down
func (c *Connection) sendError(err error) {
	select {
	case <-c.doneChan:
	case c.errorChan <- err:
	}
}

// handleRemoteStatus records a status sent by the peer
func (c *Connection) handleRemoteStatus(peerStatus common.PeerStatus) error {
	if peerStatus.ForkDigest != c.network.ForkDigest {
		c.disconnectReason.CompareAndSwap(0, uint64(common.DisconnectReasonIrrelevantNetwork))
		return fmt.Errorf(
			"%w: fork digest %x, expected %x",
			ErrIrrelevantNetwork,
			peerStatus.ForkDigest,
			c.network.ForkDigest,
		)
	}
	c.peerStatus.Store(&peerStatus)
	return nil
}

// setupConnection establishes the muxer and starts the mini-protocols
func (c *Connection) setupConnection() error {
	if c.network.ForkDigest == NetworkInvalid.ForkDigest {
		return fmt.Errorf("%w: %s", ErrInvalidNetwork, c.network.Name)
	}
	c.id = connection.ConnectionId{
		LocalAddr:  c.conn.LocalAddr(),
		RemoteAddr: c.conn.RemoteAddr(),
	}
	c.muxer = muxer.New(c.conn, c.logger)
	// Start Goroutine to pass along errors from the muxer
	c.waitGroup.Add(1)
	go func() {
		defer c.waitGroup.Done()
		select {
		case <-c.doneChan:
			return
		case err, ok := <-c.muxer.ErrorChan():
			// Break out of goroutine if muxer's error channel is closed
			if !ok {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// Return a bare io.EOF error if error is EOF/ErrUnexpectedEOF
				err = io.EOF
			} else {
				// Wrap error message to denote it comes from the muxer
				err = fmt.Errorf("muxer error: %w", err)
			}
			c.sendError(err)
			// Close connection on muxer errors
			c.shutdown()
		}
	}()
	// Start Goroutine to pass along errors from the mini-protocols
	c.waitGroup.Add(1)
	go func() {
		defer c.waitGroup.Done()
		select {
		case <-c.doneChan:
			return
		case err := <-c.protoErrorChan:
			c.sendError(fmt.Errorf("protocol error: %w", err))
			// Close connection on mini-protocol errors
			c.shutdown()
		}
	}()
	protoOptions := protocol.ProtocolOptions{
		ConnectionId: c.id,
		Muxer:        c.muxer,
		Logger:       c.logger,
		ErrorChan:    c.protoErrorChan,
	}
	// Record the peer status from both the request and the response side
	statusConfig := status.NewConfig()
	if c.statusConfig != nil {
		statusConfig = *c.statusConfig
	}
	if statusConfig.LocalStatusFunc == nil {
		statusConfig.LocalStatusFunc = func(status.CallbackContext) (common.PeerStatus, error) {
			return common.PeerStatus{ForkDigest: c.network.ForkDigest}, nil
		}
	}
	remoteStatusFunc := statusConfig.RemoteStatusFunc
	statusConfig.RemoteStatusFunc = func(ctx status.CallbackContext, peerStatus common.PeerStatus) error {
		if err := c.handleRemoteStatus(peerStatus); err != nil {
			return err
		}
		if remoteStatusFunc != nil {
			return remoteStatusFunc(ctx, peerStatus)
		}
		return nil
	}
	c.status = status.New(protoOptions, &statusConfig)
	c.status.Client.Start()
	c.status.Server.Start()
	blocksByRangeConfig := blocksbyrange.NewConfig()
	if c.blocksByRangeConfig != nil {
		blocksByRangeConfig = *c.blocksByRangeConfig
	}
	blocksByRangeConfig.ChainConfig = c.network.ChainConfig
	c.blocksByRangeV1 = blocksbyrange.New(protoOptions, blocksbyrange.Version1, &blocksByRangeConfig)
	c.blocksByRangeV2 = blocksbyrange.New(protoOptions, blocksbyrange.Version2, &blocksByRangeConfig)
	for _, bbr := range []*blocksbyrange.BlocksByRange{c.blocksByRangeV1, c.blocksByRangeV2} {
		bbr.Client.Start()
		bbr.Server.Start()
	}
	keepAliveConfig := keepalive.NewConfig()
	if c.keepAliveConfig != nil {
		keepAliveConfig = *c.keepAliveConfig
	}
	c.keepAlive = keepalive.New(protoOptions, &keepAliveConfig)
	c.keepAlive.Server.Start()
	c.muxer.Start()
	if c.server {
		return nil
	}
	// The dialing side opens with a status exchange
	if _, err := c.RefreshStatus(); err != nil {
		_ = c.Close()
		return fmt.Errorf("status exchange failed: %w", err)
	}
	if c.sendKeepAlives {
		c.keepAlive.Client.Start()
	}
	if c.statusInterval > 0 {
		c.waitGroup.Add(1)
		go c.statusLoop()
	}
	return nil
}

// statusLoop refreshes the peer status periodically so that sync can follow the peer head
func (c *Connection) statusLoop() {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(c.statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.doneChan:
			return
		case <-ticker.C:
		}
		peerStatus, err := c.RefreshStatus()
		if err != nil {
			if errors.Is(err, protocol.ErrProtocolShuttingDown) {
				return
			}
			c.sendError(fmt.Errorf("status refresh failed: %w", err))
			c.shutdown()
			return
		}
		c.logger.Debug(
			fmt.Sprintf("refreshed peer status: %s", peerStatus.String()),
			"component", "connection",
			"connection_id", c.id.String(),
		)
	}
}

// NewLocalStatusFunc returns a status callback that reports the local chain head and
// finalized checkpoint on the given network
func NewLocalStatusFunc(network Network, chain chaindata.Client) status.LocalStatusFunc {
	return func(status.CallbackContext) (common.PeerStatus, error) {
		ret := common.PeerStatus{
			ForkDigest: network.ForkDigest,
		}
		head, err := chain.ChainHead(context.Background())
		if err != nil {
			if !errors.Is(err, chaindata.ErrNoChainHead) {
				return common.PeerStatus{}, err
			}
			return ret, nil
		}
		checkpoint := chain.FinalizedCheckpoint()
		ret.HeadSlot = head.Slot
		ret.HeadRoot = head.Root
		ret.FinalizedEpoch = checkpoint.Epoch
		ret.FinalizedRoot = checkpoint.Root
		return ret, nil
	}
}
