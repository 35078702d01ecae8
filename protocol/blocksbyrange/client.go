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

package blocksbyrange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/blinklabs-io/gobeacon/ledger"
	"github.com/blinklabs-io/gobeacon/protocol"
)

// Client implements the blocks-by-range protocol client. Only one range request may
// be outstanding at a time
type Client struct {
	*protocol.Protocol
	config          *Config
	maxBlockSize    int
	version         Version
	callbackContext CallbackContext
	busyChan        chan struct{}
	streamMutex     sync.Mutex
	stream          *BlockStream
	onceStart       sync.Once
	onceStop        sync.Once
}

func NewClient(protoOptions protocol.ProtocolOptions, version Version, cfg *Config) *Client {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	c := &Client{
		config:       cfg,
		version:      version,
		busyChan:     make(chan struct{}, 1),
		maxBlockSize: cfg.MaxBlockSize,
	}
	if c.maxBlockSize <= 0 {
		c.maxBlockSize = DefaultMaxBlockSize
	}
	c.callbackContext = CallbackContext{
		Client:       c,
		Version:      version,
		ConnectionId: protoOptions.ConnectionId,
	}
	// Update state map with timeout
	stateMap := StateMap.Copy()
	if entry, ok := stateMap[StateBusy]; ok {
		entry.Timeout = c.config.BatchTimeout
		stateMap[StateBusy] = entry
	}
	// Configure underlying Protocol
	protoConfig := protocol.ProtocolConfig{
		Name:                ProtocolName,
		ProtocolId:          version.ProtocolId(),
		Muxer:               protoOptions.Muxer,
		Logger:              protoOptions.Logger,
		ErrorChan:           protoOptions.ErrorChan,
		Role:                protocol.ProtocolRoleClient,
		MessageHandlerFunc:  c.messageHandler,
		MessageFromCborFunc: NewMsgFromCbor,
		StateMap:            stateMap,
		InitialState:        StateIdle,
	}
	c.Protocol = protocol.New(protoConfig)
	return c
}

// Version returns the method version used by the client
func (c *Client) Version() Version {
	return c.version
}

// Start begins the blocks-by-range client protocol. Safe to call multiple times
func (c *Client) Start() {
	c.onceStart.Do(func() {
		c.Protocol.Logger().
			Debug("starting client protocol",
				"component", "network",
				"protocol", ProtocolName,
				"version", c.version.String(),
				"connection_id", c.callbackContext.ConnectionId.String(),
			)
		c.Protocol.Start()
	})
}

// Stop sends a ClientDone message when no request is outstanding and shuts down the protocol
func (c *Client) Stop() error {
	var err error
	c.onceStop.Do(func() {
		c.Protocol.Logger().
			Debug("stopping client protocol",
				"component", "network",
				"protocol", ProtocolName,
				"version", c.version.String(),
				"connection_id", c.callbackContext.ConnectionId.String(),
			)
		select {
		case c.busyChan <- struct{}{}:
			if !c.IsDone() {
				err = c.SendMessage(NewMsgClientDone())
			}
		default:
		}
		c.Protocol.Stop()
	})
	return err
}

// RequestRange sends a range request and returns a stream of the response blocks. The
// stream must be read until it returns an error or closed with Close
func (c *Client) RequestRange(ctx context.Context, req RangeRequest) (*BlockStream, error) {
	c.Protocol.Logger().
		Debug(
			fmt.Sprintf("calling RequestRange(%s)", req.String()),
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
			"version", c.version.String(),
			"connection_id", c.callbackContext.ConnectionId.String(),
		)
	// NOTE: this is released when the response terminator arrives
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.DoneChan():
		return nil, protocol.ErrProtocolShuttingDown
	case c.busyChan <- struct{}{}:
	}
	stream := &BlockStream{
		client:      c,
		request:     req,
		respChan:    make(chan streamResponse),
		abandonChan: make(chan struct{}),
	}
	c.streamMutex.Lock()
	c.stream = stream
	c.streamMutex.Unlock()
	if err := c.SendMessage(NewMsgRequestRange(req)); err != nil {
		c.streamMutex.Lock()
		c.stream = nil
		c.streamMutex.Unlock()
		<-c.busyChan
		return nil, err
	}
	return stream, nil
}

func (c *Client) messageHandler(msg protocol.Message) error {
	c.streamMutex.Lock()
	stream := c.stream
	c.streamMutex.Unlock()
	if stream == nil {
		return fmt.Errorf(
			"%w: %s: received message type %d with no outstanding request",
			protocol.ErrProtocolViolationInvalidMessage,
			ProtocolName,
			msg.Type(),
		)
	}
	switch msg.Type() {
	case MessageTypeBlock:
		return c.handleBlock(stream, msg.(*MsgBlock))
	case MessageTypeBatchDone:
		c.finishStream(stream, streamResponse{done: true})
	case MessageTypeError:
		c.finishStream(stream, streamResponse{err: msg.(*MsgError).RpcError()})
	default:
		return fmt.Errorf(
			"%s: received unexpected message type %d",
			ProtocolName,
			msg.Type(),
		)
	}
	return nil
}

func (c *Client) handleBlock(stream *BlockStream, msg *MsgBlock) error {
	if stream.isAbandoned() {
		return nil
	}
	blk, err := msg.Block(c.maxBlockSize)
	if err == nil {
		err = c.checkMilestone(ledger.Milestone(msg.Milestone), blk)
	}
	if err != nil {
		c.Protocol.Logger().
			Debug("invalid response chunk",
				"component", "network",
				"protocol", ProtocolName,
				"role", "client",
				"connection_id", c.callbackContext.ConnectionId.String(),
				"error", err,
			)
		// Report the failure and drop the rest of the response
		c.deliver(stream, streamResponse{err: err})
		stream.abandon()
		return nil
	}
	c.deliver(stream, streamResponse{block: blk})
	return nil
}

func (c *Client) checkMilestone(milestone ledger.Milestone, blk *ledger.Block) error {
	if milestone > c.version.MaxMilestone() {
		return fmt.Errorf(
			"%w: %s block on %s",
			ErrMalformedChunk,
			milestone,
			c.version,
		)
	}
	if expected := c.config.ChainConfig.MilestoneAtSlot(blk.Slot); milestone != expected {
		return fmt.Errorf(
			"%w: block at slot %d tagged %s, expected %s",
			ErrMalformedChunk,
			blk.Slot,
			milestone,
			expected,
		)
	}
	return nil
}

// finishStream delivers the terminator and releases the client for the next request
func (c *Client) finishStream(stream *BlockStream, resp streamResponse) {
	if !stream.isAbandoned() {
		c.deliver(stream, resp)
	}
	c.streamMutex.Lock()
	c.stream = nil
	c.streamMutex.Unlock()
	<-c.busyChan
}

// deliver blocks until the stream reader takes the response, which keeps the peer from
// getting ahead of the consumer
func (c *Client) deliver(stream *BlockStream, resp streamResponse) {
	select {
	case stream.respChan <- resp:
	case <-stream.abandonChan:
	case <-c.DoneChan():
	}
}

type streamResponse struct {
	block *ledger.Block
	err   error
	done  bool
}

// BlockStream is the client side of a single range response
type BlockStream struct {
	client       *Client
	request      RangeRequest
	respChan     chan streamResponse
	abandonChan  chan struct{}
	onceAbandon  sync.Once
	finished     bool
	finishedErr  error
	receivedSize uint64
}

// Request returns the range request for the stream
func (s *BlockStream) Request() RangeRequest {
	return s.request
}

// Received returns the number of blocks read from the stream so far
func (s *BlockStream) Received() uint64 {
	return s.receivedSize
}

// Next returns the next block in the response. It returns io.EOF once the server
// signals success, or the error terminator sent by the server
func (s *BlockStream) Next(ctx context.Context) (*ledger.Block, error) {
	if s.finished {
		return nil, s.finishedErr
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.client.DoneChan():
		s.finish(protocol.ErrProtocolShuttingDown)
		return nil, protocol.ErrProtocolShuttingDown
	case resp := <-s.respChan:
		if resp.err != nil {
			s.finish(resp.err)
			return nil, resp.err
		}
		if resp.done {
			s.finish(io.EOF)
			return nil, io.EOF
		}
		s.receivedSize++
		return resp.block, nil
	}
}

// Close abandons the stream. Any remaining response chunks are discarded
func (s *BlockStream) Close() {
	s.abandon()
	if !s.finished {
		s.finish(errors.New("block stream closed"))
	}
}

func (s *BlockStream) finish(err error) {
	s.finished = true
	s.finishedErr = err
}

func (s *BlockStream) abandon() {
	s.onceAbandon.Do(func() {
		close(s.abandonChan)
	})
}

func (s *BlockStream) isAbandoned() bool {
	select {
	case <-s.abandonChan:
		return true
	default:
		return false
	}
}
