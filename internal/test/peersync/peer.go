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

package test_peersync

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/blinklabs-io/gobeacon/ledger"
	"github.com/blinklabs-io/gobeacon/peersync"
	"github.com/blinklabs-io/gobeacon/protocol/blocksbyrange"
	"github.com/blinklabs-io/gobeacon/protocol/common"
)

// Compile-time check that MockPeer implements peersync.Peer
var _ peersync.Peer = (*MockPeer)(nil)

var ErrStreamClosed = errors.New("mock stream closed")

// Response is a scripted reply to one range request
type Response struct {
	// Blocks are returned in order before the terminator
	Blocks []*ledger.Block
	// Err is the stream terminator. A nil Err ends the stream with io.EOF
	Err error
	// RequestErr fails the request before any stream is returned
	RequestErr error
	// OnRequest runs when the request is received, before any block is returned
	OnRequest func(blocksbyrange.RangeRequest)
}

// MockPeer replays scripted responses in order. Requests past the end of the script
// never complete until their context is cancelled
type MockPeer struct {
	mutex       sync.Mutex
	id          string
	status      common.PeerStatus
	responses   []Response
	requests    []blocksbyrange.RangeRequest
	disconnects []common.DisconnectReason
}

func NewMockPeer(id string, status common.PeerStatus) *MockPeer {
	return &MockPeer{
		id:     id,
		status: status,
	}
}

// WithResponses appends responses to the script
func (p *MockPeer) WithResponses(responses ...Response) *MockPeer {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.responses = append(p.responses, responses...)
	return p
}

// SetStatus replaces the status advertised by the peer
func (p *MockPeer) SetStatus(status common.PeerStatus) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.status = status
}

// Requests returns the range requests received so far
func (p *MockPeer) Requests() []blocksbyrange.RangeRequest {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]blocksbyrange.RangeRequest(nil), p.requests...)
}

// Disconnects returns the reasons passed to Disconnect
func (p *MockPeer) Disconnects() []common.DisconnectReason {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]common.DisconnectReason(nil), p.disconnects...)
}

func (p *MockPeer) ID() string {
	return p.id
}

func (p *MockPeer) Status() common.PeerStatus {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.status
}

func (p *MockPeer) Disconnect(reason common.DisconnectReason) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.disconnects = append(p.disconnects, reason)
}

func (p *MockPeer) RequestBlocksByRange(
	ctx context.Context,
	req blocksbyrange.RangeRequest,
) (peersync.BlockStream, error) {
	p.mutex.Lock()
	p.requests = append(p.requests, req)
	var resp *Response
	if len(p.responses) > 0 {
		resp = &p.responses[0]
		p.responses = p.responses[1:]
	}
	p.mutex.Unlock()
	if resp == nil {
		return &MockStream{pending: true}, nil
	}
	if resp.OnRequest != nil {
		resp.OnRequest(req)
	}
	if resp.RequestErr != nil {
		return nil, resp.RequestErr
	}
	return &MockStream{
		blocks: resp.Blocks,
		err:    resp.Err,
	}, nil
}

// MockStream returns a fixed list of blocks followed by a terminator
type MockStream struct {
	blocks  []*ledger.Block
	err     error
	pending bool
	closed  bool
}

func (s *MockStream) Next(ctx context.Context) (*ledger.Block, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.pending {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.blocks) > 0 {
		blk := s.blocks[0]
		s.blocks = s.blocks[1:]
		return blk, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

func (s *MockStream) Close() {
	s.closed = true
}
