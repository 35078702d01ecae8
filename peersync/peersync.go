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

// Package peersync implements forward sync from a single peer. A Session walks the
// peer's chain from the local head in batched range requests, validates each response
// and feeds the blocks to the importer one at a time
package peersync

import (
	"context"
	"fmt"

	"github.com/blinklabs-io/gobeacon/ledger"
	"github.com/blinklabs-io/gobeacon/protocol/blocksbyrange"
	"github.com/blinklabs-io/gobeacon/protocol/common"
)

// Result is the terminal outcome of a sync attempt
type Result uint8

const (
	ResultCompleted Result = iota + 1
	ResultBadBlock
	ResultImportFailed
	ResultInvalidResponse
	ResultExcessiveThrottling
	ResultCancelled
	ResultRequestFailed
)

func (r Result) String() string {
	switch r {
	case ResultCompleted:
		return "Completed"
	case ResultBadBlock:
		return "BadBlock"
	case ResultImportFailed:
		return "ImportFailed"
	case ResultInvalidResponse:
		return "InvalidResponse"
	case ResultExcessiveThrottling:
		return "ExcessiveThrottling"
	case ResultCancelled:
		return "Cancelled"
	case ResultRequestFailed:
		return "RequestFailed"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(r))
	}
}

// IsSuccess reports whether the sync reached the peer's head
func (r Result) IsSuccess() bool {
	return r == ResultCompleted
}

// BlockStream is the response to a single range request. Next returns io.EOF once
// the peer signals success
type BlockStream interface {
	Next(ctx context.Context) (*ledger.Block, error)
	Close()
}

// Peer is the remote end of a sync session
type Peer interface {
	ID() string
	// Status returns the latest status advertised by the peer
	Status() common.PeerStatus
	RequestBlocksByRange(ctx context.Context, req blocksbyrange.RangeRequest) (BlockStream, error)
	Disconnect(reason common.DisconnectReason)
}

// ChainState is the view of the local chain needed to plan requests
type ChainState interface {
	ChainHead(ctx context.Context) (ledger.ChainHead, error)
	FinalizedEpoch() uint64
}

// Progress is a snapshot of how far a session has come
type Progress struct {
	StartingSlot uint64
	CurrentSlot  uint64
}
