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

// Package chaindata provides the canonical chain queries used to serve and import
// blocks, backed by an in-memory hot view and a pebble archive of finalized blocks
package chaindata

import (
	"context"
	"errors"

	"github.com/blinklabs-io/gobeacon/ledger"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnknownParent  = errors.New("unknown parent block")
	ErrNoChainHead    = errors.New("chain has no head")
	ErrStoreClosed    = errors.New("chain data store is closed")
	ErrNotInitialized = errors.New("chain data store has no genesis block")
)

// Client is the read-only view of the canonical chain
type Client interface {
	// ChainHead returns the current canonical head, or ErrNoChainHead before genesis
	ChainHead(ctx context.Context) (ledger.ChainHead, error)
	FinalizedCheckpoint() ledger.Checkpoint
	FinalizedEpoch() uint64
	// IsFinalized reports whether the slot is at or below the finalized boundary
	IsFinalized(slot uint64) bool
	// EarliestAvailableBlockSlot returns the oldest retained slot. The second return
	// value is false when it is not known
	EarliestAvailableBlockSlot(ctx context.Context) (uint64, bool, error)
	// AncestorRoots returns the canonical block roots from the hot view at the slots
	// startSlot + i*step for i < count. Empty slots are absent from the result
	AncestorRoots(ctx context.Context, startSlot, step, count uint64) (map[uint64]ledger.Root, error)
	// BlockByRoot returns ErrNotFound when the block is unknown
	BlockByRoot(ctx context.Context, root ledger.Root) (*ledger.Block, error)
	// BlockAtSlotExact returns ErrNotFound when the slot is empty
	BlockAtSlotExact(ctx context.Context, slot uint64) (*ledger.Block, error)
}
