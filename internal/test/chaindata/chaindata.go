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

package test_chaindata

import (
	"context"
	"sync"

	"github.com/blinklabs-io/gobeacon/chaindata"
	"github.com/blinklabs-io/gobeacon/ledger"
)

// Compile-time check that MockChainData implements chaindata.Client
var _ chaindata.Client = (*MockChainData)(nil)

// AncestorRootsCall records the arguments of an AncestorRoots call
type AncestorRootsCall struct {
	StartSlot uint64
	Step      uint64
	Count     uint64
}

// MockChainData is a chaindata.Client for tests. Finalized blocks are returned by
// BlockAtSlotExact, hot blocks are listed by AncestorRoots, and every call is recorded
type MockChainData struct {
	mutex               sync.Mutex
	head                *ledger.ChainHead
	finalizedThrough    *uint64
	finalizedSlots      map[uint64]bool
	finalizedBlocks     map[uint64]*ledger.Block
	finalizedCheckpoint ledger.Checkpoint
	hotRoots            map[uint64]ledger.Root
	blocks              map[ledger.Root]*ledger.Block
	earliestSlot        *uint64
	// Recorded calls
	AncestorRootsCalls    []AncestorRootsCall
	BlockAtSlotExactCalls []uint64
	BlockByRootCalls      []ledger.Root
	ChainHeadCalls        int
	EarliestSlotCalls     int
}

// NewMockChainData returns a mock with an earliest available slot of zero and no head
func NewMockChainData() *MockChainData {
	zero := uint64(0)
	return &MockChainData{
		finalizedSlots:  make(map[uint64]bool),
		finalizedBlocks: make(map[uint64]*ledger.Block),
		hotRoots:        make(map[uint64]ledger.Root),
		blocks:          make(map[ledger.Root]*ledger.Block),
		earliestSlot:    &zero,
	}
}

// WithHead sets the canonical head to the block
func (m *MockChainData) WithHead(blk *ledger.Block) *MockChainData {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.head = &ledger.ChainHead{
		Slot:      blk.Slot,
		Root:      blk.Root(),
		StateRoot: blk.StateRoot,
	}
	return m
}

// WithFinalizedBlocks marks the block slots as finalized and stores the blocks
func (m *MockChainData) WithFinalizedBlocks(blocks ...*ledger.Block) *MockChainData {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, blk := range blocks {
		m.finalizedSlots[blk.Slot] = true
		m.finalizedBlocks[blk.Slot] = blk
		m.blocks[blk.Root()] = blk
	}
	return m
}

// WithFinalizedThrough marks every slot up to and including slot as finalized
func (m *MockChainData) WithFinalizedThrough(slot uint64) *MockChainData {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.finalizedThrough = &slot
	return m
}

func (m *MockChainData) WithFinalizedCheckpoint(checkpoint ledger.Checkpoint) *MockChainData {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.finalizedCheckpoint = checkpoint
	return m
}

// WithHotBlocks lists the blocks in the ancestor roots and stores them
func (m *MockChainData) WithHotBlocks(blocks ...*ledger.Block) *MockChainData {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, blk := range blocks {
		m.hotRoots[blk.Slot] = blk.Root()
		m.blocks[blk.Root()] = blk
	}
	return m
}

// WithMissingHotBlock lists a root in the ancestor roots without storing the block
func (m *MockChainData) WithMissingHotBlock(blk *ledger.Block) *MockChainData {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.hotRoots[blk.Slot] = blk.Root()
	delete(m.blocks, blk.Root())
	return m
}

func (m *MockChainData) WithEarliestSlot(slot uint64) *MockChainData {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.earliestSlot = &slot
	return m
}

// WithUnknownEarliestSlot makes the earliest available slot unknown
func (m *MockChainData) WithUnknownEarliestSlot() *MockChainData {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.earliestSlot = nil
	return m
}

// StorageQueries returns the number of block and root lookups made
func (m *MockChainData) StorageQueries() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.AncestorRootsCalls) + len(m.BlockAtSlotExactCalls) + len(m.BlockByRootCalls)
}

func (m *MockChainData) ChainHead(ctx context.Context) (ledger.ChainHead, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.ChainHeadCalls++
	if m.head == nil {
		return ledger.ChainHead{}, chaindata.ErrNoChainHead
	}
	return *m.head, nil
}

func (m *MockChainData) FinalizedCheckpoint() ledger.Checkpoint {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.finalizedCheckpoint
}

func (m *MockChainData) FinalizedEpoch() uint64 {
	return m.FinalizedCheckpoint().Epoch
}

func (m *MockChainData) IsFinalized(slot uint64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.finalizedThrough != nil && slot <= *m.finalizedThrough {
		return true
	}
	return m.finalizedSlots[slot]
}

func (m *MockChainData) EarliestAvailableBlockSlot(ctx context.Context) (uint64, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.EarliestSlotCalls++
	if m.earliestSlot == nil {
		return 0, false, nil
	}
	return *m.earliestSlot, true, nil
}

func (m *MockChainData) AncestorRoots(
	ctx context.Context,
	startSlot, step, count uint64,
) (map[uint64]ledger.Root, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.AncestorRootsCalls = append(
		m.AncestorRootsCalls,
		AncestorRootsCall{
			StartSlot: startSlot,
			Step:      step,
			Count:     count,
		},
	)
	ret := make(map[uint64]ledger.Root, len(m.hotRoots))
	for slot, root := range m.hotRoots {
		ret[slot] = root
	}
	return ret, nil
}

func (m *MockChainData) BlockByRoot(ctx context.Context, root ledger.Root) (*ledger.Block, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.BlockByRootCalls = append(m.BlockByRootCalls, root)
	if blk, ok := m.blocks[root]; ok {
		return blk, nil
	}
	return nil, chaindata.ErrNotFound
}

func (m *MockChainData) BlockAtSlotExact(ctx context.Context, slot uint64) (*ledger.Block, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.BlockAtSlotExactCalls = append(m.BlockAtSlotExactCalls, slot)
	if blk, ok := m.finalizedBlocks[slot]; ok {
		return blk, nil
	}
	return nil, chaindata.ErrNotFound
}
