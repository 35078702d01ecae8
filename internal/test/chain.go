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

package test

import (
	"fmt"
	"sort"
	"testing"

	"github.com/blinklabs-io/gobeacon/ledger"
)

// ChainBuilder builds linked chains of blocks for tests. The genesis block is at slot 0
type ChainBuilder struct {
	t       testing.TB
	genesis *ledger.Block
	tip     *ledger.Block
	blocks  map[ledger.Root]*ledger.Block
}

func NewChainBuilder(t testing.TB) *ChainBuilder {
	t.Helper()
	b := &ChainBuilder{
		t:      t,
		blocks: make(map[ledger.Root]*ledger.Block),
	}
	b.genesis = b.newBlock(0, ledger.Root{}, "genesis")
	b.tip = b.genesis
	return b
}

// NewChainBuilderFromGenesis returns a builder that extends the given genesis block
func NewChainBuilderFromGenesis(t testing.TB, genesis *ledger.Block) *ChainBuilder {
	t.Helper()
	b := &ChainBuilder{
		t:       t,
		genesis: genesis,
		tip:     genesis,
		blocks:  make(map[ledger.Root]*ledger.Block),
	}
	b.blocks[genesis.Root()] = genesis
	return b
}

func (b *ChainBuilder) newBlock(slot uint64, parent ledger.Root, graffiti string) *ledger.Block {
	b.t.Helper()
	blk, err := ledger.NewBlock(
		slot,
		slot%64,
		parent,
		ledger.Blake2b256Hash([]byte(fmt.Sprintf("state-%d-%s", slot, graffiti))),
		ledger.BlockBody{
			Graffiti: []byte(graffiti),
		},
	)
	if err != nil {
		b.t.Fatalf("unexpected error building block: %s", err)
	}
	b.blocks[blk.Root()] = blk
	return blk
}

func (b *ChainBuilder) Genesis() *ledger.Block {
	return b.genesis
}

// Tip returns the last block added with Extend
func (b *ChainBuilder) Tip() *ledger.Block {
	return b.tip
}

// Extend adds a block at each slot on top of the tip and returns the new blocks
func (b *ChainBuilder) Extend(slots ...uint64) []*ledger.Block {
	b.t.Helper()
	ret := b.build(b.tip, "canonical", slots...)
	if len(ret) > 0 {
		b.tip = ret[len(ret)-1]
	}
	return ret
}

// ExtendTo adds a block at every slot after the tip up to and including slot
func (b *ChainBuilder) ExtendTo(slot uint64) []*ledger.Block {
	b.t.Helper()
	var slots []uint64
	for s := b.tip.Slot + 1; s <= slot; s++ {
		slots = append(slots, s)
	}
	return b.Extend(slots...)
}

// Fork builds blocks on top of parent without moving the tip
func (b *ChainBuilder) Fork(parent *ledger.Block, slots ...uint64) []*ledger.Block {
	b.t.Helper()
	return b.build(parent, "fork", slots...)
}

func (b *ChainBuilder) build(parent *ledger.Block, graffiti string, slots ...uint64) []*ledger.Block {
	b.t.Helper()
	var ret []*ledger.Block
	for _, slot := range slots {
		if slot <= parent.Slot {
			b.t.Fatalf("block slot %d is not after parent slot %d", slot, parent.Slot)
		}
		blk := b.newBlock(slot, parent.Root(), graffiti)
		ret = append(ret, blk)
		parent = blk
	}
	return ret
}

// Canonical returns the blocks from genesis to the tip in slot order
func (b *ChainBuilder) Canonical() []*ledger.Block {
	var ret []*ledger.Block
	for blk := b.tip; blk != nil; blk = b.blocks[blk.ParentRoot] {
		ret = append(ret, blk)
		if blk == b.genesis {
			break
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Slot < ret[j].Slot
	})
	return ret
}

// CanonicalAt returns the canonical block at the slot, or nil for an empty slot
func (b *ChainBuilder) CanonicalAt(slot uint64) *ledger.Block {
	for _, blk := range b.Canonical() {
		if blk.Slot == slot {
			return blk
		}
	}
	return nil
}

// CanonicalRange returns the canonical blocks in [start, end]
func (b *ChainBuilder) CanonicalRange(start, end uint64) []*ledger.Block {
	var ret []*ledger.Block
	for _, blk := range b.Canonical() {
		if blk.Slot >= start && blk.Slot <= end {
			ret = append(ret, blk)
		}
	}
	return ret
}

// Slots returns the slots of the blocks
func Slots(blocks []*ledger.Block) []uint64 {
	ret := make([]uint64, 0, len(blocks))
	for _, blk := range blocks {
		ret = append(ret, blk.Slot)
	}
	return ret
}
