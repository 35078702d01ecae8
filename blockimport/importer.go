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

package blockimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/gobeacon/chaindata"
	"github.com/blinklabs-io/gobeacon/ledger"
)

const DefaultFutureSlotTolerance = 1

// StateTransitionFunc applies blk on top of parent and returns an error if the
// block is not valid
type StateTransitionFunc func(ctx context.Context, parent *ledger.Block, blk *ledger.Block) error

type Config struct {
	ChainConfig         ledger.ChainConfig
	Logger              *slog.Logger
	Clock               func() time.Time
	FutureSlotTolerance uint64
	WeakSubjectivity    *ledger.Checkpoint
	StateTransitionFunc StateTransitionFunc
	// FinalityDepth is the number of epochs behind the head at which blocks are
	// finalized. Zero disables finalization on import
	FinalityDepth uint64
}

// ImporterOptionFunc is a type that represents functions that modify the importer config
type ImporterOptionFunc func(*Config)

func NewConfig(options ...ImporterOptionFunc) Config {
	c := Config{
		ChainConfig:         ledger.MainnetChainConfig,
		Clock:               time.Now,
		FutureSlotTolerance: DefaultFutureSlotTolerance,
	}
	for _, option := range options {
		option(&c)
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

func WithChainConfig(chainConfig ledger.ChainConfig) ImporterOptionFunc {
	return func(c *Config) {
		c.ChainConfig = chainConfig
	}
}

func WithLogger(logger *slog.Logger) ImporterOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithClock sets the wall clock used to reject blocks from the future
func WithClock(clock func() time.Time) ImporterOptionFunc {
	return func(c *Config) {
		c.Clock = clock
	}
}

func WithFutureSlotTolerance(slots uint64) ImporterOptionFunc {
	return func(c *Config) {
		c.FutureSlotTolerance = slots
	}
}

func WithWeakSubjectivityCheckpoint(checkpoint ledger.Checkpoint) ImporterOptionFunc {
	return func(c *Config) {
		c.WeakSubjectivity = &checkpoint
	}
}

func WithStateTransitionFunc(stateTransitionFunc StateTransitionFunc) ImporterOptionFunc {
	return func(c *Config) {
		c.StateTransitionFunc = stateTransitionFunc
	}
}

func WithFinalityDepth(epochs uint64) ImporterOptionFunc {
	return func(c *Config) {
		c.FinalityDepth = epochs
	}
}

// ChainImporter imports blocks into a chaindata.Store. Imports are serialized
type ChainImporter struct {
	config Config
	store  *chaindata.Store
	mutex  sync.Mutex
}

var _ Importer = (*ChainImporter)(nil)

func NewChainImporter(store *chaindata.Store, cfg Config) *ChainImporter {
	return &ChainImporter{
		config: cfg,
		store:  store,
	}
}

func (i *ChainImporter) ImportBlock(ctx context.Context, blk *ledger.Block) (Outcome, error) {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	outcome, err := i.importBlock(ctx, blk)
	if err != nil {
		return nil, err
	}
	if IsSuccess(outcome) {
		i.config.Logger.Debug(
			"imported block",
			"component", "blockimport",
			"block", blk.String(),
		)
	} else {
		i.config.Logger.Debug(
			"block import failed",
			"component", "blockimport",
			"block", blk.String(),
			"outcome", outcome.String(),
		)
	}
	return outcome, nil
}

func (i *ChainImporter) importBlock(ctx context.Context, blk *ledger.Block) (Outcome, error) {
	if i.store.HasBlock(ctx, blk.Root()) {
		return Success{}, nil
	}
	currentSlot := i.config.ChainConfig.SlotAtTime(i.config.Clock())
	if blk.Slot > currentSlot+i.config.FutureSlotTolerance {
		return FailedFromFuture{
			Slot:        blk.Slot,
			CurrentSlot: currentSlot,
		}, nil
	}
	parent, err := i.store.BlockByRoot(ctx, blk.ParentRoot)
	if err != nil {
		if errors.Is(err, chaindata.ErrNotFound) {
			return FailedUnknownParent{ParentRoot: blk.ParentRoot}, nil
		}
		return nil, err
	}
	if blk.Slot <= parent.Slot {
		return FailedInvalidAncestry{
			Reason: fmt.Sprintf(
				"block slot %d is not after parent slot %d",
				blk.Slot,
				parent.Slot,
			),
		}, nil
	}
	descends, err := i.store.DescendsFromFinalized(ctx, parent.Root())
	if err != nil {
		return nil, err
	}
	if !descends {
		return FailedInvalidAncestry{
			Reason: "block does not descend from the finalized checkpoint",
		}, nil
	}
	if !i.matchesWeakSubjectivity(parent, blk) {
		return FailedWeakSubjectivity{Checkpoint: *i.config.WeakSubjectivity}, nil
	}
	if i.config.StateTransitionFunc != nil {
		if err := i.config.StateTransitionFunc(ctx, parent, blk); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return FailedStateTransition{Cause: err}, nil
		}
	}
	if err := i.store.PutBlock(ctx, blk); err != nil {
		return nil, err
	}
	if err := i.updateFinality(ctx); err != nil {
		return nil, err
	}
	return Success{}, nil
}

// matchesWeakSubjectivity checks the block that crosses the checkpoint slot. The
// checkpoint block is the last block at or before the checkpoint slot
func (i *ChainImporter) matchesWeakSubjectivity(parent, blk *ledger.Block) bool {
	ws := i.config.WeakSubjectivity
	if ws == nil {
		return true
	}
	wsSlot := i.config.ChainConfig.EpochStartSlot(ws.Epoch)
	if parent.Slot >= wsSlot || blk.Slot < wsSlot {
		return true
	}
	if blk.Slot == wsSlot {
		return blk.Root() == ws.Root
	}
	return parent.Root() == ws.Root
}

func (i *ChainImporter) updateFinality(ctx context.Context) error {
	if i.config.FinalityDepth == 0 {
		return nil
	}
	head, err := i.store.ChainHead(ctx)
	if err != nil {
		return err
	}
	headEpoch := i.config.ChainConfig.EpochAtSlot(head.Slot)
	if headEpoch < i.config.FinalityDepth {
		return nil
	}
	return i.store.Finalize(ctx, headEpoch-i.config.FinalityDepth)
}
