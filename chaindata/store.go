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

package chaindata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/blinklabs-io/gobeacon/ledger"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultBlockCacheSize = 1024

// Store combines the hot fork-choice view with the finalized archive
type Store struct {
	config      StoreConfig
	archive     *ArchiveStore
	cache       *lru.Cache[ledger.Root, *ledger.Block]
	mutex       sync.RWMutex
	hotBlocks   map[ledger.Root]*ledger.Block
	head        *ledger.Block
	finalized   ledger.Checkpoint
	earliest    uint64
	hasEarliest bool
	closed      bool
}

type StoreConfig struct {
	DataDir        string
	Logger         *slog.Logger
	ChainConfig    ledger.ChainConfig
	BlockCacheSize int
}

// StoreOptionFunc is a type that represents functions that modify the store config
type StoreOptionFunc func(*StoreConfig)

// WithDataDir sets the archive directory. The archive is kept in memory when unset
func WithDataDir(dataDir string) StoreOptionFunc {
	return func(c *StoreConfig) {
		c.DataDir = dataDir
	}
}

func WithLogger(logger *slog.Logger) StoreOptionFunc {
	return func(c *StoreConfig) {
		c.Logger = logger
	}
}

func WithChainConfig(chainConfig ledger.ChainConfig) StoreOptionFunc {
	return func(c *StoreConfig) {
		c.ChainConfig = chainConfig
	}
}

func WithBlockCacheSize(size int) StoreOptionFunc {
	return func(c *StoreConfig) {
		c.BlockCacheSize = size
	}
}

// NewStore opens the archive and restores the finalized chain from it
func NewStore(opts ...StoreOptionFunc) (*Store, error) {
	cfg := StoreConfig{
		ChainConfig:    ledger.MainnetChainConfig,
		BlockCacheSize: DefaultBlockCacheSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cache, err := lru.New[ledger.Root, *ledger.Block](cfg.BlockCacheSize)
	if err != nil {
		return nil, err
	}
	archive, err := OpenArchive(cfg.DataDir, cfg.Logger)
	if err != nil {
		return nil, err
	}
	s := &Store{
		config:    cfg,
		archive:   archive,
		cache:     cache,
		hotBlocks: make(map[ledger.Root]*ledger.Block),
	}
	if err := s.load(); err != nil {
		return nil, multierror.Append(err, archive.Close())
	}
	return s, nil
}

func (s *Store) load() error {
	checkpoint, err := s.archive.FinalizedCheckpoint()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// New archive
			return nil
		}
		return err
	}
	s.finalized = checkpoint
	head, err := s.archive.LatestBlock()
	if err != nil {
		return fmt.Errorf("load archived head: %w", err)
	}
	s.head = head
	earliest, err := s.archive.EarliestSlot()
	switch {
	case err == nil:
		s.earliest = earliest
		s.hasEarliest = true
	case !errors.Is(err, ErrNotFound):
		return err
	}
	s.config.Logger.Info(
		"restored chain data",
		"component", "chaindata",
		"head_slot", head.Slot,
		"finalized", checkpoint.String(),
	)
	return nil
}

// Initialize stores the genesis block as the finalized anchor of an empty store
func (s *Store) Initialize(genesis *ledger.Block) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if s.head != nil {
		return nil
	}
	checkpoint := ledger.Checkpoint{
		Epoch: s.config.ChainConfig.EpochAtSlot(genesis.Slot),
		Root:  genesis.Root(),
	}
	if err := s.archive.Finalize(checkpoint, []*ledger.Block{genesis}); err != nil {
		return err
	}
	if err := s.archive.SetEarliestSlot(genesis.Slot); err != nil {
		return err
	}
	s.head = genesis
	s.finalized = checkpoint
	s.earliest = genesis.Slot
	s.hasEarliest = true
	return nil
}

// Close closes the archive
func (s *Store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	if closeErr := s.archive.Close(); closeErr != nil {
		err = multierror.Append(err, fmt.Errorf("close archive: %w", closeErr))
	}
	s.cache.Purge()
	return err
}

func (s *Store) ChainHead(ctx context.Context) (ledger.ChainHead, error) {
	if err := ctx.Err(); err != nil {
		return ledger.ChainHead{}, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.head == nil {
		return ledger.ChainHead{}, ErrNoChainHead
	}
	return ledger.ChainHead{
		Slot:      s.head.Slot,
		Root:      s.head.Root(),
		StateRoot: s.head.StateRoot,
	}, nil
}

func (s *Store) FinalizedCheckpoint() ledger.Checkpoint {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.finalized
}

func (s *Store) FinalizedEpoch() uint64 {
	return s.FinalizedCheckpoint().Epoch
}

// finalizedSlot must be called with the mutex held
func (s *Store) finalizedSlot() uint64 {
	return s.config.ChainConfig.EpochStartSlot(s.finalized.Epoch)
}

func (s *Store) IsFinalized(slot uint64) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.head != nil && slot <= s.finalizedSlot()
}

func (s *Store) EarliestAvailableBlockSlot(ctx context.Context) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.earliest, s.hasEarliest, nil
}

// SetEarliestAvailableSlot records that history before slot is not retained and
// drops any archived blocks below it
func (s *Store) SetEarliestAvailableSlot(slot uint64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if err := s.archive.PruneBefore(slot); err != nil {
		return fmt.Errorf("prune archive: %w", err)
	}
	if err := s.archive.SetEarliestSlot(slot); err != nil {
		return err
	}
	s.earliest = slot
	s.hasEarliest = true
	return nil
}

func (s *Store) AncestorRoots(
	ctx context.Context,
	startSlot, step, count uint64,
) (map[uint64]ledger.Root, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ret := make(map[uint64]ledger.Root)
	if step == 0 || count == 0 {
		return ret, nil
	}
	endSlot := ledger.SlotRangeEnd(startSlot, count, step)
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.head == nil {
		return ret, nil
	}
	// Walk back from the head through the hot view
	blk, ok := s.hotBlocks[s.head.Root()]
	for ok && blk.Slot >= startSlot {
		if blk.Slot < endSlot && (blk.Slot-startSlot)%step == 0 {
			ret[blk.Slot] = blk.Root()
		}
		blk, ok = s.hotBlocks[blk.ParentRoot]
	}
	return ret, nil
}

func (s *Store) BlockByRoot(ctx context.Context, root ledger.Root) (*ledger.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if blk, ok := s.hotBlocks[root]; ok {
		return blk, nil
	}
	if blk, ok := s.cache.Get(root); ok {
		return blk, nil
	}
	blk, err := s.archive.BlockByRoot(root)
	if err != nil {
		return nil, err
	}
	s.cache.Add(root, blk)
	return blk, nil
}

func (s *Store) BlockAtSlotExact(ctx context.Context, slot uint64) (*ledger.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if s.head == nil {
		return nil, ErrNotFound
	}
	if slot <= s.finalizedSlot() {
		blk, err := s.archive.BlockBySlot(slot)
		if err != nil {
			return nil, err
		}
		s.cache.Add(blk.Root(), blk)
		return blk, nil
	}
	blk, ok := s.hotBlocks[s.head.Root()]
	for ok && blk.Slot >= slot {
		if blk.Slot == slot {
			return blk, nil
		}
		blk, ok = s.hotBlocks[blk.ParentRoot]
	}
	return nil, ErrNotFound
}

// HasBlock reports whether the block is known to the hot view or the archive
func (s *Store) HasBlock(ctx context.Context, root ledger.Root) bool {
	_, err := s.BlockByRoot(ctx, root)
	return err == nil
}

// PutBlock adds a block to the hot view. A block with a higher slot than the current
// head becomes the new head
func (s *Store) PutBlock(ctx context.Context, blk *ledger.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.HasBlock(ctx, blk.ParentRoot) {
		return fmt.Errorf("%w: %s", ErrUnknownParent, blk.ParentRoot.String())
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.hotBlocks[blk.Root()] = blk
	if s.head == nil || blk.Slot > s.head.Slot {
		s.head = blk
	}
	return nil
}

// DescendsFromFinalized reports whether the block with the given root has the
// finalized checkpoint block as an ancestor, or is that block
func (s *Store) DescendsFromFinalized(ctx context.Context, root ledger.Root) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if root == s.finalized.Root {
		return true, nil
	}
	blk, ok := s.hotBlocks[root]
	if !ok {
		// Archived blocks other than the checkpoint are behind finality
		return false, nil
	}
	for {
		if blk.ParentRoot == s.finalized.Root {
			return true, nil
		}
		parent, ok := s.hotBlocks[blk.ParentRoot]
		if !ok {
			return false, nil
		}
		blk = parent
	}
}

// Finalize moves the canonical blocks up to the start slot of the epoch into the
// archive and prunes the hot view. Epochs at or below the current finalized epoch
// are ignored
func (s *Store) Finalize(ctx context.Context, epoch uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if s.head == nil {
		return ErrNotInitialized
	}
	if epoch <= s.finalized.Epoch {
		return nil
	}
	boundary := s.config.ChainConfig.EpochStartSlot(epoch)
	// Collect the canonical hot blocks at or below the boundary
	var finalized []*ledger.Block
	blk, ok := s.hotBlocks[s.head.Root()]
	for ok {
		if blk.Slot <= boundary {
			finalized = append(finalized, blk)
		}
		blk, ok = s.hotBlocks[blk.ParentRoot]
	}
	checkpoint := ledger.Checkpoint{
		Epoch: epoch,
		Root:  s.finalized.Root,
	}
	if len(finalized) > 0 {
		// The first collected block is the newest
		checkpoint.Root = finalized[0].Root()
	}
	sort.Slice(finalized, func(i, j int) bool {
		return finalized[i].Slot < finalized[j].Slot
	})
	if err := s.archive.Finalize(checkpoint, finalized); err != nil {
		return fmt.Errorf("archive finalized blocks: %w", err)
	}
	var pruned int
	for root, hotBlk := range s.hotBlocks {
		if hotBlk.Slot <= boundary {
			delete(s.hotBlocks, root)
			pruned++
		}
	}
	for _, finalizedBlk := range finalized {
		s.cache.Add(finalizedBlk.Root(), finalizedBlk)
	}
	s.finalized = checkpoint
	s.config.Logger.Debug(
		"finalized epoch",
		"component", "chaindata",
		"checkpoint", checkpoint.String(),
		"archived", len(finalized),
		"pruned", pruned-len(finalized),
	)
	return nil
}
