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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/gobeacon/ledger"
	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
)

// Key prefixes
const (
	prefixBlockBySlot byte = 'b'
	prefixSlotByRoot  byte = 'r'
	prefixMeta        byte = 'm'
)

var (
	metaKeyFinalizedEpoch = metaKey("finalized-epoch")
	metaKeyFinalizedRoot  = metaKey("finalized-root")
	metaKeyEarliestSlot   = metaKey("earliest-slot")
)

// ArchiveStore holds finalized blocks in pebble, indexed by slot and by root
type ArchiveStore struct {
	db     *pebble.DB
	logger *slog.Logger
}

// OpenArchive opens the archive in dir. An empty dir keeps the archive in memory
func OpenArchive(dir string, logger *slog.Logger) (*ArchiveStore, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts := &pebble.Options{
		Logger: &pebbleLogger{logger: logger},
	}
	if dir == "" {
		opts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &ArchiveStore{
		db:     db,
		logger: logger,
	}, nil
}

func (a *ArchiveStore) Close() error {
	return a.db.Close()
}

// PutBlocks writes the blocks in a single batch
func (a *ArchiveStore) PutBlocks(blocks []*ledger.Block) error {
	batch := a.db.NewBatch()
	defer batch.Close()
	if err := writeBlocks(batch, blocks); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// BlockBySlot returns ErrNotFound for an empty slot
func (a *ArchiveStore) BlockBySlot(slot uint64) (*ledger.Block, error) {
	val, closer, err := a.db.Get(slotKey(prefixBlockBySlot, slot))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	// The value is only valid until the closer is closed
	data := make([]byte, len(val))
	copy(data, val)
	return ledger.NewBlockFromCbor(data)
}

// SlotByRoot returns the slot of an archived block
func (a *ArchiveStore) SlotByRoot(root ledger.Root) (uint64, error) {
	val, closer, err := a.db.Get(rootKey(root))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, fmt.Errorf("corrupt root index entry for %s", root.String())
	}
	return binary.BigEndian.Uint64(val), nil
}

func (a *ArchiveStore) BlockByRoot(root ledger.Root) (*ledger.Block, error) {
	slot, err := a.SlotByRoot(root)
	if err != nil {
		return nil, err
	}
	return a.BlockBySlot(slot)
}

// LatestBlock returns the archived block with the highest slot
func (a *ArchiveStore) LatestBlock() (*ledger.Block, error) {
	iter, err := a.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixBlockBySlot},
		UpperBound: []byte{prefixBlockBySlot + 1},
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	if !iter.Last() {
		return nil, ErrNotFound
	}
	data := make([]byte, len(iter.Value()))
	copy(data, iter.Value())
	return ledger.NewBlockFromCbor(data)
}

// FinalizedCheckpoint returns the stored checkpoint, or ErrNotFound for a new archive
func (a *ArchiveStore) FinalizedCheckpoint() (ledger.Checkpoint, error) {
	epoch, err := a.getUint64(metaKeyFinalizedEpoch)
	if err != nil {
		return ledger.Checkpoint{}, err
	}
	val, closer, err := a.db.Get(metaKeyFinalizedRoot)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ledger.Checkpoint{}, ErrNotFound
		}
		return ledger.Checkpoint{}, err
	}
	defer closer.Close()
	return ledger.Checkpoint{
		Epoch: epoch,
		Root:  ledger.NewRoot(val),
	}, nil
}

// Finalize archives the blocks and records the new checkpoint atomically
func (a *ArchiveStore) Finalize(checkpoint ledger.Checkpoint, blocks []*ledger.Block) error {
	batch := a.db.NewBatch()
	defer batch.Close()
	if err := writeBlocks(batch, blocks); err != nil {
		return err
	}
	if err := batch.Set(metaKeyFinalizedEpoch, encodeUint64(checkpoint.Epoch), nil); err != nil {
		return err
	}
	if err := batch.Set(metaKeyFinalizedRoot, checkpoint.Root.Bytes(), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// EarliestSlot returns the oldest retained slot, or ErrNotFound when unknown
func (a *ArchiveStore) EarliestSlot() (uint64, error) {
	return a.getUint64(metaKeyEarliestSlot)
}

func (a *ArchiveStore) SetEarliestSlot(slot uint64) error {
	return a.db.Set(metaKeyEarliestSlot, encodeUint64(slot), pebble.Sync)
}

// PruneBefore deletes archived blocks below the given slot
func (a *ArchiveStore) PruneBefore(slot uint64) error {
	iter, err := a.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixBlockBySlot},
		UpperBound: slotKey(prefixBlockBySlot, slot),
	})
	if err != nil {
		return err
	}
	batch := a.db.NewBatch()
	defer batch.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		data := make([]byte, len(iter.Value()))
		copy(data, iter.Value())
		blk, err := ledger.NewBlockFromCbor(data)
		if err != nil {
			iter.Close()
			return err
		}
		if err := batch.Delete(rootKey(blk.Root()), nil); err != nil {
			iter.Close()
			return err
		}
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if err := batch.DeleteRange(
		[]byte{prefixBlockBySlot},
		slotKey(prefixBlockBySlot, slot),
		nil,
	); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (a *ArchiveStore) getUint64(key []byte) (uint64, error) {
	val, closer, err := a.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, fmt.Errorf("corrupt metadata entry %q", key)
	}
	return binary.BigEndian.Uint64(val), nil
}

func writeBlocks(batch *pebble.Batch, blocks []*ledger.Block) error {
	for _, blk := range blocks {
		data, err := blk.Encode()
		if err != nil {
			return err
		}
		if err := batch.Set(slotKey(prefixBlockBySlot, blk.Slot), data, nil); err != nil {
			return err
		}
		if err := batch.Set(rootKey(blk.Root()), encodeUint64(blk.Slot), nil); err != nil {
			return err
		}
	}
	return nil
}

func slotKey(prefix byte, slot uint64) []byte {
	key := make([]byte, 9)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:], slot)
	return key
}

func rootKey(root ledger.Root) []byte {
	key := make([]byte, 1+ledger.RootSize)
	key[0] = prefixSlotByRoot
	copy(key[1:], root[:])
	return key
}

func metaKey(name string) []byte {
	return append([]byte{prefixMeta}, name...)
}

func encodeUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// pebbleLogger sends pebble's own log output to slog
type pebbleLogger struct {
	logger *slog.Logger
}

func (l *pebbleLogger) Infof(format string, args ...any) {
	l.logger.Debug(
		fmt.Sprintf(format, args...),
		"component", "archive",
	)
}

func (l *pebbleLogger) Errorf(format string, args ...any) {
	l.logger.Error(
		fmt.Sprintf(format, args...),
		"component", "archive",
	)
}

func (l *pebbleLogger) Fatalf(format string, args ...any) {
	l.logger.Error(
		fmt.Sprintf(format, args...),
		"component", "archive",
	)
	panic(fmt.Sprintf(format, args...))
}
