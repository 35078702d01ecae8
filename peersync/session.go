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

package peersync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/gobeacon/blockimport"
	"github.com/blinklabs-io/gobeacon/chaindata"
	"github.com/blinklabs-io/gobeacon/ledger"
	"github.com/blinklabs-io/gobeacon/metrics"
	"github.com/blinklabs-io/gobeacon/protocol/blocksbyrange"
	"github.com/blinklabs-io/gobeacon/protocol/common"

	"go.uber.org/atomic"
)

const (
	DefaultMaxRangeSize         = 200
	DefaultMaxThrottledRequests = 10
)

type Config struct {
	ChainConfig ledger.ChainConfig
	Logger      *slog.Logger
	Metrics     *metrics.SyncMetrics
	// MaxRangeSize is the largest block count asked for in one request
	MaxRangeSize uint64
	// MaxThrottledRequests is the number of consecutive partial responses tolerated
	MaxThrottledRequests int
}

// SessionOptionFunc is a type that represents functions that modify the session config
type SessionOptionFunc func(*Config)

func NewConfig(options ...SessionOptionFunc) Config {
	c := Config{
		ChainConfig:          ledger.MainnetChainConfig,
		MaxRangeSize:         DefaultMaxRangeSize,
		MaxThrottledRequests: DefaultMaxThrottledRequests,
	}
	for _, option := range options {
		option(&c)
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.MaxRangeSize == 0 {
		c.MaxRangeSize = DefaultMaxRangeSize
	}
	return c
}

func WithChainConfig(chainConfig ledger.ChainConfig) SessionOptionFunc {
	return func(c *Config) {
		c.ChainConfig = chainConfig
	}
}

func WithLogger(logger *slog.Logger) SessionOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

func WithMetrics(syncMetrics *metrics.SyncMetrics) SessionOptionFunc {
	return func(c *Config) {
		c.Metrics = syncMetrics
	}
}

func WithMaxRangeSize(size uint64) SessionOptionFunc {
	return func(c *Config) {
		c.MaxRangeSize = size
	}
}

func WithMaxThrottledRequests(count int) SessionOptionFunc {
	return func(c *Config) {
		c.MaxThrottledRequests = count
	}
}

// Session syncs the local chain from one peer. Calls to Sync are serialized, and Stop
// ends the current and any later sync with ResultCancelled
type Session struct {
	config       Config
	chain        ChainState
	importer     blockimport.Importer
	syncMutex    sync.Mutex
	stopCtx      context.Context
	stopCancel   context.CancelFunc
	startingSlot atomic.Uint64
	currentSlot  atomic.Uint64
}

func NewSession(chain ChainState, importer blockimport.Importer, options ...SessionOptionFunc) *Session {
	stopCtx, stopCancel := context.WithCancel(context.Background())
	return &Session{
		config:     NewConfig(options...),
		chain:      chain,
		importer:   importer,
		stopCtx:    stopCtx,
		stopCancel: stopCancel,
	}
}

// Sync starts syncing from the peer and returns a channel that receives the result
func (s *Session) Sync(ctx context.Context, peer Peer) <-chan Result {
	resultChan := make(chan Result, 1)
	go func() {
		s.syncMutex.Lock()
		defer s.syncMutex.Unlock()
		result := s.sync(ctx, peer)
		s.config.Logger.Info(
			fmt.Sprintf("sync finished: %s", result.String()),
			"component", "peersync",
			"peer", peer.ID(),
			"starting_slot", s.startingSlot.Load(),
			"current_slot", s.currentSlot.Load(),
		)
		if s.config.Metrics != nil {
			s.config.Metrics.Results.WithLabelValues(result.String()).Inc()
		}
		resultChan <- result
	}()
	return resultChan
}

// Stop cancels the session. It is safe to call more than once and from any goroutine
func (s *Session) Stop() {
	s.stopCancel()
}

// Progress returns the starting slot of the latest sync and the slot of the last
// imported block
func (s *Session) Progress() Progress {
	return Progress{
		StartingSlot: s.startingSlot.Load(),
		CurrentSlot:  s.currentSlot.Load(),
	}
}

func (s *Session) stopped(ctx context.Context) bool {
	return s.stopCtx.Err() != nil || ctx.Err() != nil
}

// syncState is the per-sync bookkeeping carried between requests
type syncState struct {
	peer      Peer
	status    common.PeerStatus
	lastSlot  uint64
	imported  bool
	throttled int
}

func (s *Session) sync(parentCtx context.Context, peer Peer) Result {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	stopAfter := context.AfterFunc(s.stopCtx, cancel)
	defer stopAfter()
	if s.stopped(ctx) {
		return ResultCancelled
	}
	state := &syncState{
		peer:   peer,
		status: peer.Status(),
	}
	var localHead uint64
	head, err := s.chain.ChainHead(ctx)
	if err != nil {
		if s.stopped(ctx) {
			return ResultCancelled
		}
		if !errors.Is(err, chaindata.ErrNoChainHead) {
			s.config.Logger.Error(
				fmt.Sprintf("failed to read local chain head: %s", err),
				"component", "peersync",
				"peer", peer.ID(),
			)
			return ResultImportFailed
		}
	} else {
		localHead = head.Slot
	}
	start := max(localHead+1, 1)
	s.startingSlot.Store(start)
	s.currentSlot.Store(localHead)
	s.config.Logger.Debug(
		fmt.Sprintf("starting sync from slot %d, peer status %s", start, state.status.String()),
		"component", "peersync",
		"peer", peer.ID(),
	)
	for start <= state.status.HeadSlot {
		req := blocksbyrange.RangeRequest{
			StartSlot: start,
			Count:     min(state.status.HeadSlot-start+1, s.config.MaxRangeSize),
			Step:      1,
		}
		received, result := s.requestRange(ctx, state, req)
		if result != 0 {
			return result
		}
		if received < req.Count {
			state.throttled++
			if s.config.Metrics != nil {
				s.config.Metrics.Throttled.Inc()
			}
			if state.throttled > s.config.MaxThrottledRequests {
				s.config.Logger.Debug(
					fmt.Sprintf("peer sent %d consecutive partial responses", state.throttled),
					"component", "peersync",
					"peer", peer.ID(),
				)
				return ResultExcessiveThrottling
			}
		} else {
			state.throttled = 0
		}
		if received > 0 {
			start = state.lastSlot + 1
		} else {
			start = req.EndSlot()
		}
		// The peer may have advanced while the response was being processed
		nextStatus := peer.Status()
		if start > nextStatus.HeadSlot {
			break
		}
		state.status = nextStatus
	}
	if localFinalized := s.chain.FinalizedEpoch(); localFinalized < state.status.FinalizedEpoch {
		s.config.Logger.Warn(
			fmt.Sprintf(
				"peer claimed finalized epoch %d but sync reached local finalized epoch %d",
				state.status.FinalizedEpoch,
				localFinalized,
			),
			"component", "peersync",
			"peer", peer.ID(),
		)
		peer.Disconnect(common.DisconnectReasonRemoteFault)
	}
	return ResultCompleted
}

// requestRange sends one request and imports the response. It returns the number of
// blocks received, and a non-zero result if the sync must end
func (s *Session) requestRange(ctx context.Context, state *syncState, req blocksbyrange.RangeRequest) (uint64, Result) {
	s.config.Logger.Debug(
		fmt.Sprintf("requesting blocks by range (%s)", req.String()),
		"component", "peersync",
		"peer", state.peer.ID(),
	)
	if s.config.Metrics != nil {
		s.config.Metrics.RequestsSent.Inc()
	}
	stream, err := state.peer.RequestBlocksByRange(ctx, req)
	if err != nil {
		return 0, s.handleStreamError(ctx, state, err)
	}
	defer stream.Close()
	var received uint64
	var prev *ledger.Block
	for {
		blk, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return received, 0
			}
			return received, s.handleStreamError(ctx, state, err)
		}
		if s.stopped(ctx) {
			return received, ResultCancelled
		}
		received++
		if err := s.validateBlock(state, req, received, prev, blk); err != nil {
			s.config.Logger.Warn(
				fmt.Sprintf("invalid response to range request (%s): %s", req.String(), err),
				"component", "peersync",
				"peer", state.peer.ID(),
				"block", blk.String(),
			)
			state.peer.Disconnect(common.DisconnectReasonRemoteFault)
			return received, ResultInvalidResponse
		}
		if result := s.importBlock(ctx, state, blk); result != 0 {
			return received, result
		}
		prev = blk
	}
}

func (s *Session) validateBlock(
	state *syncState,
	req blocksbyrange.RangeRequest,
	received uint64,
	prev *ledger.Block,
	blk *ledger.Block,
) error {
	if received > req.Count {
		return ErrTooManyBlocks
	}
	if state.imported && blk.Slot <= state.lastSlot {
		return fmt.Errorf("%w: %d after %d", ErrBlockSlotNotIncreasing, blk.Slot, state.lastSlot)
	}
	if !req.Contains(blk.Slot) {
		return fmt.Errorf("%w: %d", ErrBlockSlotNotRequested, blk.Slot)
	}
	if req.Step == 1 && prev != nil && blk.ParentRoot != prev.Root() {
		return fmt.Errorf(
			"%w: parent %s, previous block %s",
			ErrBlockParentMismatch,
			blk.ParentRoot.String(),
			prev.Root().String(),
		)
	}
	return nil
}

func (s *Session) importBlock(ctx context.Context, state *syncState, blk *ledger.Block) Result {
	outcome, err := s.importer.ImportBlock(ctx, blk)
	if err != nil {
		if s.stopped(ctx) || errors.Is(err, context.Canceled) {
			return ResultCancelled
		}
		s.config.Logger.Error(
			fmt.Sprintf("failed to import block %s: %s", blk.String(), err),
			"component", "peersync",
			"peer", state.peer.ID(),
		)
		return ResultImportFailed
	}
	if s.stopped(ctx) && !blockimport.IsSuccess(outcome) {
		return ResultCancelled
	}
	switch o := outcome.(type) {
	case blockimport.Success:
		state.lastSlot = blk.Slot
		state.imported = true
		s.currentSlot.Store(blk.Slot)
		if s.config.Metrics != nil {
			s.config.Metrics.BlocksImported.Inc()
			s.config.Metrics.CurrentSlot.Set(float64(blk.Slot))
		}
		return 0
	case blockimport.FailedStateTransition, blockimport.FailedWeakSubjectivity:
		s.logImportFailure(state, blk, outcome)
		state.peer.Disconnect(common.DisconnectReasonRemoteFault)
		return ResultBadBlock
	case blockimport.FailedUnknownParent:
		s.logImportFailure(state, blk, outcome)
		// The peer claims this part of the chain is final, so it must be able to
		// serve the parent
		finalizedSlot := s.config.ChainConfig.EpochStartSlot(state.status.FinalizedEpoch)
		if blk.Slot <= finalizedSlot {
			state.peer.Disconnect(common.DisconnectReasonRemoteFault)
			return ResultBadBlock
		}
		return ResultImportFailed
	case blockimport.FailedInvalidAncestry, blockimport.FailedFromFuture:
		s.logImportFailure(state, blk, outcome)
		return ResultImportFailed
	default:
		s.config.Logger.Error(
			fmt.Sprintf("unexpected import outcome %T for block %s", o, blk.String()),
			"component", "peersync",
			"peer", state.peer.ID(),
		)
		return ResultImportFailed
	}
}

func (s *Session) logImportFailure(state *syncState, blk *ledger.Block, outcome blockimport.Outcome) {
	s.config.Logger.Warn(
		fmt.Sprintf("failed to import block %s: %s", blk.String(), outcome.String()),
		"component", "peersync",
		"peer", state.peer.ID(),
	)
}

func (s *Session) handleStreamError(ctx context.Context, state *syncState, err error) Result {
	if s.stopped(ctx) {
		return ResultCancelled
	}
	if errors.Is(err, blocksbyrange.ErrDecompressFailed) || errors.Is(err, blocksbyrange.ErrMalformedChunk) {
		s.config.Logger.Warn(
			fmt.Sprintf("malformed response from peer: %s", err),
			"component", "peersync",
			"peer", state.peer.ID(),
		)
		state.peer.Disconnect(common.DisconnectReasonRemoteFault)
		return ResultInvalidResponse
	}
	var rpcErr *blocksbyrange.RpcError
	if errors.As(err, &rpcErr) && rpcErr.Code != blocksbyrange.RpcErrorResourceUnavailable {
		s.config.Logger.Warn(
			fmt.Sprintf("peer rejected range request: %s", err),
			"component", "peersync",
			"peer", state.peer.ID(),
		)
		state.peer.Disconnect(common.DisconnectReasonRemoteFault)
		return ResultInvalidResponse
	}
	s.config.Logger.Debug(
		fmt.Sprintf("range request failed: %s", err),
		"component", "peersync",
		"peer", state.peer.ID(),
	)
	return ResultRequestFailed
}
