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

package peersync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blinklabs-io/gobeacon/blockimport"
	"github.com/blinklabs-io/gobeacon/internal/test"
	test_blockimport "github.com/blinklabs-io/gobeacon/internal/test/blockimport"
	test_chaindata "github.com/blinklabs-io/gobeacon/internal/test/chaindata"
	test_peersync "github.com/blinklabs-io/gobeacon/internal/test/peersync"
	"github.com/blinklabs-io/gobeacon/ledger"
	"github.com/blinklabs-io/gobeacon/metrics"
	"github.com/blinklabs-io/gobeacon/peersync"
	"github.com/blinklabs-io/gobeacon/protocol"
	"github.com/blinklabs-io/gobeacon/protocol/blocksbyrange"
	"github.com/blinklabs-io/gobeacon/protocol/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	peerHeadSlot       = 30
	peerFinalizedEpoch = 3
	maxRangeSize       = 200
)

type syncFixture struct {
	t        *testing.T
	chain    *test.ChainBuilder
	local    *test_chaindata.MockChainData
	importer *test_blockimport.MockImporter
	peer     *test_peersync.MockPeer
	session  *peersync.Session
}

func newSyncFixture(t *testing.T, headSlot uint64, options ...peersync.SessionOptionFunc) *syncFixture {
	t.Helper()
	f := &syncFixture{
		t:        t,
		chain:    test.NewChainBuilder(t),
		local:    test_chaindata.NewMockChainData(),
		importer: test_blockimport.NewMockImporter(),
	}
	f.local.WithHead(f.chain.Genesis())
	f.local.WithFinalizedCheckpoint(ledger.Checkpoint{Epoch: peerFinalizedEpoch})
	f.importer.OnSuccess(func(blk *ledger.Block) {
		f.local.WithHead(blk)
	})
	f.peer = test_peersync.NewMockPeer("peer-1", peerStatus(headSlot, peerFinalizedEpoch))
	options = append(
		[]peersync.SessionOptionFunc{
			peersync.WithChainConfig(ledger.MinimalChainConfig),
		},
		options...,
	)
	f.session = peersync.NewSession(f.local, f.importer, options...)
	return f
}

func peerStatus(headSlot uint64, finalizedEpoch uint64) common.PeerStatus {
	return common.PeerStatus{
		HeadSlot:       headSlot,
		FinalizedEpoch: finalizedEpoch,
	}
}

// blocks extends the peer chain to slot and returns the canonical blocks in [start, end]
func (f *syncFixture) blocks(start, end uint64) []*ledger.Block {
	if f.chain.Tip().Slot < end {
		f.chain.ExtendTo(end)
	}
	return f.chain.CanonicalRange(start, end)
}

func (f *syncFixture) sync() peersync.Result {
	f.t.Helper()
	return waitResult(f.t, f.session.Sync(context.Background(), f.peer))
}

func waitResult(t *testing.T, resultChan <-chan peersync.Result) peersync.Result {
	t.Helper()
	select {
	case result := <-resultChan:
		return result
	case <-time.After(5 * time.Second):
		t.Fatalf("did not receive sync result")
	}
	return 0
}

func rangeRequest(start, count uint64) blocksbyrange.RangeRequest {
	return blocksbyrange.RangeRequest{
		StartSlot: start,
		Count:     count,
		Step:      1,
	}
}

func TestSyncCompletesAtPeerHead(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newSyncFixture(t, peerHeadSlot)
	f.peer.WithResponses(test_peersync.Response{Blocks: f.blocks(1, peerHeadSlot)})
	assert.Equal(t, peersync.ResultCompleted, f.sync())
	assert.Equal(
		t,
		[]blocksbyrange.RangeRequest{rangeRequest(1, peerHeadSlot)},
		f.peer.Requests(),
	)
	assert.Len(t, f.importer.Imported(), peerHeadSlot)
	assert.Empty(t, f.peer.Disconnects())
	assert.Equal(
		t,
		peersync.Progress{StartingSlot: 1, CurrentSlot: peerHeadSlot},
		f.session.Progress(),
	)
}

func TestSyncAlreadyAtPeerHead(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newSyncFixture(t, peerHeadSlot)
	f.local.WithHead(f.blocks(peerHeadSlot, peerHeadSlot)[0])
	assert.Equal(t, peersync.ResultCompleted, f.sync())
	assert.Empty(t, f.peer.Requests())
	assert.Empty(t, f.importer.Imported())
	assert.Equal(t, uint64(peerHeadSlot+1), f.session.Progress().StartingSlot)
}

func TestSyncFailedImport(t *testing.T) {
	// Start slot of the peer's finalized epoch with 8 slots per epoch
	finalizedSlot := uint64(peerFinalizedEpoch * 8)
	testDefs := []struct {
		name       string
		slot       uint64
		outcome    blockimport.Outcome
		result     peersync.Result
		disconnect bool
	}{
		{
			name:       "StateTransition",
			slot:       5,
			outcome:    blockimport.FailedStateTransition{Cause: errors.New("bad signature")},
			result:     peersync.ResultBadBlock,
			disconnect: true,
		},
		{
			name:       "WeakSubjectivity",
			slot:       5,
			outcome:    blockimport.FailedWeakSubjectivity{},
			result:     peersync.ResultBadBlock,
			disconnect: true,
		},
		{
			name:    "InvalidAncestry",
			slot:    5,
			outcome: blockimport.FailedInvalidAncestry{Reason: "conflicts with finalized checkpoint"},
			result:  peersync.ResultImportFailed,
		},
		{
			name:    "FromFuture",
			slot:    5,
			outcome: blockimport.FailedFromFuture{Slot: 5, CurrentSlot: 4},
			result:  peersync.ResultImportFailed,
		},
		{
			name:       "UnknownParentWithinFinalizedRange",
			slot:       finalizedSlot,
			outcome:    blockimport.FailedUnknownParent{},
			result:     peersync.ResultBadBlock,
			disconnect: true,
		},
		{
			name:    "UnknownParentBeyondFinalizedRange",
			slot:    finalizedSlot + 1,
			outcome: blockimport.FailedUnknownParent{},
			result:  peersync.ResultImportFailed,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)
			f := newSyncFixture(t, peerHeadSlot)
			f.importer.WithOutcome(testDef.slot, testDef.outcome)
			f.peer.WithResponses(test_peersync.Response{Blocks: f.blocks(1, peerHeadSlot)})
			assert.Equal(t, testDef.result, f.sync())
			// Nothing after the failed block is imported
			assert.Equal(
				t,
				f.blocks(1, testDef.slot),
				f.importer.Imported(),
			)
			if testDef.disconnect {
				assert.Equal(
					t,
					[]common.DisconnectReason{common.DisconnectReasonRemoteFault},
					f.peer.Disconnects(),
				)
			} else {
				assert.Empty(t, f.peer.Disconnects())
			}
		})
	}
}

func TestSyncImporterError(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newSyncFixture(t, peerHeadSlot)
	f.importer.WithError(3, errors.New("disk full"))
	f.peer.WithResponses(test_peersync.Response{Blocks: f.blocks(1, peerHeadSlot)})
	assert.Equal(t, peersync.ResultImportFailed, f.sync())
	assert.Empty(t, f.peer.Disconnects())
	assert.Equal(t, uint64(2), f.session.Progress().CurrentSlot)
}

func TestSyncStoppedBeforeImport(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newSyncFixture(t, peerHeadSlot)
	f.peer.WithResponses(
		test_peersync.Response{
			Blocks: f.blocks(1, peerHeadSlot),
			OnRequest: func(blocksbyrange.RangeRequest) {
				f.session.Stop()
			},
		},
	)
	assert.Equal(t, peersync.ResultCancelled, f.sync())
	assert.Empty(t, f.importer.Imported())
	assert.Empty(t, f.peer.Disconnects())
	assert.Equal(t, uint64(1), f.session.Progress().StartingSlot)
}

func TestSyncStoppedBeforeInvalidBlock(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newSyncFixture(t, 3)
	blocks := f.blocks(1, 5)
	f.peer.WithResponses(
		test_peersync.Response{
			// Slot 5 is outside the request
			Blocks: blocks[4:],
			OnRequest: func(blocksbyrange.RangeRequest) {
				f.session.Stop()
			},
		},
	)
	assert.Equal(t, peersync.ResultCancelled, f.sync())
	assert.Empty(t, f.importer.Imported())
	assert.Empty(t, f.peer.Disconnects())
}

func TestSyncStoppedDuringImport(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newSyncFixture(t, peerHeadSlot)
	f.importer.OnImport(func(blk *ledger.Block) {
		if blk.Slot == 3 {
			f.session.Stop()
		}
	})
	f.peer.WithResponses(test_peersync.Response{Blocks: f.blocks(1, peerHeadSlot)})
	assert.Equal(t, peersync.ResultCancelled, f.sync())
	assert.Equal(t, []uint64{1, 2, 3}, test.Slots(f.importer.Imported()))
	assert.Empty(t, f.peer.Disconnects())
}

func TestSyncStoppedWhileWaitingForPeer(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newSyncFixture(t, peerHeadSlot)
	resultChan := f.session.Sync(context.Background(), f.peer)
	require.Eventually(
		t,
		func() bool { return len(f.peer.Requests()) == 1 },
		2*time.Second,
		10*time.Millisecond,
	)
	f.session.Stop()
	// Stop is idempotent
	f.session.Stop()
	assert.Equal(t, peersync.ResultCancelled, waitResult(t, resultChan))
	assert.Empty(t, f.peer.Disconnects())
}

func TestSyncStoppedBeforeSync(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newSyncFixture(t, peerHeadSlot)
	f.session.Stop()
	assert.Equal(t, peersync.ResultCancelled, f.sync())
	assert.Empty(t, f.peer.Requests())
	assert.Empty(t, f.importer.Imported())
}

func TestSyncContextCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newSyncFixture(t, peerHeadSlot)
	ctx, cancel := context.WithCancel(context.Background())
	resultChan := f.session.Sync(ctx, f.peer)
	require.Eventually(
		t,
		func() bool { return len(f.peer.Requests()) == 1 },
		2*time.Second,
		10*time.Millisecond,
	)
	cancel()
	assert.Equal(t, peersync.ResultCancelled, waitResult(t, resultChan))
	assert.Empty(t, f.peer.Disconnects())
}

func TestSyncDisconnectsPeerWithOverstatedFinality(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newSyncFixture(t, peerHeadSlot)
	f.local.WithFinalizedCheckpoint(ledger.Checkpoint{Epoch: peerFinalizedEpoch - 1})
	f.peer.WithResponses(test_peersync.Response{Blocks: f.blocks(1, peerHeadSlot)})
	assert.Equal(t, peersync.ResultCompleted, f.sync())
	assert.Equal(
		t,
		[]common.DisconnectReason{common.DisconnectReasonRemoteFault},
		f.peer.Disconnects(),
	)
}

func TestSyncMultipleRequests(t *testing.T) {
	defer goleak.VerifyNone(t)
	const secondRequestSize = 30
	headSlot := uint64(maxRangeSize + secondRequestSize)
	f := newSyncFixture(t, headSlot)
	f.peer.WithResponses(
		test_peersync.Response{Blocks: f.blocks(1, maxRangeSize)},
		test_peersync.Response{Blocks: f.blocks(maxRangeSize+1, headSlot)},
	)
	assert.Equal(t, peersync.ResultCompleted, f.sync())
	assert.Equal(
		t,
		[]blocksbyrange.RangeRequest{
			rangeRequest(1, maxRangeSize),
			rangeRequest(maxRangeSize+1, secondRequestSize),
		},
		f.peer.Requests(),
	)
	assert.Len(t, f.importer.Imported(), int(headSlot))
	assert.Empty(t, f.peer.Disconnects())
}

func TestSyncFollowsPeerStatusUpdates(t *testing.T) {
	defer goleak.VerifyNone(t)
	const updatedHeadSlot = peerHeadSlot + 5
	f := newSyncFixture(t, peerHeadSlot)
	f.peer.WithResponses(
		test_peersync.Response{
			Blocks: f.blocks(1, peerHeadSlot),
			OnRequest: func(blocksbyrange.RangeRequest) {
				f.peer.SetStatus(peerStatus(updatedHeadSlot, peerFinalizedEpoch))
			},
		},
		test_peersync.Response{Blocks: f.blocks(peerHeadSlot+1, updatedHeadSlot)},
	)
	assert.Equal(t, peersync.ResultCompleted, f.sync())
	assert.Equal(
		t,
		[]blocksbyrange.RangeRequest{
			rangeRequest(1, peerHeadSlot),
			rangeRequest(peerHeadSlot+1, 5),
		},
		f.peer.Requests(),
	)
	assert.Equal(t, uint64(updatedHeadSlot), f.session.Progress().CurrentSlot)
}

func TestSyncEmptyResponse(t *testing.T) {
	defer goleak.VerifyNone(t)
	const secondRequestSize = 5
	headSlot := uint64(maxRangeSize + secondRequestSize)
	f := newSyncFixture(t, headSlot)
	f.peer.WithResponses(
		// Nothing in the first range, so the next request starts after it
		test_peersync.Response{},
		test_peersync.Response{Blocks: f.blocks(headSlot, headSlot)},
	)
	assert.Equal(t, peersync.ResultCompleted, f.sync())
	assert.Equal(
		t,
		[]blocksbyrange.RangeRequest{
			rangeRequest(1, maxRangeSize),
			rangeRequest(maxRangeSize+1, secondRequestSize),
		},
		f.peer.Requests(),
	)
	assert.Equal(
		t,
		peersync.Progress{StartingSlot: 1, CurrentSlot: headSlot},
		f.session.Progress(),
	)

	// A later sync starts from the new local head
	const thirdRequestSize = 6
	f.peer.SetStatus(peerStatus(headSlot+thirdRequestSize, peerFinalizedEpoch))
	f.peer.WithResponses(test_peersync.Response{})
	assert.Equal(t, peersync.ResultCompleted, f.sync())
	requests := f.peer.Requests()
	require.Len(t, requests, 3)
	assert.Equal(t, rangeRequest(headSlot+1, thirdRequestSize), requests[2])
	assert.Equal(t, headSlot+1, f.session.Progress().StartingSlot)
	assert.Empty(t, f.peer.Disconnects())
}

func TestSyncExcessiveThrottling(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newSyncFixture(t, 1000000)
	blocks := f.blocks(1, peersync.DefaultMaxThrottledRequests+1)
	// Each response holds a single block
	for _, blk := range blocks {
		f.peer.WithResponses(test_peersync.Response{Blocks: []*ledger.Block{blk}})
	}
	assert.Equal(t, peersync.ResultExcessiveThrottling, f.sync())
	requests := f.peer.Requests()
	require.Len(t, requests, peersync.DefaultMaxThrottledRequests+1)
	for i, req := range requests {
		assert.Equal(t, rangeRequest(uint64(i+1), maxRangeSize), req)
	}
	assert.Len(t, f.importer.Imported(), peersync.DefaultMaxThrottledRequests+1)
	assert.Empty(t, f.peer.Disconnects())
}

func TestSyncToleratesThrottling(t *testing.T) {
	defer goleak.VerifyNone(t)
	const partialResponses = peersync.DefaultMaxThrottledRequests
	const headSlot = partialResponses + 10
	f := newSyncFixture(t, headSlot)
	for _, blk := range f.blocks(1, partialResponses) {
		f.peer.WithResponses(test_peersync.Response{Blocks: []*ledger.Block{blk}})
	}
	f.peer.WithResponses(test_peersync.Response{Blocks: f.blocks(partialResponses+1, headSlot)})
	assert.Equal(t, peersync.ResultCompleted, f.sync())
	assert.Len(t, f.peer.Requests(), partialResponses+1)
	assert.Empty(t, f.peer.Disconnects())
}

func TestSyncContinuesAfterPartialResponse(t *testing.T) {
	defer goleak.VerifyNone(t)
	const lastReceivedSlot = 70
	f := newSyncFixture(t, 1000000)
	f.peer.WithResponses(test_peersync.Response{Blocks: f.blocks(1, lastReceivedSlot)})
	resultChan := f.session.Sync(context.Background(), f.peer)
	require.Eventually(
		t,
		func() bool { return len(f.peer.Requests()) == 2 },
		2*time.Second,
		10*time.Millisecond,
	)
	assert.Equal(t, rangeRequest(lastReceivedSlot+1, maxRangeSize), f.peer.Requests()[1])
	f.session.Stop()
	assert.Equal(t, peersync.ResultCancelled, waitResult(t, resultChan))
	assert.Empty(t, f.peer.Disconnects())
}

func TestSyncFullResponseResetsThrottling(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newSyncFixture(
		t,
		10,
		peersync.WithMaxRangeSize(2),
		peersync.WithMaxThrottledRequests(1),
	)
	blocks := f.blocks(1, 10)
	// Partial and full responses alternate
	f.peer.WithResponses(
		test_peersync.Response{Blocks: blocks[0:1]},
		test_peersync.Response{Blocks: blocks[1:3]},
		test_peersync.Response{Blocks: blocks[3:4]},
		test_peersync.Response{Blocks: blocks[4:6]},
		test_peersync.Response{Blocks: blocks[6:7]},
		test_peersync.Response{Blocks: blocks[7:9]},
		test_peersync.Response{Blocks: blocks[9:10]},
	)
	assert.Equal(t, peersync.ResultCompleted, f.sync())
	assert.Equal(
		t,
		[]blocksbyrange.RangeRequest{
			rangeRequest(1, 2),
			rangeRequest(2, 2),
			rangeRequest(4, 2),
			rangeRequest(5, 2),
			rangeRequest(7, 2),
			rangeRequest(8, 2),
			rangeRequest(10, 1),
		},
		f.peer.Requests(),
	)
}

func TestSyncInvalidResponse(t *testing.T) {
	testDefs := []struct {
		name     string
		headSlot uint64
		blocks   func(f *syncFixture) []*ledger.Block
		imported []uint64
	}{
		{
			name:     "WrongOrder",
			headSlot: peerHeadSlot,
			blocks: func(f *syncFixture) []*ledger.Block {
				blocks := f.blocks(1, 3)
				return append(blocks, blocks[1])
			},
			imported: []uint64{1, 2, 3},
		},
		{
			name:     "SlotOutsideRequest",
			headSlot: 3,
			blocks: func(f *syncFixture) []*ledger.Block {
				blocks := f.blocks(1, 5)
				return []*ledger.Block{blocks[0], blocks[4]}
			},
			imported: []uint64{1},
		},
		{
			name:     "TooManyBlocks",
			headSlot: 2,
			blocks: func(f *syncFixture) []*ledger.Block {
				return f.blocks(1, 3)
			},
			imported: []uint64{1, 2},
		},
		{
			name:     "ParentMismatch",
			headSlot: peerHeadSlot,
			blocks: func(f *syncFixture) []*ledger.Block {
				blocks := f.blocks(1, 2)
				return append(blocks, f.chain.Fork(blocks[0], 3)...)
			},
			imported: []uint64{1, 2},
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)
			f := newSyncFixture(t, testDef.headSlot)
			f.peer.WithResponses(test_peersync.Response{Blocks: testDef.blocks(f)})
			assert.Equal(t, peersync.ResultInvalidResponse, f.sync())
			assert.Equal(t, testDef.imported, test.Slots(f.importer.Imported()))
			assert.Equal(
				t,
				[]common.DisconnectReason{common.DisconnectReasonRemoteFault},
				f.peer.Disconnects(),
			)
		})
	}
}

func TestSyncStreamErrors(t *testing.T) {
	testDefs := []struct {
		name       string
		response   test_peersync.Response
		result     peersync.Result
		disconnect bool
	}{
		{
			name:       "DecompressFailed",
			response:   test_peersync.Response{RequestErr: blocksbyrange.ErrDecompressFailed},
			result:     peersync.ResultInvalidResponse,
			disconnect: true,
		},
		{
			name:       "MalformedChunk",
			response:   test_peersync.Response{Err: blocksbyrange.ErrMalformedChunk},
			result:     peersync.ResultInvalidResponse,
			disconnect: true,
		},
		{
			name: "ResourceUnavailable",
			response: test_peersync.Response{
				Err: blocksbyrange.NewResourceUnavailableError("Requested historical blocks are currently unavailable"),
			},
			result: peersync.ResultRequestFailed,
		},
		{
			name: "InvalidRequest",
			response: test_peersync.Response{
				Err: blocksbyrange.NewInvalidRequestError("step must be 1"),
			},
			result:     peersync.ResultInvalidResponse,
			disconnect: true,
		},
		{
			name: "InvalidMethodVersion",
			response: test_peersync.Response{
				RequestErr: blocksbyrange.NewInvalidMethodVersionError("unsupported version"),
			},
			result:     peersync.ResultInvalidResponse,
			disconnect: true,
		},
		{
			name: "ServerError",
			response: test_peersync.Response{
				Err: blocksbyrange.NewServerError("database unavailable"),
			},
			result:     peersync.ResultInvalidResponse,
			disconnect: true,
		},
		{
			name: "UnknownErrorCode",
			response: test_peersync.Response{
				Err: &blocksbyrange.RpcError{Code: 9, Message: "unknown"},
			},
			result:     peersync.ResultInvalidResponse,
			disconnect: true,
		},
		{
			name:     "ShuttingDown",
			response: test_peersync.Response{RequestErr: protocol.ErrProtocolShuttingDown},
			result:   peersync.ResultRequestFailed,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)
			f := newSyncFixture(t, peerHeadSlot)
			f.peer.WithResponses(testDef.response)
			assert.Equal(t, testDef.result, f.sync())
			assert.Empty(t, f.importer.Imported())
			if testDef.disconnect {
				assert.Equal(
					t,
					[]common.DisconnectReason{common.DisconnectReasonRemoteFault},
					f.peer.Disconnects(),
				)
			} else {
				assert.Empty(t, f.peer.Disconnects())
			}
		})
	}
}

func TestSyncMetrics(t *testing.T) {
	defer goleak.VerifyNone(t)
	syncMetrics := metrics.NewSyncMetrics(prometheus.NewRegistry())
	f := newSyncFixture(t, peerHeadSlot, peersync.WithMetrics(syncMetrics))
	f.peer.WithResponses(test_peersync.Response{Blocks: f.blocks(1, peerHeadSlot)})
	assert.Equal(t, peersync.ResultCompleted, f.sync())
	// The result is recorded before it is delivered
	assert.Equal(
		t,
		float64(1),
		testutil.ToFloat64(syncMetrics.Results.WithLabelValues(peersync.ResultCompleted.String())),
	)
	assert.Equal(t, float64(peerHeadSlot), testutil.ToFloat64(syncMetrics.BlocksImported))
	assert.Equal(t, float64(1), testutil.ToFloat64(syncMetrics.RequestsSent))
	assert.Equal(t, float64(peerHeadSlot), testutil.ToFloat64(syncMetrics.CurrentSlot))
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "ExcessiveThrottling", peersync.ResultExcessiveThrottling.String())
	assert.Equal(t, "Unknown(0)", peersync.Result(0).String())
	assert.True(t, peersync.ResultCompleted.IsSuccess())
	assert.False(t, peersync.ResultCancelled.IsSuccess())
}
