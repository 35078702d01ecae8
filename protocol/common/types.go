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

// The common package contains types used by multiple protocols
package common

import (
	"fmt"

	"github.com/blinklabs-io/gobeacon/cbor"
	"github.com/blinklabs-io/gobeacon/ledger"
)

// PeerStatus is a snapshot of the chain status advertised by a peer
type PeerStatus struct {
	cbor.StructAsArray
	ForkDigest     [4]byte
	FinalizedRoot  ledger.Root
	FinalizedEpoch uint64
	HeadRoot       ledger.Root
	HeadSlot       uint64
}

func (s PeerStatus) String() string {
	return fmt.Sprintf(
		"head=%d/%s finalized_epoch=%d",
		s.HeadSlot,
		s.HeadRoot.String(),
		s.FinalizedEpoch,
	)
}

// FinalizedCheckpoint returns the checkpoint the peer claims to have finalized
func (s PeerStatus) FinalizedCheckpoint() ledger.Checkpoint {
	return ledger.Checkpoint{
		Epoch: s.FinalizedEpoch,
		Root:  s.FinalizedRoot,
	}
}

// DisconnectReason explains why a peer is being disconnected
type DisconnectReason uint64

const (
	DisconnectReasonShutdown          DisconnectReason = 1
	DisconnectReasonIrrelevantNetwork DisconnectReason = 2
	DisconnectReasonRemoteFault       DisconnectReason = 3
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectReasonShutdown:
		return "Shutdown"
	case DisconnectReasonIrrelevantNetwork:
		return "IrrelevantNetwork"
	case DisconnectReasonRemoteFault:
		return "RemoteFault"
	default:
		return fmt.Sprintf("Unknown(%d)", uint64(r))
	}
}
