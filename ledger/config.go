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

package ledger

import (
	"math"
	"time"
)

// Milestone identifies a fork of the beacon chain with its own block encoding rules
type Milestone uint8

const (
	MilestonePhase0 Milestone = 0
	MilestoneAltair Milestone = 1
)

func (m Milestone) String() string {
	switch m {
	case MilestonePhase0:
		return "phase0"
	case MilestoneAltair:
		return "altair"
	default:
		return "unknown"
	}
}

// FarFutureEpoch marks a milestone that is not scheduled
const FarFutureEpoch uint64 = math.MaxUint64

// ChainConfig holds the chain parameters needed to map slots to epochs and milestones
type ChainConfig struct {
	Name            string
	SlotsPerEpoch   uint64
	SecondsPerSlot  uint64
	GenesisTime     time.Time
	AltairForkEpoch uint64
}

var (
	MainnetChainConfig = ChainConfig{
		Name:            "mainnet",
		SlotsPerEpoch:   32,
		SecondsPerSlot:  12,
		GenesisTime:     time.Unix(1606824023, 0),
		AltairForkEpoch: 74240,
	}
	MinimalChainConfig = ChainConfig{
		Name:            "minimal",
		SlotsPerEpoch:   8,
		SecondsPerSlot:  6,
		AltairForkEpoch: FarFutureEpoch,
	}
)

func (c ChainConfig) EpochStartSlot(epoch uint64) uint64 {
	if epoch > math.MaxUint64/c.SlotsPerEpoch {
		return math.MaxUint64
	}
	return epoch * c.SlotsPerEpoch
}

func (c ChainConfig) EpochAtSlot(slot uint64) uint64 {
	return slot / c.SlotsPerEpoch
}

// MilestoneStartSlot returns the first slot of the given milestone
func (c ChainConfig) MilestoneStartSlot(m Milestone) uint64 {
	switch m {
	case MilestonePhase0:
		return 0
	case MilestoneAltair:
		return c.EpochStartSlot(c.AltairForkEpoch)
	default:
		return math.MaxUint64
	}
}

// MilestoneAtSlot returns the milestone active at the given slot
func (c ChainConfig) MilestoneAtSlot(slot uint64) Milestone {
	if slot >= c.MilestoneStartSlot(MilestoneAltair) {
		return MilestoneAltair
	}
	return MilestonePhase0
}

// SlotAtTime returns the wall-clock slot for the given time
func (c ChainConfig) SlotAtTime(t time.Time) uint64 {
	if c.SecondsPerSlot == 0 || !t.After(c.GenesisTime) {
		return 0
	}
	return uint64(t.Sub(c.GenesisTime).Seconds()) / c.SecondsPerSlot
}
