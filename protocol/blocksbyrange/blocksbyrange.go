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

// Package blocksbyrange implements the BlocksByRange protocol, which streams the
// canonical blocks for a range of slots from a server to a client
package blocksbyrange

import (
	"time"

	"github.com/blinklabs-io/gobeacon/connection"
	"github.com/blinklabs-io/gobeacon/ledger"
	"github.com/blinklabs-io/gobeacon/protocol"
)

const (
	ProtocolName = "blocks-by-range"

	ProtocolIdV1 uint16 = 2
	ProtocolIdV2 uint16 = 3
)

const (
	// DefaultBatchTimeout is the maximum time the client waits for each response chunk
	DefaultBatchTimeout = 10 * time.Second
	// DefaultMaxBlockSize is the largest decompressed block accepted in a response chunk
	DefaultMaxBlockSize = 10 * 1024 * 1024
)

// Version selects the method version of the protocol. Each version uses its own protocol ID
type Version uint8

const (
	Version1 Version = 1
	Version2 Version = 2
)

func (v Version) ProtocolId() uint16 {
	if v == Version1 {
		return ProtocolIdV1
	}
	return ProtocolIdV2
}

// MaxMilestone returns the newest milestone whose blocks can be carried by this version
func (v Version) MaxMilestone() ledger.Milestone {
	if v == Version1 {
		return ledger.MilestonePhase0
	}
	return ledger.MilestoneAltair
}

func (v Version) String() string {
	if v == Version1 {
		return "v1"
	}
	return "v2"
}

var (
	StateIdle = protocol.NewState(1, "Idle")
	StateBusy = protocol.NewState(2, "Busy")
	StateDone = protocol.NewState(3, "Done")
)

// StateMap defines the valid state transitions for the blocks-by-range protocol
var StateMap = protocol.StateMap{
	StateIdle: protocol.StateMapEntry{
		Agency: protocol.AgencyClient,
		Transitions: []protocol.StateTransition{
			{
				MsgType:  MessageTypeRequestRange,
				NewState: StateBusy,
			},
			{
				MsgType:  MessageTypeClientDone,
				NewState: StateDone,
			},
		},
	},
	StateBusy: protocol.StateMapEntry{
		Agency:  protocol.AgencyServer,
		Timeout: DefaultBatchTimeout,
		Transitions: []protocol.StateTransition{
			{
				MsgType:  MessageTypeBlock,
				NewState: StateBusy,
			},
			{
				MsgType:  MessageTypeBatchDone,
				NewState: StateIdle,
			},
			{
				MsgType:  MessageTypeError,
				NewState: StateIdle,
			},
		},
	},
	StateDone: protocol.StateMapEntry{
		Agency: protocol.AgencyNone,
	},
}

// BlocksByRange provides both client and server implementations of one version of the protocol
type BlocksByRange struct {
	Client *Client
	Server *Server
}

type Config struct {
	RequestRangeFunc RequestRangeFunc
	BatchTimeout     time.Duration
	ChainConfig      ledger.ChainConfig
	MaxBlockSize     int
}

// CallbackContext provides context information to blocks-by-range callbacks
type CallbackContext struct {
	ConnectionId connection.ConnectionId
	Version      Version
	Client       *Client
	Server       *Server
}

// RequestRangeFunc serves a range request. It must finish the response with either
// Complete or Fail on the provided server. The context is cancelled when the protocol
// shuts down
type RequestRangeFunc func(CallbackContext, RangeRequest) error

func New(protoOptions protocol.ProtocolOptions, version Version, cfg *Config) *BlocksByRange {
	b := &BlocksByRange{
		Client: NewClient(protoOptions, version, cfg),
		Server: NewServer(protoOptions, version, cfg),
	}
	return b
}

type BlocksByRangeOptionFunc func(*Config)

func NewConfig(options ...BlocksByRangeOptionFunc) Config {
	c := Config{
		BatchTimeout: DefaultBatchTimeout,
		ChainConfig:  ledger.MainnetChainConfig,
		MaxBlockSize: DefaultMaxBlockSize,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

func WithRequestRangeFunc(requestRangeFunc RequestRangeFunc) BlocksByRangeOptionFunc {
	return func(c *Config) {
		c.RequestRangeFunc = requestRangeFunc
	}
}

func WithBatchTimeout(timeout time.Duration) BlocksByRangeOptionFunc {
	return func(c *Config) {
		c.BatchTimeout = timeout
	}
}

// WithChainConfig sets the chain parameters used to tag and check block milestones
func WithChainConfig(chainConfig ledger.ChainConfig) BlocksByRangeOptionFunc {
	return func(c *Config) {
		c.ChainConfig = chainConfig
	}
}

// WithMaxBlockSize sets the largest decompressed block the client accepts
func WithMaxBlockSize(size int) BlocksByRangeOptionFunc {
	return func(c *Config) {
		c.MaxBlockSize = size
	}
}
