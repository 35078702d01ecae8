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

// Package status implements the Status protocol, which exchanges the chain status of
// both peers so that each side knows how far the other has progressed
package status

import (
	"time"

	"github.com/blinklabs-io/gobeacon/connection"
	"github.com/blinklabs-io/gobeacon/protocol"
	"github.com/blinklabs-io/gobeacon/protocol/common"
)

const (
	ProtocolName        = "status"
	ProtocolId   uint16 = 1
)

const (
	// DefaultStatusTimeout is the maximum time the client waits for a status response
	DefaultStatusTimeout = 10 * time.Second
)

var (
	StateIdle = protocol.NewState(1, "Idle")
	StateBusy = protocol.NewState(2, "Busy")
	StateDone = protocol.NewState(3, "Done")
)

// StateMap defines the valid state transitions for the status protocol
var StateMap = protocol.StateMap{
	StateIdle: protocol.StateMapEntry{
		Agency: protocol.AgencyClient,
		Transitions: []protocol.StateTransition{
			{
				MsgType:  MessageTypeStatusRequest,
				NewState: StateBusy,
			},
			{
				MsgType:  MessageTypeDone,
				NewState: StateDone,
			},
		},
	},
	StateBusy: protocol.StateMapEntry{
		Agency:  protocol.AgencyServer,
		Timeout: DefaultStatusTimeout,
		Transitions: []protocol.StateTransition{
			{
				MsgType:  MessageTypeStatusResponse,
				NewState: StateIdle,
			},
		},
	},
	StateDone: protocol.StateMapEntry{
		Agency: protocol.AgencyNone,
	},
}

// Status provides both client and server implementations of the status protocol
type Status struct {
	Client *Client
	Server *Server
}

type Config struct {
	LocalStatusFunc  LocalStatusFunc
	RemoteStatusFunc RemoteStatusFunc
	StatusTimeout    time.Duration
}

// CallbackContext provides context information to status protocol callbacks
type CallbackContext struct {
	ConnectionId connection.ConnectionId
	Client       *Client
	Server       *Server
}

// LocalStatusFunc returns the status of the local node
type LocalStatusFunc func(CallbackContext) (common.PeerStatus, error)

// RemoteStatusFunc is called with every status received from the remote peer
type RemoteStatusFunc func(CallbackContext, common.PeerStatus) error

func New(protoOptions protocol.ProtocolOptions, cfg *Config) *Status {
	s := &Status{
		Client: NewClient(protoOptions, cfg),
		Server: NewServer(protoOptions, cfg),
	}
	return s
}

type StatusOptionFunc func(*Config)

func NewConfig(options ...StatusOptionFunc) Config {
	c := Config{
		StatusTimeout: DefaultStatusTimeout,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

func WithLocalStatusFunc(localStatusFunc LocalStatusFunc) StatusOptionFunc {
	return func(c *Config) {
		c.LocalStatusFunc = localStatusFunc
	}
}

func WithRemoteStatusFunc(remoteStatusFunc RemoteStatusFunc) StatusOptionFunc {
	return func(c *Config) {
		c.RemoteStatusFunc = remoteStatusFunc
	}
}

func WithStatusTimeout(timeout time.Duration) StatusOptionFunc {
	return func(c *Config) {
		c.StatusTimeout = timeout
	}
}
