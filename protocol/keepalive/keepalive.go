// Copyright 2024 Blink Labs Software
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

// Package keepalive implements the KeepAlive protocol, which pings the remote peer
// periodically to detect dead connections. Each ping and response carries the
// metadata sequence number of the sender
package keepalive

import (
	"time"

	"github.com/blinklabs-io/gobeacon/connection"
	"github.com/blinklabs-io/gobeacon/protocol"
)

const (
	ProtocolName        = "keep-alive"
	ProtocolId   uint16 = 4
)

const (
	DefaultKeepAlivePeriod  = 60 * time.Second
	DefaultKeepAliveTimeout = 10 * time.Second
)

var (
	StateClient = protocol.NewState(1, "Client")
	StateServer = protocol.NewState(2, "Server")
	StateDone   = protocol.NewState(3, "Done")
)

// StateMap defines the valid state transitions for the keep-alive protocol
var StateMap = protocol.StateMap{
	StateClient: protocol.StateMapEntry{
		Agency: protocol.AgencyClient,
		Transitions: []protocol.StateTransition{
			{
				MsgType:  MessageTypeKeepAlive,
				NewState: StateServer,
			},
			{
				MsgType:  MessageTypeDone,
				NewState: StateDone,
			},
		},
	},
	StateServer: protocol.StateMapEntry{
		Agency:  protocol.AgencyServer,
		Timeout: DefaultKeepAliveTimeout,
		Transitions: []protocol.StateTransition{
			{
				MsgType:  MessageTypeKeepAliveResponse,
				NewState: StateClient,
			},
		},
	},
	StateDone: protocol.StateMapEntry{
		Agency: protocol.AgencyNone,
	},
}

// KeepAlive provides both client and server implementations of the keep-alive protocol
type KeepAlive struct {
	Client *Client
	Server *Server
}

type Config struct {
	KeepAliveFunc         KeepAliveFunc
	KeepAliveResponseFunc KeepAliveResponseFunc
	SeqNumberFunc         SeqNumberFunc
	Timeout               time.Duration
	Period                time.Duration
}

// CallbackContext provides context information to keep-alive protocol callbacks
type CallbackContext struct {
	ConnectionId connection.ConnectionId
	Client       *Client
	Server       *Server
}

// KeepAliveFunc is called by the server with the sequence number of each ping
type KeepAliveFunc func(CallbackContext, uint64) error

// KeepAliveResponseFunc is called by the client with the sequence number of each response
type KeepAliveResponseFunc func(CallbackContext, uint64) error

// SeqNumberFunc returns the local metadata sequence number
type SeqNumberFunc func() uint64

func New(protoOptions protocol.ProtocolOptions, cfg *Config) *KeepAlive {
	k := &KeepAlive{
		Client: NewClient(protoOptions, cfg),
		Server: NewServer(protoOptions, cfg),
	}
	return k
}

type KeepAliveOptionFunc func(*Config)

func NewConfig(options ...KeepAliveOptionFunc) Config {
	c := Config{
		Period:  DefaultKeepAlivePeriod,
		Timeout: DefaultKeepAliveTimeout,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

func WithKeepAliveFunc(keepAliveFunc KeepAliveFunc) KeepAliveOptionFunc {
	return func(c *Config) {
		c.KeepAliveFunc = keepAliveFunc
	}
}

func WithKeepAliveResponseFunc(
	keepAliveResponseFunc KeepAliveResponseFunc,
) KeepAliveOptionFunc {
	return func(c *Config) {
		c.KeepAliveResponseFunc = keepAliveResponseFunc
	}
}

func WithSeqNumberFunc(seqNumberFunc SeqNumberFunc) KeepAliveOptionFunc {
	return func(c *Config) {
		c.SeqNumberFunc = seqNumberFunc
	}
}

// WithTimeout sets how long the client waits for a response before failing the connection
func WithTimeout(timeout time.Duration) KeepAliveOptionFunc {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithPeriod sets the interval between a response and the next ping
func WithPeriod(period time.Duration) KeepAliveOptionFunc {
	return func(c *Config) {
		c.Period = period
	}
}

func (c *Config) seqNumber() uint64 {
	if c.SeqNumberFunc == nil {
		return 0
	}
	return c.SeqNumberFunc()
}
