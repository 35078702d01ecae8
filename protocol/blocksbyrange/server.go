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

package blocksbyrange

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blinklabs-io/gobeacon/ledger"
	"github.com/blinklabs-io/gobeacon/protocol"
)

var errResponseFinished = errors.New("blocks-by-range: response already finished")

type Server struct {
	*protocol.Protocol
	config          *Config
	version         Version
	callbackContext CallbackContext
	ctx             context.Context
	cancel          context.CancelFunc
	responseMutex   sync.Mutex
	responseOpen    bool
	onceStart       sync.Once
}

func NewServer(protoOptions protocol.ProtocolOptions, version Version, cfg *Config) *Server {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	s := &Server{
		config:  cfg,
		version: version,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.callbackContext = CallbackContext{
		Server:       s,
		Version:      version,
		ConnectionId: protoOptions.ConnectionId,
	}
	protoConfig := protocol.ProtocolConfig{
		Name:                ProtocolName,
		ProtocolId:          version.ProtocolId(),
		Muxer:               protoOptions.Muxer,
		Logger:              protoOptions.Logger,
		ErrorChan:           protoOptions.ErrorChan,
		Role:                protocol.ProtocolRoleServer,
		MessageHandlerFunc:  s.messageHandler,
		MessageFromCborFunc: NewMsgFromCbor,
		StateMap:            StateMap,
		InitialState:        StateIdle,
	}
	s.Protocol = protocol.New(protoConfig)
	return s
}

// Start begins the blocks-by-range server protocol. Safe to call multiple times
func (s *Server) Start() {
	s.onceStart.Do(func() {
		s.Protocol.Start()
		// Cancel any in-flight request on protocol shutdown
		go func() {
			<-s.DoneChan()
			s.cancel()
		}()
	})
}

// Version returns the method version served
func (s *Server) Version() Version {
	return s.version
}

// Context returns a context that is cancelled when the protocol shuts down
func (s *Server) Context() context.Context {
	return s.ctx
}

// WriteBlock sends a block as part of the current response
func (s *Server) WriteBlock(blk *ledger.Block) error {
	s.responseMutex.Lock()
	defer s.responseMutex.Unlock()
	if !s.responseOpen {
		return errResponseFinished
	}
	msg, err := NewMsgBlock(s.config.ChainConfig.MilestoneAtSlot(blk.Slot), blk)
	if err != nil {
		return err
	}
	return s.SendMessage(msg)
}

// Complete ends the current response with a success terminator
func (s *Server) Complete() error {
	s.responseMutex.Lock()
	defer s.responseMutex.Unlock()
	if !s.responseOpen {
		return errResponseFinished
	}
	s.responseOpen = false
	return s.SendMessage(NewMsgBatchDone())
}

// Fail ends the current response with an error terminator
func (s *Server) Fail(rpcErr *RpcError) error {
	s.responseMutex.Lock()
	defer s.responseMutex.Unlock()
	if !s.responseOpen {
		return errResponseFinished
	}
	s.responseOpen = false
	return s.SendMessage(NewMsgError(rpcErr))
}

func (s *Server) messageHandler(msg protocol.Message) error {
	var err error
	switch msg.Type() {
	case MessageTypeRequestRange:
		err = s.handleRequestRange(msg)
	case MessageTypeClientDone:
		err = s.handleClientDone()
	default:
		err = fmt.Errorf(
			"%s: received unexpected message type %d",
			ProtocolName,
			msg.Type(),
		)
	}
	return err
}

func (s *Server) handleRequestRange(msg protocol.Message) error {
	req := msg.(*MsgRequestRange).Request()
	s.Protocol.Logger().
		Debug(
			fmt.Sprintf("received RequestRange(%s)", req.String()),
			"component", "network",
			"protocol", ProtocolName,
			"role", "server",
			"version", s.version.String(),
			"connection_id", s.callbackContext.ConnectionId.String(),
		)
	s.responseMutex.Lock()
	s.responseOpen = true
	s.responseMutex.Unlock()
	if s.config.RequestRangeFunc == nil {
		return s.Fail(NewServerError("no range request handler configured"))
	}
	// Serve the request without holding up the receive loop
	go func() {
		err := s.config.RequestRangeFunc(s.callbackContext, req)
		if err == nil {
			return
		}
		s.Protocol.Logger().
			Debug("range request failed",
				"component", "network",
				"protocol", ProtocolName,
				"role", "server",
				"connection_id", s.callbackContext.ConnectionId.String(),
				"error", err,
			)
		// Make sure the client always sees a terminator
		var rpcErr *RpcError
		if !errors.As(err, &rpcErr) {
			rpcErr = NewServerError(err.Error())
		}
		_ = s.Fail(rpcErr)
	}()
	return nil
}

func (s *Server) handleClientDone() error {
	s.Protocol.Logger().
		Debug("client done",
			"component", "network",
			"protocol", ProtocolName,
			"role", "server",
			"connection_id", s.callbackContext.ConnectionId.String(),
		)
	return nil
}
