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

package status

import (
	"fmt"
	"sync"

	"github.com/blinklabs-io/gobeacon/protocol"
	"github.com/blinklabs-io/gobeacon/protocol/common"
)

// Client implements the status protocol client, which requests the status of the remote peer
type Client struct {
	*protocol.Protocol
	config          *Config
	callbackContext CallbackContext
	busyMutex       sync.Mutex
	statusChan      chan common.PeerStatus
	onceStart       sync.Once
	onceStop        sync.Once
}

func NewClient(protoOptions protocol.ProtocolOptions, cfg *Config) *Client {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	c := &Client{
		config:     cfg,
		statusChan: make(chan common.PeerStatus),
	}
	c.callbackContext = CallbackContext{
		Client:       c,
		ConnectionId: protoOptions.ConnectionId,
	}
	// Update state map with timeout
	stateMap := StateMap.Copy()
	if entry, ok := stateMap[StateBusy]; ok {
		entry.Timeout = c.config.StatusTimeout
		stateMap[StateBusy] = entry
	}
	// Configure underlying Protocol
	protoConfig := protocol.ProtocolConfig{
		Name:                ProtocolName,
		ProtocolId:          ProtocolId,
		Muxer:               protoOptions.Muxer,
		Logger:              protoOptions.Logger,
		ErrorChan:           protoOptions.ErrorChan,
		Role:                protocol.ProtocolRoleClient,
		MessageHandlerFunc:  c.messageHandler,
		MessageFromCborFunc: NewMsgFromCbor,
		StateMap:            stateMap,
		InitialState:        StateIdle,
	}
	c.Protocol = protocol.New(protoConfig)
	return c
}

func (c *Client) Start() {
	c.onceStart.Do(func() {
		c.Protocol.Logger().
			Debug("starting client protocol",
				"component", "network",
				"protocol", ProtocolName,
				"connection_id", c.callbackContext.ConnectionId.String(),
			)
		c.Protocol.Start()
	})
}

// Stop sends a Done message if no exchange is in progress and shuts down the protocol
func (c *Client) Stop() error {
	var err error
	c.onceStop.Do(func() {
		c.Protocol.Logger().
			Debug("stopping client protocol",
				"component", "network",
				"protocol", ProtocolName,
				"connection_id", c.callbackContext.ConnectionId.String(),
			)
		c.busyMutex.Lock()
		defer c.busyMutex.Unlock()
		if !c.IsDone() {
			err = c.SendMessage(NewMsgDone())
		}
		c.Protocol.Stop()
	})
	return err
}

// GetStatus sends the local status to the peer and returns the status of the peer
func (c *Client) GetStatus() (common.PeerStatus, error) {
	c.Protocol.Logger().
		Debug("calling GetStatus()",
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
			"connection_id", c.callbackContext.ConnectionId.String(),
		)
	c.busyMutex.Lock()
	defer c.busyMutex.Unlock()
	var localStatus common.PeerStatus
	if c.config.LocalStatusFunc != nil {
		var err error
		localStatus, err = c.config.LocalStatusFunc(c.callbackContext)
		if err != nil {
			return common.PeerStatus{}, err
		}
	}
	if err := c.SendMessage(NewMsgStatusRequest(localStatus)); err != nil {
		return common.PeerStatus{}, err
	}
	select {
	case <-c.DoneChan():
		return common.PeerStatus{}, protocol.ErrProtocolShuttingDown
	case status := <-c.statusChan:
		return status, nil
	}
}

func (c *Client) messageHandler(msg protocol.Message) error {
	var err error
	switch msg.Type() {
	case MessageTypeStatusResponse:
		err = c.handleStatusResponse(msg)
	default:
		err = fmt.Errorf(
			"%s: received unexpected message type %d",
			ProtocolName,
			msg.Type(),
		)
	}
	return err
}

func (c *Client) handleStatusResponse(msgGeneric protocol.Message) error {
	msg := msgGeneric.(*MsgStatusResponse)
	c.Protocol.Logger().
		Debug("received status",
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
			"connection_id", c.callbackContext.ConnectionId.String(),
			"status", msg.Status.String(),
		)
	if c.config.RemoteStatusFunc != nil {
		if err := c.config.RemoteStatusFunc(c.callbackContext, msg.Status); err != nil {
			return err
		}
	}
	select {
	case <-c.DoneChan():
		return protocol.ErrProtocolShuttingDown
	case c.statusChan <- msg.Status:
	}
	return nil
}
