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

// Package protocol provides the common functionality for request/response protocols
// carried over the muxer
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/gobeacon/cbor"
	"github.com/blinklabs-io/gobeacon/connection"
	"github.com/blinklabs-io/gobeacon/muxer"
)

// Protocol implements the base functionality of a protocol
type Protocol struct {
	config        ProtocolConfig
	doneChan      chan struct{}
	muxerSendChan chan *muxer.Segment
	muxerRecvChan chan *muxer.Segment
	muxerDoneChan <-chan struct{}
	recvBuffer    *bytes.Buffer
	currentState  State
	stateMutex    sync.Mutex
	stateTimer    *time.Timer
	sendMutex     sync.Mutex
	onceStart     sync.Once
	onceStop      sync.Once
}

// ProtocolConfig provides the configuration for Protocol
type ProtocolConfig struct {
	Name                string
	ProtocolId          uint16
	ErrorChan           chan error
	Muxer               *muxer.Muxer
	Logger              *slog.Logger
	Role                ProtocolRole
	MessageHandlerFunc  MessageHandlerFunc
	MessageFromCborFunc MessageFromCborFunc
	StateMap            StateMap
	InitialState        State
}

// ProtocolRole is an enum of the protocol roles
type ProtocolRole uint

// Protocol roles
const (
	ProtocolRoleNone   ProtocolRole = 0
	ProtocolRoleClient ProtocolRole = 1
	ProtocolRoleServer ProtocolRole = 2
)

// ProtocolOptions provides common arguments for all protocols
type ProtocolOptions struct {
	ConnectionId connection.ConnectionId
	Muxer        *muxer.Muxer
	Logger       *slog.Logger
	ErrorChan    chan error
}

// MessageHandlerFunc represents a function that handles an incoming message
type MessageHandlerFunc func(Message) error

// MessageFromCborFunc represents a function that parses a message from CBOR
type MessageFromCborFunc func(uint, []byte) (Message, error)

// New returns a new Protocol object
func New(config ProtocolConfig) *Protocol {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Protocol{
		config:       config,
		doneChan:     make(chan struct{}),
		recvBuffer:   bytes.NewBuffer(nil),
		currentState: config.InitialState,
	}
	return p
}

// Start initializes the mini-protocol
func (p *Protocol) Start() {
	p.onceStart.Do(func() {
		muxerRole := muxer.ProtocolRoleInitiator
		if p.config.Role == ProtocolRoleServer {
			muxerRole = muxer.ProtocolRoleResponder
		}
		p.muxerSendChan, p.muxerRecvChan, p.muxerDoneChan = p.config.Muxer.RegisterProtocol(
			p.config.ProtocolId,
			muxerRole,
		)
		go p.recvLoop()
	})
}

// Stop shuts down the mini-protocol
func (p *Protocol) Stop() {
	p.onceStop.Do(func() {
		p.stateMutex.Lock()
		if p.stateTimer != nil {
			p.stateTimer.Stop()
		}
		p.stateMutex.Unlock()
		close(p.doneChan)
	})
}

// Logger returns the protocol logger
func (p *Protocol) Logger() *slog.Logger {
	return p.config.Logger
}

// Role returns the protocol role
func (p *Protocol) Role() ProtocolRole {
	return p.config.Role
}

// DoneChan returns the channel used to signal protocol shutdown
func (p *Protocol) DoneChan() <-chan struct{} {
	return p.doneChan
}

// CurrentState returns the current protocol state
func (p *Protocol) CurrentState() State {
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	return p.currentState
}

// IsDone checks if the protocol is shut down or in a terminal state
func (p *Protocol) IsDone() bool {
	select {
	case <-p.doneChan:
		return true
	default:
	}
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	if entry, ok := p.config.StateMap[p.currentState]; ok {
		if entry.Agency == AgencyNone {
			return true
		}
	}
	return false
}

// isInTerminalOrIdleState reports whether the protocol can be stopped without
// interrupting an exchange
func (p *Protocol) isInTerminalOrIdleState() bool {
	if p.IsDone() {
		return true
	}
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	return p.currentState == p.config.InitialState
}

// SendMessage validates the state transition for the message and sends it to the peer
func (p *Protocol) SendMessage(msg Message) error {
	select {
	case <-p.doneChan:
		return ErrProtocolShuttingDown
	default:
	}
	// Only one message may be in flight at once so that state transitions and
	// segment order match
	p.sendMutex.Lock()
	defer p.sendMutex.Unlock()
	if p.muxerSendChan == nil {
		return ErrProtocolNotStarted
	}
	data, err := cbor.Encode(msg)
	if err != nil {
		return fmt.Errorf("%s: encode error: %w", p.config.Name, err)
	}
	msg.SetCbor(data)
	ownAgency := AgencyClient
	if p.config.Role == ProtocolRoleServer {
		ownAgency = AgencyServer
	}
	if err := p.transition(msg, ownAgency); err != nil {
		return err
	}
	isResponse := p.config.Role == ProtocolRoleServer
	for len(data) > 0 {
		chunkLen := min(len(data), muxer.SegmentMaxPayloadLength)
		segment := muxer.NewSegment(p.config.ProtocolId, data[:chunkLen], isResponse)
		select {
		case <-p.doneChan:
			return ErrProtocolShuttingDown
		case <-p.muxerDoneChan:
			return ErrProtocolShuttingDown
		case p.muxerSendChan <- segment:
		}
		data = data[chunkLen:]
	}
	return nil
}

// transition moves the protocol to the next state for the message. The party
// sending the message must hold agency in the current state
func (p *Protocol) transition(msg Message, agency Agency) error {
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	entry, ok := p.config.StateMap[p.currentState]
	if !ok {
		return fmt.Errorf(
			"%s: protocol is in unknown state %s",
			p.config.Name,
			p.currentState,
		)
	}
	if entry.Agency != agency {
		if agency == p.ownAgency() {
			return fmt.Errorf(
				"%w: %s: message type %d in state %s",
				ErrProtocolViolationAgency,
				p.config.Name,
				msg.Type(),
				p.currentState,
			)
		}
		return fmt.Errorf(
			"%w: %s: unexpected message type %d in state %s",
			ErrProtocolViolationInvalidMessage,
			p.config.Name,
			msg.Type(),
			p.currentState,
		)
	}
	for _, t := range entry.Transitions {
		if t.MsgType != msg.Type() {
			continue
		}
		if t.MatchFunc != nil && !t.MatchFunc(msg) {
			continue
		}
		p.setState(t.NewState)
		return nil
	}
	return fmt.Errorf(
		"%w: %s: message type %d not allowed in state %s",
		ErrProtocolViolationInvalidMessage,
		p.config.Name,
		msg.Type(),
		p.currentState,
	)
}

func (p *Protocol) ownAgency() Agency {
	if p.config.Role == ProtocolRoleServer {
		return AgencyServer
	}
	return AgencyClient
}

// setState must be called with stateMutex held
func (p *Protocol) setState(state State) {
	p.currentState = state
	if p.stateTimer != nil {
		p.stateTimer.Stop()
		p.stateTimer = nil
	}
	entry := p.config.StateMap[state]
	// Only the party waiting on the peer needs a timer
	if entry.Timeout <= 0 || entry.Agency == AgencyNone ||
		entry.Agency == p.ownAgency() {
		return
	}
	p.stateTimer = time.AfterFunc(entry.Timeout, func() {
		p.SendError(
			fmt.Errorf(
				"%w: %s: %s",
				ErrProtocolViolationTimeout,
				p.config.Name,
				state,
			),
		)
	})
}

// SendError reports an error on the connection error channel and stops the protocol
func (p *Protocol) SendError(err error) {
	select {
	case <-p.doneChan:
		return
	default:
	}
	p.config.Logger.Debug(
		"protocol error",
		"component", "network",
		"protocol", p.config.Name,
		"error", err,
	)
	if p.config.ErrorChan != nil {
		select {
		case p.config.ErrorChan <- err:
		default:
		}
	}
	p.Stop()
}

func (p *Protocol) recvLoop() {
	for {
		select {
		case <-p.doneChan:
			return
		case <-p.muxerDoneChan:
			p.Stop()
			return
		case segment := <-p.muxerRecvChan:
			p.recvBuffer.Write(segment.Payload)
		}
		if err := p.processRecvBuffer(); err != nil {
			p.SendError(err)
			return
		}
	}
}

// processRecvBuffer handles every complete message in the receive buffer. Partial
// messages are left in the buffer until more data arrives
func (p *Protocol) processRecvBuffer() error {
	for p.recvBuffer.Len() > 0 {
		data := p.recvBuffer.Bytes()
		// Decode message into generic list until we can determine what type of message it is.
		// This also lets us determine how many bytes the message is
		var tmpMsg []cbor.RawMessage
		numBytesRead, err := cbor.Decode(data, &tmpMsg)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				// This is probably a multi-part message, so we wait until we get more of the message
				return nil
			}
			return fmt.Errorf(
				"%w: %s: decode error: %w",
				ErrProtocolViolationInvalidMessage,
				p.config.Name,
				err,
			)
		}
		msgData := data[:numBytesRead]
		msgType, err := cbor.DecodeIdFromList(msgData)
		if err != nil {
			return fmt.Errorf(
				"%w: %s: decode error: %w",
				ErrProtocolViolationInvalidMessage,
				p.config.Name,
				err,
			)
		}
		msg, err := p.config.MessageFromCborFunc(uint(msgType), msgData)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProtocolViolationInvalidMessage, err)
		}
		if msg == nil {
			return fmt.Errorf(
				"%w: %s: received unknown message type: %d",
				ErrProtocolViolationInvalidMessage,
				p.config.Name,
				msgType,
			)
		}
		peerAgency := AgencyServer
		if p.config.Role == ProtocolRoleServer {
			peerAgency = AgencyClient
		}
		if err := p.transition(msg, peerAgency); err != nil {
			return err
		}
		// Drop the message from the buffer before handling it, since the handler may block
		p.recvBuffer.Next(numBytesRead)
		if err := p.config.MessageHandlerFunc(msg); err != nil {
			return err
		}
	}
	return nil
}
