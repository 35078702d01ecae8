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

// Package muxer multiplexes the segments of several protocols over a single connection
package muxer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
)

// ProtocolRole selects which half of a protocol a registration handles
type ProtocolRole uint8

const (
	ProtocolRoleNone ProtocolRole = iota
	// The initiator sends requests and receives responses
	ProtocolRoleInitiator
	// The responder receives requests and sends responses
	ProtocolRoleResponder
)

var ErrMuxerShuttingDown = errors.New("muxer is shutting down")

type protocolKey struct {
	protocolId uint16
	role       ProtocolRole
}

// Muxer wraps a net.Conn and routes segments to and from registered protocols
type Muxer struct {
	conn                   net.Conn
	logger                 *slog.Logger
	sendMutex              sync.Mutex
	startChan              chan struct{}
	doneChan               chan struct{}
	errorChan              chan error
	onceStart              sync.Once
	onceStop               sync.Once
	protocolReceivers      map[protocolKey]chan *Segment
	protocolReceiversMutex sync.Mutex
}

// New returns a new Muxer for the provided connection. The muxer does not read
// from the connection until Start is called
func New(conn net.Conn, logger *slog.Logger) *Muxer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m := &Muxer{
		conn:              conn,
		logger:            logger,
		startChan:         make(chan struct{}),
		doneChan:          make(chan struct{}),
		errorChan:         make(chan error, 10),
		protocolReceivers: make(map[protocolKey]chan *Segment),
	}
	go m.readLoop()
	return m
}

// ErrorChan returns the channel used to report fatal muxer errors
func (m *Muxer) ErrorChan() <-chan error {
	return m.errorChan
}

// DoneChan returns a channel that is closed when the muxer shuts down
func (m *Muxer) DoneChan() <-chan struct{} {
	return m.doneChan
}

// Start begins reading segments from the connection
func (m *Muxer) Start() {
	m.onceStart.Do(func() {
		close(m.startChan)
	})
}

// Stop shuts down the muxer. The caller is responsible for closing the underlying
// connection to unblock any pending read
func (m *Muxer) Stop() {
	m.onceStop.Do(func() {
		close(m.doneChan)
	})
}

func (m *Muxer) sendError(err error) {
	// Immediately return if we're already shutting down
	select {
	case <-m.doneChan:
		return
	default:
	}
	m.logger.Debug(
		"muxer error",
		"component", "network",
		"error", err,
	)
	select {
	case m.errorChan <- err:
	default:
	}
	// Stop the muxer on any error
	m.Stop()
}

// RegisterProtocol registers a protocol and role with the muxer. It returns a channel
// for sending segments, a channel for receiving segments and the muxer done channel
func (m *Muxer) RegisterProtocol(
	protocolId uint16,
	role ProtocolRole,
) (chan *Segment, chan *Segment, <-chan struct{}) {
	senderChan := make(chan *Segment, 10)
	receiverChan := make(chan *Segment, 10)
	m.protocolReceiversMutex.Lock()
	m.protocolReceivers[protocolKey{protocolId: protocolId, role: role}] = receiverChan
	m.protocolReceiversMutex.Unlock()
	// Start Goroutine to handle outbound messages
	go func() {
		for {
			select {
			case <-m.doneChan:
				return
			case msg := <-senderChan:
				if err := m.Send(msg); err != nil {
					m.sendError(err)
					return
				}
			}
		}
	}()
	return senderChan, receiverChan, m.doneChan
}

// Send writes a segment to the connection
func (m *Muxer) Send(msg *Segment) error {
	// We use a mutex to make sure only one protocol can send at a time
	m.sendMutex.Lock()
	defer m.sendMutex.Unlock()
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.BigEndian, msg.SegmentHeader); err != nil {
		return err
	}
	buf.Write(msg.Payload)
	if _, err := m.conn.Write(buf.Bytes()); err != nil {
		return err
	}
	return nil
}

func (m *Muxer) readLoop() {
	select {
	case <-m.doneChan:
		return
	case <-m.startChan:
	}
	for {
		// Break out of read loop if we're shutting down
		select {
		case <-m.doneChan:
			return
		default:
		}
		header := SegmentHeader{}
		if err := binary.Read(m.conn, binary.BigEndian, &header); err != nil {
			m.sendError(err)
			return
		}
		msg := &Segment{
			SegmentHeader: header,
			Payload:       make([]byte, header.PayloadLength),
		}
		// We use ReadFull because it guarantees to read the expected number of bytes or
		// return an error
		if _, err := io.ReadFull(m.conn, msg.Payload); err != nil {
			m.sendError(err)
			return
		}
		// Responses go to the initiator side of a protocol and requests to the responder side
		role := ProtocolRoleResponder
		if msg.IsResponse() {
			role = ProtocolRoleInitiator
		}
		m.protocolReceiversMutex.Lock()
		recvChan := m.protocolReceivers[protocolKey{protocolId: msg.GetProtocolId(), role: role}]
		m.protocolReceiversMutex.Unlock()
		if recvChan == nil {
			m.sendError(
				fmt.Errorf(
					"received message for unknown protocol ID %d",
					msg.GetProtocolId(),
				),
			)
			return
		}
		select {
		case <-m.doneChan:
			return
		case recvChan <- msg:
		}
	}
}
