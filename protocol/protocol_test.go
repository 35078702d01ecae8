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

package protocol

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/blinklabs-io/gobeacon/cbor"
	"github.com/blinklabs-io/gobeacon/muxer"
	"go.uber.org/goleak"
)

func TestIsDone(t *testing.T) {
	stateIdle := NewState(1, "Idle")
	stateDone := NewState(2, "Done")
	stateWorking := NewState(3, "Working")

	stateMap := StateMap{
		stateIdle: StateMapEntry{
			Agency: AgencyClient,
		},
		stateDone: StateMapEntry{
			Agency: AgencyNone,
		},
		stateWorking: StateMapEntry{
			Agency: AgencyServer,
		},
	}

	t.Run("returns false when protocol is active and in working state", func(t *testing.T) {
		doneChan := make(chan struct{})
		p := &Protocol{
			doneChan:     doneChan,
			currentState: stateWorking,
			config: ProtocolConfig{
				InitialState: stateIdle,
				StateMap:     stateMap,
			},
		}

		if p.IsDone() {
			t.Error("IsDone() should return false when in a non-terminal working state")
		}
	})

	t.Run("returns false when in initial state (for client Stop behavior)", func(t *testing.T) {
		doneChan := make(chan struct{})
		p := &Protocol{
			doneChan:     doneChan,
			currentState: stateIdle,
			config: ProtocolConfig{
				InitialState: stateIdle,
				StateMap:     stateMap,
			},
		}

		// IsDone should return false for initial state - client Stop() should still send Done
		if p.IsDone() {
			t.Error("IsDone() should return false when in initial state (client needs to send Done)")
		}
	})

	t.Run("returns true when done channel is closed", func(t *testing.T) {
		doneChan := make(chan struct{})
		p := &Protocol{
			doneChan:     doneChan,
			currentState: stateWorking,
			config: ProtocolConfig{
				InitialState: stateIdle,
				StateMap:     stateMap,
			},
		}

		close(doneChan)

		if !p.IsDone() {
			t.Error("IsDone() should return true when doneChan is closed")
		}
	})

	t.Run("returns true when in AgencyNone state (Done state)", func(t *testing.T) {
		doneChan := make(chan struct{})
		p := &Protocol{
			doneChan:     doneChan,
			currentState: stateDone,
			config: ProtocolConfig{
				InitialState: stateIdle,
				StateMap:     stateMap,
			},
		}

		if !p.IsDone() {
			t.Error("IsDone() should return true when in AgencyNone (Done) state")
		}
	})

	t.Run("returns true consistently after done channel closed", func(t *testing.T) {
		doneChan := make(chan struct{})
		p := &Protocol{
			doneChan:     doneChan,
			currentState: stateWorking,
			config: ProtocolConfig{
				InitialState: stateIdle,
				StateMap:     stateMap,
			},
		}

		close(doneChan)

		for i := range 3 {
			if !p.IsDone() {
				t.Errorf("IsDone() call %d should return true", i+1)
			}
		}
	})
}

func TestIsInTerminalOrIdleState(t *testing.T) {
	stateIdle := NewState(1, "Idle")
	stateDone := NewState(2, "Done")
	stateWorking := NewState(3, "Working")

	stateMap := StateMap{
		stateIdle: StateMapEntry{
			Agency: AgencyClient,
		},
		stateDone: StateMapEntry{
			Agency: AgencyNone,
		},
		stateWorking: StateMapEntry{
			Agency: AgencyServer,
		},
	}

	t.Run("returns false when protocol is active and in working state", func(t *testing.T) {
		doneChan := make(chan struct{})
		p := &Protocol{
			doneChan:     doneChan,
			currentState: stateWorking,
			config: ProtocolConfig{
				InitialState: stateIdle,
				StateMap:     stateMap,
			},
		}

		if p.isInTerminalOrIdleState() {
			t.Error("isInTerminalOrIdleState() should return false when in a non-terminal working state")
		}
	})

	t.Run("returns true when done channel is closed", func(t *testing.T) {
		doneChan := make(chan struct{})
		p := &Protocol{
			doneChan:     doneChan,
			currentState: stateWorking,
			config: ProtocolConfig{
				InitialState: stateIdle,
				StateMap:     stateMap,
			},
		}

		close(doneChan)

		if !p.isInTerminalOrIdleState() {
			t.Error("isInTerminalOrIdleState() should return true when doneChan is closed")
		}
	})

	t.Run("returns true when in AgencyNone state (Done state)", func(t *testing.T) {
		doneChan := make(chan struct{})
		p := &Protocol{
			doneChan:     doneChan,
			currentState: stateDone,
			config: ProtocolConfig{
				InitialState: stateIdle,
				StateMap:     stateMap,
			},
		}

		if !p.isInTerminalOrIdleState() {
			t.Error("isInTerminalOrIdleState() should return true when in AgencyNone (Done) state")
		}
	})

	t.Run("returns true when in initial state (no messages exchanged)", func(t *testing.T) {
		doneChan := make(chan struct{})
		p := &Protocol{
			doneChan:     doneChan,
			currentState: stateIdle,
			config: ProtocolConfig{
				InitialState: stateIdle,
				StateMap:     stateMap,
			},
		}

		if !p.isInTerminalOrIdleState() {
			t.Error("isInTerminalOrIdleState() should return true when in initial state (no messages exchanged)")
		}
	})
}

const (
	testMsgTypePing = 0
	testMsgTypePong = 1
)

var (
	testStateIdle = NewState(1, "Idle")
	testStateBusy = NewState(2, "Busy")
)

type testMsg struct {
	MessageBase
	Value uint64
}

func newTestMsg(msgType uint8, value uint64) *testMsg {
	return &testMsg{
		MessageBase: MessageBase{MessageType: msgType},
		Value:       value,
	}
}

func testMsgFromCbor(msgType uint, data []byte) (Message, error) {
	if msgType > testMsgTypePong {
		return nil, nil
	}
	ret := &testMsg{}
	if _, err := cbor.Decode(data, ret); err != nil {
		return nil, err
	}
	ret.SetCbor(data)
	return ret, nil
}

func testStateMap(timeout time.Duration) StateMap {
	return StateMap{
		testStateIdle: StateMapEntry{
			Agency: AgencyClient,
			Transitions: []StateTransition{
				{MsgType: testMsgTypePing, NewState: testStateBusy},
			},
		},
		testStateBusy: StateMapEntry{
			Agency:  AgencyServer,
			Timeout: timeout,
			Transitions: []StateTransition{
				{MsgType: testMsgTypePong, NewState: testStateIdle},
			},
		},
	}
}

type testPair struct {
	client    *Protocol
	server    *Protocol
	errorChan chan error
	muxers    []*muxer.Muxer
	conns     []net.Conn
}

func newTestPair(t *testing.T, timeout time.Duration, clientHandler, serverHandler MessageHandlerFunc) *testPair {
	t.Helper()
	connA, connB := net.Pipe()
	muxA := muxer.New(connA, nil)
	muxB := muxer.New(connB, nil)
	errorChan := make(chan error, 10)
	client := New(ProtocolConfig{
		Name:                "test",
		ProtocolId:          42,
		ErrorChan:           errorChan,
		Muxer:               muxA,
		Role:                ProtocolRoleClient,
		MessageHandlerFunc:  clientHandler,
		MessageFromCborFunc: testMsgFromCbor,
		StateMap:            testStateMap(timeout),
		InitialState:        testStateIdle,
	})
	server := New(ProtocolConfig{
		Name:                "test",
		ProtocolId:          42,
		ErrorChan:           errorChan,
		Muxer:               muxB,
		Role:                ProtocolRoleServer,
		MessageHandlerFunc:  serverHandler,
		MessageFromCborFunc: testMsgFromCbor,
		StateMap:            testStateMap(timeout),
		InitialState:        testStateIdle,
	})
	client.Start()
	server.Start()
	muxA.Start()
	muxB.Start()
	return &testPair{
		client:    client,
		server:    server,
		errorChan: errorChan,
		muxers:    []*muxer.Muxer{muxA, muxB},
		conns:     []net.Conn{connA, connB},
	}
}

func (tp *testPair) Close() {
	tp.client.Stop()
	tp.server.Stop()
	for _, m := range tp.muxers {
		m.Stop()
	}
	for _, c := range tp.conns {
		c.Close()
	}
}

func TestRequestResponse(t *testing.T) {
	defer goleak.VerifyNone(t)
	resultChan := make(chan uint64, 1)
	var tp *testPair
	tp = newTestPair(
		t,
		0,
		func(msg Message) error {
			resultChan <- msg.(*testMsg).Value
			return nil
		},
		func(msg Message) error {
			return tp.server.SendMessage(newTestMsg(testMsgTypePong, msg.(*testMsg).Value+1))
		},
	)
	defer tp.Close()
	if err := tp.client.SendMessage(newTestMsg(testMsgTypePing, 41)); err != nil {
		t.Fatalf("unexpected error sending message: %s", err)
	}
	select {
	case value := <-resultChan:
		if value != 42 {
			t.Fatalf("did not get expected value: got %d, wanted %d", value, 42)
		}
	case err := <-tp.errorChan:
		t.Fatalf("unexpected protocol error: %s", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("did not receive response within timeout")
	}
	if tp.client.CurrentState() != testStateIdle {
		t.Fatalf("client did not return to idle state: got %s", tp.client.CurrentState())
	}
}

func TestSendWithoutAgency(t *testing.T) {
	defer goleak.VerifyNone(t)
	tp := newTestPair(
		t,
		0,
		func(Message) error { return nil },
		func(Message) error { return nil },
	)
	defer tp.Close()
	err := tp.server.SendMessage(newTestMsg(testMsgTypePong, 1))
	if !errors.Is(err, ErrProtocolViolationAgency) {
		t.Fatalf("did not get expected error: got %v", err)
	}
}

func TestStateTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	// The server never answers, so the client times out waiting in the busy state
	tp := newTestPair(
		t,
		50*time.Millisecond,
		func(Message) error { return nil },
		func(Message) error { return nil },
	)
	defer tp.Close()
	if err := tp.client.SendMessage(newTestMsg(testMsgTypePing, 1)); err != nil {
		t.Fatalf("unexpected error sending message: %s", err)
	}
	select {
	case err := <-tp.errorChan:
		if !errors.Is(err, ErrProtocolViolationTimeout) {
			t.Fatalf("did not get expected error: got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("did not time out as expected")
	}
	select {
	case <-tp.client.DoneChan():
	case <-time.After(2 * time.Second):
		t.Fatalf("client protocol did not shut down after timeout")
	}
}
