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

	"github.com/blinklabs-io/gobeacon/cbor"
	"github.com/blinklabs-io/gobeacon/protocol"
	"github.com/blinklabs-io/gobeacon/protocol/common"
)

const (
	MessageTypeStatusRequest  = 0
	MessageTypeStatusResponse = 1
	MessageTypeDone           = 2
)

// NewMsgFromCbor parses a status protocol message from CBOR
func NewMsgFromCbor(msgType uint, data []byte) (protocol.Message, error) {
	var ret protocol.Message
	switch msgType {
	case MessageTypeStatusRequest:
		ret = &MsgStatusRequest{}
	case MessageTypeStatusResponse:
		ret = &MsgStatusResponse{}
	case MessageTypeDone:
		ret = &MsgDone{}
	default:
		return nil, nil
	}
	if _, err := cbor.Decode(data, ret); err != nil {
		return nil, fmt.Errorf("%s: decode error: %w", ProtocolName, err)
	}
	// Store the raw message CBOR
	ret.SetCbor(data)
	return ret, nil
}

type MsgStatusRequest struct {
	protocol.MessageBase
	Status common.PeerStatus
}

func NewMsgStatusRequest(status common.PeerStatus) *MsgStatusRequest {
	m := &MsgStatusRequest{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeStatusRequest,
		},
		Status: status,
	}
	return m
}

type MsgStatusResponse struct {
	protocol.MessageBase
	Status common.PeerStatus
}

func NewMsgStatusResponse(status common.PeerStatus) *MsgStatusResponse {
	m := &MsgStatusResponse{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeStatusResponse,
		},
		Status: status,
	}
	return m
}

type MsgDone struct {
	protocol.MessageBase
}

func NewMsgDone() *MsgDone {
	m := &MsgDone{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeDone,
		},
	}
	return m
}
