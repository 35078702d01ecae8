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
	"fmt"

	"github.com/blinklabs-io/gobeacon/cbor"
	"github.com/blinklabs-io/gobeacon/ledger"
	"github.com/blinklabs-io/gobeacon/protocol"
	"github.com/klauspost/compress/snappy"
)

const (
	MessageTypeRequestRange = 0
	MessageTypeClientDone   = 1
	MessageTypeBlock        = 2
	MessageTypeBatchDone    = 3
	MessageTypeError        = 4
)

// NewMsgFromCbor parses a blocks-by-range message from CBOR
func NewMsgFromCbor(msgType uint, data []byte) (protocol.Message, error) {
	var ret protocol.Message
	switch msgType {
	case MessageTypeRequestRange:
		ret = &MsgRequestRange{}
	case MessageTypeClientDone:
		ret = &MsgClientDone{}
	case MessageTypeBlock:
		ret = &MsgBlock{}
	case MessageTypeBatchDone:
		ret = &MsgBatchDone{}
	case MessageTypeError:
		ret = &MsgError{}
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

type MsgRequestRange struct {
	protocol.MessageBase
	StartSlot uint64
	Count     uint64
	Step      uint64
}

func NewMsgRequestRange(req RangeRequest) *MsgRequestRange {
	m := &MsgRequestRange{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeRequestRange,
		},
		StartSlot: req.StartSlot,
		Count:     req.Count,
		Step:      req.Step,
	}
	return m
}

func (m *MsgRequestRange) Request() RangeRequest {
	return RangeRequest{
		StartSlot: m.StartSlot,
		Count:     m.Count,
		Step:      m.Step,
	}
}

type MsgClientDone struct {
	protocol.MessageBase
}

func NewMsgClientDone() *MsgClientDone {
	m := &MsgClientDone{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeClientDone,
		},
	}
	return m
}

// MsgBlock carries a single snappy-compressed block and the milestone it was encoded for
type MsgBlock struct {
	protocol.MessageBase
	Milestone uint8
	Data      []byte
}

func NewMsgBlock(milestone ledger.Milestone, blk *ledger.Block) (*MsgBlock, error) {
	blockCbor, err := blk.Encode()
	if err != nil {
		return nil, err
	}
	m := &MsgBlock{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeBlock,
		},
		Milestone: uint8(milestone),
		Data:      snappy.Encode(nil, blockCbor),
	}
	return m, nil
}

// Block decompresses and decodes the block carried by the message. Chunks declaring a
// decompressed size above maxSize are rejected before any allocation
func (m *MsgBlock) Block(maxSize int) (*ledger.Block, error) {
	decodedLen, err := snappy.DecodedLen(m.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompressFailed, err)
	}
	if decodedLen > maxSize {
		return nil, fmt.Errorf(
			"%w: declared size %d exceeds limit %d",
			ErrDecompressFailed,
			decodedLen,
			maxSize,
		)
	}
	blockCbor, err := snappy.Decode(nil, m.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompressFailed, err)
	}
	blk, err := ledger.NewBlockFromCbor(blockCbor)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedChunk, err)
	}
	return blk, nil
}

type MsgBatchDone struct {
	protocol.MessageBase
}

func NewMsgBatchDone() *MsgBatchDone {
	m := &MsgBatchDone{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeBatchDone,
		},
	}
	return m
}

type MsgError struct {
	protocol.MessageBase
	Code    uint8
	Message string
}

func NewMsgError(rpcErr *RpcError) *MsgError {
	m := &MsgError{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeError,
		},
		Code:    uint8(rpcErr.Code),
		Message: rpcErr.Message,
	}
	return m
}

func (m *MsgError) RpcError() *RpcError {
	return &RpcError{
		Code:    RpcErrorCode(m.Code),
		Message: m.Message,
	}
}
