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
	"errors"
	"fmt"

	"github.com/blinklabs-io/gobeacon/ledger"
)

// RangeRequest asks for the blocks at slots StartSlot + i*Step for i in [0, Count)
type RangeRequest struct {
	StartSlot uint64
	Count     uint64
	Step      uint64
}

func (r RangeRequest) String() string {
	return fmt.Sprintf(
		"start=%d count=%d step=%d",
		r.StartSlot,
		r.Count,
		r.Step,
	)
}

// EndSlot returns the first slot after the range, saturating on overflow
func (r RangeRequest) EndSlot() uint64 {
	return ledger.SlotRangeEnd(r.StartSlot, r.Count, r.Step)
}

// Contains reports whether slot is one of the slots named by the request
func (r RangeRequest) Contains(slot uint64) bool {
	if r.Step == 0 || slot < r.StartSlot || slot >= r.EndSlot() {
		return false
	}
	return (slot-r.StartSlot)%r.Step == 0
}

// RpcErrorCode is the code carried by an error terminator
type RpcErrorCode uint8

const (
	RpcErrorInvalidRequest       RpcErrorCode = 1
	RpcErrorServerError          RpcErrorCode = 2
	RpcErrorResourceUnavailable  RpcErrorCode = 3
	RpcErrorInvalidMethodVersion RpcErrorCode = 4
)

func (c RpcErrorCode) String() string {
	switch c {
	case RpcErrorInvalidRequest:
		return "InvalidRequest"
	case RpcErrorServerError:
		return "ServerError"
	case RpcErrorResourceUnavailable:
		return "ResourceUnavailable"
	case RpcErrorInvalidMethodVersion:
		return "InvalidMethodVersion"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

// RpcError is a typed error terminator for a range response
type RpcError struct {
	Code    RpcErrorCode
	Message string
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewInvalidRequestError(message string) *RpcError {
	return &RpcError{Code: RpcErrorInvalidRequest, Message: message}
}

func NewServerError(message string) *RpcError {
	return &RpcError{Code: RpcErrorServerError, Message: message}
}

func NewResourceUnavailableError(message string) *RpcError {
	return &RpcError{Code: RpcErrorResourceUnavailable, Message: message}
}

func NewInvalidMethodVersionError(message string) *RpcError {
	return &RpcError{Code: RpcErrorInvalidMethodVersion, Message: message}
}

// IsRpcErrorCode reports whether err is an RpcError with the given code
func IsRpcErrorCode(err error, code RpcErrorCode) bool {
	var rpcErr *RpcError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == code
	}
	return false
}

var (
	// ErrDecompressFailed is returned for a response chunk that cannot be decompressed
	ErrDecompressFailed = errors.New("blocks-by-range: failed to decompress response chunk")
	// ErrMalformedChunk is returned for a response chunk that does not hold a valid block
	ErrMalformedChunk = errors.New("blocks-by-range: malformed response chunk")
)
