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

// Package ledger provides the beacon chain types shared by sync, storage and the
// wire protocols: slots, epochs, block roots, blocks and the fork schedule.
package ledger

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const RootSize = 32

// Root identifies a block or state by hash
type Root [RootSize]byte

func NewRoot(data []byte) Root {
	r := Root{}
	copy(r[:], data)
	return r
}

func (r Root) String() string {
	return hex.EncodeToString(r[:])
}

func (r Root) Bytes() []byte {
	return r[:]
}

func (r Root) IsZero() bool {
	return r == Root{}
}

// Blake2b256Hash generates a Blake2b-256 hash from the provided data
func Blake2b256Hash(data []byte) Root {
	tmpHash, err := blake2b.New(RootSize, nil)
	if err != nil {
		panic(
			fmt.Sprintf(
				"unexpected error generating empty blake2b hash: %s",
				err,
			),
		)
	}
	tmpHash.Write(data)
	return Root(tmpHash.Sum(nil))
}

// Checkpoint is an epoch boundary block reference
type Checkpoint struct {
	Epoch uint64
	Root  Root
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("%d:%s", c.Epoch, c.Root.String())
}

// ChainHead describes the head of the local canonical chain
type ChainHead struct {
	Slot      uint64
	Root      Root
	StateRoot Root
}
