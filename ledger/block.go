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

package ledger

import (
	"fmt"

	"github.com/blinklabs-io/gobeacon/cbor"
)

type Block struct {
	cbor.StructAsArray
	cbor.DecodeStoreCbor
	Slot          uint64
	ProposerIndex uint64
	ParentRoot    Root
	StateRoot     Root
	Body          BlockBody
	root          *Root
}

type BlockBody struct {
	cbor.StructAsArray
	Graffiti []byte
	Payload  []byte
}

// NewBlock builds a block and captures its encoding so that the root is stable
func NewBlock(
	slot uint64,
	proposerIndex uint64,
	parentRoot Root,
	stateRoot Root,
	body BlockBody,
) (*Block, error) {
	b := &Block{
		Slot:          slot,
		ProposerIndex: proposerIndex,
		ParentRoot:    parentRoot,
		StateRoot:     stateRoot,
		Body:          body,
	}
	cborData, err := cbor.Encode(b)
	if err != nil {
		return nil, fmt.Errorf("encode block: %w", err)
	}
	b.SetCbor(cborData)
	return b, nil
}

// NewBlockFromCbor decodes a block and keeps the original bytes for hashing
func NewBlockFromCbor(data []byte) (*Block, error) {
	var b Block
	if _, err := cbor.Decode(data, &b); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	return &b, nil
}

func (b *Block) UnmarshalCBOR(cborData []byte) error {
	return b.UnmarshalCbor(cborData, b)
}

// Encode returns the original CBOR for the block, encoding it if necessary
func (b *Block) Encode() ([]byte, error) {
	if data := b.Cbor(); data != nil {
		return data, nil
	}
	data, err := cbor.Encode(b)
	if err != nil {
		return nil, err
	}
	b.SetCbor(data)
	return data, nil
}

// Root returns the block root, which is the hash of the block encoding
func (b *Block) Root() Root {
	if b.root == nil {
		data, err := b.Encode()
		if err != nil {
			panic(
				fmt.Sprintf("unexpected error encoding block: %s", err),
			)
		}
		tmpRoot := Blake2b256Hash(data)
		b.root = &tmpRoot
	}
	return *b.root
}

func (b *Block) String() string {
	return fmt.Sprintf("%d:%s", b.Slot, b.Root().String())
}
