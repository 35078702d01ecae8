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

package beacon

import (
	"encoding/hex"

	"github.com/blinklabs-io/gobeacon/ledger"
)

// Network definitions
var (
	NetworkMainnet = Network{
		Name:        "mainnet",
		ForkDigest:  [4]byte{0xb5, 0x30, 0x3f, 0x2a},
		ChainConfig: ledger.MainnetChainConfig,
	}
	NetworkMinimal = Network{
		Name:        "minimal",
		ForkDigest:  [4]byte{0x8d, 0x4e, 0x96, 0x10},
		ChainConfig: ledger.MinimalChainConfig,
	}

	NetworkInvalid = Network{
		Name: "invalid",
	} // NetworkInvalid is used as a return value for lookup functions when a network isn't found
)

// List of valid networks for use in lookup functions
var networks = []Network{
	NetworkMainnet,
	NetworkMinimal,
}

// NetworkByName returns a predefined network by name
func NetworkByName(name string) Network {
	for _, network := range networks {
		if network.Name == name {
			return network
		}
	}
	return NetworkInvalid
}

// NetworkByForkDigest returns a predefined network by fork digest
func NetworkByForkDigest(forkDigest [4]byte) Network {
	for _, network := range networks {
		if network.ForkDigest == forkDigest {
			return network
		}
	}
	return NetworkInvalid
}

// Network represents a beacon chain network. Peers with a different fork digest are
// on another network
type Network struct {
	Name        string
	ForkDigest  [4]byte
	ChainConfig ledger.ChainConfig
}

func (n Network) String() string {
	return n.Name
}

// ForkDigestString returns the fork digest as hex
func (n Network) ForkDigestString() string {
	return hex.EncodeToString(n.ForkDigest[:])
}

// Genesis returns the anchor block for an empty chain on the network. Every node
// builds the same block so that peers agree on the root of slot 0
func (n Network) Genesis() (*ledger.Block, error) {
	return ledger.NewBlock(
		0,
		0,
		ledger.Root{},
		ledger.Blake2b256Hash(n.ForkDigest[:]),
		ledger.BlockBody{
			Graffiti: []byte(n.Name),
		},
	)
}
