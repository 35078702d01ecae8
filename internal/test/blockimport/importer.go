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

package test_blockimport

import (
	"context"
	"sync"

	"github.com/blinklabs-io/gobeacon/blockimport"
	"github.com/blinklabs-io/gobeacon/ledger"
)

// Compile-time check that MockImporter implements blockimport.Importer
var _ blockimport.Importer = (*MockImporter)(nil)

// MockImporter returns Success for every block unless an outcome is set for its slot
type MockImporter struct {
	mutex     sync.Mutex
	outcomes  map[uint64]blockimport.Outcome
	errors    map[uint64]error
	imported  []*ledger.Block
	onSuccess func(*ledger.Block)
	onImport  func(*ledger.Block)
}

func NewMockImporter() *MockImporter {
	return &MockImporter{
		outcomes: make(map[uint64]blockimport.Outcome),
		errors:   make(map[uint64]error),
	}
}

// WithOutcome sets the outcome for the block at slot
func (m *MockImporter) WithOutcome(slot uint64, outcome blockimport.Outcome) *MockImporter {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.outcomes[slot] = outcome
	return m
}

// WithError makes the import of the block at slot fail with err
func (m *MockImporter) WithError(slot uint64, err error) *MockImporter {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.errors[slot] = err
	return m
}

// OnSuccess sets a function called with each successfully imported block
func (m *MockImporter) OnSuccess(fn func(*ledger.Block)) *MockImporter {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.onSuccess = fn
	return m
}

// OnImport sets a function called with each block before its outcome is decided
func (m *MockImporter) OnImport(fn func(*ledger.Block)) *MockImporter {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.onImport = fn
	return m
}

// Imported returns every block passed to ImportBlock, in call order
func (m *MockImporter) Imported() []*ledger.Block {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]*ledger.Block(nil), m.imported...)
}

func (m *MockImporter) ImportBlock(ctx context.Context, blk *ledger.Block) (blockimport.Outcome, error) {
	m.mutex.Lock()
	m.imported = append(m.imported, blk)
	onImport := m.onImport
	onSuccess := m.onSuccess
	outcome, hasOutcome := m.outcomes[blk.Slot]
	err := m.errors[blk.Slot]
	m.mutex.Unlock()
	if onImport != nil {
		onImport(blk)
	}
	if err != nil {
		return nil, err
	}
	if hasOutcome {
		return outcome, nil
	}
	if onSuccess != nil {
		onSuccess(blk)
	}
	return blockimport.Success{}, nil
}
