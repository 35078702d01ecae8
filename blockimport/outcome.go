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

// Package blockimport classifies and applies blocks received during sync
package blockimport

import (
	"context"
	"fmt"

	"github.com/blinklabs-io/gobeacon/ledger"
)

// Importer imports a single block. Implementations must be safe for concurrent use
type Importer interface {
	ImportBlock(ctx context.Context, blk *ledger.Block) (Outcome, error)
}

// Outcome is the result of importing a block. It is one of Success,
// FailedStateTransition, FailedUnknownParent, FailedInvalidAncestry,
// FailedFromFuture or FailedWeakSubjectivity
type Outcome interface {
	fmt.Stringer
	isOutcome()
}

type Success struct{}

// FailedStateTransition means the block is invalid when applied to its parent state
type FailedStateTransition struct {
	Cause error
}

// FailedUnknownParent means the parent block has not been imported
type FailedUnknownParent struct {
	ParentRoot ledger.Root
}

// FailedInvalidAncestry means the block does not build on the finalized chain
type FailedInvalidAncestry struct {
	Reason string
}

// FailedFromFuture means the block slot is ahead of the local clock
type FailedFromFuture struct {
	Slot        uint64
	CurrentSlot uint64
}

// FailedWeakSubjectivity means the block conflicts with the weak subjectivity checkpoint
type FailedWeakSubjectivity struct {
	Checkpoint ledger.Checkpoint
}

func (Success) isOutcome()                {}
func (FailedStateTransition) isOutcome()  {}
func (FailedUnknownParent) isOutcome()    {}
func (FailedInvalidAncestry) isOutcome()  {}
func (FailedFromFuture) isOutcome()       {}
func (FailedWeakSubjectivity) isOutcome() {}

func (Success) String() string {
	return "success"
}

func (o FailedStateTransition) String() string {
	return fmt.Sprintf("failed state transition: %s", o.Cause)
}

func (o FailedUnknownParent) String() string {
	return fmt.Sprintf("unknown parent %s", o.ParentRoot.String())
}

func (o FailedInvalidAncestry) String() string {
	return fmt.Sprintf("invalid ancestry: %s", o.Reason)
}

func (o FailedFromFuture) String() string {
	return fmt.Sprintf(
		"block slot %d is ahead of current slot %d",
		o.Slot,
		o.CurrentSlot,
	)
}

func (o FailedWeakSubjectivity) String() string {
	return fmt.Sprintf(
		"conflicts with weak subjectivity checkpoint %s",
		o.Checkpoint.String(),
	)
}

// IsSuccess reports whether the outcome is Success
func IsSuccess(o Outcome) bool {
	_, ok := o.(Success)
	return ok
}
