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
	"math"
	"math/bits"
)

// SlotRangeEnd returns the first slot after the slots start + i*step for i < count,
// saturating on overflow
func SlotRangeEnd(start, count, step uint64) uint64 {
	hi, span := bits.Mul64(count, step)
	if hi != 0 {
		return math.MaxUint64
	}
	end, carry := bits.Add64(start, span, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return end
}
