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

package peersync

import "errors"

// Response validation errors. These are logged with the peer before it is disconnected
var (
	ErrBlockSlotNotIncreasing = errors.New("block slot not greater than previous block slot")
	ErrBlockSlotNotRequested  = errors.New("block slot not in requested range")
	ErrBlockParentMismatch    = errors.New("block does not extend previous block in response")
	ErrTooManyBlocks          = errors.New("response contains more blocks than requested")
)
