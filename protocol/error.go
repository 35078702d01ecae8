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

package protocol

import "errors"

var (
	ErrProtocolShuttingDown = errors.New("protocol is shutting down")
	ErrProtocolNotStarted   = errors.New("protocol has not been started")
)

// Protocol violation errors cause connection termination
var (
	ErrProtocolViolationAgency = errors.New(
		"protocol violation: message sent without agency",
	)
	ErrProtocolViolationInvalidMessage = errors.New(
		"protocol violation: invalid message received",
	)
	ErrProtocolViolationTimeout = errors.New(
		"protocol violation: timeout waiting on state transition",
	)
)
