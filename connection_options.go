// Copyright 2023 Blink Labs Software
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
	"log/slog"
	"net"
	"time"

	"github.com/blinklabs-io/gobeacon/protocol/blocksbyrange"
	"github.com/blinklabs-io/gobeacon/protocol/keepalive"
	"github.com/blinklabs-io/gobeacon/protocol/status"
)

// ConnectionOptionFunc is a type that represents functions that modify the Connection config
type ConnectionOptionFunc func(*Connection)

// WithConnection specifies an existing connection to use. If none is provided, the Dial() function can be
// used to create one later
func WithConnection(conn net.Conn) ConnectionOptionFunc {
	return func(c *Connection) {
		c.conn = conn
	}
}

// WithNetwork specifies the network. The default is mainnet
func WithNetwork(network Network) ConnectionOptionFunc {
	return func(c *Connection) {
		c.network = network
	}
}

// WithErrorChan specifies the error channel to use. If none is provided, one will be created
func WithErrorChan(errorChan chan error) ConnectionOptionFunc {
	return func(c *Connection) {
		c.errorChan = errorChan
	}
}

// WithServer specifies whether the connection was accepted rather than dialed. An
// accepted connection waits for the peer to open the status exchange
func WithServer(server bool) ConnectionOptionFunc {
	return func(c *Connection) {
		c.server = server
	}
}

func WithLogger(logger *slog.Logger) ConnectionOptionFunc {
	return func(c *Connection) {
		c.logger = logger
	}
}

// WithStatusInterval specifies how often the status of the peer is refreshed. Zero
// disables the refresh
func WithStatusInterval(interval time.Duration) ConnectionOptionFunc {
	return func(c *Connection) {
		c.statusInterval = interval
	}
}

// WithBlocksByRangeVersion specifies the method version used for outbound range requests
func WithBlocksByRangeVersion(version blocksbyrange.Version) ConnectionOptionFunc {
	return func(c *Connection) {
		c.blocksByRangeVersion = version
	}
}

// WithStatusConfig specifies the status protocol config
func WithStatusConfig(cfg status.Config) ConnectionOptionFunc {
	return func(c *Connection) {
		c.statusConfig = &cfg
	}
}

// WithBlocksByRangeConfig specifies the blocks-by-range protocol config. The chain
// config always comes from the network
func WithBlocksByRangeConfig(cfg blocksbyrange.Config) ConnectionOptionFunc {
	return func(c *Connection) {
		c.blocksByRangeConfig = &cfg
	}
}

// WithKeepAlive specifies whether an outbound connection pings the peer periodically
func WithKeepAlive(keepAlive bool) ConnectionOptionFunc {
	return func(c *Connection) {
		c.sendKeepAlives = keepAlive
	}
}

// WithKeepAliveConfig specifies the keep-alive protocol config
func WithKeepAliveConfig(cfg keepalive.Config) ConnectionOptionFunc {
	return func(c *Connection) {
		c.keepAliveConfig = &cfg
	}
}
