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
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/blinklabs-io/gobeacon/connection"
	"github.com/hashicorp/go-multierror"
)

// ConnectionManagerConnClosedFunc is a function that takes a connection ID and an optional error
type ConnectionManagerConnClosedFunc func(connection.ConnectionId, error)

// ConnectionManagerTag represents the various tags that can be associated with a host or connection
type ConnectionManagerTag uint16

const (
	ConnectionManagerTagNone ConnectionManagerTag = iota

	ConnectionManagerTagHostBootstrap
	ConnectionManagerTagHostStatic

	ConnectionManagerTagRoleInitiator
	ConnectionManagerTagRoleResponder
)

func (c ConnectionManagerTag) String() string {
	tmp := map[ConnectionManagerTag]string{
		ConnectionManagerTagHostBootstrap: "HostBootstrap",
		ConnectionManagerTagHostStatic:    "HostStatic",
		ConnectionManagerTagRoleInitiator: "RoleInitiator",
		ConnectionManagerTagRoleResponder: "RoleResponder",
	}
	ret, ok := tmp[c]
	if !ok {
		return "Unknown"
	}
	return ret
}

type ConnectionManager struct {
	config           ConnectionManagerConfig
	hosts            []ConnectionManagerHost
	connections      map[connection.ConnectionId]*ConnectionManagerConnection
	connectionsMutex sync.Mutex
	waitGroup        sync.WaitGroup
}

type ConnectionManagerConfig struct {
	ConnClosedFunc ConnectionManagerConnClosedFunc
}

type ConnectionManagerHost struct {
	Address string
	Port    uint
	Tags    map[ConnectionManagerTag]bool
}

// HostPort returns the host in address:port form
func (h ConnectionManagerHost) HostPort() string {
	return net.JoinHostPort(h.Address, strconv.FormatUint(uint64(h.Port), 10))
}

func NewConnectionManager(cfg ConnectionManagerConfig) *ConnectionManager {
	return &ConnectionManager{
		config:      cfg,
		connections: make(map[connection.ConnectionId]*ConnectionManagerConnection),
	}
}

func (c *ConnectionManager) AddHost(address string, port uint, tags ...ConnectionManagerTag) {
	tmpTags := map[ConnectionManagerTag]bool{}
	for _, tag := range tags {
		tmpTags[tag] = true
	}
	c.connectionsMutex.Lock()
	defer c.connectionsMutex.Unlock()
	c.hosts = append(
		c.hosts,
		ConnectionManagerHost{
			Address: address,
			Port:    port,
			Tags:    tmpTags,
		},
	)
}

func (c *ConnectionManager) AddHostsFromTopology(topology *TopologyConfig) {
	for _, host := range topology.BootstrapPeers {
		c.AddHost(host.Address, host.Port, ConnectionManagerTagHostBootstrap)
	}
	for _, host := range topology.StaticPeers {
		c.AddHost(host.Address, host.Port, ConnectionManagerTagHostStatic)
	}
}

// GetHostsByTags returns the known hosts that have all of the tags
func (c *ConnectionManager) GetHostsByTags(tags ...ConnectionManagerTag) []ConnectionManagerHost {
	var ret []ConnectionManagerHost
	c.connectionsMutex.Lock()
	defer c.connectionsMutex.Unlock()
	for _, host := range c.hosts {
		if hasTags(host.Tags, tags) {
			ret = append(ret, host)
		}
	}
	return ret
}

// AddConnection starts tracking a connection. The connection is removed, and the
// configured callback is called, once it reports an error or is closed
func (c *ConnectionManager) AddConnection(conn *Connection, tags ...ConnectionManagerTag) {
	connId := conn.Id()
	tmpTags := map[ConnectionManagerTag]bool{}
	for _, tag := range tags {
		tmpTags[tag] = true
	}
	c.connectionsMutex.Lock()
	c.connections[connId] = &ConnectionManagerConnection{
		Conn: conn,
		Tags: tmpTags,
	}
	c.connectionsMutex.Unlock()
	c.waitGroup.Add(1)
	go func() {
		defer c.waitGroup.Done()
		err := <-conn.ErrorChan()
		c.RemoveConnection(connId)
		if closeErr := conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		// Call configured connection closed callback func
		if c.config.ConnClosedFunc != nil {
			c.config.ConnClosedFunc(connId, err)
		}
	}()
}

func (c *ConnectionManager) RemoveConnection(connId connection.ConnectionId) {
	c.connectionsMutex.Lock()
	delete(c.connections, connId)
	c.connectionsMutex.Unlock()
}

func (c *ConnectionManager) GetConnectionById(connId connection.ConnectionId) *ConnectionManagerConnection {
	c.connectionsMutex.Lock()
	defer c.connectionsMutex.Unlock()
	return c.connections[connId]
}

func (c *ConnectionManager) GetConnectionsByTags(tags ...ConnectionManagerTag) []*ConnectionManagerConnection {
	var ret []*ConnectionManagerConnection
	c.connectionsMutex.Lock()
	for _, conn := range c.connections {
		if hasTags(conn.Tags, tags) {
			ret = append(ret, conn)
		}
	}
	c.connectionsMutex.Unlock()
	return ret
}

// Close closes every tracked connection and waits for the closed callbacks to finish
func (c *ConnectionManager) Close() error {
	var err *multierror.Error
	for _, conn := range c.GetConnectionsByTags() {
		if closeErr := conn.Conn.Close(); closeErr != nil {
			err = multierror.Append(
				err,
				fmt.Errorf("close connection %s: %w", conn.Conn.Id().String(), closeErr),
			)
		}
	}
	c.waitGroup.Wait()
	return err.ErrorOrNil()
}

func hasTags(have map[ConnectionManagerTag]bool, want []ConnectionManagerTag) bool {
	for _, tag := range want {
		if _, ok := have[tag]; !ok {
			return false
		}
	}
	return true
}

type ConnectionManagerConnection struct {
	Conn *Connection
	Tags map[ConnectionManagerTag]bool
}

func (c *ConnectionManagerConnection) AddTags(tags ...ConnectionManagerTag) {
	for _, tag := range tags {
		c.Tags[tag] = true
	}
}

func (c *ConnectionManagerConnection) RemoveTags(tags ...ConnectionManagerTag) {
	for _, tag := range tags {
		delete(c.Tags, tag)
	}
}
