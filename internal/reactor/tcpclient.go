// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2024 The netreactor Authors
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

package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"netreactor/pkg/logging"
	"netreactor/pkg/stats"
)

// TCPClient composes a Connector with the connection lifecycle described
// in spec 4.9: the Connector supplies a ready fd, the client constructs
// the TCPConnection, wires a thread-safe removeConnection as its close
// callback, and calls connectEstablished. With Retry set, losing the
// connection restarts the Connector.
type TCPClient struct {
	loop      *EventLoop
	name      string
	connector *Connector
	opts      *Options

	mu       sync.Mutex
	conn     *TCPConnection
	connID   int64
	connect  int32

	ConnectionCallback    ConnectionCallback
	MessageCallback       MessageCallback
	WriteCompleteCallback WriteCompleteCallback
}

// NewTCPClient creates a client targeting serverAddr.
func NewTCPClient(loop *EventLoop, serverAddr InetAddress, name string, opts ...Option) *TCPClient {
	o := loadOptions(opts...)
	c := &TCPClient{
		loop: loop,
		name: name,
		opts: o,
	}
	c.connector = NewConnector(loop, serverAddr)
	c.connector.NewConnectionCallback = c.newConnection
	return c
}

// Connect starts the Connector; idempotent while already connecting or
// connected.
func (c *TCPClient) Connect() {
	if !atomic.CompareAndSwapInt32(&c.connect, 0, 1) {
		return
	}
	c.connector.Start()
}

// Disconnect shuts down the write side of the current connection, if any,
// once its output drains, without preventing a future Connect.
func (c *TCPClient) Disconnect() {
	atomic.StoreInt32(&c.connect, 0)
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Shutdown()
	}
}

// Stop disables retry and aborts any in-flight connect attempt.
func (c *TCPClient) Stop() {
	atomic.StoreInt32(&c.connect, 0)
	c.connector.Stop()
}

func (c *TCPClient) newConnection(fd int) {
	c.loop.assertInLoopThread()
	local := localAddr(fd)
	peer := peerAddr(fd)
	id := atomic.AddInt64(&c.connID, 1)
	name := fmt.Sprintf("%s#%d", c.name, id)

	conn := NewTCPConnection(c.loop, name, fd, local, peer, c.opts.HighWaterMark, c.name)
	conn.SetConnectionCallback(c.ConnectionCallback)
	conn.SetMessageCallback(c.MessageCallback)
	conn.SetWriteCompleteCallback(c.WriteCompleteCallback)
	conn.SetCloseCallback(c.removeConnection)
	_ = conn.SetTcpNoDelay(c.opts.TCPNoDelay)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stats.ConnOpened(c.name)
	conn.connectEstablished()
}

// removeConnection drops the client's reference to conn and, if the retry
// option is set and the client still wants a connection, restarts the
// Connector.
func (c *TCPClient) removeConnection(conn *TCPConnection) {
	c.loop.queueInLoop(func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		stats.ConnClosed(c.name, conn.Faulted())
		conn.connectDestroyed()

		if c.opts.Retry && atomic.LoadInt32(&c.connect) == 1 {
			logging.Infof("tcpclient %s: connection lost, retrying", c.name)
			c.connector.Restart()
		}
	})
}

// Connection returns the client's current TCPConnection, or nil.
func (c *TCPClient) Connection() *TCPConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}
