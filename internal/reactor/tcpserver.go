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

// TCPServer accepts connections on one loop (the acceptor/base loop) and
// fans them out round-robin across an EventLoopThreadPool, per spec 4.9.
// The connections map is mutated only on the acceptor loop thread, per
// the spec's shared-resource policy and design note on connection
// ownership.
type TCPServer struct {
	loop     *EventLoop
	name     string
	acceptor *Acceptor
	pool     *EventLoopThreadPool
	opts     *Options

	mu          sync.Mutex
	connections map[string]*TCPConnection
	nextConnID  int64

	started int32

	ConnectionCallback    ConnectionCallback
	MessageCallback       MessageCallback
	WriteCompleteCallback WriteCompleteCallback
}

// NewTCPServer creates a server bound to addr and name. Call SetThreadNum
// (via Options) and Start once callbacks are wired.
func NewTCPServer(loop *EventLoop, addr InetAddress, name string, opts ...Option) (*TCPServer, error) {
	o := loadOptions(opts...)
	acceptor, err := NewAcceptor(loop, addr, o.ReusePort == ReusePort, o.Backlog)
	if err != nil {
		return nil, err
	}
	s := &TCPServer{
		loop:        loop,
		name:        name,
		acceptor:    acceptor,
		opts:        o,
		connections: make(map[string]*TCPConnection),
	}
	s.pool = NewEventLoopThreadPool(loop, name)
	s.pool.SetThreadNum(o.ThreadNum)
	acceptor.NewConnectionCallback = s.newConnection
	return s, nil
}

// Start is idempotent via an atomic test-and-set: it spins up the worker
// pool (if any) and begins listening.
func (s *TCPServer) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil
	}
	if err := s.pool.Start(nil); err != nil {
		return err
	}
	s.loop.runInLoop(func() {
		s.acceptor.Listen()
	})
	return nil
}

func (s *TCPServer) newConnection(fd int, peer InetAddress) {
	s.loop.assertInLoopThread()
	loop := s.pool.GetNextLoop()
	connID := atomic.AddInt64(&s.nextConnID, 1)
	name := fmt.Sprintf("%s-%s#%d", s.name, peer, connID)

	local := localAddr(fd)
	conn := NewTCPConnection(loop, name, fd, local, peer, s.opts.HighWaterMark, s.name)
	conn.SetConnectionCallback(s.ConnectionCallback)
	conn.SetMessageCallback(s.MessageCallback)
	conn.SetWriteCompleteCallback(s.WriteCompleteCallback)
	conn.SetCloseCallback(s.removeConnection)
	_ = conn.SetTcpNoDelay(s.opts.TCPNoDelay)
	_ = setKeepAlive(fd, true, int(s.opts.TCPKeepAlive.Seconds()))

	s.mu.Lock()
	s.connections[name] = conn
	s.mu.Unlock()

	stats.ConnOpened(s.name)
	loop.runInLoop(conn.connectEstablished)
}

// removeConnection is thread-safe: it forwards to the acceptor-loop
// thread, erases the connection from the map there, then posts
// connectDestroyed to the worker loop so the connection is destroyed on
// its own thread (spec 4.9's two-step hop).
func (s *TCPServer) removeConnection(conn *TCPConnection) {
	s.loop.runInLoop(func() {
		s.mu.Lock()
		delete(s.connections, conn.Name())
		s.mu.Unlock()
		stats.ConnClosed(s.name, conn.Faulted())
		conn.Loop().queueInLoop(conn.connectDestroyed)
	})
}

// Stop tears down the acceptor and every active connection.
func (s *TCPServer) Stop() {
	s.loop.runInLoop(func() {
		s.acceptor.Close()
	})
	s.mu.Lock()
	conns := make([]*TCPConnection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.ForceClose()
	}
	for _, loop := range s.pool.AllLoops() {
		loop.Quit()
	}
	logging.Infof("tcpserver %s: stopped", s.name)
}

// ConnectionCount returns the number of currently tracked connections.
func (s *TCPServer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}
