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
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"netreactor/pkg/logging"
)

type connectorState int

const (
	connectorDisconnected connectorState = iota
	connectorConnecting
	connectorConnected
)

const (
	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

// Connector drives the client-side non-blocking connect state machine of
// spec 4.7: {Disconnected, Connecting, Connected}, with exponential
// backoff retry and self-connect detection.
type Connector struct {
	loop       *EventLoop
	serverAddr InetAddress
	state      connectorState
	connect    bool // true once Start has been called; false after Stop
	retryDelay time.Duration
	channel    *Channel
	fd         int

	NewConnectionCallback func(fd int)
}

// NewConnector creates a Connector targeting serverAddr, idle until Start.
func NewConnector(loop *EventLoop, serverAddr InetAddress) *Connector {
	return &Connector{
		loop:       loop,
		serverAddr: serverAddr,
		state:      connectorDisconnected,
		retryDelay: initialRetryDelay,
	}
}

// Start posts connect() to the loop.
func (c *Connector) Start() {
	c.connect = true
	c.loop.runInLoop(c.connectInLoop)
}

// Stop marks the connector as no longer wanting a connection; an in-flight
// connect will still be allowed to resolve, but no retry will follow.
func (c *Connector) Stop() {
	c.connect = false
}

func (c *Connector) connectInLoop() {
	if !c.connect {
		return
	}
	fd, err := connectSocket(c.serverAddr)
	// connectSocket closes the descriptor itself on every error other than
	// EINPROGRESS, so the failure branches below have nothing to close.
	switch {
	case err == nil, errors.Is(err, unix.EISCONN):
		c.state = connectorConnecting
		c.connecting(fd)
	case errors.Is(err, unix.EINPROGRESS):
		// The only case where the fd is still valid and mid-connect; wait
		// for it to become writable.
		c.state = connectorConnecting
		c.connecting(fd)
	case errors.Is(err, unix.EINTR),
		errors.Is(err, unix.EAGAIN),
		errors.Is(err, unix.EADDRINUSE),
		errors.Is(err, unix.EADDRNOTAVAIL),
		errors.Is(err, unix.ECONNREFUSED):
		logging.Warnf("connector: connect error: %v, retrying", err)
		c.retryInLoop()
	default:
		logging.Errorf("connector: connect error: %v", err)
		c.state = connectorDisconnected
	}
}

func (c *Connector) connecting(fd int) {
	c.fd = fd
	c.channel = NewChannel(c.loop, fd)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetErrorCallback(c.handleError)
	c.channel.EnableWriting()
}

func (c *Connector) handleWrite() {
	if c.state != connectorConnecting {
		return
	}
	fd := c.removeAndResetChannel()
	if err := socketError(fd); err != nil {
		logging.Warnf("connector: SO_ERROR after connect: %v", err)
		closeFd(fd)
		c.retryInLoop()
		return
	}
	if c.isSelfConnect(fd) {
		logging.Warnf("connector: self-connect detected, retrying")
		closeFd(fd)
		c.retryInLoop()
		return
	}
	c.state = connectorConnected
	if c.connect && c.NewConnectionCallback != nil {
		c.NewConnectionCallback(fd)
	} else {
		closeFd(fd)
	}
}

func (c *Connector) handleError() {
	if c.state != connectorConnecting {
		return
	}
	fd := c.removeAndResetChannel()
	err := socketError(fd)
	logging.Warnf("connector: error event during connect: %v", err)
	closeFd(fd)
	c.retryInLoop()
}

func (c *Connector) removeAndResetChannel() int {
	c.channel.DisableAll()
	c.channel.Remove()
	fd := c.fd
	c.channel = nil
	return fd
}

func (c *Connector) isSelfConnect(fd int) bool {
	local := localAddr(fd)
	peer := peerAddr(fd)
	return local.String() == peer.String()
}

func (c *Connector) retryInLoop() {
	c.state = connectorDisconnected
	if !c.connect {
		return
	}
	delay := c.retryDelay
	logging.Infof("connector: retrying %s in %v", c.serverAddr, delay)
	c.loop.RunAfter(delay, func() {
		c.connectInLoop()
	})
	c.retryDelay *= 2
	if c.retryDelay > maxRetryDelay {
		c.retryDelay = maxRetryDelay
	}
}

// Restart resets backoff and re-arms the connector, used when a TCPClient
// with retry enabled loses its connection.
func (c *Connector) Restart() {
	c.state = connectorDisconnected
	c.retryDelay = initialRetryDelay
	c.connect = true
	c.Start()
}
