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
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"netreactor/pkg/logging"
	"netreactor/pkg/stats"
)

// ConnState is a TCPConnection's position in the spec 4.8 state machine.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return "Disconnected"
	}
}

// TCPConnection is the central per-connection state machine described in
// spec 4.8. At most one Channel backs a connection; its lifetime is owned
// by whichever TCPServer/TCPClient map holds it, with the loop's dispatch
// holding a transient tie for the duration of each HandleEvent.
type TCPConnection struct {
	loop *EventLoop
	name string
	fd   int

	channel *Channel

	localAddr InetAddress
	peerAddr  InetAddress

	inputBuffer  *Buffer
	outputBuffer *Buffer

	state ConnState

	reading bool
	writing bool
	fault   bool

	highWaterMark int
	tcpNoDelay    bool

	context interface{}

	statsLabel string

	connectionCallback     ConnectionCallback
	messageCallback        MessageCallback
	writeCompleteCallback  WriteCompleteCallback
	highWaterMarkCallback  HighWaterMarkCallback
	closeCallback          CloseCallback

	destroyed int32
}

// NewTCPConnection wraps an already-accepted or already-connected fd. The
// connection starts in StateConnecting; connectEstablished must be called
// (on loop) before any I/O callback fires.
func NewTCPConnection(loop *EventLoop, name string, fd int, local, peer InetAddress, highWaterMark int, statsLabel string) *TCPConnection {
	c := &TCPConnection{
		loop:          loop,
		name:          name,
		fd:            fd,
		localAddr:     local,
		peerAddr:      peer,
		inputBuffer:   NewBuffer(),
		outputBuffer:  NewBuffer(),
		state:         StateConnecting,
		reading:       false,
		highWaterMark: highWaterMark,
		tcpNoDelay:    true,
		statsLabel:    statsLabel,

		connectionCallback: defaultConnectionCallback,
		messageCallback:    defaultMessageCallback,
	}
	_ = setKeepAlive(fd, true, 0)
	c.channel = NewChannel(loop, fd)
	c.channel.Tie(func() (interface{}, bool) {
		return c, atomic.LoadInt32(&c.destroyed) == 0
	})
	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleError)
	return c
}

func (c *TCPConnection) Name() string        { return c.name }
func (c *TCPConnection) LocalAddr() InetAddress { return c.localAddr }
func (c *TCPConnection) RemoteAddr() InetAddress { return c.peerAddr }
func (c *TCPConnection) State() ConnState    { return ConnState(atomic.LoadInt32((*int32)(&c.state))) }
func (c *TCPConnection) Connected() bool     { return c.State() == StateConnected }

func (c *TCPConnection) Context() interface{}     { return c.context }
func (c *TCPConnection) SetContext(ctx interface{}) { c.context = ctx }

func (c *TCPConnection) SetConnectionCallback(cb ConnectionCallback)     { c.connectionCallback = cb }
func (c *TCPConnection) SetMessageCallback(cb MessageCallback)           { c.messageCallback = cb }
func (c *TCPConnection) SetWriteCompleteCallback(cb WriteCompleteCallback) { c.writeCompleteCallback = cb }
func (c *TCPConnection) SetHighWaterMarkCallback(cb HighWaterMarkCallback, mark int) {
	c.highWaterMarkCallback = cb
	c.highWaterMark = mark
}
func (c *TCPConnection) SetCloseCallback(cb CloseCallback) { c.closeCallback = cb }

// connectEstablished transitions Connecting -> Connected, enables reading
// and fires ConnectionCallback(up). Must run on the connection's loop.
func (c *TCPConnection) connectEstablished() {
	c.loop.assertInLoopThread()
	atomic.StoreInt32((*int32)(&c.state), int32(StateConnected))
	c.channel.EnableReading()
	c.reading = true
	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
}

// connectDestroyed is the only place the Channel is removed from the
// loop; idempotent. Fires ConnectionCallback(down) if the connection was
// still Connected (handleClose usually already did this).
func (c *TCPConnection) connectDestroyed() {
	c.loop.assertInLoopThread()
	if c.State() == StateConnected {
		atomic.StoreInt32((*int32)(&c.state), int32(StateDisconnected))
		c.channel.DisableAll()
		if c.connectionCallback != nil {
			c.connectionCallback(c)
		}
	}
	atomic.StoreInt32(&c.destroyed, 1)
	c.channel.Remove()
	closeFd(c.fd)
}

func (c *TCPConnection) handleRead(receiveTime time.Time) {
	n, err := c.inputBuffer.readFromDescriptor(c.fd)
	switch {
	case n > 0:
		stats.Global.BytesRead.WithLabelValues(c.statsLabel).Add(float64(n))
		if c.messageCallback != nil {
			c.messageCallback(c, c.inputBuffer, receiveTime)
		}
	case n == 0:
		c.handleClose()
	default:
		logging.Errorf("tcpconnection %s: read error: %v", c.name, err)
		c.handleError()
		c.handleClose()
	}
}

func (c *TCPConnection) handleWrite() {
	if !c.channel.IsWriting() {
		return
	}
	n, err := writev(c.fd, [][]byte{c.outputBuffer.Peek()})
	if err != nil {
		logging.Warnf("tcpconnection %s: write error: %v", c.name, err)
		c.fault = true
		return
	}
	stats.Global.BytesWritten.WithLabelValues(c.statsLabel).Add(float64(n))
	c.outputBuffer.Retrieve(n)
	if c.outputBuffer.Readable() == 0 {
		c.channel.DisableWriting()
		if c.writeCompleteCallback != nil {
			c.loop.queueInLoop(func() { c.writeCompleteCallback(c) })
		}
		if c.State() == StateDisconnecting {
			c.shutdownInLoop()
		}
	}
}

func (c *TCPConnection) handleClose() {
	state := c.State()
	if state == StateDisconnected {
		return
	}
	atomic.StoreInt32((*int32)(&c.state), int32(StateDisconnected))
	c.channel.DisableAll()

	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
	if c.closeCallback != nil {
		c.closeCallback(c)
	}
}

func (c *TCPConnection) handleError() {
	if err := socketError(c.fd); err != nil {
		if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET) {
			c.fault = true
		}
		logging.Warnf("tcpconnection %s: socket error: %v", c.name, err)
	}
}

// Send queues bytes for transmission; see spec 4.8's send pipeline. Safe
// to call from any goroutine.
func (c *TCPConnection) Send(data []byte) {
	if c.State() != StateConnected {
		logging.Warnf("tcpconnection %s: send on non-connected conn, dropped", c.name)
		return
	}
	if c.loop.isInLoopThread() {
		c.sendInLoop(data)
		return
	}
	cp := append([]byte(nil), data...)
	c.loop.queueInLoop(func() { c.sendInLoop(cp) })
}

func (c *TCPConnection) sendInLoop(data []byte) {
	if c.State() == StateDisconnected {
		return
	}
	var wrote int
	if !c.channel.IsWriting() && c.outputBuffer.Readable() == 0 {
		n, err := writev(c.fd, [][]byte{data})
		if err != nil {
			if !errors.Is(err, unix.EAGAIN) {
				if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET) {
					c.fault = true
				}
				logging.Warnf("tcpconnection %s: sendInLoop write error: %v", c.name, err)
				return
			}
			n = 0
		}
		stats.Global.BytesWritten.WithLabelValues(c.statsLabel).Add(float64(n))
		wrote = n
		if wrote == len(data) {
			if c.writeCompleteCallback != nil {
				c.loop.queueInLoop(func() { c.writeCompleteCallback(c) })
			}
			return
		}
	}
	if c.fault {
		return
	}
	remaining := data[wrote:]
	oldLen := c.outputBuffer.Readable()
	c.outputBuffer.Append(remaining)
	newLen := oldLen + len(remaining)
	if oldLen < c.highWaterMark && newLen >= c.highWaterMark {
		stats.Global.HighWaterMarkHits.WithLabelValues(c.statsLabel).Inc()
		if c.highWaterMarkCallback != nil {
			c.loop.queueInLoop(func() { c.highWaterMarkCallback(c, newLen) })
		}
	}
	if !c.channel.IsWriting() {
		c.channel.EnableWriting()
	}
}

// Shutdown half-closes the connection for writing once the output buffer
// drains (Connected -> Disconnecting).
func (c *TCPConnection) Shutdown() {
	if c.State() != StateConnected {
		return
	}
	atomic.CompareAndSwapInt32((*int32)(&c.state), int32(StateConnected), int32(StateDisconnecting))
	c.loop.runInLoop(c.shutdownInLoop)
}

func (c *TCPConnection) shutdownInLoop() {
	if c.channel.IsWriting() {
		return
	}
	_ = shutdownWrite(c.fd)
}

// ForceClose closes the connection immediately regardless of pending
// output. Idempotent (spec testable property 9).
func (c *TCPConnection) ForceClose() {
	if c.State() == StateDisconnected {
		return
	}
	atomic.StoreInt32((*int32)(&c.state), int32(StateDisconnecting))
	c.loop.queueInLoop(c.forceCloseInLoop)
}

func (c *TCPConnection) forceCloseInLoop() {
	if c.State() == StateDisconnected {
		return
	}
	c.handleClose()
}

// ForceCloseWithDelay schedules a forced close after delay. The timer keeps
// a pointer to the connection and checks its destroyed flag when it fires,
// skipping the close if connectDestroyed has run since the call (spec 5,
// supplemented polaris idle-reaper behavior).
func (c *TCPConnection) ForceCloseWithDelay(delay time.Duration) {
	weakSelf := c
	weakGen := atomic.LoadInt32(&c.destroyed)
	c.loop.RunAfter(delay, func() {
		if atomic.LoadInt32(&weakSelf.destroyed) != weakGen {
			return
		}
		weakSelf.ForceClose()
	})
}

// SetTcpNoDelay toggles TCP_NODELAY on the connection's socket.
func (c *TCPConnection) SetTcpNoDelay(on bool) error {
	c.tcpNoDelay = on
	return setTCPNoDelay(c.fd, on)
}

// StartRead/StopRead toggle read interest without tearing down the
// connection, forwarding onto the connection's loop (spec 5).
func (c *TCPConnection) StartRead() {
	c.loop.runInLoop(func() {
		if !c.reading {
			c.channel.EnableReading()
			c.reading = true
		}
	})
}

func (c *TCPConnection) StopRead() {
	c.loop.runInLoop(func() {
		if c.reading {
			c.channel.DisableReading()
			c.reading = false
		}
	})
}

// OutboundBuffered returns the number of bytes queued to write.
func (c *TCPConnection) OutboundBuffered() int { return c.outputBuffer.Readable() }

// InboundBuffered returns the number of bytes available to read.
func (c *TCPConnection) InboundBuffered() int { return c.inputBuffer.Readable() }

// Loop returns the EventLoop this connection is bound to.
func (c *TCPConnection) Loop() *EventLoop { return c.loop }

// Fd returns the underlying file descriptor.
func (c *TCPConnection) Fd() int { return c.fd }

// Faulted reports whether the connection observed a socket error
// (EPIPE/ECONNRESET) during its lifetime.
func (c *TCPConnection) Faulted() bool { return c.fault }
