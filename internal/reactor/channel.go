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
	"time"

	"golang.org/x/sys/unix"
)

const (
	evNone  = 0
	evRead  = unix.EPOLLIN | unix.EPOLLPRI
	evWrite = unix.EPOLLOUT
)

// ReadEventHandler is invoked when a Channel's descriptor becomes readable.
type ReadEventHandler func(receiveTime time.Time)

// Channel couples a file descriptor to its interest mask and callbacks; it
// is registered with exactly one Poller for the lifetime of the loop that
// owns it. Per the spec's "tie" design note, a Channel never owns the
// object whose fd it watches — it keeps a weak upgrade hook so dispatch is
// skipped once that owner is gone.
type Channel struct {
	loop   *EventLoop
	fd     int
	events uint32
	revents uint32
	index  int // poller bookkeeping: -1 = new, -2 = removed

	readCallback    ReadEventHandler
	writeCallback   func()
	closeCallback   func()
	errorCallback   func()

	tie       func() (interface{}, bool) // upgrade hook; nil means "always alive"
	tied      bool
	eventHandling bool
	addedToLoop   bool
}

// NewChannel creates a Channel for fd, not yet registered with any Poller.
func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{loop: loop, fd: fd, index: -1}
}

func (c *Channel) Fd() int { return c.fd }

// Tie arms the weak-reference upgrade used before each dispatch; owner
// should be something like a *TCPConnection captured by a closure that
// reports whether the connection is still registered.
func (c *Channel) Tie(upgrade func() (interface{}, bool)) {
	c.tie = upgrade
	c.tied = true
}

func (c *Channel) SetReadCallback(cb ReadEventHandler) { c.readCallback = cb }
func (c *Channel) SetWriteCallback(cb func())          { c.writeCallback = cb }
func (c *Channel) SetCloseCallback(cb func())          { c.closeCallback = cb }
func (c *Channel) SetErrorCallback(cb func())          { c.errorCallback = cb }

func (c *Channel) EnableReading() {
	c.events |= evRead
	c.update()
}

func (c *Channel) DisableReading() {
	c.events &^= evRead
	c.update()
}

func (c *Channel) EnableWriting() {
	c.events |= evWrite
	c.update()
}

func (c *Channel) DisableWriting() {
	c.events &^= evWrite
	c.update()
}

func (c *Channel) DisableAll() {
	c.events = evNone
	c.update()
}

func (c *Channel) IsWriting() bool { return c.events&evWrite != 0 }
func (c *Channel) IsReading() bool { return c.events&evRead != 0 }
func (c *Channel) IsNoneEvent() bool { return c.events == evNone }

func (c *Channel) update() {
	c.addedToLoop = true
	c.loop.poller.updateChannel(c)
}

// Remove detaches the Channel from its loop's Poller. Idempotent per the
// spec's connectDestroyed contract.
func (c *Channel) Remove() {
	if !c.addedToLoop {
		return
	}
	c.addedToLoop = false
	c.loop.poller.removeChannel(c)
}

// setRevents records what the Poller observed this iteration; called only
// from the owning loop's thread between poll() and dispatch.
func (c *Channel) setRevents(revents uint32) { c.revents = revents }

// HandleEvent dispatches this Channel's revents, upgrading the weak tie
// first and skipping entirely if the owner is gone. Every check below runs
// in sequence -- hangup without pending read, then error, then read, then
// write -- none of them exclusive of the next, matching spec 4.2.
func (c *Channel) HandleEvent(receiveTime time.Time) {
	if c.tied {
		if _, alive := c.tie(); !alive {
			return
		}
	}
	c.eventHandling = true
	defer func() { c.eventHandling = false }()

	if c.revents&unix.EPOLLHUP != 0 && c.revents&unix.EPOLLIN == 0 {
		if c.closeCallback != nil {
			c.closeCallback()
		}
	}
	if c.revents&unix.EPOLLERR != 0 {
		if c.errorCallback != nil {
			c.errorCallback()
		}
	}
	if c.revents&uint32(evRead|unix.EPOLLRDHUP) != 0 {
		if c.readCallback != nil {
			c.readCallback(receiveTime)
		}
	}
	if c.revents&uint32(evWrite) != 0 {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
