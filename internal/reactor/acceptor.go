// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2021 Andy Pan
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

// Acceptor holds a listening Socket and a Channel watching it for
// readability. On readiness it accepts exactly once per event
// (level-triggered, per the spec's open question #1: the acceptor and
// writer paths are level-triggered by design here). If accept fails with
// EMFILE/ENFILE, it closes a pre-opened idle descriptor, accepts and
// immediately closes the incoming connection, then reopens the idle
// descriptor -- preventing the listener from spinning on EMFILE (spec 4.6).
type Acceptor struct {
	loop       *EventLoop
	listenFd   int
	listenAddr InetAddress
	channel    *Channel
	idleFd     int
	listening  bool

	NewConnectionCallback func(fd int, peer InetAddress)
}

// NewAcceptor creates and binds a listening socket for addr.
func NewAcceptor(loop *EventLoop, addr InetAddress, reusePort bool, backlog int) (*Acceptor, error) {
	fd, err := listenSocket(addr, reusePort, backlog)
	if err != nil {
		return nil, err
	}
	idleFd, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		closeFd(fd)
		return nil, err
	}
	a := &Acceptor{loop: loop, listenFd: fd, listenAddr: addr, idleFd: idleFd}
	a.channel = NewChannel(loop, fd)
	a.channel.SetReadCallback(a.handleRead)
	return a, nil
}

// Listen enables the listening Channel for reading; must run on the
// acceptor's loop thread.
func (a *Acceptor) Listen() {
	a.loop.assertInLoopThread()
	a.listening = true
	a.channel.EnableReading()
}

func (a *Acceptor) handleRead(time.Time) {
	a.loop.assertInLoopThread()
	fd, peer, err := acceptSocket(a.listenFd)
	if err != nil {
		if isTooManyOpenFiles(err) {
			a.handleEMFILE()
			return
		}
		logging.Errorf("acceptor: accept error: %v", err)
		return
	}
	if fd < 0 {
		return
	}
	if a.NewConnectionCallback != nil {
		a.NewConnectionCallback(fd, peer)
	} else {
		closeFd(fd)
	}
}

// handleEMFILE implements the idle-fd escape hatch: free one descriptor by
// closing the idle one, accept-and-immediately-close the pending
// connection (so the peer at least sees an accepted-then-reset socket
// instead of the listener spinning forever on EMFILE), then reopen the
// idle descriptor for next time.
func (a *Acceptor) handleEMFILE() {
	closeFd(a.idleFd)
	fd, _, err := unix.Accept(a.listenFd)
	if err == nil {
		closeFd(fd)
	}
	idleFd, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		logging.Errorf("acceptor: failed to reopen idle descriptor: %v", err)
		return
	}
	a.idleFd = idleFd
}

func isTooManyOpenFiles(err error) bool {
	return errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE)
}

// Close releases the listening and idle descriptors.
func (a *Acceptor) Close() {
	a.channel.DisableAll()
	a.channel.Remove()
	closeFd(a.listenFd)
	closeFd(a.idleFd)
}
