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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// newConnectedPair returns a TCPConnection bound to one end of a connected
// AF_UNIX stream socket pair, plus the raw peer fd for the test to drive
// directly with unix.Read/unix.Write.
func newConnectedPair(t *testing.T, loop *EventLoop, highWaterMark int) (*TCPConnection, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))

	conn := NewTCPConnection(loop, "test-conn", fds[0], InetAddress{}, InetAddress{}, highWaterMark, "test")
	return conn, fds[1]
}

func Test_TCPConnection_SendInLoopWritesDirectlyWhenIdle(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	go loop.Loop()
	defer func() {
		loop.Quit()
		loop.shutdown()
	}()

	conn, peerFd := newConnectedPair(t, loop, 64<<10)
	defer closeFd(peerFd)

	loop.runInLoop(conn.connectEstablished)
	require.Eventually(t, func() bool { return conn.Connected() }, time.Second, time.Millisecond)

	conn.Send([]byte("hello"))

	buf := make([]byte, 5)
	require.Eventually(t, func() bool {
		n, _ := unix.Read(peerFd, buf)
		return n == 5
	}, time.Second, time.Millisecond)
	assert.Equal(t, "hello", string(buf))
	assert.Equal(t, 0, conn.OutboundBuffered())
}

func Test_TCPConnection_HighWaterMarkCallbackFiresOnceThresholdCrossed(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	go loop.Loop()
	defer func() {
		loop.Quit()
		loop.shutdown()
	}()

	conn, peerFd := newConnectedPair(t, loop, 8)
	defer closeFd(peerFd)

	fired := make(chan int, 4)
	conn.SetHighWaterMarkCallback(func(c *TCPConnection, bytes int) {
		fired <- bytes
	}, 8)

	loop.runInLoop(conn.connectEstablished)
	require.Eventually(t, func() bool { return conn.Connected() }, time.Second, time.Millisecond)

	// Enabling write interest first makes sendInLoop skip its direct write,
	// so the whole payload is appended to outputBuffer and crosses the mark.
	loop.runInLoop(func() {
		conn.channel.EnableWriting()
	})
	conn.Send(make([]byte, 16))

	select {
	case bytes := <-fired:
		assert.GreaterOrEqual(t, bytes, 8)
	case <-time.After(time.Second):
		t.Fatal("high water mark callback never fired")
	}
}

func Test_TCPConnection_ForceCloseIsIdempotent(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	go loop.Loop()
	defer func() {
		loop.Quit()
		loop.shutdown()
	}()

	conn, peerFd := newConnectedPair(t, loop, 64<<10)
	defer closeFd(peerFd)

	loop.runInLoop(conn.connectEstablished)
	require.Eventually(t, func() bool { return conn.Connected() }, time.Second, time.Millisecond)

	conn.ForceClose()
	conn.ForceClose()

	require.Eventually(t, func() bool { return conn.State() != StateConnected }, time.Second, time.Millisecond)
}

func Test_TCPConnection_StateStringIsHumanReadable(t *testing.T) {
	assert.Equal(t, "Connecting", StateConnecting.String())
	assert.Equal(t, "Connected", StateConnected.String())
	assert.Equal(t, "Disconnecting", StateDisconnecting.String())
	assert.Equal(t, "Disconnected", StateDisconnected.String())
}
