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

func Test_Channel_EnableDisableTogglesInterestMask(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.shutdown()

	c := NewChannel(loop, 0)
	assert.True(t, c.IsNoneEvent())

	c.EnableReading()
	assert.True(t, c.IsReading())
	assert.False(t, c.IsWriting())

	c.EnableWriting()
	assert.True(t, c.IsWriting())

	c.DisableWriting()
	assert.False(t, c.IsWriting())
	assert.True(t, c.IsReading())

	c.DisableAll()
	assert.True(t, c.IsNoneEvent())
}

func Test_Channel_HandleEventFiresBothReadAndWrite(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.shutdown()

	c := NewChannel(loop, 0)
	var readFired, writeFired bool
	c.SetReadCallback(func(time.Time) { readFired = true })
	c.SetWriteCallback(func() { writeFired = true })

	c.setRevents(uint32(evRead) | uint32(evWrite))
	c.HandleEvent(time.Now())

	assert.True(t, readFired)
	assert.True(t, writeFired)
}

func Test_Channel_HangupWithoutPendingReadInvokesClose(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.shutdown()

	c := NewChannel(loop, 0)
	var closed, read bool
	c.SetCloseCallback(func() { closed = true })
	c.SetReadCallback(func(time.Time) { read = true })

	c.setRevents(unix.EPOLLHUP)
	c.HandleEvent(time.Now())

	assert.True(t, closed)
	assert.False(t, read)
}

func Test_Channel_HangupFallsThroughToWriteCallback(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.shutdown()

	c := NewChannel(loop, 0)
	var closed, wrote bool
	c.SetCloseCallback(func() { closed = true })
	c.SetWriteCallback(func() { wrote = true })

	c.setRevents(unix.EPOLLHUP | uint32(evWrite))
	c.HandleEvent(time.Now())

	assert.True(t, closed)
	assert.True(t, wrote)
}

func Test_Channel_ErrorFiresEvenWhenRDHUPAlsoSet(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.shutdown()

	c := NewChannel(loop, 0)
	var errored bool
	c.SetErrorCallback(func() { errored = true })

	c.setRevents(unix.EPOLLERR | unix.EPOLLRDHUP)
	c.HandleEvent(time.Now())

	assert.True(t, errored)
}

func Test_Channel_TieSkipsDispatchWhenOwnerGone(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.shutdown()

	c := NewChannel(loop, 0)
	var fired bool
	c.SetReadCallback(func(time.Time) { fired = true })
	c.Tie(func() (interface{}, bool) { return nil, false })

	c.setRevents(uint32(evRead))
	c.HandleEvent(time.Now())

	assert.False(t, fired)
}

func Test_Channel_RemoveIsIdempotent(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.shutdown()

	c := NewChannel(loop, 0)
	c.Remove()
	c.Remove()
}
