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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_TimerQueue_AddTimerFiresOnce(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	go loop.Loop()
	defer func() {
		loop.Quit()
		loop.shutdown()
	}()

	var fires int32
	done := make(chan struct{})
	loop.timerQueue.AddTimer(func() {
		atomic.AddInt32(&fires, 1)
		close(done)
	}, time.Now().Add(5*time.Millisecond), 0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fires))
}

func Test_TimerQueue_RepeatingTimerFiresMultipleTimes(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	go loop.Loop()
	defer func() {
		loop.Quit()
		loop.shutdown()
	}()

	var fires int32
	loop.timerQueue.AddTimer(func() {
		atomic.AddInt32(&fires, 1)
	}, time.Now().Add(5*time.Millisecond), 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&fires), int32(3))
}

func Test_TimerQueue_CancelBeforeFirePreventsCallback(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	go loop.Loop()
	defer func() {
		loop.Quit()
		loop.shutdown()
	}()

	var fires int32
	id := loop.timerQueue.AddTimer(func() {
		atomic.AddInt32(&fires, 1)
	}, time.Now().Add(30*time.Millisecond), 0)
	loop.timerQueue.Cancel(id)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fires))
}

func Test_TimerQueue_CancelZeroIDIsNoop(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.shutdown()

	var id TimerID
	loop.timerQueue.Cancel(id)
}
