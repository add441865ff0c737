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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_EventLoop_QueueInLoopRunsOnLoopThread(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)

	go loop.Loop()

	var ran bool
	var wg sync.WaitGroup
	wg.Add(1)
	loop.queueInLoop(func() {
		ran = true
		assert.True(t, loop.isInLoopThread())
		wg.Done()
	})
	wg.Wait()
	assert.True(t, ran)

	loop.Quit()
	loop.shutdown()
}

func Test_EventLoop_RunAfterFiresTimer(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	go loop.Loop()

	fired := make(chan struct{})
	loop.RunAfter(10*time.Millisecond, func() {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	loop.Quit()
	loop.shutdown()
}

func Test_EventLoop_CancelDuringOwnCallbackSkipsReschedule(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	go loop.Loop()

	var fires int32
	fireCh := make(chan struct{}, 4)
	var id TimerID
	id = loop.timerQueue.AddTimer(func() {
		atomic.AddInt32(&fires, 1)
		loop.Cancel(id)
		fireCh <- struct{}{}
	}, time.Now().Add(5*time.Millisecond), 5*time.Millisecond)

	<-fireCh
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fires))

	loop.Quit()
	loop.shutdown()
}
