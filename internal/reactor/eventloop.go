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
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"netreactor/pkg/logging"
	"netreactor/pkg/stats"
)

const pollTimeoutMs = 10000

// EventLoop runs forever on the OS thread that calls Loop, cooperatively
// multiplexing every Channel registered with its Poller plus a sorted set
// of Timers. Every method except the ones explicitly documented as
// cross-thread-safe must be called on the loop's own goroutine; violation
// is a programming error and is asserted at entry (spec 4.5 / 5).
type EventLoop struct {
	threadID int64 // goroutine-affinity token, set in Loop()
	name     string

	poller     *poller
	timerQueue *timerQueue

	wakeupFd      int
	wakeupChannel *Channel

	activeChannels []*Channel

	mu             sync.Mutex
	pending        []func()
	callingPending int32

	quitFlag int32
	running  int32
}

// NewEventLoop constructs an EventLoop. It does not start polling until
// Loop is called on the goroutine meant to own it.
func NewEventLoop() (*EventLoop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	wakeupFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		p.close()
		return nil, os.NewSyscallError("eventfd", err)
	}
	loop := &EventLoop{poller: p, wakeupFd: wakeupFd}
	loop.wakeupChannel = NewChannel(loop, wakeupFd)
	loop.wakeupChannel.SetReadCallback(loop.handleWakeup)
	loop.wakeupChannel.EnableReading()

	tq, err := newTimerQueue(loop)
	if err != nil {
		closeFd(wakeupFd)
		p.close()
		return nil, err
	}
	loop.timerQueue = tq
	return loop, nil
}

// assertInLoopThread aborts the process on violation, matching the spec's
// fail-fast policy for thread-affinity programming errors.
func (l *EventLoop) assertInLoopThread() {
	if !l.isInLoopThread() {
		logging.Errorf("EventLoop used from a foreign goroutine; aborting")
		panic("reactor: EventLoop used outside its owning goroutine")
	}
}

func (l *EventLoop) isInLoopThread() bool {
	return atomic.LoadInt64(&l.threadID) == int64(unix.Gettid())
}

// SetName labels the loop for metrics and logs, e.g. "echo-3".
func (l *EventLoop) SetName(name string) { l.name = name }

// Name returns the loop's metrics label, defaulting to its thread id
// once running.
func (l *EventLoop) Name() string {
	if l.name != "" {
		return l.name
	}
	return fmt.Sprintf("tid-%d", atomic.LoadInt64(&l.threadID))
}

// Loop runs the reactor forever on the calling goroutine: it locks the
// goroutine to its OS thread (mirroring the teacher's runtime.LockOSThread
// in reactor_default_linux.go's eventloop.run), then repeatedly polls,
// dispatches ready Channels with the poll return timestamp, and finally
// drains the pending-task queue outside of Channel dispatch.
func (l *EventLoop) Loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	atomic.StoreInt64(&l.threadID, int64(unix.Gettid()))
	atomic.StoreInt32(&l.running, 1)

	for atomic.LoadInt32(&l.quitFlag) == 0 {
		l.activeChannels = l.activeChannels[:0]
		pollStart := time.Now()
		receiveTime, err := l.poller.poll(pollTimeoutMs, &l.activeChannels)
		stats.Global.LoopLatency.WithLabelValues(l.Name()).Observe(float64(time.Since(pollStart).Microseconds()) / 1000)
		if err != nil {
			logging.Errorf("poller error: %v", err)
			return
		}
		for _, ch := range l.activeChannels {
			ch.HandleEvent(receiveTime)
		}
		l.doPendingTasks()
	}
	atomic.StoreInt32(&l.running, 0)
}

// Quit sets the quit flag and wakes the loop if called from another
// goroutine so the poll() call returns promptly.
func (l *EventLoop) Quit() {
	atomic.StoreInt32(&l.quitFlag, 1)
	if !l.isInLoopThread() {
		l.wakeup()
	}
}

// runInLoop runs f immediately if called on the owning goroutine,
// otherwise queues it via queueInLoop.
func (l *EventLoop) runInLoop(f func()) {
	if l.isInLoopThread() {
		f()
		return
	}
	l.queueInLoop(f)
}

// queueInLoop appends f to the pending queue and wakes the loop unless the
// call is on the loop's own thread and the loop is not currently draining
// the queue (a task queued from inside drain still needs a fresh wakeup so
// it runs on the very next iteration rather than waiting for readiness).
func (l *EventLoop) queueInLoop(f func()) {
	l.mu.Lock()
	l.pending = append(l.pending, f)
	l.mu.Unlock()

	if !l.isInLoopThread() || atomic.LoadInt32(&l.callingPending) == 1 {
		l.wakeup()
	}
}

func (l *EventLoop) doPendingTasks() {
	l.mu.Lock()
	tasks := l.pending
	l.pending = nil
	l.mu.Unlock()

	atomic.StoreInt32(&l.callingPending, 1)
	for _, f := range tasks {
		f()
	}
	atomic.StoreInt32(&l.callingPending, 0)
}

func (l *EventLoop) wakeup() {
	var one [8]byte
	one[7] = 1
	if _, err := unix.Write(l.wakeupFd, one[:]); err != nil {
		logging.Errorf("EventLoop wakeup write: %v", err)
	}
}

func (l *EventLoop) handleWakeup(time.Time) {
	var buf [8]byte
	if _, err := unix.Read(l.wakeupFd, buf[:]); err != nil && err != unix.EAGAIN {
		logging.Errorf("EventLoop wakeup read: %v", err)
	}
}

// RunAt schedules cb to run once at when.
func (l *EventLoop) RunAt(when time.Time, cb TimerCallback) TimerID {
	return l.timerQueue.AddTimer(cb, when, 0)
}

// RunAfter schedules cb to run once after delay.
func (l *EventLoop) RunAfter(delay time.Duration, cb TimerCallback) TimerID {
	return l.RunAt(time.Now().Add(delay), cb)
}

// RunEvery schedules cb to run every interval, starting after interval.
func (l *EventLoop) RunEvery(interval time.Duration, cb TimerCallback) TimerID {
	return l.timerQueue.AddTimer(cb, time.Now().Add(interval), interval)
}

// Cancel cancels a previously scheduled timer.
func (l *EventLoop) Cancel(id TimerID) {
	l.timerQueue.Cancel(id)
}

// shutdown releases the loop's own descriptors; must run after Loop
// returns, on the same goroutine that owned the loop.
func (l *EventLoop) shutdown() {
	l.timerQueue.close()
	l.wakeupChannel.DisableAll()
	l.wakeupChannel.Remove()
	closeFd(l.wakeupFd)
	l.poller.close()
}
