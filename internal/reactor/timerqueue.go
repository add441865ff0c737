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
	"os"
	"time"

	"github.com/petar/GoLLRB/llrb"
	"golang.org/x/sys/unix"

	"netreactor/pkg/logging"
	"netreactor/pkg/stats"
)

// Less makes *timer an llrb.Item, ordered by (expireAt, sequence) exactly
// as the teacher's core/message.go orders its timeoutTree entries.
func (t *timer) Less(than llrb.Item) bool {
	return t.less(than.(*timer))
}

// timerQueue owns the sorted set of pending timers for one EventLoop plus
// the per-loop timerfd that wakes the poller when the earliest expiration
// changes. All methods except AddTimer/Cancel must run on the
// owning loop thread; those two are thread-safe and hop onto the loop.
type timerQueue struct {
	loop       *EventLoop
	timerFd    int
	timerChan  *Channel
	tree       *llrb.LLRB
	byID       map[int64]*timer
	callingExpired bool
	canceledDuringCall map[int64]bool
}

func newTimerQueue(loop *EventLoop) (*timerQueue, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, os.NewSyscallError("timerfd_create", err)
	}
	tq := &timerQueue{
		loop:    loop,
		timerFd: fd,
		tree:    llrb.New(),
		byID:    make(map[int64]*timer),
	}
	tq.timerChan = NewChannel(loop, fd)
	tq.timerChan.SetReadCallback(tq.handleExpired)
	tq.timerChan.EnableReading()
	return tq, nil
}

func (tq *timerQueue) close() {
	tq.timerChan.DisableAll()
	tq.timerChan.Remove()
	closeFd(tq.timerFd)
}

// AddTimer schedules cb to run at when, repeating every interval if
// interval > 0. Thread-safe: the actual insertion is posted to the loop.
func (tq *timerQueue) AddTimer(cb TimerCallback, when time.Time, interval time.Duration) TimerID {
	t := newTimer(cb, when, interval)
	id := TimerID{sequence: t.sequence, expireAt: when}
	tq.loop.runInLoop(func() {
		tq.insertInLoop(t)
	})
	return id
}

// Cancel removes the timer identified by id, if still pending. If called
// from within that timer's own callback, the cancellation is recorded so
// the (otherwise-repeating) timer is not rescheduled.
func (tq *timerQueue) Cancel(id TimerID) {
	if id.IsZero() {
		return
	}
	tq.loop.runInLoop(func() {
		if tq.callingExpired {
			tq.canceledDuringCall[id.sequence] = true
		}
		if t, ok := tq.byID[id.sequence]; ok {
			tq.tree.Delete(t)
			delete(tq.byID, id.sequence)
		}
	})
}

func (tq *timerQueue) insertInLoop(t *timer) {
	earliestChanged := tq.tree.Len() == 0
	if min := tq.tree.Min(); min != nil {
		if t.less(min.(*timer)) {
			earliestChanged = true
		}
	}
	tq.tree.InsertNoReplace(t)
	tq.byID[t.sequence] = t
	stats.Global.TimerQueueDepth.WithLabelValues(tq.loop.Name()).Set(float64(tq.tree.Len()))
	if earliestChanged {
		tq.rearm(t.expireAt)
	}
}

func (tq *timerQueue) rearm(when time.Time) {
	d := time.Until(when)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	spec := &unix.ItimerSpec{
		Value: unix.NsecToTimespec(d.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(tq.timerFd, 0, spec, nil); err != nil {
		logging.Errorf("timerfd_settime: %v", err)
	}
}

// handleExpired fires on the loop thread when the timerfd becomes
// readable: it extracts every timer with expireAt <= now, invokes each
// callback, and reinserts repeating timers with expireAt = now + interval.
func (tq *timerQueue) handleExpired(now time.Time) {
	var buf [8]byte
	unix.Read(tq.timerFd, buf[:])

	expired := tq.popExpired(now)
	stats.Global.TimerFires.WithLabelValues(tq.loop.Name()).Add(float64(len(expired)))

	tq.callingExpired = true
	tq.canceledDuringCall = make(map[int64]bool)
	for _, t := range expired {
		t.callback()
	}
	tq.callingExpired = false

	for _, t := range expired {
		if t.interval > 0 && !tq.canceledDuringCall[t.sequence] {
			t.restart(now)
			tq.tree.InsertNoReplace(t)
			tq.byID[t.sequence] = t
		} else {
			delete(tq.byID, t.sequence)
		}
	}

	if min := tq.tree.Min(); min != nil {
		tq.rearm(min.(*timer).expireAt)
	}
	stats.Global.TimerQueueDepth.WithLabelValues(tq.loop.Name()).Set(float64(tq.tree.Len()))
}

func (tq *timerQueue) popExpired(now time.Time) []*timer {
	sentinel := &timer{expireAt: now, sequence: 1<<62 - 1}
	var expired []*timer
	tq.tree.AscendLessThan(sentinel, func(i llrb.Item) bool {
		expired = append(expired, i.(*timer))
		return true
	})
	for _, t := range expired {
		tq.tree.Delete(t)
	}
	return expired
}
