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
	"sync"
)

// EventLoopThreadPool owns N worker EventLoops, each pinned to its own
// goroutine/OS thread, plus a reference to the base loop that created it
// (the acceptor loop). The teacher's engine is single-loop, so this file
// has no direct file-level precedent there; it follows the thread-start
// handshake style of engine.start()/stop() (mutex+condition variable)
// generalized to N workers, per spec 4.10.
type EventLoopThreadPool struct {
	baseLoop *EventLoop
	name     string

	mu        sync.Mutex
	cond      *sync.Cond
	threadNum int
	started   bool
	workers   []*EventLoop
	next      int
}

// NewEventLoopThreadPool creates a pool bound to baseLoop (the acceptor
// loop); SetThreadNum must be called before Start.
func NewEventLoopThreadPool(baseLoop *EventLoop, name string) *EventLoopThreadPool {
	p := &EventLoopThreadPool{baseLoop: baseLoop, name: name}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// SetThreadNum sets the intended worker count; must be called before Start.
func (p *EventLoopThreadPool) SetThreadNum(n int) {
	p.threadNum = n
}

// Start spawns threadNum worker goroutines, each running its own
// EventLoop, and blocks until every worker has published its loop
// pointer via the mutex+condition-variable handshake. initCb, if
// non-nil, runs on each worker loop's own thread right before it starts
// polling.
func (p *EventLoopThreadPool) Start(initCb func(*EventLoop)) error {
	p.mu.Lock()
	p.started = true
	n := p.threadNum
	p.mu.Unlock()

	for i := 0; i < n; i++ {
		idx := i
		loop, err := NewEventLoop()
		if err != nil {
			return err
		}
		loop.SetName(p.nameFor(idx))
		go func() {
			if initCb != nil {
				initCb(loop)
			}
			p.publishWorker(idx, loop)
			loop.Loop()
		}()
	}

	p.mu.Lock()
	for {
		published := 0
		for _, w := range p.workers {
			if w != nil {
				published++
			}
		}
		if published >= n {
			break
		}
		p.cond.Wait()
	}
	p.mu.Unlock()
	return nil
}

func (p *EventLoopThreadPool) publishWorker(idx int, loop *EventLoop) {
	p.mu.Lock()
	for len(p.workers) <= idx {
		p.workers = append(p.workers, nil)
	}
	p.workers[idx] = loop
	p.cond.Broadcast()
	p.mu.Unlock()
}

// GetNextLoop returns a worker loop in round-robin order, or the base
// loop when threadNum == 0 (I/O runs on the acceptor loop in that case).
// Must be called on the base loop thread.
func (p *EventLoopThreadPool) GetNextLoop() *EventLoop {
	p.baseLoop.assertInLoopThread()
	if len(p.workers) == 0 {
		return p.baseLoop
	}
	loop := p.workers[p.next]
	p.next = (p.next + 1) % len(p.workers)
	return loop
}

// GetLoopForHash returns workers[h % N] for connection affinity, or the
// base loop when there are no workers. Must be called on the base loop
// thread.
func (p *EventLoopThreadPool) GetLoopForHash(h int) *EventLoop {
	p.baseLoop.assertInLoopThread()
	if len(p.workers) == 0 {
		return p.baseLoop
	}
	if h < 0 {
		h = -h
	}
	return p.workers[h%len(p.workers)]
}

// AllLoops returns every worker loop (for shutdown fan-out), excluding the
// base loop.
func (p *EventLoopThreadPool) AllLoops() []*EventLoop {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*EventLoop, len(p.workers))
	copy(out, p.workers)
	return out
}

func (p *EventLoopThreadPool) nameFor(idx int) string {
	return fmt.Sprintf("%s-worker-%d", p.name, idx)
}
