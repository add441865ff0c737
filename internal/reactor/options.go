// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2019 Andy Pan
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

import "time"

// defaultHighWaterMark is the per-connection output-buffer threshold past
// which HighWaterMarkCallback fires (spec 6: default 64 MiB).
const defaultHighWaterMark = 64 << 20

// ReusePortMode selects whether a TCPServer's listening socket sets
// SO_REUSEPORT (spec 6: TCPServer option {NoReusePort, ReusePort}).
type ReusePortMode int

const (
	NoReusePort ReusePortMode = iota
	ReusePort
)

// Option configures a TCPServer or TCPClient.
type Option func(*Options)

// Options holds the configuration recognized by the core (spec 6).
type Options struct {
	ReusePort     ReusePortMode
	ThreadNum     int
	HighWaterMark int
	TCPKeepAlive  time.Duration
	TCPNoDelay    bool
	Retry         bool
	Backlog       int
}

func loadOptions(opts ...Option) *Options {
	o := &Options{
		HighWaterMark: defaultHighWaterMark,
		TCPNoDelay:    true,
		Backlog:       1024,
	}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// WithReusePort sets the SO_REUSEPORT mode for the listening socket.
func WithReusePort(mode ReusePortMode) Option {
	return func(o *Options) { o.ReusePort = mode }
}

// WithThreadNum sets the worker thread count N >= 0; N=0 runs I/O on the
// acceptor loop.
func WithThreadNum(n int) Option {
	return func(o *Options) { o.ThreadNum = n }
}

// WithHighWaterMark overrides the default 64 MiB output-buffer threshold.
func WithHighWaterMark(bytes int) Option {
	return func(o *Options) { o.HighWaterMark = bytes }
}

// WithTCPKeepAlive enables SO_KEEPALIVE with the given idle duration on
// accepted connections.
func WithTCPKeepAlive(d time.Duration) Option {
	return func(o *Options) { o.TCPKeepAlive = d }
}

// WithTCPNoDelay sets the default per-connection TCP_NODELAY state.
func WithTCPNoDelay(on bool) Option {
	return func(o *Options) { o.TCPNoDelay = on }
}

// WithRetry sets the TCPClient retry flag: on connection loss, the
// Connector is restarted.
func WithRetry(on bool) Option {
	return func(o *Options) { o.Retry = on }
}

// WithBacklog overrides the listen() backlog.
func WithBacklog(n int) Option {
	return func(o *Options) { o.Backlog = n }
}
