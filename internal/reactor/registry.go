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

// registry.go is the process-wide table of running servers keyed
// by address, the generalized replacement for the teacher's sync.Map-based
// allEngines (core/gnet.go). It uses the teacher's own lock-free concurrent
// map dependency instead of sync.Map.
package reactor

import (
	"github.com/cornelk/hashmap"

	"netreactor/pkg/errors"
)

var registry = hashmap.New()

// Register records a running TCPServer under addr so it can later be
// looked up or stopped by address.
func Register(addr string, server *TCPServer) {
	registry.Set(addr, server)
}

// Unregister forgets addr.
func Unregister(addr string) {
	registry.Del(addr)
}

// Lookup returns the TCPServer registered for addr, if any.
func Lookup(addr string) (*TCPServer, bool) {
	v, ok := registry.Get(addr)
	if !ok {
		return nil, false
	}
	s, ok := v.(*TCPServer)
	return s, ok
}

// Stop looks up the server registered for addr and stops it, mirroring
// the teacher's gnet.Stop(ctx, protoAddr) package-level helper.
func Stop(addr string) error {
	s, ok := Lookup(addr)
	if !ok {
		return errors.ErrEngineInShutdown
	}
	s.Stop()
	Unregister(addr)
	return nil
}
