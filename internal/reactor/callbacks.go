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
	"time"

	"netreactor/pkg/logging"
)

// ConnectionCallback fires at both up and down transitions (spec 6).
type ConnectionCallback func(conn *TCPConnection)

// MessageCallback fires whenever new bytes arrive; the callback may
// consume any prefix of inputBuffer.
type MessageCallback func(conn *TCPConnection, inputBuffer *Buffer, receiveTime time.Time)

// WriteCompleteCallback fires after the output buffer empties due to a write.
type WriteCompleteCallback func(conn *TCPConnection)

// HighWaterMarkCallback fires once each time the output buffer grows
// across threshold from below.
type HighWaterMarkCallback func(conn *TCPConnection, size int)

// CloseCallback is internal-use only: fired after ConnectionCallback(down)
// so the owning TCPServer/TCPClient can drop the connection from its map.
type CloseCallback func(conn *TCPConnection)

func defaultConnectionCallback(conn *TCPConnection) {
	logging.Debugf("connection %s -> %s state=%v", conn.localAddr, conn.peerAddr, conn.State())
}

func defaultMessageCallback(conn *TCPConnection, buf *Buffer, _ time.Time) {
	buf.RetrieveAll()
}
