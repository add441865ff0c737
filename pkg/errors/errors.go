// Copyright (c) 2019 Andy Pan
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

package errors

import "errors"

var (
	// ErrEngineShutdown occurs when the loop's owning engine is closing.
	ErrEngineShutdown = errors.New("event-loop is going to be shut down")
	// ErrEngineInShutdown occurs when attempting to shut a server down more than once.
	ErrEngineInShutdown = errors.New("server is already in shutdown")
	// ErrAcceptSocket occurs when the acceptor does not accept the new connection properly.
	ErrAcceptSocket = errors.New("accept a new connection error")
	// ErrUnsupportedProtocol occurs when trying to use a protocol that is not supported.
	ErrUnsupportedProtocol = errors.New("only tcp/tcp4/tcp6 are supported")
	// ErrUnsupportedOp occurs when calling a method that has not been implemented yet.
	ErrUnsupportedOp = errors.New("unsupported operation")
	// ErrNegativeSize occurs when trying to pass a negative size to a buffer.
	ErrNegativeSize = errors.New("negative size is invalid")
	// ErrBufferFull occurs when Peek/Next is asked for more bytes than the buffer holds.
	ErrBufferFull = errors.New("buffer does not have enough readable bytes")

	// ErrConnectionClosed occurs when an operation targets an already-closed connection.
	ErrConnectionClosed = errors.New("connection already closed")
	// ErrWouldResurrect occurs when forceCloseWithDelay fires for a connection already reused by a new fd.
	ErrWouldResurrect = errors.New("stale forced close ignored, connection fd reused")

	// ErrInvalidRequestLine occurs when the HTTP request line fails to parse.
	ErrInvalidRequestLine = errors.New("malformed HTTP request line")
	// ErrInvalidMethod occurs when the HTTP method token is not one of the subset the core supports.
	ErrInvalidMethod = errors.New("unsupported HTTP method")
	// ErrInvalidVersion occurs when the HTTP version token is neither HTTP/1.0 nor HTTP/1.1.
	ErrInvalidVersion = errors.New("unsupported HTTP version")
)
