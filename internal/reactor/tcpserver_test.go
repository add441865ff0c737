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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Test_TCPServer_Echo drives scenario S1: a client connects, sends a
// message, and the server echoes it back unchanged on the same
// connection, exercising Acceptor -> EventLoopThreadPool ->
// TCPConnection end to end over a real loopback socket.
func Test_TCPServer_Echo(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	go loop.Loop()
	defer loop.Quit()

	addr, err := NewInetAddress("127.0.0.1", 0)
	require.NoError(t, err)

	srv, err := NewTCPServer(loop, addr, "echo-test", WithThreadNum(1))
	require.NoError(t, err)
	srv.MessageCallback = func(conn *TCPConnection, buf *Buffer, _ time.Time) {
		conn.Send(buf.RetrieveAllBytes())
	}
	require.NoError(t, srv.Start())

	// The acceptor picked an ephemeral port; read it back off the listening fd.
	laddr := localAddr(srv.acceptor.listenFd)

	conn, err := net.DialTimeout("tcp", laddr.String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))

	srv.Stop()
}
