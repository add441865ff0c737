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

package httpproto

import (
	"time"

	"github.com/valyala/bytebufferpool"

	"netreactor/internal/reactor"
	"netreactor/pkg/logging"
)

// Handler answers a parsed request by filling in resp. The default
// handler responds 404, matching detail::defaultHttpCallback.
type Handler func(req *Request, resp *Response)

func defaultHandler(_ *Request, resp *Response) {
	resp.SetStatusCode(StatusNotFound)
	resp.SetStatusMessage("Not Found")
	resp.SetCloseConnection(true)
}

// Server rides internal/reactor's TCPServer exactly the way the
// teacher's app/http/src/HttpServer.cc rides TCPServer: it wires
// ConnectionCallback/MessageCallback to install and drive a Context per
// connection, never touching the Poller or EventLoop directly.
type Server struct {
	inner   *reactor.TCPServer
	handler Handler
}

// NewServer wraps an already-constructed TCPServer, installing the HTTP
// connection/message callbacks. Call SetHandler before Start if the
// default 404 handler is not wanted.
func NewServer(inner *reactor.TCPServer) *Server {
	s := &Server{inner: inner, handler: defaultHandler}
	inner.ConnectionCallback = s.onConnection
	inner.MessageCallback = s.onMessage
	return s
}

// SetHandler installs the request handler.
func (s *Server) SetHandler(h Handler) {
	if h != nil {
		s.handler = h
	}
}

// Start begins listening.
func (s *Server) Start() error { return s.inner.Start() }

func (s *Server) onConnection(conn *reactor.TCPConnection) {
	if conn.Connected() {
		conn.SetContext(NewContext())
	}
}

func (s *Server) onMessage(conn *reactor.TCPConnection, buf *reactor.Buffer, receiveTime time.Time) {
	ctx, ok := conn.Context().(*Context)
	if !ok || ctx == nil {
		logging.Errorf("httpproto: connection %s has no parser context", conn.Name())
		conn.ForceClose()
		return
	}

	if !ctx.ParseRequest(buf, receiveTime) {
		conn.Send([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
		conn.Shutdown()
		return
	}

	if ctx.GotAll() {
		s.onRequest(conn, ctx.Request())
		ctx.Reset()
	}
}

// onRequest applies the Connection/Keep-Alive decision precedence of
// spec 4.11 / 6: close when the request says Connection: close, or the
// request is HTTP/1.0 without an explicit Connection: Keep-Alive.
func (s *Server) onRequest(conn *reactor.TCPConnection, req *Request) {
	connHeader := req.Header("Connection")
	shouldClose := connHeader == "close" ||
		(req.Version() == VersionHTTP10 && connHeader != "Keep-Alive")

	resp := NewResponse(shouldClose)
	s.handler(req, resp)

	out := resp.Bytes()
	conn.Send(out.Bytes())
	bytebufferpool.Put(out)

	if resp.CloseConnection() {
		conn.Shutdown()
	}
}
