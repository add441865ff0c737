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
	"fmt"

	"github.com/valyala/bytebufferpool"
)

// StatusCode is one of the response codes the server exposes (spec 4.11
// names 200/301/400/404; others are still representable).
type StatusCode int

const (
	StatusOK                 StatusCode = 200
	StatusMovedPermanently   StatusCode = 301
	StatusBadRequest         StatusCode = 400
	StatusNotFound           StatusCode = 404
)

// Response is built by a request handler and serialized onto the wire.
type Response struct {
	statusCode      StatusCode
	statusMessage   string
	headers         map[string]string
	closeConnection bool
	body            []byte
}

// NewResponse starts a response that will close the connection after
// flush iff close is true, mirroring HttpResponse(bool close).
func NewResponse(close bool) *Response {
	return &Response{headers: make(map[string]string), closeConnection: close}
}

func (r *Response) SetStatusCode(code StatusCode)       { r.statusCode = code }
func (r *Response) SetStatusMessage(msg string)         { r.statusMessage = msg }
func (r *Response) SetCloseConnection(on bool)          { r.closeConnection = on }
func (r *Response) CloseConnection() bool               { return r.closeConnection }
func (r *Response) SetContentType(contentType string)   { r.headers["Content-Type"] = contentType }
func (r *Response) AddHeader(key, value string)         { r.headers[key] = value }
func (r *Response) SetBody(body []byte)                 { r.body = body }

// Bytes serializes the status line, headers, Content-Length and body
// into a pooled buffer per spec 4.11's wire layout. The caller must
// return the buffer to the pool once the bytes have been copied onto
// the connection's output buffer.
func (r *Response) Bytes() *bytebufferpool.ByteBuffer {
	buf := bytebufferpool.Get()
	fmt.Fprintf(buf, "HTTP/1.1 %d %s\r\n", r.statusCode, r.statusMessage)
	if r.closeConnection {
		buf.WriteString("Connection: close\r\n")
	} else {
		buf.WriteString("Connection: Keep-Alive\r\n")
	}
	fmt.Fprintf(buf, "Content-Length: %d\r\n", len(r.body))
	for k, v := range r.headers {
		fmt.Fprintf(buf, "%s: %s\r\n", k, v)
	}
	buf.WriteString("\r\n")
	buf.Write(r.body)
	return buf
}
