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
	"bytes"
	"strings"
	"time"

	"netreactor/internal/reactor"
)

type parseState int

const (
	expectRequestLine parseState = iota
	expectHeaders
	expectBody
	gotAll
)

// Context is the per-connection parser state machine of spec 4.11,
// stored in each TCPConnection's Context() and reset after every
// complete request.
type Context struct {
	state   parseState
	request *Request
}

// NewContext returns a fresh parser ready for a request line.
func NewContext() *Context {
	return &Context{state: expectRequestLine, request: newRequest()}
}

// GotAll reports whether a full request has been parsed.
func (c *Context) GotAll() bool { return c.state == gotAll }

// Request returns the request parsed so far (complete once GotAll).
func (c *Context) Request() *Request { return c.request }

// Reset prepares the context for the next request on the same
// connection (HTTP Keep-Alive pipelining).
func (c *Context) Reset() {
	c.state = expectRequestLine
	c.request = newRequest()
}

// ParseRequest consumes as much of buf as forms complete lines/body,
// advancing state. It returns false only when the request line itself
// is malformed; the caller must then respond 400 and shut the
// connection down per spec 4.11.
func (c *Context) ParseRequest(buf *reactor.Buffer, receiveTime time.Time) bool {
	ok := true
	for hasMore := true; hasMore; {
		switch c.state {
		case expectRequestLine:
			idx := buf.FindCRLF()
			if idx < 0 {
				hasMore = false
				break
			}
			line := buf.Peek()[:idx]
			ok = c.processRequestLine(line)
			if ok {
				c.request.receiveTime = receiveTime
				buf.Retrieve(idx + 2)
				c.state = expectHeaders
			} else {
				hasMore = false
			}
		case expectHeaders:
			idx := buf.FindCRLF()
			if idx < 0 {
				hasMore = false
				break
			}
			line := buf.Peek()[:idx]
			if colon := bytes.IndexByte(line, ':'); colon >= 0 {
				field := string(line[:colon])
				value := strings.TrimSpace(string(line[colon+1:]))
				c.request.headers[field] = value
			} else {
				c.state = expectBody
			}
			buf.Retrieve(idx + 2)
		case expectBody:
			if buf.Readable() > 0 {
				body := make([]byte, buf.Readable())
				copy(body, buf.Peek())
				buf.RetrieveAll()
				c.request.body = body
			}
			c.state = gotAll
			hasMore = false
		}
	}
	return ok
}

// processRequestLine splits "METHOD PATH[?QUERY] HTTP/1.x" and validates
// the method and version, mirroring HttpContext::processRequestLine.
func (c *Context) processRequestLine(line []byte) bool {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 < 0 {
		return false
	}
	method := parseMethod(string(line[:sp1]))
	if method == MethodInvalid {
		return false
	}
	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 < 0 {
		return false
	}
	pathAndQuery := rest[:sp2]
	versionTok := rest[sp2+1:]

	if q := bytes.IndexByte(pathAndQuery, '?'); q >= 0 {
		c.request.path = string(pathAndQuery[:q])
		c.request.query = string(pathAndQuery[q+1:])
	} else {
		c.request.path = string(pathAndQuery)
	}

	if len(versionTok) != 8 || !bytes.Equal(versionTok[:7], []byte("HTTP/1.")) {
		return false
	}
	switch versionTok[7] {
	case '1':
		c.request.version = VersionHTTP11
	case '0':
		c.request.version = VersionHTTP10
	default:
		return false
	}
	c.request.method = method
	return true
}
