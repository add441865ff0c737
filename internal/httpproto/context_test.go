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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netreactor/internal/reactor"
)

func Test_Context_ParsesFullRequestLineHeadersAndBody(t *testing.T) {
	buf := reactor.NewBuffer()
	buf.AppendString("POST /submit?id=3 HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\nhello")

	ctx := NewContext()
	ok := ctx.ParseRequest(buf, time.Now())
	require.True(t, ok)
	require.True(t, ctx.GotAll())

	req := ctx.Request()
	assert.Equal(t, MethodPost, req.Method())
	assert.Equal(t, "POST", req.Method().String())
	assert.Equal(t, "/submit", req.Path())
	assert.Equal(t, "id=3", req.Query())
	assert.Equal(t, VersionHTTP11, req.Version())
	assert.Equal(t, "example.com", req.Header("Host"))
	assert.Equal(t, "close", req.Header("Connection"))
	assert.Equal(t, "hello", string(req.Body()))
}

// Test_Context_MalformedRequestLine covers scenario S4: an unrecognized
// method fails the parse so the caller can respond 400.
func Test_Context_MalformedRequestLine(t *testing.T) {
	buf := reactor.NewBuffer()
	buf.AppendString("FOO /x HTTP/1.1\r\n\r\n")

	ctx := NewContext()
	ok := ctx.ParseRequest(buf, time.Now())
	assert.False(t, ok)
}

func Test_Context_RejectsUnknownVersion(t *testing.T) {
	buf := reactor.NewBuffer()
	buf.AppendString("GET / HTTP/2.0\r\n\r\n")

	ctx := NewContext()
	ok := ctx.ParseRequest(buf, time.Now())
	assert.False(t, ok)
}

func Test_Context_ResetAllowsNextRequestOnSameConnection(t *testing.T) {
	buf := reactor.NewBuffer()
	buf.AppendString("GET /a HTTP/1.1\r\n\r\n")
	ctx := NewContext()
	require.True(t, ctx.ParseRequest(buf, time.Now()))
	assert.Equal(t, "/a", ctx.Request().Path())

	ctx.Reset()
	buf.AppendString("GET /b HTTP/1.1\r\n\r\n")
	require.True(t, ctx.ParseRequest(buf, time.Now()))
	assert.Equal(t, "/b", ctx.Request().Path())
}

func Test_Context_IncompleteRequestLineWaitsForMoreData(t *testing.T) {
	buf := reactor.NewBuffer()
	buf.AppendString("GET /partial")

	ctx := NewContext()
	ok := ctx.ParseRequest(buf, time.Now())
	assert.True(t, ok)
	assert.False(t, ctx.GotAll())
}

func Test_Method_StringIsAccurateForEveryMethod(t *testing.T) {
	assert.Equal(t, "GET", MethodGet.String())
	assert.Equal(t, "POST", MethodPost.String())
	assert.Equal(t, "HEAD", MethodHead.String())
	assert.Equal(t, "PUT", MethodPut.String())
	assert.Equal(t, "DELETE", MethodDelete.String())
}
