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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Response_SerializesStatusLineHeadersAndBody(t *testing.T) {
	resp := NewResponse(false)
	resp.SetStatusCode(StatusOK)
	resp.SetStatusMessage("OK")
	resp.SetContentType("text/html")
	resp.SetBody([]byte("<html/>"))

	buf := resp.Bytes()
	wire := buf.String()

	assert.True(t, strings.HasPrefix(wire, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, wire, "Connection: Keep-Alive\r\n")
	assert.Contains(t, wire, "Content-Length: 7\r\n")
	assert.Contains(t, wire, "Content-Type: text/html\r\n")
	assert.True(t, strings.HasSuffix(wire, "\r\n\r\n<html/>"))
}

func Test_Response_CloseConnectionSetsConnectionClose(t *testing.T) {
	resp := NewResponse(true)
	resp.SetStatusCode(StatusNotFound)
	resp.SetStatusMessage("Not Found")

	wire := resp.Bytes().String()
	assert.Contains(t, wire, "Connection: close\r\n")
	assert.True(t, resp.CloseConnection())
}

func Test_Response_SetCloseConnectionOverridesConstructorArg(t *testing.T) {
	resp := NewResponse(false)
	assert.False(t, resp.CloseConnection())
	resp.SetCloseConnection(true)
	assert.True(t, resp.CloseConnection())
}

func Test_Response_EmptyBodyStillReportsZeroContentLength(t *testing.T) {
	resp := NewResponse(true)
	resp.SetStatusCode(StatusBadRequest)
	resp.SetStatusMessage("Bad Request")

	wire := resp.Bytes().String()
	assert.Contains(t, wire, "Content-Length: 0\r\n")
}
