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

	"github.com/stretchr/testify/assert"
)

func Test_ParseMethod_RecognizesSupportedVerbs(t *testing.T) {
	assert.Equal(t, MethodGet, parseMethod("GET"))
	assert.Equal(t, MethodPost, parseMethod("POST"))
	assert.Equal(t, MethodHead, parseMethod("HEAD"))
	assert.Equal(t, MethodPut, parseMethod("PUT"))
	assert.Equal(t, MethodDelete, parseMethod("DELETE"))
}

func Test_ParseMethod_RejectsUnknownVerb(t *testing.T) {
	assert.Equal(t, MethodInvalid, parseMethod("TRACE"))
	assert.Equal(t, MethodInvalid, parseMethod(""))
}

func Test_Request_HeaderLookupIsCaseSensitiveAndDefaultsEmpty(t *testing.T) {
	req := newRequest()
	req.headers["Host"] = "example.com"

	assert.Equal(t, "example.com", req.Header("Host"))
	assert.Equal(t, "", req.Header("host"))
	assert.Equal(t, "", req.Header("Missing"))
}

func Test_Request_NewRequestHasEmptyButNonNilHeaders(t *testing.T) {
	req := newRequest()
	assert.NotNil(t, req.Headers())
	assert.Len(t, req.Headers(), 0)
}
