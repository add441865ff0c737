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
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Buffer_AppendRetrieve(t *testing.T) {
	b := NewBuffer()
	assert.Equal(t, 0, b.Readable())
	assert.Equal(t, cheapPrepend, b.Prependable())

	b.AppendString("hello")
	assert.Equal(t, 5, b.Readable())
	assert.Equal(t, "hello", string(b.Peek()))

	b.Retrieve(3)
	assert.Equal(t, 2, b.Readable())
	assert.Equal(t, "lo", string(b.Peek()))

	b.RetrieveAll()
	assert.Equal(t, 0, b.Readable())
	assert.Equal(t, cheapPrepend, b.Prependable())
}

func Test_Buffer_RetrieveAllAsString(t *testing.T) {
	b := NewBuffer()
	b.AppendString("world")
	s := b.RetrieveAllAsString()
	assert.Equal(t, "world", s)
	assert.Equal(t, 0, b.Readable())
}

func Test_Buffer_GrowBeyondInitialSize(t *testing.T) {
	b := NewBuffer()
	big := make([]byte, initialSize*4)
	for i := range big {
		big[i] = byte(i)
	}
	b.Append(big)
	assert.Equal(t, len(big), b.Readable())
	assert.Equal(t, big, b.Peek())
}

func Test_Buffer_PrependWritesBeforeReader(t *testing.T) {
	b := NewBuffer()
	b.AppendString("body")
	b.Prepend([]byte("len:"))
	assert.Equal(t, "len:body", string(b.Peek()))
}

func Test_Buffer_FindCRLF(t *testing.T) {
	b := NewBuffer()
	b.AppendString("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	idx := b.FindCRLF()
	assert.Equal(t, len("GET / HTTP/1.1"), idx)
}

func Test_Buffer_FindCRLF_NotYetPresent(t *testing.T) {
	b := NewBuffer()
	b.AppendString("partial line without terminator")
	assert.Equal(t, -1, b.FindCRLF())
}

func Test_Buffer_NetworkByteOrderRoundTrip(t *testing.T) {
	b := NewBuffer()
	b.AppendInt32(42)
	b.AppendInt16(7)
	assert.Equal(t, int32(42), b.PeekInt32())
	assert.Equal(t, int32(42), b.ReadInt32())
	assert.Equal(t, int16(7), b.ReadInt16())
	assert.Equal(t, 0, b.Readable())
}

func Test_Buffer_SignedRoundTripAllWidths(t *testing.T) {
	b := NewBuffer()
	b.AppendInt64(-123456789)
	b.AppendInt32(-42)
	b.AppendInt16(-7)
	b.AppendInt8(-1)

	assert.Equal(t, int64(-123456789), b.PeekInt64())
	assert.Equal(t, int64(-123456789), b.ReadInt64())
	assert.Equal(t, int32(-42), b.PeekInt32())
	assert.Equal(t, int32(-42), b.ReadInt32())
	assert.Equal(t, int16(-7), b.PeekInt16())
	assert.Equal(t, int16(-7), b.ReadInt16())
	assert.Equal(t, int8(-1), b.PeekInt8())
	assert.Equal(t, int8(-1), b.ReadInt8())
	assert.Equal(t, 0, b.Readable())
}

func Test_Buffer_UnsignedRoundTripAllWidths(t *testing.T) {
	b := NewBuffer()
	b.AppendUint64(1 << 40)
	b.AppendUint32(1 << 20)
	b.AppendUint16(1 << 10)
	b.AppendUint8(200)

	assert.Equal(t, uint64(1<<40), b.PeekUint64())
	assert.Equal(t, uint64(1<<40), b.ReadUint64())
	assert.Equal(t, uint32(1<<20), b.PeekUint32())
	assert.Equal(t, uint32(1<<20), b.ReadUint32())
	assert.Equal(t, uint16(1<<10), b.PeekUint16())
	assert.Equal(t, uint16(1<<10), b.ReadUint16())
	assert.Equal(t, uint8(200), b.PeekUint8())
	assert.Equal(t, uint8(200), b.ReadUint8())
	assert.Equal(t, 0, b.Readable())
}

func Test_Buffer_RetrieveAllBytesCopiesBeforeDraining(t *testing.T) {
	b := NewBuffer()
	b.AppendString("payload")
	out := b.RetrieveAllBytes()
	assert.Equal(t, []byte("payload"), out)
	assert.Equal(t, 0, b.Readable())
	b.AppendString("other")
	assert.Equal(t, []byte("payload"), out)
}
