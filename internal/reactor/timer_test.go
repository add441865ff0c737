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
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_Timer_LessOrdersByExpiryThenSequence(t *testing.T) {
	now := time.Now()
	a := newTimer(func() {}, now, 0)
	b := newTimer(func() {}, now.Add(time.Second), 0)
	assert.True(t, a.less(b))
	assert.False(t, b.less(a))

	c := newTimer(func() {}, now, 0)
	assert.True(t, a.less(c))
}

func Test_TimerID_ZeroValue(t *testing.T) {
	var id TimerID
	assert.True(t, id.IsZero())

	t2 := newTimer(func() {}, time.Now(), 0)
	real := TimerID{sequence: t2.sequence, expireAt: t2.expireAt}
	assert.False(t, real.IsZero())
}
