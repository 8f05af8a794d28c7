// Copyright 2026 fanjia1024
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

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_NilPassthrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, "load resources"))
	assert.NoError(t, Wrapf(nil, "stage %s", "parse"))
}

func TestWrap_KeepsChain(t *testing.T) {
	base := errors.New("connection refused")

	wrapped := Wrap(base, "load resources")
	require.Error(t, wrapped)
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, "load resources: connection refused", wrapped.Error())

	wrapped = Wrapf(base, "deliver to %s", "index")
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, "deliver to index: connection refused", wrapped.Error())
}

func TestInvalidArgf_NotFoundf(t *testing.T) {
	err := InvalidArgf("stage %q: trigger missing", "parse")
	assert.ErrorIs(t, err, ErrInvalidArg)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, `stage "parse": trigger missing: invalid argument`, err.Error())

	err = NotFoundf("routing func %q", "by_target")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, `routing func "by_target": not found`, err.Error())
}
