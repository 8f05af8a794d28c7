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

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewWriterLogger_JSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, nil)
	l.With("stage", "parse").Info("hello", "n", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "parse", rec["stage"])
}

func TestNewWriterLogger_TextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, &Config{Level: "warn", Format: "text"})
	l.Info("dropped")
	l.Warn("kept")
	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.True(t, strings.Contains(out, "msg=kept"), out)
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stage.log")
	l, err := NewLogger(&Config{File: path})
	require.NoError(t, err)
	l.Info("to file")
	require.NoError(t, l.Close())
}
