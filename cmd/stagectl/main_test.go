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

package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}
	stages := write("stages.yaml", `
stages:
  - name: ingest
    trigger: invocation
    routing: parse
  - name: parse
    trigger: queue
    routing: [index, notify]
  - name: index
    trigger: queue
  - name: notify
    trigger: invocation
`)
	resources := write("resources.yaml", `
ingest: {invocation: "http://ingest:8080/invoke"}
parse: {queue: q-parse}
index: {queue: q-index}
`)
	return write("stage.yaml", `
stage:
  name: ingest
  registry: `+stages+`
resources:
  source: file
  path: `+resources+`
transport:
  queue: memory
  invoker: memory
`)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "stagectl "+version+"\n", out)
}

func TestStages(t *testing.T) {
	out, err := run(t, "--config", writeTestConfig(t), "stages")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "ROUTING")
	assert.Contains(t, out, "[index, notify]")
	assert.Regexp(t, `ingest\s+invocation\s+parse`, out)
}

func TestResources(t *testing.T) {
	out, err := run(t, "--config", writeTestConfig(t), "resources")
	require.NoError(t, err)
	assert.Regexp(t, `index\s+q-index\s+-`, out)
	assert.Contains(t, out, "http://ingest:8080/invoke")
}

func TestSend(t *testing.T) {
	cfg := writeTestConfig(t)
	out, err := run(t, "--config", cfg, "send", "parse", `{"doc":1}`)
	require.NoError(t, err)
	assert.Equal(t, "sent to parse\n", out)

	_, err = run(t, "--config", cfg, "enqueue", "nowhere", `{}`)
	assert.Error(t, err)
	_, err = run(t, "--config", cfg, "send", "parse", `{bad`)
	assert.Error(t, err)
}

func TestInvoke(t *testing.T) {
	var gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoke", r.URL.Path)
		gotType = r.Header.Get("X-Invocation-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		if gotType == "Event" {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"status":"accepted"}`))
			return
		}
		_, _ = w.Write([]byte(`{"signal":"succeed","result":1}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, invoke(newClient(srv.URL, time.Second), []byte(`{"a":1}`), false, &out))
	assert.Equal(t, "RequestResponse", gotType)
	assert.JSONEq(t, `{"a":1}`, gotBody)
	assert.Contains(t, out.String(), `"signal":"succeed"`)

	out.Reset()
	require.NoError(t, invoke(newClient(srv.URL, time.Second), nil, true, &out))
	assert.Equal(t, "Event", gotType)
	assert.Contains(t, out.String(), "accepted")
}

func TestInvoke_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()
	err := invoke(newClient(srv.URL, time.Second), nil, false, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestReadPayload(t *testing.T) {
	p, err := readPayload([]string{` {"a":1} `}, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(p))

	p, err = readPayload(nil, strings.NewReader(""))
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = readPayload(nil, strings.NewReader(`[1,2]`))
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(p))

	_, err = readPayload([]string{"nope"}, nil)
	assert.Error(t, err)
}
