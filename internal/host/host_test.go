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

package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagewrap/internal/resource"
	"stagewrap/internal/stage"
	"stagewrap/internal/transport"
	"stagewrap/internal/wrapper"
)

var hostResources = resource.Map{
	"ingest": {Invocation: "fn-ingest"},
	"parse":  {Queue: "q-parse"},
	"index":  {Queue: "q-index"},
}

type testEnv struct {
	mem *transport.Memory
	reg *stage.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg, err := stage.NewRegistry(
		stage.Stage{Name: "ingest", Trigger: stage.TriggerInvocation, Routing: stage.Single{Name: "parse"}},
		stage.Stage{Name: "parse", Trigger: stage.TriggerQueue, Routing: stage.Single{Name: "index"}},
		stage.Stage{Name: "index", Trigger: stage.TriggerQueue},
	)
	require.NoError(t, err)
	return &testEnv{mem: transport.NewMemory(time.Minute), reg: reg}
}

func (e *testEnv) host(t *testing.T, name string, h wrapper.Handler, timeout time.Duration) *Host {
	t.Helper()
	st, ok := e.reg.Get(name)
	require.True(t, ok)
	cache := resource.NewCache(resource.LoaderFunc(func(ctx context.Context) (resource.Map, error) {
		return hostResources, nil
	}), nil)
	d, err := wrapper.NewDispatcher(wrapper.Config{
		Stage:     st,
		Registry:  e.reg,
		Handler:   h,
		Resources: cache,
		Transport: transport.Compose(e.mem, e.mem),
	})
	require.NoError(t, err)
	return New(d, nil, timeout)
}

var echo = wrapper.HandlerFunc(func(event json.RawMessage, cc wrapper.Completer) {
	var v any
	if len(event) > 0 {
		_ = json.Unmarshal(event, &v)
	}
	cc.Succeed(v)
})

func buildServer(h *Host) *server.Hertz {
	s := server.Default(server.WithHostPorts(":0"))
	h.Register(s, true)
	return s
}

func post(s *server.Hertz, body string, headers ...ut.Header) *ut.ResponseRecorder {
	b := []byte(body)
	return ut.PerformRequest(s.Engine, "POST", "/invoke", &ut.Body{Body: bytes.NewReader(b), Len: len(b)}, headers...)
}

func TestInvoke_Sync(t *testing.T) {
	env := newTestEnv(t)
	s := buildServer(env.host(t, "ingest", echo, time.Second))

	w := post(s, `{"doc":"d1"}`)
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())

	var out struct {
		Signal string         `json:"signal"`
		Result map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resp.Body(), &out))
	assert.Equal(t, "succeed", out.Signal)
	assert.Equal(t, "d1", out.Result["doc"])
	assert.Equal(t, 1, env.mem.Len("q-parse"))
}

func TestInvoke_Event(t *testing.T) {
	env := newTestEnv(t)
	h := env.host(t, "ingest", echo, time.Second)
	s := buildServer(h)

	w := post(s, `{"doc":"d2"}`, ut.Header{Key: transport.InvocationTypeHeader, Value: transport.InvocationTypeEvent})
	assert.Equal(t, 202, w.Result().StatusCode())
	h.Wait()

	msg, err := env.mem.Dequeue(context.Background(), "q-parse")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.JSONEq(t, `{"doc":"d2"}`, string(msg.Body))
}

func TestInvoke_BadJSON(t *testing.T) {
	env := newTestEnv(t)
	s := buildServer(env.host(t, "ingest", echo, time.Second))
	assert.Equal(t, 400, post(s, `{"doc":`).Result().StatusCode())
}

func TestInvoke_HandlerFailure(t *testing.T) {
	env := newTestEnv(t)
	failing := wrapper.HandlerFunc(func(event json.RawMessage, cc wrapper.Completer) {
		cc.Fail(errors.New("parse error"))
	})
	s := buildServer(env.host(t, "ingest", failing, time.Second))

	resp := post(s, `{}`).Result()
	assert.Equal(t, 500, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "parse error")
	assert.Equal(t, 0, env.mem.Len("q-parse"))
}

func TestInvoke_Timeout(t *testing.T) {
	env := newTestEnv(t)
	never := wrapper.HandlerFunc(func(json.RawMessage, wrapper.Completer) {})
	s := buildServer(env.host(t, "ingest", never, 50*time.Millisecond))
	assert.Equal(t, 504, post(s, `{}`).Result().StatusCode())
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	s := buildServer(env.host(t, "ingest", echo, time.Second))

	w := ut.PerformRequest(s.Engine, "GET", "/health", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	assert.Equal(t, 200, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), `"stage":"ingest"`)

	_ = post(s, `{}`)
	w = ut.PerformRequest(s.Engine, "GET", "/metrics", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	assert.Equal(t, 200, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "stagewrap_completion_total")
}

func TestNativeContext(t *testing.T) {
	n := newNativeContext(time.Now().Add(time.Minute))
	assert.Greater(t, n.RemainingTime(), 50*time.Second)
	n.Succeed(1)
	n.Fail(errors.New("late"))
	o := <-n.outcome
	assert.Equal(t, Outcome{Signal: "succeed", Result: 1}, o)
	assert.False(t, o.Failed())

	expired := newNativeContext(time.Now().Add(-time.Second))
	assert.Equal(t, time.Duration(0), expired.RemainingTime())

	assert.True(t, Outcome{Signal: "done", Err: errors.New("x")}.Failed())
	assert.True(t, Outcome{Signal: "fail"}.Failed())
}

func TestPoller_DrainsQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, env.mem.Enqueue(ctx, "q-parse", []byte(`{"n":1}`)))
	}
	h := env.host(t, "parse", echo, time.Second)
	p := NewPoller(h, 200, 5, 2, nil)
	p.Start(ctx)

	require.Eventually(t, func() bool {
		return env.mem.Len("q-parse") == 0 && env.mem.Len("q-index") == 3
	}, 2*time.Second, 10*time.Millisecond)
	p.Stop()
	p.Stop()
}

func TestPoller_ExitsOnParentCancel(t *testing.T) {
	env := newTestEnv(t)
	h := env.host(t, "parse", echo, time.Second)
	p := NewPoller(h, 200, 5, 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	// 不调用 Stop，所有 goroutine 也应退出
	exited := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("poller goroutines still running after parent cancel")
	}
	p.Stop()
}
