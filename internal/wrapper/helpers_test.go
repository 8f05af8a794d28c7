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

package wrapper

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stagewrap/internal/resource"
	"stagewrap/internal/stage"
	"stagewrap/internal/transport"
	"stagewrap/pkg/log"
)

// recorder 按发生顺序记录传输调用与平台信号
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type sent struct {
	target  string
	payload []byte
}

// fakeTransport 记录所有调用；fail 中的目标返回对应错误
type fakeTransport struct {
	rec *recorder

	mu       sync.Mutex
	enqueued []sent
	invoked  []sent
	deleted  []sent
	inbox    map[string][]*transport.InboundMessage
	fail     map[string]error
	dequeue  error
	// gate 非空时，每次 Enqueue/Invoke 先到达 gate 再继续
	gate func()
}

func newFakeTransport(rec *recorder) *fakeTransport {
	return &fakeTransport{
		rec:   rec,
		inbox: make(map[string][]*transport.InboundMessage),
		fail:  make(map[string]error),
	}
}

func (f *fakeTransport) failFor(target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[target]
}

func (f *fakeTransport) Enqueue(ctx context.Context, queue string, payload []byte) error {
	if f.gate != nil {
		f.gate()
	}
	f.rec.add("enqueue:" + queue)
	f.mu.Lock()
	f.enqueued = append(f.enqueued, sent{queue, payload})
	f.mu.Unlock()
	return f.failFor(queue)
}

func (f *fakeTransport) Invoke(ctx context.Context, target string, payload []byte) error {
	if f.gate != nil {
		f.gate()
	}
	f.rec.add("invoke:" + target)
	f.mu.Lock()
	f.invoked = append(f.invoked, sent{target, payload})
	f.mu.Unlock()
	return f.failFor(target)
}

func (f *fakeTransport) Dequeue(ctx context.Context, queue string) (*transport.InboundMessage, error) {
	f.rec.add("dequeue:" + queue)
	if f.dequeue != nil {
		return nil, f.dequeue
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.inbox[queue]
	if len(msgs) == 0 {
		return nil, nil
	}
	f.inbox[queue] = msgs[1:]
	return msgs[0], nil
}

func (f *fakeTransport) Delete(ctx context.Context, queue, receipt string) error {
	f.rec.add("delete:" + queue + ":" + receipt)
	f.mu.Lock()
	f.deleted = append(f.deleted, sent{queue, []byte(receipt)})
	f.mu.Unlock()
	return f.failFor("delete:" + queue)
}

func (f *fakeTransport) counts() (enq, inv, del int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.enqueued), len(f.invoked), len(f.deleted)
}

type nativeCall struct {
	signal string
	err    error
	result any
}

// fakeNative 平台上下文；calls 收到每一次信号
type fakeNative struct {
	rec       *recorder
	calls     chan nativeCall
	remaining time.Duration
}

func newFakeNative(rec *recorder) *fakeNative {
	return &fakeNative{rec: rec, calls: make(chan nativeCall, 8), remaining: 42 * time.Second}
}

func (n *fakeNative) Succeed(result any) {
	n.rec.add("native:succeed")
	n.calls <- nativeCall{signal: "succeed", result: result}
}

func (n *fakeNative) Fail(err error) {
	n.rec.add("native:fail")
	n.calls <- nativeCall{signal: "fail", err: err}
}

func (n *fakeNative) Done(err error, result any) {
	n.rec.add("native:done")
	n.calls <- nativeCall{signal: "done", err: err, result: result}
}

func (n *fakeNative) RemainingTime() time.Duration { return n.remaining }

// wait 等待一个平台信号，并确认之后不再有第二个
func (n *fakeNative) wait(t *testing.T) nativeCall {
	t.Helper()
	var call nativeCall
	select {
	case call = <-n.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("no platform signal")
	}
	select {
	case extra := <-n.calls:
		t.Fatalf("second platform signal: %+v", extra)
	case <-time.After(30 * time.Millisecond):
	}
	return call
}

// 测试用 pipeline：
//
//	ingest(invocation) -> parse(queue) -> index(queue), notify(invocation)
//	single(queue) -> index(queue)
var testResources = resource.Map{
	"ingest": {Invocation: "fn-ingest"},
	"parse":  {Queue: "q-parse"},
	"index":  {Queue: "q-index"},
	"notify": {Invocation: "fn-notify"},
	"single": {Queue: "q-single"},
	"broken": {},
}

func testRegistry(t *testing.T, extra ...stage.Stage) *stage.Registry {
	t.Helper()
	stages := append([]stage.Stage{
		{Name: "ingest", Trigger: stage.TriggerInvocation, Routing: stage.Single{Name: "parse"}},
		{Name: "parse", Trigger: stage.TriggerQueue, Routing: stage.Multiple{Names: []string{"index", "notify"}}},
		{Name: "index", Trigger: stage.TriggerQueue},
		{Name: "notify", Trigger: stage.TriggerInvocation},
		{Name: "single", Trigger: stage.TriggerQueue, Routing: stage.Single{Name: "index"}},
		{Name: "broken", Trigger: stage.TriggerQueue},
		{Name: "legacy", Trigger: stage.TriggerKind("cron")},
	}, extra...)
	reg, err := stage.NewRegistry(stages...)
	require.NoError(t, err)
	return reg
}

type fixture struct {
	rec    *recorder
	tr     *fakeTransport
	native *fakeNative
	reg    *stage.Registry
	router *Router
	acker  *Acknowledger
}

func newFixture(t *testing.T, extra ...stage.Stage) *fixture {
	t.Helper()
	rec := &recorder{}
	tr := newFakeTransport(rec)
	reg := testRegistry(t, extra...)
	return &fixture{
		rec:    rec,
		tr:     tr,
		native: newFakeNative(rec),
		reg:    reg,
		router: NewRouter(tr, reg, nil, 0),
		acker:  NewAcknowledger(tr),
	}
}

func (f *fixture) context(t *testing.T, st stage.Stage) *Context {
	t.Helper()
	return newContext(context.Background(), f.native, st, testResources, f.router, f.acker, discard())
}

func (f *fixture) dispatcher(t *testing.T, name string, h Handler, loader resource.Loader) *Dispatcher {
	t.Helper()
	st, ok := f.reg.Get(name)
	if !ok {
		st = stage.Stage{Name: name, Trigger: stage.TriggerKind("cron")}
	}
	if loader == nil {
		loader = resource.LoaderFunc(func(ctx context.Context) (resource.Map, error) { return testResources, nil })
	}
	d, err := NewDispatcher(Config{
		Stage:     st,
		Registry:  f.reg,
		Handler:   h,
		Resources: resource.NewCache(loader, nil),
		Transport: f.tr,
	})
	require.NoError(t, err)
	return d
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

var errBoom = errors.New("boom")

// withQueue 在 testResources 基础上为 name 增加输入队列 q-<name>
func withQueue(name string) resource.Map {
	m := make(resource.Map, len(testResources)+1)
	for k, v := range testResources {
		m[k] = v
	}
	m[name] = resource.Endpoints{Queue: "q-" + name}
	return m
}

func discard() *log.Logger { return log.Discard() }

func singleTo(name string) stage.Routing { return stage.Single{Name: name} }
