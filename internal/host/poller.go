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
	"context"
	"sync"

	"golang.org/x/time/rate"

	"stagewrap/pkg/log"
	"stagewrap/pkg/utils"
)

// Poller 为队列触发型 stage 模拟平台的定时触发：按速率触发调用，
// 先占并发槽位再触发，调用结束后释放
type Poller struct {
	host    *Host
	limiter *rate.Limiter
	slots   chan struct{}
	logger  *log.Logger

	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewPoller 创建 Poller；r 为每秒触发次数，concurrency 为同时进行的调用上限
func NewPoller(host *Host, r float64, burst, concurrency int, logger *log.Logger) *Poller {
	if logger == nil {
		logger = log.Discard()
	}
	return &Poller{
		host:    host,
		limiter: rate.NewLimiter(rate.Limit(utils.PositiveOr(r, 1)), utils.PositiveOr(burst, 1)),
		slots:   make(chan struct{}, utils.PositiveOr(concurrency, 1)),
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Start 启动触发循环
func (p *Poller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		select {
		case <-p.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	go func() {
		defer p.wg.Done()
		defer cancel()
		p.logger.Info("队列轮询已启动", "stage", p.host.StageName())
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case p.slots <- struct{}{}:
			}
			if err := p.limiter.Wait(ctx); err != nil {
				<-p.slots
				return
			}
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				defer func() { <-p.slots }()
				// 停止时不打断进行中的调用
				p.trigger(context.WithoutCancel(ctx))
			}()
		}
	}()
}

func (p *Poller) trigger(ctx context.Context) {
	o, err := p.host.Invoke(ctx, nil)
	if err != nil {
		p.logger.Error("轮询调用失败", "stage", p.host.StageName(), "error", err)
		return
	}
	if o.Failed() {
		p.logger.Warn("轮询调用以失败结束", "stage", p.host.StageName(), "signal", o.Signal, "error", o.Err)
	}
}

// Stop 停止触发并等待进行中的调用结束
func (p *Poller) Stop() {
	p.once.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}
