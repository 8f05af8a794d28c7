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

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"stagewrap/internal/app"
	"stagewrap/internal/handlers"
	"stagewrap/internal/host"
	"stagewrap/internal/stage"
	"stagewrap/internal/wrapper"
	"stagewrap/pkg/config"
	"stagewrap/pkg/log"
	"stagewrap/pkg/tracing"
	"stagewrap/pkg/utils"
)

// tracerShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type tracerShutdown interface {
	Shutdown(ctx context.Context) error
}

// App 单个 stage 的进程：HTTP 调用入口 + 队列型 stage 的定时触发
type App struct {
	config    *config.Config
	bootstrap *app.Bootstrap
	logger    *log.Logger
	stage     stage.Stage
	host      *host.Host
	poller    *host.Poller
	hertz     *server.Hertz
	tracer    tracerShutdown
}

// NewApp 创建 stage 应用（由 cmd/stage 调用）
func NewApp(cfg *config.Config) (*App, error) {
	ctx := context.Background()
	b, err := app.NewBootstrap(ctx, cfg)
	if err != nil {
		return nil, err
	}

	st, ok := b.Registry.Get(cfg.Stage.Name)
	if !ok {
		_ = b.Close()
		return nil, fmt.Errorf("stage %q 不在注册表 %s 中", cfg.Stage.Name, cfg.Stage.Registry)
	}
	handler, err := handlers.Lookup(cfg.Stage.Handler)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("初始化 handler 失败: %w", err)
	}

	dispatcher, err := wrapper.NewDispatcher(wrapper.Config{
		Stage:     st,
		Registry:  b.Registry,
		Handler:   handler,
		Resources: b.Resources,
		Transport: b.Transport,
		Logger:    b.Logger,
		MaxFanout: cfg.Router.MaxFanout,
	})
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	h := host.New(dispatcher, b.Logger, config.ParseDuration(cfg.Host.Timeout, 30*time.Second))
	a := &App{
		config:    cfg,
		bootstrap: b,
		logger:    b.Logger,
		stage:     st,
		host:      h,
	}
	if cfg.Host.Poll.PollEnabled(st.QueueTriggered()) {
		p := cfg.Host.Poll
		a.poller = host.NewPoller(h, p.Rate, p.Burst, p.Concurrency, b.Logger)
	}
	return a, nil
}

// Start 启动 HTTP 入口与队列轮询（非阻塞）
func (a *App) Start() error {
	a.logger.Info("启动 stage", "stage", a.stage.Name, "trigger", a.stage.Trigger, "routing", stage.Describe(a.stage.Routing))

	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(os.Stdout),
		hertzslog.WithLevel(levelVar(a.config.Log.Level)),
	))

	opts := []hertzconfig.Option{server.WithHostPorts(a.config.Host.Addr())}
	var tracerCfg *hertztracing.Config
	if t := a.config.Monitoring.Tracing; t.Enable && t.ExportEndpoint != "" {
		serviceName := utils.CoalesceString(t.ServiceName, "stage-"+a.stage.Name)
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    serviceName,
			ExportEndpoint: t.ExportEndpoint,
			Insecure:       t.Insecure,
		})
		if err != nil {
			return fmt.Errorf("初始化链路追踪失败: %w", err)
		}
		a.tracer = tp
		tracerOpt, cfg := hertztracing.NewServerTracer()
		opts = append(opts, tracerOpt)
		tracerCfg = cfg
		a.logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", t.ExportEndpoint)
	}

	a.hertz = server.New(opts...)
	if tracerCfg != nil {
		a.hertz.Use(hertztracing.ServerMiddleware(tracerCfg))
	}
	a.host.Register(a.hertz, a.config.Monitoring.Prometheus.Enable)
	a.registerMemoryTarget()

	go func() {
		if err := a.hertz.Run(); err != nil {
			a.logger.Error("HTTP 服务异常退出", "error", err)
		}
	}()

	if a.poller != nil {
		a.poller.Start(context.Background())
	}
	a.logger.Info("stage 启动成功", "addr", a.config.Host.Addr(), "poll", a.poller != nil)
	return nil
}

// registerMemoryTarget 使用内存调用后端时，把本 stage 的调用 ID 注册为进程内目标
func (a *App) registerMemoryTarget() {
	mem := a.bootstrap.Transport.Memory
	if mem == nil || a.stage.QueueTriggered() {
		return
	}
	resources, err := a.bootstrap.Resources.Get(context.Background())
	if err != nil {
		a.logger.Warn("无法注册内存调用目标", "error", err)
		return
	}
	id, err := resources.InvocationIDFor(a.stage.Name)
	if err != nil {
		a.logger.Warn("无法注册内存调用目标", "error", err)
		return
	}
	mem.Register(id, func(ctx context.Context, payload []byte) {
		a.host.InvokeAsync(payload)
	})
}

// Shutdown 优雅关闭：先停止触发，再关闭 HTTP，等待后台调用结束后释放连接
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("关闭 stage", "stage", a.stage.Name)
	if a.poller != nil {
		a.poller.Stop()
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			a.logger.Error("关闭 HTTP 服务失败", "error", err)
		}
	}
	a.host.Wait()
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Error("关闭链路追踪失败", "error", err)
		}
	}
	a.logger.Info("stage 已关闭", "stage", a.stage.Name)
	return a.bootstrap.Close()
}

func levelVar(level string) *slog.LevelVar {
	v := &slog.LevelVar{}
	v.Set(log.ParseLevel(level))
	return v
}
