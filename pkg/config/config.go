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

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"stagewrap/pkg/errors"
)

// DefaultConfigPath 未设置 STAGE_CONFIG 时使用的配置文件
const DefaultConfigPath = "configs/stage.yaml"

// Config 单个 stage 进程的配置
type Config struct {
	Stage      StageConfig      `mapstructure:"stage"`
	Resources  ResourcesConfig  `mapstructure:"resources"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Router     RouterConfig     `mapstructure:"router"`
	Host       HostConfig       `mapstructure:"host"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// StageConfig 本进程执行的 stage 以及 stage 注册表文件
type StageConfig struct {
	Name     string `mapstructure:"name"`     // 本进程承载的 stage 名
	Registry string `mapstructure:"registry"` // stage 注册表 YAML 路径
	Handler  string `mapstructure:"handler"`  // 内置 handler 名（passthrough | discard）
}

// ResourcesConfig resource map 来源
type ResourcesConfig struct {
	Source string                    `mapstructure:"source"` // file | redis | vault | static
	Path   string                    `mapstructure:"path"`   // source=file 时的 YAML/JSON 路径
	Redis  RedisResourceConfig       `mapstructure:"redis"`
	Vault  VaultResourceConfig       `mapstructure:"vault"`
	Static map[string]EndpointConfig `mapstructure:"static"`
}

// EndpointConfig 单个 stage 的物理端点
type EndpointConfig struct {
	Queue      string `mapstructure:"queue"`
	Invocation string `mapstructure:"invocation"`
}

// RedisResourceConfig 从 Redis hash 读取 resource map
type RedisResourceConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"` // hash key，field 为 stage 名
}

// VaultResourceConfig 从 Vault KV 读取 resource map
type VaultResourceConfig struct {
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
	Path    string `mapstructure:"path"` // 如 secret/data/pipeline/resources
}

// TransportConfig 队列与调用后端
type TransportConfig struct {
	Queue    string                `mapstructure:"queue"`   // memory | postgres | redis
	Invoker  string                `mapstructure:"invoker"` // memory | http
	Postgres PostgresQueueConfig   `mapstructure:"postgres"`
	Redis    RedisQueueConfig      `mapstructure:"redis"`
	HTTP     HTTPInvokerConfig     `mapstructure:"http"`
	Memory   MemoryTransportConfig `mapstructure:"memory"`
}

// PostgresQueueConfig 基于 stage_messages 表的队列
type PostgresQueueConfig struct {
	DSN               string `mapstructure:"dsn"`
	VisibilityTimeout string `mapstructure:"visibility_timeout"` // 如 "30s"
}

// RedisQueueConfig 基于 Redis Streams 的队列
type RedisQueueConfig struct {
	Addr              string `mapstructure:"addr"`
	Password          string `mapstructure:"password"`
	DB                int    `mapstructure:"db"`
	Group             string `mapstructure:"group"`
	Consumer          string `mapstructure:"consumer"`
	VisibilityTimeout string `mapstructure:"visibility_timeout"`
}

// HTTPInvokerConfig 通过 HTTP 调用下游 stage
type HTTPInvokerConfig struct {
	Timeout string `mapstructure:"timeout"`
}

// MemoryTransportConfig 进程内队列
type MemoryTransportConfig struct {
	VisibilityTimeout string `mapstructure:"visibility_timeout"`
}

// RouterConfig fan-out 配置
type RouterConfig struct {
	MaxFanout int `mapstructure:"max_fanout"` // 同时进行的投递上限，<=0 不限制
}

// HostConfig 平台宿主（HTTP 入口 + 队列轮询）
type HostConfig struct {
	Host    string     `mapstructure:"host"`
	Port    int        `mapstructure:"port"`
	Timeout string     `mapstructure:"timeout"` // 单次调用的截止时间
	Poll    PollConfig `mapstructure:"poll"`
}

// PollConfig 队列触发型 stage 的定时触发
type PollConfig struct {
	Enable      *bool   `mapstructure:"enable"`      // 未配置时队列型 stage 默认开启
	Rate        float64 `mapstructure:"rate"`        // 每秒触发次数
	Burst       int     `mapstructure:"burst"`
	Concurrency int     `mapstructure:"concurrency"` // 同时进行的调用数
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig 为 true 时宿主暴露 /metrics
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadStageConfig 加载 $STAGE_CONFIG，未设置时使用 configs/stage.yaml
func LoadStageConfig() (*Config, error) {
	path := os.Getenv("STAGE_CONFIG")
	if path == "" {
		path = DefaultConfigPath
	}
	return LoadConfig(path)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stage.handler", "passthrough")
	v.SetDefault("resources.source", "file")
	v.SetDefault("resources.redis.key", "stagewrap:resources")
	v.SetDefault("transport.queue", "memory")
	v.SetDefault("transport.invoker", "http")
	v.SetDefault("transport.redis.group", "stagewrap")
	v.SetDefault("host.host", "0.0.0.0")
	v.SetDefault("host.port", 8080)
	v.SetDefault("host.timeout", "30s")
	v.SetDefault("host.poll.rate", 1.0)
	v.SetDefault("host.poll.burst", 1)
	v.SetDefault("host.poll.concurrency", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate 校验启动所必需的字段
func (c *Config) Validate() error {
	if c.Stage.Name == "" {
		return errors.InvalidArgf("stage.name 不能为空")
	}
	if c.Stage.Registry == "" {
		return errors.InvalidArgf("stage.registry 不能为空")
	}
	switch c.Resources.Source {
	case "file":
		if c.Resources.Path == "" {
			return errors.InvalidArgf("resources.source=file 时 resources.path 必填")
		}
	case "redis", "vault", "static":
	default:
		return errors.InvalidArgf("不支持的 resources.source: %q", c.Resources.Source)
	}
	switch c.Transport.Queue {
	case "memory", "redis":
	case "postgres":
		if c.Transport.Postgres.DSN == "" {
			return errors.InvalidArgf("transport.queue=postgres 时 transport.postgres.dsn 必填")
		}
	default:
		return errors.InvalidArgf("不支持的 transport.queue: %q", c.Transport.Queue)
	}
	switch c.Transport.Invoker {
	case "memory", "http":
	default:
		return errors.InvalidArgf("不支持的 transport.invoker: %q", c.Transport.Invoker)
	}
	return nil
}

// PollEnabled 未显式配置时，队列触发型 stage 开启轮询
func (p PollConfig) PollEnabled(queueTriggered bool) bool {
	if p.Enable != nil {
		return *p.Enable
	}
	return queueTriggered
}

// Addr 返回 host:port
func (h HostConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// ParseDuration 解析时长字符串，无效或空时返回 defaultVal
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// replaceEnvVars 替换配置中 ${VAR} 形式的敏感字段
func replaceEnvVars(cfg *Config) {
	cfg.Transport.Postgres.DSN = expandEnv(cfg.Transport.Postgres.DSN)
	cfg.Transport.Redis.Password = expandEnv(cfg.Transport.Redis.Password)
	cfg.Resources.Redis.Password = expandEnv(cfg.Resources.Redis.Password)
	cfg.Resources.Vault.Token = expandEnv(cfg.Resources.Vault.Token)
}

func expandEnv(s string) string {
	if !strings.HasPrefix(s, "$") {
		return s
	}
	envVar := strings.TrimPrefix(strings.TrimSuffix(s, "}"), "${")
	envVar = strings.TrimPrefix(envVar, "$")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return s
}
