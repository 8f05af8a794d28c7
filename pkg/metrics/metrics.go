package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供宿主注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		DeliveryTotal, DeliveryDuration,
		AckTotal, CompletionTotal,
		ResourceLoadTotal, InvocationDuration,
		PollIdleTotal, InvocationsInflight,
	)
}

// DeliveryTotal 下游投递次数
var DeliveryTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "stagewrap_delivery_total",
		Help: "下游投递次数（按传输类型与结果）",
	},
	[]string{"kind", "status"}, // kind: queue | invocation | invalid；status: ok | error
)

// DeliveryDuration 单次投递耗时（秒）
var DeliveryDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "stagewrap_delivery_duration_seconds",
		Help:    "单次投递耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind"},
)

// AckTotal 输入消息确认（删除）次数
var AckTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "stagewrap_ack_total",
		Help: "输入消息删除次数",
	},
	[]string{"status"},
)

// CompletionTotal 发往平台的完成信号
var CompletionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "stagewrap_completion_total",
		Help: "完成信号次数（按信号与结果）",
	},
	[]string{"signal", "outcome"}, // signal: succeed | done | fail | duplicate
)

// ResourceLoadTotal resource map 加载次数
var ResourceLoadTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "stagewrap_resource_load_total",
		Help: "resource map 加载次数",
	},
	[]string{"status"},
)

// InvocationDuration 从入口到完成信号的耗时（秒）
var InvocationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "stagewrap_invocation_duration_seconds",
		Help:    "单次调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"stage", "trigger"},
)

// PollIdleTotal 队列为空的轮询次数
var PollIdleTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "stagewrap_poll_idle_total",
		Help: "未取到消息的轮询次数",
	},
	[]string{"stage"},
)

// InvocationsInflight 当前正在执行的调用数
var InvocationsInflight = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "stagewrap_invocations_inflight",
		Help: "当前正在执行的调用数",
	},
	[]string{"stage"},
)

// StatusLabel 将 error 映射为 ok | error 标签
func StatusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 路由复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
