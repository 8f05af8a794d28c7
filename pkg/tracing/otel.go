// Copyright 2026 fanjia1024
// OpenTelemetry integration for distributed tracing

// Package tracing 封装 OpenTelemetry；未调用 InitTracer 时 span 为 no-op
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "stagewrap"

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer 并设为全局 provider
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartInvocationSpan 开始一次 stage 调用的 span
func StartInvocationSpan(ctx context.Context, stageName, trigger string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "stage.invoke",
		trace.WithAttributes(
			attribute.String("stage.name", stageName),
			attribute.String("stage.trigger", trigger),
		),
	)
}

// StartDeliverySpan 开始一次下游投递的 span
func StartDeliverySpan(ctx context.Context, destination, kind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "stage.deliver",
		trace.WithAttributes(
			attribute.String("destination.name", destination),
			attribute.String("destination.kind", kind),
		),
	)
}

// StartAckSpan 开始一次输入消息删除的 span
func StartAckSpan(ctx context.Context, stageName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "stage.ack",
		trace.WithAttributes(attribute.String("stage.name", stageName)),
	)
}

// End 结束 span，err 非空时记录并标记错误
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
