package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability holds the meter provider and the instruments recorded by
// the request pipeline and the guardrail engine.
type Observability struct {
	meterProvider     *metric.MeterProvider
	meter             otelmetric.Meter
	requestCounter    otelmetric.Int64Counter
	topicCounter      otelmetric.Int64Counter
	rejectionCounter  otelmetric.Int64Counter
	llmDuration       otelmetric.Float64Histogram
	retrievalDuration otelmetric.Float64Histogram
	pipelineDuration  otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	requestCounter, _ := meter.Int64Counter(
		"chat.requests",
		otelmetric.WithDescription("Number of chat turns processed"),
	)

	topicCounter, _ := meter.Int64Counter(
		"topics.detected",
		otelmetric.WithDescription("Topic detections by topic name"),
	)

	rejectionCounter, _ := meter.Int64Counter(
		"guardrail.rejections",
		otelmetric.WithDescription("Guardrail rejections and clarifications by reason"),
	)

	llmDuration, _ := meter.Float64Histogram(
		"llm.request.duration",
		otelmetric.WithDescription("LLM request duration"),
		otelmetric.WithUnit("ms"),
	)

	retrievalDuration, _ := meter.Float64Histogram(
		"retrieval.duration",
		otelmetric.WithDescription("Document retrieval duration"),
		otelmetric.WithUnit("ms"),
	)

	pipelineDuration, _ := meter.Float64Histogram(
		"pipeline.duration",
		otelmetric.WithDescription("End to end turn processing duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:     provider,
		meter:             meter,
		requestCounter:    requestCounter,
		topicCounter:      topicCounter,
		rejectionCounter:  rejectionCounter,
		llmDuration:       llmDuration,
		retrievalDuration: retrievalDuration,
		pipelineDuration:  pipelineDuration,
	}
}

func (o *Observability) RecordRequest(ctx context.Context, decision string) {
	if o.requestCounter != nil {
		o.requestCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("decision", decision),
		))
	}
}

func (o *Observability) RecordTopicDetection(ctx context.Context, topic string) {
	if o.topicCounter != nil {
		o.topicCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("topic", topic),
		))
	}
}

func (o *Observability) RecordRejection(ctx context.Context, reason string) {
	if o.rejectionCounter != nil {
		o.rejectionCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("reason", reason),
		))
	}
}

func (o *Observability) RecordLLMDuration(ctx context.Context, duration time.Duration, model string) {
	if o.llmDuration != nil {
		o.llmDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("model", model),
		))
	}
}

func (o *Observability) RecordRetrievalDuration(ctx context.Context, duration time.Duration, index string) {
	if o.retrievalDuration != nil {
		o.retrievalDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("index", index),
		))
	}
}

func (o *Observability) RecordPipelineDuration(ctx context.Context, duration time.Duration, decision string) {
	if o.pipelineDuration != nil {
		o.pipelineDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("decision", decision),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
