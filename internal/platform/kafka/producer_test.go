package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrier_RoundTripsTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "send")
	defer span.End()

	var msg kafka.Message
	prop := propagation.TraceContext{}
	prop.Inject(ctx, headerCarrier{msg: &msg})

	assert.Equal(t, []string{"traceparent"}, headerCarrier{msg: &msg}.Keys())

	extracted := prop.Extract(context.Background(), headerCarrier{msg: &msg})
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(extracted).TraceID())
}

func TestHeaderCarrier_SetReplaces(t *testing.T) {
	var msg kafka.Message
	c := headerCarrier{msg: &msg}
	c.Set("a", "1")
	c.Set("a", "2")
	assert.Len(t, msg.Headers, 1)
	assert.Equal(t, "2", c.Get("a"))
	assert.Equal(t, "", c.Get("missing"))
}

func TestNewProducer_DefaultTopic(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "")
	defer p.Close()
	assert.Equal(t, DefaultTopic, p.writer.Topic)
}
