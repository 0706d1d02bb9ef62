package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestProducer(w *fakeWriter) *Producer {
	return &Producer{writer: w, logger: slog.New(slog.DiscardHandler)}
}

func headerValue(msg kafka.Message, key string) string {
	return headerCarrier{headers: &msg.Headers}.Get(key)
}

func useTraceContext(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return exporter
}

func sessionEvent(t *testing.T, aggregateID string) *Event {
	t.Helper()
	event, err := NewEvent("session.unauthorized", aggregateID, "session", "webclient",
		map[string]string{"subject": aggregateID})
	require.NoError(t, err)
	return event
}

// --- Event ---

func TestNewEvent_Fields(t *testing.T) {
	type sessionData struct {
		Reason string `json:"reason"`
	}

	data := sessionData{Reason: "refresh_failed"}
	event, err := NewEvent("session.unauthorized", "user-1", "session", "webclient", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "session.unauthorized", event.EventType)
	assert.Equal(t, "user-1", event.AggregateID)
	assert.Equal(t, "session", event.AggregateType)
	assert.Equal(t, "webclient", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	var got sessionData
	require.NoError(t, json.Unmarshal(event.Data, &got))
	assert.Equal(t, data, got)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("session.unauthorized", "user-1", "session", "webclient", make(chan int))
	require.Error(t, err)
}

func TestEvent_WithMetadata_NilMetadataMap(t *testing.T) {
	event := &Event{EventID: "evt-1"}
	assert.Same(t, event, event.WithMetadata("mode", "upload"))
	assert.Equal(t, "upload", event.Metadata["mode"])
}

func TestEvent_Key(t *testing.T) {
	event := sessionEvent(t, "user-1")
	assert.Equal(t, "user-1", event.Key())

	event.AggregateID = ""
	assert.Equal(t, event.EventID, event.Key())
}

func TestEvent_Message(t *testing.T) {
	event := sessionEvent(t, "user-1").WithCorrelationID("corr-1").WithMetadata("mode", "fetch")

	msg, err := event.Message(context.Background(), "webclient.session.unauthorized")
	require.NoError(t, err)

	assert.Equal(t, "webclient.session.unauthorized", msg.Topic)
	assert.Equal(t, "user-1", string(msg.Key))
	assert.Equal(t, "session.unauthorized", headerValue(msg, "event_type"))
	assert.Equal(t, "webclient", headerValue(msg, "source"))
	assert.Equal(t, "corr-1", headerValue(msg, "correlation_id"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, "fetch", decoded.Metadata["mode"])
	assert.JSONEq(t, string(event.Data), string(decoded.Data))
}

func TestEvent_MessageCarriesTraceContext(t *testing.T) {
	useTraceContext(t)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))

	msg, err := sessionEvent(t, "user-1").Message(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", headerValue(msg, "traceparent"))
}

func TestHeaderCarrier_SetReplaces(t *testing.T) {
	var headers []kafka.Header
	c := headerCarrier{headers: &headers}

	c.Set("traceparent", "a")
	c.Set("tracestate", "b")
	c.Set("traceparent", "c")

	assert.Equal(t, []string{"traceparent", "tracestate"}, c.Keys())
	assert.Equal(t, "c", c.Get("traceparent"))
	assert.Empty(t, c.Get("missing"))
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "webclient.session.unauthorized", Topic("session", "unauthorized"))
	assert.Equal(t, "webclient.media.uploaded", Topic("media", "uploaded"))
}

// --- Producer ---

func TestDefaultProducerConfig(t *testing.T) {
	brokers := []string{"broker1:9092", "broker2:9092"}
	cfg := DefaultProducerConfig(brokers)

	assert.Equal(t, brokers, cfg.Brokers)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
}

func TestNewProducer_ClosesWithoutBroker(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), slog.New(slog.DiscardHandler))
	require.NotNil(t, p)
	assert.NoError(t, p.Close())
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w)

	topic := Topic("session", "publish-ok")
	require.NoError(t, p.Publish(context.Background(), topic, sessionEvent(t, "user-3").WithCorrelationID("corr-1")))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, "user-3", string(msg.Key))
	assert.Equal(t, "corr-1", headerValue(msg, "correlation_id"))
	assert.Equal(t, 1.0, testutil.ToFloat64(EventsPublished.WithLabelValues(topic, "session.unauthorized")))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(PublishLatency), 1)
}

func TestProducer_Publish_NoCorrelationHeader(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w)

	require.NoError(t, p.Publish(context.Background(), Topic("session", "no-corr"), sessionEvent(t, "user-4")))

	require.Len(t, w.msgs, 1)
	assert.Empty(t, headerValue(w.msgs[0], "correlation_id"))
}

func TestProducer_Publish_WriterError(t *testing.T) {
	exporter := useTraceContext(t)
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newTestProducer(w)

	topic := Topic("session", "publish-err")
	err := p.Publish(context.Background(), topic, sessionEvent(t, "user-5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), topic)
	assert.Equal(t, 1.0, testutil.ToFloat64(PublishFailures.WithLabelValues(topic)))
	assert.Zero(t, testutil.ToFloat64(EventsPublished.WithLabelValues(topic, "session.unauthorized")))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "Error", spans[0].Status.Code.String())
}

func TestProducer_Publish_SpanParentsMessage(t *testing.T) {
	exporter := useTraceContext(t)
	w := &fakeWriter{}
	p := newTestProducer(w)

	topic := Topic("session", "traced")
	require.NoError(t, p.Publish(context.Background(), topic, sessionEvent(t, "user-6")))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "kafka.publish "+topic, span.Name)
	assert.Equal(t, trace.SpanKindProducer, span.SpanKind)

	want := fmt.Sprintf("00-%s-%s-01", span.SpanContext.TraceID(), span.SpanContext.SpanID())
	require.Len(t, w.msgs, 1)
	assert.Equal(t, want, headerValue(w.msgs[0], "traceparent"))
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newTestProducer(w).Close())
	assert.True(t, w.closed)
}

func TestProducer_Ping_NoBrokers(t *testing.T) {
	err := newTestProducer(&fakeWriter{}).Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no kafka brokers")
}

func TestProducer_Ping_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	p := NewProducer(DefaultProducerConfig([]string{addr}), slog.New(slog.DiscardHandler))
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = p.Ping(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial "+addr)
}
