package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"

	"github.com/catenax-ng/product-agents-edc-sub000/config"
)

// saveAndRestoreGlobals snapshots the global OTel state and restores it via
// t.Cleanup so tests don't leak state.
func saveAndRestoreGlobals(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	origProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
		otel.SetTextMapPropagator(origProp)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobals(t)

	p, err := Init(config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_DisabledStillPropagates(t *testing.T) {
	saveAndRestoreGlobals(t)

	_, err := Init(config.TelemetryConfig{Enabled: false}, nil)
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), sc)

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	assert.Contains(t, carrier.Get("traceparent"), sc.TraceID().String())
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobals(t)

	p, err := Init(config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentgateway-test",
		SampleRate:   0.5,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.Enabled())

	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK)
	assert.True(t, mpIsSDK)

	// 没有 collector，关闭可能报连接错误，只要求按时返回
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NotPanics(t, func() { _ = p.Shutdown(ctx) })
}

func TestSampler_FollowsParent(t *testing.T) {
	sampled := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{9},
		SpanID:     trace.SpanID{9},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), sampled)

	for _, rate := range []float64{0, 0.1, 1} {
		res := sampler(rate).ShouldSample(sdktrace.SamplingParameters{
			ParentContext: ctx,
			TraceID:       sampled.TraceID(),
			Name:          "federation.remote_call",
		})
		assert.Equal(t, sdktrace.RecordAndSample, res.Decision, "rate %v", rate)
	}

	root := sampler(0).ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{7},
		Name:          "root",
	})
	assert.Equal(t, sdktrace.Drop, root.Decision)
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, p.Enabled())
}

func TestBuildVersion(t *testing.T) {
	// 测试二进制里 ReadBuildInfo 通常返回 "(devel)"
	assert.Equal(t, "dev", buildVersion())
}
