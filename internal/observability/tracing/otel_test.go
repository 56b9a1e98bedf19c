package tracing

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTLP_ENDPOINT", "collector:4317")
	t.Setenv("DEPLOY_ENV", "staging")
	t.Setenv("SERVICE_VERSION", "2.3.1")
	t.Setenv("TRACE_SAMPLE_RATE", "0.25")

	cfg := ConfigFromEnv("safety-api")
	if cfg.ServiceName != "safety-api" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.OTLPEndpoint != "collector:4317" {
		t.Errorf("OTLPEndpoint = %q", cfg.OTLPEndpoint)
	}
	if cfg.Environment != "staging" || cfg.ServiceVersion != "2.3.1" {
		t.Errorf("Environment = %q, ServiceVersion = %q", cfg.Environment, cfg.ServiceVersion)
	}
	if cfg.SampleRate != 0.25 {
		t.Errorf("SampleRate = %v, want 0.25", cfg.SampleRate)
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("OTLP_ENDPOINT", "")
	t.Setenv("DEPLOY_ENV", "")
	t.Setenv("SERVICE_VERSION", "")
	t.Setenv("TRACE_SAMPLE_RATE", "")

	cfg := ConfigFromEnv("alert-gateway")
	if cfg.OTLPEndpoint != "" {
		t.Errorf("OTLPEndpoint = %q, want export disabled", cfg.OTLPEndpoint)
	}
	if cfg.Environment != "development" || cfg.ServiceVersion != "0.0.0-dev" {
		t.Errorf("Environment = %q, ServiceVersion = %q", cfg.Environment, cfg.ServiceVersion)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("SampleRate = %v, want 1.0", cfg.SampleRate)
	}
}

func TestConfigFromEnvBadSampleRate(t *testing.T) {
	t.Setenv("TRACE_SAMPLE_RATE", "most of them")

	if cfg := ConfigFromEnv("safety-api"); cfg.SampleRate != 1.0 {
		t.Errorf("SampleRate = %v, malformed value must fall back to 1.0", cfg.SampleRate)
	}
}

func TestSamplerForClampsRate(t *testing.T) {
	cases := []struct {
		rate float64
		want sdktrace.Sampler
	}{
		{1.0, sdktrace.ParentBased(sdktrace.AlwaysSample())},
		{1.5, sdktrace.ParentBased(sdktrace.AlwaysSample())},
		{0, sdktrace.ParentBased(sdktrace.NeverSample())},
		{-0.1, sdktrace.ParentBased(sdktrace.NeverSample())},
		{0.5, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.5))},
	}
	for _, tc := range cases {
		if got := samplerFor(tc.rate); got.Description() != tc.want.Description() {
			t.Errorf("samplerFor(%v) = %q, want %q", tc.rate, got.Description(), tc.want.Description())
		}
	}
}

func TestInitWithoutEndpointIsInert(t *testing.T) {
	t.Setenv("OTLP_ENDPOINT", "")

	tp, err := Init(context.Background(), ConfigFromEnv("safety-api"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on inert provider: %v", err)
	}
}
