package otel

import "testing"

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = secret ,, =skip,broken, tenant=lend ")
	if len(headers) != 2 || headers["api-key"] != "secret" || headers["tenant"] != "lend" {
		t.Fatalf("unexpected headers %+v", headers)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if _, ok := ConfigFromEnv("lendingd", "dev"); ok {
		t.Fatalf("expected telemetry disabled without endpoint")
	}
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-team=lending")
	cfg, ok := ConfigFromEnv("lendingd", "dev")
	if !ok {
		t.Fatalf("expected telemetry enabled")
	}
	if cfg.Endpoint != "collector:4318" || !cfg.Insecure || cfg.Headers["x-team"] != "lending" || cfg.ServiceName != "lendingd" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestConfigFromEnvSignalToggles(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://collector:4318")
	t.Setenv("LEND_OTEL_METRICS", "false")
	t.Setenv("LEND_OTEL_TRACES", "not-a-bool")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	cfg, ok := ConfigFromEnv("lendingd", "prod")
	if !ok {
		t.Fatalf("expected telemetry enabled")
	}
	if cfg.Metrics || !cfg.Traces {
		t.Fatalf("unexpected signal toggles %+v", cfg)
	}
	if cfg.SampleRatio != 0.25 || cfg.Endpoint != "collector:4318" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
