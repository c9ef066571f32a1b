package instrumentation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"disabled", Config{Enabled: false}, false},
		{"enabled without exporters", Config{Enabled: true, ServiceName: "test", ServiceVersion: "1.0.0"}, false},
		{"explicit none exporter", Config{Enabled: true, MetricsExporter: ExporterNone}, false},
		{"prometheus exporter", Config{Enabled: true, MetricsExporter: ExporterPrometheus}, false},
		{"unknown exporter", Config{Enabled: true, MetricsExporter: "statsd"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer func() { _ = inst.Shutdown(context.Background()) }()

			for _, scope := range []string{"http", "server", "storage", "security"} {
				if inst.Meter(scope) == nil {
					t.Errorf("Meter(%q) returned nil", scope)
				}
				if inst.Tracer(scope) == nil {
					t.Errorf("Tracer(%q) returned nil", scope)
				}
			}
			if inst.Metrics() == nil {
				t.Error("Metrics() returned nil")
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if inst.config.ServiceName != DefaultServiceName {
		t.Errorf("ServiceName = %q, want %q", inst.config.ServiceName, DefaultServiceName)
	}
	if inst.config.ServiceVersion != DefaultServiceVersion {
		t.Errorf("ServiceVersion = %q, want %q", inst.config.ServiceVersion, DefaultServiceVersion)
	}
	if inst.ShouldLogClientIPs() {
		t.Error("ShouldLogClientIPs() = true for zero config")
	}
}

func TestMetricsHandler_Prometheus(t *testing.T) {
	inst, err := New(Config{Enabled: true, MetricsExporter: ExporterPrometheus})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	inst.Metrics().RecordTokenIssued(context.Background(), "client-1", "authorization_code")
	inst.Metrics().RecordHTTPRequest(context.Background(), "POST", "token", 200, 12.5)

	srv := httptest.NewServer(inst.MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	for _, want := range []string{"oauth_token_issued", "oauth_http_requests_total", `grant_type="authorization_code"`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetricsHandler_NotConfigured(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	w := httptest.NewRecorder()
	inst.MetricsHandler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRegisterStorageSizeCallbacks(t *testing.T) {
	inst, err := New(Config{Enabled: true, MetricsExporter: ExporterPrometheus})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	if err := inst.RegisterStorageSizeCallbacks(
		func() int64 { return 3 },
		func() int64 { return 7 },
		nil,
		func() int64 { return 1 },
	); err != nil {
		t.Fatalf("RegisterStorageSizeCallbacks() error = %v", err)
	}

	w := httptest.NewRecorder()
	inst.MetricsHandler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(w.Body.String(), "storage_access_tokens_count") {
		t.Errorf("gauge not exported:\n%s", w.Body.String())
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	inst, err := New(Config{Enabled: true, MetricsExporter: ExporterPrometheus})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("first Shutdown() error = %v", err)
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestInstrumentation_ConcurrentAccess(t *testing.T) {
	inst, err := New(Config{Enabled: true, MetricsExporter: ExporterPrometheus})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, span := inst.Tracer("server").Start(context.Background(), "op")
			inst.Metrics().RecordCodeIssued(ctx, "c")
			inst.Metrics().RecordStorageOperation(ctx, "get", "success", 0.5)
			span.End()
		}()
	}
	wg.Wait()
}
