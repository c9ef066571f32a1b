package instrumentation

import (
	"context"
	"testing"
)

func TestMetrics_RecordAll(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		cfg := Config{Enabled: enabled}
		if enabled {
			cfg.MetricsExporter = ExporterPrometheus
		}
		inst, err := New(cfg)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		ctx := context.Background()
		m := inst.Metrics()
		m.RecordHTTPRequest(ctx, "GET", "authorize", 302, 1.2)
		m.RecordCodeIssued(ctx, "c")
		m.RecordTokenIssued(ctx, "c", "client_credentials")
		m.RecordTokenRefresh(ctx, "c")
		m.RecordTokenRevocation(ctx, "c")
		m.RecordDeviceAuthorization(ctx, "c")
		m.RecordDevicePoll(ctx, "c", "pending")
		m.RecordConsentDecision(ctx, "c", true)
		m.RecordLoginAttempt(ctx, false)
		m.RecordRateLimitExceeded(ctx, "token")
		m.RecordPKCEValidationFailed(ctx, "S256")
		m.RecordCodeReuseDetected(ctx)
		m.RecordRefreshTokenReuseDetected(ctx)
		m.RecordClientAuthFailed(ctx, "c")
		m.RecordAuditEvent(ctx, "login_failed")
		m.RecordStorageOperation(ctx, "consume_code", "success", 0.1)

		_ = inst.Shutdown(ctx)
	}
}
