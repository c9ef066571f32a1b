// Package instrumentation provides OpenTelemetry metrics and tracing for the
// authorization server engine.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		Enabled:        true,
//		ServiceName:    "authserver",
//		MetricsExporter: instrumentation.ExporterPrometheus,
//		OTLPEndpoint:   "http://otel-collector:4318",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	srv.SetInstrumentation(inst)
//	http.Handle("/metrics", inst.MetricsHandler())
//
// When Enabled is false every provider is a no-op and recording costs nothing.
//
// # Available Metrics
//
// HTTP layer:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint} (ms)
//
// Protocol:
//   - oauth.code.issued{client_id}
//   - oauth.token.issued{client_id, grant_type}
//   - oauth.token.refreshed{client_id}
//   - oauth.token.revoked{client_id}
//   - oauth.device.authorization.started{client_id}
//   - oauth.device.poll{client_id, result}
//   - oauth.consent.decision{client_id, granted}
//   - oauth.login.attempts{success}
//
// Security:
//   - oauth.rate_limit.exceeded{endpoint}
//   - oauth.pkce.validation_failed{method}
//   - oauth.code.reuse_detected
//   - oauth.refresh_token.reuse_detected
//   - oauth.client.auth_failed{client_id}
//   - oauth.audit.events.total{event_type}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation} (ms)
//   - storage.authorization_codes.count, storage.access_tokens.count,
//     storage.refresh_tokens.count, storage.device_codes.count (gauges)
//
// Never put token, code or secret values into attributes; the Attr*
// constants describe metadata only.
package instrumentation
