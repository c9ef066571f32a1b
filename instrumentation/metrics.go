package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments of the engine.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Protocol
	CodesIssued         metric.Int64Counter
	TokensIssued        metric.Int64Counter
	TokensRefreshed     metric.Int64Counter
	TokensRevoked       metric.Int64Counter
	DeviceAuthorization metric.Int64Counter
	DevicePolls         metric.Int64Counter
	ConsentDecisions    metric.Int64Counter
	LoginAttempts       metric.Int64Counter

	// Security
	RateLimitExceeded         metric.Int64Counter
	PKCEValidationFailed      metric.Int64Counter
	CodeReuseDetected         metric.Int64Counter
	RefreshTokenReuseDetected metric.Int64Counter
	ClientAuthFailed          metric.Int64Counter
	AuditEventsTotal          metric.Int64Counter

	// Storage
	StorageOperationTotal     metric.Int64Counter
	StorageOperationDuration  metric.Float64Histogram
	StorageCodesCount         metric.Int64ObservableGauge
	StorageAccessTokensCount  metric.Int64ObservableGauge
	StorageRefreshTokensCount metric.Int64ObservableGauge
	StorageDeviceCodesCount   metric.Int64ObservableGauge
}

// instrumentBuilder keeps the first creation error so newMetrics reads as a
// flat list of instruments.
type instrumentBuilder struct {
	err error
}

func (b *instrumentBuilder) counter(m metric.Meter, name, desc, unit string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s counter: %w", name, err)
	}
	return c
}

func (b *instrumentBuilder) histogram(m metric.Meter, name, desc string) metric.Float64Histogram {
	h, err := m.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s histogram: %w", name, err)
	}
	return h
}

func (b *instrumentBuilder) gauge(m metric.Meter, name, desc string) metric.Int64ObservableGauge {
	g, err := m.Int64ObservableGauge(name, metric.WithDescription(desc), metric.WithUnit("{record}"))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s gauge: %w", name, err)
	}
	return g
}

func newMetrics(inst *Instrumentation) (*Metrics, error) {
	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	var b instrumentBuilder
	m := &Metrics{
		HTTPRequestsTotal:   b.counter(httpMeter, "oauth.http.requests.total", "Total number of HTTP requests", "{request}"),
		HTTPRequestDuration: b.histogram(httpMeter, "oauth.http.request.duration", "HTTP request duration in milliseconds"),

		CodesIssued:         b.counter(serverMeter, "oauth.code.issued", "Authorization codes issued", "{code}"),
		TokensIssued:        b.counter(serverMeter, "oauth.token.issued", "Token endpoint responses issued", "{response}"),
		TokensRefreshed:     b.counter(serverMeter, "oauth.token.refreshed", "Refresh token rotations", "{refresh}"),
		TokensRevoked:       b.counter(serverMeter, "oauth.token.revoked", "Tokens revoked", "{revocation}"),
		DeviceAuthorization: b.counter(serverMeter, "oauth.device.authorization.started", "Device authorizations started", "{flow}"),
		DevicePolls:         b.counter(serverMeter, "oauth.device.poll", "Device code polls at the token endpoint", "{poll}"),
		ConsentDecisions:    b.counter(serverMeter, "oauth.consent.decision", "Consent approvals and denials", "{decision}"),
		LoginAttempts:       b.counter(serverMeter, "oauth.login.attempts", "Login form submissions", "{attempt}"),

		RateLimitExceeded:         b.counter(securityMeter, "oauth.rate_limit.exceeded", "Number of rate limit violations", "{violation}"),
		PKCEValidationFailed:      b.counter(securityMeter, "oauth.pkce.validation_failed", "Number of PKCE validation failures", "{failure}"),
		CodeReuseDetected:         b.counter(securityMeter, "oauth.code.reuse_detected", "Authorization code replay attempts", "{attempt}"),
		RefreshTokenReuseDetected: b.counter(securityMeter, "oauth.refresh_token.reuse_detected", "Rotated refresh token replay attempts", "{attempt}"),
		ClientAuthFailed:          b.counter(securityMeter, "oauth.client.auth_failed", "Client authentication failures", "{failure}"),
		AuditEventsTotal:          b.counter(securityMeter, "oauth.audit.events.total", "Total number of audit events", "{event}"),

		StorageOperationTotal:     b.counter(storageMeter, "storage.operation.total", "Total number of storage operations", "{operation}"),
		StorageOperationDuration:  b.histogram(storageMeter, "storage.operation.duration", "Storage operation duration in milliseconds"),
		StorageCodesCount:         b.gauge(storageMeter, "storage.authorization_codes.count", "Authorization codes held by the store"),
		StorageAccessTokensCount:  b.gauge(storageMeter, "storage.access_tokens.count", "Access tokens held by the store"),
		StorageRefreshTokensCount: b.gauge(storageMeter, "storage.refresh_tokens.count", "Refresh tokens held by the store"),
		StorageDeviceCodesCount:   b.gauge(storageMeter, "storage.device_codes.count", "Device codes held by the store"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordCodeIssued records an authorization code issuance
func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	m.CodesIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

// RecordTokenIssued records a successful token endpoint response
func (m *Metrics) RecordTokenIssued(ctx context.Context, clientID, grantType string) {
	m.TokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("grant_type", grantType),
	))
}

// RecordTokenRefresh records a refresh token rotation
func (m *Metrics) RecordTokenRefresh(ctx context.Context, clientID string) {
	m.TokensRefreshed.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

// RecordTokenRevocation records a token revocation
func (m *Metrics) RecordTokenRevocation(ctx context.Context, clientID string) {
	m.TokensRevoked.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

// RecordDeviceAuthorization records the start of a device flow
func (m *Metrics) RecordDeviceAuthorization(ctx context.Context, clientID string) {
	m.DeviceAuthorization.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

// RecordDevicePoll records a device_code grant attempt with its outcome
// ("pending", "expired", "issued", "invalid").
func (m *Metrics) RecordDevicePoll(ctx context.Context, clientID, result string) {
	m.DevicePolls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("result", result),
	))
}

// RecordConsentDecision records a consent approval or denial
func (m *Metrics) RecordConsentDecision(ctx context.Context, clientID string, granted bool) {
	m.ConsentDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("granted", granted),
	))
}

// RecordLoginAttempt records a login form submission
func (m *Metrics) RecordLoginAttempt(ctx context.Context, success bool) {
	m.LoginAttempts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, endpoint string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordPKCEValidationFailed records a PKCE validation failure
func (m *Metrics) RecordPKCEValidationFailed(ctx context.Context, method string) {
	m.PKCEValidationFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

// RecordCodeReuseDetected records an authorization code reuse attempt
func (m *Metrics) RecordCodeReuseDetected(ctx context.Context) {
	m.CodeReuseDetected.Add(ctx, 1)
}

// RecordRefreshTokenReuseDetected records a replay of a rotated refresh token
func (m *Metrics) RecordRefreshTokenReuseDetected(ctx context.Context) {
	m.RefreshTokenReuseDetected.Add(ctx, 1)
}

// RecordClientAuthFailed records a failed client authentication
func (m *Metrics) RecordClientAuthFailed(ctx context.Context, clientID string) {
	m.ClientAuthFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("operation", operation)))
}
