// Package metricsexport renders engine counters in Prometheus text
// exposition format. It reads snapshots only; it never mutates engine state.
package metricsexport

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/clubsuite/clubauth"
)

type metricsSource interface {
	MetricsSnapshot() clubauth.MetricsSnapshot
	AuditDropped() uint64
}

type counterDef struct {
	ID   clubauth.MetricID
	Name string
	Help string
}

var counterDefs = []counterDef{
	{clubauth.MetricLoginSuccess, "clubauth_login_success_total", "Successful logins."},
	{clubauth.MetricLoginFailure, "clubauth_login_failure_total", "Failed logins."},
	{clubauth.MetricLoginLocked, "clubauth_login_locked_total", "Logins rejected by an active lockout."},
	{clubauth.MetricLockoutTriggered, "clubauth_lockout_triggered_total", "Lockouts set by the failure threshold."},
	{clubauth.MetricRiskAlert, "clubauth_risk_alert_total", "Logins scored above the alert threshold."},
	{clubauth.MetricRefreshSuccess, "clubauth_refresh_success_total", "Successful token rotations."},
	{clubauth.MetricRefreshFailure, "clubauth_refresh_failure_total", "Rejected refresh attempts."},
	{clubauth.MetricRefreshReuseDetected, "clubauth_refresh_reuse_total", "Replayed rotated-away refresh tokens."},
	{clubauth.MetricSessionCreated, "clubauth_session_created_total", "Sessions created at login."},
	{clubauth.MetricSessionRevoked, "clubauth_session_revoked_total", "Session revocation operations."},
	{clubauth.MetricLogout, "clubauth_logout_total", "Explicit logouts."},
	{clubauth.MetricResetRequested, "clubauth_reset_requested_total", "Password reset tokens issued."},
	{clubauth.MetricResetCompleted, "clubauth_reset_completed_total", "Completed password resets."},
}

var latencyBounds = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// Exporter renders clubauth metrics for scraping.
type Exporter struct {
	source metricsSource
}

// NewExporter creates an [Exporter] reading from the given engine.
func NewExporter(engine *clubauth.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewExporterFromSource creates an [Exporter] from a custom source.
func NewExporterFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler returns an http.Handler serving the exposition text.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(e.Render()))
	})
}

// Render writes the current metrics in Prometheus text exposition format.
func (e *Exporter) Render() string {
	if e == nil || e.source == nil {
		return ""
	}

	snapshot := e.source.MetricsSnapshot()

	var b strings.Builder
	b.Grow(8192)

	for _, def := range counterDefs {
		writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
	}

	if buckets, ok := snapshot.Histograms[clubauth.MetricValidateLatency]; ok {
		writeHistogram(&b, "clubauth_validate_latency_seconds", "Access validation latency.", cumulative(buckets))
	}

	writeCounter(&b, "clubauth_audit_dropped_total", "Dropped audit events due to dispatcher backpressure.", e.source.AuditDropped())

	return b.String()
}

func cumulative(buckets []uint64) []uint64 {
	out := make([]uint64, len(buckets))
	var sum uint64
	for i, v := range buckets {
		sum += v
		out[i] = sum
	}
	return out
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(help)
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative []uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(help)
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" histogram\n")

	for i := 0; i < len(cumulative) && i < len(latencyBounds); i++ {
		b.WriteString(name)
		b.WriteString("_bucket{le=\"")
		b.WriteString(latencyBounds[i])
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(cumulative[i], 10))
		b.WriteByte('\n')
	}

	var count uint64
	if len(cumulative) > 0 {
		count = cumulative[len(cumulative)-1]
	}
	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(count, 10))
	b.WriteByte('\n')

	// Sum is not tracked in core snapshots; keep a stable field.
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}
