package platformmetrics

import (
	"strings"
	"sync"
)

type Recorder interface {
	RecordImpersonationStarted(tenantID string)
	RecordImpersonationRevoked(tenantID string)
	RecordRolloutMutation(action string)
	RecordAccessDenied(check string)
}

type recorder struct {
	metrics *metrics
}

type noopRecorder struct{}

func (noopRecorder) RecordImpersonationStarted(string) {}
func (noopRecorder) RecordImpersonationRevoked(string) {}
func (noopRecorder) RecordRolloutMutation(string)      {}
func (noopRecorder) RecordAccessDenied(string)         {}

var (
	activeRecorder Recorder = noopRecorder{}
	recorderMu     sync.RWMutex
)

func setRecorder(rec Recorder) {
	if rec == nil {
		return
	}
	recorderMu.Lock()
	activeRecorder = rec
	recorderMu.Unlock()
}

func RecordImpersonationStarted(tenantID string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordImpersonationStarted(tenantID)
}

func RecordImpersonationRevoked(tenantID string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordImpersonationRevoked(tenantID)
}

func RecordRolloutMutation(action string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordRolloutMutation(action)
}

func RecordAccessDenied(check string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordAccessDenied(check)
}

func (r *recorder) RecordImpersonationStarted(tenantID string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.impersonationStarts.WithLabelValues(normalizeLabel(tenantID)).Inc()
}

func (r *recorder) RecordImpersonationRevoked(tenantID string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.impersonationRevokes.WithLabelValues(normalizeLabel(tenantID)).Inc()
}

func (r *recorder) RecordRolloutMutation(action string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.rolloutMutations.WithLabelValues(normalizeLabel(action)).Inc()
}

func (r *recorder) RecordAccessDenied(check string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.accessDenials.WithLabelValues(normalizeLabel(check)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
