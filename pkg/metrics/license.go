package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for license operations.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// LicenseMetrics counts license engine operations and login lockouts.
type LicenseMetrics struct {
	operations *prometheus.CounterVec
	lockouts   prometheus.Counter
}

// NewLicenseMetrics registers the engine collectors on reg. A nil registerer
// yields a no-op recorder.
func NewLicenseMetrics(reg prometheus.Registerer) *LicenseMetrics {
	if reg == nil {
		return &LicenseMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "license_operations_total",
		Help:      "License lifecycle operations by operation and outcome code.",
	}, []string{"op", "outcome"})
	lockouts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_lockouts_total",
		Help:      "Login lockouts triggered by repeated failures.",
	})
	reg.MustRegister(operations, lockouts)
	return &LicenseMetrics{operations: operations, lockouts: lockouts}
}

// RecordOperation counts one engine call. outcome is OutcomeSuccess or an
// error code such as DEVICE_CONFLICT.
func (m *LicenseMetrics) RecordOperation(op, outcome string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(op), normalizeLabel(outcome)).Inc()
}

// IncLockout counts a lockout that was just triggered.
func (m *LicenseMetrics) IncLockout() {
	if m == nil || m.lockouts == nil {
		return
	}
	m.lockouts.Inc()
}
