package platformmetrics

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type metrics struct {
	impersonationStarts  *prometheus.CounterVec
	impersonationRevokes *prometheus.CounterVec
	rolloutMutations     *prometheus.CounterVec
	accessDenials        *prometheus.CounterVec
	tenantsTotal         prometheus.Gauge
	activeImpersonations prometheus.Gauge
	memoryBytes          prometheus.Gauge
	deploymentInfo       *prometheus.GaugeVec
}

func newMetrics(registry *prometheus.Registry, deploymentID string) *metrics {
	deploymentID = strings.TrimSpace(deploymentID)
	if deploymentID == "" {
		deploymentID = "unknown"
	}
	constLabels := prometheus.Labels{"deployment_id": deploymentID}

	m := &metrics{
		impersonationStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "haulboard_deployment_impersonation_starts_total",
			Help:        "Impersonation sessions started, by tenant.",
			ConstLabels: constLabels,
		}, []string{"tenant_id"}),
		impersonationRevokes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "haulboard_deployment_impersonation_revokes_total",
			Help:        "Impersonation sessions revoked, by tenant.",
			ConstLabels: constLabels,
		}, []string{"tenant_id"}),
		rolloutMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "haulboard_deployment_rollout_mutations_total",
			Help:        "Rollout rule changes, by action.",
			ConstLabels: constLabels,
		}, []string{"action"}),
		accessDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "haulboard_deployment_access_denials_total",
			Help:        "Authorization denials, by check.",
			ConstLabels: constLabels,
		}, []string{"check"}),
		tenantsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "haulboard_deployment_tenants_total",
			Help:        "Tenants provisioned in this deployment.",
			ConstLabels: constLabels,
		}),
		activeImpersonations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "haulboard_deployment_active_impersonation_sessions",
			Help:        "Impersonation sessions currently active.",
			ConstLabels: constLabels,
		}),
		memoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "haulboard_deployment_memory_bytes",
			Help:        "Memory obtained from the OS by this deployment.",
			ConstLabels: constLabels,
		}),
		deploymentInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "haulboard_deployment_info",
			Help:        "Deployment build metadata.",
			ConstLabels: constLabels,
		}, []string{"version"}),
	}

	registry.MustRegister(
		m.impersonationStarts,
		m.impersonationRevokes,
		m.rolloutMutations,
		m.accessDenials,
		m.tenantsTotal,
		m.activeImpersonations,
		m.memoryBytes,
		m.deploymentInfo,
	)
	return m
}

// PlatformMetrics aggregates deployment health for the control plane push.
type PlatformMetrics struct {
	registry *prometheus.Registry
	metrics  *metrics
	pusher   Pusher
	log      *zap.Logger
}

// New wires the deployment registry and installs the package recorder.
func New(registry *prometheus.Registry, pusher Pusher, deploymentID, version string, log *zap.Logger) *PlatformMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}

	m := newMetrics(registry, deploymentID)
	version = strings.TrimSpace(version)
	if version == "" {
		version = "unknown"
	}
	m.deploymentInfo.WithLabelValues(version).Set(1)

	setRecorder(&recorder{metrics: m})

	return &PlatformMetrics{
		registry: registry,
		metrics:  m,
		pusher:   pusher,
		log:      log,
	}
}

func (c *PlatformMetrics) SetTenantsTotal(count int64) {
	if c == nil || c.metrics == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	c.metrics.tenantsTotal.Set(float64(count))
}

func (c *PlatformMetrics) SetActiveImpersonationSessions(count int64) {
	if c == nil || c.metrics == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	c.metrics.activeImpersonations.Set(float64(count))
}

func (c *PlatformMetrics) SetMemoryUsage(bytes uint64) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.memoryBytes.Set(float64(bytes))
}

// Push sends the current registry snapshot. A nil pusher is a no-op.
func (c *PlatformMetrics) Push(ctx context.Context) error {
	if c == nil || c.pusher == nil {
		return nil
	}
	return c.pusher.Push(ctx, c.registry)
}
