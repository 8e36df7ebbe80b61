// Package metrics
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Provider owns the coordinator's prometheus registry and the handful of
// series the background services record into.
type Provider struct {
	registry *prometheus.Registry

	tickDuration *prometheus.HistogramVec
	tickTotal    *prometheus.CounterVec

	trackedProposals prometheus.Gauge
	activeTasks      prometheus.Gauge
	settlementTotal  *prometheus.CounterVec
}

func New() *Provider {
	p := &Provider{
		registry: prometheus.NewRegistry(),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coordinator_task_tick_duration_seconds",
			Help:    "Duration of one scheduled task tick",
			Buckets: prometheus.DefBuckets,
		}, []string{"task_type"}),
		tickTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_task_ticks_total",
			Help: "Scheduled task ticks by task type and result",
		}, []string{"task_type", "result"}),
		trackedProposals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coordinator_monitor_tracked_proposals",
			Help: "Proposals currently tracked by the monitor",
		}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coordinator_scheduler_active_tasks",
			Help: "Tasks currently registered in the scheduler",
		}),
		settlementTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_settlement_steps_total",
			Help: "Lifecycle settlement steps by step and result",
		}, []string{"step", "result"}),
	}
	p.registry.MustRegister(p.tickDuration, p.tickTotal, p.trackedProposals, p.activeTasks, p.settlementTotal)
	return p
}

func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Provider) RecordTick(taskType string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.tickDuration.WithLabelValues(taskType).Observe(d.Seconds())
	p.tickTotal.WithLabelValues(taskType, result).Inc()
}

func (p *Provider) SetTrackedProposals(n int) {
	p.trackedProposals.Set(float64(n))
}

func (p *Provider) SetActiveTasks(n int) {
	p.activeTasks.Set(float64(n))
}

func (p *Provider) RecordSettlementStep(step, result string) {
	p.settlementTotal.WithLabelValues(step, result).Inc()
}
