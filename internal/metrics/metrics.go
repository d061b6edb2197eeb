// Package metrics exposes Prometheus metrics for citation checks.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the orchestrator and notifier report to
type Recorder interface {
	RecordCheck(platform, status string, duration time.Duration)
	RecordAlert(platform, alertType string)
	RecordUpstreamError(platform string, statusCode int)
	RecordNotification(channel string, success bool)
	IncInFlight(platform string)
	DecInFlight(platform string)
}

// Collector is the Prometheus implementation of Recorder
type Collector struct {
	checks        *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	alerts        *prometheus.CounterVec
	upstreamErrs  *prometheus.CounterVec
	notifications *prometheus.CounterVec
	inFlight      *prometheus.GaugeVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citecheck_checks_total",
			Help: "Citation checks that reached a terminal status",
		}, []string{"platform", "status"}),
		checkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citecheck_check_duration_seconds",
			Help:    "Wall-clock duration of citation checks",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"platform"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citecheck_alerts_total",
			Help: "Citation state change alerts created",
		}, []string{"platform", "type"}),
		upstreamErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citecheck_upstream_errors_total",
			Help: "Upstream API failures by HTTP status code",
		}, []string{"platform", "status_code"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citecheck_notifications_total",
			Help: "Alert notifications sent per channel",
		}, []string{"channel", "result"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "citecheck_checks_in_flight",
			Help: "Checks currently calling an upstream platform",
		}, []string{"platform"}),
	}

	reg.MustRegister(
		c.checks,
		c.checkDuration,
		c.alerts,
		c.upstreamErrs,
		c.notifications,
		c.inFlight,
	)

	return c
}

func (c *Collector) RecordCheck(platform, status string, duration time.Duration) {
	c.checks.WithLabelValues(platform, status).Inc()
	c.checkDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

func (c *Collector) RecordAlert(platform, alertType string) {
	c.alerts.WithLabelValues(platform, alertType).Inc()
}

// RecordUpstreamError uses status code 0 for transport failures
func (c *Collector) RecordUpstreamError(platform string, statusCode int) {
	c.upstreamErrs.WithLabelValues(platform, strconv.Itoa(statusCode)).Inc()
}

func (c *Collector) RecordNotification(channel string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.notifications.WithLabelValues(channel, result).Inc()
}

func (c *Collector) IncInFlight(platform string) {
	c.inFlight.WithLabelValues(platform).Inc()
}

func (c *Collector) DecInFlight(platform string) {
	c.inFlight.WithLabelValues(platform).Dec()
}

// Handler returns the scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordCheck(string, string, time.Duration) {}
func (Nop) RecordAlert(string, string) {}
func (Nop) RecordUpstreamError(string, int) {}
func (Nop) RecordNotification(string, bool) {}
func (Nop) IncInFlight(string) {}
func (Nop) DecInFlight(string) {}
