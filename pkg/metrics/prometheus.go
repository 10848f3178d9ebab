package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukex/strobe/pkg/models"
)

const scrapeTimeout = 5 * time.Second

var (
	runsDesc = prometheus.NewDesc(
		"strobe_runs_total",
		"Number of runs recorded, by terminal or in-flight status.",
		[]string{"status"}, nil,
	)
	attemptsDesc = prometheus.NewDesc(
		"strobe_attempts_total",
		"Number of HTTP attempts in the last 24 hours, by error class.",
		[]string{"error_class"}, nil,
	)
	schedulesDesc = prometheus.NewDesc(
		"strobe_schedules",
		"Number of schedules, by status.",
		[]string{"status"}, nil,
	)
	successRateDesc = prometheus.NewDesc(
		"strobe_success_rate_24h",
		"Fraction of terminal runs in the last 24 hours that succeeded.",
		nil, nil,
	)
	latencyDesc = prometheus.NewDesc(
		"strobe_attempt_latency_ms_24h",
		"Average attempt latency in milliseconds over the last 24 hours.",
		nil, nil,
	)
)

// PrometheusCollector derives every metric from the store at scrape time, so
// scrapes agree with the audit trail even across restarts.
type PrometheusCollector struct {
	collector *Collector
}

// NewPrometheusCollector wraps a Collector for scraping.
func NewPrometheusCollector(c *Collector) *PrometheusCollector {
	return &PrometheusCollector{collector: c}
}

// NewRegistry returns a registry with the strobe collector plus the standard
// process and Go runtime collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewPrometheusCollector(c))

	return registry
}

// Describe implements prometheus.Collector.
func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- runsDesc
	ch <- attemptsDesc
	ch <- schedulesDesc
	ch <- successRateDesc
	ch <- latencyDesc
}

// Collect implements prometheus.Collector. A failed store round trip yields
// an invalid metric so the scrape surfaces the error instead of zeroes.
func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	summary, err := p.collector.Summary(ctx, "")
	if err != nil {
		ch <- prometheus.NewInvalidMetric(runsDesc, err)

		return
	}

	for status, count := range summary.Runs {
		ch <- prometheus.MustNewConstMetric(runsDesc, prometheus.GaugeValue, float64(count), string(status))
	}

	for class, count := range summary.ErrorBreakdown {
		label := string(class)
		if label == "" {
			label = string(models.ErrorClassNone)
		}

		ch <- prometheus.MustNewConstMetric(attemptsDesc, prometheus.GaugeValue, float64(count), label)
	}

	for status, count := range summary.SchedulesByState {
		ch <- prometheus.MustNewConstMetric(schedulesDesc, prometheus.GaugeValue, float64(count), string(status))
	}

	ch <- prometheus.MustNewConstMetric(successRateDesc, prometheus.GaugeValue, summary.SuccessRate24h)
	ch <- prometheus.MustNewConstMetric(latencyDesc, prometheus.GaugeValue, summary.AvgLatencyMs24h)
}
