// Package metrics exports the outcome of a data migration run in the
// Prometheus text format, for the node_exporter textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/crmv2/crmv2/internal/crmmigrate"
)

const namespace = "crmv2_migration"

type collectors struct {
	rows     *prometheus.GaugeVec
	duration prometheus.Gauge
	success  prometheus.Gauge
}

func newCollectors(reg prometheus.Registerer) *collectors {
	c := &collectors{
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows",
			Help:      "Legacy rows per entity by outcome in the last migration run.",
		}, []string{"entity", "outcome"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Wall time of the last migration run.",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "success",
			Help:      "Whether the last migration run committed (1/0).",
		}),
	}
	reg.MustRegister(c.rows, c.duration, c.success)
	return c
}

// Registry returns a private registry holding the gauges for report. A nil
// report, as left by a failed run, only sets the success gauge.
func Registry(report *crmmigrate.Report, success bool) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	c := newCollectors(reg)
	if success {
		c.success.Set(1)
	}
	if report == nil {
		return reg
	}
	c.duration.Set(report.Duration.Seconds())
	for _, s := range report.Entities {
		entity := string(s.Entity)
		c.rows.WithLabelValues(entity, "migrated").Set(float64(s.Migrated))
		c.rows.WithLabelValues(entity, "skipped").Set(float64(s.Skipped))
		c.rows.WithLabelValues(entity, "duplicate").Set(float64(s.Duplicates))
	}
	return reg
}

// WriteTextfile writes the gauges for report to path. The file is replaced
// atomically so the collector never reads a partial write.
func WriteTextfile(path string, report *crmmigrate.Report, success bool) error {
	if err := prometheus.WriteToTextfile(path, Registry(report, success)); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}
