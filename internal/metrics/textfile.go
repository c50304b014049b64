// Package metrics exports the result of a backup cycle in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"Bits3/internal/engine"
)

const metricsNamespace = "bits3"

// Collector is a prometheus.Collector holding the gauges of the last cycle.
type Collector struct {
	lastRun         *prometheus.GaugeVec
	lastSuccess     *prometheus.GaugeVec
	outcome         *prometheus.GaugeVec
	artifactBytes   *prometheus.GaugeVec
	duration        *prometheus.GaugeVec
	pruned          *prometheus.GaugeVec
	pruneFailures   *prometheus.GaugeVec
	daysSinceUpload *prometheus.GaugeVec
}

func NewCollector() *Collector {
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		}, labels)
	}
	return &Collector{
		lastRun:         gauge("last_run_timestamp_seconds", "Start time of the last backup cycle.", "bucket"),
		lastSuccess:     gauge("last_upload_timestamp_seconds", "Time of the newest object in the bucket.", "bucket"),
		outcome:         gauge("last_run_outcome", "1 for the outcome of the last cycle, 0 for the others.", "bucket", "outcome"),
		artifactBytes:   gauge("last_artifact_bytes", "Size of the last uploaded artifact.", "bucket"),
		duration:        gauge("last_run_duration_seconds", "Wall time of the last backup cycle.", "bucket"),
		pruned:          gauge("last_run_pruned_objects", "Objects deleted by retention in the last cycle.", "bucket"),
		pruneFailures:   gauge("last_run_prune_failures", "Retention steps that failed in the last cycle.", "bucket"),
		daysSinceUpload: gauge("days_since_upload", "Whole days between the last upload and the last cycle.", "bucket"),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges() {
		g.Describe(ch)
	}
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, g := range c.gauges() {
		g.Collect(ch)
	}
}

func (c *Collector) gauges() []*prometheus.GaugeVec {
	return []*prometheus.GaugeVec{
		c.lastRun, c.lastSuccess, c.outcome, c.artifactBytes,
		c.duration, c.pruned, c.pruneFailures, c.daysSinceUpload,
	}
}

// Observe records res for bucket.
func (c *Collector) Observe(bucket string, res *engine.Result) {
	c.lastRun.WithLabelValues(bucket).Set(float64(res.Started.Unix()))
	for _, o := range []engine.Outcome{engine.Success, engine.Skipped, engine.Failed} {
		v := 0.0
		if o == res.Outcome {
			v = 1
		}
		c.outcome.WithLabelValues(bucket, o.String()).Set(v)
	}
	c.duration.WithLabelValues(bucket).Set(res.Duration.Seconds())
	c.pruned.WithLabelValues(bucket).Set(float64(len(res.Deleted)))
	c.pruneFailures.WithLabelValues(bucket).Set(float64(len(res.PruneFailures)))

	switch {
	case res.Outcome == engine.Success && res.Artifact != nil:
		c.lastSuccess.WithLabelValues(bucket).Set(float64(res.Started.Add(res.Duration).Unix()))
		c.artifactBytes.WithLabelValues(bucket).Set(float64(res.Artifact.Size))
		c.daysSinceUpload.WithLabelValues(bucket).Set(0)
	case !res.LastUpload.IsZero():
		c.lastSuccess.WithLabelValues(bucket).Set(float64(res.LastUpload.Unix()))
		c.daysSinceUpload.WithLabelValues(bucket).Set(float64(res.DaysSince))
	}
}

// WriteTextfile atomically writes the collector's metrics to path.
func WriteTextfile(path string, c *Collector) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
