// Package metrics counts protocol runs in a Prometheus registry and exports them
// as a node-exporter textfile.
package metrics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"pipetter/internal/logging"
	"pipetter/internal/protocol"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pipetter"

// Recorder owns a private registry so several recorders can coexist in one process.
type Recorder struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	batches       *prometheus.CounterVec
	transfers     *prometheus.CounterVec
	volume        *prometheus.CounterVec
	failures      *prometheus.CounterVec
	recoveries    *prometheus.CounterVec
	runDuration   prometheus.Histogram
	batchDuration *prometheus.HistogramVec
	tipsRequired  prometheus.Gauge
	tipsAvailable prometheus.Gauge
}

// NewRecorder creates a recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Protocol runs by outcome.",
		}, []string{"outcome"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Committed transfer batches.",
		}, []string{"compound"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Committed well transfers.",
		}, []string{"compound"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispensed_microliters_total",
			Help:      "Volume dispensed into the plate.",
		}, []string{"compound"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed runs by stage and liquid-handling step.",
		}, []string{"stage", "step"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tip_recoveries_total",
			Help:      "Tip recovery outcomes after a failed step.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Protocol run duration.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of one pick-up/aspirate/dispense/drop cycle.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"compound"}),
		tipsRequired: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tips_required",
			Help:      "Tips required by the last run.",
		}),
		tipsAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tips_available",
			Help:      "Tips available at the start of the last run.",
		}),
	}
	r.registry.MustRegister(r.runs, r.batches, r.transfers, r.volume, r.failures, r.recoveries,
		r.runDuration, r.batchDuration, r.tipsRequired, r.tipsAvailable)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveRun records a finished run and the error Run returned with it.
func (r *Recorder) ObserveRun(run *protocol.Run, err error) {
	if run == nil {
		return
	}
	for _, b := range run.Batches {
		r.batches.WithLabelValues(b.Compound).Inc()
		r.transfers.WithLabelValues(b.Compound).Add(float64(b.Size))
		r.volume.WithLabelValues(b.Compound).Add(b.Volume)
		r.batchDuration.WithLabelValues(b.Compound).Observe(b.Duration.Seconds())
	}
	if !run.FinishedAt.IsZero() {
		r.runDuration.Observe(run.Duration().Seconds())
	}
	r.tipsRequired.Set(float64(run.TipsRequired))
	r.tipsAvailable.Set(float64(run.TipsAvailable))

	if err == nil {
		r.runs.WithLabelValues("success").Inc()
		return
	}
	r.runs.WithLabelValues("failure").Inc()

	stage := "unknown"
	var pe *protocol.ProtocolError
	if errors.As(err, &pe) {
		stage = string(pe.Stage)
	}
	step := "none"
	if s, rec, ok := protocol.FailedStep(err); ok {
		step = string(s)
		r.recoveries.WithLabelValues(recoveryLabel(rec)).Inc()
	} else if errors.Is(err, protocol.ErrInvalidVolume) && stage == string(protocol.StageExecute) {
		step = string(protocol.StepValidate)
	}
	r.failures.WithLabelValues(stage, step).Inc()
}

func recoveryLabel(rec protocol.RecoveryResult) string {
	switch {
	case rec.Skipped():
		return "skipped"
	case rec.Succeeded():
		return "released"
	default:
		return "failed"
	}
}

// WriteTextfile writes the registry in the Prometheus text format, atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	logging.Metrics("Wrote metrics to %s", path)
	return nil
}
