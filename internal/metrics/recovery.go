package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_recovery_sweeps_total",
		Help: "Recovery sweeps by mode and outcome",
	}, []string{"mode", "outcome"}) // outcome=completed|rejected|cancelled

	sweepFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_recovery_files_total",
		Help: "Files handled by recovery sweeps by result",
	}, []string{"mode", "result"}) // result=scanned|fixed|renamed|repaired|end_time_fixed|collision|failed

	sweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transcoderd_recovery_sweep_duration_seconds",
		Help:    "Duration of recovery sweeps",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"mode"})

	sweepRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transcoderd_recovery_sweep_running",
		Help: "1 while a recovery sweep is running",
	})

	mediaToolTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_media_tool_runs_total",
		Help: "ffprobe/ffmpeg invocations by tool and result",
	}, []string{"tool", "result"}) // result=ok|error|timeout
)

// SweepCounts mirrors the per-sweep totals exported as counters.
type SweepCounts struct {
	Scanned, Fixed, Renamed, Repaired, EndTimeFixed, Collisions, Failed int
}

// ObserveSweep records a completed sweep.
func ObserveSweep(mode string, c SweepCounts, seconds float64) {
	sweepsTotal.WithLabelValues(mode, "completed").Inc()
	sweepDuration.WithLabelValues(mode).Observe(seconds)
	add := func(result string, n int) {
		if n > 0 {
			sweepFiles.WithLabelValues(mode, result).Add(float64(n))
		}
	}
	add("scanned", c.Scanned)
	add("fixed", c.Fixed)
	add("renamed", c.Renamed)
	add("repaired", c.Repaired)
	add("end_time_fixed", c.EndTimeFixed)
	add("collision", c.Collisions)
	add("failed", c.Failed)
}

// IncSweepOutcome counts a sweep that did not complete normally.
func IncSweepOutcome(mode, outcome string) {
	sweepsTotal.WithLabelValues(mode, outcome).Inc()
}

// SetSweepRunning toggles the running gauge.
func SetSweepRunning(running bool) {
	if running {
		sweepRunning.Set(1)
		return
	}
	sweepRunning.Set(0)
}

// IncMediaTool counts an ffprobe or ffmpeg run.
func IncMediaTool(tool, result string) {
	mediaToolTotal.WithLabelValues(tool, result).Inc()
}

var procTerminate = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "transcoderd_proc_terminate_total",
	Help: "Signals sent to child process groups by signal and result",
}, []string{"signal", "result"}) // result=sent|esrch|error

// IncProcTerminate counts a signal sent while stopping a child process.
func IncProcTerminate(signal, result string) {
	procTerminate.WithLabelValues(signal, result).Inc()
}
