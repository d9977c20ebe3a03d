// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scheduledChannels = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "transcoderd_scheduled_channels",
		Help: "Number of channels with a registered task per scheduler",
	}, []string{"scheduler"})

	triggerFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_schedule_triggers_total",
		Help: "Trigger firings by scheduler, trigger kind and outcome",
	}, []string{"scheduler", "trigger", "outcome"}) // outcome=dispatched|skipped|missed

	actionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_schedule_actions_total",
		Help: "Dispatched actions by scheduler, action and result",
	}, []string{"scheduler", "action", "result"}) // result=success|error|panic

	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transcoderd_schedule_action_duration_seconds",
		Help:    "Duration of dispatched scheduler actions",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"scheduler", "action"})

	reloadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_schedule_reloads_total",
		Help: "Scheduler reloads by outcome",
	}, []string{"scheduler", "outcome"}) // outcome=success|fetch_error|superseded

	configFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_config_fetch_errors_total",
		Help: "Configuration Service fetch failures by resource",
	}, []string{"resource"})

	workdayDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transcoderd_workday_calendar_degraded",
		Help: "1 when the workday calendar could not be loaded",
	})
)

// SetScheduledChannels records the number of registered tasks.
func SetScheduledChannels(scheduler string, n int) {
	scheduledChannels.WithLabelValues(scheduler).Set(float64(n))
}

// IncTrigger counts a trigger firing.
func IncTrigger(scheduler, trigger, outcome string) {
	triggerFiredTotal.WithLabelValues(scheduler, trigger, outcome).Inc()
}

// ObserveAction records the result and duration of a dispatched action.
func ObserveAction(scheduler, action, result string, seconds float64) {
	actionTotal.WithLabelValues(scheduler, action, result).Inc()
	actionDuration.WithLabelValues(scheduler, action).Observe(seconds)
}

// IncReload counts a scheduler reload.
func IncReload(scheduler, outcome string) {
	reloadTotal.WithLabelValues(scheduler, outcome).Inc()
}

// IncConfigFetchError counts a Configuration Service failure.
func IncConfigFetchError(resource string) {
	configFetchErrors.WithLabelValues(resource).Inc()
}

// SetWorkdayDegraded exports the calendar degradation flag.
func SetWorkdayDegraded(degraded bool) {
	if degraded {
		workdayDegraded.Set(1)
		return
	}
	workdayDegraded.Set(0)
}
