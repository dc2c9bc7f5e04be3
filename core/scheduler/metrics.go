package scheduler

import "github.com/prometheus/client_golang/prometheus"

var (
	tasksDropped      *prometheus.CounterVec
	tasksExecuted     *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
	optimizationReqs  *prometheus.CounterVec
	publications      *prometheus.CounterVec
	scheduleDeviation prometheus.Gauge
	incompleteRecords *prometheus.GaugeVec
)

func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Gauge, *prometheus.GaugeVec) {
	dropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gems_queue_tasks_dropped_total",
			Help: "Queued tasks discarded because their validity horizon passed",
		},
		[]string{"kind"},
	)
	executed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gems_queue_tasks_executed_total",
			Help: "Queued tasks executed by result",
		},
		[]string{"kind", "result"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gems_queue_task_duration_seconds",
			Help:    "Wall time spent executing queued tasks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	reqs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gems_optimization_requests_total",
			Help: "Compliance optimization requests by trigger and outcome",
		},
		[]string{"reason", "outcome"},
	)
	pubs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gems_publications_total",
			Help: "Schedule publications by kind and result",
		},
		[]string{"kind", "result"},
	)
	dev := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gems_schedule_deviation_wh",
			Help: "Last measured deviation from the committed schedule in Wh",
		},
	)
	incomplete := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gems_incomplete_publications",
			Help: "Persisted incomplete publication records by kind",
		},
		[]string{"kind"},
	)
	return dropped, executed, duration, reqs, pubs, dev, incomplete
}

func init() {
	tasksDropped, tasksExecuted, taskDuration, optimizationReqs, publications, scheduleDeviation, incompleteRecords = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers scheduler metrics on reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(tasksDropped, tasksExecuted, taskDuration, optimizationReqs, publications, scheduleDeviation, incompleteRecords)
}

// ResetMetrics reinitializes the collectors for tests and registers them on
// reg if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	tasksDropped, tasksExecuted, taskDuration, optimizationReqs, publications, scheduleDeviation, incompleteRecords = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
