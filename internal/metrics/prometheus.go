package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/i474232898/gaiatryst-synopsis/internal/coherence"
)

// Recorder implements coherence.Recorder using Prometheus.
type Recorder struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	stationValue  *prometheus.GaugeVec
	globalAverage prometheus.Gauge
	activeCount   prometheus.Gauge
	lastSuccess   prometheus.Gauge
	logAppends    *prometheus.CounterVec
}

// New registers the collectors on reg and returns the recorder.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gci_fetch_cycles_total",
				Help: "Total number of fetch cycles by result",
			},
			[]string{"result"},
		),
		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gci_fetch_cycle_duration_seconds",
				Help:    "Duration of fetch cycles in seconds",
				Buckets: []float64{1, 5, 10, 20, 30, 60, 120},
			},
		),
		stationValue: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gci_station_power_hz",
				Help: "Latest reported value per station",
			},
			[]string{"station"},
		),
		globalAverage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gci_global_average_hz",
				Help: "Mean of active station values",
			},
		),
		activeCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gci_active_stations",
				Help: "Number of stations reporting a positive value",
			},
		),
		lastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gci_last_success_timestamp_seconds",
				Help: "Unix time of the last successful fetch cycle",
			},
		),
		logAppends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gci_log_appends_total",
				Help: "Total number of CSV log appends by result",
			},
			[]string{"result"},
		),
	}
}

// RecordCycle records the outcome and duration of a fetch cycle.
func (r *Recorder) RecordCycle(result string, duration time.Duration) {
	r.cycles.WithLabelValues(result).Inc()
	r.cycleDuration.Observe(duration.Seconds())
}

// RecordSnapshot publishes the values of a fresh snapshot.
func (r *Recorder) RecordSnapshot(s coherence.Snapshot) {
	for _, id := range coherence.Stations {
		r.stationValue.WithLabelValues(string(id)).Set(s.Stations[id])
	}
	r.globalAverage.Set(s.GlobalAverage)
	r.activeCount.Set(float64(s.ActiveCount))
	r.lastSuccess.Set(float64(s.Timestamp.Unix()))
}

// RecordLogAppend counts a log append, failed when err is non-nil.
func (r *Recorder) RecordLogAppend(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	r.logAppends.WithLabelValues(result).Inc()
}
