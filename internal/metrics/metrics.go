package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful operations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed operations.
	OutcomeError = "error"
	// OutcomeSkipped labels channels or sinks that were not configured.
	OutcomeSkipped = "skipped"
)

var (
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "errordecode",
			Name:      "notifications_total",
			Help:      "Total number of failure reports handled, partitioned by result status.",
		},
		[]string{"status"},
	)

	notificationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "errordecode",
			Name:      "notification_seconds",
			Help:      "End-to-end handling latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 45},
		},
	)

	analysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "errordecode",
			Name:      "analysis_total",
			Help:      "Diagnoses produced, partitioned by ladder outcome (ai, heuristic, network, http_status, parse).",
		},
		[]string{"outcome"},
	)

	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "errordecode",
			Name:      "dispatch_total",
			Help:      "Channel delivery attempts, partitioned by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	logSinkTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "errordecode",
			Name:      "log_sink_appends_total",
			Help:      "Analysis log appends, partitioned by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)

	inferenceProbeUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "errordecode",
			Name:      "inference_probe_up",
			Help:      "1 when the last scheduled probe of the inference deployment succeeded.",
		},
	)

	configReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "errordecode",
			Name:      "config_reloads_total",
			Help:      "Explicit configuration reloads, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches errordecode collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		notificationsTotal,
		notificationDurationSeconds,
		analysisTotal,
		dispatchTotal,
		logSinkTotal,
		inferenceProbeUp,
		configReloadsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveNotification records a handling duration and result status ("sent",
// "analysis_only" or "error").
func ObserveNotification(duration time.Duration, status string) {
	notificationsTotal.WithLabelValues(status).Inc()
	if duration < 0 {
		duration = 0
	}
	notificationDurationSeconds.Observe(duration.Seconds())
}

// ObserveAnalysis counts one diagnosis by ladder outcome.
func ObserveAnalysis(outcome string) {
	analysisTotal.WithLabelValues(outcome).Inc()
}

// ObserveDispatch counts one channel attempt.
func ObserveDispatch(channel, outcome string) {
	dispatchTotal.WithLabelValues(channel, outcome).Inc()
}

// ObserveLogSink counts one sink append.
func ObserveLogSink(backend, outcome string) {
	logSinkTotal.WithLabelValues(backend, outcome).Inc()
}

// SetInferenceUp records the result of the latest inference probe.
func SetInferenceUp(up bool) {
	if up {
		inferenceProbeUp.Set(1)
		return
	}
	inferenceProbeUp.Set(0)
}

// ObserveConfigReload counts one reload attempt.
func ObserveConfigReload(outcome string) {
	configReloadsTotal.WithLabelValues(outcome).Inc()
}
