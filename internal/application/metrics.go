package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSamplesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coldwatch_samples_processed_total",
		Help: "Sensor samples accepted into the processing pipeline.",
	})
	metricPayloadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coldwatch_payload_errors_total",
		Help: "Bus payloads dropped because they failed to parse.",
	})
	metricAlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coldwatch_alerts_emitted_total",
		Help: "Alerts enqueued for webhook dispatch, by priority.",
	}, []string{"priority"})
	metricDoorTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coldwatch_door_transitions_total",
		Help: "Committed virtual door transitions.",
	})
	metricDefrostTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coldwatch_defrost_transitions_total",
		Help: "Committed defrost cycle starts and ends.",
	})
	metricQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "coldwatch_queue_depth",
		Help: "Current depth of the drain queues.",
	}, []string{"queue"})
	metricTrackedSensors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coldwatch_tracked_sensors",
		Help: "Sensors with live in-memory state.",
	})
)
