package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricSinkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "coldwatch_sink_failures_total",
	Help: "Failed drain attempts against a sink, by sink name.",
}, []string{"sink"})
