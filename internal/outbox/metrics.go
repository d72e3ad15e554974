package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published       prometheus.Counter
	PublishFailures prometheus.Counter
	CircuitOpen     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		Published: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox messages acknowledged by Kafka",
		}),
		PublishFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "outbox_publish_failures_total",
			Help: "Outbox batches that failed to publish",
		}),
		CircuitOpen: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "outbox_kafka_circuit_open",
			Help: "1 while repeated publish failures have slowed outbox polling",
		}),
	}
}
