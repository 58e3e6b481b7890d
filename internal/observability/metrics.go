// Package observability exposes the fabric daemon's Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registrySizeGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sapphire_kv",
		Subsystem: "registry",
		Name:      "objects",
		Help:      "Number of objects currently registered, by collection.",
	}, []string{"collection"})

	eventsReceivedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sapphire_kv",
		Subsystem: "pipeline",
		Name:      "events_received_total",
		Help:      "Number of fine-grained events applied by the worker pool.",
	})

	eventsDroppedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sapphire_kv",
		Subsystem: "pipeline",
		Name:      "events_dropped_total",
		Help:      "Number of events dropped, grouped by reason.",
	}, []string{"reason"})

	ttlEvictionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sapphire_kv",
		Subsystem: "ttlreaper",
		Name:      "evictions_total",
		Help:      "Number of replicas evicted after their TTL expired.",
	})

	brokerReconnectsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sapphire_kv",
		Subsystem: "broker",
		Name:      "reconnects_total",
		Help:      "Number of broker (re)connect attempts, grouped by backend.",
	}, []string{"backend"})

	frameDecodeErrorsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sapphire_kv",
		Subsystem: "subscriber",
		Name:      "frame_decode_errors_total",
		Help:      "Number of inbound frames that failed to decode.",
	})
)

func init() {
	prometheus.MustRegister(
		registrySizeGauge,
		eventsReceivedCounter,
		eventsDroppedCounter,
		ttlEvictionsCounter,
		brokerReconnectsCounter,
		frameDecodeErrorsCounter,
	)
}

// SetRegistrySize records the current object count for a collection.
func SetRegistrySize(collection string, count int) {
	registrySizeGauge.WithLabelValues(collection).Set(float64(count))
}

// RecordEventsReceived increments the applied-events counter by n.
func RecordEventsReceived(n int) {
	if n <= 0 {
		return
	}
	eventsReceivedCounter.Add(float64(n))
}

// RecordEventDropped increments the dropped-events counter for the given reason.
func RecordEventDropped(reason string) {
	eventsDroppedCounter.WithLabelValues(reason).Inc()
}

// RecordTTLEvictions increments the TTL eviction counter by n.
func RecordTTLEvictions(n int) {
	if n <= 0 {
		return
	}
	ttlEvictionsCounter.Add(float64(n))
}

// RecordBrokerReconnect increments the reconnect counter for the given backend.
func RecordBrokerReconnect(backend string) {
	brokerReconnectsCounter.WithLabelValues(backend).Inc()
}

// RecordFrameDecodeError increments the frame decode error counter.
func RecordFrameDecodeError() {
	frameDecodeErrorsCounter.Inc()
}
