package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "bookfeed"

var (
	EventsAppliedTotal  = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "events_applied_total", Help: "Events applied to the book by kind"}, []string{"kind"})
	EventsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "events_rejected_total", Help: "Events not applied by reason"}, []string{"reason"})
	ResyncsTotal        = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "resyncs_total", Help: "Book resyncs by reason"}, []string{"reason"})
	EmissionsTotal      = prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "top_of_book_emissions_total", Help: "Top-of-book changes emitted"})
	EngineSynced        = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "engine_synced", Help: "1 when the book is synced, 0 while resyncing"})
	BookLevels          = prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: "book_levels", Help: "Price levels per side"}, []string{"side"})
	BookOrders          = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "book_orders", Help: "Resting orders in the book"})
	BestPrice           = prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: "best_price", Help: "Best price per side, 0 when empty"}, []string{"side"})

	QueueDepth          = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "queue_depth", Help: "Events waiting in the handoff queue"})
	QueueOverflowsTotal = prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "queue_overflows_total", Help: "Queue overflows resolved by dropping and resyncing"})
	QueueDroppedTotal   = prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "queue_dropped_events_total", Help: "Events discarded by queue overflow"})

	FeedMessagesTotal   = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "feed_messages_total", Help: "Wire messages received by type"}, []string{"type"})
	FeedReconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "feed_reconnects_total", Help: "Feed reconnects by reason"}, []string{"reason"})
	FeedGapsTotal       = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "feed_gaps_total", Help: "Gaps raised by the feed decoder by reason"}, []string{"reason"})

	SinkErrorsTotal    = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "sink_errors_total", Help: "Sink publish failures by sink"}, []string{"sink"})
	SinkLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "sink_publish_seconds", Help: "Sink publish latency", Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10)}, []string{"sink"})
)

// Init registers every collector on a fresh registry.
func Init() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		EventsAppliedTotal, EventsRejectedTotal, ResyncsTotal, EmissionsTotal,
		EngineSynced, BookLevels, BookOrders, BestPrice,
		QueueDepth, QueueOverflowsTotal, QueueDroppedTotal,
		FeedMessagesTotal, FeedReconnectsTotal, FeedGapsTotal,
		SinkErrorsTotal, SinkLatencySeconds,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		if err := reg.Register(c); err != nil {
			zap.S().Warnf("register collector: %v", err)
		}
	}
	zap.S().Debug("prometheus metrics initialized")
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
