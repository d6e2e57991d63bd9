package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus instrumentation for the group coordination engine.
type Metrics struct {
	registry            *prometheus.Registry
	activeStreams       prometheus.Gauge
	streamSubscribers   prometheus.Gauge
	streamBytesTotal    prometheus.Counter
	streamsStartedTotal prometheus.Counter
	streamsEndedTotal   prometheus.Counter
	groupCommandsTotal  *prometheus.CounterVec
}

// New creates and registers the engine metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ugp_active_streams",
			Help: "Number of universal group broadcast streams currently live",
		}),
		streamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ugp_stream_subscribers",
			Help: "Number of subscribers currently attached to broadcast streams",
		}),
		streamBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ugp_stream_bytes_total",
			Help: "Total number of transcoded bytes broadcast to subscribers",
		}),
		streamsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ugp_streams_started_total",
			Help: "Total number of broadcast streams started",
		}),
		streamsEndedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ugp_streams_ended_total",
			Help: "Total number of broadcast streams that reached their done state",
		}),
		groupCommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "group_commands_total",
			Help: "Total number of group-directed transport commands, by command",
		}, []string{"command"}),
	}

	registry.MustRegister(
		m.activeStreams,
		m.streamSubscribers,
		m.streamBytesTotal,
		m.streamsStartedTotal,
		m.streamsEndedTotal,
		m.groupCommandsTotal,
	)
	return m
}

func (m *Metrics) StreamStarted() {
	m.streamsStartedTotal.Inc()
	m.activeStreams.Inc()
}

func (m *Metrics) StreamEnded() {
	m.streamsEndedTotal.Inc()
	m.activeStreams.Dec()
}

func (m *Metrics) SubscriberAdded() {
	m.streamSubscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	m.streamSubscribers.Dec()
}

func (m *Metrics) AddStreamBytes(n int) {
	m.streamBytesTotal.Add(float64(n))
}

func (m *Metrics) IncGroupCommand(command string) {
	m.groupCommandsTotal.WithLabelValues(command).Inc()
}

// Handler returns an http.Handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
