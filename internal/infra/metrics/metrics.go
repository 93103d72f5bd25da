// Package metrics exposes player instruments on a private Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osa030/kioskbox/internal/app/playback"
	"github.com/osa030/kioskbox/internal/app/resilience"
)

const namespace = "kioskbox"

var allStates = []playback.State{
	playback.StateIdle,
	playback.StateLoading,
	playback.StatePlaying,
	playback.StateTransitioning,
	playback.StatePaused,
	playback.StateError,
	playback.StateCircuitOpen,
}

// Metrics holds the player instruments.
type Metrics struct {
	registry *prometheus.Registry

	state          *prometheus.GaugeVec
	position       prometheus.Gauge
	length         prometheus.Gauge
	itemsStarted   *prometheus.CounterVec
	wraps          prometheus.Counter
	mediaErrors    prometheus.Counter
	unsupported    prometheus.Counter
	circuitChanges *prometheus.CounterVec
	circuitOpen    *prometheus.GaugeVec
	fetchFailures  prometheus.Counter
	telemetryDrops *prometheus.CounterVec
	channelUp      prometheus.Gauge
}

// New creates and registers all instruments.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_state",
			Help:      "1 for the current scheduler state, 0 otherwise.",
		}, []string{"state"}),
		position: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playlist_position",
			Help:      "Index of the active item.",
		}),
		length: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playlist_length",
			Help:      "Number of items in the loaded playlist.",
		}),
		itemsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_started_total",
			Help:      "Items that started playing, by content type.",
		}, []string{"type"}),
		wraps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playlist_wraps_total",
			Help:      "Times the playlist wrapped back to the first item.",
		}),
		mediaErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_errors_total",
			Help:      "Items that failed to load or play.",
		}),
		unsupported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unsupported_skips_total",
			Help:      "Items skipped because their type cannot be rendered.",
		}),
		circuitChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker transitions, by gate.",
		}, []string{"gate", "transition"}),
		circuitOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_open",
			Help:      "1 while the gate's circuit is open.",
		}, []string{"gate"}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playlist_fetch_failures_total",
			Help:      "Failed playlist fetches.",
		}),
		telemetryDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_dropped_total",
			Help:      "Telemetry events discarded, by reason.",
		}, []string{"reason"}),
		channelUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_connected",
			Help:      "1 while the duplex channel is connected.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.state, m.position, m.length, m.itemsStarted, m.wraps, m.mediaErrors,
		m.unsupported, m.circuitChanges, m.circuitOpen, m.fetchFailures,
		m.telemetryDrops, m.channelUp,
	)
	m.setState(playback.StateIdle)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// OnPlaybackEvent implements playback.Observer.
func (m *Metrics) OnPlaybackEvent(e playback.Event) {
	m.length.Set(float64(e.Length))
	switch e.Type {
	case playback.EventStateChanged:
		m.setState(e.State)
	case playback.EventItemStarted:
		m.position.Set(float64(e.Session.Index))
		if e.Item != nil {
			m.itemsStarted.WithLabelValues(string(e.Item.Type)).Inc()
		}
	case playback.EventWrapped:
		m.wraps.Inc()
	case playback.EventMediaError:
		m.mediaErrors.Inc()
	case playback.EventUnsupported:
		m.unsupported.Inc()
	case playback.EventPlaylistCleared:
		m.position.Set(0)
	}
}

func (m *Metrics) setState(st playback.State) {
	for _, s := range allStates {
		v := 0.0
		if s == st {
			v = 1
		}
		m.state.WithLabelValues(s.String()).Set(v)
	}
}

// GateChanged records a circuit transition of the named gate.
func (m *Metrics) GateChanged(gate string, t resilience.Transition) {
	m.circuitChanges.WithLabelValues(gate, t.String()).Inc()
	open := 0.0
	if t == resilience.TransitionOpened {
		open = 1
	}
	m.circuitOpen.WithLabelValues(gate).Set(open)
}

// FetchFailed counts a failed playlist fetch.
func (m *Metrics) FetchFailed() {
	m.fetchFailures.Inc()
}

// TelemetryDropped counts a discarded telemetry event.
func (m *Metrics) TelemetryDropped(reason string) {
	m.telemetryDrops.WithLabelValues(reason).Inc()
}

// ChannelConnected records the duplex channel state.
func (m *Metrics) ChannelConnected(up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.channelUp.Set(v)
}
