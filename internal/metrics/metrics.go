// Package metrics exposes the process's Prometheus collectors. One
// Metrics value owns a private registry, so tests and the two server
// generations can instantiate it freely without registration clashes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fiveserver"

// Metrics holds every collector the server publishes. It satisfies
// the session monitor and the world recorder seams.
type Metrics struct {
	registry *prometheus.Registry

	connectionsActive  *prometheus.GaugeVec
	connectionsTotal   *prometheus.CounterVec
	connectionsRefused *prometheus.CounterVec
	framesReceived     *prometheus.CounterVec
	handlerErrors      *prometheus.CounterVec

	matchesStored *prometheus.CounterVec
	storeLatency  prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		connectionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Open game connections per service role.",
		}, []string{"role"}),
		connectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Accepted game connections per service role.",
		}, []string{"role"}),
		connectionsRefused: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_refused_total",
			Help:      "Connections turned away at admission per service role.",
		}, []string{"role"}),
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames read from game connections per service role.",
		}, []string{"role"}),
		handlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Frame handler failures per service role.",
		}, []string{"role"}),
		matchesStored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_stored_total",
			Help:      "Finished matches written to the database.",
		}, []string{"game"}),
		storeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_duration_seconds",
			Help:      "Latency of database writes on the match path.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ConnectionOpened counts a connection that passed admission.
func (m *Metrics) ConnectionOpened(role string) {
	m.connectionsTotal.WithLabelValues(role).Inc()
	m.connectionsActive.WithLabelValues(role).Inc()
}

// ConnectionClosed ends the active span of an opened connection.
func (m *Metrics) ConnectionClosed(role string) {
	m.connectionsActive.WithLabelValues(role).Dec()
}

// ConnectionRefused counts a connection turned away at admission.
func (m *Metrics) ConnectionRefused(role string) {
	m.connectionsRefused.WithLabelValues(role).Inc()
}

// FrameReceived counts one frame read off a connection.
func (m *Metrics) FrameReceived(role string) {
	m.framesReceived.WithLabelValues(role).Inc()
}

// HandlerError counts one failed frame handler.
func (m *Metrics) HandlerError(role string) {
	m.handlerErrors.WithLabelValues(role).Inc()
}

// MatchStored counts one recorded match of the given generation.
func (m *Metrics) MatchStored(game string) {
	m.matchesStored.WithLabelValues(game).Inc()
}

// StoreLatency records how long one match-path database write took.
func (m *Metrics) StoreLatency(d time.Duration) {
	m.storeLatency.Observe(d.Seconds())
}

// LobbyCount is one lobby's population sample.
type LobbyCount struct {
	Name    string
	Players int
	Rooms   int
}

// ObserveWorld registers scrape-time gauges for the online count and
// the per-lobby population. The sampler runs on every scrape and must
// do its own locking.
func (m *Metrics) ObserveWorld(sample func() (online int, lobbies []LobbyCount)) {
	m.registry.MustRegister(&worldCollector{
		sample: sample,
		usersOnline: prometheus.NewDesc(namespace+"_users_online",
			"Users currently logged in.", nil, nil),
		lobbyPlayers: prometheus.NewDesc(namespace+"_lobby_players",
			"Players sitting in each lobby.", []string{"lobby"}, nil),
		lobbyRooms: prometheus.NewDesc(namespace+"_lobby_rooms",
			"Open rooms in each lobby.", []string{"lobby"}, nil),
	})
}

type worldCollector struct {
	sample       func() (int, []LobbyCount)
	usersOnline  *prometheus.Desc
	lobbyPlayers *prometheus.Desc
	lobbyRooms   *prometheus.Desc
}

func (c *worldCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.usersOnline
	ch <- c.lobbyPlayers
	ch <- c.lobbyRooms
}

func (c *worldCollector) Collect(ch chan<- prometheus.Metric) {
	online, lobbies := c.sample()
	ch <- prometheus.MustNewConstMetric(
		c.usersOnline, prometheus.GaugeValue, float64(online))
	for _, l := range lobbies {
		ch <- prometheus.MustNewConstMetric(
			c.lobbyPlayers, prometheus.GaugeValue, float64(l.Players), l.Name)
		ch <- prometheus.MustNewConstMetric(
			c.lobbyRooms, prometheus.GaugeValue, float64(l.Rooms), l.Name)
	}
}
