package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"pnp-bridge/cache"
	"pnp-bridge/queue"
	"pnp-bridge/safety"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the bridge's counters on a Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	safetyEvents    *prometheus.CounterVec

	logger *slog.Logger
}

// New builds the registry and registers the live gauges reading directly
// from the queue and cache.
func New(q *queue.CommandQueue, sc *cache.StateCache, mgr *safety.Manager, logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pnp_commands_total",
			Help: "Commands executed, by operation and outcome.",
		}, []string{"operation", "status"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pnp_command_duration_seconds",
			Help:    "End to end command execution time.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"operation"}),
		safetyEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pnp_safety_events_total",
			Help: "Safety events recorded, by kind.",
		}, []string{"kind"}),
		logger: logger.With("component", "metrics"),
	}

	registry.MustRegister(m.commandsTotal, m.commandDuration, m.safetyEvents)

	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pnp_queue_depth",
		Help: "Commands currently waiting in the queue.",
	}, func() float64 { return float64(q.Size()) }))

	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pnp_safety_level",
		Help: "Current safety level, 0 normal through 4 emergency.",
	}, func() float64 { return float64(mgr.Level()) }))

	registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "pnp_cache_hits_total",
		Help: "State cache gets served without a backend fetch.",
	}, func() float64 { return float64(sc.Stats().Hits) }))

	registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "pnp_cache_misses_total",
		Help: "State cache gets that required a backend fetch.",
	}, func() float64 { return float64(sc.Stats().Misses) }))

	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pnp_cache_entries",
		Help: "Live entries in the state cache.",
	}, func() float64 { return float64(sc.Stats().Entries) }))

	// Safety events feed the counter as they are recorded.
	mgr.OnEvent(func(ev safety.Event) {
		m.safetyEvents.WithLabelValues(string(ev.Kind)).Inc()
	})

	return m
}

// ObserveCommand records one finished command execution.
func (m *Metrics) ObserveCommand(op string, status string, duration time.Duration) {
	m.commandsTotal.WithLabelValues(op, status).Inc()
	m.commandDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the scrape endpoint until the listener fails. Intended to run
// in its own goroutine.
func (m *Metrics) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.logger.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		m.logger.Error("metrics endpoint stopped", slog.Any("error", err))
	}
}
