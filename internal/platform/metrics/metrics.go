// Package metrics provides observability for the chat logger.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatlog"

// Collector gathers session and log metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	records         *prometheus.CounterVec
	linesWritten    prometheus.Counter
	lineWriteErrors prometheus.Counter
	archiveErrors   prometheus.Counter
	reconnects      prometheus.Counter
	disconnects     *prometheus.CounterVec
	whispers        *prometheus.CounterVec
	phase           prometheus.Gauge
	players         prometheus.Gauge
}

// New creates a collector with every metric registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Text records received, by record kind",
		}, []string{"kind"}),
		linesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_written_total",
			Help:      "Lines appended to the activity log",
		}),
		lineWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "line_write_errors_total",
			Help:      "Failed activity log writes",
		}),
		archiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_errors_total",
			Help:      "Failed archive inserts",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Connection attempts made after a disconnect",
		}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Disconnects observed, by cause",
		}, []string{"reason"}),
		whispers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "whispers_total",
			Help:      "Message-of-the-day whispers, by result",
		}, []string{"result"}),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_phase",
			Help:      "Current session phase (0 idle, 1 connecting, 2 connected, 3 disconnected)",
		}),
		players: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players_estimated",
			Help:      "Players believed online, from join and leave messages",
		}),
	}
	c.registry.MustRegister(
		c.records, c.linesWritten, c.lineWriteErrors, c.archiveErrors,
		c.reconnects, c.disconnects, c.whispers, c.phase, c.players,
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordRecord counts one received text record.
func (c *Collector) RecordRecord(kind string) {
	c.records.WithLabelValues(kind).Inc()
}

// RecordLineWrite records an activity log write.
func (c *Collector) RecordLineWrite(err error) {
	if err != nil {
		c.lineWriteErrors.Inc()
		return
	}
	c.linesWritten.Inc()
}

// RecordArchiveError counts a failed archive insert.
func (c *Collector) RecordArchiveError() {
	c.archiveErrors.Inc()
}

// RecordReconnect counts a retry attempt.
func (c *Collector) RecordReconnect() {
	c.reconnects.Inc()
}

// RecordDisconnect counts a disconnect by cause.
func (c *Collector) RecordDisconnect(reason string) {
	c.disconnects.WithLabelValues(reason).Inc()
}

// RecordWhisper counts a whisper attempt.
func (c *Collector) RecordWhisper(err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	c.whispers.WithLabelValues(result).Inc()
}

// SetPhase publishes the session phase.
func (c *Collector) SetPhase(phase int) {
	c.phase.Set(float64(phase))
}

// SetPlayers publishes the player estimate.
func (c *Collector) SetPlayers(n int) {
	c.players.Set(float64(n))
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends. Each register func may
// mount further routes on the same mux.
func (c *Collector) Serve(ctx context.Context, addr string, register ...func(*http.ServeMux)) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	for _, fn := range register {
		fn(mux)
	}
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
