// Package metrics exposes the engine's degradation and anomaly counters.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/rs/zerolog"

	"github.com/maxgio92/ktally/internal/settings"
)

const (
	StackHandled = "handled"
	StackIdle    = "idle"
	StackInvalid = "invalid"
	StackDecode  = "decode_error"

	AnomalyNegativeLatency = "negative_latency"
	AnomalyEviction        = "pending_eviction"

	shutdownTimeout = 5 * time.Second
)

type Metrics struct {
	registry *prometheus.Registry

	TableDrops      prometheus.Counter
	SentinelKeys    prometheus.Counter
	LatencyAnomaly  *prometheus.CounterVec
	Stacks          *prometheus.CounterVec
	EventsLost      prometheus.Counter
	EventsDecoded   prometheus.Counter
	ReportsRendered prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TableDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: settings.CmdName,
			Name:      "counter_table_drops_total",
			Help:      "Unique keys refused because the counter table was full.",
		}),
		SentinelKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: settings.CmdName,
			Name:      "sentinel_keys_total",
			Help:      "Reserved all-bits-set keys skipped while ranking.",
		}),
		LatencyAnomaly: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: settings.CmdName,
			Name:      "latency_anomalies_total",
			Help:      "Latency samples discarded, by reason.",
		}, []string{"reason"}),
		Stacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: settings.CmdName,
			Name:      "stacks_total",
			Help:      "Stack events consumed, by outcome.",
		}, []string{"outcome"}),
		EventsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: settings.CmdName,
			Name:      "events_lost_total",
			Help:      "Records the ring buffer could not deliver.",
		}),
		EventsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: settings.CmdName,
			Name:      "events_decoded_total",
			Help:      "Raw records decoded from the ring buffer.",
		}),
		ReportsRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: settings.CmdName,
			Name:      "reports_total",
			Help:      "Report windows rendered.",
		}),
	}
	m.registry.MustRegister(
		m.TableDrops,
		m.SentinelKeys,
		m.LatencyAnomaly,
		m.Stacks,
		m.EventsLost,
		m.EventsDecoded,
		m.ReportsRendered,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// AddDrops is suitable as a counter.WithOnDrop callback.
func (m *Metrics) AddDrops(n uint64) {
	m.TableDrops.Add(float64(n))
}

// Handler returns the mux serving the registry on /metrics, and ready on
// /readyz when not nil.
func (m *Metrics) Handler(ready http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	if ready != nil {
		mux.Handle("/readyz", ready)
	}

	return mux
}

// Serve exposes Handler on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, ready http.Handler, logger log.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(ready),
		ReadHeaderTimeout: shutdownTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Debug().Str("addr", addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "error serving metrics on %s", addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
