// Package aggregate runs the counting pipeline in user space: raw syscall
// events go through the filter policy, the latency tracker when enabled, and
// land in the counter store.
package aggregate

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/maxgio92/ktally/pkg/counter"
	"github.com/maxgio92/ktally/pkg/filter"
	"github.com/maxgio92/ktally/pkg/latency"
	"github.com/maxgio92/ktally/pkg/metrics"
)

const (
	DefaultPollTimeout = 100 * time.Millisecond

	// drainPollTimeout bounds each poll once the context is done.
	drainPollTimeout = 10 * time.Millisecond
	// maxDrainTime caps the drain when producers keep writing.
	maxDrainTime = 2 * time.Second
)

// Source delivers raw records. A poll returning zero records is not an
// error.
type Source interface {
	Poll(timeout time.Duration, fn func([]byte)) (int, error)
}

type Aggregator struct {
	policy  filter.Policy
	store   *counter.Store
	tracker *latency.Tracker

	lastAnomalies uint64
	lastEvictions uint64

	pollTimeout time.Duration
	metrics     *metrics.Metrics
	logger      log.Logger
}

type Option func(*Aggregator)

// WithLatency correlates enter and exit events through tracker and
// accumulates their elapsed time.
func WithLatency(tracker *latency.Tracker) Option {
	return func(a *Aggregator) {
		a.tracker = tracker
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

func WithLogger(logger log.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger.With().Str("component", "aggregate").Logger()
	}
}

func WithPollTimeout(timeout time.Duration) Option {
	return func(a *Aggregator) {
		a.pollTimeout = timeout
	}
}

func New(policy filter.Policy, store *counter.Store, opts ...Option) (*Aggregator, error) {
	if store == nil {
		return nil, errors.New("counter store is nil")
	}
	a := &Aggregator{
		policy:      policy,
		store:       store,
		pollTimeout: DefaultPollTimeout,
		logger:      log.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Observe feeds one event through the pipeline.
func (a *Aggregator) Observe(ev RawEvent) error {
	fev := ev.filterEvent()
	if !a.policy.Allow(fev) {
		return nil
	}

	if !fev.Exit {
		if a.tracker != nil {
			a.tracker.Start(ev.TaskID, ev.TimestampNs)
			a.observeTracker()
		}
		return nil
	}

	delta := counter.Record{Count: 1}
	if a.tracker != nil {
		elapsed, ok := a.tracker.End(ev.TaskID, ev.TimestampNs)
		a.observeTracker()
		if !ok {
			return nil
		}
		delta.TotalNs = elapsed
	}

	return a.store.Upsert(a.policy.Key(fev), delta)
}

func (a *Aggregator) observeTracker() {
	if a.metrics == nil {
		return
	}
	if n := a.tracker.Anomalies(); n > a.lastAnomalies {
		a.metrics.LatencyAnomaly.WithLabelValues(metrics.AnomalyNegativeLatency).Add(float64(n - a.lastAnomalies))
		a.lastAnomalies = n
	}
	if n := a.tracker.Evictions(); n > a.lastEvictions {
		a.metrics.LatencyAnomaly.WithLabelValues(metrics.AnomalyEviction).Add(float64(n - a.lastEvictions))
		a.lastEvictions = n
	}
}

// Handle decodes and observes one raw record. Malformed records are logged
// and skipped.
func (a *Aggregator) Handle(data []byte) {
	ev, err := DecodeRawEvent(data)
	if err != nil {
		a.logger.Debug().Err(err).Msg("skipping malformed record")
		return
	}
	if a.metrics != nil {
		a.metrics.EventsDecoded.Inc()
	}
	if err = a.Observe(ev); err != nil {
		a.logger.Warn().Err(err).Msg("failed to aggregate event")
	}
}

// Run consumes src until ctx is done, then drains the records already
// buffered before returning.
func (a *Aggregator) Run(ctx context.Context, src Source) error {
	a.logger.Debug().Msg("consuming raw events")
	for {
		select {
		case <-ctx.Done():
			return a.drain(src)
		default:
		}
		if _, err := src.Poll(a.pollTimeout, a.Handle); err != nil {
			return errors.Wrap(err, "error polling raw events")
		}
	}
}

func (a *Aggregator) drain(src Source) error {
	deadline := time.Now().Add(maxDrainTime)
	total := 0
	for time.Now().Before(deadline) {
		n, err := src.Poll(drainPollTimeout, a.Handle)
		if err != nil {
			return errors.Wrap(err, "error draining raw events")
		}
		total += n
		if n == 0 {
			break
		}
	}
	a.logger.Debug().Int("records", total).Msg("drained raw events")
	return nil
}
