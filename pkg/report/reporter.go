// Package report ranks counter snapshots and renders them on a fixed
// cadence.
package report

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/maxgio92/ktally/pkg/counter"
	"github.com/maxgio92/ktally/pkg/metrics"
)

const DefaultTopK = 10

// Snapshotter is the part of the counter store the reporter consumes.
type Snapshotter interface {
	SnapshotAndClear() (*counter.Snapshot, error)
}

type Reporter struct {
	store    Snapshotter
	interval time.Duration
	count    int
	duration time.Duration
	topK     int
	metric   Metric
	labeler  Labeler
	renderer Renderer
	out      io.Writer
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   log.Logger

	beforeFinal func()
}

type Option func(*Reporter)

// WithInterval makes the reporter flush every interval. Without an
// interval the reporter flushes once, at the end of the run.
func WithInterval(interval time.Duration) Option {
	return func(r *Reporter) {
		r.interval = interval
	}
}

// WithCount stops the reporter after count windows, when positive.
func WithCount(count int) Option {
	return func(r *Reporter) {
		r.count = count
	}
}

// WithDuration bounds a single-shot run. Zero waits for cancellation.
func WithDuration(duration time.Duration) Option {
	return func(r *Reporter) {
		r.duration = duration
	}
}

func WithTopK(topK int) Option {
	return func(r *Reporter) {
		r.topK = topK
	}
}

func WithMetric(metric Metric) Option {
	return func(r *Reporter) {
		r.metric = metric
	}
}

func WithLabeler(labeler Labeler) Option {
	return func(r *Reporter) {
		r.labeler = labeler
	}
}

func WithRenderer(renderer Renderer) Option {
	return func(r *Reporter) {
		r.renderer = renderer
	}
}

func WithWriter(out io.Writer) Option {
	return func(r *Reporter) {
		r.out = out
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		r.now = now
	}
}

// WithBeforeFinalFlush registers fn to run right before the last window is
// flushed, e.g. to stop and drain the producers feeding the store.
func WithBeforeFinalFlush(fn func()) Option {
	return func(r *Reporter) {
		r.beforeFinal = fn
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reporter) {
		r.metrics = m
	}
}

func WithLogger(logger log.Logger) Option {
	return func(r *Reporter) {
		r.logger = logger.With().Str("component", "report").Logger()
	}
}

func NewReporter(store Snapshotter, opts ...Option) *Reporter {
	r := &Reporter{
		store:   store,
		topK:    DefaultTopK,
		metric:  ByCount,
		labeler: SyscallLabeler{},
		out:     os.Stdout,
		now:     time.Now,
		logger:  log.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.renderer == nil {
		r.renderer = TextRenderer{
			Column:  r.labeler.Column(),
			Latency: r.metric == ByLatency,
		}
	}

	return r
}

// Run reports until ctx is done, or until the configured number of windows
// or the single-shot duration is reached. Cancellation always produces one
// last report before returning.
func (r *Reporter) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return r.runOnce(ctx)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for n := 0; r.count <= 0 || n < r.count; n++ {
		select {
		case <-ctx.Done():
			r.logger.Debug().Msg("interrupted, flushing last window")
			return r.finalFlush()
		case <-ticker.C:
			// The tick and the cancellation may be ready together.
			if ctx.Err() != nil {
				return r.finalFlush()
			}
			if r.count > 0 && n == r.count-1 {
				return r.finalFlush()
			}
			if err := r.Flush(); err != nil {
				r.logger.Error().Err(err).Msg("failed to report window")
			}
			// Cancelled while flushing: that window was the last one.
			if ctx.Err() != nil {
				return nil
			}
		}
	}

	return nil
}

func (r *Reporter) runOnce(ctx context.Context) error {
	var timeout <-chan time.Time
	if r.duration > 0 {
		timer := time.NewTimer(r.duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
	case <-timeout:
	}

	return r.finalFlush()
}

func (r *Reporter) finalFlush() error {
	if r.beforeFinal != nil {
		r.beforeFinal()
	}
	return r.Flush()
}

// Flush snapshots and clears the store, then renders the top entries.
func (r *Reporter) Flush() error {
	snap, err := r.store.SnapshotAndClear()
	if err != nil {
		return errors.Wrap(err, "error taking counters snapshot")
	}

	ranked, sentinels := Rank(snap.Entries, r.metric, r.topK)
	if sentinels > 0 {
		r.logger.Debug().Int("count", sentinels).Msg("skipping sentinel keys")
	}
	if snap.Drops > 0 {
		r.logger.Warn().Uint64("drops", snap.Drops).Msg("counter table full, updates dropped")
	}

	rows := make([]Row, 0, len(ranked))
	for _, e := range ranked {
		rows = append(rows, Row{
			Key:     uint32(e.Key),
			Label:   r.labeler.Label(e.Key),
			Count:   e.Record.Count,
			TotalNs: e.Record.TotalNs,
		})
	}

	w := NewWindow(
		WithWindowTime(r.now()),
		WithWindowRows(rows),
		WithWindowDrops(snap.Drops),
	)
	if err = r.renderer.Render(r.out, w); err != nil {
		return errors.Wrap(err, "error rendering report")
	}

	if r.metrics != nil {
		r.metrics.SentinelKeys.Add(float64(sentinels))
		r.metrics.ReportsRendered.Inc()
	}

	return nil
}
