// Package stack turns kernel stack samples into filtered, symbolized dumps.
package stack

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/maxgio92/ktally/pkg/metrics"
)

const (
	DefaultIdleMarker  = "cpuidle"
	DefaultPollTimeout = 100 * time.Millisecond

	delimiter = "==================================="
)

// Source delivers raw records. A poll returning zero records is not an
// error.
type Source interface {
	Poll(timeout time.Duration, fn func([]byte)) (int, error)
}

// Resolver returns the return addresses of a captured stack, most recent
// call first.
type Resolver interface {
	Stack(id uint32) ([]uint64, error)
}

type Symbolizer interface {
	Symbolize(addr uint64, showOffset bool) string
}

type Sampler struct {
	resolver    Resolver
	symbolizer  Symbolizer
	idleMarkers []string
	out         io.Writer
	pollTimeout time.Duration
	metrics     *metrics.Metrics
	logger      log.Logger
}

type Option func(*Sampler)

func WithIdleMarkers(markers ...string) Option {
	return func(s *Sampler) {
		s.idleMarkers = markers
	}
}

func WithWriter(out io.Writer) Option {
	return func(s *Sampler) {
		s.out = out
	}
}

func WithPollTimeout(timeout time.Duration) Option {
	return func(s *Sampler) {
		s.pollTimeout = timeout
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sampler) {
		s.metrics = m
	}
}

func WithLogger(logger log.Logger) Option {
	return func(s *Sampler) {
		s.logger = logger.With().Str("component", "stack").Logger()
	}
}

func NewSampler(resolver Resolver, symbolizer Symbolizer, opts ...Option) (*Sampler, error) {
	if resolver == nil {
		return nil, errors.New("stack resolver is nil")
	}
	if symbolizer == nil {
		return nil, errors.New("symbolizer is nil")
	}
	s := &Sampler{
		resolver:    resolver,
		symbolizer:  symbolizer,
		idleMarkers: []string{DefaultIdleMarker},
		out:         os.Stdout,
		pollTimeout: DefaultPollTimeout,
		logger:      log.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Run polls src and handles every record until ctx is done.
func (s *Sampler) Run(ctx context.Context, src Source) error {
	s.logger.Debug().Msg("consuming events from ring buffer")
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if _, err := src.Poll(s.pollTimeout, s.Handle); err != nil {
			return errors.Wrap(err, "error polling events")
		}
	}
}

// Handle processes one raw record. Nothing here is fatal: bad records are
// reported and skipped.
func (s *Sampler) Handle(data []byte) {
	ev, err := DecodeEvent(data)
	if err != nil {
		s.logger.Debug().Err(err).Msg("skipping malformed record")
		s.count(metrics.StackDecode)
		return
	}
	if s.metrics != nil {
		s.metrics.EventsDecoded.Inc()
	}

	if ev.StackID < 0 {
		s.count(metrics.StackInvalid)
		fmt.Fprintf(s.out, "Empty kernel stack received\n\n")
		return
	}

	addrs, err := s.resolver.Stack(uint32(ev.StackID))
	if err != nil {
		s.logger.Debug().Err(err).Int64("stack_id", ev.StackID).Msg("error resolving stack")
		s.count(metrics.StackInvalid)
		fmt.Fprintf(s.out, "Invalid kernel stack %d received\n\n", ev.StackID)
		return
	}

	frames := s.Frames(addrs)
	if frames == nil {
		s.count(metrics.StackIdle)
		return
	}

	if err = s.Render(ev, frames); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write stack dump")
		return
	}
	s.count(metrics.StackHandled)
}

// Frames symbolizes addrs with offsets. It returns nil when the stack goes
// through an idle loop.
func (s *Sampler) Frames(addrs []uint64) []string {
	frames := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		sym := s.symbolizer.Symbolize(addr, true)
		if s.isIdle(sym) {
			return nil
		}
		frames = append(frames, sym)
	}

	return frames
}

func (s *Sampler) isIdle(sym string) bool {
	for _, marker := range s.idleMarkers {
		if marker != "" && strings.Contains(sym, marker) {
			return true
		}
	}
	return false
}

func (s *Sampler) Render(ev *Event, frames []string) error {
	var b strings.Builder

	fmt.Fprintln(&b, delimiter)
	fmt.Fprintf(&b, "TASK: %s (pid %5d tid %5d) Total Time: %-9.3fus\n\n",
		ev.CommString(), ev.PID(), ev.TID(), float64(ev.TimeNs)/1000)
	fmt.Fprintln(&b, "Stack Dump on exit from Critical Section:")
	for _, f := range frames {
		fmt.Fprintf(&b, "  %s\n", f)
	}
	fmt.Fprintln(&b, delimiter)
	fmt.Fprintln(&b)

	_, err := io.WriteString(s.out, b.String())
	return err
}

func (s *Sampler) count(outcome string) {
	if s.metrics != nil {
		s.metrics.Stacks.WithLabelValues(outcome).Inc()
	}
}
