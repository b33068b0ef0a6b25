package critstat

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maxgio92/ktally/internal/output"
	"github.com/maxgio92/ktally/internal/settings"
	"github.com/maxgio92/ktally/pkg/healthcheck"
	"github.com/maxgio92/ktally/pkg/ksym"
	"github.com/maxgio92/ktally/pkg/metrics"
	"github.com/maxgio92/ktally/pkg/probe"
	"github.com/maxgio92/ktally/pkg/stack"
)

const (
	CmdName = "critstat"

	tracepointCategory = "preemptirq"

	mapStackTraces = "stack_traces"
	mapEvents      = "events"
	mapLost        = "lost"

	statusRefresh = time.Second
)

var (
	ErrInvalidBufferPages = errors.New("--buffer-pages must be a positive power of two")
	ErrInvalidThreshold   = errors.New("--duration-threshold must not be negative")
)

func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   CmdName,
		Short: "Dump the kernel stacks of long critical sections",
		Long: fmt.Sprintf(`
%s traces sections of kernel code that run with interrupts (or preemption)
disabled for longer than a threshold, and prints the kernel stack at the exit
of each section. Stacks going through the idle loop are skipped.
It requires a kernel built with CONFIG_PREEMPTIRQ_TRACEPOINTS.
`, CmdName),
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE:              o.Run,
	}
	cmd.Flags().BoolVarP(&o.preemptOff, "preemptoff", "p", false, "Find long sections where preemption was off (default: IRQs off)")
	cmd.Flags().DurationVarP(&o.threshold, "duration-threshold", "d", DefaultThreshold, "Minimum duration of a critical section")
	cmd.Flags().IntVar(&o.bufferPages, "buffer-pages", DefaultBufferPages, "Size of the events ring buffer, in pages")
	cmd.Flags().StringSliceVar(&o.idleMarkers, "idle-marker", o.idleMarkers, "Skip stacks with a frame matching this substring")
	cmd.Flags().BoolVar(&o.status, "status", false, "Periodically print a status line on stderr")
	cmd.Flags().BoolVar(&o.ebpf, "ebpf", false, "Print the BPF program source and exit")

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, _ []string) error {
	if err := o.SetupLogger(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if o.ebpf {
		src, err := probe.Source(probe.CritstatSource)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, src)
		return err
	}

	if err := o.validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = o.Ctx
	}

	return o.run(ctx, out)
}

func (o *Options) validate() error {
	if o.threshold < 0 {
		return ErrInvalidThreshold
	}
	if o.bufferPages <= 0 || o.bufferPages&(o.bufferPages-1) != 0 {
		return errors.Wrapf(ErrInvalidBufferPages, "%d", o.bufferPages)
	}

	return nil
}

// programs returns the section start and end programs.
func (o *Options) programs() (string, string) {
	if o.preemptOff {
		return "preempt_disable", "preempt_enable"
	}
	return "irq_disable", "irq_enable"
}

func (o *Options) run(ctx context.Context, w io.Writer) error {
	m := metrics.New()

	p := probe.New(o.ProbePath(settings.CritstatProbeObj), probe.WithLogger(o.Logger))
	defer p.Close()

	globals := map[string]interface{}{
		"min_duration_ns": uint64(o.threshold.Nanoseconds()),
	}
	maxEntries := map[string]uint32{
		mapEvents: uint32(o.bufferPages * os.Getpagesize()),
	}
	if err := p.Load(globals, maxEntries); err != nil {
		return err
	}

	start, end := o.programs()
	for _, prog := range []string{start, end} {
		if err := p.Attach(prog, tracepointCategory, prog); err != nil {
			return errors.Wrap(err, "is the kernel built with CONFIG_PREEMPTIRQ_TRACEPOINTS?")
		}
	}

	stacks, err := p.StackMap(mapStackTraces)
	if err != nil {
		return err
	}
	symbols, err := ksym.Load()
	if err != nil {
		return err
	}
	o.Logger.Debug().Int("symbols", symbols.Len()).Msg("kernel symbols loaded")

	sampler, err := stack.NewSampler(stacks, symbols,
		stack.WithIdleMarkers(o.idleMarkers...),
		stack.WithWriter(w),
		stack.WithMetrics(m),
		stack.WithLogger(o.Logger),
	)
	if err != nil {
		return err
	}
	rb, err := p.OpenRingBuffer(mapEvents)
	if err != nil {
		return err
	}
	src := &countingSource{src: rb}

	g, gctx := errgroup.WithContext(ctx)
	hc := healthcheck.New(o.Logger)
	o.StartAncillary(gctx, g, m, hc)
	if o.status {
		o.startStatus(gctx, g, hc, p, rb, src)
	}

	o.Logger.Info().Str("tracepoint", tracepointCategory+":"+end).Dur("threshold", o.threshold).
		Msg("tracing critical sections... hit Ctrl-C to end")

	g.Go(func() error {
		return sampler.Run(gctx, src)
	})
	hc.NotifyReadiness()

	if err = g.Wait(); err != nil {
		return errors.Wrap(err, "error running critstat")
	}
	o.reportLost(p, m)

	return nil
}

// startStatus refreshes the status line on stderr once the programs are
// attached.
func (o *Options) startStatus(ctx context.Context, g *errgroup.Group, hc *healthcheck.HealthCheck, p *probe.Probe, rb *probe.RingBuffer, src *countingSource) {
	fd := int(os.Stderr.Fd())
	if !output.IsTerminal(fd) {
		o.Logger.Warn().Msg("stderr is not a terminal, status line disabled")
		return
	}
	g.Go(func() error {
		if err := hc.Wait(ctx); err != nil {
			return nil
		}
		output.StatusBar(ctx, statusRefresh, func() {
			lost, err := p.Counter(mapLost)
			if err != nil {
				o.Logger.Debug().Err(err).Msg("failed to read lost events counter")
			}
			output.PrintRight(os.Stderr, output.Width(fd), output.PrettySamplerStatus(
				src.consumed.Swap(0), // events rate reset at each refresh.
				lost,
				rb.Pending()*100/rb.Capacity(),
			))
		})
		return nil
	})
}

func (o *Options) reportLost(p *probe.Probe, m *metrics.Metrics) {
	lost, err := p.Counter(mapLost)
	if err != nil {
		o.Logger.Debug().Err(err).Msg("failed to read lost events counter")
		return
	}
	if lost > 0 {
		m.EventsLost.Add(float64(lost))
		o.Logger.Warn().Uint64("lost", lost).Msg("stack events lost: ring buffer full")
	}
}

// countingSource counts the records delivered by src.
type countingSource struct {
	src      stack.Source
	consumed atomic.Uint64
}

func (c *countingSource) Poll(timeout time.Duration, fn func([]byte)) (int, error) {
	n, err := c.src.Poll(timeout, fn)
	c.consumed.Add(uint64(n))

	return n, err
}
