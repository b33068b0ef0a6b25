package syscount

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maxgio92/ktally/internal/settings"
	"github.com/maxgio92/ktally/pkg/aggregate"
	"github.com/maxgio92/ktally/pkg/counter"
	"github.com/maxgio92/ktally/pkg/filter"
	"github.com/maxgio92/ktally/pkg/healthcheck"
	"github.com/maxgio92/ktally/pkg/latency"
	"github.com/maxgio92/ktally/pkg/metrics"
	"github.com/maxgio92/ktally/pkg/probe"
	"github.com/maxgio92/ktally/pkg/report"
	"github.com/maxgio92/ktally/pkg/syscalls"
)

const (
	CmdName = "syscount"

	progSysEnter = "sys_enter"
	progSysExit  = "sys_exit"

	mapData      = "data"
	mapDrops     = "drops"
	mapRawEvents = "raw_events"
	mapStart     = "start"

	procMount = "/proc"
)

var (
	ErrInvalidInterval  = errors.New("interval must be a positive number of seconds")
	ErrInvalidCount     = errors.New("count must be a positive number")
	ErrDurationInterval = errors.New("--duration cannot be combined with an interval")
	ErrInvalidDuration  = errors.New("--duration must not be negative")
	ErrInvalidAggregate = errors.New("unknown aggregation placement")
	ErrInvalidTop       = errors.New("--top must not be negative")
)

func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s [interval [count]]", CmdName),
		Short: "Summarize system call counts and latencies",
		Long: fmt.Sprintf(`
%s counts system calls, per syscall or per process, and optionally their
total latency. With an interval it prints the top entries every interval
seconds, count times or until interrupted. Without an interval it prints
once on exit, or after --duration seconds.
`, CmdName),
		Args:              cobra.MaximumNArgs(2),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE:              o.Run,
	}
	cmd.Flags().IntVarP(&o.pid, "pid", "p", 0, "Trace this process ID only")
	cmd.Flags().BoolVarP(&o.process, "process", "P", false, "Count by process and not by syscall")
	cmd.Flags().BoolVarP(&o.latency, "latency", "L", false, "Collect syscall latency")
	cmd.Flags().BoolVarP(&o.milliseconds, "milliseconds", "m", false, "Display latency in milliseconds (default: microseconds)")
	cmd.Flags().BoolVarP(&o.failures, "failures", "x", false, "Trace only failed syscalls (return < 0)")
	cmd.Flags().StringVarP(&o.errno, "errno", "e", "", "Trace only syscalls that return this error (numeric or EPERM, etc.)")
	cmd.Flags().IntVarP(&o.top, "top", "T", report.DefaultTopK, "Print only the top syscalls by count or latency (0 for all)")
	cmd.Flags().IntVarP(&o.duration, "duration", "d", 0, "Total duration of trace, in seconds")
	cmd.Flags().BoolVarP(&o.list, "list", "l", false, "Print list of recognized syscalls and exit")
	cmd.Flags().BoolVar(&o.ebpf, "ebpf", false, "Print the BPF program source and exit")
	cmd.Flags().StringVar(&o.aggregate, "aggregate", AggregateKernel, "Where counters are aggregated (kernel, user)")
	cmd.Flags().Uint32Var(&o.maxKeys, "max-keys", DefaultMaxKeys, "Capacity of the counter table")
	cmd.Flags().StringVarP(&o.output, "output", "o", report.FormatText, "Output format (text, json)")

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, args []string) error {
	if err := o.SetupLogger(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case o.list:
		return syscalls.WriteList(out)
	case o.ebpf:
		return writeSource(out, probe.SyscountSource)
	}

	if err := o.parseArgs(args); err != nil {
		return err
	}
	policy, err := o.policy()
	if err != nil {
		return err
	}
	if err = o.validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = o.Ctx
	}

	return o.run(ctx, out, policy)
}

func (o *Options) parseArgs(args []string) error {
	if len(args) > 0 {
		interval, err := strconv.Atoi(args[0])
		if err != nil || interval <= 0 {
			return errors.Wrapf(ErrInvalidInterval, "%q", args[0])
		}
		o.interval = interval
	}
	if len(args) > 1 {
		count, err := strconv.Atoi(args[1])
		if err != nil || count <= 0 {
			return errors.Wrapf(ErrInvalidCount, "%q", args[1])
		}
		o.count = count
	}

	return nil
}

func (o *Options) policy() (filter.Policy, error) {
	policy := filter.Policy{
		PID:        uint32(o.pid),
		FailedOnly: o.failures,
	}
	if o.process {
		policy.GroupBy = filter.GroupByProcess
	}
	if o.errno != "" {
		errno, err := filter.ParseErrno(o.errno)
		if err != nil {
			return policy, err
		}
		policy.Errno = errno
	}

	return policy, nil
}

func (o *Options) validate() error {
	if o.pid < 0 {
		return errors.Errorf("invalid pid %d", o.pid)
	}
	if o.top < 0 {
		return ErrInvalidTop
	}
	if o.duration < 0 {
		return ErrInvalidDuration
	}
	if o.duration > 0 && o.interval > 0 {
		return ErrDurationInterval
	}
	if o.aggregate != AggregateKernel && o.aggregate != AggregateUser {
		return errors.Wrapf(ErrInvalidAggregate, "%q", o.aggregate)
	}
	if o.maxKeys == 0 {
		return errors.Wrap(counter.ErrInvalidSize, "--max-keys")
	}
	if _, err := o.renderer(""); err != nil {
		return err
	}

	return nil
}

func (o *Options) globals(policy filter.Policy) map[string]interface{} {
	globals := policy.Globals()
	globals["latency"] = boolToU32(o.latency)
	globals["user_agg"] = boolToU32(o.aggregate == AggregateUser)

	return globals
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func (o *Options) labeler() report.Labeler {
	if !o.process {
		if syscalls.Known() == 0 {
			o.Logger.Warn().Msg("no syscall table for this architecture (is ausyscall installed?), syscalls will be reported by number")
		}
		return report.SyscallLabeler{}
	}
	fs, err := report.NewProcFS(procMount)
	if err != nil {
		o.Logger.Warn().Err(err).Msg("procfs not available, command names will be empty")
		return report.ProcessLabeler{}
	}

	return report.ProcessLabeler{Resolver: fs}
}

func (o *Options) renderer(column string) (report.Renderer, error) {
	return report.NewRenderer(o.output, report.TextRenderer{
		Column:       column,
		Latency:      o.latency,
		Milliseconds: o.milliseconds,
	})
}

func (o *Options) reporterOptions(w io.Writer, m *metrics.Metrics) ([]report.Option, error) {
	metric := report.ByCount
	if o.latency {
		metric = report.ByLatency
	}
	labeler := o.labeler()
	renderer, err := o.renderer(labeler.Column())
	if err != nil {
		return nil, err
	}

	return []report.Option{
		report.WithInterval(time.Duration(o.interval) * time.Second),
		report.WithCount(o.count),
		report.WithDuration(time.Duration(o.duration) * time.Second),
		report.WithTopK(o.top),
		report.WithMetric(metric),
		report.WithLabeler(labeler),
		report.WithRenderer(renderer),
		report.WithWriter(w),
		report.WithMetrics(m),
		report.WithLogger(o.Logger),
	}, nil
}

func (o *Options) run(ctx context.Context, w io.Writer, policy filter.Policy) error {
	m := metrics.New()

	p := probe.New(o.ProbePath(settings.SyscountProbeObj), probe.WithLogger(o.Logger))
	defer p.Close()

	maxEntries := map[string]uint32{mapData: o.maxKeys}
	if o.latency {
		maxEntries[mapStart] = o.maxKeys
	}
	if err := p.Load(o.globals(policy), maxEntries); err != nil {
		return err
	}

	// Only the latency measure needs syscall entries.
	if o.latency {
		if err := p.Attach(progSysEnter, "raw_syscalls", "sys_enter"); err != nil {
			return err
		}
	}
	if err := p.Attach(progSysExit, "raw_syscalls", "sys_exit"); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	// runCtx ends the helpers when the reporter is done.
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	hc := healthcheck.New(o.Logger)
	o.StartAncillary(runCtx, g, m, hc)

	var table counter.Table
	if o.aggregate == AggregateUser {
		mem, err := counter.NewMemTable(int(o.maxKeys))
		if err != nil {
			return err
		}
		table = mem
	} else {
		bt, err := p.Table(mapData, mapDrops)
		if err != nil {
			return err
		}
		table = bt
	}
	store, err := counter.NewStore(table,
		counter.WithStoreLogger(o.Logger),
		counter.WithOnDrop(m.AddDrops),
	)
	if err != nil {
		return err
	}

	reportOpts, err := o.reporterOptions(w, m)
	if err != nil {
		return err
	}
	if o.aggregate == AggregateUser {
		// The last window must include what the aggregator drains on stop.
		stopAgg, err := o.startAggregator(runCtx, g, p, policy, store, m)
		if err != nil {
			return err
		}
		reportOpts = append(reportOpts, report.WithBeforeFinalFlush(stopAgg))
	}

	o.Logger.Info().Str("aggregate", o.aggregate).Str("group_by", policy.GroupBy.String()).
		Msg("tracing syscalls... hit Ctrl-C to end")

	reporter := report.NewReporter(store, reportOpts...)
	g.Go(func() error {
		defer stop()
		return reporter.Run(runCtx)
	})
	hc.NotifyReadiness()

	if err = g.Wait(); err != nil {
		return errors.Wrap(err, "error running syscount")
	}
	if o.aggregate == AggregateUser {
		o.reportLost(p, m)
	}

	return nil
}

// startAggregator runs the user space aggregator in g and returns a function
// that stops it and waits until it has drained the ring buffer.
func (o *Options) startAggregator(ctx context.Context, g *errgroup.Group, p *probe.Probe, policy filter.Policy, store *counter.Store, m *metrics.Metrics) (func(), error) {
	opts := []aggregate.Option{
		aggregate.WithMetrics(m),
		aggregate.WithLogger(o.Logger),
	}
	if o.latency {
		tracker, err := latency.NewTracker(o.maxKeys)
		if err != nil {
			return nil, err
		}
		opts = append(opts, aggregate.WithLatency(tracker))
	}
	agg, err := aggregate.New(policy, store, opts...)
	if err != nil {
		return nil, err
	}
	rb, err := p.OpenRingBuffer(mapRawEvents)
	if err != nil {
		return nil, err
	}

	aggCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		return agg.Run(aggCtx, rb)
	})

	return func() {
		cancel()
		<-done
	}, nil
}

// reportLost surfaces the raw events the kernel could not reserve room for.
func (o *Options) reportLost(p *probe.Probe, m *metrics.Metrics) {
	lost, err := p.Counter(mapDrops)
	if err != nil {
		o.Logger.Debug().Err(err).Msg("failed to read lost events counter")
		return
	}
	if lost > 0 {
		m.EventsLost.Add(float64(lost))
		o.Logger.Warn().Uint64("lost", lost).Msg("raw events lost: ring buffer full")
	}
}

func writeSource(w io.Writer, name string) error {
	src, err := probe.Source(name)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, src)

	return err
}
