package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/maxgio92/ktally/internal/settings"
	"github.com/maxgio92/ktally/pkg/cmd/critstat"
	"github.com/maxgio92/ktally/pkg/cmd/options"
	"github.com/maxgio92/ktally/pkg/cmd/syscount"
)

func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   settings.CmdName,
		Short: "Kernel event aggregation and sampling",
		Long: fmt.Sprintf(`
%s attaches BPF programs to kernel tracepoints and reports on what they see.
It counts system calls per syscall or per process, and dumps the kernel stacks
of long critical sections.
`, settings.CmdName),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}
	cmd.PersistentFlags().StringVar(&o.LogLevel, "log-level", options.LogLevelInfo, "Sets the log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.PersistentFlags().StringVar(&o.ProbeDir, "probe-dir", settings.ProbeDir, "Directory of the compiled BPF objects")
	cmd.PersistentFlags().StringVar(&o.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.PersistentFlags().BoolVar(&o.TracePipe, "trace-pipe", false, "Stream the kernel trace pipe to stdout")

	cmd.AddCommand(syscount.NewCommand(syscount.NewOptions(syscount.WithCommonOptions(o.CommonOptions))))
	cmd.AddCommand(critstat.NewCommand(critstat.NewOptions(critstat.WithCommonOptions(o.CommonOptions))))

	return cmd
}

// Execute builds the root command and runs it. This is called by main.main().
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(
		log.ConsoleWriter{Out: os.Stderr},
	).With().Timestamp().Logger()

	opts := NewOptions(
		WithContext(ctx),
		WithLogger(logger),
	)

	if err := NewCommand(opts).ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
