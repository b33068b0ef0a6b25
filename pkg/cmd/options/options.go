package options

import (
	"context"
	"path/filepath"

	"github.com/aquasecurity/libbpfgo/helpers"
	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/maxgio92/ktally/internal/settings"
	"github.com/maxgio92/ktally/pkg/healthcheck"
	"github.com/maxgio92/ktally/pkg/metrics"
)

const LogLevelInfo = "info"

// CommonOptions are shared by every subcommand and bound to the root
// persistent flags.
type CommonOptions struct {
	Ctx    context.Context
	Logger log.Logger

	LogLevel    string
	ProbeDir    string
	MetricsAddr string
	TracePipe   bool
}

func NewCommonOptions() *CommonOptions {
	return &CommonOptions{
		Ctx:      context.Background(),
		Logger:   log.Nop(),
		LogLevel: LogLevelInfo,
		ProbeDir: settings.ProbeDir,
	}
}

// SetupLogger applies the configured log level to the logger.
func (o *CommonOptions) SetupLogger() error {
	level, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", o.LogLevel)
	}
	o.Logger = o.Logger.Level(level)

	return nil
}

// ProbePath returns the path of the compiled BPF object obj.
func (o *CommonOptions) ProbePath(obj string) string {
	return filepath.Join(o.ProbeDir, obj)
}

// StartAncillary starts the metrics and readiness endpoint in g when an
// address is configured, and the trace pipe reader when requested.
func (o *CommonOptions) StartAncillary(ctx context.Context, g *errgroup.Group, m *metrics.Metrics, hc *healthcheck.HealthCheck) {
	if o.MetricsAddr != "" && m != nil {
		g.Go(func() error {
			return m.Serve(ctx, o.MetricsAddr, hc, o.Logger)
		})
	}
	if o.TracePipe {
		// The trace pipe read blocks until the process exits: it is not
		// tied to the group.
		go func() {
			if err := helpers.TracePipeListen(); err != nil {
				o.Logger.Warn().Err(err).Msg("failed to read trace pipe")
			}
		}()
	}
}
