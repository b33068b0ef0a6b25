package critstat

import (
	"time"

	"github.com/maxgio92/ktally/pkg/cmd/options"
	"github.com/maxgio92/ktally/pkg/stack"
)

const (
	DefaultThreshold   = time.Millisecond
	DefaultBufferPages = 256
)

type Options struct {
	preemptOff  bool
	threshold   time.Duration
	bufferPages int
	idleMarkers []string
	status      bool
	ebpf        bool

	*options.CommonOptions
}

type Option func(o *Options)

func NewOptions(opts ...Option) *Options {
	o := new(Options)
	o.CommonOptions = options.NewCommonOptions()
	o.idleMarkers = []string{stack.DefaultIdleMarker}

	for _, f := range opts {
		f(o)
	}

	return o
}

// WithCommonOptions shares the root command options, so that persistent
// flags parsed by the root are visible at run time.
func WithCommonOptions(common *options.CommonOptions) Option {
	return func(o *Options) {
		o.CommonOptions = common
	}
}
