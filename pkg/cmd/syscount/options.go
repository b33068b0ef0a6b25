package syscount

import (
	"github.com/maxgio92/ktally/pkg/cmd/options"
)

const (
	AggregateKernel = "kernel"
	AggregateUser   = "user"

	DefaultMaxKeys = 10240
)

type Options struct {
	pid          int
	process      bool
	latency      bool
	milliseconds bool
	failures     bool
	errno        string
	top          int
	duration     int
	list         bool
	ebpf         bool
	aggregate    string
	maxKeys      uint32
	output       string

	// Positional arguments.
	interval int
	count    int

	*options.CommonOptions
}

type Option func(o *Options)

func NewOptions(opts ...Option) *Options {
	o := new(Options)
	o.CommonOptions = options.NewCommonOptions()

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
