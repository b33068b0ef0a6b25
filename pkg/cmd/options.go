package cmd

import (
	"context"

	log "github.com/rs/zerolog"

	"github.com/maxgio92/ktally/pkg/cmd/options"
)

type Options struct {
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

func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Ctx = ctx
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Logger = logger
	}
}

func WithProbeDir(dir string) Option {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.ProbeDir = dir
	}
}
