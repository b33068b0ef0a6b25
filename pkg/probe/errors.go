package probe

import (
	"github.com/pkg/errors"
)

var (
	ErrObjPathEmpty      = errors.New("no BPF object path specified")
	ErrNotLoaded         = errors.New("BPF object is not loaded")
	ErrRingBufferClosed  = errors.New("ring buffer is closed")
	ErrUnknownSource     = errors.New("unknown probe source")
	ErrUnsupportedUpdate = errors.New("unsupported table update")
)
