package counter

import (
	"github.com/pkg/errors"
)

var (
	ErrTableFull     = errors.New("counter table is full")
	ErrInvalidSize   = errors.New("counter table capacity must be positive")
	ErrTableNil      = errors.New("counter table is nil")
	ErrKeyNotPresent = errors.New("key not present")
)
