package filter

import (
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// maxErrno is the upper bound of error values the kernel returns from a
// syscall (MAX_ERRNO).
const maxErrno = 4095

var ErrUnknownErrno = errors.New("couldn't map to an errno")

var (
	errnoOnce  sync.Once
	errnoNames map[string]int32
)

func loadErrnoNames() {
	errnoNames = make(map[string]int32)
	for i := 1; i <= maxErrno; i++ {
		if name := unix.ErrnoName(syscall.Errno(i)); name != "" {
			errnoNames[name] = int32(i)
		}
	}
}

// ParseErrno parses an error number, or its mnemonic like EPERM. The
// returned value is always positive.
func ParseErrno(s string) (int32, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		if n < 0 {
			n = -n
		}
		if n == 0 || n > maxErrno {
			return 0, errors.Wrapf(ErrUnknownErrno, "%s", s)
		}
		return int32(n), nil
	}

	errnoOnce.Do(loadErrnoNames)
	if n, ok := errnoNames[strings.ToUpper(s)]; ok {
		return n, nil
	}

	return 0, errors.Wrapf(ErrUnknownErrno, "%s", s)
}
