package utils_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/ktally/internal/utils"
)

func TestCString(t *testing.T) {
	var comm [16]byte
	copy(comm[:], "bash")
	require.Equal(t, "bash", utils.CString(comm[:]),
		"CString should stop at the first NUL byte",
	)

	full := []byte("0123456789abcdef")
	require.Equal(t, "0123456789abcdef", utils.CString(full),
		"CString should accept arrays without a terminator",
	)

	require.Equal(t, "ab", utils.CString([]byte{'a', 0x07, 'b', 0, 'c'}),
		"CString should drop non-printable bytes",
	)
}

func TestSplitTaskID(t *testing.T) {
	pid, tid := utils.SplitTaskID(uint64(1234)<<32 | 5678)
	require.Equal(t, uint32(1234), pid)
	require.Equal(t, uint32(5678), tid)
}
