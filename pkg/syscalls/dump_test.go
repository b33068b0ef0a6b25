package syscalls_test

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/ktally/pkg/syscalls"
)

const aarch64Dump = `Using aarch64 syscall table:
0	io_setup
56	openat
63	read
64	write
221	execve
`

func TestParseDump(t *testing.T) {
	table, err := syscalls.ParseDump(strings.NewReader(aarch64Dump))
	require.NoError(t, err)
	require.Len(t, table, 5)
	require.Equal(t, "read", table[63])
	require.Equal(t, "openat", table[56])
	// The header is not a syscall.
	require.NotContains(t, table, uint32(0xFFFFFFFF))
}

func TestParseDumpSkipsMalformedLines(t *testing.T) {
	table, err := syscalls.ParseDump(strings.NewReader("header\nnope\nx\tread\n64\twrite\n"))
	require.NoError(t, err)
	require.Equal(t, map[uint32]string{64: "write"}, table)
}

func TestParseDumpEmpty(t *testing.T) {
	_, err := syscalls.ParseDump(strings.NewReader("Using aarch64 syscall table:\n"))
	require.True(t, errors.Is(err, syscalls.ErrEmptyDump))
}
