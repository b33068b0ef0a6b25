//go:build !amd64

package syscalls

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func withDump(t *testing.T, dump func() ([]byte, error)) {
	t.Helper()
	orig := dumpSyscalls
	dumpSyscalls = dump
	t.Cleanup(func() { dumpSyscalls = orig })
}

func TestLoadTableFromAusyscall(t *testing.T) {
	withDump(t, func() ([]byte, error) {
		return []byte("Using aarch64 syscall table:\n63\tread\n64\twrite\n"), nil
	})

	table := loadTable()
	require.Equal(t, map[uint32]string{63: "read", 64: "write"}, table)
}

func TestLoadTableWithoutAusyscall(t *testing.T) {
	withDump(t, func() ([]byte, error) {
		return nil, errors.New("exec: \"ausyscall\": executable file not found in $PATH")
	})

	table := loadTable()
	require.Empty(t, table)
	// x86_64 numbering must never leak into other architectures.
	_, ok := table[0]
	require.False(t, ok)
}

func TestLabelWithoutTable(t *testing.T) {
	withDump(t, func() ([]byte, error) {
		return nil, errors.New("not found")
	})
	table = loadTable()
	t.Cleanup(func() { table = nil })
	loadOnce.Do(func() {})

	require.Equal(t, "[unknown: 0]", Label(0))
	require.Equal(t, "[unknown: 63]", Label(63))
	require.Zero(t, Known())
}
