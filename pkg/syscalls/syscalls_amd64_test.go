package syscalls_test

import (
	"bytes"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/ktally/pkg/syscalls"
)

func TestLabel(t *testing.T) {
	require.Equal(t, "read", syscalls.Label(0))
	require.Equal(t, "execve", syscalls.Label(59))
	require.Equal(t, "[unknown: 9999]", syscalls.Label(9999))

	_, ok := syscalls.Name(9999)
	require.False(t, ok)
}

func TestKnown(t *testing.T) {
	require.Equal(t, len(syscalls.List()), syscalls.Known())
	require.Greater(t, syscalls.Known(), 300)
}

func TestList(t *testing.T) {
	list := syscalls.List()
	require.True(t, sort.StringsAreSorted(list))
	require.Contains(t, list, "openat")
}

func TestWriteList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, syscalls.WriteList(&buf))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Equal(t, (len(syscalls.List())+3)/4, len(lines))
	require.True(t, strings.HasPrefix(lines[0], "_sysctl"))
}
