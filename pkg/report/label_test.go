package report_test

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/ktally/pkg/counter"
	"github.com/maxgio92/ktally/pkg/report"
	"github.com/maxgio92/ktally/pkg/syscalls"
)

type fakeComms map[int]string

func (f fakeComms) Comm(pid int) (string, error) {
	comm, ok := f[pid]
	if !ok {
		return "", errors.New("no such process")
	}
	return comm, nil
}

func TestSyscallLabeler(t *testing.T) {
	l := report.SyscallLabeler{}
	require.Equal(t, "SYSCALL", l.Column())
	require.Equal(t, syscalls.Label(1), l.Label(1))
	require.Equal(t, "[unknown: 4242]", l.Label(4242))
}

func TestProcessLabeler(t *testing.T) {
	l := report.ProcessLabeler{Resolver: fakeComms{10: "nginx"}}
	require.Equal(t, "PID    COMM", l.Column())
	require.Equal(t, fmt.Sprintf("%-6d %-15s", 10, "nginx"), l.Label(counter.Key(10)))
	require.Equal(t, fmt.Sprintf("%-6d %-15s", 11, ""), l.Label(counter.Key(11)))
}
