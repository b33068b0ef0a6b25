package report

import (
	"fmt"

	"github.com/prometheus/procfs"

	"github.com/maxgio92/ktally/pkg/counter"
	"github.com/maxgio92/ktally/pkg/syscalls"
)

// Labeler maps a key to the label shown in reports.
type Labeler interface {
	// Column is the header of the label column.
	Column() string
	Label(key counter.Key) string
}

type SyscallLabeler struct{}

func (SyscallLabeler) Column() string {
	return "SYSCALL"
}

func (SyscallLabeler) Label(key counter.Key) string {
	return syscalls.Label(uint32(key))
}

// CommResolver returns the command name of a process.
type CommResolver interface {
	Comm(pid int) (string, error)
}

// ProcFS resolves command names from procfs.
type ProcFS struct {
	fs procfs.FS
}

func NewProcFS(mountPoint string) (*ProcFS, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, err
	}
	return &ProcFS{fs: fs}, nil
}

func (p *ProcFS) Comm(pid int) (string, error) {
	proc, err := p.fs.Proc(pid)
	if err != nil {
		return "", err
	}
	return proc.Comm()
}

// ProcessLabeler labels process ids with their command name. Processes
// that already exited get an empty name.
type ProcessLabeler struct {
	Resolver CommResolver
}

func (ProcessLabeler) Column() string {
	return "PID    COMM"
}

func (l ProcessLabeler) Label(key counter.Key) string {
	var comm string
	if l.Resolver != nil {
		comm, _ = l.Resolver.Comm(int(key))
	}
	return fmt.Sprintf("%-6d %-15s", uint32(key), comm)
}
