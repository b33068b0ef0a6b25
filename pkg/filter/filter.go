// Package filter decides which raw syscall events contribute to the
// aggregation and under which key.
package filter

import (
	"fmt"

	"github.com/maxgio92/ktally/internal/utils"
	"github.com/maxgio92/ktally/pkg/counter"
)

type GroupMode int

const (
	GroupBySyscall GroupMode = iota
	GroupByProcess
)

func (g GroupMode) String() string {
	switch g {
	case GroupBySyscall:
		return "syscall"
	case GroupByProcess:
		return "process"
	default:
		return fmt.Sprintf("unknown(%d)", int(g))
	}
}

// Event is the view of a raw syscall event the policy needs.
type Event struct {
	TaskID    uint64
	SyscallID uint32
	Ret       int64
	Exit      bool
}

// Policy is configured once at start-up. The zero value passes every event
// and groups by syscall.
type Policy struct {
	// PID keeps only events of this process, when non zero.
	PID uint32
	// FailedOnly keeps only exits with a negative return value.
	FailedOnly bool
	// Errno keeps only exits returning -Errno, when non zero.
	Errno   int32
	GroupBy GroupMode
}

// Allow reports whether ev passes every configured filter. Return value
// filters only apply to exit events.
func (p Policy) Allow(ev Event) bool {
	if p.PID != 0 {
		if pid, _ := utils.SplitTaskID(ev.TaskID); pid != p.PID {
			return false
		}
	}
	if !ev.Exit {
		return true
	}
	if p.FailedOnly && ev.Ret >= 0 {
		return false
	}
	if p.Errno != 0 && ev.Ret != -int64(p.Errno) {
		return false
	}

	return true
}

// Key returns the aggregation key of ev.
func (p Policy) Key(ev Event) counter.Key {
	if p.GroupBy == GroupByProcess {
		pid, _ := utils.SplitTaskID(ev.TaskID)
		return counter.Key(pid)
	}

	return counter.Key(ev.SyscallID)
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Globals returns the read-only BPF globals that make the kernel program
// apply the same policy.
func (p Policy) Globals() map[string]interface{} {
	return map[string]interface{}{
		"filter_pid":    p.PID,
		"filter_failed": boolToU32(p.FailedOnly),
		"filter_errno":  uint32(p.Errno),
		"by_process":    boolToU32(p.GroupBy == GroupByProcess),
	}
}
