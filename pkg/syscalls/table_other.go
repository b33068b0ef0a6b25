//go:build !amd64

package syscalls

import (
	"bytes"
	"os/exec"
)

// dumpSyscalls returns the syscall table of the running architecture, as
// printed by ausyscall from the audit userspace tools.
var dumpSyscalls = func() ([]byte, error) {
	return exec.Command("ausyscall", "--dump").Output()
}

// loadTable never falls back to the x86_64 names: numbers differ across
// architectures, so without ausyscall every syscall is unknown.
func loadTable() map[uint32]string {
	out, err := dumpSyscalls()
	if err != nil {
		return map[uint32]string{}
	}
	table, err := ParseDump(bytes.NewReader(out))
	if err != nil {
		return map[uint32]string{}
	}

	return table
}
