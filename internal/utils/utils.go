package utils

import (
	"unicode"
)

// CString returns the content of a NUL-terminated C char array,
// dropping non-printable bytes.
func CString(b []byte) string {
	cleaned := make([]byte, 0, clen(b))
	for _, c := range b[:clen(b)] {
		if unicode.IsPrint(rune(c)) {
			cleaned = append(cleaned, c)
		}
	}
	return string(cleaned)
}

func clen(n []byte) int {
	for i := 0; i < len(n); i++ {
		if n[i] == 0 {
			return i
		}
	}
	return len(n)
}

// SplitTaskID splits a bpf_get_current_pid_tgid() value into the
// process id (tgid, high 32 bits) and the thread id (low 32 bits).
func SplitTaskID(id uint64) (pid, tid uint32) {
	return uint32(id >> 32), uint32(id & 0xffffffff)
}
