package probe

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	bpf "github.com/maxgio92/libbpfgo"
	"github.com/pkg/errors"
)

// StackTrace is an array of instruction pointers (IP).
// 127 is the size of the trace, as for the default PERF_MAX_STACK_DEPTH.
type StackTrace [127]uint64

// StackMap resolves stack ids from a BPF_MAP_TYPE_STACK_TRACE map.
type StackMap struct {
	m *bpf.BPFMap
}

// Stack returns the addresses of stack id, most recent call first.
func (s *StackMap) Stack(id uint32) ([]uint64, error) {
	v, err := s.m.GetValue(unsafe.Pointer(&id))
	if err != nil {
		return nil, errors.Wrapf(err, "error getting stack trace %d", id)
	}

	return decodeStack(v)
}

func decodeStack(v []byte) ([]uint64, error) {
	var trace StackTrace
	if err := binary.Read(bytes.NewReader(v), binary.LittleEndian, &trace); err != nil {
		return nil, errors.Wrap(err, "error decoding stack trace")
	}

	addrs := make([]uint64, 0, len(trace))
	for _, ip := range trace {
		if ip == 0 {
			break
		}
		addrs = append(addrs, ip)
	}

	return addrs, nil
}
