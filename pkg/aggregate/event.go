package aggregate

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/maxgio92/ktally/pkg/filter"
)

const (
	KindEnter uint32 = iota
	KindExit
)

// RawEvent is a syscall enter or exit record, as emitted by the probe in
// user aggregation mode (struct raw_event_t).
type RawEvent struct {
	TimestampNs uint64
	TaskID      uint64
	Ret         int64
	SyscallID   uint32
	Kind        uint32
}

var ErrShortRecord = errors.New("record too short")

func DecodeRawEvent(data []byte) (RawEvent, error) {
	var ev RawEvent
	if len(data) < binary.Size(ev) {
		return ev, errors.Wrapf(ErrShortRecord, "got %d bytes, want %d", len(data), binary.Size(ev))
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &ev); err != nil {
		return ev, errors.Wrap(err, "failed to read event")
	}

	return ev, nil
}

func (e RawEvent) filterEvent() filter.Event {
	return filter.Event{
		TaskID:    e.TaskID,
		SyscallID: e.SyscallID,
		Ret:       e.Ret,
		Exit:      e.Kind == KindExit,
	}
}
