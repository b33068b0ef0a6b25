package stack

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/maxgio92/ktally/internal/utils"
)

const TaskCommLen = 16

// Event is a critical section exit record (struct data_t in the probe).
type Event struct {
	// TimeNs is the duration of the critical section.
	TimeNs  uint64
	StackID int64
	CPU     uint32
	_       uint32
	TaskID  uint64
	Comm    [TaskCommLen]byte
}

var ErrShortRecord = errors.New("record too short")

func DecodeEvent(data []byte) (*Event, error) {
	ev := new(Event)
	if len(data) < binary.Size(ev) {
		return nil, errors.Wrapf(ErrShortRecord, "got %d bytes, want %d", len(data), binary.Size(ev))
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, ev); err != nil {
		return nil, errors.Wrap(err, "failed to read event")
	}

	return ev, nil
}

func (e *Event) PID() uint32 {
	pid, _ := utils.SplitTaskID(e.TaskID)
	return pid
}

func (e *Event) TID() uint32 {
	_, tid := utils.SplitTaskID(e.TaskID)
	return tid
}

func (e *Event) CommString() string {
	return utils.CString(e.Comm[:])
}
