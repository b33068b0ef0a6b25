package probe

import (
	"time"

	bpf "github.com/maxgio92/libbpfgo"
)

const (
	EventsChBufSize = 4096

	// evtRingBufPollTimeout is the ring_buffer__poll() timeout in ms.
	evtRingBufPollTimeout = 300
)

// RingBuffer delivers the records the libbpf poll goroutine pushes into a
// buffered channel.
type RingBuffer struct {
	rb     *bpf.RingBuffer
	events chan []byte
}

// Poll waits up to timeout for a record, then hands fn every record
// already buffered, up to the channel capacity. It returns how many records
// were delivered.
func (r *RingBuffer) Poll(timeout time.Duration, fn func([]byte)) (int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data, ok := <-r.events:
		if !ok {
			return 0, ErrRingBufferClosed
		}
		fn(data)
	case <-timer.C:
		return 0, nil
	}

	n := 1
	for ; n < cap(r.events); n++ {
		select {
		case data, ok := <-r.events:
			if !ok {
				return n, nil
			}
			fn(data)
		default:
			return n, nil
		}
	}

	return n, nil
}

// Pending returns the number of records waiting in the channel.
func (r *RingBuffer) Pending() int {
	return len(r.events)
}

func (r *RingBuffer) Capacity() int {
	return cap(r.events)
}

func (r *RingBuffer) Close() {
	if r.rb != nil {
		r.rb.Stop()
		r.rb.Close()
	}
}
