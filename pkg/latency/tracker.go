// Package latency correlates start and end events of the same operation to
// compute elapsed times.
package latency

import (
	"github.com/elastic/go-freelru"
	"github.com/pkg/errors"
)

// DefaultCapacity matches the max_entries of the kernel start map.
const DefaultCapacity = 10240

// Tracker holds at most one pending start per operation id. A second
// start for the same id replaces the first. It is not safe for concurrent
// use.
type Tracker struct {
	pending   *freelru.LRU[uint64, uint64]
	anomalies uint64
	evictions uint64
}

func hashOperationID(id uint64) uint32 {
	id ^= id >> 33
	id *= 0xff51afd7ed558ccd
	id ^= id >> 33
	return uint32(id)
}

func NewTracker(capacity uint32) (*Tracker, error) {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	lru, err := freelru.New[uint64, uint64](capacity, hashOperationID)
	if err != nil {
		return nil, errors.Wrap(err, "error creating pending operations map")
	}

	return &Tracker{pending: lru}, nil
}

// Start records the start timestamp of operation id.
func (t *Tracker) Start(id, ts uint64) {
	// Overwriting an existing id never evicts; only new ids can push out
	// the least recently started operation.
	if t.pending.Add(id, ts) {
		t.evictions++
	}
}

// End completes operation id at ts. It reports false when there is no
// pending start, or when ts precedes the start, in which case the sample
// is counted as an anomaly.
func (t *Tracker) End(id, ts uint64) (uint64, bool) {
	start, ok := t.pending.Get(id)
	if !ok {
		return 0, false
	}
	t.pending.Remove(id)

	if ts < start {
		t.anomalies++
		return 0, false
	}

	return ts - start, true
}

func (t *Tracker) Pending() int {
	return t.pending.Len()
}

// Anomalies returns how many end events carried a timestamp earlier than
// their start.
func (t *Tracker) Anomalies() uint64 {
	return t.anomalies
}

// Evictions returns how many pending starts were dropped for capacity.
func (t *Tracker) Evictions() uint64 {
	return t.evictions
}
