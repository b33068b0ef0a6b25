// Package counter implements the keyed counter store: the per-window
// aggregation unit shared between the probe programs and user space.
package counter

// Key identifies an aggregation bucket: a syscall number, or a process id
// when grouping by process.
type Key uint32

// SentinelKey is an all-bits-set key the kernel side occasionally
// produces (e.g. sys_exit with id -1). It is never a real bucket.
const SentinelKey Key = 0xFFFFFFFF

// Record is the value stored per key. The layout matches struct data_t in
// the BPF program.
type Record struct {
	Count   uint64
	TotalNs uint64
}

// Add returns r with delta applied.
func (r Record) Add(delta Record) Record {
	return Record{
		Count:   r.Count + delta.Count,
		TotalNs: r.TotalNs + delta.TotalNs,
	}
}

type Entry struct {
	Key    Key
	Record Record
}

// Table is the operation set over a backing keyed table. Implementations
// must be safe for concurrent writers on different keys.
type Table interface {
	// Upsert inserts a zero record for key if absent, then applies delta.
	// It returns ErrTableFull when key is new and the table has no room.
	Upsert(key Key, delta Record) error
	Lookup(key Key) (Record, bool, error)
	Iterate(fn func(Key, Record) error) error
	Delete(key Key) error
	Clear() error
	// Drops returns how many unique keys have been refused since the table
	// was created.
	Drops() (uint64, error)
}
