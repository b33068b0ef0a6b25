package counter

import (
	"sync"
	"sync/atomic"
)

type slot struct {
	count   atomic.Uint64
	totalNs atomic.Uint64
}

// MemTable is a fixed-capacity in-process Table. Updates to an existing
// key are lock-free atomic adds; the key index is guarded by a RWMutex.
type MemTable struct {
	mu       sync.RWMutex
	slots    map[Key]*slot
	capacity int
	drops    atomic.Uint64
}

func NewMemTable(capacity int) (*MemTable, error) {
	if capacity <= 0 {
		return nil, ErrInvalidSize
	}

	return &MemTable{
		slots:    make(map[Key]*slot, capacity),
		capacity: capacity,
	}, nil
}

func (m *MemTable) Upsert(key Key, delta Record) error {
	m.mu.RLock()
	s, ok := m.slots[key]
	m.mu.RUnlock()

	if !ok {
		m.mu.Lock()
		s, ok = m.slots[key]
		if !ok {
			if len(m.slots) >= m.capacity {
				m.mu.Unlock()
				m.drops.Add(1)
				return ErrTableFull
			}
			s = new(slot)
			m.slots[key] = s
		}
		m.mu.Unlock()
	}
	s.count.Add(delta.Count)
	s.totalNs.Add(delta.TotalNs)

	return nil
}

func (m *MemTable) Lookup(key Key) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.slots[key]
	if !ok {
		return Record{}, false, nil
	}

	return Record{Count: s.count.Load(), TotalNs: s.totalNs.Load()}, true, nil
}

// Iterate walks a copy of the key index, so fn may call back into the table.
func (m *MemTable) Iterate(fn func(Key, Record) error) error {
	m.mu.RLock()
	entries := make([]Entry, 0, len(m.slots))
	for k, s := range m.slots {
		entries = append(entries, Entry{
			Key:    k,
			Record: Record{Count: s.count.Load(), TotalNs: s.totalNs.Load()},
		})
	}
	m.mu.RUnlock()

	for _, e := range entries {
		if err := fn(e.Key, e.Record); err != nil {
			return err
		}
	}

	return nil
}

func (m *MemTable) Delete(key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.slots[key]; !ok {
		return ErrKeyNotPresent
	}
	delete(m.slots, key)

	return nil
}

func (m *MemTable) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.slots = make(map[Key]*slot, m.capacity)

	return nil
}

func (m *MemTable) Drops() (uint64, error) {
	return m.drops.Load(), nil
}

func (m *MemTable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.slots)
}
