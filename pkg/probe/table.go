package probe

import (
	"bytes"
	"encoding/binary"
	"syscall"
	"unsafe"

	bpf "github.com/maxgio92/libbpfgo"
	"github.com/pkg/errors"

	"github.com/maxgio92/ktally/pkg/counter"
)

// Table is a counter.Table over a BPF hash map of u32 keys and struct
// data_t values. The kernel program writes to it concurrently: every
// operation here is a single map syscall per key and holds no lock.
type Table struct {
	m     *bpf.BPFMap
	drops *bpf.BPFMap
}

func decodeRecord(v []byte) (counter.Record, error) {
	var r counter.Record
	if err := binary.Read(bytes.NewReader(v), binary.LittleEndian, &r); err != nil {
		return r, errors.Wrap(err, "error decoding counter record")
	}
	return r, nil
}

func encodeRecord(r counter.Record) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, r); err != nil {
		return nil, errors.Wrap(err, "error encoding counter record")
	}
	return buf.Bytes(), nil
}

func isNotExist(err error) bool {
	return errors.Is(err, syscall.ENOENT)
}

func (t *Table) Lookup(key counter.Key) (counter.Record, bool, error) {
	k := uint32(key)
	v, err := t.m.GetValue(unsafe.Pointer(&k))
	if err != nil {
		if isNotExist(err) {
			return counter.Record{}, false, nil
		}
		return counter.Record{}, false, errors.Wrapf(err, "error looking up key %d in %s", k, t.m.Name())
	}
	r, err := decodeRecord(v)
	if err != nil {
		return counter.Record{}, false, err
	}

	return r, true, nil
}

// Upsert is a read-modify-write from user space, so it is not atomic with
// respect to the kernel writers. The probes never need it; it serves
// seeding and tests.
func (t *Table) Upsert(key counter.Key, delta counter.Record) error {
	cur, _, err := t.Lookup(key)
	if err != nil {
		return err
	}
	v, err := encodeRecord(cur.Add(delta))
	if err != nil {
		return err
	}
	k := uint32(key)
	if err = t.m.Update(unsafe.Pointer(&k), unsafe.Pointer(&v[0])); err != nil {
		if errors.Is(err, syscall.E2BIG) {
			return counter.ErrTableFull
		}
		return errors.Wrapf(ErrUnsupportedUpdate, "%s: %v", t.m.Name(), err)
	}

	return nil
}

func (t *Table) keys() ([]uint32, error) {
	var keys []uint32
	it := t.m.Iterator()
	for it.Next() {
		k := it.Key()
		if len(k) < 4 {
			continue
		}
		keys = append(keys, binary.LittleEndian.Uint32(k))
	}
	if err := it.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", t.m.Name())
	}

	return keys, nil
}

// Iterate skips keys the kernel side removes while iterating.
func (t *Table) Iterate(fn func(counter.Key, counter.Record) error) error {
	keys, err := t.keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		r, ok, err := t.Lookup(counter.Key(k))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err = fn(counter.Key(k), r); err != nil {
			return err
		}
	}

	return nil
}

func (t *Table) Delete(key counter.Key) error {
	k := uint32(key)
	if err := t.m.DeleteKey(unsafe.Pointer(&k)); err != nil {
		if isNotExist(err) {
			return counter.ErrKeyNotPresent
		}
		return errors.Wrapf(err, "error deleting key %d from %s", k, t.m.Name())
	}

	return nil
}

func (t *Table) Clear() error {
	keys, err := t.keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err = t.Delete(counter.Key(k)); err != nil && !errors.Is(err, counter.ErrKeyNotPresent) {
			return err
		}
	}

	return nil
}

func (t *Table) Drops() (uint64, error) {
	return readCounter(t.drops)
}

func readCounter(m *bpf.BPFMap) (uint64, error) {
	var idx uint32
	v, err := m.GetValue(unsafe.Pointer(&idx))
	if err != nil {
		return 0, errors.Wrapf(err, "error reading counter %s", m.Name())
	}
	if len(v) < 8 {
		return 0, errors.Errorf("counter %s has %d bytes", m.Name(), len(v))
	}

	return binary.LittleEndian.Uint64(v), nil
}
