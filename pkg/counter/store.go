package counter

import (
	"sort"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
)

// Snapshot is the content of a Store for one reporting window.
type Snapshot struct {
	// Entries are ordered by ascending key.
	Entries []Entry
	// Drops is the number of unique keys refused during the window because
	// the table was full.
	Drops uint64
}

// Store is the user-space handle over a keyed counter table.
//
// SnapshotAndClear is not atomic with respect to writers that keep
// updating the table while it runs: an update landing between the read of
// a key and the clear is lost, and one landing on an already-read key after
// the clear shows up in the next window. The error is bounded by the
// writers' rate over the duration of the call.
type Store struct {
	table     Table
	lastDrops uint64
	onDrop    func(uint64)
	logger    log.Logger
}

type StoreOption func(*Store)

func WithStoreLogger(logger log.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger.With().Str("component", "counter").Logger()
	}
}

// WithOnDrop registers fn to be called with the number of newly dropped
// keys every time drops are observed.
func WithOnDrop(fn func(uint64)) StoreOption {
	return func(s *Store) {
		s.onDrop = fn
	}
}

func NewStore(table Table, opts ...StoreOption) (*Store, error) {
	if table == nil {
		return nil, ErrTableNil
	}
	s := &Store{
		table:  table,
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Upsert applies delta to key. A full table is not an error for the
// caller: the update is dropped and accounted for in the next snapshot.
func (s *Store) Upsert(key Key, delta Record) error {
	err := s.table.Upsert(key, delta)
	if errors.Is(err, ErrTableFull) {
		s.logger.Trace().Uint32("key", uint32(key)).Msg("dropping key, table full")
		return nil
	}

	return err
}

// SnapshotAndClear returns every entry observed since the previous call and
// empties the table.
func (s *Store) SnapshotAndClear() (*Snapshot, error) {
	snap := new(Snapshot)
	err := s.table.Iterate(func(k Key, r Record) error {
		snap.Entries = append(snap.Entries, Entry{Key: k, Record: r})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "error iterating counter table")
	}
	if err = s.table.Clear(); err != nil {
		return nil, errors.Wrap(err, "error clearing counter table")
	}
	sort.Slice(snap.Entries, func(i, j int) bool {
		return snap.Entries[i].Key < snap.Entries[j].Key
	})

	drops, err := s.table.Drops()
	if err != nil {
		s.logger.Debug().Err(err).Msg("error reading drop counter")
		return snap, nil
	}
	if drops > s.lastDrops {
		snap.Drops = drops - s.lastDrops
		if s.onDrop != nil {
			s.onDrop(snap.Drops)
		}
	}
	s.lastDrops = drops

	return snap, nil
}
