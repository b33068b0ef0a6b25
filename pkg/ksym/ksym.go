// Package ksym resolves kernel addresses to symbol names from kallsyms.
package ksym

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/elastic/go-freelru"
	"github.com/pkg/errors"
)

const (
	KallsymsPath = "/proc/kallsyms"

	// Unknown is printed for addresses outside of any known symbol.
	Unknown = "[unknown]"

	cacheSize = 4096
)

var (
	ErrSymNotFound   = errors.New("symbol not found")
	ErrSymTableEmpty = errors.New("symtable is empty")
	// ErrRestricted is returned when every address reads as zero, which is
	// what kptr_restrict does to unprivileged readers.
	ErrRestricted = errors.New("kernel addresses are restricted")
)

type symbol struct {
	addr uint64
	name string
}

type resolved struct {
	name   string
	offset uint64
}

// Table is a kernel symbol table sorted by address.
type Table struct {
	syms  []symbol
	cache *freelru.SyncedLRU[uint64, resolved]
}

func hashAddr(addr uint64) uint32 {
	return uint32(addr ^ (addr >> 32))
}

// Load reads the symbol table from /proc/kallsyms.
func Load() (*Table, error) {
	f, err := os.Open(KallsymsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %s", KallsymsPath)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a symbol table in kallsyms format.
func Parse(r io.Reader) (*Table, error) {
	cache, err := freelru.NewSynced[uint64, resolved](cacheSize, hashAddr)
	if err != nil {
		return nil, errors.Wrap(err, "error creating symbol cache")
	}
	t := &Table{cache: cache}

	nonZero := false
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		addr, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			continue
		}
		if addr != 0 {
			nonZero = true
		}
		t.syms = append(t.syms, symbol{addr: addr, name: fields[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading kallsyms")
	}
	if len(t.syms) == 0 {
		return nil, ErrSymTableEmpty
	}
	if !nonZero {
		return nil, ErrRestricted
	}

	sort.SliceStable(t.syms, func(i, j int) bool {
		return t.syms[i].addr < t.syms[j].addr
	})

	return t, nil
}

// Lookup returns the symbol containing addr and the offset of addr in it.
func (t *Table) Lookup(addr uint64) (string, uint64, error) {
	if r, ok := t.cache.Get(addr); ok {
		return r.name, r.offset, nil
	}

	i := sort.Search(len(t.syms), func(i int) bool {
		return t.syms[i].addr > addr
	})
	if i == 0 {
		return "", 0, ErrSymNotFound
	}
	sym := t.syms[i-1]
	r := resolved{name: sym.name, offset: addr - sym.addr}
	t.cache.Add(addr, r)

	return r.name, r.offset, nil
}

// Symbolize returns the name of the symbol containing addr, followed by
// the offset when showOffset is set. Unknown addresses yield Unknown.
func (t *Table) Symbolize(addr uint64, showOffset bool) string {
	name, offset, err := t.Lookup(addr)
	if err != nil {
		return Unknown
	}
	if showOffset {
		return fmt.Sprintf("%s+0x%x", name, offset)
	}

	return name
}

func (t *Table) Len() int {
	return len(t.syms)
}
