// Package syscalls maps syscall numbers to names.
package syscalls

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

const listColumns = 4

var (
	loadOnce sync.Once
	table    map[uint32]string
)

// names returns the syscall table of the running architecture, loaded on
// first use.
func names() map[uint32]string {
	loadOnce.Do(func() {
		table = loadTable()
	})
	return table
}

// Known returns how many syscall names are available. It is zero when the
// table of the running architecture could not be loaded.
func Known() int {
	return len(names())
}

// Name returns the name of syscall nr.
func Name(nr uint32) (string, bool) {
	name, ok := names()[nr]
	return name, ok
}

// Label returns the name of syscall nr, or "[unknown: nr]".
func Label(nr uint32) string {
	if name, ok := names()[nr]; ok {
		return name
	}
	return fmt.Sprintf("[unknown: %d]", nr)
}

// List returns the known syscall names, sorted.
func List() []string {
	all := names()
	list := make([]string, 0, len(all))
	for _, name := range all {
		list = append(list, name)
	}
	sort.Strings(list)

	return list
}

// WriteList prints the known syscall names in columns.
func WriteList(w io.Writer) error {
	list := List()
	for i := 0; i < len(list); i += listColumns {
		end := i + listColumns
		if end > len(list) {
			end = len(list)
		}
		cols := make([]string, 0, listColumns)
		for _, name := range list[i:end] {
			cols = append(cols, fmt.Sprintf("%-20s", name))
		}
		if _, err := fmt.Fprintln(w, strings.Join(cols, "   ")); err != nil {
			return err
		}
	}

	return nil
}
