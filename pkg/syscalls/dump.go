package syscalls

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var ErrEmptyDump = errors.New("no syscalls in dump")

// ParseDump reads the output of "ausyscall --dump": a header line, then
// one "number<TAB>name" pair per line.
func ParseDump(r io.Reader) (map[uint32]string, error) {
	table := make(map[uint32]string)

	scanner := bufio.NewScanner(r)
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		nr, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			continue
		}
		table[uint32(nr)] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading syscall dump")
	}
	if len(table) == 0 {
		return nil, ErrEmptyDump
	}

	return table, nil
}
