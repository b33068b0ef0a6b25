package probe

import (
	"embed"
	"fmt"

	"github.com/pkg/errors"
)

//go:embed bpf/*.bpf.c
var sourceFS embed.FS

const (
	SyscountSource = "syscount"
	CritstatSource = "critstat"
)

// Source returns the C source of the named probe program.
func Source(name string) (string, error) {
	data, err := sourceFS.ReadFile(fmt.Sprintf("bpf/%s.bpf.c", name))
	if err != nil {
		return "", errors.Wrapf(ErrUnknownSource, "%s", name)
	}

	return string(data), nil
}
