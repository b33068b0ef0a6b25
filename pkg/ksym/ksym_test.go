package ksym_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/ktally/pkg/ksym"
)

const kallsyms = `ffffffff81000000 T _stext
ffffffff81000100 T do_idle
ffffffff81000400 t cpuidle_enter_state
ffffffff81000800 T _raw_spin_unlock_irqrestore
ffffffffc0002000 t ext4_file_write_iter	[ext4]
`

func TestSymbolize(t *testing.T) {
	tab, err := ksym.Parse(strings.NewReader(kallsyms))
	require.NoError(t, err)
	require.Equal(t, 5, tab.Len())

	tests := []struct {
		addr       uint64
		showOffset bool
		want       string
	}{
		{addr: 0xffffffff81000100, showOffset: true, want: "do_idle+0x0"},
		{addr: 0xffffffff81000123, showOffset: true, want: "do_idle+0x23"},
		{addr: 0xffffffff81000123, want: "do_idle"},
		{addr: 0xffffffff81000410, showOffset: true, want: "cpuidle_enter_state+0x10"},
		{addr: 0xffffffffc0002042, showOffset: true, want: "ext4_file_write_iter+0x42"},
		{addr: 0x1000, showOffset: true, want: ksym.Unknown},
	}

	for _, tt := range tests {
		// Twice, to go through the cache.
		require.Equal(t, tt.want, tab.Symbolize(tt.addr, tt.showOffset))
		require.Equal(t, tt.want, tab.Symbolize(tt.addr, tt.showOffset))
	}
}

func TestParseUnsortedInput(t *testing.T) {
	tab, err := ksym.Parse(strings.NewReader("0000000000002000 T b\n0000000000001000 T a\n"))
	require.NoError(t, err)

	name, off, err := tab.Lookup(0x1500)
	require.NoError(t, err)
	require.Equal(t, "a", name)
	require.Equal(t, uint64(0x500), off)
}

func TestParseErrors(t *testing.T) {
	_, err := ksym.Parse(strings.NewReader(""))
	require.ErrorIs(t, err, ksym.ErrSymTableEmpty)

	_, err = ksym.Parse(strings.NewReader("0000000000000000 T a\n0000000000000000 T b\n"))
	require.ErrorIs(t, err, ksym.ErrRestricted)
}
