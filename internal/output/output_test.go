package output

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		percent int
		filled  int
	}{
		{0, 0},
		{50, 5},
		{100, 10},
		{150, 10},
		{-5, 0},
	}
	for _, tt := range tests {
		bar := ProgressBar(tt.percent, 10)
		require.Equal(t, 10, len([]rune(bar)))
		require.Equal(t, tt.filled, strings.Count(bar, "█"))
	}
}

func TestPrintRight(t *testing.T) {
	var buf bytes.Buffer
	PrintRight(&buf, 10, "abc")
	require.Equal(t, "\r       abc", buf.String())

	buf.Reset()
	PrintRight(&buf, 2, "abc")
	require.Equal(t, "\rabc", buf.String())
}

func TestPrettySamplerStatus(t *testing.T) {
	s := PrettySamplerStatus(42, 3, 50)
	require.Contains(t, s, "Events/s:   42")
	require.Contains(t, s, "Lost:      3")
	require.Contains(t, s, " 50%")
}

func TestStatusBar(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	done := make(chan struct{})
	go func() {
		StatusBar(ctx, time.Millisecond, func() { calls.Add(1) })
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestWidthFallback(t *testing.T) {
	require.Equal(t, defaultWidth, Width(-1))
	require.False(t, IsTerminal(-1))
}
