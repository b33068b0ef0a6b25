package stack_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/ktally/pkg/metrics"
	"github.com/maxgio92/ktally/pkg/stack"
)

// MockResolver implements stack.Resolver.
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Stack(id uint32) ([]uint64, error) {
	args := m.Called(id)
	addrs, _ := args.Get(0).([]uint64)
	return addrs, args.Error(1)
}

// fakeSymbols names each address "sym<addr>", except the ones listed.
type fakeSymbols map[uint64]string

func (f fakeSymbols) Symbolize(addr uint64, showOffset bool) string {
	name, ok := f[addr]
	if !ok {
		name = fmt.Sprintf("sym%d", addr)
	}
	if showOffset {
		return name + "+0x0"
	}
	return name
}

func encode(t *testing.T, ev stack.Event) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, binary.Write(buf, binary.LittleEndian, ev))
	return buf.Bytes()
}

func newEvent(stackID int64) stack.Event {
	ev := stack.Event{
		TimeNs:  1234567,
		StackID: stackID,
		CPU:     2,
		TaskID:  uint64(100)<<32 | 101,
	}
	copy(ev.Comm[:], "kworker/2:1")
	return ev
}

func TestEventLayout(t *testing.T) {
	data := encode(t, newEvent(5))
	require.Len(t, data, 48)

	ev, err := stack.DecodeEvent(data)
	require.NoError(t, err)
	require.Equal(t, uint32(100), ev.PID())
	require.Equal(t, uint32(101), ev.TID())
	require.Equal(t, "kworker/2:1", ev.CommString())

	_, err = stack.DecodeEvent(data[:47])
	require.ErrorIs(t, err, stack.ErrShortRecord)
}

func TestHandleRendersStack(t *testing.T) {
	resolver := new(MockResolver)
	resolver.On("Stack", uint32(5)).Return([]uint64{1, 2, 3}, nil)

	var out bytes.Buffer
	m := metrics.New()
	s, err := stack.NewSampler(resolver, fakeSymbols{}, stack.WithWriter(&out), stack.WithMetrics(m))
	require.NoError(t, err)

	s.Handle(encode(t, newEvent(5)))

	expected := "===================================\n" +
		fmt.Sprintf("TASK: kworker/2:1 (pid %5d tid %5d) Total Time: %-9.3fus\n\n", 100, 101, 1234.567) +
		"Stack Dump on exit from Critical Section:\n" +
		"  sym1+0x0\n" +
		"  sym2+0x0\n" +
		"  sym3+0x0\n" +
		"===================================\n" +
		"\n"
	require.Equal(t, expected, out.String())
	require.Equal(t, float64(1), testutil.ToFloat64(m.Stacks.WithLabelValues(metrics.StackHandled)))
	resolver.AssertExpectations(t)
}

func TestHandleDiscardsIdleStacks(t *testing.T) {
	const depth = 5
	for pos := 0; pos < depth; pos++ {
		t.Run(fmt.Sprintf("marker at frame %d", pos), func(t *testing.T) {
			addrs := make([]uint64, depth)
			for i := range addrs {
				addrs[i] = uint64(i + 1)
			}
			resolver := new(MockResolver)
			resolver.On("Stack", uint32(9)).Return(addrs, nil)
			symbols := fakeSymbols{addrs[pos]: "cpuidle_enter_state"}

			var out bytes.Buffer
			s, err := stack.NewSampler(resolver, symbols, stack.WithWriter(&out))
			require.NoError(t, err)

			s.Handle(encode(t, newEvent(9)))
			require.Empty(t, out.String())
		})
	}
}

func TestHandleCustomIdleMarkers(t *testing.T) {
	resolver := new(MockResolver)
	resolver.On("Stack", uint32(1)).Return([]uint64{1, 2}, nil)

	var out bytes.Buffer
	s, err := stack.NewSampler(resolver, fakeSymbols{2: "default_idle_call"},
		stack.WithWriter(&out),
		stack.WithIdleMarkers("cpuidle", "default_idle"),
	)
	require.NoError(t, err)

	s.Handle(encode(t, newEvent(1)))
	require.Empty(t, out.String())
}

func TestHandleInvalidStacks(t *testing.T) {
	resolver := new(MockResolver)
	resolver.On("Stack", uint32(3)).Return(nil, errors.New("key not found"))

	var out bytes.Buffer
	m := metrics.New()
	s, err := stack.NewSampler(resolver, fakeSymbols{}, stack.WithWriter(&out), stack.WithMetrics(m))
	require.NoError(t, err)

	s.Handle(encode(t, newEvent(-14)))
	require.Equal(t, "Empty kernel stack received\n\n", out.String())
	resolver.AssertNotCalled(t, "Stack", mock.Anything)

	out.Reset()
	s.Handle(encode(t, newEvent(3)))
	require.Contains(t, out.String(), "Invalid kernel stack 3")

	out.Reset()
	s.Handle([]byte{1, 2, 3})
	require.Empty(t, out.String())

	require.Equal(t, float64(2), testutil.ToFloat64(m.Stacks.WithLabelValues(metrics.StackInvalid)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Stacks.WithLabelValues(metrics.StackDecode)))
}

type fakeSource struct {
	mu      sync.Mutex
	polls   int
	records [][]byte
}

func (f *fakeSource) Poll(timeout time.Duration, fn func([]byte)) (int, error) {
	f.mu.Lock()
	f.polls++
	records := f.records
	f.records = nil
	f.mu.Unlock()

	if len(records) == 0 {
		time.Sleep(timeout)
		return 0, nil
	}
	for _, r := range records {
		fn(r)
	}
	return len(records), nil
}

func (f *fakeSource) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func TestRunEmptyPollsProduceNothing(t *testing.T) {
	resolver := new(MockResolver)
	resolver.On("Stack", uint32(5)).Return([]uint64{1}, nil)

	var out bytes.Buffer
	s, err := stack.NewSampler(resolver, fakeSymbols{},
		stack.WithWriter(&out),
		stack.WithPollTimeout(time.Millisecond),
	)
	require.NoError(t, err)

	src := &fakeSource{records: [][]byte{encode(t, newEvent(5))}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, src) }()

	require.Eventually(t, func() bool { return src.pollCount() > 3 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.Equal(t, 1, bytes.Count(out.Bytes(), []byte("TASK:")))
}

func TestNewSamplerErrors(t *testing.T) {
	_, err := stack.NewSampler(nil, fakeSymbols{})
	require.Error(t, err)

	_, err = stack.NewSampler(new(MockResolver), nil)
	require.Error(t, err)
}
