package report_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/ktally/pkg/report"
)

var testTime = time.Date(2024, 3, 1, 12, 34, 56, 0, time.UTC)

func TestTextRenderer(t *testing.T) {
	w := report.NewWindow(
		report.WithWindowTime(testTime),
		report.WithWindowRows([]report.Row{
			{Key: 0, Label: "read", Count: 5, TotalNs: 1500},
		}),
	)

	tests := []struct {
		name     string
		renderer report.TextRenderer
		lines    []string
	}{
		{
			name:     "count",
			renderer: report.TextRenderer{Column: "SYSCALL"},
			lines: []string{
				"[12:34:56]",
				fmt.Sprintf("%-22s %8s", "SYSCALL", "COUNT"),
				fmt.Sprintf("%-22s %8d", "read", 5),
				"",
			},
		},
		{
			name:     "latency in microseconds",
			renderer: report.TextRenderer{Column: "SYSCALL", Latency: true},
			lines: []string{
				"[12:34:56]",
				fmt.Sprintf("%-22s %8s %16s", "SYSCALL", "COUNT", "TIME (us)"),
				fmt.Sprintf("%-22s %8d %16s", "read", 5, "1.500"),
				"",
			},
		},
		{
			name:     "latency in milliseconds",
			renderer: report.TextRenderer{Column: "SYSCALL", Latency: true, Milliseconds: true},
			lines: []string{
				"[12:34:56]",
				fmt.Sprintf("%-22s %8s %16s", "SYSCALL", "COUNT", "TIME (ms)"),
				fmt.Sprintf("%-22s %8d %16s", "read", 5, "0.001500"),
				"",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, tt.renderer.Render(&buf, w))
			require.Equal(t, strings.Join(tt.lines, "\n")+"\n", buf.String())
		})
	}
}

func TestTextRendererDrops(t *testing.T) {
	var buf bytes.Buffer
	w := report.NewWindow(report.WithWindowTime(testTime), report.WithWindowDrops(7))

	require.NoError(t, report.TextRenderer{Column: "SYSCALL"}.Render(&buf, w))
	require.Contains(t, buf.String(), "(7 updates dropped: counter table full)")
}

func TestWriteJSONOutput(t *testing.T) {
	w := report.NewWindow(
		report.WithWindowTime(testTime),
		report.WithWindowRows([]report.Row{{Key: 1, Label: "write", Count: 2}}),
		report.WithWindowDrops(1),
	)

	var buf bytes.Buffer
	require.NoError(t, report.JSONRenderer{}.Render(&buf, w))

	var parsed report.Window
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	require.True(t, testTime.Equal(parsed.Time))
	require.Equal(t, w.Rows, parsed.Rows)
	require.Equal(t, uint64(1), parsed.Drops)
}

func TestNewRenderer(t *testing.T) {
	r, err := report.NewRenderer(report.FormatJSON, report.TextRenderer{})
	require.NoError(t, err)
	require.IsType(t, report.JSONRenderer{}, r)

	r, err = report.NewRenderer("", report.TextRenderer{Column: "SYSCALL"})
	require.NoError(t, err)
	require.IsType(t, report.TextRenderer{}, r)

	_, err = report.NewRenderer("yaml", report.TextRenderer{})
	require.ErrorIs(t, err, report.ErrUnknownFormat)
}
