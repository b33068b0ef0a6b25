package report

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

var ErrUnknownFormat = errors.New("unknown output format")

type Renderer interface {
	Render(out io.Writer, w *Window) error
}

// TextRenderer prints windows as aligned columns.
type TextRenderer struct {
	Column       string
	Latency      bool
	Milliseconds bool
}

func (r TextRenderer) Render(out io.Writer, w *Window) error {
	ew := &errWriter{w: out}

	ew.printf("[%s]\n", w.Time.Format("15:04:05"))
	if r.Latency {
		timeCol := "TIME (us)"
		if r.Milliseconds {
			timeCol = "TIME (ms)"
		}
		ew.printf("%-22s %8s %16s\n", r.Column, "COUNT", timeCol)
	} else {
		ew.printf("%-22s %8s\n", r.Column, "COUNT")
	}

	for _, row := range w.Rows {
		switch {
		case r.Latency && r.Milliseconds:
			ew.printf("%-22s %8d %16.6f\n", row.Label, row.Count, float64(row.TotalNs)/1e6)
		case r.Latency:
			ew.printf("%-22s %8d %16.3f\n", row.Label, row.Count, float64(row.TotalNs)/1e3)
		default:
			ew.printf("%-22s %8d\n", row.Label, row.Count)
		}
	}
	if w.Drops > 0 {
		ew.printf("(%d updates dropped: counter table full)\n", w.Drops)
	}
	ew.printf("\n")

	return ew.err
}

type JSONRenderer struct{}

func (JSONRenderer) Render(out io.Writer, w *Window) error {
	return w.WriteJSON(out)
}

// NewRenderer returns the renderer for format.
func NewRenderer(format string, text TextRenderer) (Renderer, error) {
	switch format {
	case FormatText, "":
		return text, nil
	case FormatJSON:
		return JSONRenderer{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
