package report

import (
	"encoding/json"
	"io"
	"time"
)

type Row struct {
	Key     uint32 `json:"key"`
	Label   string `json:"label"`
	Count   uint64 `json:"count"`
	TotalNs uint64 `json:"total_ns,omitempty"`
}

// Window is the rendered content of one reporting window.
type Window struct {
	Time  time.Time `json:"time"`
	Rows  []Row     `json:"rows"`
	Drops uint64    `json:"drops,omitempty"`
}

type WindowOption func(*Window)

func NewWindow(opts ...WindowOption) *Window {
	w := new(Window)
	for _, opt := range opts {
		opt(w)
	}

	return w
}

func WithWindowTime(t time.Time) WindowOption {
	return func(w *Window) {
		w.Time = t
	}
}

func WithWindowRows(rows []Row) WindowOption {
	return func(w *Window) {
		w.Rows = rows
	}
}

func WithWindowDrops(drops uint64) WindowOption {
	return func(w *Window) {
		w.Drops = drops
	}
}

func (w *Window) WriteJSON(out io.Writer) error {
	encoder := json.NewEncoder(out)
	return encoder.Encode(w)
}
