// Package healthcheck tracks when the probes are attached and exposes it
// as a readiness endpoint.
package healthcheck

import (
	"context"
	"net/http"
	"sync"

	log "github.com/rs/zerolog"
)

const (
	ReadyMsg    = "ready"
	NotReadyMsg = "not ready"
)

type HealthCheck struct {
	readyCh chan struct{}
	once    sync.Once
	logger  log.Logger
}

func New(logger log.Logger) *HealthCheck {
	return &HealthCheck{
		readyCh: make(chan struct{}),
		logger:  logger.With().Str("component", "healthcheck").Logger(),
	}
}

// NotifyReadiness marks the tool as ready. It should be called once the
// programs are attached. Further calls are no-ops.
func (h *HealthCheck) NotifyReadiness() {
	h.once.Do(func() {
		h.logger.Debug().Msg("marking readiness")
		close(h.readyCh)
	})
}

func (h *HealthCheck) Ready() bool {
	select {
	case <-h.readyCh:
		return true
	default:
		return false
	}
}

// Wait blocks until the tool is ready or ctx is done.
func (h *HealthCheck) Wait(ctx context.Context) error {
	select {
	case <-h.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeHTTP answers 200 once ready, 503 before.
func (h *HealthCheck) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !h.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(NotReadyMsg))
		return
	}
	_, _ = w.Write([]byte(ReadyMsg))
}
