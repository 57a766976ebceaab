// Package observability exposes Prometheus metrics for batch runs and the scheduler
package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// MetricsServer serves /metrics and a /healthz probe
type MetricsServer struct {
	log      logrus.FieldLogger
	server   *http.Server
	listener net.Listener
}

// NewMetricsServer creates a metrics server for addr
func NewMetricsServer(log logrus.FieldLogger, addr string) *MetricsServer {
	sm := http.NewServeMux()
	sm.Handle("/metrics", promhttp.Handler())
	sm.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &MetricsServer{
		log: log.WithField("component", "metrics"),
		server: &http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 15 * time.Second,
			Handler:           sm,
		},
	}
}

// Start binds the listen address and serves in the background. Bind errors
// are returned; later serve errors are logged.
func (m *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", m.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.server.Addr, err)
	}

	m.listener = ln

	go func() {
		m.log.WithField("addr", ln.Addr().String()).Info("Starting metrics server")

		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.WithError(err).Error("Metrics server stopped")
		}
	}()

	return nil
}

// Addr returns the bound address, or the configured one before Start
func (m *MetricsServer) Addr() string {
	if m.listener == nil {
		return m.server.Addr
	}

	return m.listener.Addr().String()
}

// Stop shuts the server down
func (m *MetricsServer) Stop(ctx context.Context) error {
	if m.listener == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}
