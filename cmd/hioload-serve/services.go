// File: cmd/hioload-serve/services.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Supervised services: the protocol server and the metrics endpoint.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/momentics/hioload-serve/api"
	"github.com/momentics/hioload-serve/control"
	"github.com/momentics/hioload-serve/server"
)

// protocolService runs the engine. A Server cannot be reopened once closed,
// so a failure terminates the whole tree instead of restarting.
type protocolService struct {
	srv             *server.Server
	shutdownTimeout time.Duration
}

func (p *protocolService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- p.srv.ListenAndServe(ctx) }()

	select {
	case err := <-errCh:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("protocol server: %w: %w", err, suture.ErrTerminateSupervisorTree)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), p.shutdownTimeout)
		defer cancel()
		if err := p.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("protocol server shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, api.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}

func (p *protocolService) String() string { return "protocol-server" }

// metricsService exposes Prometheus metrics on its own listener.
type metricsService struct {
	addr            string
	shutdownTimeout time.Duration
}

func (m *metricsService) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", control.MetricsHandler())
	hs := &http.Server{Addr: m.addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (m *metricsService) String() string { return "metrics-server" }
