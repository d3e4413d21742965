// File: cmd/hioload-serve/main.go
// Package main
// hioload-serve runs a JavaScript application on the embedded HTTP/1.1 and
// WebSocket engine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
//	hioload-serve -config hioload.yaml app.js
//	HIOLOAD_PORT=8080 hioload-serve app.js

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/thejerf/suture/v4"

	"github.com/momentics/hioload-serve/control"
	"github.com/momentics/hioload-serve/internal/logging"
	"github.com/momentics/hioload-serve/jsbridge"
	"github.com/momentics/hioload-serve/server"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("hioload-serve stopped")
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "YAML config file (default $"+control.ConfigPathEnvVar+")")
	port := flag.Int("port", 0, "listen port, overrides the config")
	flag.Parse()

	cfg, err := control.Load(*configPath)
	if err != nil {
		return err
	}
	if *port > 0 {
		cfg.Port = *port
	}
	if flag.NArg() > 0 {
		cfg.Script = flag.Arg(0)
	}
	if cfg.Script == "" {
		return errors.New("no script given: pass a path or set script in the config")
	}

	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	watchConfig(*configPath)

	srv := server.New(nil, server.FromControl(cfg)...)
	bridge, err := jsbridge.New(srv, jsbridge.Config{Timeout: cfg.ScriptTimeout})
	if err != nil {
		return fmt.Errorf("init script runtime: %w", err)
	}
	if err := bridge.LoadFile(cfg.Script); err != nil {
		return err
	}

	sup := suture.New("hioload-serve", suture.Spec{
		EventHook: func(e suture.Event) {
			logging.Warn().Str("event", e.String()).Msg("supervisor event")
		},
		Timeout: cfg.ShutdownTimeout,
	})
	sup.Add(&protocolService{srv: srv, shutdownTimeout: cfg.ShutdownTimeout})
	if cfg.Metrics.Addr != "" {
		sup.Add(&metricsService{addr: cfg.Metrics.Addr, shutdownTimeout: cfg.ShutdownTimeout})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := sup.ServeBackground(ctx)

	logging.Info().Str("addr", cfg.Addr()).Str("script", cfg.Script).Msg("hioload-serve started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
		err = <-errCh
	case err = <-errCh:
	}
	if err == nil || errors.Is(err, context.Canceled) {
		logging.Info().Msg("shutdown complete")
		return nil
	}
	return err
}

// watchConfig applies log level changes from the config file without a
// restart. Listener and buffer settings only take effect on the next start.
func watchConfig(path string) {
	if path == "" {
		path = os.Getenv(control.ConfigPathEnvVar)
	}
	if path == "" {
		return
	}
	control.RegisterReloadHook(func(c *control.Config) {
		logging.Init(logging.Config{Level: c.Log.Level, Format: c.Log.Format})
		logging.Info().Str("level", c.Log.Level).Msg("configuration reloaded")
	})
	if err := control.WatchConfig(path, func(err error) {
		logging.Warn().Err(err).Msg("config reload failed")
	}); err != nil {
		logging.Warn().Err(err).Msg("config watch disabled")
	}
}
