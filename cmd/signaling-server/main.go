// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package main implements the WebRTC signaling server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/siderolabs/go-chunk/internal/signaling"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "signaling-server:", err)

		os.Exit(1)
	}
}

func run() error {
	cfg, err := signaling.LoadConfig()
	if err != nil {
		return err
	}

	var logger *zap.Logger

	if cfg.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}

	if err != nil {
		return err
	}

	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := signaling.NewHub(cfg, logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           signaling.NewHandler(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logger.Info("signaling server starting", zap.String("addr", cfg.Addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// hijacked websocket connections are not tracked by the server
		err := srv.Shutdown(shutdownCtx)

		hub.Close()

		return err
	})

	return eg.Wait()
}
