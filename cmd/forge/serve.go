// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianForge/services/forge/api"
	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

const shutdownTimeout = 10 * time.Second

var serveOpts struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the validation and generation HTTP API",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.addr, "addr", "", "listen address (default: server.addr from config)")
}

func serve(cmd *cobra.Command, _ []string) error {
	addr := state.cfg.Server.Addr
	if serveOpts.addr != "" {
		addr = serveOpts.addr
	}
	if state.cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := state.logger.Slog()
	p, err := state.newPipeline(state.registry, uuid.NewString())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.close(); cerr != nil {
			logger.Warn("Failed to close artifact store", slog.String("error", cerr.Error()))
		}
	}()

	w, err := state.watchConfig(ctx, p.orch)
	if err != nil {
		return err
	}
	defer w.Stop()

	handlers := &api.Handlers{
		Validator:    validate.NewValidator(validate.WithQualityConfig(state.cfg.Quality)),
		Quality:      state.cfg.Quality,
		Orchestrator: p.orch,
		Store:        p.store,
		Breakers:     p.guard.Breakers(),
		Logger:       logger,
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(handlers, state.registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Starting forge server", slog.String("address", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down forge server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
