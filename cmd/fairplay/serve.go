/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/friendsincode/fairplay/internal/api"
	"github.com/friendsincode/fairplay/internal/engine"
	"github.com/friendsincode/fairplay/internal/events"
	"github.com/friendsincode/fairplay/internal/history"
	"github.com/friendsincode/fairplay/internal/logbuffer"
	"github.com/friendsincode/fairplay/internal/logging"
	"github.com/friendsincode/fairplay/internal/server"
	"github.com/friendsincode/fairplay/internal/telemetry"
	"github.com/friendsincode/fairplay/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the player with its HTTP control API",
	Long:  "Start playback, the HTTP control API, the websocket event stream and the play history.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(nil); err != nil {
		return err
	}
	var logBuf *logbuffer.Buffer
	if cfg.LogBufferLines > 0 {
		logBuf = logbuffer.New(cfg.LogBufferLines)
		logger = logging.SetupWithWriter(cfg.Environment, os.Stderr, logbuffer.NewWriter(logBuf, nil))
	}

	logger.Info().Str("version", version.Version).Str("addr", cfg.Addr()).Msg("fairplay starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "fairplay",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	orch, closeSink, err := newOrchestrator()
	if err != nil {
		return err
	}
	defer closeSink()

	var hist *history.Store
	if cfg.HistoryDSN != "" {
		hist, err = history.Open(cfg.HistoryDSN, logger)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
	}

	bus := events.NewBus()
	state := api.NewState()
	commands := make(chan engine.Command)
	engineEvents := make(chan engine.Event, 64)

	srv := server.New(cfg, api.New(commands, state, hist, bus, logBuf, logger), logger)
	if hist != nil {
		srv.DeferClose(hist.Close)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(engineEvents)
		return ignoreCanceled(orch.Run(gctx, commands, engineEvents))
	})
	g.Go(func() error {
		return ignoreCanceled(engine.Publish(gctx, engineEvents, bus))
	})
	g.Go(func() error {
		return ignoreCanceled(state.Run(gctx, bus))
	})
	if hist != nil {
		g.Go(func() error {
			return ignoreCanceled(hist.Run(gctx, bus))
		})
	}
	g.Go(func() error {
		return srv.Run(gctx)
	})

	err = g.Wait()
	logger.Info().Msg("fairplay stopped")
	return err
}
