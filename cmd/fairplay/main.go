/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/fairplay/internal/config"
	"github.com/friendsincode/fairplay/internal/engine"
	"github.com/friendsincode/fairplay/internal/loader"
	"github.com/friendsincode/fairplay/internal/logging"
	"github.com/friendsincode/fairplay/internal/player"
	"github.com/friendsincode/fairplay/internal/settings"
	"github.com/friendsincode/fairplay/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "fairplay",
	Short:   "fairplay - plays a music folder so every directory gets its fair share",
	Long:    "fairplay keeps a few tracks loaded ahead and picks each one from the least played branch of the folder tree.",
	Version: version.String(),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it). When
// capture is set, log events are copied there as JSON.
func loadConfig(capture io.Writer) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.SetupWithWriter(cfg.Environment, os.Stderr, capture)
	return nil
}

// newOrchestrator opens the audio device and builds the playback pipeline.
// The returned close function releases the device.
func newOrchestrator() (*engine.Orchestrator, func() error, error) {
	sink, err := player.NewSpeakerSink(cfg.SampleRate)
	if err != nil {
		return nil, nil, fmt.Errorf("open audio output: %w", err)
	}

	worker := loader.NewWorker(loader.New(loader.Options{
		CoverMaxPx: cfg.CoverMaxPx,
		Logger:     logger,
	}))
	pl := player.New(sink, player.Options{
		ProgressInterval: cfg.ProgressInterval,
		Logger:           logger,
	})
	orch := engine.New(worker, pl, engine.Options{
		QueueDepth:     cfg.QueueDepth,
		Extensions:     cfg.TrackExtensions,
		Settings:       settings.NewStore(cfg.SettingsPath, logger),
		VolumeDebounce: cfg.VolumeDebounce,
		Watch:          cfg.WatchRoot,
		WatchDebounce:  cfg.WatchDebounce,
		Logger:         logger,
	})
	return orch, sink.Close, nil
}

// ignoreCanceled treats a cancelled context as a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
