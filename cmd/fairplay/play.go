/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/friendsincode/fairplay/internal/engine"
)

var playCmd = &cobra.Command{
	Use:   "play [dir]",
	Short: "Play a music folder without the HTTP API",
	Long: `Play a music folder in the foreground and log what is playing.
Without an argument the root saved in the settings file is used.
Ctrl-C stops playback.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	if err := loadConfig(nil); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch, closeSink, err := newOrchestrator()
	if err != nil {
		return err
	}
	defer closeSink()

	// The orchestrator outlives ctx so that Stop can drain the player.
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	commands := make(chan engine.Command, 2)
	evs := make(chan engine.Event, 64)
	done := make(chan error, 1)
	go func() {
		done <- orch.Run(runCtx, commands, evs)
	}()

	if len(args) == 1 {
		commands <- engine.ChangeRoot{Path: args[0]}
	}
	commands <- engine.Play{}

	interrupted := ctx.Done()
	stopping := false
	for {
		select {
		case <-interrupted:
			interrupted = nil
			if !stopping {
				stopping = true
				logger.Info().Msg("stopping playback")
				commands <- engine.Stop{}
			}
		case err := <-done:
			return ignoreCanceled(err)
		case ev := <-evs:
			if err := logEvent(ev); err != nil && !stopping {
				stopping = true
				commands <- engine.Stop{}
				<-drain(evs, done)
				return err
			}
		}
	}
}

// logEvent writes one line per interesting event. Directory errors are
// fatal for a headless run since nothing else can pick a new root.
func logEvent(ev engine.Event) error {
	switch e := ev.(type) {
	case engine.NewTrackPlaying:
		if e.Metadata == nil {
			logger.Info().Msg("queue empty")
			return nil
		}
		logger.Info().
			Str("path", e.Metadata.Path).
			Str("title", e.Metadata.Name).
			Str("artist", e.Metadata.Artist).
			Dur("duration", e.Metadata.Duration).
			Msg("now playing")
	case engine.DirError:
		return fmt.Errorf("music folder: %s", e.Message())
	case engine.LoadFailed:
		logger.Warn().Err(e.Err).Str("path", e.Path).Msg("track skipped")
	case engine.TransportFailed:
		logger.Warn().Err(e.Err).Str("op", e.Op).Msg("transport command failed")
	case engine.ActorUnavailable:
		logger.Error().Err(e.Err).Str("actor", e.Actor).Bool("permanent", e.Permanent).Dur("restart_in", e.RestartIn).Msg("actor down")
	case engine.LibraryChanged:
		logger.Info().Str("root", e.Root).Int("tracks", e.Tracks).Msg("library loaded")
	}
	return nil
}

// drain discards events until the orchestrator returns.
func drain(evs <-chan engine.Event, done <-chan error) <-chan struct{} {
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case <-evs:
			case <-done:
				return
			}
		}
	}()
	return finished
}
