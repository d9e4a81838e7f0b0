/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package loader

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/friendsincode/fairplay/internal/telemetry"
	"github.com/friendsincode/fairplay/internal/track"
)

// Request asks the worker to load one track. Gen is echoed back so the
// orchestrator can drop results for a root it has since replaced.
type Request struct {
	Path string
	Gen  uint64
}

// Response is either Loaded or Failed.
type Response interface {
	response()
}

// Loaded carries a ready entry. The receiver owns Entry.Source.
type Loaded struct {
	Path  string
	Gen   uint64
	Entry track.Entry
}

// Failed reports a track that could not be loaded.
type Failed struct {
	Path string
	Gen  uint64
	Err  error
}

func (Loaded) response() {}
func (Failed) response() {}

// Worker serves load requests one at a time.
type Worker struct {
	loader *Loader
}

// NewWorker wraps l in a request loop.
func NewWorker(l *Loader) *Worker {
	return &Worker{loader: l}
}

// Run handles requests until the channel closes or ctx is done. Every
// accepted request gets exactly one response.
func (w *Worker) Run(ctx context.Context, requests <-chan Request, responses chan<- Response) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-requests:
			if !ok {
				return nil
			}
			resp := w.handle(ctx, req)
			select {
			case responses <- resp:
			case <-ctx.Done():
				if loaded, ok := resp.(Loaded); ok {
					loaded.Entry.Source.Close()
				}
				return ctx.Err()
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, req Request) (resp Response) {
	logger := w.loader.logger
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("path", req.Path).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("panic while loading track")
			resp = Failed{Path: req.Path, Gen: req.Gen, Err: fmt.Errorf("load panicked: %v", r)}
		}
		telemetry.TrackLoadDuration.Observe(time.Since(start).Seconds())
		if _, ok := resp.(Loaded); ok {
			telemetry.TrackLoadsTotal.WithLabelValues("loaded").Inc()
		} else {
			telemetry.TrackLoadsTotal.WithLabelValues("failed").Inc()
		}
	}()

	logger.Debug().Str("path", req.Path).Uint64("gen", req.Gen).Msg("loading track")
	entry, err := w.loader.Load(ctx, req.Path)
	if err != nil {
		logger.Warn().Err(err).Str("path", req.Path).Msg("track load failed")
		return Failed{Path: req.Path, Gen: req.Gen, Err: err}
	}
	return Loaded{Path: req.Path, Gen: req.Gen, Entry: entry}
}
