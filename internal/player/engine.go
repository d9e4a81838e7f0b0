/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package player owns the audio sink and the queue of tracks waiting in it.
package player

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/fairplay/internal/telemetry"
	"github.com/friendsincode/fairplay/internal/track"
)

var (
	// ErrQueueEmpty is reported for transport commands with nothing queued.
	ErrQueueEmpty = errors.New("player queue is empty")
	// ErrUnknownDuration is reported when seeking a track without a known length.
	ErrUnknownDuration = errors.New("track duration unknown")
)

// DefaultProgressInterval is how often the position is sampled while
// something is queued.
const DefaultProgressInterval = 100 * time.Millisecond

// State of the sink as seen by the engine.
type State int

const (
	StateEmpty State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "empty"
	}
}

// Options configures an Engine.
type Options struct {
	ProgressInterval time.Duration
	Logger           zerolog.Logger
}

// Engine drives a Sink from a single goroutine. Its queue mirrors the
// sink's play order: the front entry is the one being heard.
type Engine struct {
	sink     Sink
	interval time.Duration
	logger   zerolog.Logger

	queue  []track.Entry
	paused bool

	// skipped counts front entries already dropped by the sink whose
	// markers have not come back yet. The audible track is queue[skipped].
	skipped int

	// gen increases on every clear; markers carry the generation they were
	// created in so that ones already in flight during a clear are ignored.
	gen      uint64
	finished chan uint64
}

// New creates an engine for sink.
func New(sink Sink, opts Options) *Engine {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	return &Engine{
		sink:     sink,
		interval: opts.ProgressInterval,
		logger:   opts.Logger.With().Str("component", "player").Logger(),
		finished: make(chan uint64, 16),
	}
}

// State reports whether the sink is empty, playing or paused. Only
// meaningful from the engine goroutine or after Run has returned.
func (e *Engine) State() State {
	switch {
	case len(e.queue) == 0:
		return StateEmpty
	case e.paused:
		return StatePaused
	default:
		return StatePlaying
	}
}

// Run serves requests until the channel closes or ctx is done. The sink is
// cleared on entry and on exit, so a restarted engine starts empty.
func (e *Engine) Run(ctx context.Context, requests <-chan Request, events chan<- Event) error {
	e.reset()
	defer e.reset()

	e.logger.Info().Dur("progress_interval", e.interval).Msg("player started")
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("player stopped")
			return ctx.Err()

		case req, ok := <-requests:
			if !ok {
				e.logger.Info().Msg("player request channel closed")
				return nil
			}
			if err := e.handle(ctx, req, events); err != nil {
				return err
			}

		case gen := <-e.finished:
			if gen != e.gen {
				e.logger.Debug().Uint64("gen", gen).Uint64("current", e.gen).Msg("ignoring stale completion marker")
				continue
			}
			if err := e.trackFinished(ctx, events); err != nil {
				return err
			}

		case <-ticker.C:
			if len(e.queue) == 0 {
				continue
			}
			if err := e.emit(ctx, events, ProgressUpdate{Position: e.sink.Position()}); err != nil {
				return err
			}
		}
	}
}

func (e *Engine) reset() {
	e.sink.Clear()
	for _, entry := range e.queue {
		entry.Source.Close()
	}
	e.queue = nil
	e.skipped = 0
	e.gen++
	e.updateState()
}

func (e *Engine) handle(ctx context.Context, req Request, events chan<- Event) error {
	switch r := req.(type) {
	case Enqueue:
		return e.enqueue(ctx, r.Entry, events)

	case Play:
		e.sink.Play()
		e.paused = false
		e.updateState()
		return e.emit(ctx, events, NowPlaying{})

	case Pause:
		e.sink.Pause()
		e.paused = true
		e.updateState()
		return e.emit(ctx, events, NowPaused{})

	case JumpToFraction:
		pos, err := e.jump(r.Fraction)
		if err != nil {
			e.logger.Error().Err(err).Float64("fraction", r.Fraction).Msg("seek failed")
			return e.emit(ctx, events, TransportFailed{Op: "seek", Err: err})
		}
		return e.emit(ctx, events, JumpedTo{Position: pos})

	case Skip:
		if len(e.queue) <= e.skipped {
			e.logger.Debug().Msg("skip with empty queue")
			return nil
		}
		// The marker of the dropped track reports the finish.
		e.sink.Skip()
		e.skipped++
		return nil

	case Clear:
		e.reset()
		return e.emit(ctx, events, NewTrackPlaying{})

	case SetVolume:
		v := clamp01(r.Volume)
		e.sink.SetVolume(v * v)
		return nil

	default:
		e.logger.Warn().Str("type", fmt.Sprintf("%T", req)).Msg("unknown player request")
		return nil
	}
}

func (e *Engine) enqueue(ctx context.Context, entry track.Entry, events chan<- Event) error {
	gen := e.gen
	marker := func() {
		// Runs on the output goroutine; hand off without blocking it.
		go func() { e.finished <- gen }()
	}

	path := ""
	if entry.Source != nil {
		path = entry.Source.Path
	}
	if err := e.sink.Append(entry.Source, marker); err != nil {
		e.logger.Warn().Err(err).Str("path", path).Msg("sink rejected track")
		return e.emit(ctx, events, TrackRejected{ID: entry.ID, Path: path, Err: err})
	}

	e.queue = append(e.queue, entry)
	e.updateState()
	e.logger.Debug().Str("path", path).Int("queued", len(e.queue)).Msg("track enqueued")

	if len(e.queue) == 1 {
		return e.emit(ctx, events, NewTrackPlaying{ID: entry.ID, Metadata: entry.Metadata})
	}
	return nil
}

func (e *Engine) jump(fraction float64) (time.Duration, error) {
	if len(e.queue) <= e.skipped {
		return 0, ErrQueueEmpty
	}
	total, ok := e.queue[e.skipped].Metadata.KnownDuration()
	if !ok {
		return 0, ErrUnknownDuration
	}
	pos := time.Duration(clamp01(fraction) * float64(total))
	if err := e.sink.Seek(pos); err != nil {
		return 0, fmt.Errorf("seek to %v: %w", pos, err)
	}
	return pos, nil
}

func (e *Engine) trackFinished(ctx context.Context, events chan<- Event) error {
	if len(e.queue) == 0 {
		e.logger.Warn().Msg("completion marker with empty queue")
		return nil
	}
	if e.skipped > 0 {
		e.skipped--
	}
	done := e.queue[0]
	e.queue[0] = track.Entry{}
	e.queue = e.queue[1:]
	e.updateState()

	if err := e.emit(ctx, events, TrackFinished{ID: done.ID}); err != nil {
		return err
	}
	if len(e.queue) == 0 {
		return e.emit(ctx, events, NewTrackPlaying{})
	}
	next := e.queue[0]
	return e.emit(ctx, events, NewTrackPlaying{ID: next.ID, Metadata: next.Metadata})
}

func (e *Engine) emit(ctx context.Context, events chan<- Event, ev Event) error {
	telemetry.PlayerEventsTotal.WithLabelValues(eventName(ev)).Inc()
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) updateState() {
	telemetry.PlaybackState.Set(float64(e.State()))
}

func eventName(ev Event) string {
	switch ev.(type) {
	case NewTrackPlaying:
		return "new_track_playing"
	case NowPlaying:
		return "now_playing"
	case NowPaused:
		return "now_paused"
	case ProgressUpdate:
		return "progress"
	case JumpedTo:
		return "jumped_to"
	case TrackFinished:
		return "track_finished"
	case TrackRejected:
		return "track_rejected"
	case TransportFailed:
		return "transport_failed"
	default:
		return "unknown"
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	case v != v: // NaN
		return 0
	default:
		return v
	}
}
