/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/fairplay/internal/track"
)

// Request is a command for the engine.
type Request interface {
	playerRequest()
}

// Enqueue appends an entry. The engine takes ownership of its source.
type Enqueue struct{ Entry track.Entry }

type Play struct{}

type Pause struct{}

// JumpToFraction seeks the front track to Fraction of its duration.
type JumpToFraction struct{ Fraction float64 }

type Skip struct{}

// Clear drops every queued entry.
type Clear struct{}

// SetVolume sets the volume slider position in [0,1].
type SetVolume struct{ Volume float64 }

func (Enqueue) playerRequest()        {}
func (Play) playerRequest()           {}
func (Pause) playerRequest()          {}
func (JumpToFraction) playerRequest() {}
func (Skip) playerRequest()           {}
func (Clear) playerRequest()          {}
func (SetVolume) playerRequest()      {}

// Event is an observation reported by the engine.
type Event interface {
	playerEvent()
}

// NewTrackPlaying announces the new front of the queue. Metadata is nil
// when the queue became empty.
type NewTrackPlaying struct {
	ID       uuid.UUID
	Metadata *track.Metadata
}

type NowPlaying struct{}

type NowPaused struct{}

// ProgressUpdate is the sampled position in the front track.
type ProgressUpdate struct{ Position time.Duration }

// JumpedTo confirms a seek.
type JumpedTo struct{ Position time.Duration }

// TrackFinished reports that the front entry played out or was skipped.
type TrackFinished struct{ ID uuid.UUID }

// TrackRejected reports an enqueued entry the sink could not decode. It
// never entered the queue.
type TrackRejected struct {
	ID   uuid.UUID
	Path string
	Err  error
}

// TransportFailed reports a command that could not be carried out.
type TransportFailed struct {
	Op  string
	Err error
}

func (NewTrackPlaying) playerEvent() {}
func (NowPlaying) playerEvent()      {}
func (NowPaused) playerEvent()       {}
func (ProgressUpdate) playerEvent()  {}
func (JumpedTo) playerEvent()        {}
func (TrackFinished) playerEvent()   {}
func (TrackRejected) playerEvent()   {}
func (TransportFailed) playerEvent() {}
