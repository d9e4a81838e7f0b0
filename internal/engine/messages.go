/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/fairplay/internal/library"
	"github.com/friendsincode/fairplay/internal/settings"
	"github.com/friendsincode/fairplay/internal/track"
)

// Command is sent to the orchestrator by the presentation layer.
type Command interface {
	command() string
}

// ChangeRoot replaces the library root and restarts the queue from it.
type ChangeRoot struct{ Path string }

type Play struct{}

type Pause struct{}

// JumpToFraction seeks within the current track, Fraction in [0,1].
type JumpToFraction struct{ Fraction float64 }

type Skip struct{}

// SetVolume sets the slider position in [0,1]. The output uses its square.
type SetVolume struct{ Volume float64 }

// RepaintHandle is poked after every player event so a UI can redraw.
type RepaintHandle interface {
	RequestRepaint()
}

// RepaintFunc adapts a function to RepaintHandle.
type RepaintFunc func()

func (f RepaintFunc) RequestRepaint() { f() }

// ProvideRepaintHandle registers the UI's repaint hook.
type ProvideRepaintHandle struct{ Handle RepaintHandle }

// Stop clears the player and makes Run return.
type Stop struct{}

func (ChangeRoot) command() string           { return "change_root" }
func (Play) command() string                 { return "play" }
func (Pause) command() string                { return "pause" }
func (JumpToFraction) command() string       { return "jump" }
func (Skip) command() string                 { return "skip" }
func (SetVolume) command() string            { return "set_volume" }
func (ProvideRepaintHandle) command() string { return "repaint_handle" }
func (Stop) command() string                 { return "stop" }

// Event is reported by the orchestrator.
type Event interface {
	event()
}

// NewTrackPlaying announces the track now at the front of the queue.
// Metadata is nil when nothing is queued.
type NewTrackPlaying struct {
	ID       uuid.UUID
	Metadata *track.Metadata
}

type NowPlaying struct{}

type NowPaused struct{}

// ProgressUpdate is the position in the current track.
type ProgressUpdate struct{ Position time.Duration }

// JumpedTo confirms a seek.
type JumpedTo struct{ Position time.Duration }

// TrackFinished reports an entry that played out or was skipped.
type TrackFinished struct{ ID uuid.UUID }

// NewSettings carries the persisted settings.
type NewSettings struct{ Settings settings.Settings }

// DirError reports a root that could not be used.
type DirError struct{ Err *library.DirError }

// Message is the human readable text for the error kind.
func (e DirError) Message() string { return e.Err.Message() }

// LibraryChanged reports a (re)built tree.
type LibraryChanged struct {
	Root   string
	Tracks int
}

// LoadFailed reports a track that could not be loaded or decoded.
type LoadFailed struct {
	Path string
	Err  error
}

// TransportFailed reports a player command that could not be carried out.
type TransportFailed struct {
	Op  string
	Err error
}

// ActorUnavailable reports a crashed loader or player. RestartIn is zero
// when Permanent is set and no further restart will be attempted.
type ActorUnavailable struct {
	Actor     string
	Err       error
	RestartIn time.Duration
	Permanent bool
}

// QueueChanged reports the queue accounting after it changed.
type QueueChanged struct {
	Queued  int
	Loading int
}

func (NewTrackPlaying) event()  {}
func (NowPlaying) event()       {}
func (NowPaused) event()        {}
func (ProgressUpdate) event()   {}
func (JumpedTo) event()         {}
func (TrackFinished) event()    {}
func (NewSettings) event()      {}
func (DirError) event()         {}
func (LibraryChanged) event()   {}
func (LoadFailed) event()       {}
func (TransportFailed) event()  {}
func (ActorUnavailable) event() {}
func (QueueChanged) event()     {}
