/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"errors"
	"time"

	"github.com/friendsincode/fairplay/internal/track"
)

// ErrAudioUnavailable is returned when the build has no audio output.
var ErrAudioUnavailable = errors.New("audio output not available in this build")

// Sink is the audio output. The engine is its only caller; markers are
// invoked from the output's own goroutine and must not block.
type Sink interface {
	// Append decodes src and queues it behind everything already queued.
	// marker runs once src has been fully played or skipped. On error src
	// is closed and marker never runs.
	Append(src *track.Source, marker func()) error
	Play()
	Pause()
	// Skip drops the front track and runs its marker.
	Skip()
	// Clear drops every queued track without running markers.
	Clear()
	// Seek moves within the front track.
	Seek(d time.Duration) error
	// Position reports the offset into the front track.
	Position() time.Duration
	// SetVolume sets linear output gain, 0 is silent and 1 is unity.
	SetVolume(gain float64)
	Close() error
}
