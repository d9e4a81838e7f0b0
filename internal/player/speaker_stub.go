//go:build !((linux && cgo) || windows || darwin)

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"time"

	"github.com/friendsincode/fairplay/internal/track"
)

// AudioAvailable reports whether this build can open an output device.
// Audio needs cgo on linux.
const AudioAvailable = false

// SpeakerSink is unavailable without cgo.
type SpeakerSink struct{}

// NewSpeakerSink always fails in this build.
func NewSpeakerSink(sampleRate int) (*SpeakerSink, error) {
	return nil, ErrAudioUnavailable
}

func (s *SpeakerSink) Append(src *track.Source, marker func()) error {
	src.Close()
	return ErrAudioUnavailable
}

func (s *SpeakerSink) Play()                      {}
func (s *SpeakerSink) Pause()                     {}
func (s *SpeakerSink) Skip()                      {}
func (s *SpeakerSink) Clear()                     {}
func (s *SpeakerSink) Seek(d time.Duration) error { return ErrAudioUnavailable }
func (s *SpeakerSink) Position() time.Duration    { return 0 }
func (s *SpeakerSink) SetVolume(gain float64)     {}
func (s *SpeakerSink) Close() error               { return nil }
