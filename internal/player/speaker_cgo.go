//go:build (linux && cgo) || windows || darwin

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/friendsincode/fairplay/internal/track"
)

// AudioAvailable reports whether this build can open an output device.
const AudioAvailable = true

// SpeakerSink plays through the default output device. One queue streamer
// stays attached to the speaker for the sink's lifetime; every call takes
// the speaker lock before touching it.
type SpeakerSink struct {
	q      *queue
	ctrl   *beep.Ctrl
	volume *effects.Volume
}

// NewSpeakerSink initialises the speaker at sampleRate with a 100ms buffer.
func NewSpeakerSink(sampleRate int) (*SpeakerSink, error) {
	rate := beep.SampleRate(sampleRate)
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return nil, err
	}

	q := newQueue(rate)
	ctrl := &beep.Ctrl{Streamer: q}
	volume := &effects.Volume{Streamer: ctrl, Base: 2}
	speaker.Play(volume)

	return &SpeakerSink{q: q, ctrl: ctrl, volume: volume}, nil
}

func (s *SpeakerSink) Append(src *track.Source, marker func()) error {
	stream, format, err := src.Decode()
	if err != nil {
		return err
	}
	speaker.Lock()
	s.q.push(stream, format, marker)
	speaker.Unlock()
	return nil
}

func (s *SpeakerSink) Play() {
	speaker.Lock()
	s.ctrl.Paused = false
	speaker.Unlock()
}

func (s *SpeakerSink) Pause() {
	speaker.Lock()
	s.ctrl.Paused = true
	speaker.Unlock()
}

func (s *SpeakerSink) Skip() {
	speaker.Lock()
	s.q.finishFront()
	speaker.Unlock()
}

func (s *SpeakerSink) Clear() {
	speaker.Lock()
	s.q.clear()
	speaker.Unlock()
}

func (s *SpeakerSink) Seek(d time.Duration) error {
	speaker.Lock()
	defer speaker.Unlock()
	return s.q.seek(d)
}

func (s *SpeakerSink) Position() time.Duration {
	speaker.Lock()
	defer speaker.Unlock()
	return s.q.position()
}

func (s *SpeakerSink) SetVolume(gain float64) {
	v, silent := gainToVolume(gain)
	speaker.Lock()
	s.volume.Volume = v
	s.volume.Silent = silent
	speaker.Unlock()
}

// Close drops the queue and releases the output device.
func (s *SpeakerSink) Close() error {
	s.Clear()
	speaker.Clear()
	speaker.Close()
	return nil
}
