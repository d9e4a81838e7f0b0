/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playertest provides an in-memory player.Sink for tests.
package playertest

import (
	"errors"
	"sync"
	"time"

	"github.com/friendsincode/fairplay/internal/track"
)

// ErrEmpty is returned by Seek when nothing is queued.
var ErrEmpty = errors.New("fake sink is empty")

type item struct {
	path   string
	marker func()
}

// Sink records what the engine asks of it. Tracks only finish when the
// test calls Finish, or when the engine skips them.
type Sink struct {
	mu      sync.Mutex
	items   []item
	paused  bool
	gain    float64
	pos     time.Duration
	reject  map[string]error
	clears  int
	appends int

	holdSkips bool
	held      []func()
}

// New returns an empty, playing sink at unity gain.
func New() *Sink {
	return &Sink{gain: 1, reject: make(map[string]error)}
}

// Reject makes Append fail for path with err.
func (s *Sink) Reject(path string, err error) {
	s.mu.Lock()
	s.reject[path] = err
	s.mu.Unlock()
}

func (s *Sink) Append(src *track.Source, marker func()) error {
	defer src.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.reject[src.Path]; ok {
		return err
	}
	s.items = append(s.items, item{path: src.Path, marker: marker})
	s.appends++
	return nil
}

func (s *Sink) Play() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

func (s *Sink) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *Sink) Skip() {
	s.mu.Lock()
	if s.holdSkips && len(s.items) > 0 {
		s.held = append(s.held, s.items[0].marker)
		s.items = s.items[1:]
		s.pos = 0
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.Finish()
}

// HoldSkips makes Skip drop the front track but keep its marker until
// ReleaseSkips, like an output that reports the end late.
func (s *Sink) HoldSkips() {
	s.mu.Lock()
	s.holdSkips = true
	s.mu.Unlock()
}

// ReleaseSkips runs the markers held back by Skip, oldest first.
func (s *Sink) ReleaseSkips() {
	s.mu.Lock()
	held := s.held
	s.held = nil
	s.holdSkips = false
	s.mu.Unlock()
	for _, marker := range held {
		if marker != nil {
			marker()
		}
	}
}

// Finish plays out the front track and runs its marker. It reports false
// when nothing was queued.
func (s *Sink) Finish() bool {
	s.mu.Lock()
	if len(s.items) == 0 {
		s.mu.Unlock()
		return false
	}
	front := s.items[0]
	s.items = s.items[1:]
	s.pos = 0
	s.mu.Unlock()

	if front.marker != nil {
		front.marker()
	}
	return true
}

func (s *Sink) Clear() {
	s.mu.Lock()
	s.items = nil
	s.pos = 0
	s.clears++
	s.mu.Unlock()
}

func (s *Sink) Seek(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return ErrEmpty
	}
	s.pos = d
	return nil
}

func (s *Sink) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *Sink) SetVolume(gain float64) {
	s.mu.Lock()
	s.gain = gain
	s.mu.Unlock()
}

func (s *Sink) Close() error {
	s.Clear()
	return nil
}

// Queued lists the paths in play order.
func (s *Sink) Queued() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, len(s.items))
	for i, it := range s.items {
		paths[i] = it.path
	}
	return paths
}

// Paused reports the last Play/Pause call.
func (s *Sink) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Gain reports the last gain set.
func (s *Sink) Gain() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

// Clears counts Clear calls.
func (s *Sink) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

// Appends counts accepted tracks.
func (s *Sink) Appends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appends
}
