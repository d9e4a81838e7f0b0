/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/friendsincode/fairplay/internal/events"
	"github.com/friendsincode/fairplay/internal/track"
)

// TrackInfo describes the track at the front of the queue.
type TrackInfo struct {
	ID         string `json:"id"`
	Path       string `json:"path"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	HasCover   bool   `json:"has_cover"`
}

// NowPlaying is the snapshot served by the now-playing endpoint.
type NowPlaying struct {
	Playing    bool       `json:"playing"`
	Track      *TrackInfo `json:"track"`
	PositionMs int64      `json:"position_ms"`
	Volume     float64    `json:"volume"`
	Root       string     `json:"root"`
	Tracks     int        `json:"library_tracks"`
	Queued     int        `json:"queued"`
	Loading    int        `json:"loading"`
	LastError  string     `json:"last_error,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// State folds bus events into a NowPlaying snapshot.
type State struct {
	mu    sync.RWMutex
	np    NowPlaying
	cover *image.RGBA
}

// NewState returns an empty snapshot at full volume.
func NewState() *State {
	return &State{np: NowPlaying{Volume: 1}}
}

// Run applies every bus event until ctx is done.
func (s *State) Run(ctx context.Context, bus *events.Bus) error {
	sub := bus.Subscribe(events.EventAll)
	defer bus.Unsubscribe(events.EventAll, sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-sub:
			if !ok {
				return nil
			}
			s.Apply(p)
		}
	}
}

// Apply updates the snapshot from one event payload.
func (s *State) Apply(p events.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	typ, _ := p["type"].(string)
	switch events.EventType(typ) {
	case events.EventNewTrackPlaying:
		s.np.PositionMs = 0
		md, _ := p["metadata"].(*track.Metadata)
		if md == nil {
			s.np.Track = nil
			s.cover = nil
			break
		}
		info := &TrackInfo{
			Path:     md.Path,
			Title:    md.Name,
			Artist:   md.Artist,
			Album:    md.Album,
			HasCover: md.HasCover(),
		}
		info.ID, _ = p["id"].(string)
		if d, ok := md.KnownDuration(); ok {
			info.DurationMs = d.Milliseconds()
		}
		s.np.Track = info
		s.cover = md.Cover

	case events.EventNowPlaying:
		s.np.Playing = true
	case events.EventNowPaused:
		s.np.Playing = false
	case events.EventProgress, events.EventJumpedTo:
		s.np.PositionMs = asInt64(p["position_ms"])

	case events.EventNewSettings:
		s.np.Root, _ = p["root_music_path"].(string)
		if v, ok := p["volume"].(float64); ok {
			s.np.Volume = v
		}
	case events.EventLibraryChanged:
		s.np.Root, _ = p["root"].(string)
		s.np.Tracks = int(asInt64(p["tracks"]))
		s.np.LastError = ""
	case events.EventDirError:
		s.np.Tracks = 0
		s.np.LastError, _ = p["message"].(string)
	case events.EventQueueChanged:
		s.np.Queued = int(asInt64(p["queued"]))
		s.np.Loading = int(asInt64(p["loading"]))
	case events.EventTransportFailed, events.EventLoadFailed, events.EventActorUnavailable:
		s.np.LastError, _ = p["error"].(string)
	default:
		return
	}
	s.np.UpdatedAt = time.Now().UTC()
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() NowPlaying {
	s.mu.RLock()
	defer s.mu.RUnlock()
	np := s.np
	if np.Track != nil {
		t := *np.Track
		np.Track = &t
	}
	return np
}

// Cover returns the current track's cover art, or nil.
func (s *State) Cover() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cover
}

// SetVolume records a volume change the engine does not echo back.
func (s *State) SetVolume(v float64) {
	s.mu.Lock()
	s.np.Volume = v
	s.np.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}
