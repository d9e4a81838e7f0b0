/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"

	"github.com/friendsincode/fairplay/internal/events"
)

// Publish copies events from in onto bus until in is closed or ctx is
// done. In-process consumers find the track under "metadata"; the other
// keys are plain values safe to encode as JSON.
func Publish(ctx context.Context, in <-chan Event, bus *events.Bus) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			typ, payload := Payload(ev)
			bus.Publish(typ, payload)
		}
	}
}

// Payload converts ev into a bus event.
func Payload(ev Event) (events.EventType, events.Payload) {
	switch e := ev.(type) {
	case NewTrackPlaying:
		p := events.Payload{"playing": e.Metadata != nil}
		if e.Metadata != nil {
			d, known := e.Metadata.KnownDuration()
			p["id"] = e.ID.String()
			p["metadata"] = e.Metadata
			p["path"] = e.Metadata.Path
			p["title"] = e.Metadata.Name
			p["artist"] = e.Metadata.Artist
			p["album"] = e.Metadata.Album
			p["has_cover"] = e.Metadata.HasCover()
			if known {
				p["duration_ms"] = d.Milliseconds()
			}
		}
		return events.EventNewTrackPlaying, p

	case NowPlaying:
		return events.EventNowPlaying, events.Payload{}
	case NowPaused:
		return events.EventNowPaused, events.Payload{}
	case ProgressUpdate:
		return events.EventProgress, events.Payload{"position_ms": e.Position.Milliseconds()}
	case JumpedTo:
		return events.EventJumpedTo, events.Payload{"position_ms": e.Position.Milliseconds()}
	case TrackFinished:
		return events.EventTrackFinished, events.Payload{"id": e.ID.String()}

	case NewSettings:
		return events.EventNewSettings, events.Payload{
			"root_music_path": e.Settings.RootMusicPath,
			"volume":          e.Settings.Volume,
		}

	case DirError:
		return events.EventDirError, events.Payload{
			"path":    e.Err.Path,
			"kind":    e.Err.Kind.String(),
			"message": e.Message(),
			"error":   e.Err.Error(),
		}

	case LibraryChanged:
		return events.EventLibraryChanged, events.Payload{"root": e.Root, "tracks": e.Tracks}

	case LoadFailed:
		return events.EventLoadFailed, events.Payload{"path": e.Path, "error": errString(e.Err)}

	case TransportFailed:
		return events.EventTransportFailed, events.Payload{"op": e.Op, "error": errString(e.Err)}

	case ActorUnavailable:
		return events.EventActorUnavailable, events.Payload{
			"actor":         e.Actor,
			"error":         errString(e.Err),
			"restart_in_ms": e.RestartIn.Milliseconds(),
			"permanent":     e.Permanent,
		}

	case QueueChanged:
		return events.EventQueueChanged, events.Payload{"queued": e.Queued, "loading": e.Loading}

	default:
		return events.EventType("unknown"), events.Payload{}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
