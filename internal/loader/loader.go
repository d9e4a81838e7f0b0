/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package loader opens tracks picked by the selector and turns them into
// queue entries: a fresh source handle plus tags, duration and cover art.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/rs/zerolog"

	"github.com/friendsincode/fairplay/internal/telemetry"
	"github.com/friendsincode/fairplay/internal/track"
)

var (
	// ErrOpen is returned when the file cannot be opened.
	ErrOpen = errors.New("open track")
	// ErrDecode is returned when the file opens but its format cannot be decoded.
	ErrDecode = errors.New("decode track")
)

// DefaultCoverMaxPx bounds the longest side of decoded cover art.
const DefaultCoverMaxPx = 512

// Options configures a Loader.
type Options struct {
	CoverMaxPx int
	Logger     zerolog.Logger
}

// Loader reads track files. It holds no per-track state and is safe to
// reuse across requests.
type Loader struct {
	coverMaxPx int
	logger     zerolog.Logger
}

// New creates a loader.
func New(opts Options) *Loader {
	if opts.CoverMaxPx <= 0 {
		opts.CoverMaxPx = DefaultCoverMaxPx
	}
	return &Loader{
		coverMaxPx: opts.CoverMaxPx,
		logger:     opts.Logger.With().Str("component", "loader").Logger(),
	}
}

// Load inspects path for tags, cover art and duration, then reopens it so the
// returned entry carries an unread source for playback. ctx only carries
// the trace; a load in progress always runs to completion.
func (l *Loader) Load(ctx context.Context, path string) (entry track.Entry, err error) {
	_, span := telemetry.StartSpan(ctx, "loader", "loader.Load")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()
	telemetry.AddSpanAttributes(span, map[string]any{"track.path": path})

	md, err := l.inspect(path)
	if err != nil {
		return track.Entry{}, err
	}
	telemetry.AddSpanAttributes(span, map[string]any{
		"track.duration_ms": md.Duration.Milliseconds(),
		"track.has_cover":   md.Cover != nil,
	})

	f, err := os.Open(path)
	if err != nil {
		return track.Entry{}, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	return track.NewEntry(track.NewSource(path, f), md), nil
}

func (l *Loader) inspect(path string) (*track.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer f.Close()

	md := track.NewMetadata(path)
	if stem := track.StemName(path); stem != "" {
		md.Name = stem
	}

	var picture *tag.Picture
	tags, err := tag.ReadFrom(f)
	switch {
	case err == nil:
		applyTags(md, tags)
		picture = tags.Picture()
	case errors.Is(err, tag.ErrNoTagsFound):
	default:
		l.logger.Debug().Err(err).Str("path", path).Msg("tag read failed")
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	// The decoder takes ownership of f and closes it; the deferred Close
	// then returns an error that is ignored.
	stream, format, err := track.Decode(f, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	md.Duration = track.Length(stream, format)
	stream.Close()

	md.Cover = l.cover(path, picture)
	return md, nil
}

// applyTags copies the non-empty standard fields into md.
func applyTags(md *track.Metadata, tags tag.Metadata) {
	if v := strings.TrimSpace(tags.Title()); v != "" {
		md.Name = v
	}
	if v := strings.TrimSpace(tags.Artist()); v != "" {
		md.Artist = v
	} else if v := strings.TrimSpace(tags.AlbumArtist()); v != "" {
		md.Artist = v
	}
	if v := strings.TrimSpace(tags.Album()); v != "" {
		md.Album = v
	}
}
