/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package track holds the values that travel between the loader, the player
// and the orchestrator: track metadata, undecoded sources and queue entries.
package track

import (
	"image"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Placeholders used when a tag is missing.
const (
	DefaultName   = "No name"
	DefaultArtist = "No artist"
	DefaultAlbum  = "No album"
)

// Metadata describes a loaded track. It is built once by the loader and is
// read-only afterwards, so it can be shared between the player queue and
// any number of event consumers.
type Metadata struct {
	Path     string
	Name     string
	Artist   string
	Album    string
	Duration time.Duration // zero when the container does not report one
	Cover    *image.RGBA   // nil when no cover art was found
}

// NewMetadata returns metadata for path with every field set to its placeholder.
func NewMetadata(path string) *Metadata {
	return &Metadata{
		Path:   path,
		Name:   DefaultName,
		Artist: DefaultArtist,
		Album:  DefaultAlbum,
	}
}

// KnownDuration reports the total duration and whether it is known.
func (m *Metadata) KnownDuration() (time.Duration, bool) {
	if m == nil || m.Duration <= 0 {
		return 0, false
	}
	return m.Duration, true
}

// HasCover reports whether cover art is attached.
func (m *Metadata) HasCover() bool {
	return m != nil && m.Cover != nil
}

// Source is a fresh, unconsumed handle to an audio file. Ownership moves with
// the value: whoever holds it last must either decode it or close it.
type Source struct {
	Path string
	Ext  string
	rc   io.ReadSeekCloser
}

// NewSource wraps an opened file.
func NewSource(path string, rc io.ReadSeekCloser) *Source {
	return &Source{
		Path: path,
		Ext:  strings.ToLower(filepath.Ext(path)),
		rc:   rc,
	}
}

// Reader exposes the underlying stream for decoding.
func (s *Source) Reader() io.ReadSeekCloser {
	return s.rc
}

// Close releases the underlying file. Safe on a nil source.
func (s *Source) Close() error {
	if s == nil || s.rc == nil {
		return nil
	}
	return s.rc.Close()
}

// Entry pairs a source with its metadata. The player owns an entry from
// enqueue until it finishes playing or is cleared.
type Entry struct {
	ID       uuid.UUID
	Source   *Source
	Metadata *Metadata
}

// NewEntry creates an entry with a fresh ID.
func NewEntry(src *Source, md *Metadata) Entry {
	return Entry{
		ID:       uuid.New(),
		Source:   src,
		Metadata: md,
	}
}

// StemName returns the file name without its extension.
func StemName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
