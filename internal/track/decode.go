/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package track

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned when no decoder is registered for an extension.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Decoder turns a stream into a seekable beep streamer.
type Decoder func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

var decoders = map[string]Decoder{
	".mp3": mp3.Decode,
	".wav": func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
		return wav.Decode(rc)
	},
}

// Supported reports whether ext (with leading dot) can be decoded.
func Supported(ext string) bool {
	_, ok := decoders[strings.ToLower(ext)]
	return ok
}

// Decode decodes rc according to ext. On failure rc is closed.
func Decode(rc io.ReadCloser, ext string) (beep.StreamSeekCloser, beep.Format, error) {
	dec, ok := decoders[strings.ToLower(ext)]
	if !ok {
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	s, format, err := dec(rc)
	if err != nil {
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", ext, err)
	}
	return s, format, nil
}

// Decode consumes the source and returns a decoded streamer.
func (s *Source) Decode() (beep.StreamSeekCloser, beep.Format, error) {
	if s == nil || s.rc == nil {
		return nil, beep.Format{}, errors.New("source already consumed")
	}
	rc := s.rc
	s.rc = nil
	return Decode(rc, s.Ext)
}

// Length converts a streamer's sample count into a duration. Zero means unknown.
func Length(s beep.StreamSeeker, format beep.Format) time.Duration {
	if s == nil || format.SampleRate <= 0 {
		return 0
	}
	n := s.Len()
	if n <= 0 {
		return 0
	}
	return format.SampleRate.D(n)
}
