/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package loader

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/dhowden/tag"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// coverFiles are checked in order next to the track when it has no embedded art.
var coverFiles = []string{"cover.jpg", "cover.png"}

// cover resolves cover art: embedded picture first, then sibling files.
// Undecodable images are skipped, not reported.
func (l *Loader) cover(path string, pic *tag.Picture) *image.RGBA {
	if pic != nil && len(pic.Data) > 0 {
		img, err := decodeImage(pic.Data)
		if err == nil {
			return fit(img, l.coverMaxPx)
		}
		l.logger.Debug().Err(err).Str("path", path).Str("mime", pic.MIMEType).Msg("embedded cover not decodable")
	}

	dir := filepath.Dir(path)
	for _, name := range coverFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		img, err := decodeImage(data)
		if err != nil {
			l.logger.Debug().Err(err).Str("file", name).Str("dir", dir).Msg("cover file not decodable")
			continue
		}
		return fit(img, l.coverMaxPx)
	}
	return nil
}

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// fit converts img to RGBA, scaling it down so neither side exceeds limit.
func fit(img image.Image, limit int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if limit > 0 && (w > limit || h > limit) {
		if w >= h {
			h = h * limit / w
			w = limit
		} else {
			w = w * limit / h
			h = limit
		}
	}
	w, h = max(w, 1), max(h, 1)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
