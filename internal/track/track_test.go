package track

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/friendsincode/fairplay/internal/track/tracktest"
)

type nopReadCloser struct{ io.Reader }

func (nopReadCloser) Close() error { return nil }

func TestNewMetadataPlaceholders(t *testing.T) {
	md := NewMetadata("/music/a.mp3")
	if md.Name != DefaultName || md.Artist != DefaultArtist || md.Album != DefaultAlbum {
		t.Fatalf("unexpected placeholders: %+v", md)
	}
	if _, ok := md.KnownDuration(); ok {
		t.Fatal("expected unknown duration")
	}
	if md.HasCover() {
		t.Fatal("expected no cover")
	}
}

func TestStemName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/a/b/song.mp3", "song"},
		{"song.MP3", "song"},
		{"/a/b/no-ext", "no-ext"},
		{"/a/b/two.dots.mp3", "two.dots"},
	}
	for _, tt := range tests {
		if got := StemName(tt.path); got != tt.want {
			t.Errorf("StemName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestDecodeUnsupportedExtension(t *testing.T) {
	_, _, err := Decode(nopReadCloser{strings.NewReader("x")}, ".xyz")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestSourceDecodeWAV(t *testing.T) {
	dir := t.TempDir()
	path := tracktest.WriteWAV(t, dir, "tone.wav", 2*time.Second)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	src := NewSource(path, f)
	if src.Ext != ".wav" {
		t.Fatalf("unexpected ext %q", src.Ext)
	}

	s, format, err := src.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	defer s.Close()

	got := Length(s, format)
	if got < 1900*time.Millisecond || got > 2100*time.Millisecond {
		t.Fatalf("unexpected length %v", got)
	}

	if _, _, err := src.Decode(); err == nil {
		t.Fatal("expected second decode of the same source to fail")
	}
}

func TestSourceCloseNil(t *testing.T) {
	var src *Source
	if err := src.Close(); err != nil {
		t.Fatalf("close nil source: %v", err)
	}
	if Supported(filepath.Ext("a.flac")) {
		t.Fatal("flac should not be registered")
	}
}
