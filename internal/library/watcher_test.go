package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/friendsincode/fairplay/internal/track/tracktest"
)

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.mp3")

	w, err := NewWatcher(dir, nil, 150*time.Millisecond, zerolog.Nop())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan string, 4)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, changed) }()

	for i := 0; i < 5; i++ {
		tracktest.WriteFile(t, dir, filepath.Join("new", string(rune('a'+i))+".mp3"), []byte("x"))
	}

	select {
	case root := <-changed:
		if root != dir {
			t.Fatalf("notified root %q, want %q", root, dir)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}

	select {
	case <-changed:
		t.Fatal("burst produced more than one notification")
	case <-time.After(400 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("run returned %v", err)
	}
}

func TestWatcherRelevant(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	w := &Watcher{root: dir, exts: extensionSet(nil)}

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"created track", fsnotify.Event{Name: filepath.Join(dir, "x.mp3"), Op: fsnotify.Create}, true},
		{"upper case extension", fsnotify.Event{Name: filepath.Join(dir, "x.MP3"), Op: fsnotify.Remove}, true},
		{"written track", fsnotify.Event{Name: filepath.Join(dir, "x.mp3"), Op: fsnotify.Write}, false},
		{"other file", fsnotify.Event{Name: filepath.Join(dir, "x.txt"), Op: fsnotify.Create}, false},
		{"hidden track", fsnotify.Event{Name: filepath.Join(dir, ".x.mp3"), Op: fsnotify.Create}, false},
		{"removed directory", fsnotify.Event{Name: filepath.Join(dir, "gone"), Op: fsnotify.Remove}, true},
		{"renamed directory", fsnotify.Event{Name: filepath.Join(dir, "sub"), Op: fsnotify.Rename}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.relevant(tt.ev); got != tt.want {
				t.Fatalf("relevant = %v, want %v", got, tt.want)
			}
		})
	}
}
