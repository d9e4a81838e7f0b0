/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reports when tracks or directories appear, vanish or move below a root.
type Watcher struct {
	root     string
	exts     map[string]struct{}
	debounce time.Duration
	fsw      *fsnotify.Watcher
	logger   zerolog.Logger
}

// NewWatcher watches root and every directory below it.
func NewWatcher(root string, extensions []string, debounce time.Duration, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     root,
		exts:     extensionSet(extensions),
		debounce: debounce,
		fsw:      fsw,
		logger:   logger.With().Str("component", "library_watcher").Logger(),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Debug().Err(err).Str("path", path).Msg("walk error")
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn().Err(err).Str("dir", path).Msg("cannot watch directory")
		}
		return nil
	})
}

// Run forwards one notification per burst of changes until ctx is done.
// The watcher is closed when Run returns.
func (w *Watcher) Run(ctx context.Context, changed chan<- string) error {
	defer w.fsw.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Debug().Err(err).Str("dir", ev.Name).Msg("watch new directory failed")
					}
				}
			}
			w.logger.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("library change")
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("fsnotify error")

		case <-timer.C:
			select {
			case changed <- w.root:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(ev.Name))
	if _, ok := w.exts[ext]; ok {
		return true
	}
	// Removed or renamed directories can no longer be stat'ed, so anything
	// without an extension counts.
	if ext == "" {
		return true
	}
	info, err := os.Stat(ev.Name)
	return err == nil && info.IsDir()
}
