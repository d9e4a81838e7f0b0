/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package settings persists the user's library root and volume.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// DefaultPath is the settings file, relative to the working directory.
const DefaultPath = "settings.json"

// Settings is the persisted state.
type Settings struct {
	RootMusicPath string  `json:"root_music_path"`
	Volume        float64 `json:"volume"`
}

// Default returns settings with no root and full volume.
func Default() Settings {
	return Settings{Volume: 1}
}

// Store reads and writes one settings file.
type Store struct {
	path   string
	logger zerolog.Logger
}

// NewStore creates a store for path, or DefaultPath when empty.
func NewStore(path string, logger zerolog.Logger) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{
		path:   path,
		logger: logger.With().Str("component", "settings").Logger(),
	}
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// Load reads the settings. A missing, unreadable or malformed file is
// replaced with defaults, which are returned along with any error from
// writing them back.
func (s *Store) Load() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if err == nil {
		st := Default()
		if err = json.Unmarshal(data, &st); err == nil {
			return st.normalized(), nil
		}
		s.logger.Warn().Err(err).Str("path", s.path).Msg("settings file malformed, restoring defaults")
	} else if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info().Str("path", s.path).Msg("no settings file, writing defaults")
	} else {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("settings file unreadable, restoring defaults")
	}

	st := Default()
	return st, s.Save(st)
}

// Save writes st atomically.
func (s *Store) Save(st Settings) error {
	data, err := json.MarshalIndent(st.normalized(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	s.logger.Debug().Str("path", s.path).Str("root", st.RootMusicPath).Float64("volume", st.Volume).Msg("settings saved")
	return nil
}

func (st Settings) normalized() Settings {
	switch {
	case st.Volume != st.Volume || st.Volume < 0:
		st.Volume = 0
	case st.Volume > 1:
		st.Volume = 1
	}
	return st
}
