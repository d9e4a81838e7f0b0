/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the player over HTTP: transport commands, the
// now-playing snapshot, cover art, play history, logs and a websocket
// event stream.
package api

import (
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/fairplay/internal/engine"
	"github.com/friendsincode/fairplay/internal/events"
	"github.com/friendsincode/fairplay/internal/history"
	"github.com/friendsincode/fairplay/internal/logbuffer"
)

// How long a request waits for the orchestrator to accept a command.
const commandTimeout = 2 * time.Second

// API exposes HTTP handlers.
type API struct {
	commands  chan<- engine.Command
	state     *State
	history   *history.Store
	bus       *events.Bus
	logBuffer *logbuffer.Buffer
	logger    zerolog.Logger
}

// New creates the API router wrapper. history and logBuf may be nil, in
// which case their endpoints answer 503.
func New(commands chan<- engine.Command, state *State, hist *history.Store, bus *events.Bus, logBuf *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		commands:  commands,
		state:     state,
		history:   hist,
		bus:       bus,
		logBuffer: logBuf,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts the API under /api/v1.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/root", a.handleChangeRoot)
		r.Post("/play", a.handleCommand(engine.Play{}))
		r.Post("/pause", a.handleCommand(engine.Pause{}))
		r.Post("/skip", a.handleCommand(engine.Skip{}))
		r.Post("/seek", a.handleSeek)
		r.Post("/volume", a.handleVolume)

		r.Get("/now-playing", a.handleNowPlaying)
		r.Get("/cover", a.handleCover)
		r.Get("/history", a.handleHistory)
		r.Get("/logs", a.handleLogs)
		r.Get("/logs/stats", a.handleLogStats)
		r.Get("/events", a.handleEvents)
	})
}

type rootRequest struct {
	Path string `json:"path"`
}

type seekRequest struct {
	Fraction *float64 `json:"fraction"`
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
}

func (a *API) handleChangeRoot(w http.ResponseWriter, r *http.Request) {
	var req rootRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	req.Path = strings.TrimSpace(req.Path)
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path_required")
		return
	}
	a.dispatch(w, r, engine.ChangeRoot{Path: req.Path})
}

func (a *API) handleCommand(cmd engine.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.dispatch(w, r, cmd)
	}
}

func (a *API) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Fraction == nil {
		writeError(w, http.StatusBadRequest, "fraction_required")
		return
	}
	if !inUnitRange(*req.Fraction) {
		writeError(w, http.StatusBadRequest, "fraction_out_of_range")
		return
	}
	a.dispatch(w, r, engine.JumpToFraction{Fraction: *req.Fraction})
}

func (a *API) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Volume == nil {
		writeError(w, http.StatusBadRequest, "volume_required")
		return
	}
	if !inUnitRange(*req.Volume) {
		writeError(w, http.StatusBadRequest, "volume_out_of_range")
		return
	}
	if a.dispatch(w, r, engine.SetVolume{Volume: *req.Volume}) {
		a.state.SetVolume(*req.Volume)
	}
}

// dispatch hands cmd to the orchestrator and writes the response. It
// reports whether the command was accepted.
func (a *API) dispatch(w http.ResponseWriter, r *http.Request, cmd engine.Command) bool {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	select {
	case a.commands <- cmd:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return true
	case <-ctx.Done():
		a.logger.Warn().Str("command", commandName(cmd)).Msg("orchestrator did not accept command")
		writeError(w, http.StatusServiceUnavailable, "engine_unavailable")
		return false
	}
}

func (a *API) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.state.Snapshot())
}

func (a *API) handleCover(w http.ResponseWriter, r *http.Request) {
	img := a.state.Cover()
	if img == nil {
		writeError(w, http.StatusNotFound, "no_cover")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		a.logger.Debug().Err(err).Msg("cover write failed")
	}
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history_disabled")
		return
	}

	limit := history.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = n
	}

	plays, err := a.history.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "history_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plays": plays,
		"count": len(plays),
	})
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}

	q := r.URL.Query()
	params := logbuffer.QueryParams{
		MinLevel:   q.Get("level"),
		Component:  q.Get("component"),
		Search:     q.Get("search"),
		Limit:      500,
		Descending: q.Get("order") != "asc",
	}
	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			params.Since = t
		}
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			params.Limit = n
		}
	}

	entries := a.logBuffer.Query(params)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (a *API) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, a.logBuffer.Stats())
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

func commandName(cmd engine.Command) string {
	switch cmd.(type) {
	case engine.ChangeRoot:
		return "change_root"
	case engine.Play:
		return "play"
	case engine.Pause:
		return "pause"
	case engine.Skip:
		return "skip"
	case engine.JumpToFraction:
		return "seek"
	case engine.SetVolume:
		return "volume"
	default:
		return "other"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
