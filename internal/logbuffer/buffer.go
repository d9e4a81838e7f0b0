/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent log lines in memory so they can
// be served over the control API.
package logbuffer

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogEntry is one parsed log line.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a fixed size ring of log entries, safe for concurrent use.
type Buffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	head    int
	count   int
}

// New creates a buffer holding up to capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 2000
	}
	return &Buffer{entries: make([]LogEntry, capacity)}
}

// Add stores entry, evicting the oldest one when full.
func (b *Buffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
}

// GetAll returns all entries oldest first.
func (b *Buffer) GetAll() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]LogEntry, b.count)
	start := (b.head - b.count + len(b.entries)) % len(b.entries)
	for i := range out {
		out[i] = b.entries[(start+i)%len(b.entries)]
	}
	return out
}

// QueryParams filters Query results. Zero values match everything.
type QueryParams struct {
	MinLevel   string // debug, info, warn, error
	Component  string
	Search     string // case-insensitive, message and string fields
	Since      time.Time
	Limit      int
	Descending bool // newest first
}

// Query returns entries matching params. Limit keeps the newest entries.
func (b *Buffer) Query(params QueryParams) []LogEntry {
	minLevel := zerolog.TraceLevel
	if params.MinLevel != "" {
		if lvl, err := zerolog.ParseLevel(params.MinLevel); err == nil {
			minLevel = lvl
		}
	}
	search := strings.ToLower(params.Search)

	var out []LogEntry
	for _, entry := range b.GetAll() {
		if lvl, err := zerolog.ParseLevel(entry.Level); err == nil && lvl < minLevel {
			continue
		}
		if params.Component != "" && entry.Component != params.Component {
			continue
		}
		if !params.Since.IsZero() && entry.Timestamp.Before(params.Since) {
			continue
		}
		if search != "" && !entry.matches(search) {
			continue
		}
		out = append(out, entry)
	}

	if params.Limit > 0 && len(out) > params.Limit {
		out = out[len(out)-params.Limit:]
	}
	if params.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func (e LogEntry) matches(lowerSearch string) bool {
	if strings.Contains(strings.ToLower(e.Message), lowerSearch) ||
		strings.Contains(strings.ToLower(e.Component), lowerSearch) {
		return true
	}
	for _, v := range e.Fields {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), lowerSearch) {
			return true
		}
	}
	return false
}

// Stats summarises buffer contents.
type Stats struct {
	Capacity   int            `json:"capacity"`
	Count      int            `json:"count"`
	LevelCount map[string]int `json:"level_count"`
}

func (b *Buffer) Stats() Stats {
	entries := b.GetAll()
	stats := Stats{Capacity: len(b.entries), Count: len(entries), LevelCount: make(map[string]int)}
	for _, e := range entries {
		stats.LevelCount[e.Level]++
	}
	return stats
}

// Writer feeds zerolog JSON output into a Buffer.
type Writer struct {
	buffer   *Buffer
	fallback io.Writer
}

// NewWriter creates a writer that captures logs to buffer and copies the
// raw bytes to fallback when it is not nil.
func NewWriter(buffer *Buffer, fallback io.Writer) *Writer {
	return &Writer{buffer: buffer, fallback: fallback}
}

// Write implements io.Writer. Lines that are not JSON objects are only
// passed to the fallback.
func (w *Writer) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err == nil {
		w.buffer.Add(parseEntry(raw))
	}
	if w.fallback != nil {
		return w.fallback.Write(p)
	}
	return len(p), nil
}

func parseEntry(raw map[string]any) LogEntry {
	entry := LogEntry{Timestamp: time.Now()}
	if v, ok := raw[zerolog.LevelFieldName].(string); ok {
		entry.Level = v
	}
	if v, ok := raw[zerolog.MessageFieldName].(string); ok {
		entry.Message = v
	}
	if v, ok := raw["component"].(string); ok {
		entry.Component = v
	}
	switch v := raw[zerolog.TimestampFieldName].(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			entry.Timestamp = ts
		}
	case float64:
		entry.Timestamp = time.Unix(int64(v), 0)
	}

	for _, k := range []string{zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.TimestampFieldName, "component"} {
		delete(raw, k)
	}
	if len(raw) > 0 {
		entry.Fields = raw
	}
	return entry
}
