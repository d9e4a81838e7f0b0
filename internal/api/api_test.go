package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/fairplay/internal/engine"
	"github.com/friendsincode/fairplay/internal/events"
	"github.com/friendsincode/fairplay/internal/history"
	"github.com/friendsincode/fairplay/internal/logbuffer"
	"github.com/friendsincode/fairplay/internal/track"
)

type fixture struct {
	api      *API
	router   chi.Router
	commands chan engine.Command
	state    *State
	bus      *events.Bus
	logs     *logbuffer.Buffer
}

func newFixture(t *testing.T, hist *history.Store) *fixture {
	t.Helper()
	f := &fixture{
		commands: make(chan engine.Command, 8),
		state:    NewState(),
		bus:      events.NewBus(),
		logs:     logbuffer.New(16),
	}
	f.api = New(f.commands, f.state, hist, f.bus, f.logs, zerolog.Nop())
	f.router = chi.NewRouter()
	f.api.Routes(f.router)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
		want   engine.Command
		code   string
	}{
		{name: "play", path: "/api/v1/play", status: http.StatusAccepted, want: engine.Play{}},
		{name: "pause", path: "/api/v1/pause", status: http.StatusAccepted, want: engine.Pause{}},
		{name: "skip", path: "/api/v1/skip", status: http.StatusAccepted, want: engine.Skip{}},
		{name: "root", path: "/api/v1/root", body: `{"path":" /music "}`, status: http.StatusAccepted, want: engine.ChangeRoot{Path: "/music"}},
		{name: "root missing", path: "/api/v1/root", body: `{}`, status: http.StatusBadRequest, code: "path_required"},
		{name: "root bad json", path: "/api/v1/root", body: `{`, status: http.StatusBadRequest, code: "invalid_json"},
		{name: "seek", path: "/api/v1/seek", body: `{"fraction":0.25}`, status: http.StatusAccepted, want: engine.JumpToFraction{Fraction: 0.25}},
		{name: "seek start", path: "/api/v1/seek", body: `{"fraction":0}`, status: http.StatusAccepted, want: engine.JumpToFraction{Fraction: 0}},
		{name: "seek missing", path: "/api/v1/seek", body: `{}`, status: http.StatusBadRequest, code: "fraction_required"},
		{name: "seek above", path: "/api/v1/seek", body: `{"fraction":1.5}`, status: http.StatusBadRequest, code: "fraction_out_of_range"},
		{name: "seek below", path: "/api/v1/seek", body: `{"fraction":-0.1}`, status: http.StatusBadRequest, code: "fraction_out_of_range"},
		{name: "volume", path: "/api/v1/volume", body: `{"volume":1}`, status: http.StatusAccepted, want: engine.SetVolume{Volume: 1}},
		{name: "volume above", path: "/api/v1/volume", body: `{"volume":2}`, status: http.StatusBadRequest, code: "volume_out_of_range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rr := f.do(http.MethodPost, tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.status, rr.Body.String())
			}

			if tt.code != "" {
				var body map[string]string
				if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if body["error"] != tt.code {
					t.Errorf("error = %q, want %q", body["error"], tt.code)
				}
				if len(f.commands) != 0 {
					t.Error("rejected request reached the engine")
				}
				return
			}

			select {
			case got := <-f.commands:
				if got != tt.want {
					t.Errorf("command = %#v, want %#v", got, tt.want)
				}
			default:
				t.Fatal("no command sent")
			}
		})
	}
}

func TestCommandTimesOutWithoutEngine(t *testing.T) {
	f := newFixture(t, nil)
	f.api.commands = make(chan engine.Command)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/play", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 20*time.Millisecond)
	defer cancel()
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req.WithContext(ctx))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestNowPlayingAndCover(t *testing.T) {
	f := newFixture(t, nil)

	if rr := f.do(http.MethodGet, "/api/v1/cover", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("cover status = %d, want 404", rr.Code)
	}

	md := track.NewMetadata("/music/a/01.mp3")
	md.Name = "Song"
	md.Duration = 3 * time.Second
	md.Cover = image.NewRGBA(image.Rect(0, 0, 2, 2))
	md.Cover.Set(1, 1, color.RGBA{R: 255, A: 255})

	for _, ev := range []engine.Event{
		engine.NewTrackPlaying{Metadata: md},
		engine.NowPlaying{},
		engine.ProgressUpdate{Position: 1200 * time.Millisecond},
		engine.QueueChanged{Queued: 3},
	} {
		typ, p := engine.Payload(ev)
		p["type"] = string(typ)
		f.state.Apply(p)
	}

	rr := f.do(http.MethodGet, "/api/v1/now-playing", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var np NowPlaying
	if err := json.NewDecoder(rr.Body).Decode(&np); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !np.Playing || np.PositionMs != 1200 || np.Queued != 3 {
		t.Errorf("snapshot = %+v", np)
	}
	if np.Track == nil || np.Track.Title != "Song" || np.Track.DurationMs != 3000 || !np.Track.HasCover {
		t.Errorf("track = %+v", np.Track)
	}

	rr = f.do(http.MethodGet, "/api/v1/cover", "")
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("cover status = %d, type %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	img, err := png.Decode(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode cover: %v", err)
	}
	if r, _, _, _ := img.At(1, 1).RGBA(); r != 0xffff {
		t.Errorf("cover pixel red = %#x", r)
	}

	// Clearing the queue drops the track and its cover.
	typ, p := engine.Payload(engine.NewTrackPlaying{})
	p["type"] = string(typ)
	f.state.Apply(p)
	if np := f.state.Snapshot(); np.Track != nil {
		t.Errorf("track still set: %+v", np.Track)
	}
	if rr := f.do(http.MethodGet, "/api/v1/cover", ""); rr.Code != http.StatusNotFound {
		t.Errorf("cover status = %d after clear, want 404", rr.Code)
	}
}

func TestHistory(t *testing.T) {
	if rr := newFixture(t, nil).do(http.MethodGet, "/api/v1/history", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status without store = %d, want 503", rr.Code)
	}

	store, err := history.Open(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	base := time.Now()
	for i, name := range []string{"one", "two", "three"} {
		md := track.NewMetadata("/music/" + name + ".mp3")
		md.Name = name
		if err := store.Start(ctx, name, md, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("start: %v", err)
		}
	}

	f := newFixture(t, store)
	if rr := f.do(http.MethodGet, "/api/v1/history?limit=zero", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rr.Code)
	}

	rr := f.do(http.MethodGet, "/api/v1/history?limit=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Plays []history.Play `json:"plays"`
		Count int            `json:"count"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 || body.Plays[0].Title != "three" || body.Plays[1].Title != "two" {
		t.Errorf("history = %+v", body)
	}
}

func TestLogs(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now()
	f.logs.Add(logbuffer.LogEntry{Timestamp: now, Level: "info", Message: "library built", Component: "orchestrator"})
	f.logs.Add(logbuffer.LogEntry{Timestamp: now, Level: "warn", Message: "track load failed", Component: "loader"})

	rr := f.do(http.MethodGet, "/api/v1/logs?level=warn", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Entries []logbuffer.LogEntry `json:"entries"`
		Count   int                  `json:"count"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || body.Entries[0].Component != "loader" {
		t.Errorf("logs = %+v", body)
	}

	if rr := f.do(http.MethodGet, "/api/v1/logs/stats", ""); rr.Code != http.StatusOK {
		t.Errorf("stats status = %d", rr.Code)
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?types=" + string(events.EventNowPaused)
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	// The handler subscribes after the upgrade; publish until a frame arrives.
	got := make(chan []byte, 1)
	go func() {
		_, data, err := conn.Read(ctx)
		if err == nil {
			got <- data
		}
	}()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case data := <-got:
			var msg struct {
				Type    string         `json:"type"`
				Payload map[string]any `json:"payload"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("decode %s: %v", data, err)
			}
			if msg.Type != string(events.EventNowPaused) {
				t.Errorf("type = %q, want %q", msg.Type, events.EventNowPaused)
			}
			return
		case <-ticker.C:
			f.bus.Publish(events.EventNowPlaying, events.Payload{})
			f.bus.Publish(events.EventNowPaused, events.Payload{})
		case <-ctx.Done():
			t.Fatal("no event received")
		}
	}
}
