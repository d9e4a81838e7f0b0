package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/friendsincode/fairplay/internal/library"
	"github.com/friendsincode/fairplay/internal/loader"
	"github.com/friendsincode/fairplay/internal/player"
	"github.com/friendsincode/fairplay/internal/player/playertest"
	"github.com/friendsincode/fairplay/internal/settings"
	"github.com/friendsincode/fairplay/internal/track/tracktest"
)

const waitTimeout = 5 * time.Second

type harness struct {
	t        *testing.T
	orch     *Orchestrator
	sink     *playertest.Sink
	store    *settings.Store
	commands chan Command
	events   chan Event
	done     chan error
	seen     []Event
}

type setup struct {
	sink     player.Sink
	fake     *playertest.Sink
	opts     Options
	settings *settings.Settings
	policy   *restartPolicy
}

func start(t *testing.T, s setup) *harness {
	t.Helper()
	if s.fake == nil {
		s.fake = playertest.New()
	}
	if s.sink == nil {
		s.sink = s.fake
	}

	store := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"), zerolog.Nop())
	if s.settings != nil {
		if err := store.Save(*s.settings); err != nil {
			t.Fatalf("seed settings: %v", err)
		}
	}

	opts := s.opts
	opts.Extensions = []string{".wav"}
	opts.Settings = store
	opts.Logger = zerolog.Nop()
	if opts.VolumeDebounce == 0 {
		opts.VolumeDebounce = 20 * time.Millisecond
	}

	worker := loader.NewWorker(loader.New(loader.Options{Logger: zerolog.Nop()}))
	engine := player.New(s.sink, player.Options{ProgressInterval: time.Hour, Logger: zerolog.Nop()})

	h := &harness{
		t:        t,
		orch:     New(worker, engine, opts),
		sink:     s.fake,
		store:    store,
		commands: make(chan Command),
		events:   make(chan Event),
		done:     make(chan error, 1),
	}
	if s.policy != nil {
		h.orch.policy = *s.policy
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.done <- h.orch.Run(ctx, h.commands, h.events) }()
	t.Cleanup(func() {
		cancel()
		// Keep reading so Run is never left holding an undelivered event.
		for {
			select {
			case <-h.done:
				return
			case <-h.events:
			}
		}
	})
	return h
}

func (h *harness) send(cmd Command) {
	h.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case h.commands <- cmd:
			return
		case ev := <-h.events:
			h.record(ev)
		case <-deadline:
			h.t.Fatalf("orchestrator did not accept %T", cmd)
		}
	}
}

func (h *harness) record(ev Event) {
	h.t.Helper()
	if q, ok := ev.(QueueChanged); ok && q.Queued+q.Loading > h.orch.depth {
		h.t.Fatalf("queue invariant violated: %+v with depth %d", q, h.orch.depth)
	}
	h.seen = append(h.seen, ev)
}

// waitFor reads events until match accepts one.
func (h *harness) waitFor(what string, match func(Event) bool) Event {
	h.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-h.events:
			h.record(ev)
			if match(ev) {
				return ev
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s; saw %d events", what, len(h.seen))
			return nil
		}
	}
}

func (h *harness) waitFull() {
	h.t.Helper()
	want := QueueChanged{Queued: h.orch.depth, Loading: 0}
	h.waitFor("full queue", func(ev Event) bool { return ev == want })
}

// sync returns once the player has handled everything sent to it so far.
// Pause is never left unanswered by the tests, so its echo is ours; the
// player is playing again on return.
func (h *harness) sync() {
	h.t.Helper()
	h.send(Pause{})
	h.waitFor("pause", func(ev Event) bool { return ev == NowPaused{} })
	h.send(Play{})
	h.waitFor("play", func(ev Event) bool { return ev == NowPlaying{} })
}

// waitDone reads events until Run returns and hands back its error.
func (h *harness) waitDone() error {
	h.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case err := <-h.done:
			h.done <- err
			// Run has returned; anything still buffered was delivered before it.
			return err
		case ev := <-h.events:
			h.record(ev)
		case <-deadline:
			h.t.Fatal("Run did not return")
			return nil
		}
	}
}

func (h *harness) count(match func(Event) bool) int {
	n := 0
	for _, ev := range h.seen {
		if match(ev) {
			n++
		}
	}
	return n
}

func isLoadFailed(ev Event) bool {
	_, ok := ev.(LoadFailed)
	return ok
}

// writeLibrary writes n one-second tracks spread over two albums.
func writeLibrary(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		tracktest.WriteWAV(t, dir, fmt.Sprintf("album%d/track%02d.wav", i%2, i), time.Second)
	}
	return dir
}

func TestStartupEmitsSettings(t *testing.T) {
	h := start(t, setup{})
	ev := h.waitFor("settings", func(ev Event) bool { _, ok := ev.(NewSettings); return ok })
	if got := ev.(NewSettings).Settings; got != settings.Default() {
		t.Errorf("settings = %+v, want defaults", got)
	}
	if _, err := os.Stat(h.store.Path()); err != nil {
		t.Errorf("defaults were not written back: %v", err)
	}
}

func TestChangeRootFillsQueue(t *testing.T) {
	dir := writeLibrary(t, 5)
	h := start(t, setup{})

	h.send(ChangeRoot{Path: dir})
	h.waitFull()
	h.sync()

	if got := len(h.sink.Queued()); got != 3 {
		t.Errorf("sink holds %d tracks, want 3", got)
	}
	if h.count(func(ev Event) bool { n, ok := ev.(NewTrackPlaying); return ok && n.Metadata != nil }) == 0 {
		t.Error("no NewTrackPlaying with metadata")
	}
	if h.count(func(ev Event) bool { return ev == NowPlaying{} }) == 0 {
		t.Error("playback was not started")
	}
	changed := h.count(func(ev Event) bool { return ev == LibraryChanged{Root: dir, Tracks: 5} })
	if changed != 1 {
		t.Errorf("LibraryChanged{%s, 5} seen %d times", dir, changed)
	}

	st, err := h.store.Load()
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if st.RootMusicPath != dir {
		t.Errorf("persisted root = %q, want %q", st.RootMusicPath, dir)
	}
}

func TestChangeRootErrors(t *testing.T) {
	base := t.TempDir()
	file := tracktest.WriteWAV(t, base, "single.wav", time.Second)
	empty := filepath.Join(base, "empty")
	if err := os.MkdirAll(filepath.Join(empty, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		kind library.DirErrorKind
	}{
		{"missing", filepath.Join(base, "nope"), library.KindNotFound},
		{"file", file, library.KindNotDir},
		{"empty", empty, library.KindEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := start(t, setup{})
			h.send(ChangeRoot{Path: tt.path})
			ev := h.waitFor("dir error", func(ev Event) bool { _, ok := ev.(DirError); return ok })

			de := ev.(DirError)
			if de.Err.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", de.Err.Kind, tt.kind)
			}
			if de.Message() == "" {
				t.Error("empty message")
			}

			// The player was cleared and nothing gets loaded.
			h.waitFor("clear", func(ev Event) bool { return ev == NewTrackPlaying{} })
			if h.sink.Clears() == 0 {
				t.Error("player was not cleared")
			}
			h.sync()
			if n := h.sink.Appends(); n != 0 {
				t.Errorf("%d tracks loaded without a root", n)
			}
		})
	}
}

func TestFinishedTrackIsReplaced(t *testing.T) {
	dir := writeLibrary(t, 4)
	h := start(t, setup{})
	h.send(ChangeRoot{Path: dir})
	h.waitFull()
	h.sync()

	var current NewTrackPlaying
	for _, ev := range h.seen {
		if n, ok := ev.(NewTrackPlaying); ok {
			current = n
		}
	}
	if current.Metadata == nil {
		t.Fatal("nothing playing")
	}

	if !h.sink.Finish() {
		t.Fatal("sink was empty")
	}
	finished := h.waitFor("finish", func(ev Event) bool { _, ok := ev.(TrackFinished); return ok }).(TrackFinished)
	if finished.ID != current.ID {
		t.Errorf("finished %v, want %v", finished.ID, current.ID)
	}
	next := h.waitFor("next track", func(ev Event) bool { _, ok := ev.(NewTrackPlaying); return ok }).(NewTrackPlaying)
	if next.Metadata == nil || next.ID == current.ID {
		t.Errorf("next track = %+v, want a different entry", next)
	}

	h.waitFull()
	h.sync()
	if n := h.sink.Appends(); n != 4 {
		t.Errorf("appends = %d, want 4", n)
	}
}

func TestChangeRootDiscardsOldRoot(t *testing.T) {
	first := writeLibrary(t, 6)
	second := writeLibrary(t, 6)
	h := start(t, setup{})

	h.send(ChangeRoot{Path: first})
	h.send(ChangeRoot{Path: second})
	h.waitFor("second library", func(ev Event) bool {
		lc, ok := ev.(LibraryChanged)
		return ok && lc.Root == second
	})
	h.waitFull()
	h.sync()

	for _, path := range h.sink.Queued() {
		if !strings.HasPrefix(path, second) {
			t.Errorf("track %s from the old root is queued", path)
		}
	}
}

func TestTransportCommands(t *testing.T) {
	dir := writeLibrary(t, 3)
	h := start(t, setup{})
	h.send(ChangeRoot{Path: dir})
	h.waitFull()

	h.send(Pause{})
	h.waitFor("paused", func(ev Event) bool { return ev == NowPaused{} })
	if !h.sink.Paused() {
		t.Error("sink not paused")
	}
	h.send(Play{})
	h.waitFor("playing", func(ev Event) bool { return ev == NowPlaying{} })

	h.send(JumpToFraction{Fraction: 0.5})
	jumped := h.waitFor("jump", func(ev Event) bool { _, ok := ev.(JumpedTo); return ok }).(JumpedTo)
	if jumped.Position != 500*time.Millisecond {
		t.Errorf("jumped to %v, want 500ms", jumped.Position)
	}

	h.send(Skip{})
	h.waitFor("skip", func(ev Event) bool { _, ok := ev.(TrackFinished); return ok })
	h.waitFull()
}

func TestLoadFailuresPauseRefill(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		tracktest.WriteFile(t, dir, fmt.Sprintf("broken%d.wav", i), []byte("not audio"))
	}
	h := start(t, setup{opts: Options{FailureBackoff: time.Hour}})
	h.send(ChangeRoot{Path: dir})

	failed := 0
	h.waitFor("paused refills", func(ev Event) bool {
		if isLoadFailed(ev) {
			failed++
		}
		return failed >= 6 && ev == QueueChanged{}
	})

	if n := h.count(isLoadFailed); n < 6 || n > 8 {
		t.Errorf("%d failed loads, want between 6 and 8", n)
	}
	if n := h.sink.Appends(); n != 0 {
		t.Errorf("appends = %d, want 0", n)
	}
}

func TestRejectedTrackIsReported(t *testing.T) {
	dir := t.TempDir()
	bad := tracktest.WriteWAV(t, dir, "a.wav", time.Second)

	fake := playertest.New()
	errRejected := errors.New("rejected")
	fake.Reject(bad, errRejected)

	h := start(t, setup{fake: fake, opts: Options{FailureBackoff: time.Hour}})
	h.send(ChangeRoot{Path: dir})

	ev := h.waitFor("rejection", func(ev Event) bool {
		lf, ok := ev.(LoadFailed)
		return ok && lf.Path == bad
	}).(LoadFailed)
	if !errors.Is(ev.Err, errRejected) {
		t.Errorf("err = %v, want %v", ev.Err, errRejected)
	}
	h.waitFor("empty queue", func(ev Event) bool { return ev == QueueChanged{} })
	if n := h.sink.Appends(); n != 0 {
		t.Errorf("appends = %d, want 0", n)
	}
}

func TestVolumeIsDebouncedAndPersisted(t *testing.T) {
	h := start(t, setup{opts: Options{VolumeDebounce: 50 * time.Millisecond}})
	h.send(SetVolume{Volume: 0.2})
	h.send(SetVolume{Volume: 0.5})

	deadline := time.Now().Add(waitTimeout)
	for {
		data, err := os.ReadFile(h.store.Path())
		if err == nil {
			var st settings.Settings
			if json.Unmarshal(data, &st) == nil && st.Volume == 0.5 {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("volume was not persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.sync()
	if g := h.sink.Gain(); g != 0.25 {
		t.Errorf("gain = %v, want 0.25", g)
	}
}

func TestStartupRestoresRoot(t *testing.T) {
	dir := writeLibrary(t, 4)
	h := start(t, setup{settings: &settings.Settings{RootMusicPath: dir, Volume: 0.5}})

	ev := h.waitFor("settings", func(ev Event) bool { _, ok := ev.(NewSettings); return ok })
	if got := ev.(NewSettings).Settings; got.RootMusicPath != dir || got.Volume != 0.5 {
		t.Errorf("settings = %+v", got)
	}
	h.waitFull()
	h.sync()
	if g := h.sink.Gain(); g != 0.25 {
		t.Errorf("gain = %v, want 0.25", g)
	}
}

func TestRepaintAfterPlayerEvents(t *testing.T) {
	h := start(t, setup{})
	var repaints atomic.Int32
	h.send(ProvideRepaintHandle{Handle: RepaintFunc(func() { repaints.Add(1) })})
	h.send(Pause{})
	h.waitFor("paused", func(ev Event) bool { return ev == NowPaused{} })
	if repaints.Load() == 0 {
		t.Error("repaint was not requested")
	}
}

func TestStopClearsAndReturns(t *testing.T) {
	dir := writeLibrary(t, 3)
	h := start(t, setup{})
	h.send(ChangeRoot{Path: dir})
	h.waitFull()

	stopAt := len(h.seen)
	h.send(Stop{})
	if err := h.waitDone(); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if n := len(h.sink.Queued()); n != 0 {
		t.Errorf("%d tracks left in the sink", n)
	}

	// The clear's announcement and the emptied queue reach the reader
	// before Run returns.
	var cleared, emptied bool
	for _, ev := range h.seen[stopAt:] {
		switch e := ev.(type) {
		case NewTrackPlaying:
			cleared = cleared || e.Metadata == nil
		case QueueChanged:
			emptied = e == QueueChanged{}
		}
	}
	if !cleared {
		t.Error("NewTrackPlaying(nil) after Stop was not delivered")
	}
	if !emptied {
		t.Error("final QueueChanged was not delivered")
	}
}

func TestClosedCommandsStop(t *testing.T) {
	h := start(t, setup{})
	close(h.commands)
	if err := h.waitDone(); err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestRescanKeepsQueue(t *testing.T) {
	dir := writeLibrary(t, 3)
	h := start(t, setup{opts: Options{Watch: true, WatchDebounce: 50 * time.Millisecond}})
	h.send(ChangeRoot{Path: dir})
	h.waitFull()
	clears := h.sink.Clears()

	tracktest.WriteWAV(t, dir, "album9/new.wav", time.Second)
	h.waitFor("rescan", func(ev Event) bool { return ev == LibraryChanged{Root: dir, Tracks: 4} })
	if h.sink.Clears() != clears {
		t.Error("rescan cleared the player")
	}
}

// flakySink panics on the first Play calls, like a lost output device.
type flakySink struct {
	*playertest.Sink
	panics atomic.Int32
}

func (s *flakySink) Play() {
	if s.panics.Add(-1) >= 0 {
		panic("output device lost")
	}
	s.Sink.Play()
}

func TestPlayerRestartRefills(t *testing.T) {
	dir := writeLibrary(t, 4)
	fake := playertest.New()
	sink := &flakySink{Sink: fake}
	sink.panics.Store(1)
	policy := testPolicy(3)

	h := start(t, setup{sink: sink, fake: fake, policy: &policy})
	h.send(ChangeRoot{Path: dir})

	ev := h.waitFor("player down", func(ev Event) bool { _, ok := ev.(ActorUnavailable); return ok }).(ActorUnavailable)
	if ev.Actor != actorPlayer || ev.Permanent || ev.Err == nil {
		t.Errorf("unexpected %+v", ev)
	}
	h.waitFull()
	h.sync()
	if fake.Paused() {
		t.Error("playback not resumed after restart")
	}
}

func testPolicy(maxRestarts int) restartPolicy {
	return restartPolicy{
		maxRestarts: maxRestarts,
		window:      time.Minute,
		newBackOff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(5 * time.Millisecond)
		},
	}
}
