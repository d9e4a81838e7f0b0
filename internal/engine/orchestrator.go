/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package engine ties the library, the loader and the player together. The
// Orchestrator owns the directory tree and the queue accounting, and is the
// only goroutine that talks to the other actors.
package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/fairplay/internal/library"
	"github.com/friendsincode/fairplay/internal/loader"
	"github.com/friendsincode/fairplay/internal/player"
	"github.com/friendsincode/fairplay/internal/settings"
	"github.com/friendsincode/fairplay/internal/telemetry"
)

// ErrPlayerUnavailable is reported for transport commands while the player
// is down.
var ErrPlayerUnavailable = errors.New("player unavailable")

const (
	DefaultQueueDepth     = 3
	DefaultVolumeDebounce = 500 * time.Millisecond
	DefaultWatchDebounce  = 2 * time.Second
	DefaultFailureBackoff = time.Second

	// Progress updates beyond this many undelivered events are dropped.
	maxPendingEvents = 1024

	// On Stop, how long to wait for the player to confirm the clear and
	// for the reader to take the remaining events.
	stopTimeout = 2 * time.Second

	actorLoader = "loader"
	actorPlayer = "player"
)

// Options configures an Orchestrator.
type Options struct {
	QueueDepth int
	Extensions []string

	// Settings persists the root and volume. Nil keeps them in memory only.
	Settings       *settings.Store
	VolumeDebounce time.Duration

	// Watch rebuilds the tree when tracks appear or vanish below the root.
	Watch         bool
	WatchDebounce time.Duration

	// FailureBackoff is the first pause after a run of failed loads.
	FailureBackoff time.Duration

	Rand   library.Rand
	Logger zerolog.Logger
}

// Orchestrator routes commands to the loader and the player and turns
// their results into Events.
type Orchestrator struct {
	loader *loader.Worker
	player *player.Engine
	logger zerolog.Logger

	depth          int
	exts           []string
	store          *settings.Store
	volumeDebounce time.Duration
	watch          bool
	watchDebounce  time.Duration
	failureBackoff time.Duration
	rng            library.Rand
	policy         restartPolicy

	// Everything below is owned by the Run goroutine.
	tree     *library.Tree
	gen      uint64
	inPlayer map[uuid.UUID]struct{}
	loading  int
	settings settings.Settings
	repaint  RepaintHandle
	playing  bool
	stopping bool

	// awaitClear is set between Stop and the player's empty announcement.
	awaitClear bool
	stopTimer  *time.Timer

	failures      int
	refillBackOff backoff.BackOff
	refillPaused  bool
	refillTimer   *time.Timer

	volumeDirty bool
	volumeTimer *time.Timer

	playerDown  bool
	lastQueued  int
	lastLoading int

	runCtx    context.Context
	wg        sync.WaitGroup
	stopWatch context.CancelFunc
	rescans   chan string

	loadOut   outbox[loader.Request]
	playerOut outbox[player.Request]
	eventOut  outbox[Event]
}

// New creates an orchestrator driving the given loader and player.
func New(l *loader.Worker, p *player.Engine, opts Options) *Orchestrator {
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = DefaultQueueDepth
	}
	if opts.VolumeDebounce <= 0 {
		opts.VolumeDebounce = DefaultVolumeDebounce
	}
	if opts.WatchDebounce <= 0 {
		opts.WatchDebounce = DefaultWatchDebounce
	}
	if opts.FailureBackoff <= 0 {
		opts.FailureBackoff = DefaultFailureBackoff
	}
	if opts.Rand == nil {
		opts.Rand = globalRand{}
	}

	return &Orchestrator{
		loader:         l,
		player:         p,
		logger:         opts.Logger.With().Str("component", "orchestrator").Logger(),
		depth:          opts.QueueDepth,
		exts:           opts.Extensions,
		store:          opts.Settings,
		volumeDebounce: opts.VolumeDebounce,
		watch:          opts.Watch,
		watchDebounce:  opts.WatchDebounce,
		failureBackoff: opts.FailureBackoff,
		rng:            opts.Rand,
		policy:         defaultRestartPolicy(),
		inPlayer:       make(map[uuid.UUID]struct{}),
		settings:       settings.Default(),
		lastQueued:     -1,
		lastLoading:    -1,
		rescans:        make(chan string),
	}
}

// Run starts the loader and the player and serves commands until Stop is
// received, commands is closed or ctx is done. Events are delivered in
// order; a slow reader never stalls the actors.
func (o *Orchestrator) Run(ctx context.Context, commands <-chan Command, events chan<- Event) error {
	actorCtx, cancelActors := context.WithCancel(ctx)
	o.runCtx = actorCtx
	defer func() {
		o.stopWatcher()
		cancelActors()
		o.wg.Wait()
		o.flushVolume()
		o.release()
		o.logger.Info().Msg("orchestrator stopped")
	}()

	loadReqs := make(chan loader.Request)
	loadResps := make(chan loader.Response)
	playerReqs := make(chan player.Request)
	playerEvents := make(chan player.Event)
	status := make(chan actorStatus)

	o.refillTimer = stoppedTimer()
	o.volumeTimer = stoppedTimer()
	o.stopTimer = stoppedTimer()
	o.refillBackOff = o.newRefillBackOff()

	o.spawn(actorCtx, actorLoader, func(ctx context.Context) error {
		return o.loader.Run(ctx, loadReqs, loadResps)
	}, status)
	o.spawn(actorCtx, actorPlayer, func(ctx context.Context) error {
		return o.player.Run(ctx, playerReqs, playerEvents)
	}, status)

	o.logger.Info().Int("queue_depth", o.depth).Bool("watch", o.watch).Msg("orchestrator started")
	o.startup()

	for {
		o.refill()
		o.reportQueue()

		if o.stopping && (o.playerDown || (o.playerOut.len() == 0 && !o.awaitClear)) {
			o.flushEvents(ctx, events)
			return nil
		}
		cmds := commands
		if o.stopping {
			cmds = nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case cmd, ok := <-cmds:
			if !ok {
				o.logger.Info().Msg("command channel closed")
				o.stop()
				continue
			}
			o.handleCommand(cmd)

		case resp := <-loadResps:
			o.handleLoad(resp)

		case ev := <-playerEvents:
			o.handlePlayerEvent(ev)

		case st := <-status:
			o.handleStatus(st)

		case root := <-o.rescans:
			o.rescan(root)

		case <-o.volumeTimer.C:
			o.flushVolume()

		case <-o.stopTimer.C:
			o.logger.Warn().Msg("player did not confirm clear, stopping anyway")
			o.awaitClear = false

		case <-o.refillTimer.C:
			o.logger.Info().Msg("resuming track loads")
			o.refillPaused = false
			o.failures = 0

		case o.loadOut.ready(loadReqs) <- o.loadOut.front():
			o.loadOut.pop()

		case o.playerOut.ready(playerReqs) <- o.playerOut.front():
			o.playerOut.pop()

		case o.eventOut.ready(events) <- o.eventOut.front():
			o.eventOut.pop()
		}
	}
}

func (o *Orchestrator) spawn(ctx context.Context, name string, run func(context.Context) error, status chan<- actorStatus) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		supervise(ctx, name, run, o.policy, status, o.logger)
	}()
}

func (o *Orchestrator) startup() {
	if o.store != nil {
		st, err := o.store.Load()
		if err != nil {
			o.logger.Warn().Err(err).Str("path", o.store.Path()).Msg("could not write default settings")
		}
		o.settings = st
	}
	o.emit(NewSettings{Settings: o.settings})
	o.toPlayer(player.SetVolume{Volume: o.settings.Volume})
	if o.settings.RootMusicPath != "" {
		o.changeRoot(o.settings.RootMusicPath)
	}
}

func (o *Orchestrator) handleCommand(cmd Command) {
	telemetry.CommandsTotal.WithLabelValues(cmd.command()).Inc()
	o.logger.Debug().Str("command", cmd.command()).Msg("command received")

	switch c := cmd.(type) {
	case ChangeRoot:
		o.changeRoot(c.Path)
	case Play:
		o.playing = true
		o.transport("play", player.Play{})
	case Pause:
		o.playing = false
		o.transport("pause", player.Pause{})
	case JumpToFraction:
		o.transport("seek", player.JumpToFraction{Fraction: c.Fraction})
	case Skip:
		o.transport("skip", player.Skip{})
	case SetVolume:
		o.setVolume(c.Volume)
	case ProvideRepaintHandle:
		o.repaint = c.Handle
	case Stop:
		o.stop()
	default:
		o.logger.Warn().Str("command", cmd.command()).Msg("unknown command")
	}
}

// changeRoot clears the player and rebuilds the tree. A root that cannot be
// used leaves the orchestrator idle with no tree.
func (o *Orchestrator) changeRoot(path string) {
	ctx, span := telemetry.StartSpan(o.runCtx, "engine", "orchestrator.changeRoot")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{"library.path": path, "root.gen": o.gen + 1})

	o.logger.Info().Str("path", path).Msg("changing root")
	o.stopWatcher()
	o.gen++
	o.clearPlayer()
	o.loadOut.drain(func(loader.Request) { o.loading-- })
	o.failures = 0
	o.refillPaused = false
	o.refillTimer.Stop()
	o.refillBackOff.Reset()

	tree, err := library.BuildContext(ctx, path, library.BuildOptions{Extensions: o.exts, Logger: o.logger})
	if err != nil {
		telemetry.RecordError(span, err)
		o.tree = nil
		telemetry.LibraryTracks.Set(0)
		o.emit(DirError{Err: asDirError(path, err)})
		o.logger.Warn().Err(err).Str("path", path).Msg("root rejected")
		return
	}

	o.tree = tree
	telemetry.LibraryTracks.Set(float64(tree.TotalTracks()))
	o.logger.Info().Str("root", tree.Path()).Int("tracks", tree.TotalTracks()).Msg("library built")
	o.emit(LibraryChanged{Root: tree.Path(), Tracks: tree.TotalTracks()})
	o.refill()

	if o.settings.RootMusicPath != tree.Path() {
		o.settings.RootMusicPath = tree.Path()
		o.saveSettings()
		o.emit(NewSettings{Settings: o.settings})
	}

	o.playing = true
	o.transport("play", player.Play{})
	o.startWatcher(tree.Path())
}

// rescan rebuilds the tree after a change on disk. Queued tracks keep
// playing and loads in flight stay valid.
func (o *Orchestrator) rescan(root string) {
	switch {
	case o.stopping:
		return
	case o.tree != nil && o.tree.Path() != root:
		return
	case o.tree == nil && o.settings.RootMusicPath != root:
		return
	}

	ctx, span := telemetry.StartSpan(o.runCtx, "engine", "orchestrator.rescan")
	defer span.End()
	tree, err := library.BuildContext(ctx, root, library.BuildOptions{Extensions: o.exts, Logger: o.logger})
	telemetry.RecordError(span, err)
	if err != nil {
		o.tree = nil
		telemetry.LibraryTracks.Set(0)
		o.emit(DirError{Err: asDirError(root, err)})
		o.logger.Warn().Err(err).Str("root", root).Msg("rescan failed")
		return
	}
	o.tree = tree
	telemetry.LibraryTracks.Set(float64(tree.TotalTracks()))
	o.logger.Info().Str("root", root).Int("tracks", tree.TotalTracks()).Msg("library rescanned")
	o.emit(LibraryChanged{Root: root, Tracks: tree.TotalTracks()})
}

func (o *Orchestrator) handleLoad(resp loader.Response) {
	if o.loading > 0 {
		o.loading--
	}

	switch r := resp.(type) {
	case loader.Loaded:
		if r.Gen != o.gen || o.tree == nil || o.playerDown || o.stopping {
			o.logger.Debug().Str("path", r.Path).Uint64("gen", r.Gen).Uint64("current", o.gen).Msg("discarding stale track")
			r.Entry.Source.Close()
			return
		}
		o.failures = 0
		o.refillBackOff.Reset()
		o.inPlayer[r.Entry.ID] = struct{}{}
		o.toPlayer(player.Enqueue{Entry: r.Entry})

	case loader.Failed:
		if r.Gen != o.gen {
			return
		}
		o.loadFailed(r.Path, r.Err)
	}
}

func (o *Orchestrator) loadFailed(path string, err error) {
	o.failures++
	o.emit(LoadFailed{Path: path, Err: err})
	if o.failures < o.depth*2 || o.refillPaused {
		return
	}
	delay := o.refillBackOff.NextBackOff()
	if delay == backoff.Stop {
		delay = o.failureBackoff
	}
	o.refillPaused = true
	o.refillTimer.Reset(delay)
	o.logger.Warn().Int("failures", o.failures).Dur("pause", delay).Msg("too many failed loads, pausing")
}

func (o *Orchestrator) handlePlayerEvent(ev player.Event) {
	switch e := ev.(type) {
	case player.NewTrackPlaying:
		if e.Metadata == nil {
			o.awaitClear = false
		}
		o.emit(NewTrackPlaying{ID: e.ID, Metadata: e.Metadata})
	case player.NowPlaying:
		o.emit(NowPlaying{})
	case player.NowPaused:
		o.emit(NowPaused{})
	case player.ProgressUpdate:
		o.emit(ProgressUpdate{Position: e.Position})
	case player.JumpedTo:
		o.emit(JumpedTo{Position: e.Position})
	case player.TrackFinished:
		delete(o.inPlayer, e.ID)
		o.emit(TrackFinished{ID: e.ID})
	case player.TrackRejected:
		delete(o.inPlayer, e.ID)
		o.loadFailed(e.Path, e.Err)
	case player.TransportFailed:
		o.emit(TransportFailed{Op: e.Op, Err: e.Err})
	}

	if o.repaint != nil {
		o.repaint.RequestRepaint()
	}
}

func (o *Orchestrator) handleStatus(st actorStatus) {
	if st.restarted {
		o.logger.Info().Str("actor", st.actor).Msg("actor back")
		if st.actor == actorPlayer {
			o.playerDown = false
			o.toPlayer(player.SetVolume{Volume: o.settings.Volume})
			if o.playing {
				o.toPlayer(player.Play{})
			}
		}
		return
	}

	o.emit(ActorUnavailable{Actor: st.actor, Err: st.err, RestartIn: st.restartIn, Permanent: st.permanent})
	switch st.actor {
	case actorPlayer:
		// A restarted player starts with an empty sink.
		o.playerDown = true
		o.playerOut.drain(closeEnqueued)
		clear(o.inPlayer)
	case actorLoader:
		// The request being served when it died gets no response.
		o.loading = o.loadOut.len()
	}
}

func (o *Orchestrator) setVolume(v float64) {
	v = clamp01(v)
	o.settings.Volume = v
	o.toPlayer(player.SetVolume{Volume: v})
	o.volumeDirty = true
	o.volumeTimer.Reset(o.volumeDebounce)
}

func (o *Orchestrator) flushVolume() {
	if !o.volumeDirty {
		return
	}
	o.volumeDirty = false
	o.volumeTimer.Stop()
	o.saveSettings()
}

func (o *Orchestrator) saveSettings() {
	if o.store == nil {
		return
	}
	if err := o.store.Save(o.settings); err != nil {
		o.logger.Error().Err(err).Str("path", o.store.Path()).Msg("save settings failed")
	}
}

func (o *Orchestrator) stop() {
	if o.stopping {
		return
	}
	o.logger.Info().Msg("stopping")
	o.stopping = true
	o.stopWatcher()
	o.tree = nil
	o.clearPlayer()
	o.awaitClear = !o.playerDown
	o.stopTimer.Reset(stopTimeout)
}

// flushEvents hands the events still queued to the reader. Whatever it has
// not taken within stopTimeout is dropped.
func (o *Orchestrator) flushEvents(ctx context.Context, events chan<- Event) {
	if o.eventOut.len() == 0 {
		return
	}
	deadline := time.NewTimer(stopTimeout)
	defer deadline.Stop()
	for o.eventOut.len() > 0 {
		select {
		case events <- o.eventOut.front():
			o.eventOut.pop()
		case <-deadline.C:
			o.logger.Warn().Int("dropped", o.eventOut.len()).Msg("events left undelivered at stop")
			return
		case <-ctx.Done():
			return
		}
	}
}

// refill tops the queue up to the target depth.
func (o *Orchestrator) refill() {
	if o.tree == nil || o.refillPaused || o.playerDown || o.stopping {
		return
	}
	for n := o.depth - len(o.inPlayer) - o.loading; n > 0; n-- {
		rel, err := o.tree.Next(o.rng)
		if err != nil {
			o.logger.Error().Err(err).Msg("selection failed")
			return
		}
		telemetry.SelectionsTotal.Inc()
		o.loadOut.push(loader.Request{Path: o.tree.Abs(rel), Gen: o.gen})
		o.loading++
	}
}

func (o *Orchestrator) reportQueue() {
	queued := len(o.inPlayer)
	if queued == o.lastQueued && o.loading == o.lastLoading {
		return
	}
	o.lastQueued, o.lastLoading = queued, o.loading
	telemetry.QueueTracks.WithLabelValues("queued").Set(float64(queued))
	telemetry.QueueTracks.WithLabelValues("loading").Set(float64(o.loading))
	o.logger.Debug().Int("queued", queued).Int("loading", o.loading).Msg("queue changed")
	o.emit(QueueChanged{Queued: queued, Loading: o.loading})
}

// clearPlayer empties the player, dropping tracks not yet handed to it.
func (o *Orchestrator) clearPlayer() {
	clear(o.inPlayer)
	o.playerOut.filter(func(req player.Request) bool {
		if e, ok := req.(player.Enqueue); ok {
			e.Entry.Source.Close()
			return false
		}
		return true
	})
	if !o.playerDown {
		o.playerOut.push(player.Clear{})
	}
}

// transport forwards a player command, or reports it as failed while the
// player is down.
func (o *Orchestrator) transport(op string, req player.Request) {
	if o.playerDown {
		o.emit(TransportFailed{Op: op, Err: ErrPlayerUnavailable})
		return
	}
	o.playerOut.push(req)
}

func (o *Orchestrator) toPlayer(req player.Request) {
	if o.playerDown {
		if e, ok := req.(player.Enqueue); ok {
			e.Entry.Source.Close()
		}
		return
	}
	o.playerOut.push(req)
}

func (o *Orchestrator) emit(ev Event) {
	if _, ok := ev.(ProgressUpdate); ok && o.eventOut.len() >= maxPendingEvents {
		return
	}
	o.eventOut.push(ev)
}

func (o *Orchestrator) startWatcher(root string) {
	if !o.watch {
		return
	}
	w, err := library.NewWatcher(root, o.exts, o.watchDebounce, o.logger)
	if err != nil {
		o.logger.Warn().Err(err).Str("root", root).Msg("cannot watch library")
		return
	}
	ctx, cancel := context.WithCancel(o.runCtx)
	o.stopWatch = cancel
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := w.Run(ctx, o.rescans); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Warn().Err(err).Str("root", root).Msg("library watcher stopped")
		}
	}()
}

func (o *Orchestrator) stopWatcher() {
	if o.stopWatch != nil {
		o.stopWatch()
		o.stopWatch = nil
	}
}

// release closes sources that were never handed to the player.
func (o *Orchestrator) release() {
	o.playerOut.drain(closeEnqueued)
}

func (o *Orchestrator) newRefillBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.failureBackoff
	b.MaxInterval = 30 * o.failureBackoff
	b.MaxElapsedTime = 0
	return b
}

func closeEnqueued(req player.Request) {
	if e, ok := req.(player.Enqueue); ok {
		e.Entry.Source.Close()
	}
}

func asDirError(path string, err error) *library.DirError {
	var dirErr *library.DirError
	if errors.As(err, &dirErr) {
		return dirErr
	}
	return &library.DirError{Kind: library.KindUnreadable, Path: path, Err: err}
}

func stoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func clamp01(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// globalRand uses the process-wide source of math/rand/v2.
type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }
