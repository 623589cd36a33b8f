// Package tracker implements the playback tracking state machine: it
// watches a now-playing source, decides track changes, and arms the
// single-shot scrobble-eligibility timer that drives submissions.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/etches/etches/internal/dispatch"
	"github.com/etches/etches/internal/nowplaying"
)

const (
	// DefaultPollInterval is the fixed poll cadence, independent of any
	// push notifications from the source.
	DefaultPollInterval = 10 * time.Second

	// minScrobbleDuration is the fixed policy threshold below which a
	// track is never scrobbled. Not configurable.
	minScrobbleDuration = 30.0

	// maxScrobbleDelay caps the eligibility timer.
	maxScrobbleDelay = 240 * time.Second
)

// Dispatcher fans one operation out to the scrobble services.
// Satisfied by *dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, op dispatch.Operation, artist, track, album string) dispatch.Outcome
}

// EventType identifies a tracker event.
type EventType int

const (
	EventTrackChanged EventType = iota
	EventStopped
	EventNowPlayingSent
	EventScrobbled
)

// String returns a human-readable representation of the EventType.
func (e EventType) String() string {
	switch e {
	case EventTrackChanged:
		return "track-changed"
	case EventStopped:
		return "stopped"
	case EventNowPlayingSent:
		return "now-playing-sent"
	case EventScrobbled:
		return "scrobbled"
	default:
		return "unknown"
	}
}

// Event is one externally observable tracker transition. The UI layer
// consumes these instead of polling tracker internals.
type Event struct {
	Type    EventType
	Track   nowplaying.Snapshot
	Outcome *dispatch.Outcome // set for now-playing and scrobble events
	At      time.Time
}

// session is the tracked lifetime of one continuously playing track.
// Owned exclusively by the Tracker; gen ties async completions to the
// session they belong to so stale ones are discarded.
type session struct {
	track     nowplaying.Snapshot
	startedAt time.Time
	scrobbled bool
	gen       uint64
	timer     *time.Timer
}

// Config holds Tracker configuration.
type Config struct {
	Source       nowplaying.Source
	Dispatcher   Dispatcher
	PollInterval time.Duration // 0 means DefaultPollInterval
	Logger       zerolog.Logger
}

// Tracker is the playback tracking state machine. All session state is
// guarded by a single mutex; network dispatches run outside the lock
// and re-check session identity on completion.
type Tracker struct {
	mu      sync.Mutex
	source  nowplaying.Source
	session *session
	gen     uint64

	dispatcher   Dispatcher
	pollInterval time.Duration
	logger       zerolog.Logger

	events chan Event
	kick   chan struct{}

	runCtx context.Context
}

// New creates a Tracker. Call Run to start polling.
func New(cfg Config) *Tracker {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Tracker{
		source:       cfg.Source,
		dispatcher:   cfg.Dispatcher,
		pollInterval: interval,
		logger:       cfg.Logger.With().Str("component", "tracker").Logger(),
		events:       make(chan Event, 32),
		kick:         make(chan struct{}, 1),
		runCtx:       context.Background(),
	}
}

// Events returns the tracker's event stream. Events are dropped rather
// than block the tracker when the consumer falls behind.
func (t *Tracker) Events() <-chan Event {
	return t.events
}

// Current returns the track of the active session, or nil.
func (t *Tracker) Current() *nowplaying.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil
	}
	track := t.session.track
	return &track
}

// Run polls the source on the fixed interval and re-evaluates on push
// notifications. Blocks until the context is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	t.mu.Lock()
	t.runCtx = ctx
	t.mu.Unlock()

	t.logger.Info().
		Dur("interval", t.pollInterval).
		Str("source", t.sourceName()).
		Msg("Starting tracker")

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	defer t.clearSession()

	// Evaluate immediately on start.
	t.Evaluate(ctx)

	for {
		// The push channel is re-resolved each iteration so a source
		// switch picks up the new source's notifier.
		var changes <-chan struct{}
		if n, ok := t.currentSource().(nowplaying.Notifier); ok {
			changes = n.Changes()
		}

		select {
		case <-ctx.Done():
			t.logger.Info().Msg("Tracker stopped")
			return ctx.Err()
		case <-ticker.C:
			t.Evaluate(ctx)
		case <-changes:
			// Push signal: immediate extra evaluation, poll schedule
			// unchanged.
			t.Evaluate(ctx)
		case <-t.kick:
			t.Evaluate(ctx)
		}
	}
}

// SwitchSource changes the monitored player: the pending scrobble timer
// is cancelled, the active session cleared, and an immediate
// re-evaluation forced. The fresh NoTrack start keeps the at-most-once
// scrobble guarantee across the switch.
func (t *Tracker) SwitchSource(ctx context.Context, src nowplaying.Source) {
	t.mu.Lock()
	t.source = src
	t.mu.Unlock()

	t.clearSession()
	t.logger.Info().Str("source", src.Name()).Msg("Switched source")

	t.Evaluate(ctx)
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

// Evaluate fetches the current snapshot and applies it. Poll ticks and
// push notifications share this path.
func (t *Tracker) Evaluate(ctx context.Context) {
	src := t.currentSource()
	if src == nil {
		return
	}

	snap, err := src.FetchCurrentTrack(ctx)
	if err != nil {
		t.logger.Debug().Err(err).Msg("Error fetching current track")
		return
	}

	t.apply(snap)
}

// apply advances the state machine for one snapshot.
func (t *Tracker) apply(snap *nowplaying.Snapshot) {
	if snap == nil || !snap.Playing || snap.Title == "" || snap.Artist == "" {
		t.stop()
		return
	}

	t.mu.Lock()

	if t.session != nil && nowplaying.SameTrack(&t.session.track, snap) {
		// Same track: no state change, no re-dispatch, no timer reset.
		t.mu.Unlock()
		return
	}

	// New track (or first track after NoTrack).
	if t.session != nil && t.session.timer != nil {
		t.session.timer.Stop()
	}
	t.gen++
	s := &session{
		track:     *snap,
		startedAt: time.Now(),
		gen:       t.gen,
	}
	t.session = s

	t.logger.Info().
		Str("artist", snap.Artist).
		Str("track", snap.Title).
		Float64("duration", snap.Duration).
		Msg("Track changed")

	// Now-playing dispatch is issued before the timer is armed, but the
	// timer never waits on it.
	go t.dispatchNowPlaying(s.track, s.gen)

	if delay, ok := ScrobbleDelay(snap.Duration); ok {
		gen := s.gen
		s.timer = time.AfterFunc(delay, func() {
			t.onScrobbleTimer(gen)
		})
	}

	track := s.track
	t.mu.Unlock()

	t.emit(Event{Type: EventTrackChanged, Track: track, At: time.Now()})
}

// ScrobbleDelay returns the eligibility timer delay for a track of the
// given duration in seconds. Tracks of 30 seconds or less are never
// scrobbled and arm no timer.
func ScrobbleDelay(durationSeconds float64) (time.Duration, bool) {
	if durationSeconds <= minScrobbleDuration {
		return 0, false
	}

	delay := time.Duration(durationSeconds / 2 * float64(time.Second))
	if delay > maxScrobbleDelay {
		delay = maxScrobbleDelay
	}
	return delay, true
}

// stop transitions to NoTrack, cancelling any pending timer.
func (t *Tracker) stop() {
	t.mu.Lock()
	if t.session == nil {
		t.mu.Unlock()
		return
	}
	if t.session.timer != nil {
		t.session.timer.Stop()
	}
	track := t.session.track
	t.session = nil
	t.gen++
	t.mu.Unlock()

	t.logger.Info().Msg("Playback stopped")
	t.emit(Event{Type: EventStopped, Track: track, At: time.Now()})
}

// clearSession silently resets to NoTrack, used on switch and shutdown.
func (t *Tracker) clearSession() {
	t.mu.Lock()
	if t.session != nil && t.session.timer != nil {
		t.session.timer.Stop()
	}
	t.session = nil
	t.gen++
	t.mu.Unlock()
}

// onScrobbleTimer fires when a session becomes scrobble-eligible. A
// fire for a session that has since been replaced is a no-op, and
// scrobbled flips before the dispatch so the at-most-once guarantee
// holds against concurrent track changes.
func (t *Tracker) onScrobbleTimer(gen uint64) {
	t.mu.Lock()
	if t.session == nil || t.session.gen != gen || t.session.scrobbled {
		t.mu.Unlock()
		return
	}
	t.session.scrobbled = true
	track := t.session.track
	ctx := t.runCtx
	t.mu.Unlock()

	outcome := t.dispatcher.Dispatch(ctx, dispatch.Scrobble, track.Artist, track.Title, track.Album)
	if outcome.AnySucceeded() {
		t.logger.Info().
			Str("artist", track.Artist).
			Str("track", track.Title).
			Strs("services", outcome.Succeeded).
			Msg("Scrobbled")
	} else {
		// A failed scrobble is not retried within the session; the
		// next track starts a fresh one.
		t.logger.Warn().
			Str("artist", track.Artist).
			Str("track", track.Title).
			Strs("failed", outcome.FailedIDs()).
			Msg("Scrobble failed on all services")
	}

	t.emit(Event{Type: EventScrobbled, Track: track, Outcome: &outcome, At: time.Now()})
}

// dispatchNowPlaying fans the now-playing update out. Failures are
// logged only and never block tracking or scrobble eligibility.
func (t *Tracker) dispatchNowPlaying(track nowplaying.Snapshot, gen uint64) {
	ctx := t.runContext()

	outcome := t.dispatcher.Dispatch(ctx, dispatch.UpdateNowPlaying, track.Artist, track.Title, track.Album)

	// Discard if the session moved on while we were on the wire.
	t.mu.Lock()
	stale := t.session == nil || t.session.gen != gen
	t.mu.Unlock()
	if stale {
		return
	}

	if len(outcome.Failed) > 0 {
		t.logger.Warn().
			Strs("failed", outcome.FailedIDs()).
			Str("track", track.Title).
			Msg("Now-playing update failed on some services")
	}

	t.emit(Event{Type: EventNowPlayingSent, Track: track, Outcome: &outcome, At: time.Now()})
}

func (t *Tracker) currentSource() nowplaying.Source {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.source
}

func (t *Tracker) sourceName() string {
	if src := t.currentSource(); src != nil {
		return src.Name()
	}
	return ""
}

func (t *Tracker) runContext() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runCtx
}

func (t *Tracker) emit(e Event) {
	select {
	case t.events <- e:
	default:
	}
}
