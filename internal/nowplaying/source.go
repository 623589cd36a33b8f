// Package nowplaying defines the now-playing source collaborator: the
// snapshot of the currently detected track and the interface the
// tracker polls.
package nowplaying

import (
	"context"
)

// Snapshot is an immutable description of the currently detected track.
type Snapshot struct {
	Playing   bool
	Title     string
	Artist    string
	Album     string
	Duration  float64 // seconds; 0 when the player does not report one
	SourceApp string  // name of the player the snapshot came from
	Artwork   string  // opaque artwork reference, may be empty
}

// SameTrack reports whether two snapshots describe the same track.
// Identity is artist plus title, exact and case-sensitive; album,
// duration, and artwork changes do not constitute a track change.
func SameTrack(a, b *Snapshot) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Artist == b.Artist && a.Title == b.Title
}

// Source provides the currently playing track from one player.
type Source interface {
	// Name returns the player name this source monitors.
	Name() string

	// FetchCurrentTrack returns the current snapshot, or nil if the
	// player is not running or stopped.
	FetchCurrentTrack(ctx context.Context) (*Snapshot, error)
}

// Notifier is an optional capability of sources that can push a signal
// when the player state changes, prompting an immediate re-evaluation
// between poll ticks.
type Notifier interface {
	// Changes returns a channel that receives a signal on player state
	// changes. The channel is closed when the notifier stops.
	Changes() <-chan struct{}
}
