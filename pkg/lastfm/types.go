package lastfm

import (
	"time"
)

// Track represents a music track for scrobbling or now playing updates.
type Track struct {
	Artist      string // Required: artist name
	Track       string // Required: track name
	Album       string // Optional: album name
	AlbumArtist string // Optional: album artist (if different from track artist)
	Duration    int    // Optional: track duration in seconds
}

// Token represents an authentication token from auth.getToken.
type Token struct {
	Token string `json:"token"`
}

// Session represents an authenticated session from auth.getSession or
// auth.getMobileSession.
type Session struct {
	Key        string // Session key for authenticated requests
	Username   string // Account name
	Subscriber bool   // Whether the account is a subscriber
}

// UserInfo is the response to the lightweight authenticated probe used
// to validate a persisted session key.
type UserInfo struct {
	Name     string
	RealName string
	URL      string
}

// Friend is one entry from user.getFriends.
type Friend struct {
	Name     string
	RealName string
	URL      string
	ImageURL string
}

// RecentTrack is one entry from user.getRecentTracks. The most recent
// entry may represent the track currently playing; such entries carry
// no timestamp and NowPlaying is set.
type RecentTrack struct {
	Artist     string
	Track      string
	Album      string
	URL        string
	NowPlaying bool
	PlayedAt   time.Time // zero when NowPlaying
}

// ScrobbleResponse represents the response from track.scrobble.
type ScrobbleResponse struct {
	Accepted       int    // Number of scrobbles accepted
	Ignored        int    // Number of scrobbles ignored
	IgnoredMessage string // Reason, when the scrobble was ignored
}
