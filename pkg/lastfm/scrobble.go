package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ScrobbleService provides scrobbling operations.
type ScrobbleService struct {
	client *Client
}

// UpdateNowPlaying updates the "now playing" status.
//
// This should be called when a track starts playing. It does not count
// as a scrobble and does not affect play counts. The remote API does not
// echo an acceptance count for this call, so any non-error 2xx response
// is success, including one whose body does not decode.
//
// Requires authentication (session key must be set via SetSessionKey).
func (s *ScrobbleService) UpdateNowPlaying(ctx context.Context, track Track) error {
	params := map[string]string{
		"artist": track.Artist,
		"track":  track.Track,
	}
	if track.Album != "" {
		params["album"] = track.Album
	}
	if track.AlbumArtist != "" {
		params["albumArtist"] = track.AlbumArtist
	}
	if track.Duration > 0 {
		params["duration"] = fmt.Sprintf("%d", track.Duration)
	}

	_, err := s.client.call(ctx, "track.updateNowPlaying", params, true, true)
	return err
}

// scrobbleEnvelope represents the JSON response from track.scrobble.
type scrobbleEnvelope struct {
	Scrobbles struct {
		Attr struct {
			Accepted int `json:"accepted"`
			Ignored  int `json:"ignored"`
		} `json:"@attr"`
		Scrobble struct {
			IgnoredMessage struct {
				Code string `json:"code"`
				Text string `json:"#text"`
			} `json:"ignoredMessage"`
		} `json:"scrobble"`
	} `json:"scrobbles"`
}

// Scrobble submits a single scrobble with the given play timestamp.
//
// The remote response includes an acceptance counter; the scrobble only
// counts when accepted == 1. A partial or ignored submission is reported
// through the returned ScrobbleResponse, not as an error.
//
// Requires authentication (session key must be set via SetSessionKey).
func (s *ScrobbleService) Scrobble(ctx context.Context, track Track, timestamp time.Time) (*ScrobbleResponse, error) {
	params := map[string]string{
		"artist":    track.Artist,
		"track":     track.Track,
		"timestamp": fmt.Sprintf("%d", timestamp.Unix()),
	}
	if track.Album != "" {
		params["album"] = track.Album
	}
	if track.AlbumArtist != "" {
		params["albumArtist"] = track.AlbumArtist
	}
	if track.Duration > 0 {
		params["duration"] = fmt.Sprintf("%d", track.Duration)
	}

	body, err := s.client.call(ctx, "track.scrobble", params, true, true)
	if err != nil {
		return nil, err
	}

	var envelope scrobbleEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &DecodeError{Err: err, Body: body}
	}

	return &ScrobbleResponse{
		Accepted:       envelope.Scrobbles.Attr.Accepted,
		Ignored:        envelope.Scrobbles.Attr.Ignored,
		IgnoredMessage: envelope.Scrobbles.Scrobble.IgnoredMessage.Text,
	}, nil
}
