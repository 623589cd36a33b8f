package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// UserService provides the read-only user surface: friend lists and
// recent track listings.
type UserService struct {
	client *Client
}

// GetFriends returns one page of the given user's friend list.
//
// Requires authentication.
func (u *UserService) GetFriends(ctx context.Context, user string, page, limit int) ([]Friend, error) {
	params := map[string]string{"user": user}
	if page > 0 {
		params["page"] = strconv.Itoa(page)
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}

	body, err := u.client.call(ctx, "user.getFriends", params, true, false)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Friends struct {
			User []struct {
				Name     string `json:"name"`
				RealName string `json:"realname"`
				URL      string `json:"url"`
				Image    []struct {
					Size string `json:"size"`
					URL  string `json:"#text"`
				} `json:"image"`
			} `json:"user"`
		} `json:"friends"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &DecodeError{Err: err, Body: body}
	}

	friends := make([]Friend, 0, len(envelope.Friends.User))
	for _, f := range envelope.Friends.User {
		friend := Friend{
			Name:     f.Name,
			RealName: f.RealName,
			URL:      f.URL,
		}
		for _, img := range f.Image {
			if img.Size == "medium" {
				friend.ImageURL = img.URL
				break
			}
		}
		friends = append(friends, friend)
	}

	return friends, nil
}

// GetRecentTracks returns one page of a user's listening history, most
// recent first. The head entry may represent the track currently
// playing, flagged with NowPlaying and carrying no timestamp.
//
// This is a public call and does not require a session key.
func (u *UserService) GetRecentTracks(ctx context.Context, user string, page, limit int) ([]RecentTrack, error) {
	if user == "" {
		return nil, fmt.Errorf("lastfm: user is required")
	}

	params := map[string]string{"user": user}
	if page > 0 {
		params["page"] = strconv.Itoa(page)
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}

	body, err := u.client.call(ctx, "user.getRecentTracks", params, false, false)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		RecentTracks struct {
			Track []struct {
				Artist struct {
					Name string `json:"#text"`
				} `json:"artist"`
				Album struct {
					Name string `json:"#text"`
				} `json:"album"`
				Name string `json:"name"`
				URL  string `json:"url"`
				Date struct {
					UTS string `json:"uts"`
				} `json:"date"`
				Attr struct {
					NowPlaying string `json:"nowplaying"`
				} `json:"@attr"`
			} `json:"track"`
		} `json:"recenttracks"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &DecodeError{Err: err, Body: body}
	}

	tracks := make([]RecentTrack, 0, len(envelope.RecentTracks.Track))
	for _, t := range envelope.RecentTracks.Track {
		track := RecentTrack{
			Artist:     t.Artist.Name,
			Track:      t.Name,
			Album:      t.Album.Name,
			URL:        t.URL,
			NowPlaying: t.Attr.NowPlaying == "true",
		}
		if t.Date.UTS != "" {
			if uts, err := strconv.ParseInt(t.Date.UTS, 10, 64); err == nil {
				track.PlayedAt = time.Unix(uts, 0)
			}
		}
		tracks = append(tracks, track)
	}

	return tracks, nil
}
