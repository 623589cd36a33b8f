// Package friends aggregates friend listening activity: the friend
// list plus each friend's most recent track, fetched concurrently.
package friends

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/etches/etches/pkg/lastfm"
)

// Activity is one friend together with their most recent track. Track
// is nil when the friend has no listening history or when the fetch for
// that friend failed; Err carries the failure in the latter case.
type Activity struct {
	Name     string
	RealName string
	URL      string
	ImageURL string
	Track    *lastfm.RecentTrack
	Err      error
}

// Fetcher pulls friend activity from Last.fm.
type Fetcher struct {
	client *lastfm.Client
	logger zerolog.Logger
}

// New creates a Fetcher backed by the given client.
func New(client *lastfm.Client, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		logger: logger.With().Str("component", "friends").Logger(),
	}
}

// Fetch returns one page of the user's friends, each annotated with
// their most recent track. The per-friend track fetches run
// concurrently once the friend list resolves, and a failure for one
// friend never discards the results for the others.
func (f *Fetcher) Fetch(ctx context.Context, user string, page, limit int) ([]Activity, error) {
	list, err := f.client.User().GetFriends(ctx, user, page, limit)
	if err != nil {
		return nil, err
	}

	activities := make([]Activity, len(list))

	var wg sync.WaitGroup
	for i, friend := range list {
		activities[i] = Activity{
			Name:     friend.Name,
			RealName: friend.RealName,
			URL:      friend.URL,
			ImageURL: friend.ImageURL,
		}

		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()

			tracks, err := f.client.User().GetRecentTracks(ctx, name, 0, 1)
			if err != nil {
				f.logger.Warn().Err(err).Str("friend", name).Msg("Error fetching recent track")
				activities[i].Err = err
				return
			}
			if len(tracks) > 0 {
				track := tracks[0]
				activities[i].Track = &track
			}
		}(i, friend.Name)
	}
	wg.Wait()

	return activities, nil
}
