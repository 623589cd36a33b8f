package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/etches/etches/internal/config"
	"github.com/etches/etches/internal/friends"
	"github.com/etches/etches/pkg/lastfm"
)

var (
	friendsUser  string
	friendsLimit int
)

var friendsCmd = &cobra.Command{
	Use:   "friends",
	Short: "Show what your Last.fm friends are listening to",
	Long: `List your Last.fm friends together with the most recent track each
one played. Friends whose activity cannot be fetched are still listed.`,
	RunE: runFriends,
}

func init() {
	rootCmd.AddCommand(friendsCmd)

	friendsCmd.Flags().StringVarP(&friendsUser, "user", "u", "", "Username to list friends for (default: authenticated user)")
	friendsCmd.Flags().IntVarP(&friendsLimit, "limit", "n", 25, "Maximum number of friends to list")
}

func runFriends(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.LastFM.APIKey == "" || cfg.LastFM.APISecret == "" {
		return fmt.Errorf("Last.fm credentials not configured. Run 'etches auth' first")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	sessionKey, err := st.Get(ctx, "lastfm", "session_key")
	if err != nil {
		return fmt.Errorf("not authenticated with Last.fm. Run 'etches auth' first")
	}

	user := friendsUser
	if user == "" {
		user, err = st.Get(ctx, "lastfm", "username")
		if err != nil {
			return fmt.Errorf("no username stored; pass --user")
		}
	}

	client, err := lastfm.NewClient(lastfm.Config{
		APIKey:     cfg.LastFM.APIKey,
		APISecret:  cfg.LastFM.APISecret,
		SessionKey: sessionKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	fetcher := friends.New(client, zerolog.Nop())
	activities, err := fetcher.Fetch(ctx, user, 0, friendsLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch friends: %w", err)
	}

	if len(activities) == 0 {
		fmt.Printf("%s has no friends on Last.fm yet.\n", user)
		return nil
	}

	for _, a := range activities {
		fmt.Println(formatActivity(a))
	}
	return nil
}

// formatActivity renders one friend as a fixed-width row.
func formatActivity(a friends.Activity) string {
	name := padToWidth(a.Name, 20)

	switch {
	case a.Err != nil:
		return fmt.Sprintf("%s  (activity unavailable)", name)
	case a.Track == nil:
		return fmt.Sprintf("%s  (no listening history)", name)
	case a.Track.NowPlaying:
		return fmt.Sprintf("%s  ♪ %s - %s", name, a.Track.Artist, a.Track.Track)
	default:
		return fmt.Sprintf("%s    %s - %s (%s)", name, a.Track.Artist, a.Track.Track,
			formatAgo(a.Track.PlayedAt))
	}
}

// formatAgo renders a timestamp as a coarse relative age.
func formatAgo(t time.Time) string {
	if t.IsZero() {
		return "some time ago"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
