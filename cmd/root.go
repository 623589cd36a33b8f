package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "etches",
	Short: "Music scrobbler for Last.fm and self-hosted backends",
	Long: `etches is a music scrobbler daemon.

It runs as a background daemon that monitors a music player (Apple
Music or Spotify), tracks playback, and scrobbles tracks to every
configured service: Last.fm and optionally a self-hosted scrobble
backend.

It also provides CLI commands to query the currently playing track,
list friend activity, and inspect the local scrobble history.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
