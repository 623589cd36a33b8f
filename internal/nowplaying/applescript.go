package nowplaying

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// AppleScriptSource implements Source using osascript to query a macOS
// player application. Both Music and Spotify expose near-identical
// scripting dictionaries; Spotify reports durations in milliseconds.
type AppleScriptSource struct {
	app        string
	durationMS bool
}

// NewMusicSource returns a source monitoring the Apple Music app.
func NewMusicSource() *AppleScriptSource {
	return &AppleScriptSource{app: "Music"}
}

// NewSpotifySource returns a source monitoring the Spotify app.
func NewSpotifySource() *AppleScriptSource {
	return &AppleScriptSource{app: "Spotify", durationMS: true}
}

// Name returns the player name this source monitors.
func (s *AppleScriptSource) Name() string {
	return s.app
}

// IsRunning checks if the player application is currently running.
func (s *AppleScriptSource) IsRunning(ctx context.Context) (bool, error) {
	script := fmt.Sprintf(`tell application "System Events" to (name of processes) contains %q`, s.app)

	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("failed to check if %s is running: %w", s.app, err)
	}

	return strings.TrimSpace(string(output)) == "true", nil
}

// FetchCurrentTrack returns the currently playing or paused track.
// A single osascript call checks that the player is running and reads
// the track data atomically, avoiding two subprocess spawns per poll.
func (s *AppleScriptSource) FetchCurrentTrack(ctx context.Context) (*Snapshot, error) {
	script := fmt.Sprintf(`
tell application "System Events"
	if not ((name of processes) contains %[1]q) then
		return "not_running"
	end if
end tell
tell application %[1]q
	if player state is stopped then
		return "stopped"
	else
		set trackName to name of current track
		set trackArtist to artist of current track
		set trackAlbum to album of current track
		set trackDuration to duration of current track
		set playerState to player state as string

		return trackName & "|||" & trackArtist & "|||" & trackAlbum & "|||" & trackDuration & "|||" & playerState
	end if
end tell`, s.app)

	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("osascript error: %s", string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("failed to execute osascript: %w", err)
	}

	result := strings.TrimSpace(string(output))

	if result == "not_running" || result == "stopped" {
		return nil, nil
	}

	return s.parseOutput(result)
}

// parseOutput parses the delimited output from the AppleScript.
func (s *AppleScriptSource) parseOutput(output string) (*Snapshot, error) {
	parts := strings.Split(output, "|||")
	if len(parts) != 5 {
		return nil, fmt.Errorf("expected 5 parts, got %d: %q", len(parts), output)
	}

	title := strings.TrimSpace(parts[0])
	artist := strings.TrimSpace(parts[1])
	album := strings.TrimSpace(parts[2])
	durationStr := strings.TrimSpace(parts[3])
	stateStr := strings.TrimSpace(parts[4])

	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration %q: %w", durationStr, err)
	}
	if s.durationMS {
		duration /= 1000
	}

	return &Snapshot{
		Playing:   stateStr == "playing",
		Title:     title,
		Artist:    artist,
		Album:     album,
		Duration:  duration,
		SourceApp: s.app,
	}, nil
}
