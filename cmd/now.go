package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/etches/etches/internal/config"
	"github.com/etches/etches/internal/nowplaying"
)

// nowCmd represents the now command
var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Display the currently playing track",
	Long: `Query the configured music player and display the currently playing track.

The output format can be customized in ~/.config/etches/config.yaml
using a Go template. Available fields: .Title, .Artist, .Album, .Duration

Exit codes:
  0 - Track is currently playing
  1 - No track playing, paused, or player not running`,
	RunE: runNow,
}

func init() {
	rootCmd.AddCommand(nowCmd)

	nowCmd.Flags().StringP("format", "f", "", "Output format template (overrides config)")
	nowCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled)")
	nowCmd.Flags().String("player", "", "Player to query (overrides config)")
}

func runNow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	formatFlag, _ := cmd.Flags().GetString("format")
	if formatFlag != "" {
		cfg.OutputFormat = formatFlag
	}

	player, _ := cmd.Flags().GetString("player")
	if player == "" {
		player = cfg.Player
	}

	registry := nowplaying.NewRegistry(
		nowplaying.NewMusicSource(),
		nowplaying.NewSpotifySource(),
	)
	src, err := registry.Lookup(player)
	if err != nil {
		return err
	}

	snap, err := src.FetchCurrentTrack(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current track: %w", err)
	}

	// Not playing: exit with code 1 for status bar consumers
	if snap == nil || !snap.Playing {
		os.Exit(1)
		return nil
	}

	output, err := formatSnapshot(snap, cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	width, _ := cmd.Flags().GetInt("width")
	if width > 0 {
		output = padToWidth(output, width)
	}

	fmt.Println(output)
	return nil
}

// formatSnapshot applies the template to the snapshot data
func formatSnapshot(snap *nowplaying.Snapshot, templateStr string) (string, error) {
	tmpl, err := template.New("output").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, snap); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return buf.String(), nil
}

// padToWidth pads or truncates text to a fixed display width. Width is
// measured in display columns, so emoji and CJK characters count by
// their visual width. Longer text is truncated with a "..." suffix,
// shorter text is padded with spaces.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	currentWidth := runewidth.StringWidth(text)

	if currentWidth > width {
		ellipsis := "..."
		ellipsisWidth := runewidth.StringWidth(ellipsis)

		if width <= ellipsisWidth {
			return runewidth.Truncate(ellipsis, width, "")
		}

		truncated := runewidth.Truncate(text, width-ellipsisWidth, "")
		result := truncated + ellipsis

		// Truncation of a wide rune can come up short a column
		if resultWidth := runewidth.StringWidth(result); resultWidth < width {
			return result + strings.Repeat(" ", width-resultWidth)
		}
		return result
	}

	if currentWidth < width {
		return text + strings.Repeat(" ", width-currentWidth)
	}

	return text
}
