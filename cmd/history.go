package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/etches/etches/internal/config"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the local scrobble history",
	Long: `Show recent scrobbles recorded by the daemon, most recent first,
including which services accepted each one.`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.RecentLog(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No scrobbles recorded yet.")
		return nil
	}

	for _, e := range entries {
		line := fmt.Sprintf("%s  %s - %s",
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			e.Artist, e.Track)
		if len(e.ServicesOK) > 0 {
			line += fmt.Sprintf("  [%s]", strings.Join(e.ServicesOK, ", "))
		}
		if len(e.ServicesFailed) > 0 {
			line += fmt.Sprintf("  (failed: %s)", strings.Join(e.ServicesFailed, ", "))
		}
		fmt.Println(line)
	}
	return nil
}
