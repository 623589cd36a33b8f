package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/etches/etches/internal/config"
	"github.com/etches/etches/internal/daemon"
	"github.com/etches/etches/internal/service"
)

var (
	authService  string
	authDirect   bool
	authUsername string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate with a scrobble service",
	Long: `Authenticate with a scrobble service to enable scrobbling.

For Last.fm this command walks through the token handshake:
1. You'll be prompted for your Last.fm API key and secret if not configured
2. A browser URL will be opened for you to authorize the application
3. After authorization, the session key is stored locally

With --direct, your Last.fm username and password are exchanged for a
session key without the browser step. The password is never stored.

For a self-hosted backend (--service custom), a browser-based OAuth
handshake runs against the base_url from your config file.

You can get Last.fm API credentials from: https://www.last.fm/api/account/create`,
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)

	authCmd.Flags().StringVarP(&authService, "service", "s", "lastfm", "Service to authenticate (lastfm, custom)")
	authCmd.Flags().BoolVar(&authDirect, "direct", false, "Use username/password instead of the browser handshake (lastfm only)")
	authCmd.Flags().StringVarP(&authUsername, "username", "u", "", "Username for --direct")
}

func runAuth(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reader := bufio.NewReader(os.Stdin)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if authService == "lastfm" {
		if err := promptAPICredentials(cfg, reader); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
	}
	if !cfg.ServiceEnabled(authService) {
		cfg.EnabledServices = append(cfg.EnabledServices, authService)
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	services, err := daemon.BuildServices(cfg, st, &terminalAuthorizer{reader: reader}, systemBrowser{}, zerolog.Nop())
	if err != nil {
		return err
	}

	var target service.Service
	for _, svc := range services {
		if svc.ID() == authService {
			target = svc
			break
		}
	}
	if target == nil {
		return fmt.Errorf("service %q is not configured", authService)
	}

	if authDirect {
		sk, ok := target.(*service.SessionKeyService)
		if !ok {
			return fmt.Errorf("--direct is only supported for lastfm")
		}
		return runDirectAuth(ctx, sk, reader)
	}

	if err := target.Authenticate(ctx); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	fmt.Printf("\n✓ Authenticated with %s\n", target.Name())
	fmt.Println("\nYou can now use 'etches daemon' to start scrobbling.")
	return nil
}

func promptAPICredentials(cfg *config.Config, reader *bufio.Reader) error {
	if cfg.LastFM.APIKey != "" && cfg.LastFM.APISecret != "" {
		return nil
	}

	fmt.Println("Last.fm Authentication")
	fmt.Println("======================")
	fmt.Println()
	fmt.Println("You can get API credentials from: https://www.last.fm/api/account/create")
	fmt.Println()

	if cfg.LastFM.APIKey == "" {
		fmt.Print("Enter your Last.fm API Key: ")
		apiKey, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		cfg.LastFM.APIKey = strings.TrimSpace(apiKey)
	}

	if cfg.LastFM.APISecret == "" {
		fmt.Print("Enter your Last.fm API Secret: ")
		apiSecret, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read API secret: %w", err)
		}
		cfg.LastFM.APISecret = strings.TrimSpace(apiSecret)
	}

	if cfg.LastFM.APIKey == "" || cfg.LastFM.APISecret == "" {
		return fmt.Errorf("API key and secret are required")
	}
	return nil
}

func runDirectAuth(ctx context.Context, svc *service.SessionKeyService, reader *bufio.Reader) error {
	username := authUsername
	if username == "" {
		fmt.Print("Last.fm username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	fmt.Print("Last.fm password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	if err := svc.AuthenticateDirect(ctx, username, string(password)); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	fmt.Printf("\n✓ Authenticated with %s as %s\n", svc.Name(), username)
	return nil
}

// terminalAuthorizer walks the user through the out-of-band browser
// authorization step.
type terminalAuthorizer struct {
	reader *bufio.Reader
}

func (a *terminalAuthorizer) Authorize(ctx context.Context, authURL string) (bool, error) {
	fmt.Println("\nPlease visit this URL to authorize etches:")
	fmt.Printf("\n  %s\n\n", authURL)
	_ = systemBrowser{}.Open(authURL)

	fmt.Println("After authorizing, press Enter to continue (or type 'cancel'):")

	lines := make(chan string, 1)
	go func() {
		line, err := a.reader.ReadString('\n')
		if err != nil {
			lines <- "cancel"
			return
		}
		lines <- strings.TrimSpace(strings.ToLower(line))
	}()

	select {
	case <-ctx.Done():
		return false, nil
	case line := <-lines:
		if line == "cancel" || line == "n" || line == "no" {
			return false, nil
		}
		return true, nil
	}
}

// systemBrowser opens URLs with the macOS open command.
type systemBrowser struct{}

func (systemBrowser) Open(url string) error {
	return exec.Command("open", url).Start()
}
