package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/etches/etches/internal/config"
	"github.com/etches/etches/internal/daemon"
	"github.com/etches/etches/internal/service"
)

var (
	signoutService string
	signoutRevoke  bool
)

var signoutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out of a scrobble service",
	Long: `Sign out of a scrobble service, clearing stored credentials.

By default only local credentials are removed. For services that
support it, --revoke also invalidates the session on the remote side
before clearing local state.`,
	RunE: runSignout,
}

func init() {
	rootCmd.AddCommand(signoutCmd)

	signoutCmd.Flags().StringVarP(&signoutService, "service", "s", "lastfm", "Service to sign out of (lastfm, custom)")
	signoutCmd.Flags().BoolVar(&signoutRevoke, "revoke", false, "Also invalidate the session remotely, when supported")
}

func runSignout(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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

	services, err := daemon.BuildServices(cfg, st, nil, nil, zerolog.Nop())
	if err != nil {
		return err
	}

	for _, svc := range services {
		if svc.ID() != signoutService {
			continue
		}

		if signoutRevoke {
			r, ok := svc.(service.Revocable)
			if !ok {
				return fmt.Errorf("%s does not support remote revocation", svc.Name())
			}
			// Rehydrate credentials so the revocation call can
			// authenticate.
			if restorer, ok := svc.(interface{ Restore(context.Context) error }); ok {
				_ = restorer.Restore(ctx)
			}
			if err := r.Revoke(ctx); err != nil {
				return fmt.Errorf("failed to revoke session: %w", err)
			}
			fmt.Printf("✓ Revoked and signed out of %s\n", svc.Name())
			return nil
		}

		svc.SignOut()
		fmt.Printf("✓ Signed out of %s\n", svc.Name())
		return nil
	}

	return fmt.Errorf("service %q is not configured", signoutService)
}
