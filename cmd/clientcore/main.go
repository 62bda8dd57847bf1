package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookline/bookline/clientcore/app"
	"github.com/bookline/bookline/clientcore/config"
	"github.com/bookline/bookline/clientcore/models"
	"github.com/bookline/bookline/clientcore/oauthbridge"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clientcore",
		Short: "Booking app session-lifecycle client",
		Long: `clientcore drives the client authentication and session-lifecycle
subsystem against a configured authentication server: principal
resolution, anti-forgery token handling, external login, and
inactivity expiry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		statusCmd(),
		loginCmd(),
		logoutCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*app.Dependencies, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, err
	}

	var logger *zap.Logger
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}

	navigate := func(path string) {
		fmt.Printf("-> %s\n", path)
	}
	return app.NewDependencies(ctx, cfg, logger, navigate)
}

func principalTypeFlag(cmd *cobra.Command) models.PrincipalType {
	if asProvider, _ := cmd.Flags().GetBool("provider"); asProvider {
		return models.PrincipalProvider
	}
	return models.PrincipalConsumer
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Resolve and print the current principals",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := setup(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := deps.ResolveAll(ctx); err != nil {
				return err
			}

			fmt.Printf("consumer: %s\n", deps.Consumer.CurrentPrincipal())
			fmt.Printf("provider: %s\n", deps.Provider.CurrentPrincipal())
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Run an external login round trip",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := setup(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			ptype := principalTypeFlag(cmd)
			authURL, err := deps.Bridge.Begin(ctx, &oauthbridge.ResumeState{
				PrincipalType: ptype,
			})
			if err != nil {
				return err
			}

			returned := make(chan struct{})
			var navIdentity *oauthbridge.Identity
			var query url.Values
			server := oauthbridge.NewReturnServer(
				deps.Config.OAuth.ListenAddr, deps.Config.OAuth.AllowedOrigin,
				func(nav *oauthbridge.Identity, q url.Values) {
					navIdentity = nav
					query = q
					close(returned)
				},
				deps.Logger)
			if err := server.Start(); err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			fmt.Printf("Open this URL to log in:\n\n  %s\n\n", authURL)

			interrupt, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()
			select {
			case <-returned:
			case <-interrupt.Done():
				return fmt.Errorf("login cancelled")
			}

			identity, state, err := deps.Bridge.Resume(navIdentity, query)
			if err != nil {
				return err
			}
			if identity == nil {
				fmt.Println("Provider returned no identity; nothing assigned.")
				return nil
			}

			target := deps.Consumer
			if ptype == models.PrincipalProvider {
				target = deps.Provider
			}
			if err := target.Assign(&models.Profile{
				ID:          identity.ExternalID,
				DisplayName: identity.DisplayName,
				Email:       identity.Email,
				AvatarURL:   identity.AvatarURL,
			}); err != nil {
				return err
			}

			fmt.Printf("Logged in as %s\n", target.CurrentPrincipal())
			if state.InWizard() {
				fmt.Printf("Resuming registration at step %d\n", state.WizardStep)
			}
			return nil
		},
	}
	cmd.Flags().Bool("provider", false, "log in to the provider slot")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Tear down the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := setup(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := deps.ResolveAll(ctx); err != nil {
				return err
			}
			if err := deps.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}
