package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/teemow/mailcontract/internal/google"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize read-only Gmail access for the gmail method",
		Long: `Authorize read-only Gmail access through OAuth.

Either run "auth callback", which serves the configured redirect URL locally
and waits for the consent page to redirect back, or run "auth url", open the
printed URL and pass the code (or the whole redirect URL) to "auth exchange".`,
	}

	var account string
	cmd.PersistentFlags().StringVar(&account, "account", "default", "Name the token is stored under")
	bindConfigFlag(cmd.PersistentFlags(), "account", "mail.account")

	cmd.AddCommand(&cobra.Command{
		Use:   "url",
		Short: "Print the consent page URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := cfg.GoogleOAuth().Config()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Open this URL in your browser and grant read-only Gmail access:")
			fmt.Fprintln(out)
			fmt.Fprintln(out, google.AuthURL(conf, google.NewState()))
			fmt.Fprintln(out)
			fmt.Fprintln(out, `Then run "mailcontract auth exchange <code or redirect URL>".`)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "exchange <code-or-redirect-url>",
		Short: "Exchange an authorization code for a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, store, err := oauthSetup()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			if _, err := google.Exchange(ctx, conf, store, cfg.Mail.Account, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token saved for account %s.\n", cfg.Mail.Account)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "callback",
		Short: "Serve the redirect URL locally and wait for the consent page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, store, err := oauthSetup()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			out := cmd.OutOrStdout()
			cb := google.NewCallback(conf, store, cfg.Mail.Account, slog.Default())
			err = cb.ListenAndWait(ctx, func(authURL string) {
				fmt.Fprintf(out, "Waiting for the redirect on %s\n", conf.RedirectURL)
				fmt.Fprintln(out, "Open this URL in your browser:")
				fmt.Fprintln(out)
				fmt.Fprintln(out, authURL)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Token saved for account %s.\n", cfg.Mail.Account)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether a token is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cfg.TokenStore()
			if err != nil {
				return err
			}
			if google.HasToken(store, cfg.Mail.Account) {
				fmt.Fprintf(cmd.OutOrStdout(), "A token is stored for account %s.\n", cfg.Mail.Account)
				return nil
			}
			return fmt.Errorf("%w: run \"mailcontract auth callback\" first", google.ErrNoToken)
		},
	})

	return cmd
}

func oauthSetup() (*oauth2.Config, google.TokenStore, error) {
	conf, err := cfg.GoogleOAuth().Config()
	if err != nil {
		return nil, nil, err
	}
	store, err := cfg.TokenStore()
	if err != nil {
		return nil, nil, err
	}
	return conf, store, nil
}

// commandContext cancels on interrupt.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
