package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/teemow/mailcontract/internal/config"
	"github.com/teemow/mailcontract/internal/contract"
	"github.com/teemow/mailcontract/internal/logging"
	"github.com/teemow/mailcontract/internal/mailbox"
	"github.com/teemow/mailcontract/internal/session"
)

// addMailFlags adds the connection flags shared by list, show, generate
// and shell. Each one overrides its config key.
func addMailFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("method", "imap", "Connection method: imap (app password) or gmail (OAuth)")
	flags.String("email", "", "Gmail address (the app password is read from mail.app_password)")
	flags.String("mailbox", "INBOX", "Mailbox to read, ALL for the all-mail folder")
	flags.Int("limit", mailbox.DefaultFetchLimit, fmt.Sprintf("Number of newest messages to list (1-%d)", mailbox.MaxFetchLimit))
	flags.String("account", "default", "OAuth token name for the gmail method")

	bindConfigFlag(flags, "method", "mail.method")
	bindConfigFlag(flags, "email", "mail.address")
	bindConfigFlag(flags, "mailbox", "mail.mailbox")
	bindConfigFlag(flags, "limit", "mail.limit")
	bindConfigFlag(flags, "account", "mail.account")
}

// addContractFlags adds the flags of the generate step.
func addContractFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("format", string(contract.FormatDOCX), "Contract format: docx, markdown or html")
	flags.String("output", ".", "Directory the contract is written to")
	flags.String("summary-mode", "simple", "Summary mode: simple (truncation) or model")

	bindConfigFlag(flags, "format", "contract.format")
	bindConfigFlag(flags, "output", "contract.output_dir")
	bindConfigFlag(flags, "summary-mode", "summary.mode")
}

// connect opens a session for the configured mailbox. The caller closes it.
func connect(ctx context.Context) (*session.Session, []mailbox.MessageSummary, error) {
	opts, err := cfg.SessionOptions(slog.Default(), nil)
	if err != nil {
		return nil, nil, err
	}
	req, err := cfg.ConnectRequest(ctx, config.ConnectParams{})
	if err != nil {
		return nil, nil, err
	}

	sess := session.New(opts)
	summaries, err := sess.Connect(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect: %w", err)
	}
	return sess, summaries, nil
}

func closeSession(sess *session.Session) {
	if err := sess.Close(); err != nil {
		slog.Warn("closing mailbox failed", logging.Err(err))
	}
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest messages, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			sess, summaries, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closeSession(sess)

			printSummaries(cmd.OutOrStdout(), summaries)
			return nil
		},
	}
	addMailFlags(cmd)
	return cmd
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <message-id>",
		Short: "Show a message and its attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			sess, _, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closeSession(sess)

			msg, err := sess.Select(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to select message: %w", err)
			}
			printMessage(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	addMailFlags(cmd)
	return cmd
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <message-id>",
		Short: "Generate a contract document from a message and its attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			sess, _, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closeSession(sess)

			if _, err := sess.Select(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to select message: %w", err)
			}

			out := cmd.OutOrStdout()
			doc, err := sess.Generate(ctx, cfg.Format())
			notices := sess.TakeNotices()
			if errors.Is(err, session.ErrNoContent) {
				return err
			}
			printNotices(cmd.ErrOrStderr(), notices)
			if err != nil {
				return fmt.Errorf("failed to generate contract: %w", err)
			}

			path, err := writeDocument(cfg.Contract.OutputDir, doc)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Contract written to %s (%d bytes)\n\nSummary:\n%s\n", path, len(doc.Data), sess.Summary())
			return nil
		},
	}
	addMailFlags(cmd)
	addContractFlags(cmd)
	return cmd
}

// writeDocument writes doc into dir under its own filename and returns the
// path.
func writeDocument(dir string, doc *contract.Document) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(dir, doc.Filename)
	if err := os.WriteFile(path, doc.Data, 0o644); err != nil {
		return "", fmt.Errorf("writing contract: %w", err)
	}
	return path, nil
}
