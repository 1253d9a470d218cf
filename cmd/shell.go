package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/teemow/mailcontract/internal/config"
	"github.com/teemow/mailcontract/internal/contract"
	"github.com/teemow/mailcontract/internal/mailbox"
	"github.com/teemow/mailcontract/internal/session"
)

const shellHelp = `Commands:
  connect [imap|gmail] [email]  Connect and list the newest messages
  list [n]                      List the newest n messages again
  select <id|#n>                Select a message by id or list position
  generate [format]             Generate the contract (docx, markdown, html)
  download [dir]                Write the generated contract to dir
  disconnect                    Close the connection
  help                          Show this help
  quit                          Leave the shell`

func newShellCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Run connect, select and generate interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			opts, err := cfg.SessionOptions(slog.Default(), nil)
			if err != nil {
				return err
			}
			sess := session.New(opts)
			defer closeSession(sess)

			return newShell(cfg, sess, cmd.InOrStdin(), cmd.OutOrStdout()).run(ctx)
		},
	}
	addMailFlags(cmd)
	addContractFlags(cmd)
	return cmd
}

type shell struct {
	cfg  *config.Config
	sess *session.Session
	in   *bufio.Scanner
	out  io.Writer

	// readSecret reads a line without echo. Nil when input is not a
	// terminal; secrets are then read like any other line.
	readSecret func() (string, error)
}

func newShell(c *config.Config, sess *session.Session, in io.Reader, out io.Writer) *shell {
	sh := &shell{cfg: c, sess: sess, in: bufio.NewScanner(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		sh.readSecret = func() (string, error) {
			b, err := term.ReadPassword(int(f.Fd()))
			return string(b), err
		}
	}
	return sh
}

// run reads commands until quit, end of input or ctx is done.
func (sh *shell) run(ctx context.Context) error {
	fmt.Fprintln(sh.out, `mailcontract shell. Type "help" for commands.`)
	for ctx.Err() == nil {
		line, ok := sh.prompt("mailcontract> ")
		if !ok {
			return sh.in.Err()
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		quit, err := sh.exec(ctx, fields[0], fields[1:])
		if err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
	return nil
}

// promptSecret is prompt without echo on a terminal.
func (sh *shell) promptSecret(p string) (string, bool) {
	if sh.readSecret == nil {
		return sh.prompt(p)
	}
	fmt.Fprint(sh.out, p)
	secret, err := sh.readSecret()
	fmt.Fprintln(sh.out)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(secret), true
}

func (sh *shell) prompt(p string) (string, bool) {
	fmt.Fprint(sh.out, p)
	if !sh.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(sh.in.Text()), true
}

func (sh *shell) exec(ctx context.Context, name string, args []string) (bool, error) {
	switch strings.ToLower(name) {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(sh.out, shellHelp)
	case "connect":
		return false, sh.connect(ctx, args)
	case "list":
		return false, sh.list(ctx, args)
	case "select":
		return false, sh.selectMessage(ctx, args)
	case "generate":
		return false, sh.generate(ctx, args)
	case "download":
		return false, sh.download(args)
	case "disconnect":
		if err := sh.sess.Disconnect(); err != nil {
			return false, err
		}
		fmt.Fprintln(sh.out, "Disconnected.")
	default:
		return false, fmt.Errorf("unknown command %q, try help", name)
	}
	return false, nil
}

func (sh *shell) connect(ctx context.Context, args []string) error {
	var params config.ConnectParams
	if len(args) > 0 {
		if _, err := mailbox.ParseMethod(args[0]); err == nil {
			params.Method = args[0]
			args = args[1:]
		}
	}
	if len(args) > 0 {
		params.Address = args[0]
	}

	req, err := sh.cfg.ConnectRequest(ctx, params)
	if err != nil {
		return err
	}
	if req.Credentials.Method == mailbox.MethodIMAP && req.Credentials.Secret == "" {
		secret, ok := sh.promptSecret("App password: ")
		if !ok {
			return errors.New("no app password given")
		}
		req.Credentials.Secret = secret
	}

	summaries, err := sh.sess.Connect(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Connected via %s.\n", req.Credentials.Method)
	printSummaries(sh.out, summaries)
	return nil
}

func (sh *shell) list(ctx context.Context, args []string) error {
	limit := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		limit = n
	}
	summaries, err := sh.sess.List(ctx, limit)
	if err != nil {
		return err
	}
	printSummaries(sh.out, summaries)
	return nil
}

func (sh *shell) selectMessage(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: select <id|#n>")
	}
	id := args[0]
	if pos, ok := strings.CutPrefix(id, "#"); ok {
		n, err := strconv.Atoi(pos)
		summaries := sh.sess.Summaries()
		if err != nil || n < 1 || n > len(summaries) {
			return fmt.Errorf("no message at position %s", pos)
		}
		id = summaries[n-1].ID
	}

	msg, err := sh.sess.Select(ctx, id)
	if err != nil {
		return err
	}
	printMessage(sh.out, msg)
	printNotices(sh.out, sh.sess.TakeNotices())
	return nil
}

func (sh *shell) generate(ctx context.Context, args []string) error {
	format := sh.cfg.Format()
	if len(args) > 0 {
		f, err := contract.ParseFormat(args[0])
		if err != nil {
			return err
		}
		format = f
	}

	doc, err := sh.sess.Generate(ctx, format)
	notices := sh.sess.TakeNotices()
	if errors.Is(err, session.ErrNoContent) {
		return err
	}
	printNotices(sh.out, notices)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Contract generated: %s (%d bytes)\n\nSummary:\n%s\n", doc.Filename, len(doc.Data), sh.sess.Summary())
	return nil
}

func (sh *shell) download(args []string) error {
	doc, err := sh.sess.Download()
	if err != nil {
		return err
	}
	dir := sh.cfg.Contract.OutputDir
	if len(args) > 0 {
		dir = args[0]
	}
	path, err := writeDocument(dir, doc)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Saved %s\n", path)
	return nil
}
