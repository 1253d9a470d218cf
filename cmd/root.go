package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/teemow/mailcontract/internal/config"
)

// configKeyAnnotation marks a flag as an override for a config key.
const configKeyAnnotation = "mailcontract/config-key"

// skipConfigAnnotation marks commands that run without loading the config.
const skipConfigAnnotation = "mailcontract/skip-config"

// rootCmd represents the base command for the mailcontract application
var rootCmd = &cobra.Command{
	Use:   "mailcontract",
	Short: "Turns an email and its attachments into a contract document",
	Long: `mailcontract connects to a Gmail mailbox, lets you pick a message, extracts
the text of its PDF, DOCX and TXT attachments, summarizes it and renders a
contract document (DOCX, Markdown or HTML).

It can run as:
  - A CLI (list, show, generate)
  - An interactive shell
  - An MCP (Model Context Protocol) server for AI assistants`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// version will be set by main
var version = "dev"

var (
	cfgFile   string
	envFile   string
	debugMode bool
	logFormat string

	v   *viper.Viper
	cfg *config.Config
)

// SetVersion sets the version for the root command
func SetVersion(ver string) {
	version = ver
	rootCmd.Version = ver
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mailcontract version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default: ~/.config/mailcontract/config.yaml)")
	flags.StringVar(&envFile, "env-file", "", "Optional .env file loaded before the config (default: ./.env)")
	flags.BoolVar(&debugMode, "debug", false, "Enable debug logging")
	flags.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	bindConfigFlag(flags, "debug", "log.debug")
	bindConfigFlag(flags, "log-format", "log.format")

	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newShellCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}

// bindConfigFlag lets the flag override key once the command runs.
func bindConfigFlag(flags *pflag.FlagSet, name, key string) {
	_ = flags.SetAnnotation(name, configKeyAnnotation, []string{key})
}

// bindFlags binds every annotated flag of cmd. Only the running command's
// flags are bound, so commands sharing a key do not shadow each other.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys, ok := f.Annotations[configKeyAnnotation]
		if !ok || err != nil {
			return
		}
		err = v.BindPFlag(keys[0], f)
	})
	return err
}

func initConfig(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipConfigAnnotation] == "true" {
		return nil
	}

	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	v = config.NewViper()
	if err := bindFlags(v, cmd); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	loaded, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Log.Format, cfg.Log.Debug))
	return nil
}

// newLogger writes to w, which is stderr so the stdio transport keeps
// stdout to itself.
func newLogger(w io.Writer, format string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
