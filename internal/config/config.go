// Package config loads the mailcontract settings from a YAML file, the
// environment and an optional .env file.
//
// Keys are dotted paths such as "mail.address". Every key can be set from
// the environment by upper-casing it, replacing dots with underscores and
// adding the MAILCONTRACT_ prefix (MAILCONTRACT_MAIL_ADDRESS).
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"

	"github.com/teemow/mailcontract/internal/contract"
	"github.com/teemow/mailcontract/internal/gmail"
	"github.com/teemow/mailcontract/internal/google"
	"github.com/teemow/mailcontract/internal/imap"
	"github.com/teemow/mailcontract/internal/instrumentation"
	"github.com/teemow/mailcontract/internal/logging"
	"github.com/teemow/mailcontract/internal/mailbox"
	"github.com/teemow/mailcontract/internal/session"
	"github.com/teemow/mailcontract/internal/summarize"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "MAILCONTRACT"

// Token store backends.
const (
	TokenStoreFile    = "file"
	TokenStoreKeyring = "keyring"
)

// Server transports.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)

// Config is the effective configuration.
type Config struct {
	Mail     MailConfig     `mapstructure:"mail" yaml:"mail"`
	IMAP     IMAPConfig     `mapstructure:"imap" yaml:"imap"`
	Gmail    GmailConfig    `mapstructure:"gmail" yaml:"gmail"`
	OAuth    OAuthConfig    `mapstructure:"oauth" yaml:"oauth"`
	Summary  SummaryConfig  `mapstructure:"summary" yaml:"summary"`
	Contract ContractConfig `mapstructure:"contract" yaml:"contract"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`

	Instrumentation instrumentation.Config `mapstructure:"instrumentation" yaml:"instrumentation"`
}

// MailConfig holds the connection defaults used by the CLI.
type MailConfig struct {
	Method      string `mapstructure:"method" yaml:"method"`
	Address     string `mapstructure:"address" yaml:"address"`
	AppPassword string `mapstructure:"app_password" yaml:"app_password"`
	Mailbox     string `mapstructure:"mailbox" yaml:"mailbox"`
	Limit       int    `mapstructure:"limit" yaml:"limit"`

	// Account names the stored OAuth token.
	Account string `mapstructure:"account" yaml:"account"`
}

type IMAPConfig struct {
	Addr          string        `mapstructure:"addr" yaml:"addr"`
	AllMailFolder string        `mapstructure:"all_mail_folder" yaml:"all_mail_folder"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

type GmailConfig struct {
	Query string `mapstructure:"query" yaml:"query"`
}

type OAuthConfig struct {
	ClientID        string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret    string `mapstructure:"client_secret" yaml:"client_secret"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
	RedirectURL     string `mapstructure:"redirect_url" yaml:"redirect_url"`
	TokenStore      string `mapstructure:"token_store" yaml:"token_store"`
	TokenDir        string `mapstructure:"token_dir" yaml:"token_dir"`
}

type SummaryConfig struct {
	Mode    string        `mapstructure:"mode" yaml:"mode"`
	Budget  int           `mapstructure:"budget" yaml:"budget"`
	Model   string        `mapstructure:"model" yaml:"model"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type ContractConfig struct {
	Format    string `mapstructure:"format" yaml:"format"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

type ServerConfig struct {
	Transport      string        `mapstructure:"transport" yaml:"transport"`
	HTTPAddr       string        `mapstructure:"http_addr" yaml:"http_addr"`
	SessionTimeout time.Duration `mapstructure:"session_timeout" yaml:"session_timeout"`
}

type LogConfig struct {
	Debug  bool   `mapstructure:"debug" yaml:"debug"`
	Format string `mapstructure:"format" yaml:"format"`
}

var instrumentationDefaults = instrumentation.DefaultConfig()

var defaults = map[string]any{
	"mail.method":       string(mailbox.MethodIMAP),
	"mail.address":      "",
	"mail.app_password": "",
	"mail.mailbox":      imap.DefaultMailbox,
	"mail.limit":        mailbox.DefaultFetchLimit,
	"mail.account":      "default",

	"imap.addr":            imap.DefaultAddr,
	"imap.all_mail_folder": imap.DefaultAllMailFolder,
	"imap.dial_timeout":    imap.DefaultDialTimeout,

	"gmail.query": "",

	"oauth.client_id":        "",
	"oauth.client_secret":    "",
	"oauth.credentials_file": "",
	"oauth.redirect_url":     "http://127.0.0.1:8085/oauth/callback",
	"oauth.token_store":      TokenStoreFile,
	"oauth.token_dir":        "",

	"summary.mode":     string(summarize.ModeSimple),
	"summary.budget":   summarize.DefaultBudget,
	"summary.model":    string(summarize.DefaultModel),
	"summary.api_key":  "",
	"summary.base_url": "",
	"summary.timeout":  30 * time.Second,

	"contract.format":     string(contract.FormatDOCX),
	"contract.output_dir": ".",

	"server.transport":       TransportStdio,
	"server.http_addr":       ":8080",
	"server.session_timeout": session.DefaultIdleTimeout,

	"log.debug":  false,
	"log.format": "text",

	"instrumentation.enabled":             instrumentationDefaults.Enabled,
	"instrumentation.service_name":        instrumentationDefaults.ServiceName,
	"instrumentation.service_instance_id": "",
	"instrumentation.metrics_exporter":    instrumentationDefaults.MetricsExporter,
	"instrumentation.tracing_exporter":    instrumentationDefaults.TracingExporter,
	"instrumentation.otlp_endpoint":       "",
	"instrumentation.otlp_insecure":       false,
	"instrumentation.trace_sampling_rate": instrumentationDefaults.TraceSamplingRate,
	"instrumentation.detailed_labels":     false,
	"instrumentation.audit.enabled":       instrumentationDefaults.AuditLogging.Enabled,
	"instrumentation.audit.include_pii":   false,
}

// DefaultFile returns ~/.config/mailcontract/config.yaml.
func DefaultFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailcontract", "config.yaml")
}

// NewViper returns a viper instance carrying every default and the
// environment binding. Callers may bind command line flags to it before
// calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads path into the process environment. A missing file is
// not an error. Variables already set are left untouched.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("checking env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("unable to load environment variables from %s: %w", path, err)
	}
	return nil
}

// Load reads file into v and decodes the result. When file is empty the
// default location is tried and its absence is ignored; an explicitly named
// file must exist.
func Load(v *viper.Viper, file string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	v.SetConfigType("yaml")

	explicit := file != ""
	if explicit {
		v.SetConfigFile(file)
	} else {
		v.SetConfigFile(DefaultFile())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		missing := errors.As(err, &notFound) || errors.As(err, &pathErr)
		if explicit || !missing {
			return nil, fmt.Errorf("reading config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	var errs []error
	if _, err := mailbox.ParseMethod(c.Mail.Method); err != nil {
		errs = append(errs, err)
	}
	if _, err := summarize.ParseMode(c.Summary.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := contract.ParseFormat(c.Contract.Format); err != nil {
		errs = append(errs, err)
	}
	switch c.OAuth.TokenStore {
	case TokenStoreFile, TokenStoreKeyring:
	default:
		errs = append(errs, fmt.Errorf("unknown token store %q (supported: file, keyring)", c.OAuth.TokenStore))
	}
	switch c.Server.Transport {
	case TransportStdio, TransportStreamableHTTP:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q (supported: stdio, streamable-http)", c.Server.Transport))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q (supported: text, json)", c.Log.Format))
	}
	if c.Instrumentation.Enabled {
		if err := c.Instrumentation.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Redacted returns a copy with every secret replaced by a length marker.
func (c Config) Redacted() Config {
	redact := func(s string) string {
		if s == "" {
			return ""
		}
		return logging.SanitizeToken(s)
	}
	c.Mail.AppPassword = redact(c.Mail.AppPassword)
	c.OAuth.ClientSecret = redact(c.OAuth.ClientSecret)
	c.Summary.APIKey = redact(c.Summary.APIKey)
	return c
}

// YAML encodes the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return out, nil
}

// Method returns the parsed mail method. Load has already validated it.
func (c *Config) Method() mailbox.Method {
	m, _ := mailbox.ParseMethod(c.Mail.Method)
	return m
}

// Format returns the parsed contract format.
func (c *Config) Format() contract.Format {
	f, _ := contract.ParseFormat(c.Contract.Format)
	return f
}

// SummarizeConfig converts the summary settings.
func (c *Config) SummarizeConfig() summarize.Config {
	mode, _ := summarize.ParseMode(c.Summary.Mode)
	return summarize.Config{
		Mode:    mode,
		Budget:  c.Summary.Budget,
		Model:   c.Summary.Model,
		APIKey:  c.Summary.APIKey,
		BaseURL: c.Summary.BaseURL,
		Timeout: c.Summary.Timeout,
	}
}

// InstrumentationConfig returns the instrumentation settings for a binary
// of the given version.
func (c *Config) InstrumentationConfig(version string) instrumentation.Config {
	ic := c.Instrumentation
	ic.ServiceVersion = version
	return ic
}

// IMAPOptions converts the IMAP settings.
func (c *Config) IMAPOptions() imap.Options {
	return imap.Options{
		Addr:          c.IMAP.Addr,
		Mailbox:       c.Mail.Mailbox,
		AllMailFolder: c.IMAP.AllMailFolder,
		DialTimeout:   c.IMAP.DialTimeout,
	}
}

// GoogleOAuth converts the OAuth client settings.
func (c *Config) GoogleOAuth() google.OAuthConfig {
	return google.OAuthConfig{
		ClientID:        c.OAuth.ClientID,
		ClientSecret:    c.OAuth.ClientSecret,
		CredentialsFile: c.OAuth.CredentialsFile,
		RedirectURL:     c.OAuth.RedirectURL,
	}
}

// TokenStore opens the configured token store.
func (c *Config) TokenStore() (google.TokenStore, error) {
	dir := c.OAuth.TokenDir
	if dir == "" {
		dir = google.DefaultTokenDir()
	}
	if c.OAuth.TokenStore == TokenStoreKeyring {
		return google.OpenKeyringTokenStore(filepath.Join(dir, "keyring"))
	}
	return google.NewFileTokenStore(dir), nil
}

// GmailTokenSource returns a refreshing token source for the stored token
// of account.
func (c *Config) GmailTokenSource(ctx context.Context, account string) (oauth2.TokenSource, error) {
	if account == "" {
		account = c.Mail.Account
	}
	conf, err := c.GoogleOAuth().Config()
	if err != nil {
		return nil, err
	}
	store, err := c.TokenStore()
	if err != nil {
		return nil, err
	}
	return google.TokenSource(ctx, conf, store, account)
}

// ConnectParams are the values a user supplies for one connect action.
// Empty fields fall back to the configuration.
type ConnectParams struct {
	Method      string
	Address     string
	AppPassword string
	Mailbox     string
	Account     string
	Limit       int
}

// ConnectRequest resolves p against the configuration. The configured app
// password is only used for the configured address. A missing Gmail token
// is not an error here: Credentials.Validate reports it before dialing.
func (c *Config) ConnectRequest(ctx context.Context, p ConnectParams) (mailbox.ConnectRequest, error) {
	methodName := p.Method
	if methodName == "" {
		methodName = c.Mail.Method
	}
	method, err := mailbox.ParseMethod(methodName)
	if err != nil {
		return mailbox.ConnectRequest{}, err
	}

	address := strings.TrimSpace(p.Address)
	if address == "" {
		address = c.Mail.Address
	}
	mbox := p.Mailbox
	if mbox == "" {
		mbox = c.Mail.Mailbox
	}
	limit := p.Limit
	if limit == 0 {
		limit = c.Mail.Limit
	}

	req := mailbox.ConnectRequest{
		Credentials: mailbox.Credentials{Method: method, Address: address},
		Mailbox:     mbox,
		Limit:       limit,
	}

	switch method {
	case mailbox.MethodIMAP:
		req.Credentials.Secret = p.AppPassword
		if req.Credentials.Secret == "" && address == c.Mail.Address {
			req.Credentials.Secret = c.Mail.AppPassword
		}
	case mailbox.MethodGmail:
		ts, err := c.GmailTokenSource(ctx, p.Account)
		switch {
		case errors.Is(err, google.ErrNoToken):
		case err != nil:
			return mailbox.ConnectRequest{}, err
		default:
			req.Credentials.TokenSource = ts
		}
	}
	return req, nil
}

// SessionOptions builds the pipeline options shared by every session.
func (c *Config) SessionOptions(logger *slog.Logger, metrics *instrumentation.Metrics) (session.Options, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sc := c.SummarizeConfig()
	summarizer, err := summarize.New(sc,
		summarize.WithLogger(logger),
		summarize.WithFallbackHook(session.FallbackHook),
	)
	if err != nil {
		return session.Options{}, err
	}

	imapOpts := c.IMAPOptions()
	imapOpts.Logger = logger

	return session.Options{
		Connector: &session.Connector{
			IMAP:  imapOpts,
			Gmail: gmail.Options{Query: c.Gmail.Query, Logger: logger},
		},
		Summarizer:  summarizer,
		SummaryMode: sc.Mode,
		Format:      c.Format(),
		Logger:      logger,
		Metrics:     metrics,
	}, nil
}
