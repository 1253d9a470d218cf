// Package summarize shortens the text extracted from a message before it is
// placed into a contract.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Mode selects the summarization strategy.
type Mode string

const (
	ModeSimple Mode = "simple"
	ModeModel  Mode = "model"
)

// ParseMode converts a configured mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSimple, "":
		return ModeSimple, nil
	case ModeModel:
		return ModeModel, nil
	}
	return "", fmt.Errorf("unknown summary mode %q (supported: simple, model)", s)
}

// Bounds are the length limits handed to a model, in tokens.
type Bounds struct {
	MinTokens int
	MaxTokens int
}

// DefaultBounds matches the lengths used for contract summaries.
var DefaultBounds = Bounds{MinTokens: 40, MaxTokens: 150}

// Summarizer produces a shorter version of text.
type Summarizer interface {
	Summarize(ctx context.Context, text string, bounds Bounds) (string, error)
}

// Config selects and configures a Summarizer.
type Config struct {
	Mode Mode

	// Budget is the character budget of the truncating summarizer.
	Budget int

	// Model settings, used when Mode is ModeModel.
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type options struct {
	logger     *slog.Logger
	onFallback func(ctx context.Context, err error)
}

// Option customizes New.
type Option func(*options)

// WithLogger sets the logger used for fallback warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFallbackHook registers fn to be called whenever the model fails and
// the truncating summarizer is used instead.
func WithFallbackHook(fn func(ctx context.Context, err error)) Option {
	return func(o *options) {
		o.onFallback = fn
	}
}

// New returns the Summarizer for cfg. Model mode is always wrapped in a
// Fallback to truncation.
func New(cfg Config, opts ...Option) (Summarizer, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	truncator := NewTruncator(cfg.Budget)

	switch cfg.Mode {
	case ModeSimple, "":
		return truncator, nil
	case ModeModel:
		return &Fallback{
			Primary:    NewOpenAI(cfg),
			Secondary:  truncator,
			Logger:     o.logger,
			OnFallback: o.onFallback,
		}, nil
	}
	return nil, fmt.Errorf("unknown summary mode %q", cfg.Mode)
}
