package summarize

import (
	"context"
	"log/slog"

	"github.com/teemow/mailcontract/internal/logging"
)

// Fallback uses Secondary whenever Primary fails.
type Fallback struct {
	Primary   Summarizer
	Secondary Summarizer
	Logger    *slog.Logger

	// OnFallback, when set, is called with the Primary error.
	OnFallback func(ctx context.Context, err error)
}

func (f *Fallback) Summarize(ctx context.Context, text string, bounds Bounds) (string, error) {
	summary, err := f.Primary.Summarize(ctx, text, bounds)
	if err == nil {
		return summary, nil
	}

	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("summarization model failed, falling back to simple summary",
		logging.Operation("summarize"),
		logging.Err(err))

	if f.OnFallback != nil {
		f.OnFallback(ctx, err)
	}
	return f.Secondary.Summarize(ctx, text, bounds)
}
