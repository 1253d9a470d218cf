package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultModel is used when no model is configured.
const DefaultModel = shared.ChatModelGPT4oMini

var (
	// ErrModelUnavailable is returned when model mode is selected without
	// an API key.
	ErrModelUnavailable = errors.New("summarization model unavailable")

	// ErrEmptySummary is returned when the model answers with no text.
	ErrEmptySummary = errors.New("summarization model returned an empty summary")
)

// OpenAI summarizes through a chat completion endpoint. Requests are not
// retried; failures are left to the Fallback.
type OpenAI struct {
	client  openai.Client
	model   shared.ChatModel
	ready   bool
	timeout time.Duration
}

// NewOpenAI builds the model summarizer from cfg.
func NewOpenAI(cfg Config, extra ...option.RequestOption) *OpenAI {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)

	model := shared.ChatModel(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	return &OpenAI{
		client:  openai.NewClient(opts...),
		model:   model,
		ready:   cfg.APIKey != "",
		timeout: cfg.Timeout,
	}
}

func (s *OpenAI) Summarize(ctx context.Context, text string, bounds Bounds) (string, error) {
	if !s.ready {
		return "", ErrModelUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if bounds.MaxTokens <= 0 {
		bounds = DefaultBounds
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	completion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(bounds)),
			openai.UserMessage(text),
		},
		Model:               s.model,
		MaxCompletionTokens: openai.Int(int64(bounds.MaxTokens)),
		Temperature:         openai.Float(0.3),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrEmptySummary
	}

	summary := strings.TrimSpace(completion.Choices[0].Message.Content)
	if summary == "" {
		return "", ErrEmptySummary
	}
	return summary, nil
}

func systemPrompt(b Bounds) string {
	return fmt.Sprintf("Summarize the following email and attachment text for use in a contract. "+
		"Write plain prose between %d and %d tokens long. Do not add information that is not in the text.",
		b.MinTokens, b.MaxTokens)
}
