// Package session runs the mail to contract pipeline for one user.
//
// A Session is created disconnected, opens a mailbox with Connect and then
// moves through message selection, text extraction and contract
// generation. Every method holds the session lock for its whole duration,
// so a session can be shared between goroutines but runs one step at a
// time.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/mailcontract/internal/contract"
	"github.com/teemow/mailcontract/internal/extract"
	"github.com/teemow/mailcontract/internal/instrumentation"
	"github.com/teemow/mailcontract/internal/logging"
	"github.com/teemow/mailcontract/internal/mailbox"
	"github.com/teemow/mailcontract/internal/summarize"
)

// Options configure a Session. Connector and Summarizer are required.
type Options struct {
	Connector   mailbox.Connector
	Summarizer  summarize.Summarizer
	SummaryMode summarize.Mode
	Bounds      summarize.Bounds
	Format      contract.Format
	Logger      *slog.Logger
	Metrics     *instrumentation.Metrics
}

func (o *Options) setDefaults() {
	if o.Summarizer == nil {
		o.Summarizer = summarize.NewTruncator(summarize.DefaultBudget)
		o.SummaryMode = summarize.ModeSimple
	}
	if o.SummaryMode == "" {
		o.SummaryMode = summarize.ModeSimple
	}
	if o.Bounds == (summarize.Bounds{}) {
		o.Bounds = summarize.DefaultBounds
	}
	if o.Format == "" {
		o.Format = contract.FormatDOCX
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Session is the explicit context of one pipeline run.
type Session struct {
	id   string
	opts Options

	mu       sync.Mutex
	logger   *slog.Logger
	state    State
	lastUsed time.Time

	source    mailbox.Source
	creds     mailbox.Credentials
	limit     int
	summaries []mailbox.MessageSummary
	message   *mailbox.Message
	extracted *extract.Result
	combined  string
	summary   string
	document  *contract.Document
	notices   []Notice
}

// New returns a disconnected session with a random id.
func New(opts Options) *Session {
	opts.setDefaults()
	id := uuid.NewString()
	return &Session{
		id:       id,
		opts:     opts,
		logger:   logging.WithSession(opts.Logger, id),
		lastUsed: time.Now(),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current pipeline state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastUsed returns the time of the last operation.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Address returns the mailbox address of the open connection.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.Address
}

// Method returns the connection method of the open connection.
func (s *Session) Method() mailbox.Method {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.Method
}

func (s *Session) touch() {
	s.lastUsed = time.Now()
}

func (s *Session) require(op string, min State) error {
	if s.state < min {
		return &StateError{Op: op, State: s.state, Required: min}
	}
	return nil
}

func (s *Session) notify(level NoticeLevel, format string, args ...any) {
	s.notices = append(s.notices, Notice{Level: level, Message: fmt.Sprintf(format, args...)})
}

// TakeNotices returns the notices produced since the last call and clears
// them.
func (s *Session) TakeNotices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

// reset drops everything derived from the connection. The caller closes
// the source.
func (s *Session) reset() {
	s.source = nil
	s.creds = mailbox.Credentials{}
	s.limit = 0
	s.summaries = nil
	s.resetSelection()
	s.state = Disconnected
}

func (s *Session) resetSelection() {
	s.message = nil
	s.extracted = nil
	s.combined = ""
	s.summary = ""
	s.document = nil
}

func (s *Session) closeSource() {
	if s.source == nil {
		return
	}
	if err := s.source.Close(); err != nil {
		s.logger.Warn("failed to close mailbox connection", logging.Err(err))
	}
	s.opts.Metrics.DecrementActiveSessions(context.Background())
}

func (s *Session) recordMail(ctx context.Context, method, op, address string, start time.Time, err error) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	s.opts.Metrics.RecordMailOperation(ctx, method, op, status, address, time.Since(start))
}

// Connect opens a mailbox and lists its newest messages. It is allowed in
// every state: an open connection is closed first and all earlier results
// are dropped.
func (s *Session) Connect(ctx context.Context, req mailbox.ConnectRequest) ([]mailbox.MessageSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	s.closeSource()
	s.reset()

	if s.opts.Connector == nil {
		return nil, errors.New("session has no mailbox connector")
	}
	if err := req.Credentials.Validate(); err != nil {
		return nil, err
	}

	method := string(req.Credentials.Method)
	ctx, span := instrumentation.StartMailSpan(ctx, method, instrumentation.OperationConnect,
		instrumentation.NewSpanAttributeBuilder().WithSession(s.id).Build()...)
	defer span.End()

	start := time.Now()
	src, err := s.opts.Connector.Connect(ctx, req)
	s.recordMail(ctx, method, instrumentation.OperationConnect, req.Credentials.Address, start, err)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		s.logger.Warn("mailbox connection failed", logging.Method(method), logging.Err(err))
		return nil, err
	}
	s.opts.Metrics.IncrementActiveSessions(ctx)

	s.source = src
	s.creds = req.Credentials
	s.limit = mailbox.ClampLimit(req.Limit)
	s.state = Connected

	summaries, err := s.list(ctx, s.limit)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		s.closeSource()
		s.reset()
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	s.logger.Info("mailbox connected",
		logging.Method(method),
		logging.UserHash(req.Credentials.Address),
		slog.Int("messages", len(summaries)))
	return summaries, nil
}

// List re-reads the newest messages. A limit of zero keeps the limit given
// to Connect. The pipeline state is not changed.
func (s *Session) List(ctx context.Context, limit int) ([]mailbox.MessageSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := s.require("list", Connected); err != nil {
		return nil, err
	}
	if limit > 0 {
		s.limit = mailbox.ClampLimit(limit)
	}
	return s.list(ctx, s.limit)
}

func (s *Session) list(ctx context.Context, limit int) ([]mailbox.MessageSummary, error) {
	method := string(s.creds.Method)
	ctx, span := instrumentation.StartMailSpan(ctx, method, instrumentation.OperationList)
	defer span.End()

	start := time.Now()
	summaries, err := s.source.List(ctx, limit)
	s.recordMail(ctx, method, instrumentation.OperationList, s.creds.Address, start, err)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	s.summaries = summaries
	return summaries, nil
}

// Summaries returns the result of the last listing.
func (s *Session) Summaries() []mailbox.MessageSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mailbox.MessageSummary(nil), s.summaries...)
}

// Select fetches a message by id and makes it the current message. Results
// of an earlier selection are dropped.
func (s *Session) Select(ctx context.Context, id string) (*mailbox.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := s.require("select", Connected); err != nil {
		return nil, err
	}

	id = strings.TrimSpace(id)
	method := string(s.creds.Method)
	ctx, span := instrumentation.StartMailSpan(ctx, method, instrumentation.OperationFetch,
		instrumentation.NewSpanAttributeBuilder().WithResource("message", id).Build()...)
	defer span.End()

	start := time.Now()
	msg, err := s.source.Fetch(ctx, id)
	s.recordMail(ctx, method, instrumentation.OperationFetch, s.creds.Address, start, err)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	s.resetSelection()
	s.message = msg
	s.state = MessageSelected

	for _, a := range msg.Attachments {
		s.notify(NoticeInfo, "Attachment found: %s", a.Filename)
	}
	s.logger.Info("message selected", logging.MessageID(id), slog.Int("attachments", len(msg.Attachments)))
	return msg, nil
}

// Message returns the selected message, or nil.
func (s *Session) Message() *mailbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// Extract runs text extraction over the attachments of the selected
// message and builds the combined text. Attachments that fail degrade to
// empty text with a warning notice.
func (s *Session) Extract(ctx context.Context) (*extract.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := s.require("extract", MessageSelected); err != nil {
		return nil, err
	}
	return s.extract(ctx)
}

func (s *Session) extract(ctx context.Context) (*extract.Result, error) {
	ctx, span := instrumentation.StartStepSpan(ctx, "extract")
	defer span.End()

	res, err := extract.All(ctx, s.message.Attachments, s.logger)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	for _, e := range res.Entries {
		result := instrumentation.ExtractionResultSuccess
		switch {
		case e.Unsupported():
			result = instrumentation.ExtractionResultUnsupported
			s.notify(NoticeInfo, "Unsupported attachment type: %s", e.Filename)
		case e.Failed():
			result = instrumentation.ExtractionResultFailed
			s.notify(NoticeWarning, "Could not extract text from %s: %v", e.Filename, e.Err)
		}
		s.opts.Metrics.RecordExtraction(ctx, e.Kind.String(), result)
		instrumentation.AddSpanEvent(span, "attachment", instrumentation.NewSpanAttributeBuilder().
			WithResource("attachment", e.Filename).
			WithAttachment(e.Kind.String(), result).
			Build()...)
	}

	s.extracted = res
	s.combined = CombineText(s.message.Body, res.Text())
	s.summary = ""
	s.document = nil
	s.state = TextExtracted
	instrumentation.SetSpanSuccess(span)
	return res, nil
}

// Summary returns the summary of the last generated contract.
func (s *Session) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Generate summarizes the combined text and renders the contract. Text is
// extracted first when Extract has not run for the selected message. An
// empty format uses the session default.
func (s *Session) Generate(ctx context.Context, format contract.Format) (*contract.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := s.require("generate", MessageSelected); err != nil {
		return nil, err
	}
	if format == "" {
		format = s.opts.Format
	}

	if s.state == MessageSelected {
		if _, err := s.extract(ctx); err != nil {
			return nil, err
		}
	}

	if strings.TrimSpace(s.combined) == "" {
		s.notify(NoticeWarning, "No text to summarize.")
		return nil, ErrNoContent
	}

	summary, err := s.summarize(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := s.render(ctx, contract.Build(summary, s.message.Body, s.extracted.Text()), format)
	if err != nil {
		return nil, err
	}

	s.summary = summary
	s.document = doc
	s.state = ContractGenerated
	s.logger.Info("contract generated", slog.String("format", string(format)), slog.Int("bytes", len(doc.Data)))
	return doc, nil
}

func (s *Session) summarize(ctx context.Context) (string, error) {
	ctx, span := instrumentation.StartStepSpan(ctx, "summarize")
	defer span.End()

	tracker := &fallbackTracker{}
	ctx = context.WithValue(ctx, fallbackKey{}, tracker)

	mode := string(s.opts.SummaryMode)
	start := time.Now()
	summary, err := s.opts.Summarizer.Summarize(ctx, s.combined, s.opts.Bounds)
	switch {
	case err != nil:
		s.opts.Metrics.RecordSummarization(ctx, mode, instrumentation.SummaryResultError, time.Since(start))
		instrumentation.SetSpanError(span, err)
		return "", fmt.Errorf("summarization failed: %w", err)
	case tracker.err != nil:
		s.opts.Metrics.RecordSummarization(ctx, mode, instrumentation.SummaryResultFallback, time.Since(start))
		s.notify(NoticeWarning, "Summarization model failed, using truncated text instead: %v", tracker.err)
	default:
		s.opts.Metrics.RecordSummarization(ctx, mode, instrumentation.SummaryResultSuccess, time.Since(start))
	}
	instrumentation.SetSpanSuccess(span)
	return summary, nil
}

func (s *Session) render(ctx context.Context, c contract.Contract, format contract.Format) (*contract.Document, error) {
	ctx, span := instrumentation.StartStepSpan(ctx, "render")
	defer span.End()

	doc, err := contract.Render(c, format)
	if err != nil {
		s.opts.Metrics.RecordRender(ctx, string(format), instrumentation.StatusError)
		instrumentation.SetSpanError(span, err)
		s.logger.Error("contract rendering failed", logging.Err(err))
		return nil, err
	}
	s.opts.Metrics.RecordRender(ctx, string(format), instrumentation.StatusSuccess)
	instrumentation.SetSpanSuccess(span)
	return doc, nil
}

// Download returns the generated document.
func (s *Session) Download() (*contract.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := s.require("download", ContractGenerated); err != nil {
		return nil, err
	}
	return s.document, nil
}

// Disconnect closes the mailbox connection and drops all results. It is a
// no-op on a disconnected session.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.source == nil {
		s.reset()
		return nil
	}

	err := s.source.Close()
	s.opts.Metrics.DecrementActiveSessions(context.Background())
	s.reset()
	s.logger.Info("mailbox disconnected")
	return err
}

// Close is Disconnect.
func (s *Session) Close() error {
	return s.Disconnect()
}

// CombineText joins the message body and the extracted attachment text the
// way they are summarized.
func CombineText(body, attachments string) string {
	return body + "\n\n" + attachments
}

type fallbackKey struct{}

type fallbackTracker struct {
	err error
}

// FallbackHook is meant for summarize.WithFallbackHook. It records the
// model failure on the session whose Generate call is running in ctx.
func FallbackHook(ctx context.Context, err error) {
	if t, ok := ctx.Value(fallbackKey{}).(*fallbackTracker); ok {
		t.err = err
	}
}
