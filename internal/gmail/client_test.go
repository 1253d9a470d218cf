package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/mailcontract/internal/mailbox"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

type fakeGmail struct {
	t        *testing.T
	messages map[string]map[string]any
	order    []string
	status   int

	listQueries []string
	maxResults  []string
	attachCalls int
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	assert.Equal(f.t, "Bearer test-token", r.Header.Get("Authorization"))

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"denied"}}`, f.status)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/")
	parts := strings.Split(path, "/")

	switch {
	case path == "profile":
		_ = json.NewEncoder(w).Encode(map[string]any{"emailAddress": "alice@example.com"})
	case path == "messages":
		f.listQueries = append(f.listQueries, r.URL.Query().Get("q"))
		f.maxResults = append(f.maxResults, r.URL.Query().Get("maxResults"))
		var refs []map[string]string
		for _, id := range f.order {
			refs = append(refs, map[string]string{"id": id})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": refs})
	case len(parts) == 2 && parts[0] == "messages":
		msg, ok := f.messages[parts[1]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(msg)
	case len(parts) == 4 && parts[2] == "attachments":
		f.attachCalls++
		_ = json.NewEncoder(w).Encode(map[string]any{"data": b64("attachment:" + parts[3]), "size": 16})
	default:
		f.t.Errorf("unexpected request %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func newFakeGmail(t *testing.T) *fakeGmail {
	return &fakeGmail{
		t: t,
		messages: map[string]map[string]any{
			"older": {
				"id": "older", "snippet": "first", "internalDate": "1700000000000",
				"payload": map[string]any{"headers": []map[string]string{
					{"name": "Subject", "value": "Older"}, {"name": "From", "value": "bob@example.com"},
				}},
			},
			"newer": {
				"id": "newer", "snippet": "second", "internalDate": "1700000500000",
				"payload": map[string]any{
					"mimeType": "multipart/mixed",
					"headers": []map[string]string{
						{"name": "Subject", "value": "Newer"}, {"name": "From", "value": "carol@example.com"},
					},
					"parts": []map[string]any{
						{"mimeType": "text/plain", "body": map[string]any{"data": b64("Hello"), "size": 5}},
						{
							"mimeType": "text/plain", "filename": "notes.txt",
							"headers": []map[string]string{{"name": "Content-Disposition", "value": "attachment; filename=notes.txt"}},
							"body":    map[string]any{"attachmentId": "att1", "size": 16},
						},
						{
							"mimeType": "text/plain", "filename": "inline.txt",
							"headers": []map[string]string{{"name": "Content-Disposition", "value": "inline"}},
							"body":    map[string]any{"data": strings.TrimRight(b64("inline data"), "="), "size": 11},
						},
					},
				},
			},
		},
		order: []string{"older", "newer"},
	}
}

func connect(t *testing.T, f *fakeGmail) (*Client, error) {
	t.Helper()
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)

	return Connect(context.Background(), mailbox.Credentials{
		Method:      mailbox.MethodGmail,
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
	}, Options{Endpoint: ts.URL + "/", HTTPClient: ts.Client()})
}

func TestConnect(t *testing.T) {
	c, err := connect(t, newFakeGmail(t))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", c.Account())
	assert.NoError(t, c.Close())
}

func TestConnect_Rejected(t *testing.T) {
	f := newFakeGmail(t)
	f.status = http.StatusUnauthorized

	_, err := connect(t, f)
	require.Error(t, err)
	assert.ErrorIs(t, err, mailbox.ErrConnection)

	var ce *mailbox.ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, mailbox.OpLogin, ce.Op)
}

func TestConnect_MissingToken(t *testing.T) {
	_, err := Connect(context.Background(), mailbox.Credentials{Method: mailbox.MethodGmail}, Options{})
	assert.ErrorIs(t, err, mailbox.ErrConnection)
}

func TestList(t *testing.T) {
	f := newFakeGmail(t)
	c, err := connect(t, f)
	require.NoError(t, err)

	got, err := c.List(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "newer", got[0].ID)
	assert.Equal(t, "Newer", got[0].Subject)
	assert.Equal(t, "carol@example.com", got[0].From)
	assert.Equal(t, "second", got[0].Snippet)
	assert.Equal(t, "older", got[1].ID)

	assert.Equal(t, []string{DefaultQuery}, f.listQueries)
	assert.Equal(t, []string{"50"}, f.maxResults)
}

func TestList_Limit(t *testing.T) {
	c, err := connect(t, newFakeGmail(t))
	require.NoError(t, err)

	got, err := c.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFetch(t *testing.T) {
	f := newFakeGmail(t)
	c, err := connect(t, f)
	require.NoError(t, err)

	msg, err := c.Fetch(context.Background(), "newer")
	require.NoError(t, err)
	assert.Equal(t, "Newer", msg.Subject)
	assert.Equal(t, "Hello", msg.Body)
	assert.Equal(t, 2023, msg.Date.Year())

	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "notes.txt", msg.Attachments[0].Filename)
	assert.Equal(t, mailbox.DispositionAttachment, msg.Attachments[0].Disposition)
	assert.Equal(t, "attachment:att1", string(msg.Attachments[0].Data))
	assert.Equal(t, "inline.txt", msg.Attachments[1].Filename)
	assert.Equal(t, mailbox.DispositionInline, msg.Attachments[1].Disposition)
	assert.Equal(t, "inline data", string(msg.Attachments[1].Data))
	assert.Equal(t, 1, f.attachCalls)
}

func TestFetch_NotFound(t *testing.T) {
	c, err := connect(t, newFakeGmail(t))
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "missing")
	assert.ErrorIs(t, err, mailbox.ErrMessageNotFound)

	_, err = c.Fetch(context.Background(), " ")
	assert.ErrorIs(t, err, mailbox.ErrMessageNotFound)
}
