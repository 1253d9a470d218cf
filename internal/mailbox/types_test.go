package mailbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero uses default", 0, DefaultFetchLimit},
		{"negative uses default", -3, DefaultFetchLimit},
		{"minimum", 1, 1},
		{"in range", 25, 25},
		{"maximum", 50, 50},
		{"above maximum", 500, MaxFetchLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampLimit(tt.limit))
		})
	}
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodIMAP, m)

	m, err = ParseMethod("OAuth")
	require.NoError(t, err)
	assert.Equal(t, MethodGmail, m)

	_, err = ParseMethod("pop3")
	assert.Error(t, err)
}

func TestCredentialsValidate(t *testing.T) {
	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "x"})

	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{"valid imap", Credentials{Method: MethodIMAP, Address: "a@example.com", Secret: "pw"}, false},
		{"missing secret", Credentials{Method: MethodIMAP, Address: "a@example.com"}, true},
		{"missing address", Credentials{Method: MethodIMAP, Secret: "pw"}, true},
		{"address without at", Credentials{Method: MethodIMAP, Address: "alice", Secret: "pw"}, true},
		{"valid gmail", Credentials{Method: MethodGmail, TokenSource: tokens}, false},
		{"gmail without token", Credentials{Method: MethodGmail}, true},
		{"unknown method", Credentials{Method: "pop3"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConnection))
		})
	}
}

func TestConnectionErrorWrap(t *testing.T) {
	cause := errors.New("tls handshake timeout")
	err := Wrap(OpDial, cause)

	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "dial")

	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, OpDial, ce.Op)

	assert.Same(t, err, Wrap(OpList, err))
	assert.NoError(t, Wrap(OpList, nil))
}

func TestMessageSummaryLabel(t *testing.T) {
	s := MessageSummary{Subject: "Hi", From: "bob@example.com"}
	assert.Equal(t, "3: Hi — bob@example.com", s.Label(3))
}
