package imap

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/mailcontract/internal/mailbox"
)

type fakeClient struct {
	uids   []goimap.UID
	bodies map[goimap.UID][]byte

	loginErr  error
	selectErr error
	searchErr error
	fetchErr  error

	selected    string
	fetches     int
	logoutCalls int
	closed      bool
}

func (c *fakeClient) Login(_, _ string) commandWaiter { return &fakeCommand{err: c.loginErr} }

func (c *fakeClient) Logout() commandWaiter {
	c.logoutCalls++
	return &fakeCommand{}
}

func (c *fakeClient) Close() error {
	c.closed = true
	return nil
}

func (c *fakeClient) Select(mailbox string, _ *goimap.SelectOptions) selectWaiter {
	c.selected = mailbox
	return &fakeSelect{err: c.selectErr}
}

func (c *fakeClient) UIDSearch(_ *goimap.SearchCriteria, _ *goimap.SearchOptions) searchWaiter {
	return &fakeSearch{err: c.searchErr, data: &goimap.SearchData{All: goimap.UIDSetNum(c.uids...)}}
}

func (c *fakeClient) Fetch(numSet goimap.NumSet, opts *goimap.FetchOptions) fetchWaiter {
	c.fetches++
	if c.fetchErr != nil {
		return &fakeFetch{err: c.fetchErr}
	}
	set := numSet.(goimap.UIDSet)

	var bufs []*imapclient.FetchMessageBuffer
	// Server order is ascending regardless of request order.
	for _, uid := range c.uids {
		if !contains(set, uid) {
			continue
		}
		buf := &imapclient.FetchMessageBuffer{SeqNum: uint32(uid), UID: uid}
		if opts.Envelope {
			buf.Envelope = &goimap.Envelope{
				Subject: "Message " + uidString(uid),
				Date:    time.Date(2024, 1, int(uid), 0, 0, 0, 0, time.UTC),
				From:    []goimap.Address{{Name: "Sender", Mailbox: "sender", Host: "example.com"}},
			}
		}
		if len(opts.BodySection) > 0 {
			buf.BodySection = []imapclient.FetchBodySectionBuffer{{
				Section: opts.BodySection[0],
				Bytes:   c.bodies[uid],
			}}
		}
		bufs = append(bufs, buf)
	}
	return &fakeFetch{bufs: bufs}
}

func uidString(uid goimap.UID) string {
	return strconv.FormatUint(uint64(uid), 10)
}

func contains(set goimap.UIDSet, uid goimap.UID) bool {
	for _, r := range set {
		if uid >= r.Start && (r.Stop == 0 || uid <= r.Stop) {
			return true
		}
	}
	return false
}

type fakeCommand struct{ err error }

func (c *fakeCommand) Wait() error { return c.err }

type fakeSelect struct{ err error }

func (s *fakeSelect) Wait() (*goimap.SelectData, error) { return &goimap.SelectData{}, s.err }

type fakeSearch struct {
	err  error
	data *goimap.SearchData
}

func (s *fakeSearch) Wait() (*goimap.SearchData, error) { return s.data, s.err }

type fakeFetch struct {
	err  error
	bufs []*imapclient.FetchMessageBuffer
}

func (f *fakeFetch) Collect() ([]*imapclient.FetchMessageBuffer, error) { return f.bufs, f.err }
func (f *fakeFetch) Close() error                                       { return f.err }

func validCreds() mailbox.Credentials {
	return mailbox.Credentials{Method: mailbox.MethodIMAP, Address: "alice@example.com", Secret: "app-password"}
}

func connectFake(t *testing.T, fc *fakeClient, mbox string) *Source {
	t.Helper()
	src, err := Connect(context.Background(), validCreds(), Options{
		Mailbox:   mbox,
		newClient: func(string) (client, error) { return fc, nil },
	})
	require.NoError(t, err)
	return src
}

func TestResolveMailbox(t *testing.T) {
	tests := []struct {
		name, in, allMail, want string
	}{
		{"empty selects inbox", "", "", "INBOX"},
		{"named folder", "Work", "", "Work"},
		{"all uses default folder", "ALL", "", DefaultAllMailFolder},
		{"all is case insensitive", "all", "Archive", "Archive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveMailbox(tt.in, tt.allMail))
		})
	}
}

func TestConnect_SelectsMailbox(t *testing.T) {
	fc := &fakeClient{}
	src := connectFake(t, fc, "ALL")
	assert.Equal(t, DefaultAllMailFolder, fc.selected)
	assert.Equal(t, DefaultAllMailFolder, src.Mailbox())
}

func TestConnect_Errors(t *testing.T) {
	tests := []struct {
		name       string
		creds      mailbox.Credentials
		fc         *fakeClient
		dialErr    error
		wantOp     string
		wantClosed bool
	}{
		{"malformed credentials", mailbox.Credentials{Method: mailbox.MethodIMAP}, &fakeClient{}, nil, mailbox.OpValidate, false},
		{"dial failure", validCreds(), &fakeClient{}, errors.New("tls: handshake failure"), mailbox.OpDial, false},
		{"login rejected", validCreds(), &fakeClient{loginErr: errors.New("AUTHENTICATIONFAILED")}, nil, mailbox.OpLogin, true},
		{"select failure", validCreds(), &fakeClient{selectErr: errors.New("no such mailbox")}, nil, mailbox.OpSelect, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Connect(context.Background(), tt.creds, Options{
				newClient: func(string) (client, error) {
					if tt.dialErr != nil {
						return nil, tt.dialErr
					}
					return tt.fc, nil
				},
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, mailbox.ErrConnection)

			var ce *mailbox.ConnectionError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantOp, ce.Op)
			assert.Equal(t, tt.wantClosed, tt.fc.closed)
		})
	}
}

func TestConnect_LogsOutOnSelectFailure(t *testing.T) {
	fc := &fakeClient{selectErr: errors.New("nope")}
	_, err := Connect(context.Background(), validCreds(), Options{newClient: func(string) (client, error) { return fc, nil }})
	require.Error(t, err)
	assert.Equal(t, 1, fc.logoutCalls)
}

func TestList_NewestFirstAndLimited(t *testing.T) {
	fc := &fakeClient{uids: []goimap.UID{1, 2, 3, 4, 5, 6, 7}}
	src := connectFake(t, fc, "")

	got, err := src.List(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	assert.Equal(t, []string{"7", "6", "5"}, ids)
	assert.Equal(t, "Sender <sender@example.com>", got[0].From)
	assert.True(t, got[0].Date.After(got[1].Date))
}

func TestList_LimitClamped(t *testing.T) {
	uids := make([]goimap.UID, 0, 60)
	for i := 1; i <= 60; i++ {
		uids = append(uids, goimap.UID(i))
	}
	src := connectFake(t, &fakeClient{uids: uids}, "")

	got, err := src.List(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, got, mailbox.MaxFetchLimit)
	assert.Equal(t, "60", got[0].ID)

	got, err = src.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, got, mailbox.DefaultFetchLimit)
}

func TestList_Empty(t *testing.T) {
	src := connectFake(t, &fakeClient{}, "")

	got, err := src.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestList_SearchError(t *testing.T) {
	src := connectFake(t, &fakeClient{searchErr: errors.New("BAD")}, "")

	_, err := src.List(context.Background(), 10)
	assert.ErrorIs(t, err, mailbox.ErrConnection)
}

func TestFetch_RefetchesEachTime(t *testing.T) {
	raw := []byte("From: bob@example.com\r\nSubject: Hi\r\nContent-Type: text/plain\r\n\r\nHello\r\n")
	fc := &fakeClient{uids: []goimap.UID{9}, bodies: map[goimap.UID][]byte{9: raw}}
	src := connectFake(t, fc, "")

	msg, err := src.Fetch(context.Background(), "9")
	require.NoError(t, err)
	assert.Equal(t, "9", msg.ID)
	assert.Equal(t, "Hi", msg.Subject)
	assert.Equal(t, "Hello", strings.TrimSpace(msg.Body))

	_, err = src.Fetch(context.Background(), "9")
	require.NoError(t, err)
	assert.Equal(t, 2, fc.fetches)
}

func TestFetch_NotFound(t *testing.T) {
	src := connectFake(t, &fakeClient{uids: []goimap.UID{1}}, "")

	_, err := src.Fetch(context.Background(), "2")
	assert.ErrorIs(t, err, mailbox.ErrMessageNotFound)

	_, err = src.Fetch(context.Background(), "abc")
	assert.ErrorIs(t, err, mailbox.ErrMessageNotFound)
}

func TestClose(t *testing.T) {
	fc := &fakeClient{}
	src := connectFake(t, fc, "")

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	assert.True(t, fc.closed)
	assert.Equal(t, 1, fc.logoutCalls)

	_, err := src.List(context.Background(), 10)
	assert.ErrorIs(t, err, mailbox.ErrConnection)
}
