package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-tams/sqlbackup/internal/config"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func TestParseOn(t *testing.T) {
	got, err := parseOn([]string{"success"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{StatusSuccess: true}, got)

	got, err = parseOn([]string{" Both "})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{StatusSuccess: true, StatusFailure: true}, got)

	_, err = parseOn(nil)
	require.Error(t, err)

	_, err = parseOn([]string{"always"})
	require.Error(t, err)
}

func TestNewDispatcherRejectsBadRoutes(t *testing.T) {
	_, err := NewDispatcher([]config.NotificationConfig{{Type: "pager", On: []string{"failure"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported notification type")

	_, err = NewDispatcher([]config.NotificationConfig{{Type: "webhook", On: []string{"failure"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.url is required")

	_, err = NewDispatcher([]config.NotificationConfig{{
		Type: "email",
		On:   []string{"failure"},
		Config: config.NotificationDetails{
			SMTPHost: "smtp.example.com",
			SMTPPort: 587,
			From:     "backup@example.com",
			To:       "ops@example.com",
			Username: "user",
		},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set together")
}

func TestDispatcherRoutesByStatus(t *testing.T) {
	onSuccess := &recordingNotifier{}
	onFailure := &recordingNotifier{}
	d := &Dispatcher{routes: []route{
		{kind: "webhook", statuses: map[string]bool{StatusSuccess: true}, notifier: onSuccess},
		{kind: "email", statuses: map[string]bool{StatusFailure: true}, notifier: onFailure},
	}}

	require.NoError(t, d.Notify(context.Background(), Event{DB: "shop", Status: StatusSuccess}))
	require.NoError(t, d.Notify(context.Background(), Event{DB: "shop", Status: StatusFailure}))
	require.NoError(t, d.Notify(context.Background(), Event{DB: "shop", Status: "unknown"}))

	assert.Len(t, onSuccess.events, 1)
	assert.Equal(t, StatusSuccess, onSuccess.events[0].Status)
	assert.Len(t, onFailure.events, 1)
	assert.Equal(t, StatusFailure, onFailure.events[0].Status)
}

func TestDispatcherJoinsRouteErrors(t *testing.T) {
	boom := errors.New("smtp down")
	ok := &recordingNotifier{}
	d := &Dispatcher{routes: []route{
		{kind: "email", statuses: map[string]bool{StatusFailure: true}, notifier: &recordingNotifier{err: boom}},
		{kind: "webhook", statuses: map[string]bool{StatusFailure: true}, notifier: ok},
	}}

	err := d.Notify(context.Background(), Event{Status: StatusFailure})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "email route 0")
	assert.Len(t, ok.events, 1, "a failing route must not block the others")
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	assert.NoError(t, d.Notify(context.Background(), Event{Status: StatusFailure}))
}

func TestWebhookPostsJSON(t *testing.T) {
	var (
		gotBody   []byte
		gotHeader string
		gotType   string
		gotAgent  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Get("X-Token")
		gotType = r.Header.Get("Content-Type")
		gotAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, err := NewWebhook(" "+srv.URL+" ", map[string]string{"X-Token": "abc"})
	require.NoError(t, err)

	event := Event{
		DB:        "shop",
		Status:    StatusSuccess,
		Trigger:   "scheduled",
		Filename:  "shop_2026-10-18_02-00-00.sql.gz",
		Bytes:     2048,
		Remaining: 7,
		Deleted:   1,
		Duration:  "3.2s",
	}
	require.NoError(t, n.Notify(context.Background(), event))

	assert.Equal(t, "abc", gotHeader)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, webhookUserAgent, gotAgent)

	var decoded webhookPayload
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, event, decoded.Event)
	assert.Equal(t, "sqlbackup success: shop_2026-10-18_02-00-00.sql.gz (2.0 kB, 7 kept, 1 deleted)", decoded.Text)
}

func TestNewWebhookRejectsNonHTTPURL(t *testing.T) {
	_, err := NewWebhook("ftp://hooks.example.com", nil)
	require.Error(t, err)
}

func TestSummaryFailure(t *testing.T) {
	got := Summary(Event{DB: "shop", Status: StatusFailure, Trigger: "manual", Stage: "dumping", Error: "exit status 2"})
	assert.Equal(t, "sqlbackup failure: manual backup of shop failed during dumping: exit status 2", got)
}

func TestWebhookNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream unavailable")
	}))
	defer srv.Close()

	n, err := NewWebhook(srv.URL, nil)
	require.NoError(t, err)

	err = n.Notify(context.Background(), Event{Status: StatusFailure})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestEmailComposesMessage(t *testing.T) {
	n, err := NewEmail("smtp.example.com", 587, "backup@example.com", "ops@example.com, dba@example.com", "user", "pass")
	require.NoError(t, err)

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	e := n.(*emailNotifier)
	e.send = func(addr string, a smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, string(msg)
		return nil
	}

	err = e.Notify(context.Background(), Event{
		DB:       "shop",
		Status:   StatusFailure,
		Trigger:  "manual",
		Bytes:    -1,
		Stage:    "dumping",
		Duration: "1s",
		Error:    "dump of shop failed: exit status 2",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, []string{"ops@example.com", "dba@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Date: ")
	assert.Contains(t, gotMsg, "Subject: [sqlbackup] failure: shop (manual)")
	assert.Contains(t, gotMsg, "size: unknown")
	assert.Contains(t, gotMsg, "failed at: dumping")
	assert.True(t, strings.Contains(gotMsg, "error: dump of shop failed"))
}

func TestSplitRecipients(t *testing.T) {
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, splitRecipients(" a@example.com, b@example.com;c@example.com ,"))
	assert.Empty(t, splitRecipients(" , "))
}

func TestEmailBodyFormatsSize(t *testing.T) {
	body := buildEmailBody(Event{DB: "shop", Status: StatusSuccess, Bytes: 1500000, Mirror: "s3://b/k"})
	assert.Contains(t, body, "size: 1.5 MB")
	assert.Contains(t, body, "mirror: s3://b/k")
	assert.NotContains(t, body, "error:")
}

func TestEmailHonoursCanceledContext(t *testing.T) {
	n, err := NewEmail("smtp.example.com", 25, "a@example.com", "b@example.com", "", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Notify(ctx, Event{}), context.Canceled)
}
