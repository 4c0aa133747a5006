package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/diegocamara89/meu-venom-bot/internal/model"
	"github.com/diegocamara89/meu-venom-bot/internal/signature"
)

type allowList map[string]bool

func (a allowList) IsAuthorized(raw string) bool { return a[raw] }

type hookList []model.WebhookEntry

func (h hookList) List() []model.WebhookEntry { return h }

type stubMedia struct {
	media *model.Media
	err   error
	calls int32
}

func (s *stubMedia) DownloadMedia(context.Context, string) (*model.Media, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.media, s.err
}

type mockWebhook struct {
	mu       sync.Mutex
	Payloads []model.DeliveryPayload
	Headers  []http.Header
	Hits     int32
	Server   *httptest.Server
}

func newMockWebhook(t *testing.T, status int, delay time.Duration) *mockWebhook {
	t.Helper()
	m := &mockWebhook{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.Hits, 1)
		body, _ := io.ReadAll(r.Body)
		var p model.DeliveryPayload
		_ = json.Unmarshal(body, &p)
		m.mu.Lock()
		m.Payloads = append(m.Payloads, p)
		m.Headers = append(m.Headers, r.Header.Clone())
		m.mu.Unlock()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(m.Server.Close)
	return m
}

func newEngine(t *testing.T, auth Authorizer, hooks hookList, media MediaDownloader, cfg Config) *Engine {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	return New(auth, hooks, media, cfg, zaptest.NewLogger(t))
}

func TestAuthorize_StripsChatSuffix(t *testing.T) {
	e := newEngine(t, allowList{"5511999999999": true}, nil, nil, Config{})

	sender, ok := e.Authorize("5511999999999@c.us")
	assert.True(t, ok)
	assert.Equal(t, "5511999999999", sender)

	sender, ok = e.Authorize("5521888888888@c.us")
	assert.False(t, ok)
	assert.Equal(t, "5521888888888", sender)
}

func TestHandleInbound_UnauthorizedMakesNoRequests(t *testing.T) {
	hook := newMockWebhook(t, http.StatusOK, 0)
	media := &stubMedia{}
	e := newEngine(t, allowList{}, hookList{{ID: "a", URL: hook.Server.URL}}, media, Config{})

	out := e.HandleInbound(context.Background(), model.InboundMessage{ID: "m1", From: "5511999999999@c.us", Body: "hi", HasMedia: true})

	assert.Equal(t, Dropped, out.Decision)
	assert.Empty(t, out.Results)
	assert.Zero(t, atomic.LoadInt32(&hook.Hits))
	assert.Zero(t, atomic.LoadInt32(&media.calls))
}

func TestHandleInbound_OneResultPerWebhook(t *testing.T) {
	a := newMockWebhook(t, http.StatusOK, 0)
	b := newMockWebhook(t, http.StatusNoContent, 0)
	c := newMockWebhook(t, http.StatusInternalServerError, 0)
	hooks := hookList{
		{ID: "a", URL: a.Server.URL},
		{ID: "b", URL: b.Server.URL},
		{ID: "c", URL: c.Server.URL},
	}
	e := newEngine(t, allowList{"5511999999999": true}, hooks, nil, Config{})

	msg := model.InboundMessage{ID: "m1", From: "5511999999999@c.us", Body: "hi", Timestamp: 1700000000, Type: "chat"}
	out := e.HandleInbound(context.Background(), msg)

	require.Equal(t, Authorized, out.Decision)
	assert.Equal(t, []model.DispatchResult{
		{WebhookID: "a", Success: true},
		{WebhookID: "b", Success: true},
		{WebhookID: "c", Success: false, Error: "unexpected status 500"},
	}, out.Results)

	for _, m := range []*mockWebhook{a, b, c} {
		require.Len(t, m.Payloads, 1)
		assert.Equal(t, model.DeliveryPayload{From: msg.From, Body: "hi", Timestamp: 1700000000, Type: "chat"}, m.Payloads[0])
		assert.Equal(t, "application/json", m.Headers[0].Get("Content-Type"))
	}
}

func TestBroadcast_SlowWebhookTimesOutWithoutBlockingOthers(t *testing.T) {
	fast := newMockWebhook(t, http.StatusOK, 0)
	slow := newMockWebhook(t, http.StatusOK, 2*time.Second)
	hooks := hookList{
		{ID: "A", URL: fast.Server.URL},
		{ID: "B", URL: slow.Server.URL},
	}
	e := newEngine(t, allowList{}, hooks, nil, Config{Timeout: 100 * time.Millisecond})

	start := time.Now()
	results := e.Broadcast(context.Background(), model.DeliveryPayload{From: "1@c.us", Body: "x"})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []model.DispatchResult{
		{WebhookID: "A", Success: true},
		{WebhookID: "B", Success: false, Error: "timeout"},
	}, results)
}

func TestBroadcast_StalledBodyTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":`))
		w.(http.Flusher).Flush()
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	e := newEngine(t, allowList{}, hookList{{ID: "A", URL: srv.URL}}, nil, Config{Timeout: 100 * time.Millisecond})

	start := time.Now()
	results := e.Broadcast(context.Background(), model.DeliveryPayload{From: "1@c.us"})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []model.DispatchResult{{WebhookID: "A", Success: false, Error: "timeout"}}, results)
}

func TestBroadcast_UnreachableWebhook(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	e := newEngine(t, allowList{}, hookList{{ID: "gone", URL: dead.URL}}, nil, Config{})

	results := e.Broadcast(context.Background(), model.DeliveryPayload{})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.NotEmpty(t, results[0].Error)
}

func TestBroadcast_NoWebhooks(t *testing.T) {
	e := newEngine(t, allowList{}, nil, nil, Config{})
	results := e.Broadcast(context.Background(), model.DeliveryPayload{})
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestBroadcast_SurvivesCancelledParent(t *testing.T) {
	hook := newMockWebhook(t, http.StatusOK, 0)
	e := newEngine(t, allowList{}, hookList{{ID: "a", URL: hook.Server.URL}}, nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := e.Broadcast(ctx, model.DeliveryPayload{Body: "late"})
	assert.True(t, results[0].Success)
}

func TestBroadcast_SignsBodyWhenSecretSet(t *testing.T) {
	var (
		body   []byte
		header string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		header = r.Header.Get(signature.Header)
	}))
	defer srv.Close()
	e := newEngine(t, allowList{}, hookList{{ID: "a", URL: srv.URL}}, nil, Config{Secret: "s3cret"})

	results := e.Broadcast(context.Background(), model.DeliveryPayload{Body: "signed"})
	require.True(t, results[0].Success)
	assert.NoError(t, signature.Verify("s3cret", body, header))
}

func TestBroadcast_UnsignedWithoutSecret(t *testing.T) {
	hook := newMockWebhook(t, http.StatusOK, 0)
	e := newEngine(t, allowList{}, hookList{{ID: "a", URL: hook.Server.URL}}, nil, Config{})

	e.Broadcast(context.Background(), model.DeliveryPayload{})
	require.Len(t, hook.Headers, 1)
	assert.Empty(t, hook.Headers[0].Get(signature.Header))
}

func TestBuildPayload_AttachesMedia(t *testing.T) {
	media := &stubMedia{media: &model.Media{Mimetype: "image/jpeg", Data: "AAAA"}}
	e := newEngine(t, allowList{}, nil, media, Config{})

	p := e.BuildPayload(context.Background(), model.InboundMessage{ID: "m1", From: "1@c.us", HasMedia: true, Type: "image"})
	require.NotNil(t, p.Media)
	assert.Equal(t, "image/jpeg", p.Media.Mimetype)
	assert.True(t, p.HasMedia)
}

func TestBuildPayload_MediaFailureIsNotFatal(t *testing.T) {
	hook := newMockWebhook(t, http.StatusOK, 0)
	media := &stubMedia{err: errors.New("gateway gone")}
	e := newEngine(t, allowList{"1": true}, hookList{{ID: "a", URL: hook.Server.URL}}, media, Config{})

	out := e.HandleInbound(context.Background(), model.InboundMessage{ID: "m1", From: "1@c.us", HasMedia: true, Type: "image"})

	require.Len(t, out.Results, 1)
	assert.True(t, out.Results[0].Success)
	require.Len(t, hook.Payloads, 1)
	assert.True(t, hook.Payloads[0].HasMedia)
	assert.Nil(t, hook.Payloads[0].Media)
}

func TestBuildPayload_SkipsDownloadWithoutMedia(t *testing.T) {
	media := &stubMedia{}
	e := newEngine(t, allowList{}, nil, media, Config{})

	p := e.BuildPayload(context.Background(), model.InboundMessage{ID: "m1", From: "1@c.us"})
	assert.Nil(t, p.Media)
	assert.Zero(t, atomic.LoadInt32(&media.calls))
}
