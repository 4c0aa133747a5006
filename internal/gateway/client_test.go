package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/diegocamara89/meu-venom-bot/internal/apperror"
	"github.com/diegocamara89/meu-venom-bot/internal/model"
)

type mockGateway struct {
	mu     sync.Mutex
	sent   []map[string]any
	media  model.Media
	status int
	Server *httptest.Server
}

func newMockGateway(t *testing.T) *mockGateway {
	t.Helper()
	g := &mockGateway{status: http.StatusOK}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.status != http.StatusOK {
			http.Error(w, "session closed", g.status)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/messages":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			g.mu.Lock()
			g.sent = append(g.sent, body)
			g.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/media"):
			_ = json.NewEncoder(w).Encode(g.media)
		case r.Method == http.MethodGet && r.URL.Path == "/status":
			_, _ = w.Write([]byte(`{"status":"CONNECTED","info":{"pushname":"relay"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(g.Server.Close)
	return g
}

func TestSend(t *testing.T) {
	g := newMockGateway(t)
	c := New(g.Server.URL+"/", time.Second, 1024, zaptest.NewLogger(t))

	err := c.Send(context.Background(), "5511999999999"+ChatSuffix, model.OutboundMessage{Type: model.KindText, Text: "oi"})
	require.NoError(t, err)

	require.Len(t, g.sent, 1)
	assert.Equal(t, "5511999999999@c.us", g.sent[0]["chatId"])
	assert.Equal(t, "text", g.sent[0]["type"])
	assert.Equal(t, "oi", g.sent[0]["text"])
	assert.NotContains(t, g.sent[0], "mediaUrl")
}

func TestSend_GatewayDown(t *testing.T) {
	g := newMockGateway(t)
	g.status = http.StatusServiceUnavailable
	c := New(g.Server.URL, time.Second, 1024, zaptest.NewLogger(t))

	err := c.Send(context.Background(), "1@c.us", model.OutboundMessage{Type: model.KindText, Text: "oi"})
	assert.ErrorIs(t, err, apperror.ErrGatewayUnavailable)
	assert.Contains(t, err.Error(), "503")
}

func TestSend_Unreachable(t *testing.T) {
	g := newMockGateway(t)
	g.Server.Close()
	c := New(g.Server.URL, time.Second, 1024, zaptest.NewLogger(t))

	err := c.Send(context.Background(), "1@c.us", model.OutboundMessage{Type: model.KindText, Text: "oi"})
	assert.ErrorIs(t, err, apperror.ErrGatewayUnavailable)
}

func TestDownloadMedia(t *testing.T) {
	g := newMockGateway(t)
	g.media = model.Media{Mimetype: "image/png", Filename: "a.png", Data: base64.StdEncoding.EncodeToString([]byte("png-bytes"))}
	c := New(g.Server.URL, time.Second, 1024, zaptest.NewLogger(t))

	media, err := c.DownloadMedia(context.Background(), "msg/1")
	require.NoError(t, err)
	assert.Equal(t, g.media, *media)
}

func TestDownloadMedia_TooLarge(t *testing.T) {
	g := newMockGateway(t)
	g.media = model.Media{Mimetype: "video/mp4", Data: base64.StdEncoding.EncodeToString(make([]byte, 64))}
	c := New(g.Server.URL, time.Second, 32, zaptest.NewLogger(t))

	_, err := c.DownloadMedia(context.Background(), "msg-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 32 bytes")
}

func TestDownloadMedia_RequiresID(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second, 32, zaptest.NewLogger(t))
	_, err := c.DownloadMedia(context.Background(), "")
	assert.ErrorIs(t, err, apperror.ErrInvalidIdentifier)
}

func TestStatus(t *testing.T) {
	g := newMockGateway(t)
	c := New(g.Server.URL, time.Second, 1024, zaptest.NewLogger(t))

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "CONNECTED", status.Status)
	assert.Equal(t, "relay", status.Info["pushname"])
}

func TestStatus_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	c := New(srv.URL, 50*time.Millisecond, 1024, zaptest.NewLogger(t))

	_, err := c.Status(context.Background())
	assert.ErrorIs(t, err, apperror.ErrGatewayUnavailable)
}
