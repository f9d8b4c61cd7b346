package approuters

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"LanChat/internal/auth"
	"LanChat/internal/configuration"
	"LanChat/internal/event"
	"LanChat/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "e2e-secret"

type server struct {
	api    *httptest.Server
	socket *httptest.Server
	issuer *auth.JWTVerifier
}

func testConfig() configuration.Config {
	return configuration.Config{
		Server: configuration.ServerConfig{
			AppPort:            8080,
			SocketPort:         8081,
			SocketRoute:        "ws",
			RateLimitPerMinute: 1000,
			ShutdownTimeout:    time.Second,
		},
		Database: configuration.DatabaseConfig{Driver: configuration.DriverMemory, OpTimeout: 2 * time.Second},
		Cache:    configuration.CacheConfig{Backend: configuration.CacheMemory},
		Auth:     configuration.AuthConfig{JWTSecret: testSecret},
		Hub: configuration.HubConfig{
			WorkerPoolSize:  4,
			SendBuffer:      64,
			SendTimeout:     time.Second,
			EventsPerSecond: 100,
			EventBurst:      100,
		},
	}
}

func newServer(t *testing.T, cfg configuration.Config) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	container, err := configuration.BuildContainer(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	s := &server{
		api:    httptest.NewServer(NewAppRouter(container)),
		socket: httptest.NewServer(NewSocketHandler(container)),
		issuer: auth.NewJWTVerifier(testSecret),
	}
	t.Cleanup(func() {
		_ = container.Close()
		s.socket.Close()
		s.api.Close()
	})
	return s
}

func (s *server) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := s.issuer.Issue(auth.Identity{UserID: userID, Username: userID, CompanyID: "acme", Role: role}, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *server) call(t *testing.T, token, method, path string, body any) (int, json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.api.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = json.Unmarshal(raw, &env)
	return resp.StatusCode, env.Data
}

// dial opens an event channel and authenticates it.
func (s *server) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.socket.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.WriteJSON(event.New(event.EventAuthenticate, event.TokenPayload{Token: token})))
	ev := waitFor(t, conn, event.EventAuthenticated)
	var reply event.Authenticated
	require.NoError(t, json.Unmarshal(ev.Payload, &reply))
	require.True(t, reply.Success)
	return conn
}

// waitFor reads frames until one named name arrives.
func waitFor(t *testing.T, conn *websocket.Conn, name string) event.WsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var ev event.WsEvent
		require.NoError(t, conn.ReadJSON(&ev), "waiting for %s", name)
		if ev.Event == name {
			return ev
		}
	}
}

// collect reads every frame that arrives within window.
func collect(conn *websocket.Conn, window time.Duration) []event.WsEvent {
	_ = conn.SetReadDeadline(time.Now().Add(window))
	var out []event.WsEvent
	for {
		var ev event.WsEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return out
		}
		out = append(out, ev)
	}
}

func TestMessageScenario(t *testing.T) {
	s := newServer(t, testConfig())
	tokenA := s.token(t, "a", auth.RoleUser)
	tokenB := s.token(t, "b", auth.RoleUser)
	connA := s.dial(t, tokenA)
	connB := s.dial(t, tokenB)

	status, data := s.call(t, tokenA, http.MethodPost, "/api/conversations", model.CreateConversationRequest{ParticipantIDs: []string{"b"}})
	require.Equal(t, http.StatusCreated, status)
	var created model.CreateConversationResult
	require.NoError(t, json.Unmarshal(data, &created))

	status, _ = s.call(t, tokenA, http.MethodPost, "/api/conversations/"+created.ID, model.SendMessageRequest{
		Content: "hi", ContentType: model.ContentText,
	})
	require.Equal(t, http.StatusCreated, status)

	ev := waitFor(t, connB, event.EventMessageNew)
	var msg model.MessageView
	require.NoError(t, json.Unmarshal(ev.Payload, &msg))
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, model.ContentText, msg.ContentType)
	for _, extra := range collect(connB, 200*time.Millisecond) {
		assert.NotEqual(t, event.EventMessageNew, extra.Event)
	}

	status, _ = s.call(t, tokenB, http.MethodPut, "/api/messages/"+msg.ID+"/read", nil)
	require.Equal(t, http.StatusOK, status)

	ev = waitFor(t, connA, event.EventMessageRead)
	var seen model.MessageSeen
	require.NoError(t, json.Unmarshal(ev.Payload, &seen))
	assert.Equal(t, msg.ID, seen.MessageID)
	for _, extra := range collect(connA, 200*time.Millisecond) {
		assert.NotEqual(t, event.EventMessageRead, extra.Event)
	}
}

func TestRoutes(t *testing.T) {
	t.Run("happy path - health and metrics are public", func(t *testing.T) {
		s := newServer(t, testConfig())

		resp, err := http.Get(s.api.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, err = http.Get(s.api.URL + "/metrics")
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Contains(t, string(body), "lanchat_ws_connections")
	})

	t.Run("happy path - monitor is for admins", func(t *testing.T) {
		s := newServer(t, testConfig())
		s.dial(t, s.token(t, "a", auth.RoleUser))

		status, _ := s.call(t, s.token(t, "a", auth.RoleUser), http.MethodGet, "/api/monitor/stats", nil)
		assert.Equal(t, http.StatusForbidden, status)

		status, data := s.call(t, s.token(t, "root", auth.RoleAdmin), http.MethodGet, "/api/monitor/stats", nil)
		require.Equal(t, http.StatusOK, status)
		var stats model.MonitorResponse
		require.NoError(t, json.Unmarshal(data, &stats))
		assert.Equal(t, 1, stats.Connections.Authenticated)
	})

	t.Run("sad path - api needs a token", func(t *testing.T) {
		s := newServer(t, testConfig())

		status, _ := s.call(t, "", http.MethodGet, "/api/conversations", nil)

		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("sad path - clients over the rate limit get 429", func(t *testing.T) {
		cfg := testConfig()
		cfg.Server.RateLimitPerMinute = 2
		s := newServer(t, cfg)
		token := s.token(t, "a", auth.RoleUser)

		for i := 0; i < 2; i++ {
			status, _ := s.call(t, token, http.MethodGet, "/api/conversations", nil)
			require.Equal(t, http.StatusOK, status)
		}
		status, _ := s.call(t, token, http.MethodGet, "/api/conversations", nil)
		assert.Equal(t, http.StatusTooManyRequests, status)
	})
}
