package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"LanChat/internal/auth"
	"LanChat/internal/event"
	"LanChat/internal/metrics"
	"LanChat/internal/model"
	"LanChat/internal/repo/memstore"
	"LanChat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopNotifier struct{}

func (nopNotifier) EmitToUser(string, event.WsEvent) {}

type apiFixture struct {
	router   *gin.Engine
	verifier *auth.JWTVerifier
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New()
	store.AddUser(model.UserProfile{ID: "a", Username: "ana"})
	store.AddUser(model.UserProfile{ID: "b", Username: "bia"})
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := service.NewChatService(store.Repositories(), nopNotifier{}, clock, zap.NewNop(), metrics.New(), service.Options{})

	verifier := auth.NewJWTVerifier("handler-test-secret")
	h := NewChatHandler(svc, zap.NewNop())

	router := gin.New()
	api := router.Group("/api", auth.Middleware(verifier))
	api.GET("/conversations", h.ListConversations)
	api.POST("/conversations", h.CreateConversation)
	api.GET("/conversations/:id", h.FetchMessages)
	api.POST("/conversations/:id", h.SendMessage)
	api.PUT("/conversations/:id/participants", h.ManageParticipants)
	api.PUT("/messages/:id", h.EditMessage)
	api.DELETE("/messages/:id", h.DeleteMessage)
	api.PUT("/messages/:id/read", h.MarkRead)
	api.POST("/messages/:id/react", h.ToggleReaction)

	return &apiFixture{router: router, verifier: verifier}
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *apiFixture) do(t *testing.T, userID, method, path string, body any) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := f.verifier.Issue(auth.Identity{UserID: userID, CompanyID: "acme", Role: auth.RoleUser}, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func (f *apiFixture) direct(t *testing.T) string {
	t.Helper()
	status, resp := f.do(t, "a", http.MethodPost, "/api/conversations", model.CreateConversationRequest{ParticipantIDs: []string{"b"}})
	require.Equal(t, http.StatusCreated, status)
	var result model.CreateConversationResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	return result.ID
}

func TestConversationEndpoints(t *testing.T) {
	t.Run("happy path - creating a direct chat twice returns the same one", func(t *testing.T) {
		f := newAPIFixture(t)
		id := f.direct(t)

		status, resp := f.do(t, "b", http.MethodPost, "/api/conversations", map[string]any{"participantIds": []string{"a"}})

		assert.Equal(t, http.StatusOK, status)
		var result model.CreateConversationResult
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		assert.True(t, result.Existing)
		assert.Equal(t, id, result.ID)
	})

	t.Run("happy path - list shows the caller's conversations", func(t *testing.T) {
		f := newAPIFixture(t)
		id := f.direct(t)

		status, resp := f.do(t, "b", http.MethodGet, "/api/conversations", nil)

		require.Equal(t, http.StatusOK, status)
		var list []model.ConversationSummary
		require.NoError(t, json.Unmarshal(resp.Data, &list))
		require.Len(t, list, 1)
		assert.Equal(t, id, list[0].ID)
	})

	t.Run("sad path - participant list must be an array", func(t *testing.T) {
		f := newAPIFixture(t)

		status, resp := f.do(t, "a", http.MethodPost, "/api/conversations", map[string]any{"participantIds": "b"})

		assert.Equal(t, http.StatusBadRequest, status)
		assert.False(t, resp.Success)
	})

	t.Run("sad path - removal by a non-admin is forbidden", func(t *testing.T) {
		f := newAPIFixture(t)
		status, resp := f.do(t, "a", http.MethodPost, "/api/conversations", model.CreateConversationRequest{
			ParticipantIDs: []string{"b"}, IsGroup: true,
		})
		require.Equal(t, http.StatusCreated, status)
		var result model.CreateConversationResult
		require.NoError(t, json.Unmarshal(resp.Data, &result))

		status, _ = f.do(t, "b", http.MethodPut, "/api/conversations/"+result.ID+"/participants", model.ManageParticipantsRequest{
			ParticipantIDs: []string{"a"}, Action: model.ActionRemove,
		})

		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("sad path - requests without a token are rejected", func(t *testing.T) {
		f := newAPIFixture(t)

		status, resp := f.do(t, "", http.MethodGet, "/api/conversations", nil)

		assert.Equal(t, http.StatusUnauthorized, status)
		assert.False(t, resp.Success)
	})
}

func TestMessageEndpoints(t *testing.T) {
	t.Run("happy path - send then fetch", func(t *testing.T) {
		f := newAPIFixture(t)
		id := f.direct(t)

		status, resp := f.do(t, "a", http.MethodPost, "/api/conversations/"+id, model.SendMessageRequest{Content: "hi"})
		require.Equal(t, http.StatusCreated, status)
		var sent model.MessageView
		require.NoError(t, json.Unmarshal(resp.Data, &sent))
		assert.Equal(t, "hi", sent.Content)
		assert.Equal(t, model.ContentText, sent.ContentType)

		status, resp = f.do(t, "b", http.MethodGet, "/api/conversations/"+id+"?limit=10", nil)
		require.Equal(t, http.StatusOK, status)
		var page []model.MessageView
		require.NoError(t, json.Unmarshal(resp.Data, &page))
		require.Len(t, page, 1)
		assert.Equal(t, sent.ID, page[0].ID)
	})

	t.Run("sad path - malformed cursor and limit", func(t *testing.T) {
		f := newAPIFixture(t)
		id := f.direct(t)

		status, _ := f.do(t, "a", http.MethodGet, "/api/conversations/"+id+"?cursor=yesterday", nil)
		assert.Equal(t, http.StatusBadRequest, status)

		status, _ = f.do(t, "a", http.MethodGet, "/api/conversations/"+id+"?limit=ten", nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("sad path - outsiders cannot read or send", func(t *testing.T) {
		f := newAPIFixture(t)
		id := f.direct(t)

		status, _ := f.do(t, "x", http.MethodGet, "/api/conversations/"+id, nil)
		assert.Equal(t, http.StatusForbidden, status)

		status, _ = f.do(t, "x", http.MethodPost, "/api/conversations/"+id, model.SendMessageRequest{Content: "hi"})
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("happy path - edit, react, read and delete", func(t *testing.T) {
		f := newAPIFixture(t)
		id := f.direct(t)
		_, resp := f.do(t, "a", http.MethodPost, "/api/conversations/"+id, model.SendMessageRequest{Content: "hi"})
		var sent model.MessageView
		require.NoError(t, json.Unmarshal(resp.Data, &sent))
		path := "/api/messages/" + sent.ID

		status, _ := f.do(t, "b", http.MethodPut, path, model.EditMessageRequest{Content: "hijack"})
		assert.Equal(t, http.StatusForbidden, status)

		status, _ = f.do(t, "a", http.MethodPut, path, model.EditMessageRequest{Content: "hello"})
		assert.Equal(t, http.StatusOK, status)

		status, resp = f.do(t, "b", http.MethodPost, path+"/react", model.ReactRequest{Emoji: "👍"})
		require.Equal(t, http.StatusOK, status)
		var reacted struct {
			Reactions model.Reactions `json:"reactions"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &reacted))
		assert.Equal(t, model.Reactions{"👍": {"b"}}, reacted.Reactions)

		status, _ = f.do(t, "b", http.MethodPut, path+"/read", nil)
		assert.Equal(t, http.StatusOK, status)

		status, _ = f.do(t, "a", http.MethodDelete, path, nil)
		assert.Equal(t, http.StatusOK, status)
		status, _ = f.do(t, "a", http.MethodDelete, path, nil)
		assert.Equal(t, http.StatusOK, status)

		status, _ = f.do(t, "a", http.MethodPut, path, model.EditMessageRequest{Content: "again"})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("sad path - unknown message", func(t *testing.T) {
		f := newAPIFixture(t)

		status, _ := f.do(t, "a", http.MethodDelete, "/api/messages/missing", nil)

		assert.Equal(t, http.StatusNotFound, status)
	})
}

type stubCache struct {
	err      error
	degraded bool
}

func (s stubCache) Ping(context.Context) error { return s.err }
func (s stubCache) Backend() string            { return "redis" }
func (s stubCache) Degraded() bool             { return s.degraded }

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	serve := func(store Pinger, cache CacheStatus) (int, healthReport) {
		router := gin.New()
		router.GET("/health", NewHealthHandler(store, cache, zap.NewNop()).Health)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		var report healthReport
		_ = json.Unmarshal(rec.Body.Bytes(), &report)
		return rec.Code, report
	}
	up := PingFunc(func(context.Context) error { return nil })

	t.Run("happy path - everything reachable", func(t *testing.T) {
		status, report := serve(up, stubCache{})
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, healthReport{Status: "ok", Store: "up", Cache: "redis"}, report)
	})

	t.Run("happy path - cache fallback only degrades", func(t *testing.T) {
		status, report := serve(up, stubCache{err: errors.New("dial tcp: refused")})
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "degraded", report.Status)
	})

	t.Run("sad path - store down", func(t *testing.T) {
		status, report := serve(PingFunc(func(context.Context) error { return errors.New("timeout") }), stubCache{})
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, "down", report.Store)
	})
}
