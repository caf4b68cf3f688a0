package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/samueelperez/tricyclecrm-sub003/internal/chat"
	"github.com/samueelperez/tricyclecrm-sub003/internal/models"
	"github.com/samueelperez/tricyclecrm-sub003/internal/router"
	"github.com/samueelperez/tricyclecrm-sub003/internal/storage"
	"github.com/samueelperez/tricyclecrm-sub003/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testSecret = []byte("test-secret")

type echoFallback struct{}

func (echoFallback) Respond(ctx context.Context, mode models.Mode, message string) string {
	return "respuesta (" + string(mode) + ")"
}

// failingStore fails every write but still answers ownership reads.
type failingStore struct {
	*storage.MemoryStorage
}

func (failingStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	return assert.AnError
}

func (failingStore) AddMessage(ctx context.Context, msg *models.Message) error {
	return assert.AnError
}

func (failingStore) RecordInteraction(ctx context.Context, i *models.Interaction) error {
	return assert.AnError
}

func newTestServer(t *testing.T, store storage.Storage) *Server {
	t.Helper()
	r := router.New(config.OpenAIConfig{}, nil, echoFallback{}, zap.NewNop())
	m := chat.NewManager(store, r, zap.NewNop())
	return New(m, Options{JWTSecret: testSecret}, zap.NewNop())
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := IssueToken(testSecret, userID, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, s *Server, method, target, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestChat_Unauthenticated(t *testing.T) {
	s := newTestServer(t, storage.NewMemoryStorage())

	rec := do(t, s, http.MethodPost, "/api/chatbot", "", `{"message":"hola","mode":"analysis"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "Authorization")

	req := httptest.NewRequest(http.MethodPost, "/api/chatbot", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChat_WrongSecretRejected(t *testing.T) {
	s := newTestServer(t, storage.NewMemoryStorage())
	forged, err := IssueToken([]byte("other-secret"), "user-1", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/chatbot", strings.NewReader(`{"message":"hola","mode":"analysis"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChat_MissingFields(t *testing.T) {
	s := newTestServer(t, storage.NewMemoryStorage())

	for _, body := range []string{`{"mode":"analysis"}`, `{"message":"hola"}`, `{}`} {
		rec := do(t, s, http.MethodPost, "/api/chatbot", "user-1", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestChat_NewConversation(t *testing.T) {
	store := storage.NewMemoryStorage()
	s := newTestServer(t, store)

	rec := do(t, s, http.MethodPost, "/api/chatbot", "user-1",
		`{"message":"¿Qué proveedores tenemos en metal?","mode":"management","conversationId":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "respuesta (management)", body["response"])
	assert.Equal(t, false, body["fallbackMode"])
	assert.Nil(t, body["threadId"])
	convID, ok := body["conversationId"].(string)
	require.True(t, ok)

	rec = do(t, s, http.MethodGet, "/api/chatbot/conversations/"+convID+"/messages", "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode(t, rec)["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[2].(map[string]any)["role"])

	rec = do(t, s, http.MethodGet, "/api/chatbot/conversations/"+convID+"/messages", "user-2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat_DegradedTurnStillOK(t *testing.T) {
	s := newTestServer(t, failingStore{storage.NewMemoryStorage()})

	rec := do(t, s, http.MethodPost, "/api/chatbot", "user-1", `{"message":"status","mode":"assistant"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["fallbackMode"])
	assert.True(t, strings.HasPrefix(body["response"].(string), router.FallbackMarker))
	assert.Nil(t, body["conversationId"])
}

func TestChat_ForeignConversation(t *testing.T) {
	store := storage.NewMemoryStorage()
	require.NoError(t, store.CreateConversation(context.Background(), &models.Conversation{
		ID: "conv-1", Title: "x", Mode: models.ModeAnalysis, UserID: "user-2",
	}))
	s := newTestServer(t, store)

	rec := do(t, s, http.MethodPost, "/api/chatbot", "user-1", `{"message":"hola","mode":"analysis","conversationId":"conv-1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConversations_CRUD(t *testing.T) {
	s := newTestServer(t, storage.NewMemoryStorage())

	rec := do(t, s, http.MethodPost, "/api/chatbot/conversations", "user-1", `{"title":"Acme","mode":"prospecting"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	id := created["id"].(string)
	assert.Equal(t, "prospecting", created["mode"])

	rec = do(t, s, http.MethodPost, "/api/chatbot/conversations", "user-1", `{"title":"Acme","mode":"ventas"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPatch, "/api/chatbot/conversations", "user-1", `{"id":"`+id+`","title":"Acme SL","thread_id":"thread_7"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode(t, rec)
	assert.Equal(t, "Acme SL", updated["title"])
	assert.Equal(t, "thread_7", updated["thread_id"])

	rec = do(t, s, http.MethodPatch, "/api/chatbot/conversations", "user-2", `{"id":"`+id+`","title":"hijack"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/chatbot/conversations", "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["conversations"], 1)

	rec = do(t, s, http.MethodDelete, "/api/chatbot/conversations?id="+id, "user-2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/chatbot/conversations?id="+id, "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	rec = do(t, s, http.MethodDelete, "/api/chatbot/conversations", "user-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversations_DeleteAll(t *testing.T) {
	s := newTestServer(t, storage.NewMemoryStorage())

	rec := do(t, s, http.MethodDelete, "/api/chatbot/conversations?all=true", "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(0), body["count"])

	for i := 0; i < 2; i++ {
		rec = do(t, s, http.MethodPost, "/api/chatbot", "user-1", `{"message":"hola","mode":"analysis"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = do(t, s, http.MethodDelete, "/api/chatbot/conversations?all=true", "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["count"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, storage.NewMemoryStorage())

	rec := do(t, s, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["assistant_configured"])
}

func TestValidateToken(t *testing.T) {
	_, err := validateToken(nil, "anything")
	assert.Error(t, err)

	tok, err := IssueToken(testSecret, "user-9", time.Hour)
	require.NoError(t, err)
	sub, err := validateToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, "user-9", sub)

	expired, err := IssueToken(testSecret, "user-9", -time.Minute)
	require.NoError(t, err)
	_, err = validateToken(testSecret, expired)
	assert.Error(t, err)

	blank, err := IssueToken(testSecret, "", time.Hour)
	require.NoError(t, err)
	_, err = validateToken(testSecret, blank)
	assert.Error(t, err)
}

// gatedFallback blocks inside Respond until released, reporting whether its
// context was still live at that point.
type gatedFallback struct {
	started chan struct{}
	release chan struct{}
}

func (f *gatedFallback) Respond(ctx context.Context, mode models.Mode, message string) string {
	close(f.started)
	<-f.release
	if ctx.Err() != nil {
		return "cancelado"
	}
	return "respuesta completa"
}

func TestChat_ClientDisconnectDoesNotAbortTurn(t *testing.T) {
	store := storage.NewMemoryStorage()
	fb := &gatedFallback{started: make(chan struct{}), release: make(chan struct{})}
	r := router.New(config.OpenAIConfig{}, nil, fb, zap.NewNop())
	s := New(chat.NewManager(store, r, zap.NewNop()), Options{JWTSecret: testSecret}, zap.NewNop())

	reqCtx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/chatbot",
		strings.NewReader(`{"message":"hola","mode":"management"}`)).WithContext(reqCtx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token(t, "user-1"))
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Handler().ServeHTTP(rec, req)
	}()

	<-fb.started
	cancel()
	close(fb.release)
	<-done

	convs, err := store.ListConversations(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, convs, 1)

	msgs, err := store.ListMessages(context.Background(), convs[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, models.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "respuesta completa", msgs[2].Content)
}
