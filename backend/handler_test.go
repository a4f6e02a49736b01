package backend_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/ankitsolutions/chatdesk/backend"
	"github.com/ankitsolutions/chatdesk/domain"
	"github.com/ankitsolutions/chatdesk/policy"
	"github.com/ankitsolutions/chatdesk/tests/helpers"
)

func newTestHandler(t *testing.T) (*backend.Handler, *backend.Store) {
	t.Helper()
	store := helpers.NewTestBackendStore(t)
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	assert.NoError(t, err)
	return backend.NewHandler(store, engine, backend.LocalResponder{}, "Ankit Solutions"), store
}

func login(t *testing.T, h *backend.Handler, username, password string) domain.TokenResponse {
	t.Helper()
	e := echo.New()
	form := "username=" + username + "&password=" + password
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()

	err := h.Login(e.NewContext(req, rec))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp domain.TokenResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestLogin(t *testing.T) {
	h, _ := newTestHandler(t)

	t.Run("valid credentials", func(t *testing.T) {
		resp := login(t, h, "admin", "admin123")
		assert.NotEmpty(t, resp.AccessToken)
		assert.Equal(t, "bearer", resp.TokenType)
		assert.Equal(t, "System Administrator", resp.User.Name)
		assert.Equal(t, "admin", resp.User.Role)
	})

	t.Run("wrong password", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader("username=admin&password=nope"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		rec := httptest.NewRecorder()

		err := h.Login(e.NewContext(req, rec))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		var resp domain.ErrorResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, "Incorrect username or password", resp.Detail)
	})

	t.Run("unknown user", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader("username=mallory&password=x"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		rec := httptest.NewRecorder()

		err := h.Login(e.NewContext(req, rec))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGetDepartments(t *testing.T) {
	h, _ := newTestHandler(t)

	t.Run("admin sees all", func(t *testing.T) {
		token := login(t, h, "admin", "admin123").AccessToken
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/departments", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		err := h.GetDepartments(e.NewContext(req, rec))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var depts []domain.Department
		json.Unmarshal(rec.Body.Bytes(), &depts)
		assert.Len(t, depts, 3)
	})

	t.Run("staff sees own departments only", func(t *testing.T) {
		token := login(t, h, "alice", "alice123").AccessToken
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/departments", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		err := h.GetDepartments(e.NewContext(req, rec))
		assert.NoError(t, err)

		var depts []domain.Department
		json.Unmarshal(rec.Body.Bytes(), &depts)
		assert.Len(t, depts, 2)
		for _, d := range depts {
			assert.Contains(t, []string{"hr", "it"}, d.Key)
		}
	})

	t.Run("no token rejected", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/departments", nil)
		rec := httptest.NewRecorder()

		err := h.GetDepartments(e.NewContext(req, rec))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		var resp domain.ErrorResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, "Not authenticated", resp.Detail)
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/departments", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		rec := httptest.NewRecorder()

		err := h.GetDepartments(e.NewContext(req, rec))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func chat(t *testing.T, h *backend.Handler, token, content, department string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	body, _ := json.Marshal(domain.ChatRequest{Content: content, Department: department})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	err := h.Chat(e.NewContext(req, rec))
	assert.NoError(t, err)
	return rec
}

func TestChat(t *testing.T) {
	h, store := newTestHandler(t)
	auth := login(t, h, "alice", "alice123")
	token := auth.AccessToken

	t.Run("allowed message answered and stored", func(t *testing.T) {
		rec := chat(t, h, token, "What is the leave policy?", "hr")
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp domain.ChatResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.NotEmpty(t, resp.Response)
		assert.NotZero(t, resp.ConversationID)

		convs, err := store.ListConversations(context.Background(), auth.User.ID)
		assert.NoError(t, err)
		assert.Len(t, convs, 1)
		assert.Equal(t, "What is the leave policy?", convs[0].UserMessage)
	})

	t.Run("blocked keyword refused", func(t *testing.T) {
		rec := chat(t, h, token, "What's the latest sports score?", "hr")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp domain.ErrorResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Contains(t, resp.Detail, "not allowed")
	})

	t.Run("department outside grant", func(t *testing.T) {
		rec := chat(t, h, token, "budget question", "finance")
		assert.Equal(t, http.StatusForbidden, rec.Code)

		var resp domain.ErrorResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, "Access denied to this department", resp.Detail)
	})

	t.Run("admin grants all departments", func(t *testing.T) {
		adminToken := login(t, h, "admin", "admin123").AccessToken
		rec := chat(t, h, adminToken, "budget question", "finance")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown department", func(t *testing.T) {
		adminToken := login(t, h, "admin", "admin123").AccessToken
		rec := chat(t, h, adminToken, "hello", "legal")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var resp domain.ErrorResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, "Department not found", resp.Detail)
	})
}

func TestConversationsLifecycle(t *testing.T) {
	h, _ := newTestHandler(t)
	token := login(t, h, "alice", "alice123").AccessToken

	chat(t, h, token, "first question", "hr")
	chat(t, h, token, "second question", "it")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	err := h.GetConversations(e.NewContext(req, rec))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var convs []domain.Conversation
	json.Unmarshal(rec.Body.Bytes(), &convs)
	assert.Len(t, convs, 2)
	// Newest first.
	assert.Equal(t, "second question", convs[0].UserMessage)

	t.Run("delete own conversation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetPath("/conversations/:id")
		c.SetParamNames("id")
		c.SetParamValues(strconv.Itoa(convs[0].ID))

		err := h.DeleteConversation(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("delete missing conversation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetPath("/conversations/:id")
		c.SetParamNames("id")
		c.SetParamValues("99999")

		err := h.DeleteConversation(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
