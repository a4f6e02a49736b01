package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ankitsolutions/chatdesk/domain"
	"github.com/ankitsolutions/chatdesk/policy"
)

// Responder generates an AI reply for one prompt. The Perplexity client
// implements it; with no API key configured the backend falls back to
// LocalResponder.
type Responder interface {
	Respond(ctx context.Context, systemMessage, prompt string) (string, []domain.Citation, error)
}

// LocalResponder answers without an AI upstream. Useful for development
// and tests.
type LocalResponder struct{}

func (LocalResponder) Respond(_ context.Context, _, prompt string) (string, []domain.Citation, error) {
	return fmt.Sprintf("[local] I received your question: %q. Connect an AI upstream for real answers.", prompt), nil, nil
}

// Handler handles HTTP requests.
type Handler struct {
	store       *Store
	policy      *policy.Engine
	responder   Responder
	companyName string
}

// NewHandler creates a new handler.
func NewHandler(store *Store, policyEngine *policy.Engine, responder Responder, companyName string) *Handler {
	return &Handler{
		store:       store,
		policy:      policyEngine,
		responder:   responder,
		companyName: companyName,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/token", h.Login)
	e.GET("/departments", h.GetDepartments)
	e.GET("/conversations", h.GetConversations)
	e.DELETE("/conversations/:id", h.DeleteConversation)
	e.POST("/chat", h.Chat)
	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// Login handles POST /token: form-encoded credentials in, bearer token and
// identity out.
func (h *Handler) Login(c echo.Context) error {
	username := c.FormValue("username")
	password := c.FormValue("password")

	user, err := h.store.Authenticate(c.Request().Context(), username, password)
	if err != nil {
		slog.Error("authentication lookup failed", "error", err)
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Detail: "Internal server error"})
	}
	if user == nil {
		return c.JSON(http.StatusUnauthorized, domain.ErrorResponse{Detail: "Incorrect username or password"})
	}

	token, err := h.store.IssueToken(c.Request().Context(), user.ID)
	if err != nil {
		slog.Error("failed to issue token", "error", err)
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Detail: "Internal server error"})
	}

	return c.JSON(http.StatusOK, domain.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        identityOf(user),
	})
}

// GetDepartments lists the departments visible to the caller: everything
// for admins, otherwise only the caller's own.
func (h *Handler) GetDepartments(c echo.Context) error {
	user, ok := h.currentUser(c)
	if !ok {
		return nil
	}

	depts, err := h.store.ListDepartments(c.Request().Context())
	if err != nil {
		slog.Error("failed to list departments", "error", err)
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Detail: "Internal server error"})
	}

	out := make([]domain.Department, 0, len(depts))
	for _, d := range depts {
		if user.Role != "admin" && !hasDepartment(user, d.Key) {
			continue
		}
		out = append(out, domain.Department{Key: d.Key, Name: d.Name})
	}
	return c.JSON(http.StatusOK, out)
}

// GetConversations lists the caller's conversations, newest first.
func (h *Handler) GetConversations(c echo.Context) error {
	user, ok := h.currentUser(c)
	if !ok {
		return nil
	}

	convs, err := h.store.ListConversations(c.Request().Context(), user.ID)
	if err != nil {
		slog.Error("failed to list conversations", "error", err)
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Detail: "Internal server error"})
	}

	out := make([]domain.Conversation, 0, len(convs))
	for _, conv := range convs {
		out = append(out, conversationOf(conv))
	}
	return c.JSON(http.StatusOK, out)
}

// DeleteConversation removes one of the caller's conversations.
func (h *Handler) DeleteConversation(c echo.Context) error {
	user, ok := h.currentUser(c)
	if !ok {
		return nil
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Detail: "Invalid conversation id"})
	}

	deleted, err := h.store.DeleteConversation(c.Request().Context(), id, user.ID)
	if err != nil {
		slog.Error("failed to delete conversation", "error", err)
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Detail: "Internal server error"})
	}
	if !deleted {
		return c.JSON(http.StatusNotFound, domain.ErrorResponse{Detail: "Conversation not found"})
	}
	return c.JSON(http.StatusOK, domain.ErrorResponse{Detail: "Conversation deleted"})
}

// Chat handles POST /chat: department access check, keyword policy, AI
// response, then persists the exchange.
func (h *Handler) Chat(c echo.Context) error {
	user, ok := h.currentUser(c)
	if !ok {
		return nil
	}

	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Detail: "Invalid request body"})
	}

	if !hasDepartment(user, req.Department) {
		return c.JSON(http.StatusForbidden, domain.ErrorResponse{Detail: "Access denied to this department"})
	}

	ctx := c.Request().Context()
	dept, err := h.store.GetDepartment(ctx, req.Department)
	if err != nil {
		slog.Error("failed to load department", "error", err)
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Detail: "Internal server error"})
	}
	if dept == nil {
		return c.JSON(http.StatusNotFound, domain.ErrorResponse{Detail: "Department not found"})
	}

	allowed, err := h.policy.Allow(ctx, req.Content, dept.Key, dept.BlockedKeywords)
	if err != nil {
		slog.Error("policy evaluation failed", "error", err)
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Detail: "Internal server error"})
	}
	if !allowed {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{
			Detail: "This type of question is not allowed. Please ask about company-related topics only.",
		})
	}

	reply, citations, err := h.responder.Respond(ctx, h.systemMessage(dept), req.Content)
	if err != nil {
		slog.Error("failed to generate response", "error", err)
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Detail: "Error generating AI response"})
	}

	rawCitations, _ := json.Marshal(citations)
	convID, err := h.store.CreateConversation(ctx, &ConversationRecord{
		UserID:      user.ID,
		Department:  dept.Key,
		UserMessage: req.Content,
		AIResponse:  reply,
		Citations:   rawCitations,
	})
	if err != nil {
		slog.Error("failed to store conversation", "error", err)
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Detail: "Internal server error"})
	}

	return c.JSON(http.StatusOK, domain.ChatResponse{
		Response:       reply,
		Citations:      citations,
		ConversationID: convID,
	})
}

// currentUser resolves the bearer token on the request. When it returns
// false the failure response has already been written and the handler
// should return nil.
func (h *Handler) currentUser(c echo.Context) (*User, bool) {
	header := c.Request().Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if header == "" || token == header {
		_ = c.JSON(http.StatusUnauthorized, domain.ErrorResponse{Detail: "Not authenticated"})
		return nil, false
	}

	user, err := h.store.UserForToken(c.Request().Context(), token)
	if err != nil {
		slog.Error("token lookup failed", "error", err)
		_ = c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Detail: "Internal server error"})
		return nil, false
	}
	if user == nil {
		_ = c.JSON(http.StatusUnauthorized, domain.ErrorResponse{Detail: "Invalid or expired token"})
		return nil, false
	}
	return user, true
}

// systemMessage builds the per-department system prompt, mirroring the
// production service's prompt layout.
func (h *Handler) systemMessage(dept *DepartmentRecord) string {
	return dept.AIContext + "\n" +
		"Company: " + h.companyName + "\n" +
		"Department: " + dept.Name + "\n" +
		"Important guidelines:\n" +
		"- Only answer questions related to company operations and this department\n" +
		"- Use professional language appropriate for internal company communication\n" +
		"- If asked about non-company topics, politely redirect to company-related matters\n" +
		"- Base responses on current information and best practices\n" +
		"- Be helpful but maintain confidentiality of sensitive information\n"
}

func hasDepartment(user *User, key string) bool {
	for _, d := range user.Departments {
		if d == "all" || d == key {
			return true
		}
	}
	return false
}

func identityOf(user *User) domain.Identity {
	return domain.Identity{
		ID:          user.ID,
		Username:    user.Username,
		Name:        user.Name,
		Role:        user.Role,
		Departments: user.Departments,
	}
}

func conversationOf(conv ConversationRecord) domain.Conversation {
	out := domain.Conversation{
		ID:          conv.ID,
		Department:  conv.Department,
		UserMessage: conv.UserMessage,
		AIResponse:  conv.AIResponse,
		CreatedAt:   conv.CreatedAt.UTC().Format("2006-01-02T15:04:05"),
	}
	if len(conv.Citations) > 0 {
		_ = json.Unmarshal(conv.Citations, &out.Citations)
	}
	return out
}
