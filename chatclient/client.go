// Package chatclient provides the HTTP client for the company chatbot
// backend. It is a pure request/response boundary: it updates the session
// store's caches and identity, but appending sent messages to the
// conversation view is the presentation layer's job.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ankitsolutions/chatdesk/admission"
	"github.com/ankitsolutions/chatdesk/domain"
	"github.com/ankitsolutions/chatdesk/session"
)

// Client performs all network-facing operations against the backend.
type Client struct {
	baseURL    string
	session    *session.Store
	httpClient *http.Client
}

// NewClient creates a client for the backend at baseURL, bound to the
// given session store for credentials, settings and caches.
func NewClient(baseURL string, sess *session.Store) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		session:    sess,
		httpClient: &http.Client{},
	}
}

// setHeaders sets common request headers. The bearer credential is
// attached when present; with no credential the request still goes out and
// the backend makes the authorization call.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// Login authenticates against POST /token. On success it persists the
// credential and identity, records a login activity entry and returns
// true. On any failure it returns false and leaves prior state untouched;
// network errors and rejected credentials are deliberately not
// distinguished.
func (c *Client) Login(ctx context.Context, username, password string) bool {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		slog.Warn("login failed", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("login failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("login rejected", "status", resp.StatusCode)
		return false
	}

	var tok domain.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		slog.Warn("login failed", "error", err)
		return false
	}

	c.session.SetToken(tok.AccessToken)
	c.session.SetIdentity(&tok.User)
	c.session.RecordActivity(fmt.Sprintf("User %s logged in", tok.User.Name))
	return true
}

// Logout clears the credential, records a logout entry naming the
// departing user, then clears the identity. The entry is written before
// the identity clear so it still carries the user's name and id.
func (c *Client) Logout() {
	name := ""
	if id := c.session.Identity(); id != nil {
		name = id.Name
	}
	c.session.SetToken("")
	c.session.RecordActivity(fmt.Sprintf("User %s logged out", name))
	c.session.SetIdentity(nil)
}

// FetchDepartments refreshes the department cache from GET /departments.
// On failure the existing cache is left untouched and an empty list is
// returned; callers cannot distinguish that from a server reporting zero
// departments.
func (c *Client) FetchDepartments(ctx context.Context) []domain.Department {
	var list []domain.Department
	if err := c.get(ctx, "/departments", &list); err != nil {
		slog.Warn("failed to load departments", "error", err)
		return []domain.Department{}
	}
	c.session.ReplaceDepartments(list)
	return list
}

// FetchConversations refreshes the conversation cache from
// GET /conversations, with the same failure contract as FetchDepartments.
func (c *Client) FetchConversations(ctx context.Context) []domain.Conversation {
	var list []domain.Conversation
	if err := c.get(ctx, "/conversations", &list); err != nil {
		slog.Warn("failed to load conversations", "error", err)
		return []domain.Conversation{}
	}
	c.session.ReplaceConversations(list)
	return list
}

// SendMessage posts one message to POST /chat and returns the assistant's
// reply. Admission control runs first: a blocked message fails with
// admission.ErrBlocked before any network I/O and mutates nothing. Errors
// carry a user-displayable message.
func (c *Client) SendMessage(ctx context.Context, text, departmentKey string) (string, error) {
	if admission.Blocked(text, c.session.Settings().BlockedKeywords) {
		return "", admission.ErrBlocked
	}

	body, err := json.Marshal(domain.ChatRequest{Content: text, Department: departmentKey})
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errorFromResponse(resp)
	}

	var chat domain.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	return chat.Response, nil
}

// DeleteConversation removes a conversation on the backend via
// DELETE /conversations/{id}. The local cache is not touched; callers
// refetch when they need the updated list.
func (c *Client) DeleteConversation(ctx context.Context, id int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/conversations/"+strconv.Itoa(id), nil)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromResponse(resp)
	}
	return nil
}

// get performs an authenticated GET and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorFromResponse turns a non-2xx response into an error carrying the
// server's detail message when one is present.
func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var er domain.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Detail != "" {
		return errors.New(er.Detail)
	}
	return fmt.Errorf("chat request failed with status %d", resp.StatusCode)
}
