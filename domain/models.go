// Package domain defines the core domain models for the chatdesk client.
package domain

import "time"

// Identity is the authenticated user as known to the client.
type Identity struct {
	ID          int      `json:"id"`
	Username    string   `json:"username,omitempty"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Departments []string `json:"departments,omitempty"` // department keys, "all" grants everything
}

// Department is reference data sourced from the backend. The client only
// sees key and name; the backend additionally tracks context and keywords.
type Department struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Conversation is one question/answer exchange. The authoritative copy
// lives on the backend; the client holds a full-replace cache.
type Conversation struct {
	ID          int        `json:"id,omitempty"`
	Department  string     `json:"department"`
	UserMessage string     `json:"user_message"`
	AIResponse  string     `json:"ai_response"`
	Citations   []Citation `json:"citations,omitempty"`
	CreatedAt   string     `json:"created_at,omitempty"` // ISO-8601, server-assigned
}

// Citation is a source reference attached to an AI response.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ActivityEntry is one line of the client-side diagnostic activity log.
// Entries are append-only and ordered newest first; the id is derived from
// a wall-clock timestamp and is not guaranteed unique under sub-millisecond
// concurrent calls.
type ActivityEntry struct {
	ID          int64  `json:"id"` // Unix milliseconds at time of recording
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"` // ISO-8601
	UserID      *int   `json:"userId,omitempty"`
}

// SystemSettings is client configuration. A previously persisted value
// fully replaces the defaults; there is no field-level merge.
type SystemSettings struct {
	CompanyName     string   `json:"companyName"`
	BlockedKeywords []string `json:"blockedKeywords"`
	// MaxConversationLength and SessionTimeout are declared limits with no
	// enforcing code path. Kept so persisted settings round-trip intact.
	MaxConversationLength int           `json:"maxConversationLength"`
	SessionTimeout        time.Duration `json:"sessionTimeout"`
}

// DefaultSettings returns the hardcoded settings used when nothing was
// ever persisted.
func DefaultSettings() SystemSettings {
	return SystemSettings{
		CompanyName: "Ankit Solutions",
		BlockedKeywords: []string{
			"personal", "entertainment", "games", "external_news",
			"game of the year", "sports", "movies",
		},
		MaxConversationLength: 100,
		SessionTimeout:        time.Hour,
	}
}

// TokenResponse is the success shape of POST /token.
type TokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type,omitempty"`
	User        Identity `json:"user"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Content    string `json:"content"`
	Department string `json:"department"`
}

// ChatResponse is the success shape of POST /chat. The client consumes
// Response; citations and the conversation id are informational.
type ChatResponse struct {
	Response       string     `json:"response"`
	Citations      []Citation `json:"citations,omitempty"`
	ConversationID int        `json:"conversation_id,omitempty"`
}

// ErrorResponse is the backend's failure shape, FastAPI style.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
