// Package session owns all durable and ephemeral client state: the
// authenticated identity, cached reference data, the conversation cache,
// the activity log, and system settings.
//
// The store is the single source of truth for the aggregate ClientState.
// Every mutating operation persists before returning, so a crash right
// after a mutation never loses more than that one operation. Storage
// failures are logged and swallowed: losing durability degrades the
// session to in-memory only, it never blocks the caller.
package session

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ankitsolutions/chatdesk/domain"
	"github.com/ankitsolutions/chatdesk/storage"
)

// Storage keys. Three independent entries: the aggregate blob, the current
// identity, and the bearer credential. Each loads and fails independently.
const (
	stateKey    = "ankit_ai_state"
	identityKey = "currentUser"
	tokenKey    = "access_token"
)

// stateBlob is the persisted aggregate. Pointer fields distinguish "absent
// from the blob" from "present but empty" so partial blobs keep defaults
// for whatever they omit.
type stateBlob struct {
	Conversations  *[]domain.Conversation  `json:"conversations"`
	Users          *[]domain.Identity      `json:"users"`
	Departments    *[]domain.Department    `json:"departments"`
	SystemSettings *domain.SystemSettings  `json:"systemSettings"`
	ActivityLog    *[]domain.ActivityEntry `json:"activityLog"`
}

// Store is the client-side state manager. One instance per running client.
type Store struct {
	mu sync.Mutex
	kv storage.KV

	identity            *domain.Identity
	token               string
	currentConversation *domain.Conversation
	activeSection       string

	conversations []domain.Conversation
	users         []domain.Identity
	departments   []domain.Department
	settings      domain.SystemSettings
	activity      []domain.ActivityEntry
}

// New constructs a store backed by kv and loads any previously persisted
// state. It never fails: unreadable or corrupt entries leave that portion
// of the state at its default.
func New(kv storage.KV) *Store {
	s := &Store{
		kv:            kv,
		activeSection: "chat",
		settings:      domain.DefaultSettings(),
	}
	s.load()
	return s
}

// load reads the aggregate blob, the identity and the token. Each entry is
// parsed independently; a failure in one must not abort the others.
func (s *Store) load() {
	if raw, err := s.kv.Get(stateKey); err != nil {
		slog.Warn("failed to read saved state", "error", err)
	} else if raw != nil {
		var blob stateBlob
		if err := json.Unmarshal(raw, &blob); err != nil {
			slog.Warn("failed to parse saved state", "error", err)
		} else {
			if blob.Conversations != nil {
				s.conversations = *blob.Conversations
			}
			if blob.Users != nil {
				s.users = *blob.Users
			}
			if blob.Departments != nil {
				s.departments = *blob.Departments
			}
			if blob.SystemSettings != nil {
				s.settings = *blob.SystemSettings
			}
			if blob.ActivityLog != nil {
				s.activity = *blob.ActivityLog
			}
		}
	}

	if raw, err := s.kv.Get(identityKey); err != nil {
		slog.Warn("failed to read saved identity", "error", err)
	} else if raw != nil {
		var id domain.Identity
		if err := json.Unmarshal(raw, &id); err != nil {
			slog.Warn("failed to parse saved identity", "error", err)
		} else {
			s.identity = &id
		}
	}

	if raw, err := s.kv.Get(tokenKey); err != nil {
		slog.Warn("failed to read saved token", "error", err)
	} else if raw != nil {
		s.token = string(raw)
	}
}

// persist writes the aggregate blob and, separately, the identity entry
// (removing it when no identity is set). Failures are logged warnings;
// they never propagate. Callers must hold s.mu.
func (s *Store) persist() {
	blob := stateBlob{
		Conversations:  &s.conversations,
		Users:          &s.users,
		Departments:    &s.departments,
		SystemSettings: &s.settings,
		ActivityLog:    &s.activity,
	}
	raw, err := json.Marshal(blob)
	if err != nil {
		slog.Warn("failed to encode state", "error", err)
	} else if err := s.kv.Set(stateKey, raw); err != nil {
		slog.Warn("failed to save state", "error", err)
	}

	if s.identity == nil {
		if err := s.kv.Remove(identityKey); err != nil {
			slog.Warn("failed to remove saved identity", "error", err)
		}
	} else if raw, err := json.Marshal(s.identity); err != nil {
		slog.Warn("failed to encode identity", "error", err)
	} else if err := s.kv.Set(identityKey, raw); err != nil {
		slog.Warn("failed to save identity", "error", err)
	}
}

// Persist forces a write of the full aggregate. Idempotent.
func (s *Store) Persist() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist()
}

// SetIdentity sets or clears the current identity and persists.
func (s *Store) SetIdentity(id *domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == nil {
		s.identity = nil
		s.currentConversation = nil
	} else {
		cp := *id
		s.identity = &cp
	}
	s.persist()
}

// Identity returns the current identity, or nil when logged out.
func (s *Store) Identity() *domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	cp := *s.identity
	return &cp
}

// SetToken stores the bearer credential in its standalone entry. An empty
// token removes the entry. The credential lives apart from the identity so
// it can be cleared or rotated independently.
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	if token == "" {
		if err := s.kv.Remove(tokenKey); err != nil {
			slog.Warn("failed to remove saved token", "error", err)
		}
		return
	}
	if err := s.kv.Set(tokenKey, []byte(token)); err != nil {
		slog.Warn("failed to save token", "error", err)
	}
}

// Token returns the stored bearer credential, or "" when absent.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// RecordActivity prepends an entry stamped with the current identity and
// wall-clock time, then persists. The log is newest first and never
// deduplicated or pruned.
func (s *Store) RecordActivity(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	entry := domain.ActivityEntry{
		ID:          now.UnixMilli(),
		Description: description,
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
	if s.identity != nil {
		uid := s.identity.ID
		entry.UserID = &uid
	}
	s.activity = append([]domain.ActivityEntry{entry}, s.activity...)
	s.persist()
}

// Activity returns the activity log, newest first.
func (s *Store) Activity() []domain.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ActivityEntry(nil), s.activity...)
}

// ReplaceDepartments replaces the department cache wholesale. It does not
// persist; the caller decides when the fetched batch is worth saving.
func (s *Store) ReplaceDepartments(list []domain.Department) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments = append([]domain.Department(nil), list...)
}

// Departments returns the cached department list.
func (s *Store) Departments() []domain.Department {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Department(nil), s.departments...)
}

// ReplaceConversations replaces the conversation cache wholesale. Like
// ReplaceDepartments it does not persist on its own.
func (s *Store) ReplaceConversations(list []domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = append([]domain.Conversation(nil), list...)
}

// Conversations returns the cached conversation list.
func (s *Store) Conversations() []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Conversation(nil), s.conversations...)
}

// ReplaceUsers replaces the cached user directory. No persist on its own.
func (s *Store) ReplaceUsers(list []domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append([]domain.Identity(nil), list...)
}

// Users returns the cached user directory.
func (s *Store) Users() []domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Identity(nil), s.users...)
}

// Settings returns the current system settings.
func (s *Store) Settings() domain.SystemSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings replaces the system settings and persists. There is no
// field-level merge: the new value wins in full.
func (s *Store) SetSettings(settings domain.SystemSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.persist()
}

// SetCurrentConversation tracks the conversation the user is viewing.
// Ephemeral: not part of the persisted aggregate.
func (s *Store) SetCurrentConversation(c *domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == nil {
		s.currentConversation = nil
		return
	}
	cp := *c
	s.currentConversation = &cp
}

// CurrentConversation returns the conversation being viewed, or nil.
func (s *Store) CurrentConversation() *domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentConversation == nil {
		return nil
	}
	cp := *s.currentConversation
	return &cp
}

// SetActiveSection tracks which UI section is active. Ephemeral.
func (s *Store) SetActiveSection(section string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeSection = section
}

// ActiveSection returns the active UI section.
func (s *Store) ActiveSection() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSection
}
