// Package backend is a development stand-in for the remote company chatbot
// service: token issuance, department listing, conversation history and
// chat completion over HTTP/JSON, backed by SQLite.
package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ankitsolutions/chatdesk/domain"
	_ "github.com/mattn/go-sqlite3"
)

// User is a backend account. Departments lists the department keys the
// user may chat with; "all" grants everything.
type User struct {
	ID             int
	Username       string
	HashedPassword string
	Name           string
	Role           string
	Departments    []string
	CreatedAt      time.Time
}

// DepartmentRecord is the backend's full view of a department. The client
// only ever sees Key and Name.
type DepartmentRecord struct {
	ID              int
	Key             string
	Name            string
	Description     string
	AIContext       string
	BlockedKeywords []string
	CreatedAt       time.Time
}

// ConversationRecord is one stored exchange.
type ConversationRecord struct {
	ID          int
	UserID      int
	Department  string
	UserMessage string
	AIResponse  string
	Citations   json.RawMessage
	CreatedAt   time.Time
}

// Store persists users, departments, conversations and bearer tokens.
type Store struct {
	db *sql.DB
}

// NewStore opens the database at dsn and runs migrations.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps in-memory databases coherent and avoids
	// SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			hashed_password TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			departments TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS departments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT,
			ai_context TEXT,
			blocked_keywords TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			department TEXT NOT NULL,
			user_message TEXT NOT NULL,
			ai_response TEXT NOT NULL,
			citations TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS tokens (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser stores a new account with a bcrypt-hashed password.
func (s *Store) CreateUser(ctx context.Context, username, password, name, role string, departments []string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	depts, _ := json.Marshal(departments)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (username, hashed_password, name, role, departments) VALUES (?, ?, ?, ?, ?)`,
		username, string(hashed), name, role, string(depts))
	return err
}

// Authenticate verifies a username/password pair. A wrong username or
// password returns (nil, nil), not an error.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.getUser(ctx, `SELECT id, username, hashed_password, name, role, departments, created_at FROM users WHERE username = ?`, username)
	if err != nil || user == nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)) != nil {
		return nil, nil
	}
	return user, nil
}

// IssueToken mints an opaque bearer token for the user.
func (s *Store) IssueToken(ctx context.Context, userID int) (string, error) {
	token := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (token, user_id) VALUES (?, ?)`, token, userID); err != nil {
		return "", err
	}
	return token, nil
}

// UserForToken resolves a bearer token to its account, or (nil, nil) when
// the token is unknown.
func (s *Store) UserForToken(ctx context.Context, token string) (*User, error) {
	return s.getUser(ctx,
		`SELECT u.id, u.username, u.hashed_password, u.name, u.role, u.departments, u.created_at
		 FROM users u JOIN tokens t ON t.user_id = u.id WHERE t.token = ?`, token)
}

// RevokeToken deletes a token. Unknown tokens are ignored.
func (s *Store) RevokeToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE token = ?`, token)
	return err
}

func (s *Store) getUser(ctx context.Context, query string, args ...interface{}) (*User, error) {
	var user User
	var depts sql.NullString
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.Username, &user.HashedPassword, &user.Name, &user.Role, &depts, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if depts.Valid {
		_ = json.Unmarshal([]byte(depts.String), &user.Departments)
	}
	return &user, nil
}

// UpsertDepartment creates or replaces a department by key.
func (s *Store) UpsertDepartment(ctx context.Context, dept *DepartmentRecord) error {
	keywords, _ := json.Marshal(dept.BlockedKeywords)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO departments (key, name, description, ai_context, blocked_keywords) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET name = excluded.name, description = excluded.description,
		 ai_context = excluded.ai_context, blocked_keywords = excluded.blocked_keywords`,
		dept.Key, dept.Name, dept.Description, dept.AIContext, string(keywords))
	return err
}

// GetDepartment retrieves a department by key, or (nil, nil) when absent.
func (s *Store) GetDepartment(ctx context.Context, key string) (*DepartmentRecord, error) {
	var dept DepartmentRecord
	var description, aiContext, keywords sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, key, name, description, ai_context, blocked_keywords, created_at FROM departments WHERE key = ?`,
		key).Scan(&dept.ID, &dept.Key, &dept.Name, &description, &aiContext, &keywords, &dept.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	dept.Description = description.String
	dept.AIContext = aiContext.String
	if keywords.Valid {
		_ = json.Unmarshal([]byte(keywords.String), &dept.BlockedKeywords)
	}
	return &dept, nil
}

// ListDepartments lists all departments in creation order.
func (s *Store) ListDepartments(ctx context.Context) ([]DepartmentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, name, description, ai_context, blocked_keywords, created_at FROM departments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var depts []DepartmentRecord
	for rows.Next() {
		var dept DepartmentRecord
		var description, aiContext, keywords sql.NullString
		if err := rows.Scan(&dept.ID, &dept.Key, &dept.Name, &description, &aiContext, &keywords, &dept.CreatedAt); err != nil {
			return nil, err
		}
		dept.Description = description.String
		dept.AIContext = aiContext.String
		if keywords.Valid {
			_ = json.Unmarshal([]byte(keywords.String), &dept.BlockedKeywords)
		}
		depts = append(depts, dept)
	}
	return depts, rows.Err()
}

// CreateConversation stores one exchange and returns its id.
func (s *Store) CreateConversation(ctx context.Context, conv *ConversationRecord) (int, error) {
	citations := "[]"
	if conv.Citations != nil {
		citations = string(conv.Citations)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (user_id, department, user_message, ai_response, citations) VALUES (?, ?, ?, ?, ?)`,
		conv.UserID, conv.Department, conv.UserMessage, conv.AIResponse, citations)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

// ListConversations returns the user's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, userID int) ([]ConversationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, department, user_message, ai_response, citations, created_at
		 FROM conversations WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []ConversationRecord
	for rows.Next() {
		var conv ConversationRecord
		var citations sql.NullString
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Department, &conv.UserMessage, &conv.AIResponse, &citations, &conv.CreatedAt); err != nil {
			return nil, err
		}
		if citations.Valid {
			conv.Citations = json.RawMessage(citations.String)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// DeleteConversation removes one of the user's conversations. It reports
// whether a row was deleted.
func (s *Store) DeleteConversation(ctx context.Context, id, userID int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Seed populates default accounts and departments on an empty database.
func (s *Store) Seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if err := s.CreateUser(ctx, "admin", "admin123", "System Administrator", "admin", []string{"all"}); err != nil {
		return err
	}
	if err := s.CreateUser(ctx, "alice", "alice123", "Alice", "staff", []string{"hr", "it"}); err != nil {
		return err
	}

	keywords := domain.DefaultSettings().BlockedKeywords
	defaults := []DepartmentRecord{
		{
			Key:             "hr",
			Name:            "Human Resources",
			Description:     "People operations, policies and benefits",
			AIContext:       "You answer questions about HR policies, leave, benefits and onboarding.",
			BlockedKeywords: keywords,
		},
		{
			Key:             "it",
			Name:            "IT Support",
			Description:     "Internal tooling, accounts and hardware",
			AIContext:       "You answer questions about internal IT systems, accounts and equipment.",
			BlockedKeywords: keywords,
		},
		{
			Key:             "finance",
			Name:            "Finance",
			Description:     "Budgets, expenses and reimbursement",
			AIContext:       "You answer questions about expense reporting, budgets and reimbursement.",
			BlockedKeywords: keywords,
		},
	}
	for i := range defaults {
		if err := s.UpsertDepartment(ctx, &defaults[i]); err != nil {
			return err
		}
	}
	return nil
}
