// Package store provides storage backends for GutCheck.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/gutcheck/gutcheck/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists conversations in a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.SQLiteDSN != "")

	dsn := cfg.SQLiteDSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetConversationState retrieves the live state for a conversation.
func (s *SQLiteStore) GetConversationState(conversationID string) (*models.ConversationState, error) {
	var stateJSON string
	err := s.db.QueryRow(`SELECT state_json FROM conversation_states WHERE conversation_id = ?`, conversationID).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetConversationState not found", "conversationID", conversationID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversationState failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query conversation state: %w", err)
	}

	var state models.ConversationState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		slog.Error("SQLiteStore GetConversationState unmarshal failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to unmarshal conversation state: %w", err)
	}
	return &state, nil
}

// SaveConversationState stores or updates the live state for a conversation.
func (s *SQLiteStore) SaveConversationState(state models.ConversationState) error {
	state.UpdatedAt = time.Now()
	stateJSON, err := json.Marshal(state)
	if err != nil {
		slog.Error("SQLiteStore SaveConversationState marshal failed", "error", err, "conversationID", state.ConversationID)
		return fmt.Errorf("failed to marshal conversation state: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO conversation_states (conversation_id, state_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (conversation_id)
		DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`,
		state.ConversationID, string(stateJSON), state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveConversationState failed", "error", err, "conversationID", state.ConversationID)
		return fmt.Errorf("failed to save conversation state: %w", err)
	}
	slog.Debug("SQLiteStore SaveConversationState succeeded", "conversationID", state.ConversationID, "stage", state.Stage)
	return nil
}

// DeleteConversationState removes the live state for a conversation.
func (s *SQLiteStore) DeleteConversationState(conversationID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE conversation_id = ?`, conversationID)
	if err != nil {
		slog.Error("SQLiteStore DeleteConversationState failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete conversation state: %w", err)
	}
	return nil
}

// ListMessages returns the committed history in commit order.
func (s *SQLiteStore) ListMessages(conversationID string) ([]models.Message, error) {
	rows, err := s.db.Query(`
		SELECT role, content, attachment_ref, created_at
		FROM conversation_messages WHERE conversation_id = ? ORDER BY id`, conversationID)
	if err != nil {
		slog.Error("SQLiteStore ListMessages query failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var attachment sql.NullString
		if err := rows.Scan(&m.Role, &m.Content, &attachment, &m.Timestamp); err != nil {
			slog.Error("SQLiteStore ListMessages scan failed", "error", err, "conversationID", conversationID)
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.AttachmentRef = attachment.String
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListMessages rows iteration failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	slog.Debug("SQLiteStore ListMessages succeeded", "conversationID", conversationID, "count", len(msgs))
	return msgs, nil
}

// AppendMessage commits one message to the history.
func (s *SQLiteStore) AppendMessage(conversationID string, msg models.Message) error {
	_, err := s.db.Exec(`
		INSERT INTO conversation_messages (conversation_id, role, content, attachment_ref, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		conversationID, msg.Role, msg.Content, nilIfEmpty(msg.AttachmentRef), msg.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AppendMessage failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// DeleteMessages removes the committed history for a conversation.
func (s *SQLiteStore) DeleteMessages(conversationID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_messages WHERE conversation_id = ?`, conversationID)
	if err != nil {
		slog.Error("SQLiteStore DeleteMessages failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

// GetProfile retrieves a user profile, nil when none exists.
func (s *SQLiteStore) GetProfile(userID string) (*models.Profile, error) {
	var profileJSON string
	err := s.db.QueryRow(`SELECT profile_json FROM profiles WHERE user_id = ?`, userID).Scan(&profileJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	var profile models.Profile
	if err := json.Unmarshal([]byte(profileJSON), &profile); err != nil {
		slog.Error("SQLiteStore GetProfile unmarshal failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}

// SaveProfile stores or updates a user profile.
func (s *SQLiteStore) SaveProfile(profile models.Profile) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		slog.Error("SQLiteStore SaveProfile marshal failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO profiles (user_id, profile_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id)
		DO UPDATE SET profile_json = excluded.profile_json, updated_at = excluded.updated_at`,
		profile.UserID, string(profileJSON), time.Now())
	if err != nil {
		slog.Error("SQLiteStore SaveProfile failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
