// Package store provides storage backends for GutCheck.
//
// This file implements the PostgreSQL-backed store for server deployments.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/gutcheck/gutcheck/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists conversations in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.PostgresDSN != "")

	dsn := cfg.PostgresDSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetConversationState retrieves the live state for a conversation.
func (s *PostgresStore) GetConversationState(conversationID string) (*models.ConversationState, error) {
	var stateJSON []byte
	err := s.db.QueryRow(`SELECT state_json FROM conversation_states WHERE conversation_id = $1`, conversationID).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetConversationState not found", "conversationID", conversationID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversationState failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query conversation state: %w", err)
	}

	var state models.ConversationState
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		slog.Error("PostgresStore GetConversationState unmarshal failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to unmarshal conversation state: %w", err)
	}
	return &state, nil
}

// SaveConversationState stores or updates the live state for a conversation.
func (s *PostgresStore) SaveConversationState(state models.ConversationState) error {
	state.UpdatedAt = time.Now()
	stateJSON, err := json.Marshal(state)
	if err != nil {
		slog.Error("PostgresStore SaveConversationState marshal failed", "error", err, "conversationID", state.ConversationID)
		return fmt.Errorf("failed to marshal conversation state: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO conversation_states (conversation_id, state_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_id)
		DO UPDATE SET state_json = EXCLUDED.state_json, updated_at = EXCLUDED.updated_at`,
		state.ConversationID, stateJSON, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveConversationState failed", "error", err, "conversationID", state.ConversationID)
		return fmt.Errorf("failed to save conversation state: %w", err)
	}
	slog.Debug("PostgresStore SaveConversationState succeeded", "conversationID", state.ConversationID, "stage", state.Stage)
	return nil
}

// DeleteConversationState removes the live state for a conversation.
func (s *PostgresStore) DeleteConversationState(conversationID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE conversation_id = $1`, conversationID)
	if err != nil {
		slog.Error("PostgresStore DeleteConversationState failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete conversation state: %w", err)
	}
	return nil
}

// ListMessages returns the committed history in commit order.
func (s *PostgresStore) ListMessages(conversationID string) ([]models.Message, error) {
	rows, err := s.db.Query(`
		SELECT role, content, attachment_ref, created_at
		FROM conversation_messages WHERE conversation_id = $1 ORDER BY id`, conversationID)
	if err != nil {
		slog.Error("PostgresStore ListMessages query failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var attachment sql.NullString
		if err := rows.Scan(&m.Role, &m.Content, &attachment, &m.Timestamp); err != nil {
			slog.Error("PostgresStore ListMessages scan failed", "error", err, "conversationID", conversationID)
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.AttachmentRef = attachment.String
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListMessages rows iteration failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return msgs, nil
}

// AppendMessage commits one message to the history.
func (s *PostgresStore) AppendMessage(conversationID string, msg models.Message) error {
	_, err := s.db.Exec(`
		INSERT INTO conversation_messages (conversation_id, role, content, attachment_ref, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		conversationID, msg.Role, msg.Content, nilIfEmpty(msg.AttachmentRef), msg.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AppendMessage failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// DeleteMessages removes the committed history for a conversation.
func (s *PostgresStore) DeleteMessages(conversationID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_messages WHERE conversation_id = $1`, conversationID)
	if err != nil {
		slog.Error("PostgresStore DeleteMessages failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

// GetProfile retrieves a user profile, nil when none exists.
func (s *PostgresStore) GetProfile(userID string) (*models.Profile, error) {
	var profileJSON []byte
	err := s.db.QueryRow(`SELECT profile_json FROM profiles WHERE user_id = $1`, userID).Scan(&profileJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	var profile models.Profile
	if err := json.Unmarshal(profileJSON, &profile); err != nil {
		slog.Error("PostgresStore GetProfile unmarshal failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}

// SaveProfile stores or updates a user profile.
func (s *PostgresStore) SaveProfile(profile models.Profile) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		slog.Error("PostgresStore SaveProfile marshal failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO profiles (user_id, profile_json, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET profile_json = EXCLUDED.profile_json, updated_at = EXCLUDED.updated_at`,
		profile.UserID, profileJSON, time.Now())
	if err != nil {
		slog.Error("PostgresStore SaveProfile failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}
