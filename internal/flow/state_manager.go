// Package flow provides the store-backed implementation of state management.
package flow

import (
	"context"
	"log/slog"

	"github.com/gutcheck/gutcheck/internal/models"
	"github.com/gutcheck/gutcheck/internal/store"
)

// StoreBasedStateManager implements StateManager using a Store backend.
type StoreBasedStateManager struct {
	store store.Store
}

// Ensure StoreBasedStateManager satisfies StateManager.
var _ StateManager = (*StoreBasedStateManager)(nil)

// NewStoreBasedStateManager creates a new StateManager backed by a Store.
func NewStoreBasedStateManager(st store.Store) *StoreBasedStateManager {
	slog.Debug("Creating StoreBasedStateManager")
	return &StoreBasedStateManager{store: st}
}

// GetState retrieves the live state for a conversation.
func (sm *StoreBasedStateManager) GetState(ctx context.Context, conversationID string) (*models.ConversationState, error) {
	slog.Debug("StateManager GetState", "conversationID", conversationID)
	state, err := sm.store.GetConversationState(conversationID)
	if err != nil {
		slog.Error("StateManager GetState error", "error", err, "conversationID", conversationID)
		return nil, err
	}
	if state == nil {
		slog.Debug("StateManager GetState not found", "conversationID", conversationID)
		return nil, nil
	}
	slog.Debug("StateManager GetState found", "conversationID", conversationID, "stage", state.Stage, "messagesExchanged", state.MessagesExchanged)
	return state, nil
}

// SaveState stores or updates the live state for a conversation.
func (sm *StoreBasedStateManager) SaveState(ctx context.Context, state models.ConversationState) error {
	slog.Debug("StateManager SaveState", "conversationID", state.ConversationID, "stage", state.Stage)
	if err := sm.store.SaveConversationState(state); err != nil {
		slog.Error("StateManager SaveState error", "error", err, "conversationID", state.ConversationID)
		return err
	}
	return nil
}

// ResetState removes the live state for a conversation.
func (sm *StoreBasedStateManager) ResetState(ctx context.Context, conversationID string) error {
	slog.Debug("StateManager ResetState", "conversationID", conversationID)
	if err := sm.store.DeleteConversationState(conversationID); err != nil {
		slog.Error("StateManager ResetState error", "error", err, "conversationID", conversationID)
		return err
	}
	slog.Info("StateManager ResetState succeeded", "conversationID", conversationID)
	return nil
}

// History returns the committed messages in commit order.
func (sm *StoreBasedStateManager) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	slog.Debug("StateManager History", "conversationID", conversationID)
	msgs, err := sm.store.ListMessages(conversationID)
	if err != nil {
		slog.Error("StateManager History error", "error", err, "conversationID", conversationID)
		return nil, err
	}
	return msgs, nil
}

// CommitMessage appends one finalized message to the durable history.
func (sm *StoreBasedStateManager) CommitMessage(ctx context.Context, conversationID string, msg models.Message) error {
	slog.Debug("StateManager CommitMessage", "conversationID", conversationID, "role", msg.Role, "length", len(msg.Content))
	if err := sm.store.AppendMessage(conversationID, msg); err != nil {
		slog.Error("StateManager CommitMessage error", "error", err, "conversationID", conversationID, "role", msg.Role)
		return err
	}
	return nil
}

// ClearHistory removes the committed history for a conversation.
func (sm *StoreBasedStateManager) ClearHistory(ctx context.Context, conversationID string) error {
	slog.Debug("StateManager ClearHistory", "conversationID", conversationID)
	if err := sm.store.DeleteMessages(conversationID); err != nil {
		slog.Error("StateManager ClearHistory error", "error", err, "conversationID", conversationID)
		return err
	}
	return nil
}
