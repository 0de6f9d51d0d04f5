// Package flow implements the conversation state machine and the response
// orchestrator for GutCheck.
package flow

import (
	"context"

	"github.com/gutcheck/gutcheck/internal/models"
)

// StateManager defines the interface for managing conversation state and the
// committed message history.
type StateManager interface {
	// GetState retrieves the live state for a conversation, nil when none exists
	GetState(ctx context.Context, conversationID string) (*models.ConversationState, error)

	// SaveState stores or updates the live state for a conversation
	SaveState(ctx context.Context, state models.ConversationState) error

	// ResetState removes the live state for a conversation
	ResetState(ctx context.Context, conversationID string) error

	// History returns the committed messages in commit order
	History(ctx context.Context, conversationID string) ([]models.Message, error)

	// CommitMessage appends one finalized message to the durable history
	CommitMessage(ctx context.Context, conversationID string, msg models.Message) error

	// ClearHistory removes the committed history for a conversation
	ClearHistory(ctx context.Context, conversationID string) error
}

// ProfileReader provides read-only access to user profiles. The orchestrator
// receives it explicitly so tests can inject fixed profiles.
type ProfileReader interface {
	// GetProfile retrieves a user profile, nil when none exists
	GetProfile(userID string) (*models.Profile, error)
}

// Dependencies holds everything injected into the conversation flow.
type Dependencies struct {
	StateManager StateManager
	Profiles     ProfileReader
}
