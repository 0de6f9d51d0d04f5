// Package models defines the core data structures for GutCheck.
//
// It includes the conversation state machine types, committed messages,
// helpline records, crisis signals, and the API request/response envelope
// shared across modules.
package models

import (
	"errors"
	"time"
)

// Stage identifies the conversation's current phase in the state machine.
type Stage string

const (
	// StageInitial is the state before the first user message is processed.
	StageInitial Stage = "initial"
	// StageGathering means the assistant is asking clarifying questions.
	StageGathering Stage = "gathering"
	// StageAnalysis means the assistant is producing the structured analysis this turn.
	StageAnalysis Stage = "analysis"
	// StageSupport is the soft-terminal state after an analysis has been delivered.
	StageSupport Stage = "support"
)

// IsValidStage checks if the given stage is one of the known machine states.
func IsValidStage(s Stage) bool {
	switch s {
	case StageInitial, StageGathering, StageAnalysis, StageSupport:
		return true
	default:
		return false
	}
}

// RelationshipType is the inferred kind of relationship the user describes.
type RelationshipType string

const (
	RelationshipBoyfriend  RelationshipType = "boyfriend"
	RelationshipGirlfriend RelationshipType = "girlfriend"
	RelationshipFriend     RelationshipType = "friend"
	RelationshipFamily     RelationshipType = "family"
	RelationshipUnknown    RelationshipType = "unknown"
)

// Duration is the inferred length of the relationship or situation.
type Duration string

const (
	DurationWeeks   Duration = "weeks"
	DurationMonths  Duration = "months"
	DurationYears   Duration = "years"
	DurationUnknown Duration = "unknown"
)

// ContextSlots holds the optional inferred attributes of the user's situation.
// Slots are monotonic within a session: once set true or non-unknown they are
// never cleared, only overwritten by a later non-unknown extraction.
type ContextSlots struct {
	RelationshipType RelationshipType `json:"relationship_type"`
	Duration         Duration         `json:"duration"`
	SpecificIncident bool             `json:"specific_incident"`
	EmotionalImpact  bool             `json:"emotional_impact"`
	PatternHistory   bool             `json:"pattern_history"`
}

// NewContextSlots returns slots with every category unknown/unset.
func NewContextSlots() ContextSlots {
	return ContextSlots{
		RelationshipType: RelationshipUnknown,
		Duration:         DurationUnknown,
	}
}

// Merge applies a later extraction onto the slots, preserving monotonicity:
// unknown/false values in next never erase known values.
func (c *ContextSlots) Merge(next ContextSlots) {
	if next.RelationshipType != RelationshipUnknown && next.RelationshipType != "" {
		c.RelationshipType = next.RelationshipType
	}
	if next.Duration != DurationUnknown && next.Duration != "" {
		c.Duration = next.Duration
	}
	c.SpecificIncident = c.SpecificIncident || next.SpecificIncident
	c.EmotionalImpact = c.EmotionalImpact || next.EmotionalImpact
	c.PatternHistory = c.PatternHistory || next.PatternHistory
}

// ConversationState is the single mutable record tracking one active chat.
// Exactly one session owns a given instance; it is persisted between turns
// and destroyed by an explicit reset.
type ConversationState struct {
	ConversationID    string       `json:"conversation_id"`
	UserID            string       `json:"user_id,omitempty"`
	Stage             Stage        `json:"stage"`
	MessagesExchanged int          `json:"messages_exchanged"`
	HasImage          bool         `json:"has_image"`
	ImageAnalyzed     bool         `json:"image_analyzed"`
	Context           ContextSlots `json:"context_gathered"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// NewConversationState creates the initial state for a fresh conversation.
func NewConversationState(conversationID string) ConversationState {
	now := time.Now()
	return ConversationState{
		ConversationID: conversationID,
		Stage:          StageInitial,
		Context:        NewContextSlots(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// MessageRole identifies the author of a committed message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one committed entry in the append-only conversation history.
// Messages are immutable once committed; the live "currently revealing" text
// is never part of history.
type Message struct {
	Role          MessageRole `json:"role"`
	Content       string      `json:"content"`
	AttachmentRef string      `json:"attachment_ref,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// HelplineCategory groups helplines by the kind of support they provide.
type HelplineCategory string

const (
	CategoryChild        HelplineCategory = "child"
	CategoryMentalHealth HelplineCategory = "mental-health"
	CategoryAbuse        HelplineCategory = "abuse"
	CategoryGeneral      HelplineCategory = "general"
)

// HelplineRecord describes one crisis support line. The table of records is
// process-wide, loaded at startup and never mutated, so it is safe for
// unsynchronized concurrent reads.
type HelplineRecord struct {
	Name           string           `json:"name"`
	DialNumber     string           `json:"dial_number"`
	Description    string           `json:"description"`
	Icon           string           `json:"icon"`
	Category       HelplineCategory `json:"category"`
	Region         string           `json:"region,omitempty"` // empty means available everywhere
	AvailableHours string           `json:"available_hours"`
	Keywords       []string         `json:"keywords"`
}

// CrisisSignal is the derived, per-turn safety assessment. It is recomputed
// on every turn from the full accumulated conversation text and never persisted.
type CrisisSignal struct {
	IsCrisis          bool             `json:"is_crisis"`
	IsImmediateDanger bool             `json:"is_immediate_danger"`
	MatchedHelplines  []HelplineRecord `json:"matched_helplines,omitempty"`
}

// Profile holds the user attributes read from the profile store. Struggles
// and goals are sensitive and only injected into prompts when the current
// conversation shows a vulnerability signal.
type Profile struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	Age       int    `json:"age,omitempty"`
	Region    string `json:"region,omitempty"`
	Struggles string `json:"struggles,omitempty"`
	Goals     string `json:"goals,omitempty"`
}

// Validation constants for input validation
const (
	// MaxChatMessageLength defines the maximum allowed length for one user message
	MaxChatMessageLength = 8192
	// MaxImageBytes defines the maximum allowed decoded attachment size (5 MiB)
	MaxImageBytes = 5 << 20
)

// Error variables for better error handling and testability
var (
	ErrEmptyMessage         = errors.New("message cannot be empty")
	ErrMessageTooLong       = errors.New("message exceeds maximum length")
	ErrInvalidImage         = errors.New("image attachment could not be decoded")
	ErrImageTooLarge        = errors.New("image attachment exceeds maximum size")
	ErrInvalidStage         = errors.New("invalid conversation stage")
	ErrTurnInProgress       = errors.New("a turn is already in progress for this conversation")
	ErrConversationNotFound = errors.New("conversation not found")
)

// ChatRequest is one user turn submitted to the conversation core.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Message        string `json:"message"`
	ImageBase64    string `json:"image_base64,omitempty"`
	ImageMediaType string `json:"image_media_type,omitempty"`
}

// Validate performs validation on a ChatRequest.
func (r *ChatRequest) Validate() error {
	if r.Message == "" && r.ImageBase64 == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxChatMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ChatResponse is the orchestrator's outbound contract to the presentation
// layer: the final response text (helpline block already appended), the stage
// after the turn, the sentence-bounded chunks for reveal, and the per-turn
// crisis snapshot.
type ChatResponse struct {
	ConversationID string       `json:"conversation_id"`
	Response       string       `json:"response"`
	NextStage      Stage        `json:"next_stage"`
	Chunks         []string     `json:"chunks"`
	Crisis         CrisisSignal `json:"crisis"`
}

// ConversationSnapshot is the committed history plus live state, used for
// resume-from-history.
type ConversationSnapshot struct {
	State    ConversationState `json:"state"`
	Messages []Message         `json:"messages"`
}
