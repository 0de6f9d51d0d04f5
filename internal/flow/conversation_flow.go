// Package flow provides the conversation orchestrator: one user turn in,
// one finalized response out.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gutcheck/gutcheck/internal/detect"
	"github.com/gutcheck/gutcheck/internal/genai"
	"github.com/gutcheck/gutcheck/internal/helpline"
	"github.com/gutcheck/gutcheck/internal/models"
	"github.com/gutcheck/gutcheck/internal/typist"
	"github.com/openai/openai-go"
)

// DefaultRegion is assumed when neither the profile nor configuration
// supplies one. The helpline table is UK-centric.
const DefaultRegion = "UK"

// DefaultHistoryLimit bounds how many committed messages are replayed into
// the prompt. Detectors always see the full history regardless.
const DefaultHistoryLimit = 10

// Chunk length targets per response shape.
const (
	chunkLenAnalysis = 200
	chunkLenDefault  = 150
)

// attachmentFailureNote is appended to the user content when an attachment
// was present but could not be decoded; the turn proceeds text-only.
const attachmentFailureNote = "[attachment present but could not be read]"

// TurnRequest is one user turn handed to the orchestrator.
type TurnRequest struct {
	ConversationID string
	UserID         string
	Message        string
	ImageData      []byte
	ImageMediaType string
	// ImageFailed marks an attachment that was present but undecodable.
	ImageFailed bool
}

// ConversationFlow orchestrates turns: detectors, stage transition, prompt
// selection, the completion call, helpline merge, and history commits.
// One instance serves many conversations; per-conversation turns are
// serialized by an in-flight guard.
type ConversationFlow struct {
	stateManager StateManager
	profiles     ProfileReader
	genaiClient  genai.ClientInterface
	region       string
	historyLimit int

	mu       sync.Mutex
	inFlight map[string]bool
}

// FlowOption configures the conversation flow.
type FlowOption func(*ConversationFlow)

// WithDefaultRegion sets the region assumed when the profile has none.
func WithDefaultRegion(region string) FlowOption {
	return func(f *ConversationFlow) { f.region = region }
}

// WithHistoryLimit bounds the number of history messages replayed into
// prompts. Zero or negative means no limit.
func WithHistoryLimit(n int) FlowOption {
	return func(f *ConversationFlow) { f.historyLimit = n }
}

// NewConversationFlow creates a conversation flow with its dependencies.
func NewConversationFlow(deps Dependencies, genaiClient genai.ClientInterface, opts ...FlowOption) *ConversationFlow {
	slog.Debug("ConversationFlow.NewConversationFlow: creating flow", "hasGenAI", genaiClient != nil, "hasProfiles", deps.Profiles != nil)
	f := &ConversationFlow{
		stateManager: deps.StateManager,
		profiles:     deps.Profiles,
		genaiClient:  genaiClient,
		region:       DefaultRegion,
		historyLimit: DefaultHistoryLimit,
		inFlight:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// beginTurn marks a conversation as having a turn in flight. The send
// affordance stays disabled client-side, but the server enforces it too:
// two sessions must never mutate the same conversation state.
func (f *ConversationFlow) beginTurn(conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight[conversationID] {
		return models.ErrTurnInProgress
	}
	f.inFlight[conversationID] = true
	return nil
}

func (f *ConversationFlow) endTurn(conversationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inFlight, conversationID)
}

// ProcessTurn runs one full turn and commits the user message and the whole
// assistant response to history. Completion-service failures are recovered
// into FallbackResponse and never surface as errors.
func (f *ConversationFlow) ProcessTurn(ctx context.Context, req TurnRequest) (*models.ChatResponse, error) {
	if err := f.beginTurn(req.ConversationID); err != nil {
		slog.Warn("ConversationFlow.ProcessTurn: turn already in progress", "conversationID", req.ConversationID)
		return nil, err
	}
	defer f.endTurn(req.ConversationID)

	turn, err := f.produceTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := f.commitTurn(ctx, req.ConversationID, turn, turn.response.Response); err != nil {
		// History persistence failing must not lose the response; log and return it.
		slog.Error("ConversationFlow.ProcessTurn: failed to commit turn", "error", err, "conversationID", req.ConversationID)
	}
	return turn.response, nil
}

// ProcessTurnWithReveal runs one full turn and drives the typing reveal
// server-side: each chunk is revealed through onUpdate and committed to
// history only after its reveal completes. Cancelling ctx mid-reveal
// discards the in-progress chunk without committing it.
func (f *ConversationFlow) ProcessTurnWithReveal(ctx context.Context, req TurnRequest, w *typist.Typewriter, onUpdate func(partial string)) (*models.ChatResponse, error) {
	if err := f.beginTurn(req.ConversationID); err != nil {
		return nil, err
	}
	defer f.endTurn(req.ConversationID)

	turn, err := f.produceTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	// The user message and the advanced state commit up front; assistant
	// chunks commit one by one as their reveals complete.
	if err := f.stateManager.CommitMessage(ctx, req.ConversationID, turn.userMessage); err != nil {
		slog.Error("ConversationFlow.ProcessTurnWithReveal: failed to commit user message", "error", err, "conversationID", req.ConversationID)
	}
	if err := f.stateManager.SaveState(ctx, turn.state); err != nil {
		slog.Error("ConversationFlow.ProcessTurnWithReveal: failed to save state", "error", err, "conversationID", req.ConversationID)
	}

	err = w.RevealAll(ctx, turn.response.Chunks, onUpdate, func(chunk string) {
		commitErr := f.stateManager.CommitMessage(ctx, req.ConversationID, models.Message{
			Role:      models.RoleAssistant,
			Content:   chunk,
			Timestamp: time.Now(),
		})
		if commitErr != nil {
			slog.Error("ConversationFlow.ProcessTurnWithReveal: failed to commit chunk", "error", commitErr, "conversationID", req.ConversationID)
		}
	})
	if err != nil {
		slog.Info("ConversationFlow.ProcessTurnWithReveal: reveal cancelled", "conversationID", req.ConversationID, "error", err)
		return turn.response, err
	}
	return turn.response, nil
}

// producedTurn carries the outcome of one turn before anything is committed.
type producedTurn struct {
	response    *models.ChatResponse
	state       models.ConversationState
	userMessage models.Message
}

// produceTurn computes a full turn without committing anything: detectors,
// stage decision, prompt build, completion call, helpline merge, chunking.
func (f *ConversationFlow) produceTurn(ctx context.Context, req TurnRequest) (*producedTurn, error) {
	if f.stateManager == nil || f.genaiClient == nil {
		slog.Error("ConversationFlow.produceTurn: dependencies not initialized")
		return nil, fmt.Errorf("flow dependencies not properly initialized")
	}

	// Load or create state.
	statePtr, err := f.stateManager.GetState(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation state: %w", err)
	}
	var state models.ConversationState
	if statePtr == nil {
		slog.Debug("ConversationFlow.produceTurn: initializing new conversation", "conversationID", req.ConversationID)
		state = models.NewConversationState(req.ConversationID)
		state.UserID = req.UserID
	} else {
		state = *statePtr
	}

	history, err := f.stateManager.History(ctx, req.ConversationID)
	if err != nil {
		slog.Error("ConversationFlow.produceTurn: failed to load history, continuing with current message only", "error", err, "conversationID", req.ConversationID)
		history = nil
	}

	// Assemble the user content, downgrading a failed attachment to a note
	// rather than failing the turn.
	userContent := req.Message
	hasImage := len(req.ImageData) > 0
	if req.ImageFailed {
		if userContent != "" {
			userContent += "\n" + attachmentFailureNote
		} else {
			userContent = attachmentFailureNote
		}
	}

	// Detectors run over the full accumulated conversation text.
	fullText := accumulateText(history, userContent)

	// Slot extraction runs on every user turn regardless of stage transitions.
	state.Context.Merge(ExtractContextSlots(userContent))

	decision := DecideTurn(state, userContent, fullText, hasImage)
	slog.Debug("ConversationFlow.produceTurn: turn decided",
		"conversationID", req.ConversationID, "path", decision.Path,
		"stage", decision.Stage, "nextStage", decision.NextStage)

	profile := f.loadProfile(req.UserID, state.UserID)
	region := f.region
	if profile != nil && profile.Region != "" {
		region = profile.Region
	}

	systemPrompt := BuildSystemPrompt(decision.Path, PromptContext{
		Profile:           profile,
		IncludePersonal:   detect.ShouldIncludePersonalContext(fullText),
		Slots:             state.Context,
		MessagesExchanged: state.MessagesExchanged,
		HasImage:          hasImage,
	})

	messages := f.buildMessages(systemPrompt, history)

	var responseText string
	if hasImage {
		responseText, err = f.genaiClient.GenerateWithImage(ctx, messages, userContent, req.ImageData, req.ImageMediaType)
	} else {
		responseText, err = f.genaiClient.GenerateWithMessages(ctx, append(messages, openai.UserMessage(userContent)))
	}
	if err != nil {
		// Recovered locally: fixed fallback text, stage reset to initial,
		// never a visible error to the presentation layer.
		slog.Error("ConversationFlow.produceTurn: completion failed, using fallback", "error", err, "conversationID", req.ConversationID)
		state.Stage = models.StageInitial
		fallback := &producedTurn{
			response: &models.ChatResponse{
				ConversationID: req.ConversationID,
				Response:       FallbackResponse,
				NextStage:      models.StageInitial,
				Chunks:         typist.ChunkMessage(FallbackResponse, chunkLenDefault),
			},
			state:       state,
			userMessage: newUserMessage(userContent, req, hasImage),
		}
		return fallback, nil
	}

	if decision.Path == PathImmediate {
		responseText = strings.TrimRight(responseText, "\n") + "\n\n" + AnalysisLinkAffordance
	}

	// Safety overlay: computed over the full conversation text, independent
	// of which path fired. Exactly one block is ever appended.
	crisis := models.CrisisSignal{
		IsCrisis:          detect.IsCrisisSituation(fullText),
		IsImmediateDanger: detect.IsImmediateDanger(fullText),
		MatchedHelplines:  helpline.GetRelevantHelplines(fullText, region),
	}
	if block := helpline.GetRecommendationMessage(crisis.IsCrisis, crisis.IsImmediateDanger, crisis.MatchedHelplines, region); block != "" {
		responseText = responseText + "\n\n" + block
	}

	// Advance state for the completed turn.
	state.Stage = decision.NextStage
	state.MessagesExchanged++
	if hasImage {
		state.HasImage = true
		state.ImageAnalyzed = true
	}

	maxLen := chunkLenDefault
	if decision.Path == PathImmediate || decision.Path == PathAnalysis {
		maxLen = chunkLenAnalysis
	}

	slog.Info("ConversationFlow.produceTurn: turn produced",
		"conversationID", req.ConversationID, "path", decision.Path,
		"nextStage", state.Stage, "responseLength", len(responseText),
		"crisis", crisis.IsCrisis, "danger", crisis.IsImmediateDanger)

	return &producedTurn{
		response: &models.ChatResponse{
			ConversationID: req.ConversationID,
			Response:       responseText,
			NextStage:      state.Stage,
			Chunks:         typist.ChunkMessage(responseText, maxLen),
			Crisis:         crisis,
		},
		state:       state,
		userMessage: newUserMessage(userContent, req, hasImage),
	}, nil
}

// commitTurn persists one completed turn: user message, assistant response,
// advanced state.
func (f *ConversationFlow) commitTurn(ctx context.Context, conversationID string, turn *producedTurn, assistantText string) error {
	if err := f.stateManager.CommitMessage(ctx, conversationID, turn.userMessage); err != nil {
		return fmt.Errorf("failed to commit user message: %w", err)
	}
	assistantMsg := models.Message{
		Role:      models.RoleAssistant,
		Content:   assistantText,
		Timestamp: time.Now(),
	}
	if err := f.stateManager.CommitMessage(ctx, conversationID, assistantMsg); err != nil {
		return fmt.Errorf("failed to commit assistant message: %w", err)
	}
	if err := f.stateManager.SaveState(ctx, turn.state); err != nil {
		return fmt.Errorf("failed to save conversation state: %w", err)
	}
	return nil
}

// Reset destroys the state and history for a conversation; the next turn
// starts a fresh session at the initial stage.
func (f *ConversationFlow) Reset(ctx context.Context, conversationID string) error {
	slog.Info("ConversationFlow.Reset: resetting conversation", "conversationID", conversationID)
	if err := f.stateManager.ResetState(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to reset state: %w", err)
	}
	if err := f.stateManager.ClearHistory(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	f.mu.Lock()
	delete(f.inFlight, conversationID)
	f.mu.Unlock()
	return nil
}

// Snapshot returns the committed history plus current state for
// resume-from-history.
func (f *ConversationFlow) Snapshot(ctx context.Context, conversationID string) (*models.ConversationSnapshot, error) {
	state, err := f.stateManager.GetState(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation state: %w", err)
	}
	if state == nil {
		return nil, models.ErrConversationNotFound
	}
	history, err := f.stateManager.History(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return &models.ConversationSnapshot{State: *state, Messages: history}, nil
}

// buildMessages assembles the prompt message list: system prompt plus the
// bounded tail of committed history. The current user message is appended by
// the caller, so at minimum the prompt always carries the current turn even
// when history is empty or was filtered away.
func (f *ConversationFlow) buildMessages(systemPrompt string, history []models.Message) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(systemPrompt)}

	start := 0
	if f.historyLimit > 0 && len(history) > f.historyLimit {
		start = len(history) - f.historyLimit
	}
	for _, msg := range history[start:] {
		switch msg.Role {
		case models.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}
	return messages
}

// loadProfile fetches the profile for the turn's user, preferring the
// request's user ID over the one recorded in state. Profile read failures
// degrade to no profile rather than failing the turn.
func (f *ConversationFlow) loadProfile(requestUserID, stateUserID string) *models.Profile {
	if f.profiles == nil {
		return nil
	}
	userID := requestUserID
	if userID == "" {
		userID = stateUserID
	}
	if userID == "" {
		return nil
	}
	profile, err := f.profiles.GetProfile(userID)
	if err != nil {
		slog.Warn("ConversationFlow.loadProfile: profile read failed, continuing without profile", "error", err, "userID", userID)
		return nil
	}
	return profile
}

// accumulateText joins the committed history and the current turn into the
// single text blob the detectors scan.
func accumulateText(history []models.Message, current string) string {
	var b strings.Builder
	for _, msg := range history {
		if msg.Role == models.RoleUser {
			b.WriteString(msg.Content)
			b.WriteString("\n")
		}
	}
	b.WriteString(current)
	return b.String()
}

func newUserMessage(content string, req TurnRequest, hasImage bool) models.Message {
	msg := models.Message{
		Role:      models.RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
	if hasImage {
		msg.AttachmentRef = req.ImageMediaType
	}
	return msg
}
