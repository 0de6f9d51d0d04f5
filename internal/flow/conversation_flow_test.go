package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gutcheck/gutcheck/internal/models"
	"github.com/gutcheck/gutcheck/internal/store"
	"github.com/gutcheck/gutcheck/internal/typist"
	"github.com/openai/openai-go"
)

// fakeGenAI is a scripted completion client. It optionally blocks on release
// so tests can hold a turn in flight.
type fakeGenAI struct {
	mu       sync.Mutex
	response string
	err      error
	release  chan struct{}

	calls        int
	lastMessages []openai.ChatCompletionMessageParamUnion
}

func (f *fakeGenAI) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	f.mu.Lock()
	f.calls++
	f.lastMessages = messages
	release := f.release
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	return f.response, f.err
}

func (f *fakeGenAI) GenerateWithImage(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, userText string, imageData []byte, mediaType string) (string, error) {
	return f.GenerateWithMessages(ctx, messages)
}

func (f *fakeGenAI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeGenAI) promptLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lastMessages)
}

type fakeProfiles struct {
	profile *models.Profile
	err     error
}

func (f *fakeProfiles) GetProfile(userID string) (*models.Profile, error) {
	return f.profile, f.err
}

func newTestFlow(t *testing.T, client *fakeGenAI, profiles ProfileReader, opts ...FlowOption) (*ConversationFlow, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	t.Cleanup(func() { st.Close() })
	deps := Dependencies{
		StateManager: NewStoreBasedStateManager(st),
		Profiles:     profiles,
	}
	return NewConversationFlow(deps, client, opts...), st
}

func TestProcessTurnImmediatePath(t *testing.T) {
	canned := "What you're describing is a recognized manipulation tactic. On a severity scale I'd put this at 7 out of 10."
	client := &fakeGenAI{response: canned}
	flow, st := newTestFlow(t, client, nil)

	resp, err := flow.ProcessTurn(context.Background(), TurnRequest{
		ConversationID: "conv-1",
		UserID:         "user-1",
		Message:        "he keeps telling me that never happened, you're imagining things",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if !strings.Contains(resp.Response, canned) {
		t.Errorf("response missing generated text: %q", resp.Response)
	}
	if !strings.Contains(resp.Response, AnalysisLinkAffordance) {
		t.Errorf("immediate response missing analysis link affordance: %q", resp.Response)
	}
	if resp.NextStage != models.StageSupport {
		t.Errorf("expected support after immediate analysis, got %q", resp.NextStage)
	}
	if len(resp.Chunks) == 0 {
		t.Error("expected chunks")
	}
	for i, chunk := range resp.Chunks {
		if len(chunk) > chunkLenAnalysis {
			t.Errorf("chunk %d exceeds the analysis chunk length: %d", i, len(chunk))
		}
	}
	if resp.Crisis.IsCrisis || resp.Crisis.IsImmediateDanger {
		t.Errorf("unexpected safety signal: %+v", resp.Crisis)
	}

	// Both sides of the turn committed, state advanced.
	msgs, err := st.ListMessages("conv-1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != models.RoleUser || msgs[1].Role != models.RoleAssistant {
		t.Fatalf("expected user+assistant committed, got %d messages", len(msgs))
	}
	state, err := st.GetConversationState("conv-1")
	if err != nil || state == nil {
		t.Fatalf("GetConversationState: state=%v err=%v", state, err)
	}
	if state.Stage != models.StageSupport || state.MessagesExchanged != 1 {
		t.Errorf("state not advanced: stage=%q exchanged=%d", state.Stage, state.MessagesExchanged)
	}
}

func TestProcessTurnCrisisAppendsHelplines(t *testing.T) {
	client := &fakeGenAI{response: "I'm really glad you told me. That sounds incredibly heavy."}
	flow, _ := newTestFlow(t, client, nil)

	resp, err := flow.ProcessTurn(context.Background(), TurnRequest{
		ConversationID: "conv-2",
		Message:        "some days I think about suicide because I can't cope with him",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if !resp.Crisis.IsCrisis {
		t.Error("expected crisis signal")
	}
	if resp.Crisis.IsImmediateDanger {
		t.Error("did not expect immediate danger")
	}
	if !strings.Contains(resp.Response, "Samaritans") {
		t.Errorf("crisis response missing Samaritans: %q", resp.Response)
	}
	if !strings.Contains(resp.Response, "116 123") {
		t.Errorf("crisis response missing formatted number: %q", resp.Response)
	}
	if strings.Contains(resp.Response, "immediate danger") {
		t.Errorf("crisis block must not use the danger template: %q", resp.Response)
	}
}

func TestProcessTurnImmediateDangerLeadsWithEmergency(t *testing.T) {
	client := &fakeGenAI{response: "Your safety comes first."}
	flow, _ := newTestFlow(t, client, nil)

	resp, err := flow.ProcessTurn(context.Background(), TurnRequest{
		ConversationID: "conv-3",
		Message:        "he is hitting the door right now and I'm scared",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if !resp.Crisis.IsImmediateDanger {
		t.Fatal("expected immediate danger signal")
	}
	if !strings.Contains(resp.Response, "999") {
		t.Errorf("danger response missing emergency number: %q", resp.Response)
	}
	if !strings.Contains(resp.Response, "immediate danger") {
		t.Errorf("danger response missing danger wording: %q", resp.Response)
	}
}

func TestProcessTurnFallbackOnCompletionFailure(t *testing.T) {
	client := &fakeGenAI{err: errors.New("upstream timed out")}
	flow, st := newTestFlow(t, client, nil)

	resp, err := flow.ProcessTurn(context.Background(), TurnRequest{
		ConversationID: "conv-4",
		Message:        "my partner forgot my birthday",
	})
	if err != nil {
		t.Fatalf("completion failure must not surface as an error, got %v", err)
	}
	if resp.Response != FallbackResponse {
		t.Errorf("expected fallback text, got %q", resp.Response)
	}
	if resp.NextStage != models.StageInitial {
		t.Errorf("expected stage reset to initial, got %q", resp.NextStage)
	}
	if len(resp.Chunks) == 0 {
		t.Error("fallback must still be chunked")
	}

	// The saved state reflects the reset, so the next turn starts over.
	state, err := st.GetConversationState("conv-4")
	if err != nil || state == nil {
		t.Fatalf("GetConversationState: state=%v err=%v", state, err)
	}
	if state.Stage != models.StageInitial {
		t.Errorf("persisted stage should be initial, got %q", state.Stage)
	}
}

func TestProcessTurnSerializesPerConversation(t *testing.T) {
	release := make(chan struct{})
	client := &fakeGenAI{response: "ok", release: release}
	flow, _ := newTestFlow(t, client, nil)

	firstDone := make(chan error, 1)
	go func() {
		_, err := flow.ProcessTurn(context.Background(), TurnRequest{ConversationID: "conv-5", Message: "first"})
		firstDone <- err
	}()

	// Wait until the first turn is inside the completion call.
	for client.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	_, err := flow.ProcessTurn(context.Background(), TurnRequest{ConversationID: "conv-5", Message: "second"})
	if !errors.Is(err, models.ErrTurnInProgress) {
		t.Errorf("expected ErrTurnInProgress for concurrent turn, got %v", err)
	}

	// A different conversation is not blocked.
	otherDone := make(chan error, 1)
	go func() {
		_, err := flow.ProcessTurn(context.Background(), TurnRequest{ConversationID: "conv-other", Message: "hello"})
		otherDone <- err
	}()

	close(release)
	if err := <-firstDone; err != nil {
		t.Errorf("first turn failed: %v", err)
	}
	if err := <-otherDone; err != nil {
		t.Errorf("independent conversation failed: %v", err)
	}

	// The guard clears once the turn finishes.
	if _, err := flow.ProcessTurn(context.Background(), TurnRequest{ConversationID: "conv-5", Message: "third"}); err != nil {
		t.Errorf("turn after completion failed: %v", err)
	}
}

func TestProcessTurnPromptAlwaysCarriesCurrentMessage(t *testing.T) {
	client := &fakeGenAI{response: "ok"}
	flow, _ := newTestFlow(t, client, nil)

	_, err := flow.ProcessTurn(context.Background(), TurnRequest{ConversationID: "conv-6", Message: "hello there"})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	// Fresh conversation: system prompt plus the current user message.
	if got := client.promptLen(); got != 2 {
		t.Errorf("expected 2 prompt messages on a fresh conversation, got %d", got)
	}
}

func TestProcessTurnHistoryLimitBoundsPrompt(t *testing.T) {
	client := &fakeGenAI{response: "ok"}
	flow, _ := newTestFlow(t, client, nil, WithHistoryLimit(2))

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := flow.ProcessTurn(ctx, TurnRequest{ConversationID: "conv-7", Message: "another plain update"}); err != nil {
			t.Fatalf("turn %d: %v", i+1, err)
		}
	}
	// system + 2 history + current = 4, despite 6 committed messages.
	if got := client.promptLen(); got != 4 {
		t.Errorf("expected 4 prompt messages with limit 2, got %d", got)
	}
}

func TestResetClearsStateAndHistory(t *testing.T) {
	client := &fakeGenAI{response: "ok"}
	flow, st := newTestFlow(t, client, nil)
	ctx := context.Background()

	if _, err := flow.ProcessTurn(ctx, TurnRequest{ConversationID: "conv-8", Message: "my partner forgot my birthday"}); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if err := flow.Reset(ctx, "conv-8"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if _, err := flow.Snapshot(ctx, "conv-8"); !errors.Is(err, models.ErrConversationNotFound) {
		t.Errorf("expected not-found after reset, got %v", err)
	}
	msgs, err := st.ListMessages("conv-8")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty history after reset, got %d messages", len(msgs))
	}
}

func TestSnapshotUnknownConversation(t *testing.T) {
	client := &fakeGenAI{response: "ok"}
	flow, _ := newTestFlow(t, client, nil)
	if _, err := flow.Snapshot(context.Background(), "never-seen"); !errors.Is(err, models.ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestProcessTurnWithRevealCommitsChunks(t *testing.T) {
	client := &fakeGenAI{response: "First part of it. Second part of it."}
	flow, st := newTestFlow(t, client, nil)
	w := typist.NewTypewriter(typist.WithDelays(typist.Delays{}))

	var updates int
	resp, err := flow.ProcessTurnWithReveal(context.Background(), TurnRequest{
		ConversationID: "conv-9",
		Message:        "my partner forgot my birthday",
	}, w, func(partial string) { updates++ })
	if err != nil {
		t.Fatalf("ProcessTurnWithReveal: %v", err)
	}
	if updates == 0 {
		t.Error("expected reveal updates")
	}

	msgs, err := st.ListMessages("conv-9")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	// User message plus one assistant message per chunk.
	if len(msgs) != 1+len(resp.Chunks) {
		t.Fatalf("expected %d messages, got %d", 1+len(resp.Chunks), len(msgs))
	}
	for i, chunk := range resp.Chunks {
		if msgs[1+i].Content != chunk {
			t.Errorf("chunk %d: committed %q, revealed %q", i, msgs[1+i].Content, chunk)
		}
	}
}

func TestProcessTurnWithRevealCancelDiscardsChunks(t *testing.T) {
	client := &fakeGenAI{response: "This reply never finishes revealing."}
	flow, st := newTestFlow(t, client, nil)
	w := typist.NewTypewriter() // real delays, so the cancelled context wins

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := flow.ProcessTurnWithReveal(ctx, TurnRequest{
		ConversationID: "conv-10",
		Message:        "my partner forgot my birthday",
	}, w, func(string) {})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	msgs, listErr := st.ListMessages("conv-10")
	if listErr != nil {
		t.Fatalf("ListMessages: %v", listErr)
	}
	// The user message commits up front; no assistant chunk may.
	if len(msgs) != 1 || msgs[0].Role != models.RoleUser {
		t.Fatalf("expected only the user message, got %d messages", len(msgs))
	}
}

func TestProcessTurnProfileRegionDrivesEmergencyWording(t *testing.T) {
	client := &fakeGenAI{response: "Your safety comes first."}
	profiles := &fakeProfiles{profile: &models.Profile{UserID: "user-2", Region: "US"}}
	flow, _ := newTestFlow(t, client, profiles)

	resp, err := flow.ProcessTurn(context.Background(), TurnRequest{
		ConversationID: "conv-11",
		UserID:         "user-2",
		Message:        "he is hitting the wall right now and I'm scared",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if strings.Contains(resp.Response, "999") {
		t.Errorf("non-UK region must not surface 999: %q", resp.Response)
	}
	if !strings.Contains(resp.Response, "your local emergency number") {
		t.Errorf("expected region-neutral emergency wording: %q", resp.Response)
	}
}

func TestProcessTurnProfileReadFailureDegrades(t *testing.T) {
	client := &fakeGenAI{response: "ok"}
	profiles := &fakeProfiles{err: errors.New("profile backend down")}
	flow, _ := newTestFlow(t, client, profiles)

	if _, err := flow.ProcessTurn(context.Background(), TurnRequest{
		ConversationID: "conv-12",
		UserID:         "user-3",
		Message:        "my partner forgot my birthday",
	}); err != nil {
		t.Fatalf("profile failure must not fail the turn: %v", err)
	}
}
