package store

import (
	"testing"
	"time"

	"github.com/gutcheck/gutcheck/internal/models"
)

func TestInMemoryStoreConversationState(t *testing.T) {
	s := NewInMemoryStore()

	got, err := s.GetConversationState("missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing state, got %+v", got)
	}

	state := models.NewConversationState("conv-1")
	state.Stage = models.StageGathering
	state.MessagesExchanged = 2
	if err := s.SaveConversationState(state); err != nil {
		t.Fatalf("SaveConversationState failed: %v", err)
	}

	got, err = s.GetConversationState("conv-1")
	if err != nil {
		t.Fatalf("GetConversationState failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected state, got nil")
	}
	if got.Stage != models.StageGathering || got.MessagesExchanged != 2 {
		t.Errorf("state did not round-trip: %+v", got)
	}

	// The returned value is a copy; mutating it must not affect the store.
	got.Stage = models.StageSupport
	again, _ := s.GetConversationState("conv-1")
	if again.Stage != models.StageGathering {
		t.Error("store state mutated through returned pointer")
	}

	if err := s.DeleteConversationState("conv-1"); err != nil {
		t.Fatalf("DeleteConversationState failed: %v", err)
	}
	got, _ = s.GetConversationState("conv-1")
	if got != nil {
		t.Error("expected state to be deleted")
	}
}

func TestInMemoryStoreMessages(t *testing.T) {
	s := NewInMemoryStore()

	msgs, err := s.ListMessages("conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty history, got %d messages", len(msgs))
	}

	now := time.Now()
	first := models.Message{Role: models.RoleUser, Content: "he did it again", Timestamp: now}
	second := models.Message{Role: models.RoleAssistant, Content: "How long has this been going on?", Timestamp: now}
	if err := s.AppendMessage("conv-1", first); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if err := s.AppendMessage("conv-1", second); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	msgs, err = s.ListMessages("conv-1")
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != models.RoleUser || msgs[1].Role != models.RoleAssistant {
		t.Errorf("messages out of commit order: %+v", msgs)
	}

	if err := s.DeleteMessages("conv-1"); err != nil {
		t.Fatalf("DeleteMessages failed: %v", err)
	}
	msgs, _ = s.ListMessages("conv-1")
	if len(msgs) != 0 {
		t.Error("expected history to be deleted")
	}
}

func TestInMemoryStoreProfile(t *testing.T) {
	s := NewInMemoryStore()

	got, err := s.GetProfile("user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing profile, got %+v", got)
	}

	profile := models.Profile{UserID: "user-1", Age: 24, Region: "UK", Struggles: "anxiety"}
	if err := s.SaveProfile(profile); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}
	got, err = s.GetProfile("user-1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got == nil || got.Region != "UK" || got.Age != 24 {
		t.Errorf("profile did not round-trip: %+v", got)
	}
}
