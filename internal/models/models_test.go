package models

import (
	"strings"
	"testing"
)

func TestIsValidStage(t *testing.T) {
	valid := []Stage{StageInitial, StageGathering, StageAnalysis, StageSupport}
	for _, s := range valid {
		if !IsValidStage(s) {
			t.Errorf("expected stage %q to be valid", s)
		}
	}
	if IsValidStage("paused") {
		t.Error("expected unknown stage to be invalid")
	}
}

func TestContextSlotsMergeMonotonic(t *testing.T) {
	slots := NewContextSlots()

	slots.Merge(ContextSlots{
		RelationshipType: RelationshipBoyfriend,
		Duration:         DurationUnknown,
		EmotionalImpact:  true,
	})
	if slots.RelationshipType != RelationshipBoyfriend {
		t.Errorf("expected relationship boyfriend, got %q", slots.RelationshipType)
	}
	if !slots.EmotionalImpact {
		t.Error("expected emotional impact to be set")
	}

	// An unknown/false extraction never clears what has been gathered.
	slots.Merge(ContextSlots{RelationshipType: RelationshipUnknown, Duration: DurationYears})
	if slots.RelationshipType != RelationshipBoyfriend {
		t.Errorf("unknown extraction cleared relationship: %q", slots.RelationshipType)
	}
	if slots.Duration != DurationYears {
		t.Errorf("expected duration years, got %q", slots.Duration)
	}
	if !slots.EmotionalImpact {
		t.Error("false extraction cleared emotional impact")
	}

	// A more specific later extraction may overwrite.
	slots.Merge(ContextSlots{RelationshipType: RelationshipFamily})
	if slots.RelationshipType != RelationshipFamily {
		t.Errorf("expected overwrite to family, got %q", slots.RelationshipType)
	}
}

func TestNewConversationState(t *testing.T) {
	state := NewConversationState("conv-1")
	if state.Stage != StageInitial {
		t.Errorf("expected initial stage, got %q", state.Stage)
	}
	if state.MessagesExchanged != 0 {
		t.Errorf("expected zero messages exchanged, got %d", state.MessagesExchanged)
	}
	if state.Context.RelationshipType != RelationshipUnknown {
		t.Errorf("expected unknown relationship, got %q", state.Context.RelationshipType)
	}
}

func TestChatRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     ChatRequest
		wantErr error
	}{
		{"valid message", ChatRequest{Message: "he keeps checking my phone"}, nil},
		{"empty", ChatRequest{}, ErrEmptyMessage},
		{"image only", ChatRequest{ImageBase64: "aGk="}, nil},
		{"too long", ChatRequest{Message: strings.Repeat("a", MaxChatMessageLength+1)}, ErrMessageTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
