package detect

import "testing"

func TestIsCrisisSituation(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"direct phrase", "sometimes I just want to die", true},
		{"uppercase", "I want to DIE", true},
		{"mixed case", "i've been feeling SUICIDAL lately", true},
		{"hyphenated", "I've thought about self-harm", true},
		{"negated still triggers", "I don't want to die, but it's hard", true},
		{"no crisis", "he forgot my birthday again", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCrisisSituation(tt.text); got != tt.want {
				t.Errorf("IsCrisisSituation(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestIsImmediateDanger(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"both sets present", "he is hitting the door right now", true},
		{"timing and weapon", "she's about to grab the knife", true},
		{"timing only", "he's coming home right now", false},
		{"violence only", "he punched the wall last month", false},
		{"neither", "we argued about money", false},
		{"case insensitive", "HE IS HITTING ME RIGHT NOW", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsImmediateDanger(tt.text); got != tt.want {
				t.Errorf("IsImmediateDanger(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestShouldRespondImmediately(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		hasImage bool
		want     bool
	}{
		{"manipulation quote", "he said that never happened, you're imagining things", false, true},
		{"danger keyword", "he threatened to leave me stranded", false, true},
		{"image alone", "what do you think of this", true, true},
		{"plain message", "we've been together a while", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRespondImmediately(tt.text, tt.hasImage); got != tt.want {
				t.Errorf("ShouldRespondImmediately(%q, %v) = %v, want %v", tt.text, tt.hasImage, got, tt.want)
			}
		})
	}
}

func TestNeedsDirectAdvice(t *testing.T) {
	if !NeedsDirectAdvice("she keeps saying you're crazy whenever I bring it up") {
		t.Error("expected manipulation quote to need direct advice")
	}
	if !NeedsDirectAdvice("I feel unsafe around him") {
		t.Error("expected danger keyword to need direct advice")
	}
	if NeedsDirectAdvice("we had a nice dinner") {
		t.Error("did not expect plain text to need direct advice")
	}
}

func TestShouldIncludePersonalContext(t *testing.T) {
	if !ShouldIncludePersonalContext("I'm really struggling with trust after this") {
		t.Error("expected vulnerability keyword to include personal context")
	}
	if ShouldIncludePersonalContext("he was late again yesterday") {
		t.Error("did not expect plain text to include personal context")
	}
}

func TestIsStopRequest(t *testing.T) {
	if !IsStopRequest("stop asking questions and just tell me what you think") {
		t.Error("expected stop request to be detected")
	}
	if IsStopRequest("can I ask you something") {
		t.Error("did not expect a question to read as a stop request")
	}
}

func TestShouldProvideAnalysis(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		count int
		want  bool
	}{
		{"trigger keyword", "is this a red flag?", 1, true},
		{"advice request", "I need advice about this", 0, true},
		{"count threshold", "and then he left", 4, true},
		{"below threshold", "and then he left", 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldProvideAnalysis(tt.text, tt.count); got != tt.want {
				t.Errorf("ShouldProvideAnalysis(%q, %d) = %v, want %v", tt.text, tt.count, got, tt.want)
			}
		})
	}
}

func TestIsConductComplaint(t *testing.T) {
	if !IsConductComplaint("you're being rude about this") {
		t.Error("expected conduct complaint to be detected")
	}
	if !IsConductComplaint("honestly you're dismissive") {
		t.Error("expected dismissive complaint to be detected")
	}
	if IsConductComplaint("he was rude to the waiter") {
		t.Error("complaint about partner should not read as assistant complaint")
	}
}
