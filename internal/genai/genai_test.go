package genai

import (
	"os"
	"testing"
	"time"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	orig := os.Getenv("OPENAI_API_KEY")
	os.Unsetenv("OPENAI_API_KEY")
	defer os.Setenv("OPENAI_API_KEY", orig)

	if _, err := NewClient(); err == nil {
		t.Error("expected error when no API key is available")
	}
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.timeout != DefaultTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultTimeout, c.timeout)
	}
	if c.model == "" {
		t.Error("expected a default model to be set")
	}
}

func TestNewClientOptions(t *testing.T) {
	c, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-4o-mini"), WithTimeout(3*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.model != "gpt-4o-mini" {
		t.Errorf("expected model override, got %q", c.model)
	}
	if c.timeout != 3*time.Second {
		t.Errorf("expected timeout override, got %v", c.timeout)
	}
}
