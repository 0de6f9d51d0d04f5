// Package typist implements the presentation scheduler: sentence-bounded
// chunking of long replies and a cooperative character-by-character reveal
// with punctuation-aware pacing.
//
// Reveals are strictly sequential: no two chunks animate concurrently, and a
// chunk is handed to the commit callback only after its reveal completes.
// Cancellation stops the loop immediately and the in-progress chunk is
// discarded, never committed.
package typist

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// DefaultMaxChunkLen is the default upper bound on one chunk.
const DefaultMaxChunkLen = 150

// Delays control the reveal pacing. The delay after each character depends
// on the character just revealed.
type Delays struct {
	Base       time.Duration // ordinary characters
	Space      time.Duration // after a space
	Comma      time.Duration // after a comma or semicolon
	Terminator time.Duration // after . ! ?
}

// DefaultDelays matches the app's typing feel.
var DefaultDelays = Delays{
	Base:       30 * time.Millisecond,
	Space:      50 * time.Millisecond,
	Comma:      100 * time.Millisecond,
	Terminator: 200 * time.Millisecond,
}

// Typewriter drives reveal animations. One Typewriter serves one
// conversation's presentation flow at a time.
type Typewriter struct {
	delays Delays
}

// Option configures a Typewriter.
type Option func(*Typewriter)

// WithDelays overrides the reveal pacing (tests use near-zero delays).
func WithDelays(d Delays) Option {
	return func(t *Typewriter) { t.delays = d }
}

// NewTypewriter creates a Typewriter with default pacing.
func NewTypewriter(opts ...Option) *Typewriter {
	t := &Typewriter{delays: DefaultDelays}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// splitSentences splits text on sentence terminators (. ! ?), keeping the
// terminator (and any run of terminators, e.g. "?!") attached to its
// sentence. Whitespace between sentences is dropped.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(strings.TrimSpace(text))
	start := 0
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		// Absorb a run of terminators.
		for i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
			i++
		}
		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// ChunkMessage splits text on sentence boundaries and greedily packs
// sentences into chunks not exceeding maxLen. A single sentence longer than
// maxLen still becomes its own chunk; sentences are never truncated
// mid-sentence. Chunking is idempotent: re-chunking the space-joined output
// at the same maxLen yields the same boundaries.
func ChunkMessage(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxChunkLen
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder
	for _, sentence := range sentences {
		if current.Len() == 0 {
			current.WriteString(sentence)
			continue
		}
		// +1 accounts for the joining space.
		if current.Len()+1+len(sentence) > maxLen {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(sentence)
			continue
		}
		current.WriteString(" ")
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// delayAfter returns the pause following the given character.
func (t *Typewriter) delayAfter(r rune) time.Duration {
	switch r {
	case ' ':
		return t.delays.Space
	case ',', ';':
		return t.delays.Comma
	case '.', '!', '?':
		return t.delays.Terminator
	default:
		return t.delays.Base
	}
}

// Reveal animates one chunk character by character, calling onUpdate with
// the partial text after each character. It blocks until the reveal
// completes or ctx is cancelled; on cancellation it returns ctx.Err() and
// the caller must discard, not commit, the partial chunk.
func (t *Typewriter) Reveal(ctx context.Context, chunk string, onUpdate func(partial string)) error {
	runes := []rune(chunk)
	var revealed strings.Builder
	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	for _, r := range runes {
		revealed.WriteRune(r)
		if onUpdate != nil {
			onUpdate(revealed.String())
		}
		timer.Reset(t.delayAfter(r))
		select {
		case <-ctx.Done():
			slog.Debug("Typewriter.Reveal: cancelled mid-reveal", "revealed", revealed.Len(), "total", len(runes))
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// RevealAll animates chunks strictly one at a time. commit is invoked with
// each chunk only after its reveal fully completes; a cancelled reveal
// leaves its chunk uncommitted and stops the loop.
func (t *Typewriter) RevealAll(ctx context.Context, chunks []string, onUpdate func(partial string), commit func(chunk string)) error {
	for _, chunk := range chunks {
		if err := t.Reveal(ctx, chunk, onUpdate); err != nil {
			return err
		}
		if commit != nil {
			commit(chunk)
		}
	}
	return nil
}
