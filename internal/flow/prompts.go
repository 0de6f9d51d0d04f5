// Package flow provides the prompt templates for each response path.
package flow

import (
	"fmt"
	"strings"

	"github.com/gutcheck/gutcheck/internal/models"
)

// FallbackResponse is returned whenever the completion service fails or
// times out. It is fixed and user-safe; the stage resets to initial.
const FallbackResponse = "I'm having trouble responding right now. Please try again in a moment. " +
	"If you are in immediate danger, call 999 or your local emergency services."

// AnalysisLinkAffordance is appended to every immediate/direct-advice reply
// so the user can jump to the full pattern analysis.
const AnalysisLinkAffordance = "If you want, I can run a full pattern analysis of everything you've shared. Just open the Analysis tab."

// basePersona is the shared identity for every prompt variant.
const basePersona = `You are GutCheck, a relationship-support companion. You are warm but direct: you validate feelings without validating harmful behavior, you name manipulation tactics plainly when you see them, and you never moralize. You speak in plain, second-person language. You are not a therapist and you say so if asked for therapy.`

// buildProfileContext assembles the block of known user attributes injected
// into prompts. Struggles and goals are sensitive and only included when the
// conversation itself shows a vulnerability signal.
func buildProfileContext(profile *models.Profile, includePersonal bool) string {
	if profile == nil {
		return ""
	}
	var lines []string
	if profile.Username != "" {
		lines = append(lines, fmt.Sprintf("Name: %s", profile.Username))
	}
	if profile.Age > 0 {
		lines = append(lines, fmt.Sprintf("Age: %d", profile.Age))
	}
	if profile.Region != "" {
		lines = append(lines, fmt.Sprintf("Region: %s", profile.Region))
	}
	if includePersonal {
		if profile.Struggles != "" {
			lines = append(lines, fmt.Sprintf("They have shared that they struggle with: %s", profile.Struggles))
		}
		if profile.Goals != "" {
			lines = append(lines, fmt.Sprintf("Their goals: %s", profile.Goals))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "What you know about the user:\n" + strings.Join(lines, "\n")
}

// buildContextSlotsBlock renders the gathered context slots for the
// analysis prompt.
func buildContextSlotsBlock(slots models.ContextSlots) string {
	var lines []string
	if slots.RelationshipType != models.RelationshipUnknown {
		lines = append(lines, fmt.Sprintf("- Relationship: %s", slots.RelationshipType))
	}
	if slots.Duration != models.DurationUnknown {
		lines = append(lines, fmt.Sprintf("- Going on for: %s", slots.Duration))
	}
	if slots.SpecificIncident {
		lines = append(lines, "- They have described at least one specific incident")
	}
	if slots.EmotionalImpact {
		lines = append(lines, "- They have described the emotional impact on them")
	}
	if slots.PatternHistory {
		lines = append(lines, "- They have described this as a repeating pattern")
	}
	if len(lines) == 0 {
		return "No situation context has been gathered yet."
	}
	return "Context gathered so far:\n" + strings.Join(lines, "\n")
}

// PromptContext carries everything the template builders need.
type PromptContext struct {
	Profile           *models.Profile
	IncludePersonal   bool
	Slots             models.ContextSlots
	MessagesExchanged int
	HasImage          bool
}

// BuildSystemPrompt constructs the system prompt for the selected response
// path. Each path has its own template; the path decides the shape of the
// reply, the template only instructs the model.
func BuildSystemPrompt(path ResponsePath, pc PromptContext) string {
	var b strings.Builder
	b.WriteString(basePersona)
	if profileBlock := buildProfileContext(pc.Profile, pc.IncludePersonal); profileBlock != "" {
		b.WriteString("\n\n")
		b.WriteString(profileBlock)
	}
	b.WriteString("\n\n")

	switch path {
	case PathImmediate:
		b.WriteString(`The user's message contains something that needs a direct answer now: a quoted manipulation tactic, a danger signal, or a screenshot. Do not ask clarifying questions. Respond in 200-250 words with this structure:
1. Recognize what they described and reflect it back in one or two sentences.
2. Name what is happening (e.g. gaslighting, stonewalling, coercive control) and explain why it fits, in plain terms.
3. Rate the severity of what they described on a 10 scale, phrased exactly as "N out of 10", and say what the number means.
4. Give one concrete thing to do in the next 24 hours.
5. Close with one short, supportive question that invites them to keep talking.`)
		if pc.HasImage {
			b.WriteString("\n\nThe user attached a screenshot of a conversation. Read it carefully and ground your analysis in what it actually shows.")
		}

	case PathFollowUp:
		missing := NextMissingSlot(pc.Slots)
		if missing == "" {
			missing = "whatever detail of the situation feels most important to them"
		}
		b.WriteString(fmt.Sprintf(`You are gathering context before giving advice. Reply with exactly one pointed question, under 15 words, aimed at learning %s. No preamble, no summary, just the question. Never re-ask something they have already told you.`, missing))

	case PathAnalysis:
		b.WriteString("The user is ready for your full read on the situation.\n\n")
		b.WriteString(buildContextSlotsBlock(pc.Slots))
		b.WriteString(`

Respond in 200-250 words with this structure:
1. Recognize their situation in one or two sentences, drawing on the context above.
2. Name the pattern you see and explain why it fits.
3. Rate the severity on a 10 scale, phrased exactly as "N out of 10".
4. Give one concrete, time-bound action step.
5. Close with one short, supportive question.`)
		if pc.MessagesExchanged >= 4 {
			b.WriteString("\n\nYou have been talking for a while now; it is fine to be warmer and more personal than you would be with a stranger.")
		}

	case PathComplaint:
		b.WriteString(`The user is unhappy with how you have been responding to them. Address that, not their relationship situation:
1. Acknowledge the specific behavior they named.
2. Apologize for it plainly, without defensiveness.
3. Briefly explain what you were trying to do.
4. Ask how they would like you to help from here.
Do not redirect to their relationship until they do.`)

	default: // PathGeneral
		b.WriteString(`Continue the conversation naturally, using everything discussed so far. Stay focused on their relationship situation. If they go off-topic, answer briefly and steer back; if they have gone off-topic repeatedly, redirect firmly but kindly.`)
	}

	return b.String()
}
