// Package flow provides the stage transition rules and context-slot
// extraction for the conversation state machine.
package flow

import (
	"strings"

	"github.com/gutcheck/gutcheck/internal/detect"
	"github.com/gutcheck/gutcheck/internal/models"
)

// ResponsePath enumerates the orchestrator's mutually exclusive response
// paths. Exactly one fires per turn.
type ResponsePath string

const (
	// PathImmediate responds with direct analysis right away.
	PathImmediate ResponsePath = "immediate"
	// PathFollowUp asks one pointed clarifying question.
	PathFollowUp ResponsePath = "follow_up"
	// PathAnalysis delivers the full structured analysis.
	PathAnalysis ResponsePath = "analysis"
	// PathComplaint handles a complaint about the assistant's own conduct.
	PathComplaint ResponsePath = "complaint"
	// PathGeneral is the open-ended continuation used in support.
	PathGeneral ResponsePath = "general"
)

// TurnDecision is the outcome of evaluating the state machine for one user
// turn: which response path fires, the stage in effect while producing the
// response, and the stage committed once the turn completes.
type TurnDecision struct {
	Path      ResponsePath
	Stage     models.Stage
	NextStage models.Stage
}

// DecideTurn evaluates the transition rules for one user turn.
//
// userMessage is the current turn only; fullText is the accumulated
// conversation (history plus current turn), which the safety-leaning
// detectors run over. A conduct complaint short-circuits every other rule
// and never advances the stage. Stages never regress: once in support, the
// conversation stays there (soft terminal) even when follow-up style
// responses fire.
func DecideTurn(state models.ConversationState, userMessage, fullText string, hasImage bool) TurnDecision {
	if detect.IsConductComplaint(userMessage) {
		stage := state.Stage
		if stage == models.StageInitial {
			// A complaint cannot be the opening move of a triage; hold the
			// machine at initial until a real first message arrives.
			return TurnDecision{Path: PathComplaint, Stage: models.StageInitial, NextStage: models.StageInitial}
		}
		return TurnDecision{Path: PathComplaint, Stage: stage, NextStage: stage}
	}

	switch state.Stage {
	case models.StageInitial:
		if detect.ShouldRespondImmediately(fullText, hasImage) {
			return TurnDecision{Path: PathImmediate, Stage: models.StageAnalysis, NextStage: models.StageSupport}
		}
		return TurnDecision{Path: PathFollowUp, Stage: models.StageGathering, NextStage: models.StageGathering}

	case models.StageGathering:
		// Safety-relevant signals outrank the questioning loop.
		if detect.ShouldRespondImmediately(fullText, hasImage) {
			return TurnDecision{Path: PathImmediate, Stage: models.StageAnalysis, NextStage: models.StageSupport}
		}
		if detect.IsStopRequest(userMessage) {
			return TurnDecision{Path: PathAnalysis, Stage: models.StageAnalysis, NextStage: models.StageSupport}
		}
		// messagesExchanged counts completed round-trips; the current turn
		// is in flight, so it counts as one more.
		if detect.ShouldProvideAnalysis(userMessage, state.MessagesExchanged+1) {
			return TurnDecision{Path: PathAnalysis, Stage: models.StageAnalysis, NextStage: models.StageSupport}
		}
		return TurnDecision{Path: PathFollowUp, Stage: models.StageGathering, NextStage: models.StageGathering}

	case models.StageAnalysis:
		// Producing the structured analysis always hands off to support.
		return TurnDecision{Path: PathAnalysis, Stage: models.StageAnalysis, NextStage: models.StageSupport}

	default: // support, and any unknown stage degrades to the open-ended path
		if detect.ShouldRespondImmediately(fullText, hasImage) {
			return TurnDecision{Path: PathImmediate, Stage: models.StageSupport, NextStage: models.StageSupport}
		}
		return TurnDecision{Path: PathGeneral, Stage: models.StageSupport, NextStage: models.StageSupport}
	}
}

// Keyword tables for context-slot extraction. First match wins per category
// per message; extraction runs on every user turn regardless of transitions.
var relationshipKeywords = []struct {
	value    models.RelationshipType
	keywords []string
}{
	{models.RelationshipBoyfriend, []string{"boyfriend", "my bf", "husband", "fiance", "fiancé"}},
	{models.RelationshipGirlfriend, []string{"girlfriend", "my gf", "wife", "fiancee", "fiancée"}},
	{models.RelationshipFamily, []string{"my family", "my mother", "my father", "my mum", "my mom", "my dad", "my brother", "my sister", "my parents"}},
	{models.RelationshipFriend, []string{"my friend", "best friend", "my mate", "friend of mine"}},
}

var durationKeywords = []struct {
	value    models.Duration
	keywords []string
}{
	{models.DurationYears, []string{"years", "a year", "one year"}},
	{models.DurationMonths, []string{"months", "a month", "one month"}},
	{models.DurationWeeks, []string{"weeks", "a week", "one week"}},
}

var incidentKeywords = []string{
	"yesterday", "last night", "this morning", "today", "last week",
	"he said", "she said", "they said",
}

var impactKeywords = []string{
	"i feel", "i felt", "feeling", "scared", "anxious", "sad", "confused",
	"hurt", "crying", "cried", "exhausted", "drained",
}

var patternKeywords = []string{
	"always", "never listens", "every time", "again and again", "keeps",
	"constantly", "over and over", "pattern",
}

// ExtractContextSlots runs the keyword presence tests over one user message
// and returns the slots inferred from it. Callers merge the result into the
// accumulated state, which enforces monotonicity.
func ExtractContextSlots(userMessage string) models.ContextSlots {
	lower := strings.ToLower(userMessage)
	slots := models.NewContextSlots()

	for _, rt := range relationshipKeywords {
		if containsAnyKeyword(lower, rt.keywords) {
			slots.RelationshipType = rt.value
			break
		}
	}
	for _, d := range durationKeywords {
		if containsAnyKeyword(lower, d.keywords) {
			slots.Duration = d.value
			break
		}
	}
	slots.SpecificIncident = containsAnyKeyword(lower, incidentKeywords)
	slots.EmotionalImpact = containsAnyKeyword(lower, impactKeywords)
	slots.PatternHistory = containsAnyKeyword(lower, patternKeywords)
	return slots
}

func containsAnyKeyword(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// NextMissingSlot names the next-most-valuable context slot still unfilled,
// in the fixed priority order the follow-up question targets. Returns ""
// when every slot is filled.
func NextMissingSlot(slots models.ContextSlots) string {
	switch {
	case slots.RelationshipType == models.RelationshipUnknown:
		return "who this person is to them (partner, friend, family)"
	case slots.Duration == models.DurationUnknown:
		return "how long this has been going on"
	case !slots.SpecificIncident:
		return "one specific recent incident, in their words"
	case !slots.EmotionalImpact:
		return "how this is making them feel"
	case !slots.PatternHistory:
		return "whether this is a one-off or a repeating pattern"
	default:
		return ""
	}
}
