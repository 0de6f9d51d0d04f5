// Package detect provides the signal detectors for the conversation core.
//
// All detectors are pure, stateless, case-insensitive substring matchers over
// raw text. They are deterministic, never return errors, and run in
// O(text length x keyword count). Matching is literal: there is no stemming
// and no negation handling, so "I don't want to die" still triggers the
// crisis detector. That is a known false-positive accepted in favor of recall.
package detect

import "strings"

// crisisPhrases trigger the self-harm/suicide crisis signal.
var crisisPhrases = []string{
	"want to die",
	"kill myself",
	"end it all",
	"end my life",
	"suicide",
	"suicidal",
	"self harm",
	"self-harm",
	"hurt myself",
	"no reason to live",
	"better off dead",
	"don't want to be here anymore",
}

// immediacyKeywords indicate something is happening now or imminently.
var immediacyKeywords = []string{
	"right now",
	"about to",
	"as we speak",
	"at this moment",
	"happening now",
	"tonight",
	"currently",
}

// violenceKeywords indicate physical danger.
var violenceKeywords = []string{
	"hitting",
	"hit me",
	"hits me",
	"weapon",
	"knife",
	"gun",
	"choking",
	"choked",
	"strangle",
	"punched",
	"beat me",
	"beating",
	"violent",
	"hurting me",
}

// manipulationQuotes are explicit quoted manipulation tactics that warrant an
// immediate direct response instead of clarifying questions.
var manipulationQuotes = []string{
	"that never happened",
	"you're crazy",
	"youre crazy",
	"you're imagining",
	"youre imagining",
	"you're overreacting",
	"youre overreacting",
	"you're too sensitive",
	"youre too sensitive",
	"you made me do",
	"no one will believe you",
	"gaslighting",
	"gaslight",
}

// dangerKeywords indicate threats or fear for safety.
var dangerKeywords = []string{
	"threatened to",
	"threatens me",
	"threatening me",
	"showed me a weapon",
	"afraid of him",
	"afraid of her",
	"afraid of them",
	"scared of him",
	"scared of her",
	"scared of them",
	"not safe",
	"unsafe",
}

// vulnerabilityKeywords gate whether sensitive profile fields (struggles,
// goals) are injected into the prompt.
var vulnerabilityKeywords = []string{
	"struggle",
	"struggling",
	"anxiety",
	"anxious",
	"trust",
	"coping",
	"cope",
	"depressed",
	"lonely",
	"overwhelmed",
	"self-esteem",
	"confidence",
}

// stopPhrases are explicit requests to stop the clarifying questions.
var stopPhrases = []string{
	"stop asking",
	"just tell me",
	"just give me",
	"no more questions",
	"enough questions",
	"stop with the questions",
	"quit asking",
}

// analysisTriggers are direct requests for a verdict or advice.
var analysisTriggers = []string{
	"red flag",
	"should i",
	"what do i do",
	"what should i do",
	"advice",
	"is this normal",
	"is that normal",
	"am i overreacting",
	"am i right",
	"what does this mean",
}

// conductComplaints are complaints about the assistant's own behavior.
var conductComplaints = []string{
	"you're being rude",
	"youre being rude",
	"you're dismissive",
	"youre dismissive",
	"you're not listening",
	"youre not listening",
	"you don't understand me",
	"you dont understand me",
	"you're judging me",
	"youre judging me",
	"that's not helpful",
	"thats not helpful",
	"you're being unhelpful",
	"youre being unhelpful",
}

// containsAny reports whether text contains any of the phrases,
// case-insensitively.
func containsAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IsCrisisSituation reports whether the text contains any self-harm or
// suicide phrase from the fixed list.
func IsCrisisSituation(text string) bool {
	return containsAny(text, crisisPhrases)
}

// IsImmediateDanger reports whether the text contains both a timing-immediacy
// keyword and a violence keyword. Requiring both reduces false positives
// while keeping recall for truly acute situations.
func IsImmediateDanger(text string) bool {
	return containsAny(text, immediacyKeywords) && containsAny(text, violenceKeywords)
}

// NeedsDirectAdvice reports whether the text quotes an explicit manipulation
// tactic or contains a danger keyword.
func NeedsDirectAdvice(text string) bool {
	return containsAny(text, manipulationQuotes) || containsAny(text, dangerKeywords)
}

// ShouldRespondImmediately reports whether the turn warrants skipping the
// gathering stage: an explicit manipulation quote, a danger keyword, or an
// attached image (screenshots are assumed to carry enough context on their
// own).
func ShouldRespondImmediately(text string, hasImage bool) bool {
	return hasImage || NeedsDirectAdvice(text)
}

// ShouldIncludePersonalContext reports whether the text shows a vulnerability
// signal; only then are the user's private struggles/goals exposed to the
// completion service.
func ShouldIncludePersonalContext(text string) bool {
	return containsAny(text, vulnerabilityKeywords)
}

// IsStopRequest reports whether the user explicitly asked to stop the
// clarifying questions.
func IsStopRequest(text string) bool {
	return containsAny(text, stopPhrases)
}

// ShouldProvideAnalysis reports whether the conversation is ready for the
// full analysis: an analysis-trigger keyword in the text, or enough exchanges
// accumulated.
func ShouldProvideAnalysis(text string, messageCount int) bool {
	return containsAny(text, analysisTriggers) || messageCount >= 4
}

// IsConductComplaint reports whether the message complains about the
// assistant's own behavior rather than the user's situation.
func IsConductComplaint(text string) bool {
	return containsAny(text, conductComplaints)
}
