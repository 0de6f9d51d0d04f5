// Package helpline provides the static helpline registry, keyword-based
// matching, and the recommendation message templates appended to responses
// when safety signals fire.
//
// The registry is a fixed in-memory table initialized at package load and
// never mutated, so it is safe for unsynchronized concurrent reads. Keyword
// lists and phone formatting are behavioral fixtures; changing them changes
// which helplines surface and how they render.
package helpline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gutcheck/gutcheck/internal/models"
)

// MaxRecommendations caps how many helplines are surfaced per turn.
const MaxRecommendations = 3

// registry is the process-wide helpline table. Order matters: it is the
// tie-breaker when two records score equally.
var registry = []models.HelplineRecord{
	{
		Name:           "Samaritans",
		DialNumber:     "116123",
		Description:    "Free, confidential emotional support for anyone in distress or despair",
		Icon:           "phone",
		Category:       models.CategoryMentalHealth,
		Region:         "UK",
		AvailableHours: "24/7",
		Keywords: []string{
			"suicide", "suicidal", "want to die", "end it all", "hopeless",
			"despair", "self harm", "self-harm", "crisis", "can't cope",
		},
	},
	{
		Name:           "National Domestic Abuse Helpline",
		DialNumber:     "08082000247",
		Description:    "Confidential support for anyone experiencing domestic abuse, run by Refuge",
		Icon:           "shield",
		Category:       models.CategoryAbuse,
		Region:         "UK",
		AvailableHours: "24/7",
		Keywords: []string{
			"abuse", "abusive", "domestic", "hitting", "hit me", "violence",
			"violent", "controlling", "afraid", "scared", "threatened", "unsafe",
		},
	},
	{
		Name:           "Childline",
		DialNumber:     "08001111",
		Description:    "Free, private support for anyone under 19 in the UK",
		Icon:           "child",
		Category:       models.CategoryChild,
		Region:         "UK",
		AvailableHours: "24/7",
		Keywords: []string{
			"under 18", "teenager", "school", "my parents", "at home",
			"young", "child",
		},
	},
	{
		Name:           "NSPCC",
		DialNumber:     "08088005000",
		Description:    "Support and advice for adults worried about a child",
		Icon:           "child",
		Category:       models.CategoryChild,
		Region:         "UK",
		AvailableHours: "Mon-Fri 8am-10pm, weekends 9am-6pm",
		Keywords: []string{
			"child abuse", "worried about a child", "child safety", "my kids",
			"my children",
		},
	},
	{
		Name:           "Mind",
		DialNumber:     "03001233393",
		Description:    "Information and support for mental health problems",
		Icon:           "heart",
		Category:       models.CategoryMentalHealth,
		Region:         "UK",
		AvailableHours: "Mon-Fri 9am-6pm",
		Keywords: []string{
			"mental health", "anxiety", "anxious", "depressed", "depression",
			"panic", "overwhelmed",
		},
	},
	{
		Name:           "Victim Support",
		DialNumber:     "08081689111",
		Description:    "Free, confidential help for victims of crime and abuse",
		Icon:           "shield",
		Category:       models.CategoryAbuse,
		Region:         "UK",
		AvailableHours: "24/7",
		Keywords: []string{
			"victim", "crime", "assault", "stalking", "harassment", "stalked",
		},
	},
	{
		Name:           "Emergency Services",
		DialNumber:     "999",
		Description:    "Police, ambulance and fire for immediate danger",
		Icon:           "alert",
		Category:       models.CategoryGeneral,
		AvailableHours: "24/7",
		Keywords: []string{
			"emergency", "immediate danger", "in danger", "call the police",
		},
	},
}

// All returns the full helpline table in registry order.
func All() []models.HelplineRecord {
	return registry
}

// scored pairs a record with its keyword hit count and table position.
type scored struct {
	record models.HelplineRecord
	hits   int
	order  int
}

// GetRelevantHelplines scores every record by counting keyword hits inside
// text, filters region-specific records to the supplied region (general
// records are always eligible), and returns at most MaxRecommendations
// records sorted by descending hit count, ties broken by table order.
func GetRelevantHelplines(text, region string) []models.HelplineRecord {
	lower := strings.ToLower(text)
	region = strings.ToUpper(strings.TrimSpace(region))

	var matches []scored
	for i, rec := range registry {
		if rec.Region != "" && region != "" && !strings.EqualFold(rec.Region, region) {
			continue
		}
		hits := 0
		for _, kw := range rec.Keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > 0 {
			matches = append(matches, scored{record: rec, hits: hits, order: i})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].hits != matches[b].hits {
			return matches[a].hits > matches[b].hits
		}
		return matches[a].order < matches[b].order
	})

	if len(matches) > MaxRecommendations {
		matches = matches[:MaxRecommendations]
	}
	result := make([]models.HelplineRecord, len(matches))
	for i, m := range matches {
		result[i] = m.record
	}
	return result
}

// FormatPhoneNumber applies the fixed-width grouping transform keyed off
// digit count: 7 -> "NNNN NNN", 6 -> "NNN NNN", 11 -> "NNNN NNN NNNN",
// anything else grouped by 4. Purely presentational; bit-exact for fixtures.
func FormatPhoneNumber(number string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)

	switch len(digits) {
	case 7:
		return digits[:4] + " " + digits[4:]
	case 6:
		return digits[:3] + " " + digits[3:]
	case 11:
		return digits[:4] + " " + digits[4:7] + " " + digits[7:]
	default:
		var groups []string
		for len(digits) > 4 {
			groups = append(groups, digits[:4])
			digits = digits[4:]
		}
		groups = append(groups, digits)
		return strings.Join(groups, " ")
	}
}

// FormatForAI renders a deterministic text block listing the helplines, for
// appending to a user-facing response.
func FormatForAI(helplines []models.HelplineRecord) string {
	var b strings.Builder
	for _, h := range helplines {
		fmt.Fprintf(&b, "- %s (%s): %s. Available: %s\n",
			h.Name, FormatPhoneNumber(h.DialNumber), h.Description, h.AvailableHours)
	}
	return strings.TrimRight(b.String(), "\n")
}

// emergencyNumber returns the emergency dial string for a region.
func emergencyNumber(region string) string {
	if strings.EqualFold(strings.TrimSpace(region), "UK") {
		return "999"
	}
	return "your local emergency number"
}

// GetRecommendationMessage builds the single message block appended to a
// response. Priority: immediate danger over crisis over generic support.
// Exactly one block is ever produced; returns "" when no condition holds.
func GetRecommendationMessage(isCrisis, isDanger bool, helplines []models.HelplineRecord, region string) string {
	switch {
	case isDanger:
		msg := fmt.Sprintf("If you are in immediate danger, please call %s now.", emergencyNumber(region))
		if len(helplines) > 0 {
			msg += " You can also reach:\n" + FormatForAI(helplines)
		}
		return msg
	case isCrisis:
		msg := "You don't have to carry this alone. People are ready to listen right now:"
		if len(helplines) > 0 {
			msg += "\n" + FormatForAI(helplines)
		} else {
			msg += "\n" + FormatForAI(GetRelevantHelplines("crisis", region))
		}
		return msg
	case len(helplines) > 0:
		return "If you'd like additional support, these services can help:\n" + FormatForAI(helplines)
	default:
		return ""
	}
}
