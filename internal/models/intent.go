package models

import "strings"

// Intent is the classified high-level purpose of a user message.
type Intent string

const (
	IntentBrowseCars   Intent = "browse_cars"
	IntentCarValuation Intent = "car_valuation"
	IntentTestDrive    Intent = "test_drive"
	IntentContactTeam  Intent = "contact_team"
	IntentAboutUs      Intent = "about_us"
	IntentGreeting     Intent = "greeting"
	IntentOther        Intent = "other"
)

// AllIntents lists every intent a classifier may return.
var AllIntents = []Intent{
	IntentBrowseCars,
	IntentCarValuation,
	IntentTestDrive,
	IntentContactTeam,
	IntentAboutUs,
	IntentGreeting,
	IntentOther,
}

// ParseIntent maps a raw label onto a known intent. Unknown labels become IntentOther.
func ParseIntent(raw string) Intent {
	label := Intent(strings.ToLower(strings.TrimSpace(raw)))
	for _, intent := range AllIntents {
		if label == intent {
			return intent
		}
	}
	return IntentOther
}

// Classification is the output of an intent classifier for a single message.
type Classification struct {
	Intent     Intent            `json:"intent"`
	Entities   map[string]string `json:"entities,omitempty"`
	Confidence float64           `json:"confidence"`
}

// Unclassified is the degraded result used when classification fails.
func Unclassified() Classification {
	return Classification{Intent: IntentOther, Confidence: 0}
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
