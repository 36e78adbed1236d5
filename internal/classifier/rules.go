// Package classifier turns user messages into intents and entities. Rules is
// a deterministic keyword classifier, LLM delegates to a hosted model, and
// Chain tries classifiers in order until one is conclusive.
package classifier

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/BTreeMap/AutoSherpa/internal/dialogue"
	"github.com/BTreeMap/AutoSherpa/internal/extract"
	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// ErrEmptyClassification is returned when a model answer carries no usable JSON.
var ErrEmptyClassification = errors.New("empty classification")

// Rule confidences.
const (
	RuleConfidence          = 0.9
	ValuationRuleConfidence = 0.92
	NoRuleConfidence        = 0.3
)

var (
	greetingPattern  = regexp.MustCompile(`\b(hi|hello|hey|namaste|good\s*(morning|afternoon|evening))\b`)
	browsePattern    = regexp.MustCompile(`(browse|show\s+me|see|looking\s*for|search|find|buy|available).*(car|suv|sedan|hatch|inventory)|\bcars?\b`)
	valuationPattern = regexp.MustCompile(`(valuation|value\s*my|sell\s*my|price\s*my|what'?s\s*my\s*car\s*worth)`)
	testDrivePattern = regexp.MustCompile(`(test\s*drive|book\s*drive|schedule\s*drive|drive\s*booking)`)
	contactPattern   = regexp.MustCompile(`(contact|call|phone|talk\s*to|speak\s*to|sales\s*team)`)
	aboutPattern     = regexp.MustCompile(`(about\s*(us|dealership)|who\s*are\s*you|info|information)`)
)

// Rules classifies with keyword patterns. Messages no rule recognises come
// back as IntentOther with NoRuleConfidence.
type Rules struct{}

var _ dialogue.Classifier = Rules{}

// Classify never fails.
func (Rules) Classify(_ context.Context, message string, _ *models.Session) (models.Classification, error) {
	lower := strings.ToLower(message)
	entities := extract.Entities(message)

	browse := browsePattern.MatchString(lower)
	valuation := valuationPattern.MatchString(lower)
	testDrive := testDrivePattern.MatchString(lower)
	contact := contactPattern.MatchString(lower)
	about := aboutPattern.MatchString(lower)

	result := func(intent models.Intent, confidence float64) (models.Classification, error) {
		return models.Classification{Intent: intent, Entities: entities, Confidence: confidence}, nil
	}
	switch {
	case greetingPattern.MatchString(lower) && !browse && !valuation && !testDrive && !contact && !about:
		return result(models.IntentGreeting, RuleConfidence)
	case valuation:
		return result(models.IntentCarValuation, ValuationRuleConfidence)
	case testDrive:
		return result(models.IntentTestDrive, RuleConfidence)
	case contact:
		return result(models.IntentContactTeam, RuleConfidence)
	case about:
		return result(models.IntentAboutUs, RuleConfidence)
	case browse || hasAny(entities, models.SlotBrand, models.SlotType, models.SlotBudget):
		return result(models.IntentBrowseCars, RuleConfidence)
	}
	return result(models.IntentOther, NoRuleConfidence)
}

func hasAny(entities map[string]string, keys ...string) bool {
	for _, k := range keys {
		if entities[k] != "" {
			return true
		}
	}
	return false
}
