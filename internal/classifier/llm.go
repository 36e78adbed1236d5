package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/BTreeMap/AutoSherpa/internal/dialogue"
	"github.com/BTreeMap/AutoSherpa/internal/genai"
	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// DefaultHistoryTurns is how many history entries are sent with each prompt.
const DefaultHistoryTurns = 6

// missingConfidence is assumed when the model omits a confidence.
const missingConfidence = 0.5

const systemPrompt = `You are an intent and entity extractor for a car dealership WhatsApp bot.
Return STRICT JSON only (no prose). Schema:
{
  "intent": one of ["browse_cars","car_valuation","test_drive","contact_team","about_us","greeting","general"],
  "entities": {
     "brand"?: string, "model"?: string, "year"?: number, "fuel_type"?: string,
     "budget_min"?: number, "budget_max"?: number, "phone"?: string,
     "test_drive_date"?: string, "test_drive_time"?: string, "location"?: string
  },
  "confidence": number (0..1)
}
Prefer intent based on the user's goal.`

const responseSchema = `{
  "type": "object",
  "properties": {
    "intent": {"type": "string"},
    "entities": {"type": ["object", "null"]},
    "confidence": {"type": ["number", "null"]}
  },
  "required": ["intent"]
}`

var schemaLoader = gojsonschema.NewStringLoader(responseSchema)

// entityAliases maps model entity keys onto slot names.
var entityAliases = map[string]string{
	"fuel_type":       models.SlotFuel,
	"test_drive_date": models.SlotDate,
	"test_drive_time": models.SlotTime,
	"city":            models.SlotLocation,
	"car_type":        models.SlotType,
	"body_type":       models.SlotType,
}

// intentAliases maps model intent labels that differ from ours.
var intentAliases = map[string]models.Intent{
	"general": models.IntentOther,
}

// LLM classifies by prompting a generator for a JSON document.
type LLM struct {
	gen          genai.Generator
	historyTurns int
}

var _ dialogue.Classifier = (*LLM)(nil)

// NewLLM creates an LLM classifier. historyTurns <= 0 uses DefaultHistoryTurns.
func NewLLM(gen genai.Generator, historyTurns int) *LLM {
	if historyTurns <= 0 {
		historyTurns = DefaultHistoryTurns
	}
	return &LLM{gen: gen, historyTurns: historyTurns}
}

type llmResponse struct {
	Intent     string         `json:"intent"`
	Entities   map[string]any `json:"entities"`
	Confidence *float64       `json:"confidence"`
}

// Classify sends the message and recent history to the generator.
func (l *LLM) Classify(ctx context.Context, message string, sess *models.Session) (models.Classification, error) {
	raw, err := l.gen.GenerateJSON(ctx, systemPrompt, l.prompt(message, sess))
	if err != nil {
		return models.Classification{}, fmt.Errorf("generate classification: %w", err)
	}
	cls, err := ParseResponse(raw)
	if err != nil {
		slog.Warn("LLM.Classify: unusable response", "error", err, "raw", raw)
		return models.Classification{}, err
	}
	slog.Debug("LLM.Classify: classified", "intent", cls.Intent, "confidence", cls.Confidence)
	return cls, nil
}

func (l *LLM) prompt(message string, sess *models.Session) string {
	var b strings.Builder
	b.WriteString("Conversation:\n")
	if sess != nil {
		for _, h := range sess.RecentHistory(l.historyTurns) {
			fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(h.Role), h.Content)
		}
	}
	fmt.Fprintf(&b, "USER: %s\n\nJSON:", message)
	return b.String()
}

// ParseResponse extracts the outermost JSON object from raw, validates it and
// maps it onto a Classification.
func ParseResponse(raw string) (models.Classification, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end < start {
		return models.Classification{}, ErrEmptyClassification
	}
	doc := raw[start : end+1]

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(doc))
	if err != nil {
		return models.Classification{}, fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return models.Classification{}, fmt.Errorf("classification validation failed: %v", errs)
	}

	var resp llmResponse
	if err := json.Unmarshal([]byte(doc), &resp); err != nil {
		return models.Classification{}, fmt.Errorf("decode classification: %w", err)
	}

	intent, ok := intentAliases[strings.ToLower(strings.TrimSpace(resp.Intent))]
	if !ok {
		intent = models.ParseIntent(resp.Intent)
	}
	confidence := missingConfidence
	if resp.Confidence != nil {
		confidence = *resp.Confidence
	}
	return models.Classification{
		Intent:     intent,
		Entities:   normalizeEntities(resp.Entities),
		Confidence: models.ClampConfidence(confidence),
	}, nil
}

// normalizeEntities renames aliased keys, stringifies values and folds
// budget_min/budget_max into a budget bucket label.
func normalizeEntities(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	var budgetMin, budgetMax int64
	for key, v := range in {
		key = strings.ToLower(strings.TrimSpace(key))
		switch key {
		case "budget_min":
			budgetMin = amount(v)
			continue
		case "budget_max":
			budgetMax = amount(v)
			continue
		}
		s := stringify(v)
		if s == "" {
			continue
		}
		if alias, ok := entityAliases[key]; ok {
			key = alias
		}
		out[key] = s
	}
	if _, ok := out[models.SlotBudget]; !ok {
		switch {
		case budgetMax > 0:
			out[models.SlotBudget] = models.BudgetForAmount(budgetMax - 1).Label
		case budgetMin > 0:
			out[models.SlotBudget] = models.BudgetForAmount(budgetMin).Label
		}
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func amount(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil {
			return int64(n)
		}
	}
	return 0
}
