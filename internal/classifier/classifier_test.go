package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/BTreeMap/AutoSherpa/internal/dialogue"
	"github.com/BTreeMap/AutoSherpa/internal/models"
)

func TestRulesIntents(t *testing.T) {
	cases := []struct {
		in         string
		want       models.Intent
		confidence float64
	}{
		{"hi", models.IntentGreeting, RuleConfidence},
		{"Good morning!", models.IntentGreeting, RuleConfidence},
		{"I want to sell my car", models.IntentCarValuation, ValuationRuleConfidence},
		{"what's my car worth", models.IntentCarValuation, ValuationRuleConfidence},
		{"can I book a test drive", models.IntentTestDrive, RuleConfidence},
		{"I want to talk to sales team", models.IntentContactTeam, RuleConfidence},
		{"tell me about us", models.IntentAboutUs, RuleConfidence},
		{"show me some SUVs", models.IntentBrowseCars, RuleConfidence},
		{"hello, I want to buy a car", models.IntentBrowseCars, RuleConfidence},
		{"Hyundai", models.IntentBrowseCars, RuleConfidence},
		{"what is the weather like", models.IntentOther, NoRuleConfidence},
	}
	for _, tc := range cases {
		cls, err := Rules{}.Classify(context.Background(), tc.in, nil)
		if err != nil {
			t.Fatalf("Classify(%q): %v", tc.in, err)
		}
		if cls.Intent != tc.want || cls.Confidence != tc.confidence {
			t.Errorf("Classify(%q) = %s/%.2f, want %s/%.2f", tc.in, cls.Intent, cls.Confidence, tc.want, tc.confidence)
		}
	}
}

func TestRulesCarryEntities(t *testing.T) {
	cls, _ := Rules{}.Classify(context.Background(), "I want to sell my Hyundai Creta", nil)
	if cls.Intent != models.IntentCarValuation {
		t.Fatalf("expected valuation, got %s", cls.Intent)
	}
	if cls.Entities[models.SlotBrand] != "Hyundai" || cls.Entities[models.SlotModel] != "Creta" {
		t.Errorf("expected brand and model entities, got %v", cls.Entities)
	}
}

type fakeGenerator struct {
	out     string
	err     error
	prompts []string
}

func (g *fakeGenerator) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	g.prompts = append(g.prompts, userPrompt)
	return g.out, g.err
}

func TestParseResponse(t *testing.T) {
	raw := "Sure! Here you go:\n```json\n" +
		`{"intent":"browse_cars","entities":{"fuel_type":"Diesel","year":2019,"budget_max":1000000,"test_drive_time":"evening"},"confidence":0.83}` +
		"\n```"
	cls, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	want := models.Classification{
		Intent: models.IntentBrowseCars,
		Entities: map[string]string{
			models.SlotFuel:   "Diesel",
			models.SlotYear:   "2019",
			models.SlotBudget: "₹5-10L",
			models.SlotTime:   "evening",
		},
		Confidence: 0.83,
	}
	if diff := cmp.Diff(want, cls); diff != "" {
		t.Errorf("classification mismatch (-want +got):\n%s", diff)
	}
}

func TestParseResponseDefaults(t *testing.T) {
	cls, err := ParseResponse(`{"intent":"general"}`)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if cls.Intent != models.IntentOther || cls.Confidence != 0.5 {
		t.Errorf("expected other/0.5, got %s/%.2f", cls.Intent, cls.Confidence)
	}

	cls, err = ParseResponse(`{"intent":"ABOUT_US","confidence":1.7}`)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if cls.Intent != models.IntentAboutUs || cls.Confidence != 1 {
		t.Errorf("expected about_us/1, got %s/%.2f", cls.Intent, cls.Confidence)
	}

	cls, err = ParseResponse(`{"intent":"buy_spaceship","confidence":0.9}`)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if cls.Intent != models.IntentOther {
		t.Errorf("unknown intent should map to other, got %s", cls.Intent)
	}
}

func TestParseResponseRejects(t *testing.T) {
	if _, err := ParseResponse("I cannot help with that"); !errors.Is(err, ErrEmptyClassification) {
		t.Errorf("expected ErrEmptyClassification, got %v", err)
	}
	if _, err := ParseResponse(`{"confidence":0.4}`); err == nil {
		t.Error("missing intent should fail validation")
	}
	if _, err := ParseResponse(`{"intent":5}`); err == nil {
		t.Error("numeric intent should fail validation")
	}
	if _, err := ParseResponse(`{"intent":"greeting",}`); err == nil {
		t.Error("malformed JSON should fail")
	}
}

func TestLLMClassifyIncludesHistory(t *testing.T) {
	gen := &fakeGenerator{out: `{"intent":"test_drive","entities":{"test_drive_date":"tomorrow"},"confidence":0.8}`}
	sess := models.NewSession("+919876543210")
	sess.AppendHistory(models.RoleUser, "show me a Creta", 20)
	sess.AppendHistory(models.RoleAssistant, "Here are some cars", 20)

	cls, err := NewLLM(gen, 0).Classify(context.Background(), "can I drive it tomorrow", sess)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.Intent != models.IntentTestDrive || cls.Entities[models.SlotDate] != "tomorrow" {
		t.Errorf("unexpected classification %+v", cls)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("expected one prompt, got %d", len(gen.prompts))
	}
	p := gen.prompts[0]
	for _, want := range []string{"USER: show me a Creta", "ASSISTANT: Here are some cars", "USER: can I drive it tomorrow"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestLLMClassifyGeneratorError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("rate limited")}
	if _, err := NewLLM(gen, 0).Classify(context.Background(), "hi", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestChainPrefersFirstConclusive(t *testing.T) {
	gen := &fakeGenerator{out: `{"intent":"browse_cars","confidence":0.9}`}
	chain := NewChain(time.Second, Link{"rules", Rules{}}, Link{"llm", NewLLM(gen, 0)})

	cls, err := chain.Classify(context.Background(), "I want to sell my car", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.Intent != models.IntentCarValuation {
		t.Errorf("expected rules to win, got %s", cls.Intent)
	}
	if len(gen.prompts) != 0 {
		t.Error("generator should not be called when rules are conclusive")
	}
}

func TestChainFallsThroughAndKeepsEntities(t *testing.T) {
	gen := &fakeGenerator{out: `{"intent":"contact_team","entities":{"location":"Pune"},"confidence":0.7}`}
	chain := NewChain(time.Second, Link{"rules", Rules{}}, Link{"llm", NewLLM(gen, 0)})

	cls, err := chain.Classify(context.Background(), "my number is 9876543210, ring me", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.Intent != models.IntentContactTeam {
		t.Fatalf("expected llm intent, got %s", cls.Intent)
	}
	if cls.Entities[models.SlotPhone] != "9876543210" || cls.Entities[models.SlotLocation] != "Pune" {
		t.Errorf("expected merged entities, got %v", cls.Entities)
	}
}

func TestChainReturnsFallbackWhenLaterLinksFail(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("down")}
	chain := NewChain(time.Second, Link{"rules", Rules{}}, Link{"llm", NewLLM(gen, 0)})

	cls, err := chain.Classify(context.Background(), "what is the weather like", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.Intent != models.IntentOther || cls.Confidence != NoRuleConfidence {
		t.Errorf("expected rules fallback, got %+v", cls)
	}
}

func TestChainAllFail(t *testing.T) {
	failing := dialogue.ClassifierFunc(func(context.Context, string, *models.Session) (models.Classification, error) {
		return models.Classification{}, errors.New("boom")
	})
	chain := NewChain(0, Link{"a", failing}, Link{"b", failing})
	if _, err := chain.Classify(context.Background(), "hi", nil); err == nil || !strings.Contains(err.Error(), "a: boom") {
		t.Fatalf("expected joined error, got %v", err)
	}
}

func TestChainTimeoutPerLink(t *testing.T) {
	slow := dialogue.ClassifierFunc(func(ctx context.Context, _ string, _ *models.Session) (models.Classification, error) {
		<-ctx.Done()
		return models.Classification{}, ctx.Err()
	})
	chain := NewChain(10*time.Millisecond, Link{"slow", slow}, Link{"rules", Rules{}})
	cls, err := chain.Classify(context.Background(), "book a test drive", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.Intent != models.IntentTestDrive {
		t.Errorf("expected rules result after slow link timed out, got %s", cls.Intent)
	}
}
