package extract

import (
	"testing"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

func TestEntitiesFromSentence(t *testing.T) {
	got := Entities("I want to sell my 2022 Creta petrol, second owner, driven 15k km. Call 98765 43210")
	want := map[string]string{
		models.SlotBrand: "Hyundai",
		models.SlotModel: "Creta",
		models.SlotYear:  "2022",
		models.SlotFuel:  "Petrol",
		models.SlotOwner: "Second",
		models.SlotKms:   "10–20k",
		models.SlotPhone: "9876543210",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("slot %s = %q, want %q (all: %v)", k, got[k], v, got)
		}
	}
}

func TestEntitiesSingleSlotAnswers(t *testing.T) {
	cases := []struct {
		text, slot, want string
	}{
		{"Hyundai", models.SlotBrand, "Hyundai"},
		{"i20", models.SlotModel, "i20"},
		{"2022", models.SlotYear, "2022"},
		{"10–20k", models.SlotKms, "10–20k"},
		{"10-20k", models.SlotKms, "10–20k"},
		{"First", models.SlotOwner, "First"},
		{"9876543210", models.SlotPhone, "9876543210"},
		{"+91 98765-43210", models.SlotPhone, "9876543210"},
		{"Bengaluru", models.SlotLocation, "Bangalore"},
		{"my name is asha rao", models.SlotName, "Asha Rao"},
	}
	for _, c := range cases {
		got := Entities(c.text)
		if got[c.slot] != c.want {
			t.Errorf("Entities(%q)[%s] = %q, want %q", c.text, c.slot, got[c.slot], c.want)
		}
	}
}

func TestEntitiesDoesNotInventSlots(t *testing.T) {
	got := Entities("Asha")
	if len(got) != 0 {
		t.Errorf("expected no entities for a bare name, got %v", got)
	}
	if _, ok := Entities("9876543210")[models.SlotYear]; ok {
		t.Error("phone digits must not produce a year")
	}
	if _, ok := Name("I am looking for an SUV"); ok {
		t.Error("'I am looking' is not a name")
	}
}

func TestBudget(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Under ₹5L", "Under ₹5L"},
		{"under 5 lakh", "Under ₹5L"},
		{"5-10L", "₹5-10L"},
		{"between 10 and 15 lakhs", "₹10-15L"},
		{"around 12 lakh", "₹10-15L"},
		{"below 10 lakhs", "₹5-10L"},
		{"above 20 lakh", "Above ₹20L"},
		{"my budget is ₹8,00,000", "₹5-10L"},
		{"rs 1700000", "₹15-20L"},
	}
	for _, tc := range cases {
		got, ok := Budget(tc.in)
		if !ok || got != tc.want {
			t.Errorf("Budget(%q) = %q,%v want %q", tc.in, got, ok, tc.want)
		}
	}
	if _, ok := Budget("show me cars"); ok {
		t.Error("no amount should not parse")
	}
}

func TestKmsBuckets(t *testing.T) {
	cases := map[string]string{
		"5000 km":    "0–10k",
		"32,000 kms": "30–50k",
		"70k":        "50k+",
		"50k+":       "50k+",
	}
	for in, want := range cases {
		if got, ok := Kms(in); !ok || got != want {
			t.Errorf("Kms(%q) = %q,%v want %q", in, got, ok, want)
		}
	}
}
