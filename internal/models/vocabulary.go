package models

import "strings"

// BudgetBucket is one of the fixed browse budget choices.
type BudgetBucket struct {
	Label string
	Range PriceRange
}

// BudgetBuckets are the five fixed budget choices in display order.
var BudgetBuckets = []BudgetBucket{
	{Label: "Under ₹5L", Range: PriceRange{Min: 0, Max: 500000}},
	{Label: "₹5-10L", Range: PriceRange{Min: 500000, Max: 1000000}},
	{Label: "₹10-15L", Range: PriceRange{Min: 1000000, Max: 1500000}},
	{Label: "₹15-20L", Range: PriceRange{Min: 1500000, Max: 2000000}},
	{Label: "Above ₹20L", Range: PriceRange{Min: 2000000}},
}

// BudgetLabels returns the bucket labels in display order.
func BudgetLabels() []string {
	labels := make([]string, len(BudgetBuckets))
	for i, b := range BudgetBuckets {
		labels[i] = b.Label
	}
	return labels
}

// LookupBudget finds a bucket by label, ignoring case and surrounding space.
func LookupBudget(label string) (BudgetBucket, bool) {
	label = strings.TrimSpace(label)
	for _, b := range BudgetBuckets {
		if strings.EqualFold(b.Label, label) {
			return b, true
		}
	}
	return BudgetBucket{}, false
}

// BudgetForAmount returns the bucket containing a rupee amount.
func BudgetForAmount(rupees int64) BudgetBucket {
	for _, b := range BudgetBuckets {
		if b.Range.Contains(rupees) {
			return b
		}
	}
	return BudgetBuckets[0]
}

// Valuation vocabularies.
var (
	ValuationBrands     = []string{"Hyundai", "Maruti", "Tata", "Other brands"}
	ValuationYears      = []string{"2023", "2022"}
	FuelOptions         = []string{"Petrol", "Diesel", "CNG", "Electric"}
	KmsOptions          = []string{"0–10k", "10–20k", "20–30k", "30–50k", "50k+"}
	OwnerOptions        = []string{"First", "Second", "Third+"}
	ConditionOptions    = []string{"Excellent", "Good", "Average", "Poor"}
	DefaultCarTypes     = []string{"Hatchback", "Sedan", "SUV", "MUV"}
	DefaultBrowseBrands = []string{"Hyundai", "Maruti", "Honda", "Tata", "Mahindra"}
)

// KmsBucketFor maps a driven distance in kilometres to a KmsOptions label.
func KmsBucketFor(km int) string {
	switch {
	case km < 10000:
		return KmsOptions[0]
	case km < 20000:
		return KmsOptions[1]
	case km < 30000:
		return KmsOptions[2]
	case km < 50000:
		return KmsOptions[3]
	default:
		return KmsOptions[4]
	}
}

// MatchOption returns the canonical option equal to raw, ignoring case,
// surrounding space and the hyphen/en-dash difference.
func MatchOption(options []string, raw string) (string, bool) {
	norm := normalizeOption(raw)
	if norm == "" {
		return "", false
	}
	for _, opt := range options {
		if normalizeOption(opt) == norm {
			return opt, true
		}
	}
	return "", false
}

func normalizeOption(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("–", "-", "—", "-", " - ", "-").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
