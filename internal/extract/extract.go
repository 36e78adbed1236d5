// Package extract pulls structured slot candidates out of free-text messages.
//
// It is keyword and pattern based and never fails; values it returns are
// candidates only and still go through the owning flow's validators.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

type keyword struct {
	pattern *regexp.Regexp
	value   string
}

func words(value string, alternatives ...string) keyword {
	return keyword{
		pattern: regexp.MustCompile(`(?i)\b(?:` + strings.Join(alternatives, "|") + `)\b`),
		value:   value,
	}
}

var brandKeywords = []keyword{
	words("Hyundai", "hyundai"),
	words("Maruti", "maruti", "maruti suzuki", "suzuki"),
	words("Tata", "tata"),
	words("Honda", "honda"),
	words("Mahindra", "mahindra"),
	words("Toyota", "toyota"),
	words("Kia", "kia"),
	words("Renault", "renault"),
	words("Volkswagen", "volkswagen", "vw"),
	words("Skoda", "skoda"),
	words("MG", "mg"),
}

type modelInfo struct {
	keyword
	brand string
}

func model(brand, value string, alternatives ...string) modelInfo {
	return modelInfo{keyword: words(value, alternatives...), brand: brand}
}

var modelKeywords = []modelInfo{
	model("Hyundai", "Creta", "creta"),
	model("Hyundai", "Verna", "verna"),
	model("Hyundai", "i20", "i20", "i 20"),
	model("Hyundai", "Grand i10", "grand i10", "i10"),
	model("Hyundai", "Venue", "venue"),
	model("Hyundai", "Santro", "santro"),
	model("Hyundai", "Aura", "aura"),
	model("Hyundai", "Alcazar", "alcazar"),
	model("Maruti", "Swift", "swift"),
	model("Maruti", "Baleno", "baleno"),
	model("Maruti", "Dzire", "dzire", "desire"),
	model("Maruti", "Brezza", "brezza", "vitara brezza"),
	model("Maruti", "Wagon R", "wagon r", "wagonr"),
	model("Maruti", "Ertiga", "ertiga"),
	model("Maruti", "Alto", "alto"),
	model("Tata", "Nexon", "nexon"),
	model("Tata", "Punch", "punch"),
	model("Tata", "Tiago", "tiago"),
	model("Tata", "Altroz", "altroz"),
	model("Tata", "Harrier", "harrier"),
	model("Honda", "City", "honda city"),
	model("Honda", "Amaze", "amaze"),
	model("Mahindra", "XUV700", "xuv700", "xuv 700"),
	model("Mahindra", "Scorpio", "scorpio"),
	model("Mahindra", "Thar", "thar"),
	model("Toyota", "Innova", "innova", "innova crysta"),
	model("Toyota", "Fortuner", "fortuner"),
	model("Kia", "Seltos", "seltos"),
	model("Kia", "Sonet", "sonet"),
}

var typeKeywords = []keyword{
	words("Hatchback", "hatchback", "hatchbacks", "hatch"),
	words("Sedan", "sedan", "sedans"),
	words("SUV", "suv", "suvs", "compact suv"),
	words("MUV", "muv", "muvs", "mpv", "7 seater", "7-seater"),
}

var fuelKeywords = []keyword{
	words("Petrol", "petrol", "gasoline"),
	words("Diesel", "diesel"),
	words("CNG", "cng"),
	words("Electric", "electric", "ev"),
}

var cityKeywords = []keyword{
	words("Mumbai", "mumbai", "bombay"),
	words("Delhi", "delhi", "new delhi"),
	words("Bangalore", "bangalore", "bengaluru"),
	words("Chennai", "chennai"),
	words("Hyderabad", "hyderabad"),
	words("Pune", "pune"),
	words("Kolkata", "kolkata"),
}

var timeKeywords = []keyword{
	words("Morning", "morning"),
	words("Afternoon", "afternoon", "noon"),
	words("Evening", "evening"),
}

var dateKeywords = []keyword{
	words("Day after tomorrow", "day after tomorrow"),
	words("Tomorrow", "tomorrow", "tmrw"),
	words("Today", "today"),
}

var (
	yearPattern      = regexp.MustCompile(`\b(19[89]\d|20[0-4]\d)\b`)
	phonePattern     = regexp.MustCompile(`(?:\+?91[\s-]*)?\b([6-9](?:[\s-]?\d){9})\b`)
	kmsPattern       = regexp.MustCompile(`(?i)\b(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s*(k|km|kms|kilometers|kilometres|thousand)\b`)
	namePattern      = regexp.MustCompile(`(?i)\b(?:my name is|name is|i am|i'm|this is|name:)\s+([a-z][a-z.']*(?:\s+[a-z][a-z.']*){0,2})`)
	ownerPattern     = regexp.MustCompile(`(?i)\b(first|1st|second|2nd|third|3rd|fourth|4th)\s+owner`)
	conditionPattern = regexp.MustCompile(`(?i)\b(excellent|good|average|poor)\s+condition\b|\bcondition\s+(?:is\s+)?(excellent|good|average|poor)\b`)
)

// nameStopWords keeps phrases like "I am looking" from being read as a name.
var nameStopWords = map[string]bool{
	"looking": true, "interested": true, "planning": true, "searching": true,
	"trying": true, "want": true, "not": true, "from": true, "in": true, "a": true,
	"here": true, "fine": true, "good": true, "ok": true, "okay": true,
}

// Entities extracts every slot candidate it can find in text.
func Entities(text string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(text) == "" {
		return out
	}

	if v, ok := first(brandKeywords, text); ok {
		out[models.SlotBrand] = v
	}
	for _, m := range modelKeywords {
		if m.pattern.MatchString(text) {
			out[models.SlotModel] = m.value
			if _, ok := out[models.SlotBrand]; !ok {
				out[models.SlotBrand] = m.brand
			}
			break
		}
	}
	if v, ok := first(typeKeywords, text); ok {
		out[models.SlotType] = v
	}
	if v, ok := first(fuelKeywords, text); ok {
		out[models.SlotFuel] = v
	}
	if v, ok := first(cityKeywords, text); ok {
		out[models.SlotLocation] = v
	}
	if v, ok := first(timeKeywords, text); ok {
		out[models.SlotTime] = v
	}
	if v, ok := first(dateKeywords, text); ok {
		out[models.SlotDate] = v
	}
	if v, ok := Phone(text); ok {
		out[models.SlotPhone] = v
	}
	if m := yearPattern.FindStringSubmatch(stripPhone(text)); m != nil {
		out[models.SlotYear] = m[1]
	}
	if v, ok := Kms(text); ok {
		out[models.SlotKms] = v
	}
	if v, ok := Owner(text); ok {
		out[models.SlotOwner] = v
	}
	if m := conditionPattern.FindStringSubmatch(text); m != nil {
		c := m[1]
		if c == "" {
			c = m[2]
		}
		out[models.SlotCondition] = titleCase(c)
	}
	if v, ok := Budget(text); ok {
		out[models.SlotBudget] = v
	}
	if v, ok := Name(text); ok {
		out[models.SlotName] = v
	}
	return out
}

func first(keywords []keyword, text string) (string, bool) {
	for _, k := range keywords {
		if k.pattern.MatchString(text) {
			return k.value, true
		}
	}
	return "", false
}

// Phone finds an Indian mobile number and returns its ten digits.
func Phone(text string) (string, bool) {
	m := phonePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return digitsOnly(m[1]), true
}

func stripPhone(text string) string {
	return phonePattern.ReplaceAllString(text, " ")
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Kms reads a driven distance such as "15k", "32,000 km" or "10–20k" and returns its bucket label.
func Kms(text string) (string, bool) {
	if opt, ok := models.MatchOption(models.KmsOptions, text); ok {
		return opt, true
	}
	m := kmsPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return "", false
	}
	unit := strings.ToLower(m[2])
	if unit == "k" || unit == "thousand" {
		n *= 1000
	}
	return models.KmsBucketFor(int(n)), true
}

// Owner maps "first owner", "2nd owner" and bare option labels onto OwnerOptions.
func Owner(text string) (string, bool) {
	if opt, ok := models.MatchOption(models.OwnerOptions, text); ok {
		return opt, true
	}
	m := ownerPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	switch strings.ToLower(m[1]) {
	case "first", "1st":
		return "First", true
	case "second", "2nd":
		return "Second", true
	default:
		return "Third+", true
	}
}

// Name reads self-introductions like "my name is Asha".
func Name(text string) (string, bool) {
	m := namePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	fields := strings.Fields(m[1])
	var kept []string
	for _, f := range fields {
		lower := strings.ToLower(f)
		if nameStopWords[lower] || strings.HasSuffix(lower, "ing") {
			break
		}
		kept = append(kept, titleCase(f))
	}
	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, " "), true
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
