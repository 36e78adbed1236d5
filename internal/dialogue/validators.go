package dialogue

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BTreeMap/AutoSherpa/internal/extract"
	"github.com/BTreeMap/AutoSherpa/internal/models"
)

var mobilePattern = regexp.MustCompile(`^[6-9]\d{9}$`)

// oneOf accepts a case-insensitive match of one of the offered options.
func oneOf(message string) Validator {
	return func(raw string, options []string) ValidationResult {
		if opt, ok := models.MatchOption(options, raw); ok {
			return accept(opt)
		}
		return reject(message, nil)
	}
}

// freeText accepts trimmed text whose length in characters lies in [min, max].
func freeText(min, max int, message string) Validator {
	return func(raw string, _ []string) ValidationResult {
		v := strings.TrimSpace(raw)
		if n := utf8.RuneCountInString(v); n < min || n > max {
			return reject(message, nil)
		}
		return accept(v)
	}
}

// keywordChoice matches an option label or a keyword mapped to an option.
func keywordChoice(keywords map[string]string, message string) Validator {
	return func(raw string, options []string) ValidationResult {
		if opt, ok := models.MatchOption(options, raw); ok {
			return accept(opt)
		}
		norm := normalizeLabel(raw)
		for _, w := range strings.Fields(norm) {
			if opt, ok := keywords[w]; ok {
				return accept(opt)
			}
		}
		return reject(message, nil)
	}
}

func validateYear(raw string, _ []string) ValidationResult {
	if opt, ok := models.MatchOption(models.ValuationYears, raw); ok {
		return accept(opt)
	}
	return reject("Please enter a valid year: "+strings.Join(models.ValuationYears, " or "), nil)
}

var validateName = freeText(2, 50, "Please enter a valid name (2-50 characters).")

// NormalizePhone strips separators and an optional +91/91/0 prefix.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		digits = digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		digits = digits[1:]
	}
	return digits
}

// validatePhone re-asks the prompt unchanged on rejection.
func validatePhone(raw string, _ []string) ValidationResult {
	digits := NormalizePhone(raw)
	if !mobilePattern.MatchString(digits) {
		return ValidationResult{}
	}
	return accept(digits)
}

const otherBrands = "Other brands"

func validateValuationBrand(raw string, _ []string) ValidationResult {
	if opt, ok := models.MatchOption(models.ValuationBrands, raw); ok {
		if opt == otherBrands {
			return reject("Please type your car's brand name.", []string{})
		}
		return accept(opt)
	}
	if brand, ok := extract.Entities(raw)[models.SlotBrand]; ok {
		return accept(brand)
	}
	return freeText(2, 30, "Please type your car's brand name.")(raw, nil)
}

func validateKms(raw string, _ []string) ValidationResult {
	if v, ok := extract.Kms(raw); ok {
		return accept(v)
	}
	return reject("Please choose how many kilometres the car has been driven.", nil)
}

func validateOwner(raw string, _ []string) ValidationResult {
	if v, ok := extract.Owner(raw); ok {
		return accept(v)
	}
	return reject("Please choose the ownership from the options.", nil)
}

func validateBudget(raw string, _ []string) ValidationResult {
	if v, ok := extract.Budget(raw); ok {
		return accept(v)
	}
	return reject("Please choose a budget range from the options.", nil)
}

var wildcardPhrases = map[string]bool{
	"no preference": true, "doesnt matter": true, "does not matter": true, "skip": true,
	"anything": true, "any": true, "all": true, "whatever": true, "no": true, "none": true,
	"all type": true, "all types": true, "any type": true, "all brands": true, "any brand": true, "any brands": true,
}

// isWildcard reports whether the whole message is a "no preference" phrase.
func isWildcard(raw string) bool {
	return wildcardPhrases[normalizeLabel(raw)]
}

// wildcardChoice accepts the wildcard label or a wildcard phrase as an
// explicit "any", otherwise one of the offered options.
func wildcardChoice(label, message string) Validator {
	return func(raw string, options []string) ValidationResult {
		if strings.EqualFold(strings.TrimSpace(raw), label) || isWildcard(raw) {
			return acceptWildcard()
		}
		if opt, ok := models.MatchOption(options, raw); ok {
			return accept(opt)
		}
		return reject(message, nil)
	}
}

// Relative test drive days.
const (
	DayToday            = "Today"
	DayTomorrow         = "Tomorrow"
	DayAfterTomorrow    = "Day after tomorrow"
	explicitDateDisplay = "2 Jan 2006"
)

var dateLayouts = []string{
	"2006-01-02", "02/01/2006", "2/1/2006", "02-01-2006", "2 Jan 2006", "2 January 2006", "Jan 2 2006", "January 2 2006",
}

// dateValidator accepts a relative day or an explicit date with a year that
// is not before today in loc.
func dateValidator(now func() time.Time, loc *time.Location) Validator {
	return func(raw string, options []string) ValidationResult {
		if opt, ok := models.MatchOption(options, raw); ok {
			return accept(opt)
		}
		if v, ok := extract.Entities(raw)[models.SlotDate]; ok {
			return accept(v)
		}
		cleaned := strings.Join(strings.Fields(strings.ReplaceAll(raw, ",", " ")), " ")
		for _, layout := range dateLayouts {
			d, err := time.ParseInLocation(layout, cleaned, loc)
			if err != nil {
				continue
			}
			y, m, day := now().In(loc).Date()
			if d.Before(time.Date(y, m, day, 0, 0, 0, 0, loc)) {
				return reject("That date has already passed. Please choose a day from today onwards.", nil)
			}
			return accept(d.Format(explicitDateDisplay))
		}
		return reject("Please choose a day from the options or type a date like 25/12/2025.", nil)
	}
}

var validateYesNo = keywordChoice(map[string]string{
	"yes": "Yes", "y": "Yes", "yeah": "Yes", "yep": "Yes", "haan": "Yes", "ha": "Yes", "have": "Yes",
	"no": "No", "n": "No", "nope": "No", "nahi": "No", "dont": "No",
}, "Please answer Yes or No.")
