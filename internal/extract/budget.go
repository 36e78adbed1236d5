package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

const lakh = 100000

var (
	lakhRangePattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:l|lakh|lakhs|lac|lacs)?\s*(?:-|–|to|and)\s*(\d+(?:\.\d+)?)\s*(?:l|lakh|lakhs|lac|lacs)\b`)
	lakhPattern      = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:l|lakh|lakhs|lac|lacs)\b`)
	rupeePattern     = regexp.MustCompile(`(?:₹|\brs\.?|\binr)\s*(\d{1,3}(?:,\d{2,3})+|\d{5,})`)
	underPattern     = regexp.MustCompile(`(?i)\b(under|below|less than|within|upto|up to|max|maximum)\b`)
	abovePattern     = regexp.MustCompile(`(?i)\b(above|over|more than|greater than|min|minimum|at least)\b`)
)

// Budget parses a budget such as "under 5 lakh", "5-10L", "around 12 lakhs"
// or "₹8,00,000" and returns the matching bucket label.
func Budget(text string) (string, bool) {
	if b, ok := models.LookupBudget(text); ok {
		return b.Label, true
	}
	lower := strings.ToLower(text)

	if m := lakhRangePattern.FindStringSubmatch(lower); m != nil {
		lo, errLo := strconv.ParseFloat(m[1], 64)
		hi, errHi := strconv.ParseFloat(m[2], 64)
		if errLo == nil && errHi == nil && hi > lo {
			// Bucket by the lower edge so "5-10L" lands in ₹5-10L.
			return models.BudgetForAmount(int64(lo * lakh)).Label, true
		}
	}

	var amount int64
	switch {
	case lakhPattern.MatchString(lower):
		n, err := strconv.ParseFloat(lakhPattern.FindStringSubmatch(lower)[1], 64)
		if err != nil {
			return "", false
		}
		amount = int64(n * lakh)
	case rupeePattern.MatchString(lower):
		n, err := strconv.ParseInt(strings.ReplaceAll(rupeePattern.FindStringSubmatch(lower)[1], ",", ""), 10, 64)
		if err != nil {
			return "", false
		}
		amount = n
	default:
		return "", false
	}

	switch {
	case underPattern.MatchString(lower):
		// "under 10 lakh" is the bucket just below the edge.
		return models.BudgetForAmount(amount - 1).Label, true
	case abovePattern.MatchString(lower):
		return models.BudgetForAmount(amount).Label, true
	}
	return models.BudgetForAmount(amount).Label, true
}
