// Package normalize converts the bulletin site's date and currency text
// into canonical forms. The source renders dates as "YYYY.MM.DD", date
// ranges as "start~end" where the end half may omit the year, and prices
// as comma-grouped won amounts ("25,000원"). Anything that does not match
// those shapes is reported as unparseable rather than guessed at.
package normalize

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	sourceDateLayout = "2006.01.02"
	isoDateLayout    = "2006-01-02"
)

// Date parses a single date strictly in the source's "YYYY.MM.DD" form
// and returns it as an ISO-8601 "YYYY-MM-DD" string. The boolean is
// false for empty input, wrong separators, short years, or any other
// malformed text.
func Date(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	// time.Parse tolerates unpadded months and days; the site always
	// zero-pads, so hold the text to the exact layout width.
	if len(text) != len(sourceDateLayout) {
		return "", false
	}
	t, err := time.Parse(sourceDateLayout, text)
	if err != nil {
		return "", false
	}
	return t.Format(isoDateLayout), true
}

// Range splits a "start~end" range after stripping all whitespace. A
// missing separator means the whole text is a single start date. When
// the end half carries exactly one dot it is missing its year, which the
// site omits for same-year ranges; the start's year is prefixed before
// parsing. Either half that fails to parse comes back empty.
func Range(text string) (start, end string) {
	text = strings.ReplaceAll(text, " ", "")
	if text == "" {
		return "", ""
	}
	if !strings.Contains(text, "~") {
		start, _ = Date(text)
		return start, ""
	}
	startRaw, endRaw, _ := strings.Cut(text, "~")
	if strings.Count(endRaw, ".") == 1 {
		year, _, _ := strings.Cut(startRaw, ".")
		endRaw = year + "." + endRaw
	}
	start, _ = Date(startRaw)
	end, _ = Date(endRaw)
	return start, end
}

// Won parses a won amount such as "25,000원". Thousands separators and
// the currency suffix are stripped; what remains must be a pure
// non-negative integer string. Signs, decimal points, and embedded
// symbols all fail closed: the site quotes offer prices in whole won
// and anything fractional is a scrape artifact, not a price.
func Won(text string) (decimal.Decimal, bool) {
	text = strings.ReplaceAll(text, ",", "")
	text = strings.TrimSuffix(strings.TrimSpace(text), "원")
	text = strings.TrimSpace(text)
	if text == "" || !isDigits(text) {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
