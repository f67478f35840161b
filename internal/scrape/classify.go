package scrape

import (
	"regexp"
	"strings"
)

var (
	yearEndedRe   = regexp.MustCompile(`(?i)year\s+ended`)
	fiscalRangeRe = regexp.MustCompile(`(20[0-2]\d)[-/](20[0-2]\d)\b`)
	shortFiscalRe = regexp.MustCompile(`20[0-2]\d[-/]([1-2]\d)\b`)
	anyYearRe     = regexp.MustCompile(`20[0-2]\d`)
)

// Keywords that disqualify a link outright. These always win over the
// include list so a "2024 Budget vs Financial Plan" page never sneaks in.
var excludeKeywords = []string{
	"budget", "projection", "forecast", "plan", "proposed",
	"preliminary", "bylaw", "tax rate", "levy", "quarterly",
}

var includeKeywords = []string{
	"annual report", "annual financial", "financial statement",
	"audited", "consolidated financial", "year end", "sofi",
}

// normalizeText lowercases and folds hyphens/underscores to spaces so
// filename-style tokens ("Annual_Report-2023.pdf") match phrase keywords.
func normalizeText(text, rawURL string) string {
	combined := strings.ToLower(text) + " " + strings.ToLower(rawURL)
	combined = strings.ReplaceAll(combined, "_", " ")
	return strings.ReplaceAll(combined, "-", " ")
}

// ClassifyKind derives the document kind from link text and URL. First match
// wins; annual report is checked first because it is the most specific.
func ClassifyKind(text, rawURL string) Kind {
	combined := normalizeText(text, rawURL)

	if strings.Contains(combined, "annual report") {
		return KindAnnualReport
	}
	for _, kw := range []string{"financial statement", "audited financial", "consolidated financial"} {
		if strings.Contains(combined, kw) {
			return KindFinancialStatement
		}
	}
	if strings.Contains(combined, "sofi") || strings.Contains(combined, "statement of financial information") {
		return KindSOFI
	}
	return KindOther
}

// IsRelevantReport decides whether a link belongs to the annual-report family
// at all, as opposed to budgets, forecasts, and other council noise.
func IsRelevantReport(text, rawURL string) bool {
	combined := normalizeText(text, rawURL)

	for _, kw := range excludeKeywords {
		if strings.Contains(combined, kw) {
			return false
		}
	}
	for _, kw := range includeKeywords {
		if strings.Contains(combined, kw) {
			return true
		}
	}
	// Bare "annual" is too ambiguous ("annual general meeting" etc.).
	if strings.Contains(combined, "annual") && !strings.Contains(combined, "report") {
		return false
	}
	return strings.Contains(combined, "financial report")
}

// ExtractYear pulls a fiscal year out of raw text. Patterns are tried in
// priority order:
//
//  1. "Year Ended ... YYYY" - the most authoritative phrasing.
//  2. A fiscal range 2023-2024 or 2023/2024 (word-bounded, so calendar
//     dates like 2022-05-15 do not match) - returns the end year.
//  3. The short form 2023-24 / 2023/24 - returns 2000 + suffix.
//  4. Every 20xx token in the text; the max of those below currentYear, or
//     the max overall when only current-year tokens exist (the resolver
//     excludes those later).
//
// Returns 0 when no pattern matches.
func ExtractYear(text string, currentYear int) int {
	if text == "" {
		return 0
	}

	// "Year Ended December 31, 2019": skip past the phrase (and any day
	// number) to the first 20xx token that follows.
	if loc := yearEndedRe.FindStringIndex(text); loc != nil {
		if tok := anyYearRe.FindString(text[loc[1]:]); tok != "" {
			return atoiYear(tok)
		}
	}
	if m := fiscalRangeRe.FindStringSubmatch(text); m != nil {
		return atoiYear(m[2])
	}
	if m := shortFiscalRe.FindStringSubmatch(text); m != nil {
		return 2000 + atoiYear(m[1])
	}

	best := 0
	bestAny := 0
	for _, tok := range anyYearRe.FindAllString(text, -1) {
		y := atoiYear(tok)
		if y > bestAny {
			bestAny = y
		}
		if y < currentYear && y > best {
			best = y
		}
	}
	if best > 0 {
		return best
	}
	return bestAny
}

// IsDraft reports whether the link text or URL marks a draft version.
func IsDraft(text, rawURL string) bool {
	return strings.Contains(normalizeText(text, rawURL), "draft")
}

// atoiYear converts digit-only, regexp-validated tokens.
func atoiYear(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
