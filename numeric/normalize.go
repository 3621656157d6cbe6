// Package numeric turns noisy, locale-inconsistent numeric text scraped
// from upstream pages and API payloads into canonical decimal values.
//
// # Normalization
//
// Upstreams disagree on separator semantics: "1.234,56" (European),
// "1,234.56" (US), "12 345,6" (with regular or non-breaking spaces).
// Normalize resolves the ambiguity into a single canonical form with one
// '.' decimal separator and no grouping separators.
//
// # Extraction
//
// Scraped text blocks mix the actual price with ranking numbers, counters
// and dates. BestCandidate picks the token most likely to be the price:
// the one with the most digits, longest raw match as tiebreaker. Real
// prices in this domain tend to be the longest numeric token on the page.
package numeric

import "strings"

// Normalize rewrites a localized numeric fragment into a form parseable
// by a standard decimal parser: one '.' decimal separator, no grouping.
// It never fails; input it cannot make sense of is returned stripped of
// whitespace, and the downstream parse decides.
//
// Separator rules:
//   - both ',' and '.' present: the one appearing later is the decimal
//     separator, every occurrence of the other is grouping and removed
//   - single ',': grouping when followed by exactly 3 digits, decimal
//     otherwise
//   - repeated ',': grouping, except a trailing occurrence followed by a
//     non-3-digit all-digit tail, which is decimal
//   - '.' follows the same repeated-occurrence rule, but a single '.' is
//     always decimal, so already-canonical input passes through unchanged
func Normalize(s string) string {
	s = stripSpaces(s)

	var (
		lastComma = strings.LastIndexByte(s, ',')
		lastDot   = strings.LastIndexByte(s, '.')
	)

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Both separators present: the later one is decimal
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")

			return strings.ReplaceAll(s, ",", ".")
		}

		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		return normalizeSingleSeparator(s, ',', lastComma, true)
	case lastDot >= 0:
		return normalizeSingleSeparator(s, '.', lastDot, false)
	default:
		return s
	}
}

// normalizeSingleSeparator resolves a fragment in which only one of the
// two candidate separator characters appears.
//
// groupOnShortTail controls the genuinely ambiguous case of a single
// separator followed by exactly 3 digits ("12,345"): when set, it is
// read as grouping; when unset, as decimal. The comma form enables it
// (comma-grouped upstreams dominate), the dot form does not, so a
// canonical "1234.567" survives a round trip untouched.
func normalizeSingleSeparator(s string, sep byte, last int, groupOnShortTail bool) string {
	var (
		sepStr = string(sep)
		tail   = s[last+1:]
		count  = strings.Count(s, sepStr)
	)

	if count == 1 {
		if groupOnShortTail && len(tail) == 3 && allDigits(tail) {
			// Thousands group: "12,345" -> "12345"
			return s[:last] + tail
		}

		if sep == ',' {
			return s[:last] + "." + tail
		}

		return s
	}

	// Repeated separators are grouping, unless the last one carries a
	// non-3-digit decimal tail: "1,234,56" -> "1234.56"
	if allDigits(tail) && len(tail) != 3 {
		head := strings.ReplaceAll(s[:last], sepStr, "")

		return head + "." + tail
	}

	return strings.ReplaceAll(s, sepStr, "")
}

// stripSpaces removes every whitespace variant, including the
// non-breaking (U+00A0) and narrow non-breaking (U+202F) spaces common
// in European-locale markup.
func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ' ', ' ', ' ':
			return -1
		default:
			return r
		}
	}, s)
}

// allDigits reports whether s is non-empty and consists of ASCII digits
func allDigits(s string) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}
